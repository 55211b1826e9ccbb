// Package authgate decides which route tree the current session may reach
// and keeps that decision current as the persisted session changes.
package authgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"ecomarket/pkg/domain"
	"ecomarket/pkg/session"
	"ecomarket/services/shop/internal/apiclient"
	"ecomarket/services/shop/internal/nav"
)

var (
	ErrAlreadyAuthenticated = errors.New("already logged in; log out first")
	ErrUnknownRole          = errors.New("login returned no usable role")
	ErrCredentialsRequired  = errors.New("username and password required")
)

// Authorization is the outcome of evaluating a session. A nil Routes means
// anonymous.
type Authorization struct {
	Role   domain.UserRole
	Routes *RouteSet
}

// Anonymous reports whether no authenticated route set is reachable.
func (a Authorization) Anonymous() bool {
	return a.Routes == nil
}

// Resolve maps path to the page this authorization reaches. Public paths
// always resolve to themselves. Authenticated clients fall back to their
// home page, anonymous ones to the login page.
func (a Authorization) Resolve(path string) Page {
	if p, ok := PublicRoutes.Lookup(path); ok {
		return p
	}
	if a.Anonymous() {
		return PublicRoutes.HomePage()
	}
	if p, ok := a.Routes.Lookup(path); ok {
		return p
	}
	return a.Routes.HomePage()
}

// Authorize evaluates sess. It has no side effects; a missing token or an
// unknown role is anonymous.
func Authorize(sess domain.Session) Authorization {
	if !sess.Authenticated() {
		return Authorization{}
	}
	routes := RoutesFor(sess.Role)
	if routes == nil {
		return Authorization{}
	}
	return Authorization{Role: sess.Role, Routes: routes}
}

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (apiclient.LoginResponse, error)
}

// Config wires the gate.
type Config struct {
	Sessions  *session.Service
	Navigator nav.Navigator
	Auth      Authenticator
	Logger    *slog.Logger
}

// Gate is the session-driven router guard.
type Gate struct {
	sessions *session.Service
	nav      nav.Navigator
	auth     Authenticator
	logger   *slog.Logger

	mu        sync.Mutex
	listeners []func(Authorization)
}

// New builds a gate.
func New(cfg Config) *Gate {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		sessions: cfg.Sessions,
		nav:      cfg.Navigator,
		auth:     cfg.Auth,
		logger:   logger,
	}
}

// Current evaluates the persisted session. A session that cannot be read
// is treated as anonymous.
func (g *Gate) Current(ctx context.Context) Authorization {
	sess, err := g.sessions.Load(ctx)
	if err != nil {
		g.logger.Warn("load session failed, treating as anonymous", "err", err)
		return Authorization{}
	}
	return Authorize(sess)
}

// Resolve maps path under the current authorization.
func (g *Gate) Resolve(ctx context.Context, path string) Page {
	return g.Current(ctx).Resolve(path)
}

// OnChange registers fn to run after every recomputation.
func (g *Gate) OnChange(fn func(Authorization)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Run recomputes the authorization once per session change until ctx is
// done, re-routing the navigator when the current path is no longer
// reachable.
func (g *Gate) Run(ctx context.Context) error {
	events, cancel := g.sessions.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			a := g.Current(ctx)
			g.logger.Debug("authorization recomputed", "role", a.Role, "remote", ev.Remote)
			g.render(a)
		}
	}
}

func (g *Gate) render(a Authorization) {
	if g.nav != nil {
		path := g.nav.Path()
		if page := a.Resolve(path); page.Path != path {
			g.nav.Navigate(page.Path)
		}
	}
	g.mu.Lock()
	listeners := append([]func(Authorization){}, g.listeners...)
	g.mu.Unlock()
	for _, fn := range listeners {
		fn(a)
	}
}

// Login authenticates against the API, persists the session and routes to
// the role's home page. It refuses to replace an existing session.
func (g *Gate) Login(ctx context.Context, username, password string) (Authorization, error) {
	if username == "" || password == "" {
		return Authorization{}, ErrCredentialsRequired
	}
	if !g.Current(ctx).Anonymous() {
		return Authorization{}, ErrAlreadyAuthenticated
	}
	if g.auth == nil {
		return Authorization{}, errors.New("authgate: no authenticator configured")
	}
	resp, err := g.auth.Login(ctx, username, password)
	if err != nil {
		return Authorization{}, fmt.Errorf("login: %w", err)
	}
	sess := session.FromLogin(resp.AccessToken, resp.LoggedUser)
	if sess.Username == "" {
		sess.Username = username
	}
	a := Authorize(sess)
	if a.Anonymous() {
		return Authorization{}, ErrUnknownRole
	}
	if err := g.sessions.Save(ctx, sess); err != nil {
		return Authorization{}, err
	}
	g.logger.Info("logged in", "username", sess.Username, "role", sess.Role)
	if g.nav != nil {
		g.nav.Navigate(a.Routes.Home)
	}
	return a, nil
}

// Logout clears the persisted session and routes to the login page. It
// never calls the API.
func (g *Gate) Logout(ctx context.Context) error {
	if err := g.sessions.Clear(ctx); err != nil {
		return err
	}
	if g.nav != nil {
		g.nav.Navigate(nav.LoginPath)
	}
	return nil
}
