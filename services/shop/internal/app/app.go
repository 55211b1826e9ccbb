package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ecomarket/pkg/kv"
	"ecomarket/pkg/session"
	"ecomarket/services/shop/internal/apiclient"
	"ecomarket/services/shop/internal/authgate"
	"ecomarket/services/shop/internal/cart"
	"ecomarket/services/shop/internal/config"
	"ecomarket/services/shop/internal/connectivity"
	"ecomarket/services/shop/internal/nav"
	"golang.org/x/sync/errgroup"
)

// Config holds runtime configuration for one client process.
type Config struct {
	File config.FileConfig
	// StartPath is the route the process opens at.
	StartPath string
	// Offline pins connectivity to offline instead of probing the API.
	Offline bool
	// Store overrides the configured backend.
	Store  kv.Store
	Logger *slog.Logger
}

// App wires the client components around one persisted store.
type App struct {
	Store    kv.Store
	Sessions *session.Service
	Nav      *nav.History
	API      *apiclient.Client
	Gate     *authgate.Gate
	Conn     connectivity.Source
	Cart     *cart.Reconciler

	prober *connectivity.Prober
	logger *slog.Logger
}

// New builds the client. The caller owns Close.
func New(ctx context.Context, cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout, err := config.ParseDuration("requestTimeout", cfg.File.RequestTimeout)
	if err != nil {
		return nil, err
	}
	interval, err := config.ParseDuration("probeInterval", cfg.File.ProbeInterval)
	if err != nil {
		return nil, err
	}

	store := cfg.Store
	if store == nil {
		store, err = openStore(ctx, cfg.File, logger)
		if err != nil {
			return nil, err
		}
	}

	start := cfg.StartPath
	if start == "" {
		start = "/"
	}
	history := nav.NewHistory(start)
	sessions := session.NewService(store)

	client, err := apiclient.NewClient(apiclient.Config{
		BaseURL:   cfg.File.APIBaseURL,
		Timeout:   timeout,
		Sessions:  sessions,
		Navigator: history,
		Logger:    logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		Store:    store,
		Sessions: sessions,
		Nav:      history,
		API:      client,
		logger:   logger,
	}
	if cfg.Offline {
		a.Conn = connectivity.NewSwitch(connectivity.Offline)
	} else {
		a.prober = connectivity.NewProber(connectivity.ProberConfig{
			Pinger:   client,
			Path:     cfg.File.ProbePath,
			Interval: interval,
			Logger:   logger,
		})
		a.Conn = a.prober
	}

	a.Gate = authgate.New(authgate.Config{
		Sessions:  sessions,
		Navigator: history,
		Auth:      client,
		Logger:    logger,
	})
	a.Cart, err = cart.NewReconciler(cart.Config{
		API:          client,
		Local:        cart.NewLocalCart(store, logger),
		Connectivity: a.Conn,
		Logger:       logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.FileConfig, logger *slog.Logger) (kv.Store, error) {
	switch cfg.Store {
	case config.StoreRedis:
		store, err := kv.NewRedisStore(ctx, kv.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   cfg.RedisPrefix,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis store: %w", err)
		}
		return store, nil
	case config.StoreMemory:
		return kv.NewMemoryStore(), nil
	default:
		store, err := kv.NewFileStore(cfg.StorePath, logger)
		if err != nil {
			return nil, fmt.Errorf("init file store: %w", err)
		}
		return store, nil
	}
}

// Probe samples connectivity once, for commands that do not Run.
func (a *App) Probe(ctx context.Context) connectivity.State {
	if a.prober == nil {
		if a.Conn.Online() {
			return connectivity.Online
		}
		return connectivity.Offline
	}
	return a.prober.Check(ctx)
}

// Require opens path and fails with ErrRouteDenied when the session is
// redirected elsewhere.
func (a *App) Require(ctx context.Context, path string) (authgate.Page, error) {
	page := a.Gate.Resolve(ctx, path)
	a.Nav.Navigate(page.Path)
	if page.Path != path {
		return page, fmt.Errorf("%w: %s redirects to %s", ErrRouteDenied, path, page.Path)
	}
	return page, nil
}

// Run drives the background loops until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Gate.Run(ctx) })
	g.Go(func() error { return a.Cart.Run(ctx) })
	if a.prober != nil {
		g.Go(func() error { return a.prober.Run(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) Close() error {
	return a.Store.Close()
}
