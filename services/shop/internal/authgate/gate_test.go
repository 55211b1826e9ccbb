package authgate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ecomarket/pkg/domain"
	"ecomarket/pkg/kv"
	"ecomarket/pkg/session"
	"ecomarket/services/shop/internal/apiclient"
	"ecomarket/services/shop/internal/nav"
	"github.com/alicebob/miniredis/v2"
)

type fakeAuth struct {
	resp  apiclient.LoginResponse
	err   error
	calls int
}

func (f *fakeAuth) Login(_ context.Context, _, _ string) (apiclient.LoginResponse, error) {
	f.calls++
	return f.resp, f.err
}

func TestAuthorizeIgnoresStaleRoleWithoutToken(t *testing.T) {
	a := Authorize(domain.Session{Role: domain.RoleAdmin, UserID: "1"})
	if !a.Anonymous() {
		t.Fatalf("expected anonymous, got %+v", a)
	}
	if p := a.Resolve("/dashboard"); p.Path != "/login" {
		t.Fatalf("anonymous should fall back to login, got %+v", p)
	}
}

func TestAuthorizeUnknownRoleIsAnonymous(t *testing.T) {
	if a := Authorize(domain.Session{Token: "t", Role: "superuser"}); !a.Anonymous() {
		t.Fatalf("expected malformed role to be anonymous, got %+v", a)
	}
}

func TestResolveFallsBackToRoleHome(t *testing.T) {
	admin := Authorize(domain.Session{Token: "t", Role: domain.RoleAdmin})
	if p := admin.Resolve("/unknown"); p.Path != "/dashboard" || p.Name != "Dashboard" {
		t.Fatalf("admin unknown path resolved to %+v", p)
	}
	if p := admin.Resolve("/users"); p.Path != "/users" {
		t.Fatalf("admin /users resolved to %+v", p)
	}
	user := Authorize(domain.Session{Token: "t", Role: domain.RoleUser})
	if p := user.Resolve("/users"); p.Path != "/home" {
		t.Fatalf("shopper must not reach /users, got %+v", p)
	}
	if p := user.Resolve("/cart"); p.Name != "Cart" {
		t.Fatalf("shopper /cart resolved to %+v", p)
	}
	if p := user.Resolve("/login"); p.Path != "/login" {
		t.Fatalf("public path must resolve to itself, got %+v", p)
	}
}

func TestLoginStoresSessionAndRoutesHome(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewService(kv.NewMemoryStore())
	history := nav.NewHistory(nav.LoginPath)
	auth := &fakeAuth{resp: apiclient.LoginResponse{
		AccessToken: "tok",
		LoggedUser:  domain.User{ID: "1", Username: "bere", Role: domain.RoleAdmin},
	}}
	g := New(Config{Sessions: sessions, Navigator: history, Auth: auth})

	a, err := g.Login(ctx, "bere", "123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if a.Role != domain.RoleAdmin || history.Path() != "/dashboard" {
		t.Fatalf("unexpected authorization %+v at %s", a, history.Path())
	}

	if _, err := g.Login(ctx, "ana", "123456"); !errors.Is(err, ErrAlreadyAuthenticated) {
		t.Fatalf("expected ErrAlreadyAuthenticated, got %v", err)
	}
	if auth.calls != 1 {
		t.Fatalf("second login must not reach the API, calls=%d", auth.calls)
	}
}

func TestLoginWithoutRoleIsRejected(t *testing.T) {
	sessions := session.NewService(kv.NewMemoryStore())
	g := New(Config{Sessions: sessions, Auth: &fakeAuth{resp: apiclient.LoginResponse{AccessToken: "opaque"}}})
	if _, err := g.Login(context.Background(), "x", "y"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if tok, _ := sessions.Token(context.Background()); tok != "" {
		t.Fatalf("session must not be stored, token %q", tok)
	}
}

func TestLogoutClearsSessionAndRoutesToLogin(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	sessions := session.NewService(store)
	_ = sessions.Save(ctx, domain.Session{Token: "t", Username: "bere", Role: domain.RoleAdmin, UserID: "1"})
	history := nav.NewHistory("/products")
	auth := &fakeAuth{}
	g := New(Config{Sessions: sessions, Navigator: history, Auth: auth})

	if err := g.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	for _, k := range []string{session.KeyToken, session.KeyUsername, session.KeyRole} {
		if _, ok, _ := store.Get(ctx, k); ok {
			t.Fatalf("expected %s removed", k)
		}
	}
	if history.Path() != nav.LoginPath {
		t.Fatalf("expected login page, at %s", history.Path())
	}
	if auth.calls != 0 {
		t.Fatalf("logout must not call the API")
	}
}

func TestRunRecomputesOncePerChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sessions := session.NewService(kv.NewMemoryStore())
	g := New(Config{Sessions: sessions})
	got := make(chan Authorization, 4)
	g.OnChange(func(a Authorization) { got <- a })

	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()
	waitSubscribed(t)

	if err := sessions.Save(ctx, domain.Session{Token: "t", Role: domain.RoleUser}); err != nil {
		t.Fatalf("save: %v", err)
	}
	a := waitAuthorization(t, got)
	if a.Role != domain.RoleUser {
		t.Fatalf("expected user authorization, got %+v", a)
	}
	select {
	case extra := <-got:
		t.Fatalf("one write must recompute once, got extra %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v", err)
	}
}

func TestLogoutInOtherProcessFallsBackToLogin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := miniredis.RunT(t)

	storeA, err := kv.NewRedisStore(ctx, kv.RedisConfig{Addr: srv.Addr(), Prefix: "origin"})
	if err != nil {
		t.Fatalf("store A: %v", err)
	}
	defer storeA.Close()
	storeB, err := kv.NewRedisStore(ctx, kv.RedisConfig{Addr: srv.Addr(), Prefix: "origin"})
	if err != nil {
		t.Fatalf("store B: %v", err)
	}
	defer storeB.Close()

	checkLogoutReachesOtherTab(ctx, t, storeA, storeB)
}

func TestLogoutInOtherProcessSharingFileFallsBackToLogin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	path := filepath.Join(t.TempDir(), "shop.json")

	storeA, err := kv.NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("store A: %v", err)
	}
	defer storeA.Close()
	storeB, err := kv.NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("store B: %v", err)
	}
	defer storeB.Close()

	checkLogoutReachesOtherTab(ctx, t, storeA, storeB)
}

// checkLogoutReachesOtherTab logs in through A, watches from B at /cart and
// expects B to fall back to login after A logs out.
func checkLogoutReachesOtherTab(ctx context.Context, t *testing.T, storeA, storeB kv.Store) {
	t.Helper()
	sessionsA := session.NewService(storeA)
	sessionsB := session.NewService(storeB)
	_ = sessionsA.Save(ctx, domain.Session{Token: "t", Username: "ana", Role: domain.RoleUser, UserID: "2"})

	tabA := New(Config{Sessions: sessionsA, Navigator: nav.NewHistory("/cart")})
	historyB := nav.NewHistory("/cart")
	tabB := New(Config{Sessions: sessionsB, Navigator: historyB})
	if tabB.Current(ctx).Anonymous() {
		t.Fatalf("tab B should start authenticated")
	}
	got := make(chan Authorization, 4)
	tabB.OnChange(func(a Authorization) { got <- a })
	go func() { _ = tabB.Run(ctx) }()
	waitSubscribed(t)

	if err := tabA.Logout(ctx); err != nil {
		t.Fatalf("tab A logout: %v", err)
	}
	// B may still see the earlier login before the logout arrives.
	deadline := time.After(2 * time.Second)
	for a := waitAuthorization(t, got); !a.Anonymous(); a = waitAuthorization(t, got) {
		select {
		case <-deadline:
			t.Fatalf("tab B never became anonymous")
		default:
		}
	}
	if historyB.Path() != nav.LoginPath {
		t.Fatalf("tab B should fall back to login, at %s", historyB.Path())
	}
}

// waitSubscribed gives Run time to subscribe before the test writes.
func waitSubscribed(t *testing.T) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
}

func waitAuthorization(t *testing.T, ch <-chan Authorization) Authorization {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for recomputation")
	}
	return Authorization{}
}
