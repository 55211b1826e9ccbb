package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"ecomarket/internal/marketapi"
	"ecomarket/pkg/kv"
	"ecomarket/services/shop/internal/config"
	"ecomarket/services/shop/internal/connectivity"
)

func newTestApp(t *testing.T, offline bool, start string) *App {
	t.Helper()
	srv, _, err := marketapi.NewSeeded("test-secret")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	file := config.Defaults()
	file.APIBaseURL = ts.URL
	file.ProbeInterval = "20ms"
	a, err := New(context.Background(), Config{File: file, Offline: offline, StartPath: start, Store: kv.NewMemoryStore()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRequireFollowsRole(t *testing.T) {
	a := newTestApp(t, false, "/login")
	ctx := context.Background()

	if _, err := a.Require(ctx, "/cart"); !errors.Is(err, ErrRouteDenied) {
		t.Fatalf("anonymous /cart should be denied, got %v", err)
	}
	if a.Nav.Path() != "/login" {
		t.Fatalf("anonymous should land on login, at %s", a.Nav.Path())
	}

	if _, err := a.Gate.Login(ctx, "ana", "123456"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := a.Require(ctx, "/cart"); err != nil {
		t.Fatalf("shopper /cart: %v", err)
	}
	page, err := a.Require(ctx, "/users")
	if !errors.Is(err, ErrRouteDenied) || page.Path != "/home" {
		t.Fatalf("shopper /users should redirect home, got %+v %v", page, err)
	}
}

func TestProbeReportsReachableAPI(t *testing.T) {
	a := newTestApp(t, false, "/")
	if got := a.Probe(context.Background()); got != connectivity.Online {
		t.Fatalf("expected online, got %s", got)
	}
	if !a.Conn.Online() {
		t.Fatalf("source should report online after probe")
	}
}

func TestOfflineModeNeverProbes(t *testing.T) {
	a := newTestApp(t, true, "/")
	if got := a.Probe(context.Background()); got != connectivity.Offline {
		t.Fatalf("expected offline, got %s", got)
	}
}

func TestRunSyncsPendingCartOnStart(t *testing.T) {
	a := newTestApp(t, false, "/login")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := a.Gate.Login(ctx, "ana", "123456"); err != nil {
		t.Fatalf("login: %v", err)
	}
	// Queue a line as an earlier offline run would have.
	offline, err := New(ctx, Config{File: fileFor(a), Offline: true, Store: a.Store})
	if err != nil {
		t.Fatalf("offline app: %v", err)
	}
	if err := offline.Cart.Add(ctx, 2, 3); err != nil {
		t.Fatalf("offline add: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		lines, err := a.API.MyCart(ctx)
		if err == nil && len(lines) == 1 && lines[0].Quantity == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pending line never reached the server: %+v %v", lines, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func fileFor(a *App) config.FileConfig {
	file := config.Defaults()
	file.APIBaseURL = a.API.BaseURL()
	return file
}
