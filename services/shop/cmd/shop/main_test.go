package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"ecomarket/internal/marketapi"
	"ecomarket/services/shop/internal/app"
)

func setupEnv(t *testing.T) {
	t.Helper()
	srv, _, err := marketapi.NewSeeded("test-secret")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	t.Setenv("SHOP_API_BASE_URL", ts.URL)
	t.Setenv("SHOP_STORE", "file")
	t.Setenv("SHOP_STORE_PATH", filepath.Join(t.TempDir(), "state.json"))
	t.Setenv("SHOP_LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestOfflineEditsReachServerOnNextOnlineView(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "login", "ana", "-p", "123456"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := run(t, "--offline", "cart", "add", "7", "2"); err != nil {
		t.Fatalf("offline add: %v", err)
	}
	out, err := run(t, "--offline", "cart", "add", "7", "3")
	if err != nil {
		t.Fatalf("offline add: %v", err)
	}
	if !strings.Contains(out, "saved offline") || !strings.Contains(out, "5") {
		t.Fatalf("expected offline cart with 5 units, got:\n%s", out)
	}

	out, err = run(t, "cart")
	if err != nil {
		t.Fatalf("cart: %v", err)
	}
	if !strings.Contains(out, "Jabón artesanal") || !strings.Contains(out, "(server)") {
		t.Fatalf("expected merged server cart, got:\n%s", out)
	}

	out, err = run(t, "cart", "purchase")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if !strings.Contains(out, "product 7: stock insuficiente") {
		t.Fatalf("expected skipped line, got:\n%s", out)
	}
}

func TestShopperCannotListUsers(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "login", "ana", "-p", "123456"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := run(t, "users"); !errors.Is(err, app.ErrRouteDenied) {
		t.Fatalf("expected ErrRouteDenied, got %v", err)
	}
	out, err := run(t, "route", "/users")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !strings.Contains(out, "/users -> /home") {
		t.Fatalf("unexpected route output %q", out)
	}
}

func TestLogoutThenCartRedirectsToLogin(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "login", "bere", "-p", "123456"); err != nil {
		t.Fatalf("login: %v", err)
	}
	out, err := run(t, "whoami")
	if err != nil || !strings.Contains(out, "role admin") {
		t.Fatalf("whoami: %q %v", out, err)
	}
	if _, err := run(t, "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if out, _ := run(t, "whoami"); strings.TrimSpace(out) != "anonymous" {
		t.Fatalf("expected anonymous, got %q", out)
	}
	if _, err := run(t, "cart"); !errors.Is(err, app.ErrRouteDenied) {
		t.Fatalf("anonymous cart should be denied, got %v", err)
	}
}

func TestRegisterThenRecommendations(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "register", "luis", "-p", "secreto", "--email", "luis@example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.Contains(out, "account luis created") {
		t.Fatalf("unexpected register output %q", out)
	}
	if _, err := run(t, "login", "luis", "-p", "secreto"); err != nil {
		t.Fatalf("login: %v", err)
	}
	out, err = run(t, "recommendations")
	if err != nil {
		t.Fatalf("recommendations: %v", err)
	}
	if !strings.Contains(out, "recommended product 1") {
		t.Fatalf("unexpected recommendations output:\n%s", out)
	}
}

func TestAdminManagesCatalogAndAccounts(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "login", "bere", "-p", "123456"); err != nil {
		t.Fatalf("login: %v", err)
	}
	steps := []struct {
		args []string
		want string
	}{
		{[]string{"products", "add", "--name", "Esponja vegetal", "--category", "hogar", "--price", "1.8", "--stock", "30", "--recyclable"}, "product 11 created"},
		{[]string{"products", "edit", "11", "--stock", "25"}, "stock 25"},
		{[]string{"products", "11"}, "recyclable packaging true"},
		{[]string{"users", "add", "luis", "-p", "secreto"}, "account luis created (id 3, role user)"},
		{[]string{"users", "edit", "3", "--active=false"}, "active=false"},
		{[]string{"users", "delete", "3"}, "account 3 deleted"},
	}
	for _, s := range steps {
		out, err := run(t, s.args...)
		if err != nil {
			t.Fatalf("%v: %v", s.args, err)
		}
		if !strings.Contains(out, s.want) {
			t.Fatalf("%v: expected %q in output:\n%s", s.args, s.want, out)
		}
	}
}

func TestShopperCannotManageCatalogOrAccounts(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "login", "ana", "-p", "123456"); err != nil {
		t.Fatalf("login: %v", err)
	}
	for _, args := range [][]string{
		{"products", "add", "--name", "Falso"},
		{"products", "edit", "1", "--price", "0"},
		{"users", "delete", "1"},
		{"users", "add", "eva", "-p", "secreto"},
	} {
		if _, err := run(t, args...); !errors.Is(err, app.ErrRouteDenied) {
			t.Fatalf("%v: expected ErrRouteDenied, got %v", args, err)
		}
	}
}
