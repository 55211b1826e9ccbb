package session

import (
	"context"
	"testing"
	"time"

	"ecomarket/pkg/domain"
	"ecomarket/pkg/kv"
	jwt "github.com/golang-jwt/jwt/v5"
)

func TestLoadEmptyStoreIsAnonymous(t *testing.T) {
	svc := NewService(kv.NewMemoryStore())
	sess, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess.Authenticated() {
		t.Fatalf("expected anonymous session, got %+v", sess)
	}
}

func TestSaveReplacesWholeSession(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	svc := NewService(store)

	if err := svc.Save(ctx, domain.Session{Token: "t1", Username: "bere", Role: domain.RoleAdmin, UserID: "1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.Save(ctx, domain.Session{Token: "t2", Username: "ana", Role: domain.RoleUser}); err != nil {
		t.Fatalf("save: %v", err)
	}
	sess, err := svc.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := domain.Session{Token: "t2", Username: "ana", Role: domain.RoleUser}
	if sess != want {
		t.Fatalf("expected %+v, got %+v", want, sess)
	}
	if v, _, _ := store.Get(ctx, KeyUsername); v != "ana" {
		t.Fatalf("display name must be stored under %s, got %q", KeyUsername, v)
	}
}

func TestClearLeavesOtherKeys(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	_ = store.Set(ctx, "local_cart", "[]")
	svc := NewService(store)
	_ = svc.Save(ctx, domain.Session{Token: "t", Role: domain.RoleUser})

	if err := svc.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if tok, _ := svc.Token(ctx); tok != "" {
		t.Fatalf("expected token cleared, got %q", tok)
	}
	if _, ok, _ := store.Get(ctx, "local_cart"); !ok {
		t.Fatalf("clearing the session must keep the local cart")
	}
}

func TestSubscribeIgnoresUnrelatedKeys(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	svc := NewService(store)
	events, cancel := svc.Subscribe()
	defer cancel()

	_ = store.Set(ctx, "local_cart", "[]")
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	_ = svc.Clear(ctx)
	select {
	case ev := <-events:
		if ev.Remote {
			t.Fatalf("expected local event")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected session event")
	}
}

func TestFromLoginFillsMissingFieldsFromClaims(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      "42",
		"role":     "admin",
		"username": "bere",
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sess := FromLogin(signed, domain.User{})
	if sess.Role != domain.RoleAdmin || sess.UserID != "42" || sess.Username != "bere" {
		t.Fatalf("unexpected session %+v", sess)
	}

	explicit := FromLogin(signed, domain.User{ID: "7", Username: "ana", Role: domain.RoleUser})
	if explicit.Role != domain.RoleUser || explicit.UserID != "7" {
		t.Fatalf("response fields must win over claims, got %+v", explicit)
	}
}

func TestFromLoginOpaqueToken(t *testing.T) {
	sess := FromLogin("mock-token-123", domain.User{Username: "bere"})
	if sess.Token != "mock-token-123" || sess.Role != "" {
		t.Fatalf("unexpected session %+v", sess)
	}
}
