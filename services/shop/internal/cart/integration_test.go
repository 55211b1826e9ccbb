package cart

import (
	"context"
	"net/http/httptest"
	"testing"

	"ecomarket/internal/marketapi"
	"ecomarket/pkg/kv"
	"ecomarket/pkg/session"
	"ecomarket/services/shop/internal/apiclient"
	"ecomarket/services/shop/internal/connectivity"
)

func TestOfflineCartAgainstMarketAPI(t *testing.T) {
	srv, _, err := marketapi.NewSeeded("test-secret")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx := context.Background()
	store := kv.NewMemoryStore()
	sessions := session.NewService(store)
	client, err := apiclient.NewClient(apiclient.Config{BaseURL: ts.URL, Sessions: sessions})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	resp, err := client.Login(ctx, "ana", "123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := sessions.Save(ctx, session.FromLogin(resp.AccessToken, resp.LoggedUser)); err != nil {
		t.Fatalf("save session: %v", err)
	}

	conn := connectivity.NewSwitch(connectivity.Offline)
	local := NewLocalCart(store, nil)
	rec, err := NewReconciler(Config{API: client, Local: local, Connectivity: conn})
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}

	_ = rec.Add(ctx, 7, 2)
	_ = rec.Add(ctx, 7, 3)
	conn.Set(connectivity.Online)
	if !rec.Sync(ctx) {
		t.Fatalf("sync failed")
	}
	lines, err := rec.View(ctx)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if got := quantities(lines); len(got) != 1 || got[7] != 5 {
		t.Fatalf("server cart %v", got)
	}
	if pending, _ := local.Lines(ctx); len(pending) != 0 {
		t.Fatalf("local cart should be empty, got %+v", pending)
	}

	if err := rec.Add(ctx, 1, 2); err != nil {
		t.Fatalf("online add: %v", err)
	}
	res, err := rec.Purchase(ctx)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if len(res.Products.Purchased) != 1 || res.Products.Purchased[0].ProductID != 1 {
		t.Fatalf("purchased %+v", res.Products.Purchased)
	}
	if len(res.Products.Skipped) != 1 || res.Products.Skipped[0].ProductID != 7 {
		t.Fatalf("product 7 exceeds stock and should be skipped, got %+v", res.Products.Skipped)
	}
	after, _ := rec.View(ctx)
	if len(after) != 0 || len(rec.Displayed()) != 0 {
		t.Fatalf("cart should be empty after purchase, got %+v", after)
	}
}
