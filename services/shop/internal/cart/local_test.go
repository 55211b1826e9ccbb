package cart

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ecomarket/pkg/domain"
	"ecomarket/pkg/kv"
)

func TestLocalCartCorruptValueIsKeptAside(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	_ = store.Set(ctx, KeyLocalCart, "{not json")
	c := NewLocalCart(store, nil)

	lines, err := c.Lines(ctx)
	if err != nil || len(lines) != 0 {
		t.Fatalf("expected empty cart, got %+v err=%v", lines, err)
	}
	if _, ok, _ := store.Get(ctx, KeyLocalCart); ok {
		t.Fatalf("corrupt value should be moved out of %s", KeyLocalCart)
	}
	if err := c.Add(ctx, domain.CartLine{ProductID: 1, Quantity: 1}); err != nil {
		t.Fatalf("add over corrupt value: %v", err)
	}
	if lines, _ := c.Lines(ctx); len(lines) != 1 {
		t.Fatalf("expected one line, got %+v", lines)
	}
	backup, ok, err := store.Get(ctx, KeyCorrupt)
	if err != nil || !ok || backup != "{not json" {
		t.Fatalf("expected corrupt value kept under %s, got %q ok=%v err=%v", KeyCorrupt, backup, ok, err)
	}
}

func TestLocalCartFoldsDuplicatesFromOtherWriters(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	_ = store.Set(ctx, KeyLocalCart, `[{"product_id":7,"quantity":2},{"product_id":7,"quantity":3},{"product_id":1,"quantity":0}]`)
	lines, _ := NewLocalCart(store, nil).Lines(ctx)
	if len(lines) != 1 || lines[0].Quantity != 5 {
		t.Fatalf("expected product 7 x5, got %+v", lines)
	}
}

func TestLocalCartRejectsNonPositiveQuantity(t *testing.T) {
	c := NewLocalCart(kv.NewMemoryStore(), nil)
	if err := c.Add(context.Background(), domain.CartLine{ProductID: 1}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := c.SetQuantity(context.Background(), 1, -2); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestLocalCartRemoveLastLineClears(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	c := NewLocalCart(store, nil)
	_ = c.Add(ctx, domain.CartLine{ProductID: 1, Quantity: 1})
	if err := c.Remove(ctx, 1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	for _, k := range []string{KeyLocalCart, KeyBatch} {
		if _, ok, _ := store.Get(ctx, k); ok {
			t.Fatalf("expected %s deleted", k)
		}
	}
}

func TestBatchKeyFollowsContentAndBatch(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCart(kv.NewMemoryStore(), nil)
	_ = c.Add(ctx, domain.CartLine{ProductID: 1, Quantity: 1})
	lines, _ := c.Lines(ctx)

	k1, err := c.BatchKey(ctx, lines)
	if err != nil {
		t.Fatalf("batch key: %v", err)
	}
	k2, _ := c.BatchKey(ctx, lines)
	if k1 != k2 {
		t.Fatalf("same batch must keep its key: %s vs %s", k1, k2)
	}

	_ = c.Add(ctx, domain.CartLine{ProductID: 1, Quantity: 1})
	lines, _ = c.Lines(ctx)
	k3, _ := c.BatchKey(ctx, lines)
	if k3 == k1 {
		t.Fatalf("changed content must change the key")
	}
	if strings.Split(k3, ":")[0] != strings.Split(k1, ":")[0] {
		t.Fatalf("batch id must survive edits")
	}

	_ = c.Clear(ctx)
	_ = c.Add(ctx, domain.CartLine{ProductID: 1, Quantity: 1})
	lines, _ = c.Lines(ctx)
	k4, _ := c.BatchKey(ctx, lines)
	if k4 == k1 {
		t.Fatalf("a new batch must not reuse the old key")
	}
}
