package cart

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"ecomarket/pkg/domain"
	"ecomarket/pkg/kv"
	"github.com/google/uuid"
)

const (
	// KeyLocalCart holds the JSON-encoded pending lines.
	KeyLocalCart = "local_cart"
	// KeyBatch holds the id of the current pending batch. It is minted when
	// the local cart goes from empty to non-empty.
	KeyBatch = "local_cart_batch"
	// KeyCorrupt keeps the last local cart value that could not be decoded.
	KeyCorrupt = "local_cart_corrupt"
)

// LocalCart is the persisted cart used while offline. Lines are unique by
// product and always carry a positive quantity.
type LocalCart struct {
	store  kv.Store
	logger *slog.Logger
}

func NewLocalCart(store kv.Store, logger *slog.Logger) *LocalCart {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalCart{store: store, logger: logger}
}

// Lines returns the pending lines in insertion order. A missing value is an
// empty cart; an unreadable one is moved to KeyCorrupt and also reads empty.
func (c *LocalCart) Lines(ctx context.Context) ([]domain.CartLine, error) {
	raw, ok, err := c.store.Get(ctx, KeyLocalCart)
	if err != nil {
		return nil, fmt.Errorf("read local cart: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var lines []domain.CartLine
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		c.quarantine(ctx, raw, err)
		return nil, nil
	}
	return normalize(lines), nil
}

func (c *LocalCart) quarantine(ctx context.Context, raw string, cause error) {
	c.logger.Warn("local cart unreadable, moved aside",
		"key", KeyCorrupt, "bytes", len(raw), "err", cause)
	err := c.store.Apply(ctx, kv.Batch{
		Set:    map[string]string{KeyCorrupt: raw},
		Delete: []string{KeyLocalCart, KeyBatch},
	})
	if err != nil {
		c.logger.Error("local cart backup failed", "err", err)
	}
}

// Add upserts line: an existing product accumulates quantity, a new one is
// appended.
func (c *LocalCart) Add(ctx context.Context, line domain.CartLine) error {
	if line.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	lines, err := c.Lines(ctx)
	if err != nil {
		return err
	}
	found := false
	for i := range lines {
		if lines[i].ProductID == line.ProductID {
			lines[i].Quantity += line.Quantity
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, line)
	}
	return c.write(ctx, lines, len(lines) == 1 && !found)
}

// Remove drops the line for productID, if any.
func (c *LocalCart) Remove(ctx context.Context, productID int64) error {
	lines, err := c.Lines(ctx)
	if err != nil {
		return err
	}
	kept := lines[:0]
	for _, l := range lines {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(lines) {
		return nil
	}
	return c.write(ctx, kept, false)
}

// SetQuantity replaces the quantity of an existing line. It reports whether
// the product was present.
func (c *LocalCart) SetQuantity(ctx context.Context, productID int64, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, ErrInvalidQuantity
	}
	lines, err := c.Lines(ctx)
	if err != nil {
		return false, err
	}
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity = quantity
			return true, c.write(ctx, lines, false)
		}
	}
	return false, nil
}

// Clear empties the cart and retires the current batch.
func (c *LocalCart) Clear(ctx context.Context) error {
	if err := c.store.Delete(ctx, KeyLocalCart, KeyBatch); err != nil {
		return fmt.Errorf("clear local cart: %w", err)
	}
	return nil
}

// BatchKey identifies the pending batch by its id and content, so a resend
// of the same lines carries the same key.
func (c *LocalCart) BatchKey(ctx context.Context, lines []domain.CartLine) (string, error) {
	id, ok, err := c.store.Get(ctx, KeyBatch)
	if err != nil {
		return "", fmt.Errorf("read batch id: %w", err)
	}
	if !ok || id == "" {
		// Written by an older client or a cleared batch id; mint one now.
		id = uuid.NewString()
		if err := c.store.Set(ctx, KeyBatch, id); err != nil {
			return "", fmt.Errorf("write batch id: %w", err)
		}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return id + ":" + hex.EncodeToString(sum[:]), nil
}

func (c *LocalCart) write(ctx context.Context, lines []domain.CartLine, newBatch bool) error {
	if len(lines) == 0 {
		return c.Clear(ctx)
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	b := kv.Batch{Set: map[string]string{KeyLocalCart: string(raw)}}
	if newBatch {
		b.Set[KeyBatch] = uuid.NewString()
	}
	if err := c.store.Apply(ctx, b); err != nil {
		return fmt.Errorf("write local cart: %w", err)
	}
	return nil
}

// normalize folds duplicate products and drops non-positive quantities that
// another writer may have stored.
func normalize(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	index := make(map[int64]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
