// Package kv is the persisted string key-value store shared by the session
// and the local cart. Backends publish a Change for every write so observers
// can react to both same-process and cross-process mutations through one
// subscription.
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Change describes one applied batch. Remote is true when another process
// sharing the backend performed the write.
type Change struct {
	Keys   []string
	Remote bool
}

// Batch groups writes that are applied and announced together.
type Batch struct {
	Set    map[string]string
	Delete []string
}

func (b Batch) keys() []string {
	keys := make([]string, 0, len(b.Set)+len(b.Delete))
	for k := range b.Set {
		keys = append(keys, k)
	}
	keys = append(keys, b.Delete...)
	return keys
}

func (b Batch) empty() bool {
	return len(b.Set) == 0 && len(b.Delete) == 0
}

// Store persists string values by key.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	// Apply writes a batch and emits a single Change for it.
	Apply(ctx context.Context, b Batch) error
	// Subscribe returns a stream of changes and a cancel func releasing it.
	Subscribe() (<-chan Change, func())
	Close() error
}
