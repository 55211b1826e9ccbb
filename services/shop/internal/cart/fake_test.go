package cart

import (
	"context"
	"errors"
	"sync"

	"ecomarket/pkg/domain"
	"ecomarket/services/shop/internal/apiclient"
)

var errNetwork = apiclient.ErrNetwork

// fakeAPI is an in-memory server cart with switchable failures.
type fakeAPI struct {
	mu       sync.Mutex
	lines    []domain.CartLine
	fail     map[string]error
	calls    map[string]int
	lastKey  string
	syncGate chan struct{}
	// loseSyncResponse applies a batch and then reports a failure, as when
	// the response is lost on the way back.
	loseSyncResponse bool
	purchased        domain.PurchaseResult
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{fail: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeAPI) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.fail[op]
}

func (f *fakeAPI) addLocked(productID int64, quantity int) {
	for i := range f.lines {
		if f.lines[i].ProductID == productID {
			f.lines[i].Quantity += quantity
			return
		}
	}
	f.lines = append(f.lines, domain.CartLine{ProductID: productID, Quantity: quantity})
}

func (f *fakeAPI) MyCart(context.Context) ([]domain.CartLine, error) {
	if err := f.enter("mycart"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CartLine(nil), f.lines...), nil
}

func (f *fakeAPI) AddToCart(_ context.Context, productID int64, quantity int) error {
	if err := f.enter("add"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addLocked(productID, quantity)
	return nil
}

func (f *fakeAPI) RemoveFromCart(_ context.Context, productID int64) error {
	if err := f.enter("remove"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.lines[:0]
	for _, l := range f.lines {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	f.lines = kept
	return nil
}

func (f *fakeAPI) ClearCart(context.Context) error {
	if err := f.enter("clear"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = nil
	return nil
}

func (f *fakeAPI) Purchase(context.Context) (domain.PurchaseResult, error) {
	if err := f.enter("purchase"); err != nil {
		return domain.PurchaseResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = nil
	return f.purchased, nil
}

func (f *fakeAPI) SyncCart(ctx context.Context, key string, lines []domain.CartLine) error {
	if err := f.enter("sync"); err != nil {
		return err
	}
	if f.syncGate != nil {
		select {
		case <-f.syncGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if key != "" && key == f.lastKey {
		return nil
	}
	f.lastKey = key
	for _, l := range lines {
		f.addLocked(l.ProductID, l.Quantity)
	}
	if f.loseSyncResponse {
		f.loseSyncResponse = false
		return errNetwork
	}
	return nil
}

func isNetwork(err error) bool {
	return errors.Is(err, errNetwork)
}
