// Package cart keeps one logical shopping cart usable with or without a
// connection, merging offline edits into the server cart when it returns.
package cart

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"ecomarket/pkg/domain"
	"ecomarket/services/shop/internal/connectivity"
	"golang.org/x/sync/singleflight"
)

// syncTimeout bounds a shared sync flight, which no single caller can cancel.
const syncTimeout = 30 * time.Second

// API is the server cart.
type API interface {
	MyCart(ctx context.Context) ([]domain.CartLine, error)
	AddToCart(ctx context.Context, productID int64, quantity int) error
	RemoveFromCart(ctx context.Context, productID int64) error
	ClearCart(ctx context.Context) error
	Purchase(ctx context.Context) (domain.PurchaseResult, error)
	SyncCart(ctx context.Context, key string, lines []domain.CartLine) error
}

type Config struct {
	API          API
	Local        *LocalCart
	Connectivity connectivity.Source
	Logger       *slog.Logger
}

// Reconciler presents the cart to the user. Connectivity is sampled at the
// start of every operation.
type Reconciler struct {
	api    API
	local  *LocalCart
	conn   connectivity.Source
	logger *slog.Logger

	// localMu gives Sync exclusive use of the local cart while a batch is
	// in flight.
	localMu   sync.Mutex
	syncGroup singleflight.Group

	viewMu    sync.Mutex
	displayed []domain.CartLine
}

func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.API == nil {
		return nil, errors.New("cart api required")
	}
	if cfg.Local == nil {
		return nil, errors.New("local cart required")
	}
	if cfg.Connectivity == nil {
		return nil, errors.New("connectivity source required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		api:    cfg.API,
		local:  cfg.Local,
		conn:   cfg.Connectivity,
		logger: logger,
	}, nil
}

// Displayed returns the cart as last presented.
func (r *Reconciler) Displayed() []domain.CartLine {
	r.viewMu.Lock()
	defer r.viewMu.Unlock()
	return slices.Clone(r.displayed)
}

func (r *Reconciler) show(lines []domain.CartLine) {
	r.viewMu.Lock()
	r.displayed = slices.Clone(lines)
	r.viewMu.Unlock()
}

// project applies fn to the displayed cart and returns a func restoring the
// previous contents.
func (r *Reconciler) project(fn func([]domain.CartLine) []domain.CartLine) (rollback func()) {
	r.viewMu.Lock()
	prev := r.displayed
	r.displayed = fn(slices.Clone(prev))
	r.viewMu.Unlock()
	return func() { r.show(prev) }
}

// View returns the server cart when online and the local cart otherwise.
func (r *Reconciler) View(ctx context.Context) ([]domain.CartLine, error) {
	if !r.conn.Online() {
		lines, err := r.local.Lines(ctx)
		if err != nil {
			return nil, userError("could not read the saved cart", err)
		}
		r.show(lines)
		return lines, nil
	}
	lines, err := r.api.MyCart(ctx)
	if err != nil {
		return nil, userError("could not load the cart", err)
	}
	r.show(lines)
	return lines, nil
}

// refresh reloads the displayed cart from the server after a confirmed
// change. A failure keeps the current view.
func (r *Reconciler) refresh(ctx context.Context) {
	lines, err := r.api.MyCart(ctx)
	if err != nil {
		r.logger.Warn("refresh cart failed", "err", err)
		return
	}
	r.show(lines)
}

// Add puts quantity units of productID in the cart. Offline, repeated adds
// of a product accumulate in one local line.
func (r *Reconciler) Add(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return userError("quantity must be at least 1", ErrInvalidQuantity)
	}
	if !r.conn.Online() {
		r.localMu.Lock()
		defer r.localMu.Unlock()
		if err := r.local.Add(ctx, domain.CartLine{ProductID: productID, Quantity: quantity}); err != nil {
			return userError("could not save the product offline", err)
		}
		r.showLocal(ctx)
		return nil
	}
	if err := r.api.AddToCart(ctx, productID, quantity); err != nil {
		return userError("could not add the product to the cart", err)
	}
	r.refresh(ctx)
	return nil
}

// Remove takes productID out of the cart. Online, the line disappears from
// the view at once and comes back if the server refuses.
func (r *Reconciler) Remove(ctx context.Context, productID int64) error {
	if !r.conn.Online() {
		r.localMu.Lock()
		defer r.localMu.Unlock()
		if err := r.local.Remove(ctx, productID); err != nil {
			return userError("could not remove the product offline", err)
		}
		r.showLocal(ctx)
		return nil
	}
	rollback := r.project(func(lines []domain.CartLine) []domain.CartLine {
		return slices.DeleteFunc(lines, func(l domain.CartLine) bool { return l.ProductID == productID })
	})
	if err := r.api.RemoveFromCart(ctx, productID); err != nil {
		rollback()
		return userError("could not remove the product from the cart", err)
	}
	// A stale pending line would bring the product back on the next sync.
	r.localMu.Lock()
	defer r.localMu.Unlock()
	if err := r.local.Remove(ctx, productID); err != nil {
		r.logger.Warn("drop pending line failed", "product_id", productID, "err", err)
	}
	return nil
}

// UpdateQuantity sets the quantity of a line already in the cart. Online,
// the change is stored as a removal followed by an add of the new quantity.
func (r *Reconciler) UpdateQuantity(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return userError("quantity must be at least 1", ErrInvalidQuantity)
	}
	if !r.conn.Online() {
		r.localMu.Lock()
		defer r.localMu.Unlock()
		if _, err := r.local.SetQuantity(ctx, productID, quantity); err != nil {
			return userError("could not update the quantity offline", err)
		}
		r.showLocal(ctx)
		return nil
	}
	r.project(func(lines []domain.CartLine) []domain.CartLine {
		for i := range lines {
			if lines[i].ProductID == productID {
				lines[i].Quantity = quantity
			}
		}
		return lines
	})
	if err := r.api.RemoveFromCart(ctx, productID); err != nil {
		r.refresh(ctx)
		return userError("could not update the quantity", err)
	}
	if err := r.api.AddToCart(ctx, productID, quantity); err != nil {
		r.refresh(ctx)
		return userError("could not update the quantity", err)
	}
	r.refresh(ctx)
	return nil
}

// Clear empties the cart. Online, the server cart is cleared first and the
// local cart is left alone if that fails.
func (r *Reconciler) Clear(ctx context.Context) error {
	if r.conn.Online() {
		if err := r.api.ClearCart(ctx); err != nil {
			return userError("could not empty the cart", err)
		}
	}
	r.localMu.Lock()
	defer r.localMu.Unlock()
	if err := r.local.Clear(ctx); err != nil {
		return userError("could not empty the saved cart", err)
	}
	r.show(nil)
	return nil
}

// Purchase buys the server cart. Lines the server skips are reported in the
// result, not as an error, and the cart starts empty afterwards either way.
func (r *Reconciler) Purchase(ctx context.Context) (domain.PurchaseResult, error) {
	if !r.conn.Online() {
		return domain.PurchaseResult{}, userError("you must be online to purchase", ErrOffline)
	}
	res, err := r.api.Purchase(ctx)
	if err != nil {
		return domain.PurchaseResult{}, userError("could not complete the purchase", err)
	}
	r.show(nil)
	r.localMu.Lock()
	defer r.localMu.Unlock()
	if err := r.local.Clear(ctx); err != nil {
		r.logger.Warn("clear local cart after purchase failed", "err", err)
	}
	return res, nil
}

// Sync merges the local cart into the server cart in one batch and reports
// whether a batch was merged. Failures leave the local cart for the next
// attempt and are only logged. Concurrent calls share one request.
func (r *Reconciler) Sync(ctx context.Context) bool {
	ch := r.syncGroup.DoChan("sync", func() (any, error) {
		// Joined callers share this flight; it outlives whoever started it.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), syncTimeout)
		defer cancel()
		return r.syncOnce(flightCtx), nil
	})
	select {
	case <-ctx.Done():
		return false
	case res := <-ch:
		return res.Val.(bool)
	}
}

func (r *Reconciler) syncOnce(ctx context.Context) bool {
	if !r.conn.Online() {
		return false
	}
	r.localMu.Lock()
	defer r.localMu.Unlock()
	lines, err := r.local.Lines(ctx)
	if err != nil {
		r.logger.Warn("sync: read local cart failed", "err", err)
		return false
	}
	if len(lines) == 0 {
		return false
	}
	key, err := r.local.BatchKey(ctx, lines)
	if err != nil {
		r.logger.Warn("sync: batch key failed", "err", err)
		return false
	}
	if err := r.api.SyncCart(ctx, key, lines); err != nil {
		r.logger.Warn("sync failed, batch kept for retry", "lines", len(lines), "err", err)
		return false
	}
	if err := r.local.Clear(ctx); err != nil {
		r.logger.Error("sync: clear local cart failed", "err", err)
	}
	r.logger.Info("cart synced", "lines", len(lines))
	r.refresh(ctx)
	return true
}

// Mount prepares the cart view: pending lines are merged first when online.
func (r *Reconciler) Mount(ctx context.Context) ([]domain.CartLine, error) {
	if r.conn.Online() {
		lines, err := r.local.Lines(ctx)
		if err != nil {
			r.logger.Warn("mount: read local cart failed", "err", err)
		} else if len(lines) > 0 {
			r.Sync(ctx)
		}
	}
	return r.View(ctx)
}

// Run syncs on every offline to online transition until ctx is done. A
// source that is already online when Run starts counts as one.
func (r *Reconciler) Run(ctx context.Context) error {
	states, cancel := r.conn.Subscribe()
	defer cancel()
	online := r.conn.Online()
	if online {
		r.Sync(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-states:
			if !ok {
				return nil
			}
			if s == connectivity.Online && !online {
				r.logger.Info("connection restored, syncing cart")
				r.Sync(ctx)
			}
			online = s == connectivity.Online
		}
	}
}

func (r *Reconciler) showLocal(ctx context.Context) {
	lines, err := r.local.Lines(ctx)
	if err != nil {
		r.logger.Warn("read local cart failed", "err", err)
		return
	}
	r.show(lines)
}
