package marketapi

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"ecomarket/pkg/auth"
	"ecomarket/pkg/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

const reasonOutOfStock = "stock insuficiente"

type cartItem struct {
	productID int64
	quantity  int
}

// Store keeps the marketplace in-process. Carts are ordered by first
// insertion of each product.
type Store struct {
	mu         sync.RWMutex
	users      map[string]domain.User
	byName     map[string]string // username -> user ID
	nextUserID int
	products   map[int64]domain.Product
	order      []int64
	nextProdID int64
	carts      map[string][]cartItem
	synced     map[string]string  // user ID -> last applied sync key
	bought     map[string][]int64 // user ID -> purchased product IDs
	comments   []domain.Comment
	views      map[int64]int
	now        func() time.Time
}

// NewStore initializes an empty store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]domain.User),
		byName:   make(map[string]string),
		products: make(map[int64]domain.Product),
		carts:    make(map[string][]cartItem),
		synced:   make(map[string]string),
		bought:   make(map[string][]int64),
		views:    make(map[int64]int),
		now:      time.Now,
	}
}

// CreateUser registers u with a hashed password. ID and PasswordHash are
// assigned here.
func (s *Store) CreateUser(u domain.User, password string) (domain.User, error) {
	if u.Username == "" {
		return domain.User{}, fmt.Errorf("%w: username required", ErrInvalidInput)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[u.Username]; exists {
		return domain.User{}, ErrUsernameTaken
	}
	s.nextUserID++
	u.ID = strconv.Itoa(s.nextUserID)
	u.PasswordHash = hash
	s.users[u.ID] = u
	s.byName[u.Username] = u.ID
	return u, nil
}

// UserUpdate holds the editable account fields; nil leaves a field as is.
type UserUpdate struct {
	Username     *string `json:"username"`
	Email        *string `json:"email"`
	Status       *bool   `json:"status"`
	ProfileImage *string `json:"profile_image"`
}

// UpdateUser applies upd to the account with id.
func (s *Store) UpdateUser(id string, upd UserUpdate) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	if upd.Username != nil && *upd.Username != u.Username {
		name := *upd.Username
		if name == "" {
			return domain.User{}, fmt.Errorf("%w: username required", ErrInvalidInput)
		}
		if _, taken := s.byName[name]; taken {
			return domain.User{}, ErrUsernameTaken
		}
		delete(s.byName, u.Username)
		s.byName[name] = id
		u.Username = name
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	if upd.ProfileImage != nil {
		u.ProfileImage = *upd.ProfileImage
	}
	s.users[id] = u
	return u, nil
}

// DeleteUser removes the account together with its cart and history.
func (s *Store) DeleteUser(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return false
	}
	delete(s.users, id)
	delete(s.byName, u.Username)
	delete(s.carts, id)
	delete(s.synced, id)
	delete(s.bought, id)
	return true
}

// User returns the account with id.
func (s *Store) User(id string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// Authenticate checks credentials and returns the matching user.
func (s *Store) Authenticate(username, password string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return domain.User{}, false
	}
	u := s.users[id]
	if !u.Status || !auth.CheckPassword(password, u.PasswordHash) {
		return domain.User{}, false
	}
	return u, true
}

// ListUsers returns users ordered by ID.
func (s *Store) ListUsers() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool {
		a, _ := strconv.Atoi(res[i].ID)
		b, _ := strconv.Atoi(res[j].ID)
		return a < b
	})
	return res
}

// SaveProduct stores or replaces a product and tracks insertion order.
func (s *Store) SaveProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveProductLocked(p)
}

func (s *Store) saveProductLocked(p domain.Product) {
	if _, exists := s.products[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	if p.ID > s.nextProdID {
		s.nextProdID = p.ID
	}
	s.products[p.ID] = p
}

// CreateProduct adds p under the next free ID.
func (s *Store) CreateProduct(p domain.Product) (domain.Product, error) {
	if err := validateProduct(p); err != nil {
		return domain.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextProdID + 1
	s.saveProductLocked(p)
	return p, nil
}

// UpdateProduct replaces the fields of an existing product, keeping its ID
// and its place in the listing.
func (s *Store) UpdateProduct(id int64, p domain.Product) (domain.Product, error) {
	if err := validateProduct(p); err != nil {
		return domain.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return domain.Product{}, ErrNotFound
	}
	p.ID = id
	s.products[id] = p
	return p, nil
}

func validateProduct(p domain.Product) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name required", ErrInvalidInput)
	case p.Price < 0:
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	case p.CarbonFootprint < 0:
		return fmt.Errorf("%w: carbon footprint must not be negative", ErrInvalidInput)
	}
	return nil
}

// ListProducts returns products in insertion order.
func (s *Store) ListProducts() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Product, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, s.products[id])
	}
	return res
}

// GetProduct returns a product and counts the view.
func (s *Store) GetProduct(id int64) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if ok {
		s.views[id]++
	}
	return p, ok
}

// DeleteProduct removes a product from the catalog and from every cart.
func (s *Store) DeleteProduct(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return false
	}
	delete(s.products, id)
	s.order = slices.DeleteFunc(s.order, func(v int64) bool { return v == id })
	for uid, items := range s.carts {
		s.carts[uid] = slices.DeleteFunc(items, func(it cartItem) bool { return it.productID == id })
	}
	return true
}

// MostViewed returns products ordered by view count, highest first.
func (s *Store) MostViewed(limit int) []domain.ProductViews {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.ProductViews, 0, len(s.views))
	for id, n := range s.views {
		p, ok := s.products[id]
		if !ok {
			continue
		}
		res = append(res, domain.ProductViews{ProductID: id, Name: p.Name, Views: n})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Views != res[j].Views {
			return res[i].Views > res[j].Views
		}
		return res[i].ProductID < res[j].ProductID
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}

// Cart returns the user's cart with display fields filled from the catalog.
func (s *Store) Cart(userID string) []domain.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cartLocked(userID)
}

func (s *Store) cartLocked(userID string) []domain.CartLine {
	items := s.carts[userID]
	res := make([]domain.CartLine, 0, len(items))
	for _, it := range items {
		p := s.products[it.productID]
		res = append(res, domain.CartLine{
			ProductID: it.productID,
			Quantity:  it.quantity,
			Name:      p.Name,
			Price:     p.Price,
			ImageURL:  p.ImageURL,
		})
	}
	return res
}

// AddToCart adds quantity to the user's line for productID, creating it when
// missing.
func (s *Store) AddToCart(userID string, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		return ErrNotFound
	}
	s.addLocked(userID, productID, quantity)
	return nil
}

func (s *Store) addLocked(userID string, productID int64, quantity int) {
	items := s.carts[userID]
	for i := range items {
		if items[i].productID == productID {
			items[i].quantity += quantity
			return
		}
	}
	s.carts[userID] = append(items, cartItem{productID: productID, quantity: quantity})
}

// RemoveFromCart drops the user's line for productID.
func (s *Store) RemoveFromCart(userID string, productID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.carts[userID]
	n := len(items)
	s.carts[userID] = slices.DeleteFunc(items, func(it cartItem) bool { return it.productID == productID })
	return len(s.carts[userID]) != n
}

// ClearCart empties the user's cart.
func (s *Store) ClearCart(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
}

// SyncCart merges lines additively into the user's cart. A key equal to the
// last applied one is a redelivery and is ignored. Unknown products are
// skipped. It reports whether the batch was applied.
func (s *Store) SyncCart(userID, key string, lines []domain.CartLine) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != "" && s.synced[userID] == key {
		return false
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if _, ok := s.products[l.ProductID]; !ok {
			continue
		}
		s.addLocked(userID, l.ProductID, l.Quantity)
	}
	if key != "" {
		s.synced[userID] = key
	}
	return true
}

// Purchase buys every line with enough stock, skips the rest, and empties the
// cart either way.
func (s *Store) Purchase(userID string) domain.PurchaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res domain.PurchaseResult
	res.Products.Purchased = []domain.PurchasedLine{}
	res.Products.Skipped = []domain.SkippedLine{}
	for _, it := range s.carts[userID] {
		p, ok := s.products[it.productID]
		if !ok {
			res.Products.Skipped = append(res.Products.Skipped, domain.SkippedLine{ProductID: it.productID, Reason: "producto no encontrado"})
			continue
		}
		if p.Stock < it.quantity {
			res.Products.Skipped = append(res.Products.Skipped, domain.SkippedLine{ProductID: it.productID, Reason: reasonOutOfStock})
			continue
		}
		p.Stock -= it.quantity
		s.products[p.ID] = p
		if !slices.Contains(s.bought[userID], p.ID) {
			s.bought[userID] = append(s.bought[userID], p.ID)
		}
		res.Products.Purchased = append(res.Products.Purchased, domain.PurchasedLine{ProductID: it.productID, Quantity: it.quantity})
	}
	delete(s.carts, userID)
	switch {
	case len(res.Products.Purchased) == 0:
		res.Message = "No se compró ningún producto"
	case len(res.Products.Skipped) == 0:
		res.Message = "Compra realizada con éxito"
	default:
		res.Message = "Compra realizada parcialmente"
	}
	return res
}

// AddComment records a comment on an existing product.
func (s *Store) AddComment(c domain.Comment) (domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[c.ProductID]; !ok {
		return domain.Comment{}, ErrNotFound
	}
	c.ID = int64(len(s.comments) + 1)
	c.CreatedAt = s.now().UTC()
	s.comments = append(s.comments, c)
	return c, nil
}

// Comments returns comments for a product in insertion order.
func (s *Store) Comments(productID int64) []domain.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := []domain.Comment{}
	for _, c := range s.comments {
		if c.ProductID == productID {
			res = append(res, c)
		}
	}
	return res
}

// Recommendations suggests up to limit products the user has neither bought
// nor has in the cart. Products sharing a category with those come first;
// ties and the remainder follow view count, then catalog order.
func (s *Store) Recommendations(userID string, limit int) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.users[userID]; !ok {
		return nil, ErrNotFound
	}
	owned := make(map[int64]bool)
	for _, id := range s.bought[userID] {
		owned[id] = true
	}
	for _, it := range s.carts[userID] {
		owned[it.productID] = true
	}
	categories := make(map[string]bool)
	for id := range owned {
		if p, ok := s.products[id]; ok && p.Category != "" {
			categories[p.Category] = true
		}
	}
	candidates := make([]domain.Product, 0, len(s.order))
	rank := make(map[int64]int, len(s.order))
	for i, id := range s.order {
		p := s.products[id]
		if owned[id] || p.Stock == 0 {
			continue
		}
		candidates = append(candidates, p)
		rank[id] = i
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ca, cb := categories[a.Category], categories[b.Category]; ca != cb {
			return ca
		}
		if s.views[a.ID] != s.views[b.ID] {
			return s.views[a.ID] > s.views[b.ID]
		}
		return rank[a.ID] < rank[b.ID]
	})
	res := []int64{}
	for _, p := range candidates {
		if limit > 0 && len(res) == limit {
			break
		}
		res = append(res, p.ID)
	}
	return res, nil
}
