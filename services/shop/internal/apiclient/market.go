package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"ecomarket/pkg/domain"
)

// IdempotencyHeader carries the sync batch key so the server can drop
// redelivered batches.
const IdempotencyHeader = "Idempotency-Key"

// LoginResponse is returned by POST /login.
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	LoggedUser  domain.User `json:"logged_user"`
}

func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	payload := map[string]string{"username": username, "password": password}
	var resp LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/login", nil, payload, &resp); err != nil {
		return LoginResponse{}, err
	}
	if resp.AccessToken == "" {
		return LoginResponse{}, errors.New("login response without access token")
	}
	return resp, nil
}

func (c *Client) MyCart(ctx context.Context) ([]domain.CartLine, error) {
	var lines []domain.CartLine
	if err := c.doJSON(ctx, http.MethodGet, "/cart/mycart", nil, nil, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (c *Client) AddToCart(ctx context.Context, productID int64, quantity int) error {
	payload := map[string]any{"product_id": productID, "quantity": quantity}
	return c.doJSON(ctx, http.MethodPost, "/cart/add", nil, payload, nil)
}

func (c *Client) RemoveFromCart(ctx context.Context, productID int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/cart/remove/%d", productID), nil, nil, nil)
}

func (c *Client) ClearCart(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/cart/clear", nil, nil, nil)
}

func (c *Client) Purchase(ctx context.Context) (domain.PurchaseResult, error) {
	var res domain.PurchaseResult
	if err := c.doJSON(ctx, http.MethodPost, "/cart/purchase", nil, struct{}{}, &res); err != nil {
		return domain.PurchaseResult{}, err
	}
	return res, nil
}

// SyncCart sends a batch of local lines for the server to merge.
func (c *Client) SyncCart(ctx context.Context, key string, lines []domain.CartLine) error {
	var headers map[string]string
	if key != "" {
		headers = map[string]string{IdempotencyHeader: key}
	}
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return c.doJSON(ctx, http.MethodPost, "/cart/sync", headers, lines, nil)
}

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := c.doJSON(ctx, http.MethodGet, "/products/get", nil, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	var p domain.Product
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/products/%d", id), nil, nil, &p); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/products/%d", id), nil, nil, nil)
}

// ListComments returns the comments on a product, newest first.
func (c *Client) ListComments(ctx context.Context, productID int64) ([]domain.Comment, error) {
	var comments []domain.Comment
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/comments/product/%d", productID), nil, nil, &comments); err != nil {
		return nil, err
	}
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})
	return comments, nil
}

func (c *Client) AddComment(ctx context.Context, productID int64, content string, rating int) (domain.Comment, error) {
	payload := map[string]any{"product_id": productID, "content": content, "rating": rating}
	var comment domain.Comment
	if err := c.doJSON(ctx, http.MethodPost, "/comments", nil, payload, &comment); err != nil {
		return domain.Comment{}, err
	}
	return comment, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := c.doJSON(ctx, http.MethodGet, "/users", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// MostViewed returns the most-viewed statistic. A missing endpoint reads as
// an empty list.
func (c *Client) MostViewed(ctx context.Context) ([]domain.ProductViews, error) {
	var views []domain.ProductViews
	err := c.doJSON(ctx, http.MethodGet, "/stats/productos-mas-vistos", nil, nil, &views)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return []domain.ProductViews{}, nil
	}
	if err != nil {
		return nil, err
	}
	return views, nil
}

// RegisterRequest is the body of POST /register. Role and Status are only
// honoured when an admin is logged in.
type RegisterRequest struct {
	Username     string          `json:"username"`
	Email        string          `json:"email,omitempty"`
	Password     string          `json:"password"`
	Role         domain.UserRole `json:"role,omitempty"`
	Status       *bool           `json:"status,omitempty"`
	ProfileImage string          `json:"profile_image,omitempty"`
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (domain.User, error) {
	var u domain.User
	if err := c.doJSON(ctx, http.MethodPost, "/register", nil, req, &u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// UserUpdate carries the fields to change; nil fields are left alone.
type UserUpdate struct {
	Username     *string `json:"username,omitempty"`
	Email        *string `json:"email,omitempty"`
	Status       *bool   `json:"status,omitempty"`
	ProfileImage *string `json:"profile_image,omitempty"`
}

func (c *Client) UpdateUser(ctx context.Context, id string, upd UserUpdate) (domain.User, error) {
	var u domain.User
	if err := c.doJSON(ctx, http.MethodPut, "/users/"+url.PathEscape(id), nil, upd, &u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	var created domain.Product
	if err := c.doJSON(ctx, http.MethodPost, "/products/create", nil, p, &created); err != nil {
		return domain.Product{}, err
	}
	return created, nil
}

// UpdateProduct replaces the editable fields of product id with those of p.
func (c *Client) UpdateProduct(ctx context.Context, id int64, p domain.Product) (domain.Product, error) {
	var updated domain.Product
	if err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/products/%d", id), nil, p, &updated); err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

// Recommendations returns recommended product IDs for userID, best first.
func (c *Client) Recommendations(ctx context.Context, userID string) ([]int64, error) {
	var resp struct {
		IDs []int64 `json:"recomendaciones"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/recomendaciones/"+url.PathEscape(userID), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}
