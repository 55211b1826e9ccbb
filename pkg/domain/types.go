package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Session is the authenticated identity of the current client.
// A session without a token is anonymous regardless of the other fields.
type Session struct {
	Token    string   `json:"token"`
	Username string   `json:"username"`
	Role     UserRole `json:"role"`
	UserID   string   `json:"userId"`
}

// Authenticated reports whether the session carries a token.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email,omitempty"`
	PasswordHash string   `json:"-"`
	Role         UserRole `json:"role"`
	Status       bool     `json:"status"`
	ProfileImage string   `json:"profile_image,omitempty"`
}

// CartLine is one product entry in a cart. Name, Price and ImageURL are
// display-only and never take part in reconciliation.
type CartLine struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Name      string  `json:"name,omitempty"`
	Price     float64 `json:"price,omitempty"`
	ImageURL  string  `json:"image_url,omitempty"`
}

// Subtotal returns price times quantity.
func (l CartLine) Subtotal() float64 {
	return l.Price * float64(l.Quantity)
}

// CartTotal sums the subtotals of lines.
func CartTotal(lines []CartLine) float64 {
	var total float64
	for _, l := range lines {
		total += l.Subtotal()
	}
	return total
}

type PurchasedLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type SkippedLine struct {
	ProductID int64  `json:"product_id"`
	Reason    string `json:"reason"`
}

// PurchaseResult is the server's per-line report of a purchase.
type PurchaseResult struct {
	Message  string `json:"message"`
	Products struct {
		Purchased []PurchasedLine `json:"purchased"`
		Skipped   []SkippedLine   `json:"skipped"`
	} `json:"products"`
}

// Product is a catalog entry. CarbonFootprint is in kg CO2e per unit.
type Product struct {
	ID                  int64   `json:"id"`
	Name                string  `json:"name"`
	Description         string  `json:"description,omitempty"`
	Category            string  `json:"category,omitempty"`
	Price               float64 `json:"price"`
	Stock               int     `json:"stock"`
	ImageURL            string  `json:"image_url,omitempty"`
	CarbonFootprint     float64 `json:"carbon_footprint,omitempty"`
	RecyclablePackaging bool    `json:"recyclable_packaging"`
	LocalOrigin         bool    `json:"local_origin"`
}

type Comment struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Content   string    `json:"content"`
	Rating    int       `json:"rating,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductViews is one entry of the most-viewed products statistic.
type ProductViews struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Views     int    `json:"views"`
}
