// Package marketapi is an in-memory implementation of the marketplace REST
// contract consumed by the shop client. It backs local development and the
// client's tests.
package marketapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ecomarket/internal/ratelimit"
	"ecomarket/internal/util"
	"ecomarket/pkg/auth"
	"ecomarket/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/rs/cors"
)

// IdempotencyHeader carries the client's sync batch key.
const IdempotencyHeader = "Idempotency-Key"

// Config wires required dependencies for the HTTP server.
type Config struct {
	Store          *Store
	Tokens         *Tokens
	AllowedOrigins []string
	// LoginLimiter, when set, bounds login attempts across servers.
	// Otherwise LoginLimit attempts per LoginWindow are allowed per IP
	// in process; zero disables limiting.
	LoginLimiter ratelimit.Limiter
	LoginLimit   int
	LoginWindow  time.Duration
}

// Server exposes the marketplace endpoints.
type Server struct {
	store   *Store
	tokens  *Tokens
	origins []string
	router  chi.Router

	loginLimiter ratelimit.Limiter
	loginLimit   int
	loginWindow  time.Duration
}

type claimsContextKey struct{}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("marketapi: store required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("marketapi: tokens required")
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	s := &Server{
		store:   cfg.Store,
		tokens:  cfg.Tokens,
		origins: origins,
		router:  chi.NewRouter(),

		loginLimiter: cfg.LoginLimiter,
		loginLimit:   cfg.LoginLimit,
		loginWindow:  cfg.LoginWindow,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", util.RequestIDHeader, IdempotencyHeader},
		AllowCredentials: false,
	})
	return util.WithRequestID(util.WithRequestLog("marketapi", c.Handler(s.router)))
}

func (s *Server) routes() {
	r := s.router
	r.Get("/healthz", s.handleHealth)
	r.With(s.loginRateLimit()).Post("/login", s.handleLogin)
	r.With(s.optionalAuth).Post("/register", s.handleRegister)

	r.Get("/products/get", s.handleListProducts)
	r.Get("/products/{id}", s.handleGetProduct)
	r.Get("/comments/product/{id}", s.handleListComments)
	r.Get("/stats/productos-mas-vistos", s.handleMostViewed)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticated)
		r.Post("/comments", s.handleAddComment)
		r.Put("/users/{id}", s.handleUpdateUser)
		r.Get("/recomendaciones/{user_id}", s.handleRecommendations)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/mycart", s.handleMyCart)
			r.Post("/add", s.handleCartAdd)
			r.Delete("/remove/{product_id}", s.handleCartRemove)
			r.Delete("/clear", s.handleCartClear)
			r.Post("/purchase", s.handlePurchase)
			r.Post("/sync", s.handleCartSync)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Get("/users", s.handleListUsers)
			r.Delete("/users/{id}", s.handleDeleteUser)
			r.Post("/products/create", s.handleCreateProduct)
			r.Put("/products/{id}", s.handleUpdateProduct)
			r.Delete("/products/{id}", s.handleDeleteProduct)
		})
	})
}

func (s *Server) loginRateLimit() func(http.Handler) http.Handler {
	switch {
	case s.loginLimiter != nil:
		return ratelimit.Middleware(s.loginLimiter, "login")
	case s.loginLimit > 0:
		window := s.loginWindow
		if window <= 0 {
			window = time.Minute
		}
		return httprate.LimitByIP(s.loginLimit, window)
	default:
		return func(next http.Handler) http.Handler { return next }
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	LoggedUser  domain.User `json:"logged_user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	user, ok := s.store.Authenticate(req.Username, req.Password)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Usuario o contraseña incorrectos")
		return
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("issue token failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, TokenType: "bearer", LoggedUser: user})
}

type registerRequest struct {
	Username     string          `json:"username"`
	Email        string          `json:"email"`
	Password     string          `json:"password"`
	Role         domain.UserRole `json:"role"`
	Status       *bool           `json:"status"`
	ProfileImage string          `json:"profile_image"`
}

// handleRegister serves both self sign-up and admins adding accounts. Only an
// admin may pick the admin role or create an inactive account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	isAdmin := claimsFrom(r.Context()).Role == domain.RoleAdmin
	if req.Role == "" {
		req.Role = domain.RoleUser
	}
	if !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}
	if req.Role == domain.RoleAdmin && !isAdmin {
		writeError(w, http.StatusForbidden, "only an admin can create admin accounts")
		return
	}
	status := true
	if req.Status != nil && isAdmin {
		status = *req.Status
	}
	user, err := s.store.CreateUser(domain.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.TrimSpace(req.Email),
		Role:         req.Role,
		Status:       status,
		ProfileImage: strings.TrimSpace(req.ProfileImage),
	}, req.Password)
	switch {
	case errors.Is(err, ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, ErrInvalidInput), errors.Is(err, auth.ErrPasswordRequired), errors.Is(err, auth.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		util.LoggerFromContext(r.Context()).Error("create user failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// handleUpdateUser lets an admin edit any account and a user edit their own,
// except for the active flag.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFrom(r.Context())
	isAdmin := claims.Role == domain.RoleAdmin
	if !isAdmin && claims.Subject != id {
		writeError(w, http.StatusForbidden, "you can only edit your own account")
		return
	}
	var upd UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if upd.Status != nil && !isAdmin {
		writeError(w, http.StatusForbidden, "only an admin can change account status")
		return
	}
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		upd.Username = &name
	}
	user, err := s.store.UpdateUser(id, upd)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Usuario no encontrado")
		return
	case errors.Is(err, ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "could not update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == claimsFrom(r.Context()).Subject {
		writeError(w, http.StatusBadRequest, "you cannot delete your own account")
		return
	}
	if !s.store.DeleteUser(id) {
		writeError(w, http.StatusNotFound, "Usuario no encontrado")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Usuario eliminado"})
}

const recommendationLimit = 5

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "user_id")
	claims := claimsFrom(r.Context())
	if claims.Role != domain.RoleAdmin && claims.Subject != id {
		writeError(w, http.StatusForbidden, "you can only see your own recommendations")
		return
	}
	ids, err := s.store.Recommendations(id, recommendationLimit)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Usuario no encontrado")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]int64{"recomendaciones": ids})
}

func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListUsers())
}

func (s *Server) handleListProducts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListProducts())
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, found := s.store.GetProduct(id)
	if !found {
		writeError(w, http.StatusNotFound, "Producto no encontrado")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if !s.store.DeleteProduct(id) {
		writeError(w, http.StatusNotFound, "Producto no encontrado")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Producto eliminado"})
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var p domain.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	p.Name = strings.TrimSpace(p.Name)
	created, err := s.store.CreateProduct(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var p domain.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	p.Name = strings.TrimSpace(p.Name)
	updated, err := s.store.UpdateProduct(id, p)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Producto no encontrado")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleMostViewed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.MostViewed(10))
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.store.Comments(id))
}

type commentRequest struct {
	ProductID int64  `json:"product_id"`
	Content   string `json:"content"`
	Rating    int    `json:"rating"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	c, err := s.store.AddComment(domain.Comment{
		ProductID: req.ProductID,
		UserID:    claims.Subject,
		Username:  claims.Username,
		Content:   strings.TrimSpace(req.Content),
		Rating:    req.Rating,
	})
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Producto no encontrado")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleMyCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Cart(claimsFrom(r.Context()).Subject))
}

type cartAddRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (s *Server) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	var req cartAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}
	if err := s.store.AddToCart(claimsFrom(r.Context()).Subject, req.ProductID, req.Quantity); err != nil {
		writeError(w, http.StatusNotFound, "Producto no encontrado")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Producto agregado al carrito"})
}

func (s *Server) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}
	if !s.store.RemoveFromCart(claimsFrom(r.Context()).Subject, id) {
		writeError(w, http.StatusNotFound, "Producto no está en el carrito")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Producto eliminado del carrito"})
}

func (s *Server) handleCartClear(w http.ResponseWriter, r *http.Request) {
	s.store.ClearCart(claimsFrom(r.Context()).Subject)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Carrito vaciado"})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	userID := claimsFrom(r.Context()).Subject
	if len(s.store.Cart(userID)) == 0 {
		writeError(w, http.StatusBadRequest, "El carrito está vacío")
		return
	}
	writeJSON(w, http.StatusOK, s.store.Purchase(userID))
}

func (s *Server) handleCartSync(w http.ResponseWriter, r *http.Request) {
	var lines []domain.CartLine
	if err := json.NewDecoder(r.Body).Decode(&lines); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	applied := s.store.SyncCart(claimsFrom(r.Context()).Subject, key, lines)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Carrito sincronizado", "applied": applied})
}

func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Token inválido o expirado")
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claimsFrom(r.Context()).Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// optionalAuth attaches claims when a valid bearer token is present and
// otherwise lets the request through as anonymous.
func (s *Server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := bearerToken(r); token != "" {
			if claims, err := s.tokens.Verify(token); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), claimsContextKey{}, claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func claimsFrom(ctx context.Context) Claims {
	c, _ := ctx.Value(claimsContextKey{}).(Claims)
	return c
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError uses the {"detail": ...} shape the dashboard reads.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
