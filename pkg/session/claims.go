package session

import (
	"strings"

	"ecomarket/pkg/domain"
	jwt "github.com/golang-jwt/jwt/v5"
)

// FromLogin builds a session from a login response. When the response omits
// the role or the user id they are read from the access token's claims. The
// token is not verified here; the server remains the authority on it.
func FromLogin(token string, user domain.User) domain.Session {
	sess := domain.Session{
		Token:    strings.TrimSpace(token),
		Username: strings.TrimSpace(user.Username),
		Role:     user.Role,
		UserID:   strings.TrimSpace(user.ID),
	}
	if sess.Token == "" || (sess.Role.Valid() && sess.UserID != "" && sess.Username != "") {
		return sess
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(sess.Token, claims); err != nil {
		return sess
	}
	if !sess.Role.Valid() {
		if role, ok := claims["role"].(string); ok {
			sess.Role = domain.UserRole(role)
		}
	}
	if sess.UserID == "" {
		if sub, err := claims.GetSubject(); err == nil {
			sess.UserID = sub
		}
	}
	if sess.Username == "" {
		if name, ok := claims["username"].(string); ok {
			sess.Username = name
		}
	}
	return sess
}
