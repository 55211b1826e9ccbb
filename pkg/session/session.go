// Package session stores the current client identity in a kv.Store and
// reports changes to it, whether they were made by this process or by
// another one sharing the store.
package session

import (
	"context"
	"fmt"
	"slices"

	"ecomarket/pkg/domain"
	"ecomarket/pkg/kv"
)

// Persisted keys. usuarioLogueado carries the display name.
const (
	KeyToken    = "token"
	KeyUsername = "usuarioLogueado"
	KeyRole     = "role"
	KeyUserID   = "user_id"
)

var sessionKeys = []string{KeyToken, KeyUsername, KeyRole, KeyUserID}

// Event signals that the persisted session may have changed.
type Event struct {
	Remote bool
}

// Service is a typed view over the session fields of a kv.Store.
type Service struct {
	store kv.Store
}

// NewService wraps store.
func NewService(store kv.Store) *Service {
	return &Service{store: store}
}

// Load returns the persisted session. Missing keys read as empty, so an
// empty store yields the anonymous session.
func (s *Service) Load(ctx context.Context) (domain.Session, error) {
	var sess domain.Session
	fields := []struct {
		key string
		dst *string
	}{
		{KeyToken, &sess.Token},
		{KeyUsername, &sess.Username},
		{KeyUserID, &sess.UserID},
	}
	for _, f := range fields {
		v, _, err := s.store.Get(ctx, f.key)
		if err != nil {
			return domain.Session{}, fmt.Errorf("load %s: %w", f.key, err)
		}
		*f.dst = v
	}
	role, _, err := s.store.Get(ctx, KeyRole)
	if err != nil {
		return domain.Session{}, fmt.Errorf("load %s: %w", KeyRole, err)
	}
	sess.Role = domain.UserRole(role)
	return sess, nil
}

// Token returns the bearer token, or "" when anonymous.
func (s *Service) Token(ctx context.Context) (string, error) {
	v, _, err := s.store.Get(ctx, KeyToken)
	return v, err
}

// Save replaces the whole session. Empty fields are removed rather than
// stored as empty strings.
func (s *Service) Save(ctx context.Context, sess domain.Session) error {
	b := kv.Batch{Set: map[string]string{}}
	put := func(key, value string) {
		if value == "" {
			b.Delete = append(b.Delete, key)
			return
		}
		b.Set[key] = value
	}
	put(KeyToken, sess.Token)
	put(KeyUsername, sess.Username)
	put(KeyRole, string(sess.Role))
	put(KeyUserID, sess.UserID)
	if err := s.store.Apply(ctx, b); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes every session field in one write.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, sessionKeys...); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Subscribe streams an Event for every store change touching a session key.
// The returned func stops the stream.
func (s *Service) Subscribe() (<-chan Event, func()) {
	changes, cancel := s.store.Subscribe()
	out := make(chan Event, 1)
	go func() {
		defer close(out)
		for c := range changes {
			if !touchesSession(c.Keys) {
				continue
			}
			// A pending event already triggers a fresh Load.
			select {
			case out <- Event{Remote: c.Remote}:
			default:
			}
		}
	}()
	return out, cancel
}

func touchesSession(keys []string) bool {
	for _, k := range keys {
		if slices.Contains(sessionKeys, k) {
			return true
		}
	}
	return false
}
