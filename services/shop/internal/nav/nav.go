// Package nav tracks the client's current route, standing in for the
// browser location.
package nav

import "sync"

// LoginPath is where anonymous clients and expired sessions land.
const LoginPath = "/login"

// Navigator reports and changes the current route.
type Navigator interface {
	Path() string
	Navigate(path string)
}

// History is an in-memory Navigator that remembers every visited path.
type History struct {
	mu      sync.Mutex
	visited []string
}

// NewHistory starts at start.
func NewHistory(start string) *History {
	return &History{visited: []string{start}}
}

func (h *History) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.visited[len(h.visited)-1]
}

func (h *History) Navigate(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.visited = append(h.visited, path)
}

// Visited returns a copy of the navigation history, oldest first.
func (h *History) Visited() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.visited...)
}
