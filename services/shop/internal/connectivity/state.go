// Package connectivity reports whether the marketplace API is reachable.
package connectivity

import "sync"

type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Source is a connectivity signal. Subscribe streams transitions only; the
// returned func stops the stream.
type Source interface {
	Online() bool
	Subscribe() (<-chan State, func())
}

const subscriberBuffer = 8

// broadcaster holds the current state and fans out transitions.
type broadcaster struct {
	mu     sync.Mutex
	state  State
	subs   map[int]chan State
	nextID int
}

func newBroadcaster(initial State) *broadcaster {
	return &broadcaster{state: initial, subs: make(map[int]chan State)}
}

func (b *broadcaster) current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// set records s and reports whether it was a transition.
func (b *broadcaster) set(s State) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == s {
		return false
	}
	b.state = s
	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
		}
	}
	return true
}

func (b *broadcaster) subscribe() (<-chan State, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan State, subscriberBuffer)
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}
