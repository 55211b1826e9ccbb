package connectivity

// Switch is a manually toggled Source.
type Switch struct {
	b *broadcaster
}

func NewSwitch(initial State) *Switch {
	return &Switch{b: newBroadcaster(initial)}
}

func (s *Switch) Online() bool {
	return s.b.current() == Online
}

// Set changes the state, notifying subscribers on a transition.
func (s *Switch) Set(state State) {
	s.b.set(state)
}

func (s *Switch) Subscribe() (<-chan State, func()) {
	return s.b.subscribe()
}
