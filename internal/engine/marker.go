package engine

import "sync"

type markerState int

const (
	markerInFlight markerState = iota + 1
	markerDone
)

// Marker is a per-key "already attempted" guard. Begin admits one caller
// per key; Done keeps the key closed for the rest of the process, Release
// reopens it so a later trigger can try again.
type Marker struct {
	mu    sync.Mutex
	state map[string]markerState
}

func NewMarker() *Marker {
	return &Marker{state: make(map[string]markerState)}
}

// Begin reports whether the caller may start an attempt for key.
func (m *Marker) Begin(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.state[key]; busy {
		return false
	}
	m.state[key] = markerInFlight
	return true
}

// Done records a successful attempt.
func (m *Marker) Done(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[key] = markerDone
}

// Release clears the key after a failed or repeatable attempt.
func (m *Marker) Release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, key)
}

// InFlight reports whether an attempt for key is running.
func (m *Marker) InFlight(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[key] == markerInFlight
}
