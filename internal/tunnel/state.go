package tunnel

import (
	"fmt"
	"sync"
	"time"
)

// State is one of spec.md §4.6's closed set of tunnel connection states.
type State string

const (
	StateDisconnected State = "Disconnected"
	StateConnecting   State = "Connecting"
	StateConnected    State = "Connected"
	StateReconnecting State = "Reconnecting"
	StateFailed       State = "Failed"
)

// legalEdges is the strict transition table spec.md §4.6 requires (P11):
// the documented Disconnected→Connecting→Connected→Reconnecting→Failed→
// Disconnected cycle, plus the Connecting↔Reconnecting retry loop a working
// reconnection policy needs (spec.md's own S8 scenario exercises exactly
// this: Connected→Reconnecting→Connecting→Connected).
var legalEdges = map[State]map[State]bool{
	StateDisconnected: {StateConnecting: true},
	StateConnecting:   {StateConnected: true, StateReconnecting: true},
	StateConnected:    {StateReconnecting: true, StateDisconnected: true},
	StateReconnecting: {StateConnecting: true, StateFailed: true},
	StateFailed:       {StateDisconnected: true},
}

// Snapshot is an observable state transition delivered to subscribers.
type Snapshot struct {
	State     State
	Since     time.Time
	LatencyMS int64
	Attempt   int
	LastError error
}

// Machine is the Tunnel's observable state machine.
type Machine struct {
	mu        sync.Mutex
	current   Snapshot
	observers []chan Snapshot
}

// NewMachine starts a Machine in StateDisconnected.
func NewMachine() *Machine {
	return &Machine{current: Snapshot{State: StateDisconnected}}
}

// Current returns the current snapshot.
func (m *Machine) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe returns a channel receiving every future transition. The
// channel is buffered; slow subscribers drop transitions rather than block
// the tunnel's own progress.
func (m *Machine) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 16)
	m.mu.Lock()
	m.observers = append(m.observers, ch)
	m.mu.Unlock()
	return ch
}

// Transition moves the machine to next, rejecting any edge not in
// legalEdges (P11).
func (m *Machine) Transition(next Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !legalEdges[m.current.State][next.State] {
		return fmt.Errorf("tunnel: illegal transition %s -> %s", m.current.State, next.State)
	}
	m.current = next
	for _, ch := range m.observers {
		select {
		case ch <- next:
		default:
		}
	}
	return nil
}
