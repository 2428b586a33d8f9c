// Package status tracks the lifecycle of a notification synchronizer.
package status

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/thriveup/internal/bus"
)

// State is a synchronizer session state.
type State string

const (
	Idle      State = "IDLE"
	Listening State = "LISTENING"
	Stopped   State = "STOPPED"
)

// Stage is the progress of a single message through the synchronizer.
// Stages are logged per message, not tracked by the Machine.
type Stage string

const (
	StageListeningMessages Stage = "listening_messages"
	StageResolvingSender   Stage = "resolving_sender"
	StageNotified          Stage = "notified"
	StageDismissed         Stage = "dismissed"
)

// ErrInvalidTransition is returned when a transition is not allowed from
// the current state.
var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[State][]State{
	Idle:      {Listening, Stopped},
	Listening: {Stopped},
}

// Machine tracks and enforces synchronizer state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the Idle state. A nil bus disables
// change events.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to the given state and publishes the change.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.KindStateChanged, StateChange{From: from, To: to})
	}
	return nil
}

// StateChange is the payload of state change events.
type StateChange struct {
	From State
	To   State
}
