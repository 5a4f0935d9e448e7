package state

import (
	"errors"
	"sync"

	"github.com/wfunc/quizduel/models"
)

// ErrTransitionNotAllowed is returned when a status transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// transitions is the closed set of legal moves. Terminal states have no
// outgoing edges, so nothing ever leaves completed or abandoned.
var transitions = map[models.MatchStatus][]models.MatchStatus{
	models.StatusPending:    {models.StatusInProgress, models.StatusAbandoned},
	models.StatusInProgress: {models.StatusCompleted, models.StatusAbandoned},
}

// Machine guards one match's status. TryTransition doubles as the
// settle-once guard: only the first terminal trigger wins the CAS out of
// in_progress, every later one observes a terminal state and backs off.
type Machine struct {
	mutex   sync.Mutex
	current models.MatchStatus
}

func NewMachine() *Machine {
	return &Machine{current: models.StatusPending}
}

func (m *Machine) Current() models.MatchStatus {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.current
}

// Transition moves to the target status or fails without side effects.
func (m *Machine) Transition(to models.MatchStatus) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !allowed(m.current, to) {
		return ErrTransitionNotAllowed
	}
	m.current = to
	return nil
}

// TryTransition performs the move only if the machine is still at from.
// Returns false when another transition got there first.
func (m *Machine) TryTransition(from, to models.MatchStatus) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.current != from || !allowed(from, to) {
		return false
	}
	m.current = to
	return true
}

// Terminal reports whether the machine reached a final status.
func (m *Machine) Terminal() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(transitions[m.current]) == 0
}

func allowed(from, to models.MatchStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
