package state

import (
	"sync"
	"testing"

	"github.com/wfunc/quizduel/models"
)

func TestMachine_InitialState(t *testing.T) {
	m := NewMachine()
	if m.Current() != models.StatusPending {
		t.Errorf("Expected initial status pending, got %s", m.Current())
	}
	if m.Terminal() {
		t.Error("A fresh machine should not be terminal")
	}
}

func TestMachine_Transition(t *testing.T) {
	m := NewMachine()

	if err := m.Transition(models.StatusInProgress); err != nil {
		t.Fatalf("pending -> in_progress should be allowed, got: %v", err)
	}
	if err := m.Transition(models.StatusCompleted); err != nil {
		t.Fatalf("in_progress -> completed should be allowed, got: %v", err)
	}
	if !m.Terminal() {
		t.Error("completed should be terminal")
	}
}

func TestMachine_Transition_NotAllowed(t *testing.T) {
	m := NewMachine()

	// pending cannot complete directly.
	if err := m.Transition(models.StatusCompleted); err != ErrTransitionNotAllowed {
		t.Errorf("Expected ErrTransitionNotAllowed, got: %v", err)
	}
	if m.Current() != models.StatusPending {
		t.Errorf("A refused transition must not change the status, got %s", m.Current())
	}
}

func TestMachine_TerminalHasNoExit(t *testing.T) {
	for _, terminal := range []models.MatchStatus{models.StatusCompleted, models.StatusAbandoned} {
		m := NewMachine()
		m.Transition(models.StatusInProgress)
		if err := m.Transition(terminal); err != nil {
			t.Fatalf("in_progress -> %s should be allowed, got: %v", terminal, err)
		}

		for _, next := range []models.MatchStatus{
			models.StatusPending, models.StatusInProgress,
			models.StatusCompleted, models.StatusAbandoned,
		} {
			if err := m.Transition(next); err != ErrTransitionNotAllowed {
				t.Errorf("%s -> %s should be refused, got: %v", terminal, next, err)
			}
		}
	}
}

func TestMachine_TryTransition(t *testing.T) {
	m := NewMachine()
	m.Transition(models.StatusInProgress)

	if !m.TryTransition(models.StatusInProgress, models.StatusCompleted) {
		t.Fatal("TryTransition from the current status should succeed")
	}
	if m.TryTransition(models.StatusInProgress, models.StatusAbandoned) {
		t.Fatal("TryTransition from a stale status should fail")
	}
	if m.Current() != models.StatusCompleted {
		t.Errorf("Expected completed, got %s", m.Current())
	}
}

func TestMachine_TryTransition_ExactlyOneWinner(t *testing.T) {
	m := NewMachine()
	m.Transition(models.StatusInProgress)

	const attempts = 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < attempts; i++ {
		terminal := models.StatusCompleted
		if i%2 == 1 {
			terminal = models.StatusAbandoned
		}
		wg.Add(1)
		go func(to models.MatchStatus) {
			defer wg.Done()
			if m.TryTransition(models.StatusInProgress, to) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(terminal)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("Expected exactly one winning transition out of in_progress, got %d", winners)
	}
	if !m.Terminal() {
		t.Error("The machine should be terminal after the race")
	}
}
