// presence/presence.go
package presence

import (
	"errors"
	"sync"
)

// ErrPlayerBusy is returned when either identity of a pair is already
// bound to a live match.
var ErrPlayerBusy = errors.New("player already in a match")

// Tracker records which identities are currently in a match and which
// room holds them. An identity is in at most one room at any instant.
type Tracker struct {
	mutex   sync.Mutex
	inMatch map[string]string // identity -> roomID
}

func NewTracker() *Tracker {
	return &Tracker{
		inMatch: make(map[string]string),
	}
}

// TrySetInMatch atomically checks that both identities are free and, only
// then, marks both as playing in roomID. The single lock scope is what
// prevents two simultaneous challenges from both observing "free".
func (t *Tracker) TrySetInMatch(a, b, roomID string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, busy := t.inMatch[a]; busy {
		return ErrPlayerBusy
	}
	if _, busy := t.inMatch[b]; busy {
		return ErrPlayerBusy
	}

	t.inMatch[a] = roomID
	t.inMatch[b] = roomID
	return nil
}

// Release returns an identity to free status. Idempotent.
func (t *Tracker) Release(identity string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.inMatch, identity)
}

// RoomOf returns the room an identity is playing in, if any.
func (t *Tracker) RoomOf(identity string) (string, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	roomID, ok := t.inMatch[identity]
	return roomID, ok
}

// InMatch reports whether an identity is currently playing.
func (t *Tracker) InMatch(identity string) bool {
	_, ok := t.RoomOf(identity)
	return ok
}

// Reset clears all presence state. Test hook.
func (t *Tracker) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.inMatch = make(map[string]string)
}
