// match/session.go
package match

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/quizduel/models"
	"github.com/wfunc/quizduel/state"
)

// MatchSession is the in-memory authoritative state of one live duel, as
// opposed to its durable record. Exactly one exists per live room id.
type MatchSession struct {
	RoomID  string
	Players [2]string
	Theme   string
	Machine *state.Machine

	// Match is the working copy of the durable record. Guarded by mutex
	// together with the advance bookkeeping below.
	Match    *models.Match
	armed    map[int]bool // question ids with a deadline timer armed
	advanced map[int]bool // question ids already advanced past
	mutex    sync.Mutex
}

func newMatchSession(roomID, theme string, a, b string, match *models.Match) *MatchSession {
	return &MatchSession{
		RoomID:   roomID,
		Players:  [2]string{a, b},
		Theme:    theme,
		Machine:  state.NewMachine(),
		Match:    match,
		armed:    make(map[int]bool),
		advanced: make(map[int]bool),
	}
}

// roomToken builds a room id unique per creation instant: a millisecond
// timestamp prefix plus both participant ids in stable order.
func roomToken(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	stamp := strings.ReplaceAll(time.Now().Format("20060102150405.000"), ".", "")
	return fmt.Sprintf("M%s_%s", stamp, strings.Join(ids, "_"))
}

// Timer keys. Every scheduled callback of a match is addressable so any
// terminal transition can cancel the lot.
func matchKey(roomID string) string {
	return "match:" + roomID
}

func questionKey(roomID string, questionID int) string {
	return fmt.Sprintf("question:%s:%d", roomID, questionID)
}

func advanceKey(roomID string, questionID int) string {
	return fmt.Sprintf("advance:%s:%d", roomID, questionID)
}

func graceKey(identity string) string {
	return "grace:" + identity
}
