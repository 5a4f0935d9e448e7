// match/spectator.go
package match

import (
	"encoding/json"
	"errors"

	"github.com/wfunc/quizduel/logger"
	"github.com/wfunc/quizduel/models"
	"github.com/wfunc/quizduel/network"
	"github.com/wfunc/quizduel/persistence"
	"github.com/wfunc/quizduel/session"
)

// JoinSpectator attaches a read-only connection to a match room and
// hands it one consistent snapshot of the in-progress state. The
// connection is never treated as a participant anywhere else.
func (m *Manager) JoinSpectator(sess *session.Session, roomID string) {
	match := m.snapshotMatch(roomID)
	if match == nil {
		m.sendError(sess, network.MsgTypeSpectatorError, "Match not found")
		return
	}

	if rm, ok := m.rooms.GetRoom(roomID); ok {
		count := rm.AddSpectator(sess)
		if m.metrics != nil {
			m.metrics.IncSpectators()
		}
		payload, _ := json.Marshal(network.SpectatorCountPayload{Count: count})
		m.sender.BroadcastToRoom(roomID, network.MsgTypeSpectatorCount, payload)
	}

	answers := make(map[string][]models.Answer, len(match.Players))
	for i := range match.Players {
		answers[match.Players[i].UserID] = match.Players[i].Answers
	}

	snapshot, _ := json.Marshal(network.MatchSnapshotPayload{
		Players:              match.Players,
		CurrentQuestionIndex: match.CurrentQuestionIndex(),
		PlayerAnswers:        answers,
		Questions:            match.Questions,
		Status:               match.Status,
		TimeLeft:             int(m.cfg.AnswerWindow.Seconds()),
	})
	sess.Send(network.MsgTypeMatchSnapshot, snapshot)
}

// snapshotMatch prefers the live in-memory record; finished matches are
// still spectatable from the durable store.
func (m *Manager) snapshotMatch(roomID string) *models.Match {
	if ms, ok := m.get(roomID); ok {
		ms.mutex.Lock()
		defer ms.mutex.Unlock()
		data, _ := json.Marshal(ms.Match)
		var copy models.Match
		if err := json.Unmarshal(data, &copy); err == nil {
			return &copy
		}
	}

	match, err := m.db.FindMatchByRoom(roomID)
	if err != nil {
		if !errors.Is(err, persistence.ErrRecordNotFound) {
			logger.Log.Errorf("Failed to load match %s for spectator: %v", roomID, err)
		}
		return nil
	}
	return match
}
