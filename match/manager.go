// match/manager.go
package match

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/quizduel/config"
	"github.com/wfunc/quizduel/logger"
	"github.com/wfunc/quizduel/models"
	"github.com/wfunc/quizduel/network"
	"github.com/wfunc/quizduel/persistence"
	"github.com/wfunc/quizduel/presence"
	"github.com/wfunc/quizduel/questions"
	"github.com/wfunc/quizduel/room"
	"github.com/wfunc/quizduel/services"
	"github.com/wfunc/quizduel/session"
	"github.com/wfunc/quizduel/timer"
)

// Sender delivers events to a whole room or to a single identity.
// Satisfied by broadcast.RoomBroadcaster.
type Sender interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
	SendToUser(identity string, msgID uint16, data []byte) error
}

// Metrics is the slice of the monitor the match manager feeds. Nil is
// allowed (tests).
type Metrics interface {
	SetActiveMatches(count int)
	IncSettlements()
	IncSpectators()
	DecSpectators()
}

// Manager owns the lifecycle of every live match: creation after a
// successful challenge, answer collection and question advance, the
// match-wide and per-question deadlines, spectators, and teardown with
// exactly-once settlement.
type Manager struct {
	cfg        config.GameConfig
	db         persistence.Database
	loader     questions.Loader
	rooms      *room.Manager
	sessions   *session.Manager
	presence   *presence.Tracker
	timers     *timer.Manager
	sender     Sender
	settlement *services.SettlementService
	metrics    Metrics

	mutex  sync.RWMutex
	active map[string]*MatchSession
}

func NewManager(
	cfg config.GameConfig,
	db persistence.Database,
	loader questions.Loader,
	rooms *room.Manager,
	sessions *session.Manager,
	tracker *presence.Tracker,
	timers *timer.Manager,
	sender Sender,
	settlement *services.SettlementService,
	metrics Metrics,
) *Manager {
	return &Manager{
		cfg:        cfg,
		db:         db,
		loader:     loader,
		rooms:      rooms,
		sessions:   sessions,
		presence:   tracker,
		timers:     timers,
		sender:     sender,
		settlement: settlement,
		metrics:    metrics,
		active:     make(map[string]*MatchSession),
	}
}

func (m *Manager) get(roomID string) (*MatchSession, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	ms, ok := m.active[roomID]
	return ms, ok
}

// CreateMatch runs the whole match start sequence for an accepted
// challenge. Errors are reported to the initiating connection only; on
// any failure both identities end up free again and no in_progress
// record is left behind.
func (m *Manager) CreateMatch(initiator *session.Session, targetID string, data network.ChallengeData) {
	target, ok := m.sessions.Resolve(targetID)
	if !ok {
		m.sendError(initiator, network.MsgTypeChallengeError, "The other player disconnected")
		return
	}

	roomID := roomToken(initiator.Identity, targetID)

	// Single atomic acquire of both identities; this is the second
	// free-check since time has passed since the proposal.
	if err := m.presence.TrySetInMatch(initiator.Identity, targetID, roomID); err != nil {
		m.sendError(initiator, network.MsgTypeChallengeError, "One of the players is already in a match")
		return
	}

	release := func() {
		m.presence.Release(initiator.Identity)
		m.presence.Release(targetID)
	}

	qs, err := m.loader.Load(data.Theme, data.QuestionCount)
	if err != nil {
		release()
		if errors.Is(err, questions.ErrThemeNotFound) {
			m.sendError(initiator, network.MsgTypeMatchError, "Theme not found")
		} else {
			logger.Log.Errorf("Failed to load questions for theme %q: %v", data.Theme, err)
			m.sendError(initiator, network.MsgTypeMatchError, "Failed to load questions")
		}
		return
	}

	initiatorProfile, err := m.db.GetUser(initiator.Identity)
	if err == nil {
		var targetProfile *models.UserProfile
		targetProfile, err = m.db.GetUser(targetID)
		if err == nil {
			m.startMatch(initiator, target, initiatorProfile, targetProfile, roomID, data, qs)
			return
		}
	}
	release()
	if errors.Is(err, persistence.ErrRecordNotFound) {
		m.sendError(initiator, network.MsgTypeMatchError, "User not found")
	} else {
		logger.Log.Errorf("Failed to load profiles for match %s: %v", roomID, err)
		m.sendError(initiator, network.MsgTypeMatchError, "Failed to start match")
	}
}

func (m *Manager) startMatch(
	initiator, target *session.Session,
	initiatorProfile, targetProfile *models.UserProfile,
	roomID string,
	data network.ChallengeData,
	qs []models.Question,
) {
	match := &models.Match{
		RoomID: roomID,
		Theme:  data.Theme,
		Players: []models.PlayerResult{
			{
				UserID:         initiatorProfile.UserID,
				Username:       initiatorProfile.Username,
				ProfilePicture: initiatorProfile.ProfilePicture,
			},
			{
				UserID:         targetProfile.UserID,
				Username:       targetProfile.Username,
				ProfilePicture: targetProfile.ProfilePicture,
			},
		},
		Questions: qs,
		Status:    models.StatusInProgress,
		StartedAt: time.Now(),
	}

	if err := m.db.SaveMatch(match); err != nil {
		logger.Log.Errorf("Failed to persist match %s: %v", roomID, err)
		m.presence.Release(initiator.Identity)
		m.presence.Release(target.Identity)
		m.sendError(initiator, network.MsgTypeMatchError, "Failed to start match")
		return
	}

	rm := m.rooms.CreateRoom(roomID, data.Theme, m.sender)
	rm.AddParticipant(initiator)
	rm.AddParticipant(target)

	ms := newMatchSession(roomID, data.Theme, initiator.Identity, target.Identity, match)
	if err := ms.Machine.Transition(models.StatusInProgress); err != nil {
		// Fresh machine, cannot happen.
		logger.Log.Errorf("Match %s failed initial transition: %v", roomID, err)
	}

	m.mutex.Lock()
	m.active[roomID] = ms
	count := len(m.active)
	m.mutex.Unlock()
	if m.metrics != nil {
		m.metrics.SetActiveMatches(count)
	}

	m.timers.Schedule(matchKey(roomID), m.cfg.MatchTimeout, func() {
		m.onMatchTimeout(roomID)
	})

	payload, _ := json.Marshal(network.MatchStartedPayload{
		RoomID:    roomID,
		Players:   []models.UserProfile{*initiatorProfile, *targetProfile},
		Data:      data,
		Questions: qs,
		Message:   "The match can begin",
	})
	m.sender.BroadcastToRoom(roomID, network.MsgTypeMatchStarted, payload)

	logger.Log.Infow("Match started",
		"roomId", roomID, "theme", data.Theme,
		"players", ms.Players, "questions", len(qs))
}

// HandleAnswer records one submission and drives the question-advance
// protocol. A submission from an identity that is not in this match is
// logged and dropped, never surfaced.
func (m *Manager) HandleAnswer(sess *session.Session, p network.AnswerPayload) {
	roomID, inMatch := m.presence.RoomOf(sess.Identity)
	if !inMatch || roomID != p.RoomID {
		logger.Log.Debugw("Answer from identity not in match",
			"identity", sess.Identity, "roomId", p.RoomID)
		return
	}

	ms, ok := m.get(p.RoomID)
	if !ok {
		logger.Log.Debugw("Answer for unknown match", "roomId", p.RoomID)
		return
	}

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if ms.Machine.Current() != models.StatusInProgress {
		return
	}

	player := ms.Match.Player(sess.Identity)
	question := ms.Match.Question(p.QuestionID)
	if player == nil || question == nil {
		return
	}
	if player.HasAnswered(p.QuestionID) {
		logger.Log.Debugw("Duplicate answer ignored",
			"identity", sess.Identity, "questionId", p.QuestionID)
		return
	}

	elapsed := int(m.cfg.AnswerWindow.Seconds()) - p.TimeLeft
	if elapsed < 0 {
		elapsed = 0
	}

	player.Answers = append(player.Answers, models.Answer{
		QuestionID:  p.QuestionID,
		AnswerIndex: p.AnswerIndex,
		TimeTaken:   elapsed,
		IsCorrect:   p.AnswerIndex == question.Correct,
	})

	if err := m.db.SaveMatch(ms.Match); err != nil {
		// Treat the submission as failed: drop the in-memory answer too.
		player.Answers = player.Answers[:len(player.Answers)-1]
		logger.Log.Errorf("Failed to persist answer for match %s: %v", p.RoomID, err)
		return
	}

	// Correctness is never revealed here, only the choice and timing.
	answered, _ := json.Marshal(network.PlayerAnsweredPayload{
		PlayerID:    sess.Identity,
		AnswerIndex: p.AnswerIndex,
		TimeLeft:    p.TimeLeft,
	})
	m.sender.BroadcastToRoom(p.RoomID, network.MsgTypePlayerAnswered, answered)

	if ms.Match.AllAnswered(p.QuestionID) {
		// Coverage reached: the question deadline is obsolete, the
		// advance happens after a short delay so clients can render the
		// reveal.
		m.timers.Cancel(questionKey(p.RoomID, p.QuestionID))
		m.timers.Schedule(advanceKey(p.RoomID, p.QuestionID), m.cfg.AdvanceDelay, func() {
			m.advanceQuestion(p.RoomID, p.QuestionID)
		})
	} else if !ms.armed[p.QuestionID] {
		ms.armed[p.QuestionID] = true
		questionID := p.QuestionID
		m.timers.Schedule(questionKey(p.RoomID, questionID), m.cfg.QuestionTimeout, func() {
			m.onQuestionTimeout(p.RoomID, questionID)
		})
	}
}

// advanceQuestion moves the room past questionID exactly once: either a
// force-next-question broadcast or, after the last question, normal
// completion.
func (m *Manager) advanceQuestion(roomID string, questionID int) {
	ms, ok := m.get(roomID)
	if !ok {
		return
	}

	ms.mutex.Lock()
	if ms.Machine.Current() != models.StatusInProgress || ms.advanced[questionID] {
		ms.mutex.Unlock()
		return
	}
	ms.advanced[questionID] = true
	next := ms.Match.QuestionIndex(questionID) + 1
	total := len(ms.Match.Questions)
	ms.mutex.Unlock()

	if next > 0 && next < total {
		payload, _ := json.Marshal(network.ForceNextQuestionPayload{NewIndex: next})
		m.sender.BroadcastToRoom(roomID, network.MsgTypeForceNextQuestion, payload)
		return
	}

	m.finish(ms, "")
}

// onQuestionTimeout fires when the per-question deadline passes. The
// coverage re-check guards against an answer that arrived concurrently
// with expiry: if coverage completed, the delayed advance owns the move.
func (m *Manager) onQuestionTimeout(roomID string, questionID int) {
	ms, ok := m.get(roomID)
	if !ok {
		return
	}

	ms.mutex.Lock()
	covered := ms.Match.AllAnswered(questionID)
	ms.mutex.Unlock()
	if covered {
		return
	}

	logger.Log.Infow("Question deadline reached",
		"roomId", roomID, "questionId", questionID)
	m.advanceQuestion(roomID, questionID)
}

// onMatchTimeout fires when the match-wide deadline passes while the
// match is still running. No settlement: nobody actively quit, so the
// match is marked abandoned without rescoring.
func (m *Manager) onMatchTimeout(roomID string) {
	ms, ok := m.get(roomID)
	if !ok {
		return
	}

	if !ms.Machine.TryTransition(models.StatusInProgress, models.StatusAbandoned) {
		return
	}

	ms.mutex.Lock()
	now := time.Now()
	ms.Match.Status = models.StatusAbandoned
	ms.Match.CompletedAt = &now
	if err := m.db.SaveMatch(ms.Match); err != nil {
		logger.Log.Errorf("Failed to persist timed-out match %s: %v", roomID, err)
	}
	ms.mutex.Unlock()

	logger.Log.Infow("Match timed out", "roomId", roomID)
	m.sender.BroadcastToRoom(roomID, network.MsgTypeMatchTimeout, []byte("{}"))
	m.teardown(ms)
}

// HandleLeave settles a match the sender explicitly walked out of.
func (m *Manager) HandleLeave(sess *session.Session, roomID string) {
	current, inMatch := m.presence.RoomOf(sess.Identity)
	if !inMatch || current != roomID {
		return
	}
	ms, ok := m.get(roomID)
	if !ok {
		return
	}
	m.finish(ms, sess.Identity)
}

// HandleDisconnect reacts to a connection dropping: spectator counts are
// updated, and if the identity was mid-match the match abandons
// immediately. Presence bookkeeping itself is released on a grace delay
// so a fast reconnect is distinguishable from a real drop.
func (m *Manager) HandleDisconnect(sess *session.Session) {
	for _, rm := range m.rooms.RoomsSpectatedBy(sess.ID) {
		count, removed := rm.RemoveSpectator(sess.ID)
		if removed {
			if m.metrics != nil {
				m.metrics.DecSpectators()
			}
			payload, _ := json.Marshal(network.SpectatorCountPayload{Count: count})
			m.sender.BroadcastToRoom(rm.ID, network.MsgTypeSpectatorCount, payload)
		}
	}

	identity := sess.Identity
	if identity == "" {
		return
	}

	// A replaced connection (last-connect-wins) must not abandon the
	// identity's live match.
	if _, reconnected := m.sessions.Resolve(identity); reconnected {
		return
	}

	if roomID, inMatch := m.presence.RoomOf(identity); inMatch {
		if ms, ok := m.get(roomID); ok {
			m.finish(ms, identity)
		} else {
			m.presence.Release(identity)
		}
	}

	m.timers.Schedule(graceKey(identity), m.cfg.GracePeriod, func() {
		if _, online := m.sessions.Resolve(identity); !online {
			m.presence.Release(identity)
		}
	})
}

// finish is the single funnel for settlement. The status CAS guarantees
// that of all concurrently firing terminal triggers exactly one settles;
// the rest observe a terminal state and back off.
func (m *Manager) finish(ms *MatchSession, abandoningID string) {
	terminal := models.StatusCompleted
	if abandoningID != "" {
		terminal = models.StatusAbandoned
	}
	if !ms.Machine.TryTransition(models.StatusInProgress, terminal) {
		return
	}

	ms.mutex.Lock()
	result := m.settlement.Settle(ms.Match, abandoningID)
	players := append([]models.PlayerResult(nil), result.Players...)
	winner := result.Winner
	ms.mutex.Unlock()

	if m.metrics != nil {
		m.metrics.IncSettlements()
	}

	if abandoningID != "" {
		m.sender.BroadcastToRoom(ms.RoomID, network.MsgTypePlayerLeft, []byte("{}"))
	}
	payload, _ := json.Marshal(network.ChallengeFinishedPayload{
		Players: players,
		Winner:  winner,
	})
	m.sender.BroadcastToRoom(ms.RoomID, network.MsgTypeChallengeFinished, payload)

	logger.Log.Infow("Match settled",
		"roomId", ms.RoomID, "status", terminal, "winner", winner)
	m.teardown(ms)
}

// teardown cancels every timer of the match, removes the room and frees
// both identities. Mandatory on every terminal transition so no stale
// callback can resurrect a dead match.
func (m *Manager) teardown(ms *MatchSession) {
	m.timers.Cancel(matchKey(ms.RoomID))
	ms.mutex.Lock()
	for _, q := range ms.Match.Questions {
		m.timers.Cancel(questionKey(ms.RoomID, q.ID))
		m.timers.Cancel(advanceKey(ms.RoomID, q.ID))
	}
	ms.mutex.Unlock()

	m.rooms.RemoveRoom(ms.RoomID)
	m.presence.Release(ms.Players[0])
	m.presence.Release(ms.Players[1])

	m.mutex.Lock()
	delete(m.active, ms.RoomID)
	count := len(m.active)
	m.mutex.Unlock()
	if m.metrics != nil {
		m.metrics.SetActiveMatches(count)
	}
}

// CheckOngoing runs at connect time: an in-progress match is offered for
// resumption, a stale pending one is written off as abandoned.
func (m *Manager) CheckOngoing(sess *session.Session) {
	match, err := m.db.FindOngoingMatchForUser(sess.Identity)
	if err != nil {
		if !errors.Is(err, persistence.ErrRecordNotFound) {
			logger.Log.Errorf("Failed to look up ongoing match for %s: %v", sess.Identity, err)
		}
		return
	}

	if match.Status == models.StatusInProgress {
		payload, _ := json.Marshal(network.MatchAlreadyInProgressPayload{
			RoomID:  match.RoomID,
			Message: "You have a match in progress",
		})
		sess.Send(network.MsgTypeMatchAlreadyInProgress, payload)
		return
	}

	match.Status = models.StatusAbandoned
	if p := match.Player(sess.Identity); p != nil {
		p.Abandoned = true
	}
	if err := m.db.SaveMatch(match); err != nil {
		logger.Log.Errorf("Failed to abandon stale match %s: %v", match.RoomID, err)
	}
}

// LiveMatches returns every in-progress match for the lobby list.
func (m *Manager) LiveMatches() []models.MatchSummary {
	summaries, err := m.db.ListMatchesByStatus(models.StatusInProgress)
	if err != nil {
		logger.Log.Errorf("Failed to list live matches: %v", err)
		return nil
	}
	return summaries
}

// OnlineUsers returns the profiles of every connected identity that is
// not currently playing.
func (m *Manager) OnlineUsers() []models.UserProfile {
	var users []models.UserProfile
	for _, identity := range m.sessions.OnlineIdentities() {
		if m.presence.InMatch(identity) {
			continue
		}
		profile, err := m.db.GetUser(identity)
		if err != nil {
			continue
		}
		users = append(users, *profile)
	}
	return users
}

func (m *Manager) sendError(sess *session.Session, msgID uint16, message string) {
	payload, _ := json.Marshal(network.ErrorPayload{Message: message})
	sess.Send(msgID, payload)
}
