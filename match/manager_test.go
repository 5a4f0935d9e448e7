package match

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/quizduel/config"
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

// recordingConn captures every packet sent to one connection.
type recordingConn struct {
	mu      sync.Mutex
	packets []network.Packet
}

func (c *recordingConn) Send(msgID uint16, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, network.Packet{MsgID: msgID, Data: data})
	return nil
}

func (c *recordingConn) Close() error                         { return nil }
func (c *recordingConn) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (c *recordingConn) SetHeartbeat(interval time.Duration)  {}
func (c *recordingConn) ReadPacket() (*network.Packet, error) { return nil, nil }

func (c *recordingConn) count(msgID uint16) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.packets {
		if p.MsgID == msgID {
			n++
		}
	}
	return n
}

func (c *recordingConn) last(msgID uint16) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.packets) - 1; i >= 0; i-- {
		if c.packets[i].MsgID == msgID {
			return c.packets[i].Data
		}
	}
	return nil
}

// senderRecorder records room broadcasts and routes direct sends through
// the session registry.
type senderRecorder struct {
	sessions *session.Manager
	mu       sync.Mutex
	events   []broadcastEvent
}

type broadcastEvent struct {
	RoomID string
	MsgID  uint16
	Data   []byte
}

func (r *senderRecorder) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, broadcastEvent{RoomID: roomID, MsgID: msgID, Data: data})
	return nil
}

func (r *senderRecorder) SendToUser(identity string, msgID uint16, data []byte) error {
	sess, ok := r.sessions.Resolve(identity)
	if !ok {
		return fmt.Errorf("identity %s not connected", identity)
	}
	return sess.Send(msgID, data)
}

func (r *senderRecorder) count(roomID string, msgID uint16) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.RoomID == roomID && e.MsgID == msgID {
			n++
		}
	}
	return n
}

func (r *senderRecorder) last(msgID uint16) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].MsgID == msgID {
			return r.events[i].Data
		}
	}
	return nil
}

type fakeMetrics struct {
	active      int32
	settlements int32
	spectators  int32
}

func (f *fakeMetrics) SetActiveMatches(count int) { atomic.StoreInt32(&f.active, int32(count)) }
func (f *fakeMetrics) IncSettlements()            { atomic.AddInt32(&f.settlements, 1) }
func (f *fakeMetrics) IncSpectators()             { atomic.AddInt32(&f.spectators, 1) }
func (f *fakeMetrics) DecSpectators()             { atomic.AddInt32(&f.spectators, -1) }

// fakeLoader hands out a fixed question list; every correct index is 0.
type fakeLoader struct {
	questions int
}

func (l *fakeLoader) Load(theme string, count int) ([]models.Question, error) {
	if theme == "Missing" {
		return nil, questions.ErrThemeNotFound
	}
	n := l.questions
	if count > 0 && count < n {
		n = count
	}
	qs := make([]models.Question, n)
	for i := range qs {
		qs[i] = models.Question{
			ID:      i + 1,
			Type:    models.QuestionChoice,
			Prompt:  fmt.Sprintf("question %d", i+1),
			Options: []string{"right", "wrong"},
			Correct: 0,
		}
	}
	return qs, nil
}

type fixture struct {
	cfg      config.GameConfig
	db       *persistence.Memory
	sessions *session.Manager
	tracker  *presence.Tracker
	rooms    *room.Manager
	timers   *timer.Manager
	sender   *senderRecorder
	metrics  *fakeMetrics
	manager  *Manager
}

func testGameConfig() config.GameConfig {
	cfg := config.DefaultGameConfig()
	cfg.MatchTimeout = time.Second
	cfg.QuestionTimeout = 80 * time.Millisecond
	cfg.AdvanceDelay = 20 * time.Millisecond
	cfg.GracePeriod = 40 * time.Millisecond
	return cfg
}

func newFixture(t *testing.T, cfg config.GameConfig, questionCount int) *fixture {
	t.Helper()

	f := &fixture{
		cfg:      cfg,
		db:       persistence.NewMemory(),
		sessions: session.NewManager(),
		tracker:  presence.NewTracker(),
		rooms:    room.NewRoomManager(),
		timers:   timer.NewManager(5 * time.Millisecond),
		metrics:  &fakeMetrics{},
	}
	t.Cleanup(f.timers.Stop)

	f.sender = &senderRecorder{sessions: f.sessions}
	progression := services.NewProgressionService(f.db)
	settlement := services.NewSettlementService(cfg, f.db, progression)
	f.manager = NewManager(
		cfg, f.db, &fakeLoader{questions: questionCount},
		f.rooms, f.sessions, f.tracker, f.timers,
		f.sender, settlement, f.metrics,
	)
	return f
}

func (f *fixture) connect(t *testing.T, identity string) (*session.Session, *recordingConn) {
	t.Helper()
	conn := &recordingConn{}
	sess := session.NewSession("sess_"+identity, conn)
	f.sessions.Register(identity, sess)
	require.NoError(t, f.db.SaveUser(models.NewUserProfile(identity, "name_"+identity)))
	return sess, conn
}

func (f *fixture) startMatch(t *testing.T, a, b *session.Session) string {
	t.Helper()
	f.manager.CreateMatch(a, b.Identity, network.ChallengeData{Theme: "Science", QuestionCount: 2})
	roomID, ok := f.tracker.RoomOf(a.Identity)
	require.True(t, ok, "initiator should be bound to a room after match creation")
	return roomID
}

func answerPayload(roomID string, questionID, answerIndex, timeLeft int) network.AnswerPayload {
	return network.AnswerPayload{
		RoomID:      roomID,
		QuestionID:  questionID,
		AnswerIndex: answerIndex,
		TimeLeft:    timeLeft,
	}
}

func TestCreateMatch_StartsMatch(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")

	roomID := f.startMatch(t, alice, bob)

	assert.Equal(t, 1, f.sender.count(roomID, network.MsgTypeMatchStarted))

	var started network.MatchStartedPayload
	require.NoError(t, json.Unmarshal(f.sender.last(network.MsgTypeMatchStarted), &started))
	assert.Equal(t, roomID, started.RoomID)
	assert.Len(t, started.Players, 2)
	assert.Len(t, started.Questions, 2)

	bobRoom, ok := f.tracker.RoomOf("bob")
	require.True(t, ok)
	assert.Equal(t, roomID, bobRoom)

	saved, err := f.db.FindMatchByRoom(roomID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, saved.Status)

	_, exists := f.rooms.GetRoom(roomID)
	assert.True(t, exists, "a live room should back the match")
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.metrics.active))
}

func TestCreateMatch_TargetBusy(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	carol, carolConn := f.connect(t, "carol")

	f.startMatch(t, alice, bob)
	f.manager.CreateMatch(carol, "bob", network.ChallengeData{Theme: "Science", QuestionCount: 2})

	assert.Equal(t, 1, carolConn.count(network.MsgTypeChallengeError))
	assert.False(t, f.tracker.InMatch("carol"), "a refused challenge must leave the sender free")
}

func TestCreateMatch_ThemeNotFound(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, aliceConn := f.connect(t, "alice")
	f.connect(t, "bob")

	f.manager.CreateMatch(alice, "bob", network.ChallengeData{Theme: "Missing", QuestionCount: 2})

	assert.Equal(t, 1, aliceConn.count(network.MsgTypeMatchError))
	assert.False(t, f.tracker.InMatch("alice"), "both identities must be released on failure")
	assert.False(t, f.tracker.InMatch("bob"))
}

func TestCreateMatch_TargetOffline(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, aliceConn := f.connect(t, "alice")

	f.manager.CreateMatch(alice, "ghost", network.ChallengeData{Theme: "Science", QuestionCount: 2})

	assert.Equal(t, 1, aliceConn.count(network.MsgTypeChallengeError))
	assert.False(t, f.tracker.InMatch("alice"))
}

func TestHandleAnswer_FullMatch(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	roomID := f.startMatch(t, alice, bob)

	// Question 1: alice correct and fast, bob wrong.
	f.manager.HandleAnswer(alice, answerPayload(roomID, 1, 0, 10))
	f.manager.HandleAnswer(bob, answerPayload(roomID, 1, 1, 10))

	assert.Equal(t, 2, f.sender.count(roomID, network.MsgTypePlayerAnswered))

	// Coverage reached: the delayed advance fires.
	assert.Eventually(t, func() bool {
		return f.sender.count(roomID, network.MsgTypeForceNextQuestion) == 1
	}, time.Second, 5*time.Millisecond)

	var advance network.ForceNextQuestionPayload
	require.NoError(t, json.Unmarshal(f.sender.last(network.MsgTypeForceNextQuestion), &advance))
	assert.Equal(t, 1, advance.NewIndex)

	// Question 2: alice correct again, bob correct but at the window edge.
	f.manager.HandleAnswer(alice, answerPayload(roomID, 2, 0, 10))
	f.manager.HandleAnswer(bob, answerPayload(roomID, 2, 0, 0))

	assert.Eventually(t, func() bool {
		return f.sender.count(roomID, network.MsgTypeChallengeFinished) == 1
	}, time.Second, 5*time.Millisecond)

	var finished network.ChallengeFinishedPayload
	require.NoError(t, json.Unmarshal(f.sender.last(network.MsgTypeChallengeFinished), &finished))
	assert.Equal(t, "alice", finished.Winner)

	// TimeTaken = window - timeLeft: alice (10+10)*2, bob 10+0.
	aliceResult := finished.Players[0]
	if aliceResult.UserID != "alice" {
		aliceResult = finished.Players[1]
	}
	assert.Equal(t, 40, aliceResult.Score)

	saved, err := f.db.FindMatchByRoom(roomID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, saved.Status)

	assert.False(t, f.tracker.InMatch("alice"), "teardown must free both identities")
	assert.False(t, f.tracker.InMatch("bob"))
	_, exists := f.rooms.GetRoom(roomID)
	assert.False(t, exists, "teardown must remove the room")
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.metrics.settlements))
}

func TestHandleAnswer_DuplicateIgnored(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	roomID := f.startMatch(t, alice, bob)

	f.manager.HandleAnswer(alice, answerPayload(roomID, 1, 0, 10))
	f.manager.HandleAnswer(alice, answerPayload(roomID, 1, 1, 5))

	assert.Equal(t, 1, f.sender.count(roomID, network.MsgTypePlayerAnswered),
		"a second submission for the same question must be dropped")

	saved, err := f.db.FindMatchByRoom(roomID)
	require.NoError(t, err)
	aliceResult := saved.Player("alice")
	require.NotNil(t, aliceResult)
	require.Len(t, aliceResult.Answers, 1)
	assert.Equal(t, 0, aliceResult.Answers[0].AnswerIndex, "the first answer is the one that sticks")
}

func TestHandleAnswer_OutsiderDropped(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	mallory, _ := f.connect(t, "mallory")
	roomID := f.startMatch(t, alice, bob)

	f.manager.HandleAnswer(mallory, answerPayload(roomID, 1, 0, 10))

	assert.Equal(t, 0, f.sender.count(roomID, network.MsgTypePlayerAnswered))
	saved, err := f.db.FindMatchByRoom(roomID)
	require.NoError(t, err)
	assert.Nil(t, saved.Player("mallory"))
}

func TestQuestionTimeout_AdvancesWithPartialCoverage(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	roomID := f.startMatch(t, alice, bob)

	// Only alice answers; the question deadline forces the advance.
	f.manager.HandleAnswer(alice, answerPayload(roomID, 1, 0, 10))

	assert.Eventually(t, func() bool {
		return f.sender.count(roomID, network.MsgTypeForceNextQuestion) == 1
	}, time.Second, 5*time.Millisecond)

	saved, err := f.db.FindMatchByRoom(roomID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, saved.Status, "a question timeout never ends the match")
}

func TestMatchTimeout_AbandonsWithoutSettlement(t *testing.T) {
	cfg := testGameConfig()
	cfg.MatchTimeout = 60 * time.Millisecond
	f := newFixture(t, cfg, 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	roomID := f.startMatch(t, alice, bob)

	assert.Eventually(t, func() bool {
		return f.sender.count(roomID, network.MsgTypeMatchTimeout) == 1
	}, time.Second, 5*time.Millisecond)

	saved, err := f.db.FindMatchByRoom(roomID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAbandoned, saved.Status)
	assert.Empty(t, saved.Winner, "a timeout declares no winner")
	assert.Equal(t, 0, f.sender.count(roomID, network.MsgTypeChallengeFinished))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.metrics.settlements))
	assert.False(t, f.tracker.InMatch("alice"))
	assert.False(t, f.tracker.InMatch("bob"))
}

func TestHandleLeave_SettlesForfeit(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	roomID := f.startMatch(t, alice, bob)

	f.manager.HandleAnswer(bob, answerPayload(roomID, 1, 0, 10))
	f.manager.HandleLeave(bob, roomID)

	assert.Equal(t, 1, f.sender.count(roomID, network.MsgTypePlayerLeft))
	assert.Equal(t, 1, f.sender.count(roomID, network.MsgTypeChallengeFinished))

	saved, err := f.db.FindMatchByRoom(roomID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAbandoned, saved.Status)
	assert.Equal(t, "alice", saved.Winner)

	quitter := saved.Player("bob")
	require.NotNil(t, quitter)
	assert.True(t, quitter.Abandoned)
	assert.Zero(t, quitter.Score)
	assert.Len(t, quitter.Answers, 1, "recorded answers survive the forfeit")

	winner := saved.Player("alice")
	require.NotNil(t, winner)
	assert.Equal(t, f.cfg.ForfeitScore, winner.Score)
}

func TestHandleLeave_WrongRoomIgnored(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	roomID := f.startMatch(t, alice, bob)

	f.manager.HandleLeave(alice, "Msome_other_room")

	saved, err := f.db.FindMatchByRoom(roomID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, saved.Status)
}

func TestFinish_ExactlyOnce(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	roomID := f.startMatch(t, alice, bob)

	// Both players race to leave; only one terminal trigger may settle.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		sess := alice
		if i%2 == 1 {
			sess = bob
		}
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			f.manager.HandleLeave(s, roomID)
		}(sess)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.metrics.settlements))
	assert.Equal(t, 1, f.sender.count(roomID, network.MsgTypeChallengeFinished))
}

func TestHandleDisconnect_AbandonsMatch(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	roomID := f.startMatch(t, alice, bob)

	f.sessions.Remove(bob)
	f.manager.HandleDisconnect(bob)

	assert.Equal(t, 1, f.sender.count(roomID, network.MsgTypeChallengeFinished))

	saved, err := f.db.FindMatchByRoom(roomID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAbandoned, saved.Status)
	assert.Equal(t, "alice", saved.Winner)
}

func TestHandleDisconnect_StaleConnectionIgnored(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	roomID := f.startMatch(t, alice, bob)

	// bob reconnects; the displaced connection tears down afterwards.
	stale := bob
	replacement := session.NewSession("sess_bob_2", &recordingConn{})
	f.sessions.Register("bob", replacement)
	f.sessions.Remove(stale)
	f.manager.HandleDisconnect(stale)

	saved, err := f.db.FindMatchByRoom(roomID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, saved.Status,
		"a replaced connection must not abandon the live match")
	assert.True(t, f.tracker.InMatch("bob"))
}

func TestHandleDisconnect_GraceReleasesPresence(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, aliceConn := f.connect(t, "alice")

	// alice is bound to a room the manager does not know (state left over
	// from a crash); the disconnect path still frees the identity.
	require.NoError(t, f.tracker.TrySetInMatch("alice", "someone", "Mstale"))
	f.tracker.Release("someone")

	f.sessions.Remove(alice)
	f.manager.HandleDisconnect(alice)

	assert.Eventually(t, func() bool {
		return !f.tracker.InMatch("alice")
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, aliceConn.count(network.MsgTypeChallengeFinished))
}

func TestCheckOngoing(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, aliceConn := f.connect(t, "alice")

	require.NoError(t, f.db.SaveMatch(&models.Match{
		RoomID: "Mongoing",
		Players: []models.PlayerResult{
			{UserID: "alice"}, {UserID: "bob"},
		},
		Status:    models.StatusInProgress,
		StartedAt: time.Now(),
	}))

	f.manager.CheckOngoing(alice)

	require.Equal(t, 1, aliceConn.count(network.MsgTypeMatchAlreadyInProgress))
	var payload network.MatchAlreadyInProgressPayload
	require.NoError(t, json.Unmarshal(aliceConn.last(network.MsgTypeMatchAlreadyInProgress), &payload))
	assert.Equal(t, "Mongoing", payload.RoomID)
}

func TestCheckOngoing_StalePendingAbandoned(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, aliceConn := f.connect(t, "alice")

	require.NoError(t, f.db.SaveMatch(&models.Match{
		RoomID: "Mpending",
		Players: []models.PlayerResult{
			{UserID: "alice"}, {UserID: "bob"},
		},
		Status:    models.StatusPending,
		StartedAt: time.Now(),
	}))

	f.manager.CheckOngoing(alice)

	assert.Zero(t, aliceConn.count(network.MsgTypeMatchAlreadyInProgress))
	saved, err := f.db.FindMatchByRoom("Mpending")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAbandoned, saved.Status)
	player := saved.Player("alice")
	require.NotNil(t, player)
	assert.True(t, player.Abandoned)
}

func TestOnlineUsers_SkipsPlayersInMatch(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	f.connect(t, "carol")
	f.startMatch(t, alice, bob)

	users := f.manager.OnlineUsers()
	require.Len(t, users, 1)
	assert.Equal(t, "carol", users[0].UserID)
}

func TestLiveMatches(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	roomID := f.startMatch(t, alice, bob)

	matches := f.manager.LiveMatches()
	require.Len(t, matches, 1)
	assert.Equal(t, roomID, matches[0].RoomID)
	assert.Equal(t, "Science", matches[0].Theme)
}
