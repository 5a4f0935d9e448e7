package match

import (
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/quizduel/network"
	"github.com/wfunc/quizduel/session"
)

func TestJoinSpectator_LiveMatch(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	roomID := f.startMatch(t, alice, bob)

	f.manager.HandleAnswer(alice, answerPayload(roomID, 1, 0, 10))

	specConn := &recordingConn{}
	spec := session.NewSession("sess_spec", specConn)
	f.manager.JoinSpectator(spec, roomID)

	assert.Equal(t, 1, f.sender.count(roomID, network.MsgTypeSpectatorCount))

	require.Equal(t, 1, specConn.count(network.MsgTypeMatchSnapshot))
	var snapshot network.MatchSnapshotPayload
	require.NoError(t, json.Unmarshal(specConn.last(network.MsgTypeMatchSnapshot), &snapshot))
	assert.Len(t, snapshot.Players, 2)
	assert.Len(t, snapshot.Questions, 2)
	require.Contains(t, snapshot.PlayerAnswers, "alice")
	assert.Len(t, snapshot.PlayerAnswers["alice"], 1)

	// The spectator is tracked for disconnect cleanup.
	rooms := f.rooms.RoomsSpectatedBy("sess_spec")
	require.Len(t, rooms, 1)
}

func TestJoinSpectator_UnknownMatch(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)

	specConn := &recordingConn{}
	spec := session.NewSession("sess_spec", specConn)
	f.manager.JoinSpectator(spec, "Mnope")

	assert.Equal(t, 1, specConn.count(network.MsgTypeSpectatorError))
	assert.Zero(t, specConn.count(network.MsgTypeMatchSnapshot))
}

func TestSpectatorDisconnect_UpdatesCount(t *testing.T) {
	f := newFixture(t, testGameConfig(), 2)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	roomID := f.startMatch(t, alice, bob)

	spec := session.NewSession("sess_spec", &recordingConn{})
	f.manager.JoinSpectator(spec, roomID)
	require.Equal(t, 1, f.sender.count(roomID, network.MsgTypeSpectatorCount))

	f.manager.HandleDisconnect(spec)

	require.Equal(t, 2, f.sender.count(roomID, network.MsgTypeSpectatorCount))
	var payload network.SpectatorCountPayload
	require.NoError(t, json.Unmarshal(f.sender.last(network.MsgTypeSpectatorCount), &payload))
	assert.Zero(t, payload.Count)

	saved, err := f.db.FindMatchByRoom(roomID)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", string(saved.Status),
		"a spectator leaving never touches the match")
	assert.Zero(t, atomic.LoadInt32(&f.metrics.spectators))
}
