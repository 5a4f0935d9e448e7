package server

import (
	"encoding/json"
	"time"

	"github.com/wfunc/quizduel/logger"
	"github.com/wfunc/quizduel/network"
	"github.com/wfunc/quizduel/session"
)

type handlerFunc func(*session.Session, []byte)

// buildHandlerTable fixes the closed inbound message set. Anything not in
// the table is logged and dropped.
func (s *QuizServer) buildHandlerTable() map[uint16]handlerFunc {
	return map[uint16]handlerFunc{
		network.MsgTypeHeartbeat:        s.handleHeartbeat,
		network.MsgTypeJoinSpectator:    s.handleJoinSpectator,
		network.MsgTypeSendChallenge:    s.handleSendChallenge,
		network.MsgTypeDeclineChallenge: s.handleDeclineChallenge,
		network.MsgTypeAcceptChallenge:  s.handleAcceptChallenge,
		network.MsgTypeSubmitAnswer:     s.handleSubmitAnswer,
		network.MsgTypeLeaveMatch:       s.handleLeaveMatch,
		network.MsgTypeRoomMessage:      s.handleRoomMessage,
		network.MsgTypeGetOnlineUsers:   s.handleGetOnlineUsers,
		network.MsgTypeGetLiveMatches:   s.handleGetLiveMatches,
	}
}

func (s *QuizServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	s.monitor.IncMessagesReceived()

	handler, ok := s.handlers[packet.MsgID]
	if !ok {
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		return
	}
	handler(sess, packet.Data)

	s.monitor.ObserveMessageLatency(time.Since(start))
}

func (s *QuizServer) handleHeartbeat(sess *session.Session, _ []byte) {
	sess.LastActive = time.Now()
}

func (s *QuizServer) handleJoinSpectator(sess *session.Session, data []byte) {
	var p network.RoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendMalformed(sess)
		return
	}
	s.matches.JoinSpectator(sess, p.RoomID)
}

func (s *QuizServer) handleSendChallenge(sess *session.Session, data []byte) {
	var p network.ChallengePayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendMalformed(sess)
		return
	}
	s.negotiator.SendChallenge(sess, p)
}

func (s *QuizServer) handleDeclineChallenge(sess *session.Session, data []byte) {
	var p network.DeclinePayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendMalformed(sess)
		return
	}
	s.negotiator.Decline(sess, p)
}

func (s *QuizServer) handleAcceptChallenge(sess *session.Session, data []byte) {
	var p network.ChallengePayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendMalformed(sess)
		return
	}
	s.negotiator.Accept(sess, p)
}

func (s *QuizServer) handleSubmitAnswer(sess *session.Session, data []byte) {
	var p network.AnswerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendMalformed(sess)
		return
	}
	s.matches.HandleAnswer(sess, p)
}

func (s *QuizServer) handleLeaveMatch(sess *session.Session, data []byte) {
	var p network.RoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendMalformed(sess)
		return
	}
	s.matches.HandleLeave(sess, p.RoomID)
}

// handleRoomMessage relays chat to the sender's room. Only participants
// and spectators of the room receive it; senders outside the room are
// dropped silently.
func (s *QuizServer) handleRoomMessage(sess *session.Session, data []byte) {
	var p network.RoomMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendMalformed(sess)
		return
	}

	rm, ok := s.roomManager.GetRoom(p.RoomID)
	if !ok {
		return
	}
	if _, participant := rm.Participant(sess.Identity); !participant && sess.Room() != p.RoomID {
		logger.Log.Debugw("Room message from outside the room",
			"identity", sess.Identity, "roomId", p.RoomID)
		return
	}

	p.From = sess.Identity
	out, _ := json.Marshal(p)
	s.broadcaster.BroadcastToRoom(p.RoomID, network.MsgTypeRoomMessage, out)
}

func (s *QuizServer) handleGetOnlineUsers(sess *session.Session, _ []byte) {
	payload, _ := json.Marshal(network.OnlineUsersListPayload{
		Users: s.matches.OnlineUsers(),
	})
	sess.Send(network.MsgTypeOnlineUsersList, payload)
}

func (s *QuizServer) handleGetLiveMatches(sess *session.Session, _ []byte) {
	payload, _ := json.Marshal(network.LiveMatchesListPayload{
		Matches: s.matches.LiveMatches(),
	})
	sess.Send(network.MsgTypeLiveMatchesList, payload)
}

func (s *QuizServer) sendMalformed(sess *session.Session) {
	payload, _ := json.Marshal(network.ErrorPayload{Message: "Malformed payload"})
	sess.Send(network.MsgTypeError, payload)
}
