// challenge/negotiator.go
package challenge

import (
	"encoding/json"

	"github.com/wfunc/quizduel/logger"
	"github.com/wfunc/quizduel/match"
	"github.com/wfunc/quizduel/network"
	"github.com/wfunc/quizduel/presence"
	"github.com/wfunc/quizduel/session"
)

// Negotiator runs the three-event challenge handshake. A challenge
// attempt is purely ephemeral: proposed, then accepted, declined or
// simply never answered (the proposing client's UI governs abandonment;
// no server-side timeout exists).
type Negotiator struct {
	sessions *session.Manager
	presence *presence.Tracker
	matches  *match.Manager
}

func NewNegotiator(sessions *session.Manager, tracker *presence.Tracker, matches *match.Manager) *Negotiator {
	return &Negotiator{
		sessions: sessions,
		presence: tracker,
		matches:  matches,
	}
}

// SendChallenge delivers a proposal to the target's connection. A busy
// or unreachable target is reported to the sender only.
func (n *Negotiator) SendChallenge(from *session.Session, p network.ChallengePayload) {
	if n.presence.InMatch(from.Identity) || n.presence.InMatch(p.ToUserID) {
		n.sendError(from, "One of the players is already in a match")
		return
	}

	target, ok := n.sessions.Resolve(p.ToUserID)
	if !ok {
		n.sendError(from, "User not connected")
		return
	}

	payload, _ := json.Marshal(network.ChallengeReceivedPayload{
		FromUserID: from.Identity,
		Data:       p.Data,
	})
	if err := target.Send(network.MsgTypeChallengeReceived, payload); err != nil {
		logger.Log.Warnf("Failed to deliver challenge from %s to %s: %v",
			from.Identity, p.ToUserID, err)
	}
}

// Decline relays a refusal back to the challenger. If the challenger is
// gone the failure goes to the decliner only, and is never retried.
func (n *Negotiator) Decline(from *session.Session, p network.DeclinePayload) {
	target, ok := n.sessions.Resolve(p.ToUserID)
	if !ok {
		n.sendError(from, "User not connected")
		return
	}

	payload, _ := json.Marshal(network.ChallengeDeclinedPayload{
		FromUserID: from.Identity,
		Message:    p.Message,
	})
	target.Send(network.MsgTypeChallengeDeclined, payload)
}

// Accept hands an accepted proposal to the match manager, which
// re-validates that both identities are still free (time has passed
// since the proposal) and reports any conflict to the accepting side.
func (n *Negotiator) Accept(from *session.Session, p network.ChallengePayload) {
	n.matches.CreateMatch(from, p.ToUserID, p.Data)
}

func (n *Negotiator) sendError(sess *session.Session, message string) {
	payload, _ := json.Marshal(network.ErrorPayload{Message: message})
	sess.Send(network.MsgTypeChallengeError, payload)
}
