// network/messages.go
//
// Typed payloads for every message id. The inbound set is closed:
// the server dispatches on MsgID through one handler table and
// unmarshals into exactly one of these structs.
package network

import (
	"github.com/wfunc/quizduel/models"
)

// ChallengeData is what a challenger proposes: which theme and how many
// questions the duel should run.
type ChallengeData struct {
	Theme         string `json:"theme"`
	QuestionCount int    `json:"questionCount"`
}

type ChallengePayload struct {
	ToUserID string        `json:"toUserId"`
	Data     ChallengeData `json:"challengeData"`
}

type DeclinePayload struct {
	ToUserID string `json:"toUserId"`
	Message  string `json:"message"`
}

type AnswerPayload struct {
	RoomID      string `json:"roomId"`
	QuestionID  int    `json:"questionId"`
	AnswerIndex int    `json:"answerIndex"`
	TimeLeft    int    `json:"timeLeft"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type RoomMessagePayload struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
	From   string `json:"from,omitempty"`
}

type ChallengeReceivedPayload struct {
	FromUserID string        `json:"fromUserId"`
	Data       ChallengeData `json:"challengeData"`
}

type ChallengeDeclinedPayload struct {
	FromUserID string `json:"fromUserId"`
	Message    string `json:"message"`
}

// ErrorPayload is shared by challenge-error, match-error, spectator-error
// and the generic error message.
type ErrorPayload struct {
	Message string `json:"message"`
}

type MatchStartedPayload struct {
	RoomID    string               `json:"roomId"`
	Players   []models.UserProfile `json:"players"`
	Data      ChallengeData        `json:"challengeData"`
	Questions []models.Question    `json:"questions"`
	Message   string               `json:"message,omitempty"`
}

type MatchAlreadyInProgressPayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type PlayerAnsweredPayload struct {
	PlayerID    string `json:"playerId"`
	AnswerIndex int    `json:"answerIndex"`
	TimeLeft    int    `json:"timeLeft"`
}

type ForceNextQuestionPayload struct {
	NewIndex int `json:"newIndex"`
}

type ChallengeFinishedPayload struct {
	Players []models.PlayerResult `json:"players"`
	Winner  string                `json:"winner,omitempty"`
}

type SpectatorCountPayload struct {
	Count int `json:"count"`
}

type MatchSnapshotPayload struct {
	Players              []models.PlayerResult      `json:"players"`
	CurrentQuestionIndex int                        `json:"currentQuestionIndex"`
	PlayerAnswers        map[string][]models.Answer `json:"playerAnswers"`
	Questions            []models.Question          `json:"questions"`
	Status               models.MatchStatus         `json:"status"`
	TimeLeft             int                        `json:"timeLeft"`
}

type OnlineUsersListPayload struct {
	Users []models.UserProfile `json:"users"`
}

type LiveMatchesListPayload struct {
	Matches []models.MatchSummary `json:"matches"`
}
