package models

import (
	"time"
)

// MatchStatus is the lifecycle tag of a durable match. Transitions only
// move forward: pending -> in_progress -> completed | abandoned.
type MatchStatus string

const (
	StatusPending    MatchStatus = "pending"
	StatusInProgress MatchStatus = "in_progress"
	StatusCompleted  MatchStatus = "completed"
	StatusAbandoned  MatchStatus = "abandoned"
)

// QuestionType tags the kind of question a theme file declares.
type QuestionType string

const (
	QuestionChoice  QuestionType = "multiple_choice"
	QuestionBoolean QuestionType = "true_false"
	QuestionOpen    QuestionType = "free_form"
)

// Question is immutable for the lifetime of a match. The correct option
// index is never sent in per-answer broadcasts, only in the final payload.
type Question struct {
	ID          int          `json:"id"`
	Type        QuestionType `json:"type"`
	Prompt      string       `json:"question"`
	Options     []string     `json:"options"`
	Correct     int          `json:"correct"`
	Explanation string       `json:"explanation,omitempty"`
}

// Answer records one submission. IsCorrect is computed when the answer
// arrives and never recomputed afterwards.
type Answer struct {
	QuestionID  int  `json:"questionId"`
	AnswerIndex int  `json:"answerIndex"`
	TimeTaken   int  `json:"timeTaken"`
	IsCorrect   bool `json:"isCorrect"`
}

// PlayerResult carries one participant's side of a match. Username and
// picture are denormalized at match start so later profile edits don't
// rewrite history.
type PlayerResult struct {
	UserID         string   `json:"userId"`
	Username       string   `json:"username"`
	ProfilePicture string   `json:"profilePicture,omitempty"`
	Score          int      `json:"score"`
	CorrectAnswers int      `json:"correctAnswers"`
	Answers        []Answer `json:"answers"`
	Abandoned      bool     `json:"abandoned"`
}

// Match is the durable record of a duel. While a session is live the
// in-memory copy owned by the match manager is authoritative.
type Match struct {
	RoomID      string         `json:"roomId"`
	Players     []PlayerResult `json:"players"`
	Theme       string         `json:"theme"`
	Questions   []Question     `json:"questions"`
	Status      MatchStatus    `json:"status"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Winner      string         `json:"winner,omitempty"`
}

// Player returns the participant entry for userID.
func (m *Match) Player(userID string) *PlayerResult {
	for i := range m.Players {
		if m.Players[i].UserID == userID {
			return &m.Players[i]
		}
	}
	return nil
}

// Opponent returns the participant entry that is not userID.
func (m *Match) Opponent(userID string) *PlayerResult {
	for i := range m.Players {
		if m.Players[i].UserID != userID {
			return &m.Players[i]
		}
	}
	return nil
}

// Question returns the question with the given id.
func (m *Match) Question(questionID int) *Question {
	for i := range m.Questions {
		if m.Questions[i].ID == questionID {
			return &m.Questions[i]
		}
	}
	return nil
}

// QuestionIndex returns the position of questionID in the fixed question
// list, or -1.
func (m *Match) QuestionIndex(questionID int) int {
	for i := range m.Questions {
		if m.Questions[i].ID == questionID {
			return i
		}
	}
	return -1
}

// HasAnswered reports whether the participant already has an answer
// recorded for questionID.
func (p *PlayerResult) HasAnswered(questionID int) bool {
	for _, a := range p.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// AllAnswered reports coverage: every participant has exactly one answer
// for questionID.
func (m *Match) AllAnswered(questionID int) bool {
	for i := range m.Players {
		if !m.Players[i].HasAnswered(questionID) {
			return false
		}
	}
	return true
}

// CurrentQuestionIndex derives a best-effort progress marker for
// spectator snapshots: the highest question id present in any answer.
func (m *Match) CurrentQuestionIndex() int {
	max := 0
	for i := range m.Players {
		for _, a := range m.Players[i].Answers {
			if a.QuestionID > max {
				max = a.QuestionID
			}
		}
	}
	return max
}

// MatchSummary is the lobby view of a live match.
type MatchSummary struct {
	RoomID    string         `json:"roomId"`
	Theme     string         `json:"theme"`
	Players   []PlayerResult `json:"players"`
	StartedAt time.Time      `json:"startedAt"`
}

// UserProfile is the persistent rating/progression state of one user.
type UserProfile struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	Level          int    `json:"level"`
	Experience     int    `json:"experience"`
	NextLevelExp   int    `json:"nextLevelExp"`
	GamesPlayed    int    `json:"gamesPlayed"`
	WinRate        int    `json:"winRate"`
	CurrentStreak  int    `json:"currentStreak"`
	BestStreak     int    `json:"bestStreak"`
	TotalScore     int    `json:"totalScore"`
}

// NewUserProfile returns a profile with the starting progression values.
func NewUserProfile(userID, username string) *UserProfile {
	return &UserProfile{
		UserID:       userID,
		Username:     username,
		Level:        1,
		NextLevelExp: 1000,
	}
}
