// services/settlement.go
package services

import (
	"time"

	"github.com/wfunc/quizduel/config"
	"github.com/wfunc/quizduel/logger"
	"github.com/wfunc/quizduel/models"
	"github.com/wfunc/quizduel/persistence"
)

// SettlementService computes the final scores and winner of a match and
// triggers the profile updates. The caller guarantees it runs at most
// once per match (status CAS out of in_progress); this service only
// guards its own preconditions.
type SettlementService struct {
	cfg         config.GameConfig
	db          persistence.Database
	progression *ProgressionService
}

func NewSettlementService(cfg config.GameConfig, db persistence.Database, progression *ProgressionService) *SettlementService {
	return &SettlementService{cfg: cfg, db: db, progression: progression}
}

// Settle scores the match in place, stamps the terminal status and
// completion time, persists the record and applies progression updates.
// A non-empty abandoningID selects the forfeit path: the quitter's score
// is zeroed, the other side takes the forfeit score and the win; the
// recorded answers are kept as they were, never rescored.
func (s *SettlementService) Settle(m *models.Match, abandoningID string) *models.Match {
	if len(m.Players) != 2 {
		logger.Log.Errorw("Refusing to settle match without exactly two players",
			"roomId", m.RoomID, "players", len(m.Players))
		return m
	}

	if abandoningID != "" {
		s.settleAbandon(m, abandoningID)
	} else {
		s.settleNormal(m)
	}

	now := time.Now()
	m.CompletedAt = &now

	if err := s.db.SaveMatch(m); err != nil {
		logger.Log.Errorf("Failed to persist settled match %s: %v", m.RoomID, err)
	}

	s.applyProgression(m, abandoningID)
	return m
}

func (s *SettlementService) settleAbandon(m *models.Match, abandoningID string) {
	quitter := m.Player(abandoningID)
	other := m.Opponent(abandoningID)
	if quitter == nil || other == nil {
		logger.Log.Errorw("Abandoning identity not part of match",
			"roomId", m.RoomID, "identity", abandoningID)
		return
	}

	quitter.Abandoned = true
	quitter.Score = 0
	quitter.CorrectAnswers = 0
	other.Score = s.cfg.ForfeitScore

	m.Winner = other.UserID
	m.Status = models.StatusAbandoned
}

func (s *SettlementService) settleNormal(m *models.Match) {
	for i := range m.Players {
		player := &m.Players[i]
		player.Score = 0
		player.CorrectAnswers = 0

		for _, answer := range player.Answers {
			// Correctness was fixed at submission time; only scoring
			// happens here.
			if !answer.IsCorrect {
				continue
			}
			player.CorrectAnswers++
			player.Score += s.cfg.BaseScore + s.timeBonus(answer.TimeTaken)
		}
	}

	switch {
	case m.Players[0].Score > m.Players[1].Score:
		m.Winner = m.Players[0].UserID
	case m.Players[1].Score > m.Players[0].Score:
		m.Winner = m.Players[1].UserID
	default:
		// Draw: winner stays unset.
		m.Winner = ""
	}
	m.Status = models.StatusCompleted
}

// timeBonus rewards fast answers, clamped to [0, cap].
func (s *SettlementService) timeBonus(timeTaken int) int {
	bonus := s.cfg.TimeBonusCap - timeTaken
	if bonus < 0 {
		return 0
	}
	if bonus > s.cfg.TimeBonusCap {
		return s.cfg.TimeBonusCap
	}
	return bonus
}

func (s *SettlementService) applyProgression(m *models.Match, abandoningID string) {
	var err error
	switch {
	case abandoningID != "":
		winner := m.Opponent(abandoningID)
		if winner == nil {
			return
		}
		err = s.progression.ApplyAbandon(abandoningID, winner.UserID, s.cfg.ForfeitScore)
	case m.Winner != "":
		loser := m.Opponent(m.Winner)
		winner := m.Player(m.Winner)
		if err = s.progression.ApplyWin(winner.UserID, loser.UserID, winner.Score); err == nil {
			err = s.progression.ApplyLoss(loser.UserID, winner.UserID, loser.Score)
		}
	default:
		for i := range m.Players {
			if derr := s.progression.ApplyDraw(m.Players[i].UserID, m.Players[i].Score); derr != nil {
				err = derr
			}
		}
	}

	if err != nil {
		logger.Log.Errorf("Failed to apply progression for match %s: %v", m.RoomID, err)
	}
}
