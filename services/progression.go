// services/progression.go
package services

import (
	"errors"
	"math"

	"github.com/wfunc/quizduel/logger"
	"github.com/wfunc/quizduel/models"
	"github.com/wfunc/quizduel/persistence"
)

// ProgressionService applies the rating side effects of a finished match
// to the durable user profiles: experience, level, streaks, games played
// and the win rate derived from match history.
type ProgressionService struct {
	db persistence.Database
}

func NewProgressionService(db persistence.Database) *ProgressionService {
	return &ProgressionService{db: db}
}

// ApplyWin credits the winner: XP scaled by the level gap, streak
// extended, score banked.
func (s *ProgressionService) ApplyWin(winnerID, loserID string, score int) error {
	winner, err := s.db.GetUser(winnerID)
	if err != nil {
		return err
	}
	loser, err := s.db.GetUser(loserID)
	if err != nil {
		return err
	}

	winner.Experience += xpDelta(winner.Level, loser.Level)
	winner.GamesPlayed++
	winner.TotalScore += score
	winner.CurrentStreak++
	if winner.CurrentStreak > winner.BestStreak {
		winner.BestStreak = winner.CurrentStreak
	}
	checkLevelUp(winner)

	if err := s.db.SaveUser(winner); err != nil {
		return err
	}
	return s.updateWinRate(winnerID)
}

// ApplyLoss debits the loser: XP scaled by the level gap, streak reset.
func (s *ProgressionService) ApplyLoss(loserID, winnerID string, score int) error {
	loser, err := s.db.GetUser(loserID)
	if err != nil {
		return err
	}
	winner, err := s.db.GetUser(winnerID)
	if err != nil {
		return err
	}

	loser.Experience -= xpDelta(loser.Level, winner.Level)
	loser.GamesPlayed++
	loser.TotalScore += score
	loser.CurrentStreak = 0

	if err := s.db.SaveUser(loser); err != nil {
		return err
	}
	return s.updateWinRate(loserID)
}

// ApplyAbandon settles a forfeit: the quitter's streak resets, the
// remaining player takes the forfeit score and a streak win.
func (s *ProgressionService) ApplyAbandon(quitterID, winnerID string, forfeit int) error {
	quitter, err := s.db.GetUser(quitterID)
	if err == nil {
		quitter.GamesPlayed++
		quitter.CurrentStreak = 0
		err = s.db.SaveUser(quitter)
	}
	if err != nil && !errors.Is(err, persistence.ErrRecordNotFound) {
		return err
	}

	winner, err := s.db.GetUser(winnerID)
	if err != nil {
		return err
	}
	winner.GamesPlayed++
	winner.CurrentStreak++
	winner.TotalScore += forfeit
	if winner.CurrentStreak > winner.BestStreak {
		winner.BestStreak = winner.CurrentStreak
	}
	if err := s.db.SaveUser(winner); err != nil {
		return err
	}

	if err := s.updateWinRate(quitterID); err != nil {
		logger.Log.Warnf("Failed to update win rate for %s: %v", quitterID, err)
	}
	return s.updateWinRate(winnerID)
}

// ApplyDraw records the game without touching XP or streaks.
func (s *ProgressionService) ApplyDraw(userID string, score int) error {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return err
	}
	user.GamesPlayed++
	user.TotalScore += score
	if err := s.db.SaveUser(user); err != nil {
		return err
	}
	return s.updateWinRate(userID)
}

// UserStats is the derived view served over RPC.
type UserStats struct {
	TotalGames int `json:"total_games"`
	Wins       int `json:"wins"`
	WinRate    int `json:"win_rate"`
}

// GetUserWithStats 获取玩家信息和统计
func (s *ProgressionService) GetUserWithStats(userID string) (*models.UserProfile, *UserStats, error) {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return nil, nil, err
	}

	finished := []models.MatchStatus{models.StatusCompleted, models.StatusAbandoned}
	total, err := s.db.CountMatchesForUser(userID, finished)
	if err != nil {
		return nil, nil, err
	}
	wins, err := s.db.CountWinsForUser(userID)
	if err != nil {
		return nil, nil, err
	}

	stats := &UserStats{TotalGames: total, Wins: wins}
	if total > 0 {
		stats.WinRate = int(math.Round(float64(wins) / float64(total) * 100))
	}
	return user, stats, nil
}

// xpDelta is the experience swing for the lower-level side of an upset:
// a flat 100 plus 50 per level the opponent is ahead.
func xpDelta(ownLevel, otherLevel int) int {
	diff := otherLevel - ownLevel
	if diff < 0 {
		diff = 0
	}
	return 100 + diff*50
}

func checkLevelUp(u *models.UserProfile) {
	if u.Experience < u.NextLevelExp {
		return
	}
	remaining := u.Experience - u.NextLevelExp
	u.NextLevelExp = 1000 + (u.Level+1)*200
	u.Level++
	u.Experience = remaining
}

func (s *ProgressionService) updateWinRate(userID string) error {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return err
	}

	finished := []models.MatchStatus{models.StatusCompleted, models.StatusAbandoned}
	total, err := s.db.CountMatchesForUser(userID, finished)
	if err != nil {
		return err
	}
	wins, err := s.db.CountWinsForUser(userID)
	if err != nil {
		return err
	}

	if total > 0 {
		user.WinRate = int(math.Round(float64(wins) / float64(total) * 100))
	} else {
		user.WinRate = 0
	}
	return s.db.SaveUser(user)
}
