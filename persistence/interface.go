// persistence/interface.go
package persistence

import (
	"fmt"

	"github.com/wfunc/quizduel/models"
)

// Database 数据库接口
//
// Matches are keyed by room id with atomic whole-record updates; user
// profiles are keyed by user id. Implementations must make SaveMatch and
// SaveUser upserts.
type Database interface {
	SaveMatch(m *models.Match) error
	FindMatchByRoom(roomID string) (*models.Match, error)
	FindOngoingMatchForUser(userID string) (*models.Match, error)
	ListMatchesByStatus(status models.MatchStatus) ([]models.MatchSummary, error)
	CountMatchesForUser(userID string, statuses []models.MatchStatus) (int, error)
	CountWinsForUser(userID string) (int, error)
	GetUser(userID string) (*models.UserProfile, error)
	SaveUser(u *models.UserProfile) error
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)
