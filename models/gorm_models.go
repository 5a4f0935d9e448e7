package models

import (
	"time"

	"gorm.io/gorm"
)

// GormMatch 对局持久化模型
type GormMatch struct {
	gorm.Model
	RoomID      string         `gorm:"uniqueIndex;not null"`
	Theme       string         `gorm:"not null"`
	Players     []PlayerResult `gorm:"serializer:json;type:jsonb;not null"`
	Questions   []Question     `gorm:"serializer:json;type:jsonb;not null"`
	Status      string         `gorm:"index;not null"`
	Winner      string         `gorm:"index"`
	StartedAt   time.Time
	CompletedAt *time.Time
}

// GormUser 玩家档案模型
type GormUser struct {
	gorm.Model
	UserID         string `gorm:"uniqueIndex;not null"`
	Username       string `gorm:"not null"`
	ProfilePicture string
	Level          int `gorm:"default:1"`
	Experience     int `gorm:"default:0"`
	NextLevelExp   int `gorm:"default:1000"`
	GamesPlayed    int `gorm:"default:0"`
	WinRate        int `gorm:"default:0"`
	CurrentStreak  int `gorm:"default:0"`
	BestStreak     int `gorm:"default:0"`
	TotalScore     int `gorm:"default:0"`
}

// ToMatch converts the stored row back into the domain record.
func (g *GormMatch) ToMatch() *Match {
	return &Match{
		RoomID:      g.RoomID,
		Players:     g.Players,
		Theme:       g.Theme,
		Questions:   g.Questions,
		Status:      MatchStatus(g.Status),
		StartedAt:   g.StartedAt,
		CompletedAt: g.CompletedAt,
		Winner:      g.Winner,
	}
}

// ApplyMatch copies the domain record onto the row for saving.
func (g *GormMatch) ApplyMatch(m *Match) {
	g.RoomID = m.RoomID
	g.Theme = m.Theme
	g.Players = m.Players
	g.Questions = m.Questions
	g.Status = string(m.Status)
	g.Winner = m.Winner
	g.StartedAt = m.StartedAt
	g.CompletedAt = m.CompletedAt
}

// ToProfile converts the stored row back into the domain profile.
func (g *GormUser) ToProfile() *UserProfile {
	return &UserProfile{
		UserID:         g.UserID,
		Username:       g.Username,
		ProfilePicture: g.ProfilePicture,
		Level:          g.Level,
		Experience:     g.Experience,
		NextLevelExp:   g.NextLevelExp,
		GamesPlayed:    g.GamesPlayed,
		WinRate:        g.WinRate,
		CurrentStreak:  g.CurrentStreak,
		BestStreak:     g.BestStreak,
		TotalScore:     g.TotalScore,
	}
}

// ApplyProfile copies the domain profile onto the row for saving.
func (g *GormUser) ApplyProfile(u *UserProfile) {
	g.UserID = u.UserID
	g.Username = u.Username
	g.ProfilePicture = u.ProfilePicture
	g.Level = u.Level
	g.Experience = u.Experience
	g.NextLevelExp = u.NextLevelExp
	g.GamesPlayed = u.GamesPlayed
	g.WinRate = u.WinRate
	g.CurrentStreak = u.CurrentStreak
	g.BestStreak = u.BestStreak
	g.TotalScore = u.TotalScore
}
