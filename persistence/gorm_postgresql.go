// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/quizduel/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GormMatch{}, &models.GormUser{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// SaveMatch upserts the durable match record by room id.
func (p *GormPostgreSQL) SaveMatch(m *models.Match) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		var row models.GormMatch
		err := tx.Where("room_id = ?", m.RoomID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row.ApplyMatch(m)
			return tx.Create(&row).Error
		} else if err != nil {
			return err
		}
		row.ApplyMatch(m)
		return tx.Save(&row).Error
	})
}

func (p *GormPostgreSQL) FindMatchByRoom(roomID string) (*models.Match, error) {
	var row models.GormMatch
	if err := p.db.Where("room_id = ?", roomID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return row.ToMatch(), nil
}

// FindOngoingMatchForUser returns the most recent pending or in-progress
// match the user participates in, if any.
func (p *GormPostgreSQL) FindOngoingMatchForUser(userID string) (*models.Match, error) {
	var row models.GormMatch
	err := p.db.
		Where("status IN ?", []string{string(models.StatusPending), string(models.StatusInProgress)}).
		Where("players @> ?", playerFilter(userID)).
		Order("started_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return row.ToMatch(), nil
}

func (p *GormPostgreSQL) ListMatchesByStatus(status models.MatchStatus) ([]models.MatchSummary, error) {
	var rows []models.GormMatch
	if err := p.db.Where("status = ?", string(status)).Find(&rows).Error; err != nil {
		return nil, err
	}

	summaries := make([]models.MatchSummary, 0, len(rows))
	for i := range rows {
		summaries = append(summaries, models.MatchSummary{
			RoomID:    rows[i].RoomID,
			Theme:     rows[i].Theme,
			Players:   rows[i].Players,
			StartedAt: rows[i].StartedAt,
		})
	}
	return summaries, nil
}

func (p *GormPostgreSQL) CountMatchesForUser(userID string, statuses []models.MatchStatus) (int, error) {
	var count int64
	err := p.db.Model(&models.GormMatch{}).
		Where("status IN ?", statusStrings(statuses)).
		Where("players @> ?", playerFilter(userID)).
		Count(&count).Error
	return int(count), err
}

func (p *GormPostgreSQL) CountWinsForUser(userID string) (int, error) {
	var count int64
	err := p.db.Model(&models.GormMatch{}).
		Where("winner = ?", userID).
		Where("status IN ?", []string{string(models.StatusCompleted), string(models.StatusAbandoned)}).
		Count(&count).Error
	return int(count), err
}

func (p *GormPostgreSQL) GetUser(userID string) (*models.UserProfile, error) {
	var row models.GormUser
	if err := p.db.Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return row.ToProfile(), nil
}

func (p *GormPostgreSQL) SaveUser(u *models.UserProfile) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		var row models.GormUser
		err := tx.Where("user_id = ?", u.UserID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row.ApplyProfile(u)
			return tx.Create(&row).Error
		} else if err != nil {
			return err
		}
		row.ApplyProfile(u)
		return tx.Save(&row).Error
	})
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// playerFilter builds the jsonb containment document matching a
// participant entry by user id.
func playerFilter(userID string) string {
	doc, _ := json.Marshal([]map[string]string{{"userId": userID}})
	return string(doc)
}

func statusStrings(statuses []models.MatchStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
