// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// PostgreSQL 驱动
	"github.com/lib/pq"

	"github.com/wfunc/quizduel/models"
)

// PostgreSQL is the plain database/sql implementation of Database, for
// deployments that don't want the ORM on the hot path.
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS matches (
            id SERIAL PRIMARY KEY,
            room_id VARCHAR(255) UNIQUE NOT NULL,
            theme VARCHAR(255) NOT NULL,
            players JSONB NOT NULL,
            questions JSONB NOT NULL,
            status VARCHAR(50) NOT NULL,
            winner VARCHAR(255) DEFAULT '',
            started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            completed_at TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            user_id VARCHAR(255) UNIQUE NOT NULL,
            data JSONB NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_matches_room_id ON matches(room_id);
        CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status);
        CREATE INDEX IF NOT EXISTS idx_matches_winner ON matches(winner);
        CREATE INDEX IF NOT EXISTS idx_users_user_id ON users(user_id);
    `)

	return err
}

func (p *PostgreSQL) SaveMatch(m *models.Match) error {
	players, err := json.Marshal(m.Players)
	if err != nil {
		return err
	}
	questions, err := json.Marshal(m.Questions)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
        INSERT INTO matches (room_id, theme, players, questions, status, winner, started_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (room_id)
        DO UPDATE SET players = $3, status = $5, winner = $6, completed_at = $8
    `

	_, err = p.db.ExecContext(ctx, query,
		m.RoomID, m.Theme, players, questions, string(m.Status), m.Winner, m.StartedAt, m.CompletedAt)
	return err
}

func (p *PostgreSQL) FindMatchByRoom(roomID string) (*models.Match, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `SELECT room_id, theme, players, questions, status, winner, started_at, completed_at
              FROM matches WHERE room_id = $1`
	return p.scanMatch(p.db.QueryRowContext(ctx, query, roomID))
}

func (p *PostgreSQL) FindOngoingMatchForUser(userID string) (*models.Match, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `SELECT room_id, theme, players, questions, status, winner, started_at, completed_at
              FROM matches
              WHERE status IN ('pending', 'in_progress') AND players @> $1
              ORDER BY started_at DESC LIMIT 1`
	filter, _ := json.Marshal([]map[string]string{{"userId": userID}})
	return p.scanMatch(p.db.QueryRowContext(ctx, query, filter))
}

func (p *PostgreSQL) scanMatch(row *sql.Row) (*models.Match, error) {
	var m models.Match
	var players, questions []byte
	var status string
	var completedAt sql.NullTime

	err := row.Scan(&m.RoomID, &m.Theme, &players, &questions, &status, &m.Winner, &m.StartedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(players, &m.Players); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questions, &m.Questions); err != nil {
		return nil, err
	}
	m.Status = models.MatchStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		m.CompletedAt = &t
	}
	return &m, nil
}

func (p *PostgreSQL) ListMatchesByStatus(status models.MatchStatus) ([]models.MatchSummary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `SELECT room_id, theme, players, started_at FROM matches WHERE status = $1`
	rows, err := p.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.MatchSummary
	for rows.Next() {
		var s models.MatchSummary
		var players []byte
		if err := rows.Scan(&s.RoomID, &s.Theme, &players, &s.StartedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(players, &s.Players); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (p *PostgreSQL) CountMatchesForUser(userID string, statuses []models.MatchStatus) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	filter, _ := json.Marshal([]map[string]string{{"userId": userID}})
	var count int
	query := `SELECT COUNT(*) FROM matches WHERE players @> $1 AND status = ANY($2)`
	err := p.db.QueryRowContext(ctx, query, filter, statusArray(statuses)).Scan(&count)
	return count, err
}

func (p *PostgreSQL) CountWinsForUser(userID string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	query := `SELECT COUNT(*) FROM matches WHERE winner = $1 AND status IN ('completed', 'abandoned')`
	err := p.db.QueryRowContext(ctx, query, userID).Scan(&count)
	return count, err
}

func (p *PostgreSQL) GetUser(userID string) (*models.UserProfile, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var data []byte
	query := `SELECT data FROM users WHERE user_id = $1`
	err := p.db.QueryRowContext(ctx, query, userID).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	var profile models.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (p *PostgreSQL) SaveUser(u *models.UserProfile) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 使用 UPSERT 操作 (PostgreSQL 9.5+)
	query := `
        INSERT INTO users (user_id, data)
        VALUES ($1, $2)
        ON CONFLICT (user_id)
        DO UPDATE SET data = $2, updated_at = CURRENT_TIMESTAMP
    `

	_, err = p.db.ExecContext(ctx, query, u.UserID, data)
	return err
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

func statusArray(statuses []models.MatchStatus) interface{} {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return pq.Array(out)
}
