// persistence/memory.go
package persistence

import (
	"encoding/json"
	"sync"

	"github.com/wfunc/quizduel/models"
)

// Memory is an in-process Database used by tests. Records are
// deep-copied on the way in and out so callers never share mutable
// state with the store.
type Memory struct {
	mutex   sync.RWMutex
	matches map[string]*models.Match
	users   map[string]*models.UserProfile
}

func NewMemory() *Memory {
	return &Memory{
		matches: make(map[string]*models.Match),
		users:   make(map[string]*models.UserProfile),
	}
}

func (m *Memory) SaveMatch(match *models.Match) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.matches[match.RoomID] = copyMatch(match)
	return nil
}

func (m *Memory) FindMatchByRoom(roomID string) (*models.Match, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	match, ok := m.matches[roomID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return copyMatch(match), nil
}

func (m *Memory) FindOngoingMatchForUser(userID string) (*models.Match, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var latest *models.Match
	for _, match := range m.matches {
		if match.Status != models.StatusPending && match.Status != models.StatusInProgress {
			continue
		}
		if match.Player(userID) == nil {
			continue
		}
		if latest == nil || match.StartedAt.After(latest.StartedAt) {
			latest = match
		}
	}
	if latest == nil {
		return nil, ErrRecordNotFound
	}
	return copyMatch(latest), nil
}

func (m *Memory) ListMatchesByStatus(status models.MatchStatus) ([]models.MatchSummary, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var summaries []models.MatchSummary
	for _, match := range m.matches {
		if match.Status != status {
			continue
		}
		c := copyMatch(match)
		summaries = append(summaries, models.MatchSummary{
			RoomID:    c.RoomID,
			Theme:     c.Theme,
			Players:   c.Players,
			StartedAt: c.StartedAt,
		})
	}
	return summaries, nil
}

func (m *Memory) CountMatchesForUser(userID string, statuses []models.MatchStatus) (int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	count := 0
	for _, match := range m.matches {
		if match.Player(userID) == nil {
			continue
		}
		for _, s := range statuses {
			if match.Status == s {
				count++
				break
			}
		}
	}
	return count, nil
}

func (m *Memory) CountWinsForUser(userID string) (int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	count := 0
	for _, match := range m.matches {
		if match.Winner != userID {
			continue
		}
		if match.Status == models.StatusCompleted || match.Status == models.StatusAbandoned {
			count++
		}
	}
	return count, nil
}

func (m *Memory) GetUser(userID string) (*models.UserProfile, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	c := *user
	return &c, nil
}

func (m *Memory) SaveUser(u *models.UserProfile) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	c := *u
	m.users[u.UserID] = &c
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func copyMatch(src *models.Match) *models.Match {
	data, _ := json.Marshal(src)
	var dst models.Match
	_ = json.Unmarshal(data, &dst)
	return &dst
}
