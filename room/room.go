// room/room.go
package room

import (
	"sync"
	"time"

	"github.com/wfunc/quizduel/session"
)

// Room is the set of connections attached to one live match: exactly two
// participants plus any number of read-only spectators. A spectator is
// never treated as a participant by any other component.
type Room struct {
	ID           string
	Theme        string
	CreatedAt    time.Time
	participants map[string]*session.Session // identity -> session
	spectators   map[string]*session.Session // sessionID -> session
	broadcaster  Broadcaster
	mutex        sync.RWMutex
}

// NewRoom 创建一个新房间
func NewRoom(id, theme string, broadcaster Broadcaster) *Room {
	return &Room{
		ID:           id,
		Theme:        theme,
		CreatedAt:    time.Now(),
		participants: make(map[string]*session.Session),
		spectators:   make(map[string]*session.Session),
		broadcaster:  broadcaster,
	}
}

func (r *Room) GetID() string {
	return r.ID
}

// AddParticipant joins a player connection to the room.
func (r *Room) AddParticipant(s *session.Session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.participants[s.Identity] = s
	s.SetRoom(r.ID)
}

// Participant 获取单个玩家连接
func (r *Room) Participant(identity string) (*session.Session, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	s, exists := r.participants[identity]
	return s, exists
}

// AddSpectator joins a read-only connection to the room and returns the
// new spectator count.
func (r *Room) AddSpectator(s *session.Session) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.spectators[s.ID] = s
	return len(r.spectators)
}

// RemoveSpectator drops a spectator by session id. Returns the remaining
// count and whether the session was actually spectating here.
func (r *Room) RemoveSpectator(sessionID string) (int, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.spectators[sessionID]; !exists {
		return len(r.spectators), false
	}
	delete(r.spectators, sessionID)
	return len(r.spectators), true
}

func (r *Room) SpectatorCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.spectators)
}

// GetSessions returns every connection in the room (thread-safe copy).
func (r *Room) GetSessions() []*session.Session {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	sessions := make([]*session.Session, 0, len(r.participants)+len(r.spectators))
	for _, s := range r.participants {
		sessions = append(sessions, s)
	}
	for _, s := range r.spectators {
		sessions = append(sessions, s)
	}
	return sessions
}

// Broadcast sends a message to every connection in the room.
func (r *Room) Broadcast(msgID uint16, data []byte) error {
	return r.broadcaster.BroadcastToRoom(r.ID, msgID, data)
}

// --- 房间管理器 ---

// Manager 管理所有房间
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager() *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
	}
}

// CreateRoom 创建一个新房间并添加到管理器
func (m *Manager) CreateRoom(id, theme string, broadcaster Broadcaster) *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room := NewRoom(id, theme, broadcaster)
	m.rooms[id] = room
	return room
}

// RemoveRoom 从管理器中移除一个房间
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.rooms, id)
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// RoomsSpectatedBy returns the rooms in which sessionID is a spectator.
func (m *Manager) RoomsSpectatedBy(sessionID string) []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var rooms []*Room
	for _, room := range m.rooms {
		room.mutex.RLock()
		_, spectating := room.spectators[sessionID]
		room.mutex.RUnlock()
		if spectating {
			rooms = append(rooms, room)
		}
	}
	return rooms
}
