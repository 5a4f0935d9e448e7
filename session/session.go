// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/quizduel/network"
)

// Session is one live connection. Identity is set once the connection's
// auth proof has been verified and never changes afterwards.
type Session struct {
	ID         string
	Conn       network.Connection
	Identity   string
	RoomID     string
	CreatedAt  time.Time
	LastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
	}
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.LastActive = time.Now()
	return s.Conn.Send(msgID, data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) SetRoom(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.RoomID = roomID
}

func (s *Session) Room() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.RoomID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Manager is the connection registry: every session by id, plus an
// identity index resolving a verified user to its current connection.
type Manager struct {
	sessions   map[string]*Session
	byIdentity map[string]*Session
	mutex      sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions:   make(map[string]*Session),
		byIdentity: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

// Register binds an identity to a session. Last connect wins: any prior
// connection for the same identity is displaced from the index (but not
// closed; its read loop will notice on its own).
func (m *Manager) Register(identity string, session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	session.Identity = identity
	m.sessions[session.ID] = session
	m.byIdentity[identity] = session
}

// Remove drops a session from the registry. The identity index entry is
// only cleared if it still points at this session, so a stale
// connection's teardown cannot unregister its replacement.
func (m *Manager) Remove(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, session.ID)
	if session.Identity != "" {
		if current, ok := m.byIdentity[session.Identity]; ok && current == session {
			delete(m.byIdentity, session.Identity)
		}
	}
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// Resolve returns the live connection for an identity.
func (m *Manager) Resolve(identity string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.byIdentity[identity]
	return session, exists
}

// OnlineIdentities returns every identity with a live connection.
func (m *Manager) OnlineIdentities() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	identities := make([]string, 0, len(m.byIdentity))
	for identity := range m.byIdentity {
		identities = append(identities, identity)
	}
	return identities
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
