package session

import (
	"net"
	"testing"
	"time"

	"github.com/wfunc/quizduel/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(msgID uint16, data []byte) error { return nil }
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	// Test Add
	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	// Test Get
	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	// Test Remove
	manager.Remove(sess)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	_, exists = manager.Get(sessionID)
	if exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestManager_Register_Resolve(t *testing.T) {
	manager := NewManager()
	sess := NewSession("session1", &MockConnection{})

	manager.Register("alice", sess)

	if sess.Identity != "alice" {
		t.Errorf("Expected identity to be set on the session, got %q", sess.Identity)
	}

	resolved, exists := manager.Resolve("alice")
	if !exists {
		t.Fatal("Resolve should find the registered identity")
	}
	if resolved != sess {
		t.Fatal("Resolve should return the registered session instance")
	}

	_, exists = manager.Resolve("bob")
	if exists {
		t.Fatal("Resolve should not find an unregistered identity")
	}
}

func TestManager_Register_LastConnectWins(t *testing.T) {
	manager := NewManager()
	old := NewSession("session_old", &MockConnection{})
	replacement := NewSession("session_new", &MockConnection{})

	manager.Register("alice", old)
	manager.Register("alice", replacement)

	resolved, exists := manager.Resolve("alice")
	if !exists {
		t.Fatal("Resolve should find the identity after re-registration")
	}
	if resolved != replacement {
		t.Fatal("Resolve should return the newest connection for the identity")
	}
}

func TestManager_Remove_StaleDoesNotUnregisterReplacement(t *testing.T) {
	manager := NewManager()
	old := NewSession("session_old", &MockConnection{})
	replacement := NewSession("session_new", &MockConnection{})

	manager.Register("alice", old)
	manager.Register("alice", replacement)

	// The displaced connection's read loop ends and tears itself down.
	manager.Remove(old)

	resolved, exists := manager.Resolve("alice")
	if !exists {
		t.Fatal("Removing a stale session must not unregister the replacement")
	}
	if resolved != replacement {
		t.Fatal("Resolve should still return the replacement session")
	}

	// Removing the live session clears the index.
	manager.Remove(replacement)
	if _, exists := manager.Resolve("alice"); exists {
		t.Fatal("Resolve should not find the identity after its session is removed")
	}
}

func TestManager_OnlineIdentities(t *testing.T) {
	manager := NewManager()
	manager.Register("alice", NewSession("s1", &MockConnection{}))
	manager.Register("bob", NewSession("s2", &MockConnection{}))

	identities := manager.OnlineIdentities()
	if len(identities) != 2 {
		t.Fatalf("Expected 2 online identities, got %d", len(identities))
	}

	seen := map[string]bool{}
	for _, id := range identities {
		seen[id] = true
	}
	if !seen["alice"] || !seen["bob"] {
		t.Errorf("Expected alice and bob online, got %v", identities)
	}
}

func TestSession_SetRoom(t *testing.T) {
	sess := NewSession("test_session", &MockConnection{})

	sess.SetRoom("room_1")
	if sess.Room() != "room_1" {
		t.Errorf("Expected room room_1, got %s", sess.Room())
	}

	sess.SetRoom("")
	if sess.Room() != "" {
		t.Errorf("Expected empty room after clearing, got %s", sess.Room())
	}
}
