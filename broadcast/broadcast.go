// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/quizduel/room"
	"github.com/wfunc/quizduel/session"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrNotConnected = errors.New("user not connected")
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
	SendToUser(identity string, msgID uint16, data []byte) error
}

// 基于房间的广播器
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
}

func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
	}
}

func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	room, exists := b.roomManager.GetRoom(roomID)
	if !exists {
		return ErrRoomNotFound
	}

	// Get a thread-safe copy of the sessions
	sessions := room.GetSessions()

	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			// 发送失败的连接交给它自己的读循环清理
			continue
		}
	}

	return nil
}

// SendToUser delivers a message to the current connection of a single
// identity.
func (b *RoomBroadcaster) SendToUser(identity string, msgID uint16, data []byte) error {
	s, ok := b.sessionManager.Resolve(identity)
	if !ok {
		return ErrNotConnected
	}
	return s.Send(msgID, data)
}
