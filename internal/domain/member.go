package domain

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type MemberStatus string

const (
	MemberStatusConnected    MemberStatus = "connected"
	MemberStatusConnecting   MemberStatus = "connecting"
	MemberStatusDisconnected MemberStatus = "disconnected"
)

// Member is an active room participant on the hub side. Its id is the
// client-assigned user id so routed signal messages need no mapping.
type Member struct {
	ID       string
	User     *User
	Quadrant int
	Status   MemberStatus
	JoinedAt time.Time
	LastSeen time.Time
	Mutex    sync.RWMutex
	Socket   *websocket.Conn
	Events   chan Message

	// Guarded by Mutex; once set no more events may be enqueued.
	closed bool
}

func NewMember(user *User) *Member {
	return &Member{
		ID:       user.ID,
		User:     user,
		Quadrant: -1,
		Status:   MemberStatusConnecting,
		JoinedAt: time.Now().UTC(),
		LastSeen: time.Now().UTC(),
		Events:   make(chan Message, 64),
	}
}

func (m *Member) Touch() {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()
	m.LastSeen = time.Now().UTC()
}

// EnqueueEvent never blocks; a full or closed channel drops the
// message and reports false. A dropped frame is recoverable through
// reconciliation or a full sync. The read lock excludes CloseEvents so
// a send can never race the close.
func (m *Member) EnqueueEvent(event Message) bool {
	m.Mutex.RLock()
	defer m.Mutex.RUnlock()
	if m.closed {
		return false
	}
	select {
	case m.Events <- event:
		return true
	default:
		return false
	}
}

// CloseEvents stops the member's event stream, terminating its writer
// goroutine. Idempotent.
func (m *Member) CloseEvents() {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.Events)
}

func (m *Member) SetStatus(status MemberStatus) {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()
	m.Status = status
}
