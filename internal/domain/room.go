package domain

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const joinCodeLength = 6

// DefaultRoomCapacity matches the four screen quadrants a private
// room splits the shared canvas into.
const DefaultRoomCapacity = 4

// Room is an isolated broadcast domain. It retains the current
// presence set for late joiners but never holds shape history:
// the hub relays shape traffic, it does not own it.
type Room struct {
	Mutex     sync.RWMutex
	ID        uuid.UUID
	Name      string
	JoinCode  string
	Capacity  int
	Members   map[string]*Member
	Presence  map[string]*User
	CreatedAt time.Time
}

// NewRoom constructs a room with a generated id and join code.
func NewRoom(name string, capacity int) *Room {
	if capacity <= 0 {
		capacity = DefaultRoomCapacity
	}
	return &Room{
		ID:        uuid.New(),
		Name:      name,
		JoinCode:  generateJoinCode(),
		Capacity:  capacity,
		Members:   make(map[string]*Member),
		Presence:  make(map[string]*User),
		CreatedAt: time.Now().UTC(),
	}
}

// FreeQuadrant returns the lowest screen-quadrant slot not held by a
// current member, or -1 when the room is full. Caller holds Mutex.
func (r *Room) FreeQuadrant() int {
	taken := make(map[int]bool, len(r.Members))
	for _, m := range r.Members {
		taken[m.Quadrant] = true
	}
	for q := 0; q < r.Capacity; q++ {
		if !taken[q] {
			return q
		}
	}
	return -1
}

// MemberUsers snapshots the roster in quadrant order.
func (r *Room) MemberUsers() []User {
	r.Mutex.RLock()
	defer r.Mutex.RUnlock()

	users := make([]User, 0, len(r.Members))
	for q := 0; q < r.Capacity; q++ {
		for _, m := range r.Members {
			if m.Quadrant == q {
				users = append(users, *m.User.Clone())
			}
		}
	}
	return users
}

func generateJoinCode() string {
	code := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	if len(code) <= joinCodeLength {
		return code
	}
	return code[:joinCodeLength]
}
