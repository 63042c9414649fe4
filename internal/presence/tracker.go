// Package presence tracks ephemeral per-user cursor and gesture state.
// Highest recency wins; nothing here enters durable shape history.
package presence

import (
	"sync"

	"github.com/tahababou12/CoCo-sub000/internal/domain"
)

type Tracker struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewTracker() *Tracker {
	return &Tracker{users: make(map[string]*domain.User)}
}

// Update stores the latest presence record for a user, replacing any
// previous one.
func (t *Tracker) Update(user domain.User) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users[user.ID] = user.Clone()
}

// UpdateCursor moves a user's cursor without touching the rest of the
// record. Unknown users get a minimal record so cursor traffic arriving
// before the join message is not lost.
func (t *Tracker) UpdateCursor(userID string, point domain.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.users[userID]
	if !ok {
		u = &domain.User{ID: userID, Quadrant: -1, Mode: domain.GestureNone}
		t.users[userID] = u
	}
	p := point
	u.Cursor = &p
}

// SetMode updates a user's gesture mode.
func (t *Tracker) SetMode(userID string, mode domain.GestureMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if u, ok := t.users[userID]; ok {
		u.Mode = mode
	}
}

func (t *Tracker) Remove(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.users, userID)
}

// Get returns a copy of one user's record.
func (t *Tracker) Get(userID string) (domain.User, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.users[userID]
	if !ok {
		return domain.User{}, false
	}
	return *u.Clone(), true
}

// Snapshot copies every tracked user for the presentation layer.
func (t *Tracker) Snapshot() []domain.User {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.User, 0, len(t.users))
	for _, u := range t.users {
		out = append(out, *u.Clone())
	}
	return out
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}
