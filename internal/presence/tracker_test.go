package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tahababou12/CoCo-sub000/internal/domain"
)

func TestUpdateLastWriteWins(t *testing.T) {
	tr := NewTracker()

	tr.Update(domain.User{ID: "u1", Name: "first", Color: "#f00"})
	tr.Update(domain.User{ID: "u1", Name: "second", Color: "#0f0"})

	u, ok := tr.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "second", u.Name)
	assert.Equal(t, 1, tr.Len())
}

func TestUpdateCursorBeforeJoin(t *testing.T) {
	tr := NewTracker()

	tr.UpdateCursor("late", domain.Point{X: 3, Y: 4})

	u, ok := tr.Get("late")
	require.True(t, ok)
	require.NotNil(t, u.Cursor)
	assert.Equal(t, 3.0, u.Cursor.X)
	assert.Equal(t, domain.GestureNone, u.Mode)
}

func TestSnapshotIsACopy(t *testing.T) {
	tr := NewTracker()
	tr.Update(domain.User{ID: "u1", Cursor: &domain.Point{X: 1, Y: 1}})

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Cursor.X = 99

	u, _ := tr.Get("u1")
	assert.Equal(t, 1.0, u.Cursor.X)
}

func TestRemove(t *testing.T) {
	tr := NewTracker()
	tr.Update(domain.User{ID: "u1"})
	tr.Remove("u1")

	_, ok := tr.Get("u1")
	assert.False(t, ok)
	assert.Zero(t, tr.Len())
}

func TestSetMode(t *testing.T) {
	tr := NewTracker()
	tr.Update(domain.User{ID: "u1", Mode: domain.GestureNone})
	tr.SetMode("u1", domain.GestureDrawing)

	u, _ := tr.Get("u1")
	assert.Equal(t, domain.GestureDrawing, u.Mode)

	// Unknown user is a no-op.
	tr.SetMode("ghost", domain.GestureErasing)
	assert.Equal(t, 1, tr.Len())
}
