package domain

import "github.com/google/uuid"

type GestureMode string

const (
	GestureDrawing  GestureMode = "drawing"
	GestureErasing  GestureMode = "erasing"
	GestureClearAll GestureMode = "clear-all"
	GestureDragging GestureMode = "dragging"
	GestureNone     GestureMode = "none"
)

// User is the ephemeral presence record for a room participant.
// It is never part of durable shape history; the latest value wins.
type User struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Color        string      `json:"color"`
	Cursor       *Point      `json:"cursor,omitempty"`
	Quadrant     int         `json:"quadrant"`
	Mode         GestureMode `json:"mode,omitempty"`
	HandTracking bool        `json:"handTracking"`
	Webcam       bool        `json:"webcam"`
}

func NewGuestUser(name string) *User {
	return &User{
		ID:       uuid.New().String(),
		Name:     name,
		Quadrant: -1,
		Mode:     GestureNone,
	}
}

// Clone copies the record including the cursor so readers never alias
// the tracker's mutable state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.Cursor != nil {
		c := *u.Cursor
		cp.Cursor = &c
	}
	return &cp
}
