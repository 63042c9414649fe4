// Package protocol translates between local state-machine mutations and
// the wire message taxonomy, enforcing the no-echo and idempotency
// rules of the replication protocol.
package protocol

import (
	"sync"

	"github.com/tahababou12/CoCo-sub000/internal/domain"
)

// SendFunc hands an encoded message to the transport. Sends are
// fire-and-forget; the protocol requires no per-message ack.
type SendFunc func(domain.Message)

// Encoder turns board mutations into outbound messages tagged with the
// local user id. It implements canvas.Observer.
//
// Cursor moves and stroke extends are coalesced latest-wins and only
// leave on Flush, which the session calls once per animation frame, so
// bandwidth is bounded by the frame rate rather than the input sample
// rate.
type Encoder struct {
	userID string
	send   SendFunc

	mu            sync.Mutex
	pendingExtend *domain.Point
	pendingCursor *domain.Point
}

func NewEncoder(userID string, send SendFunc) *Encoder {
	return &Encoder{userID: userID, send: send}
}

func (e *Encoder) StrokeBegun(shape domain.Shape) {
	// Ordering: a stale pending extend belongs to the previous stroke
	// and must precede the new begin.
	e.flushExtend()
	e.send(domain.MustMessage(domain.MsgStrokeBegin, domain.StrokeBeginPayload{
		UserID:  e.userID,
		ShapeID: shape.ID,
		Kind:    shape.Kind,
		Point:   shape.Points[0],
		Style:   shape.Style,
	}))
}

func (e *Encoder) StrokeExtended(point domain.Point) {
	e.mu.Lock()
	p := point
	e.pendingExtend = &p
	e.mu.Unlock()
}

func (e *Encoder) StrokeEnded(shapeID string) {
	e.flushExtend()
	e.send(domain.MustMessage(domain.MsgStrokeEnd, domain.StrokeEndPayload{
		UserID: e.userID,
	}))
}

func (e *Encoder) ShapeUpserted(shape domain.Shape) {
	e.send(domain.MustMessage(domain.MsgShapeUpsert, domain.ShapeUpsertPayload{
		UserID: e.userID,
		Shape:  shape,
	}))
}

func (e *Encoder) ShapesDeleted(ids []string) {
	e.send(domain.MustMessage(domain.MsgShapesDeleted, domain.ShapesDeletedPayload{
		UserID: e.userID,
		IDs:    ids,
	}))
}

// CursorMoved records the latest cursor position for the next flush.
func (e *Encoder) CursorMoved(point domain.Point) {
	e.mu.Lock()
	p := point
	e.pendingCursor = &p
	e.mu.Unlock()
}

// PresenceChanged sends a full presence record immediately; these are
// rare compared to cursor traffic.
func (e *Encoder) PresenceChanged(user domain.User) {
	e.send(domain.MustMessage(domain.MsgPresence, domain.PresencePayload{User: user}))
}

// Flush emits the coalesced extend and cursor messages, if any. Called
// once per animation frame by the session.
func (e *Encoder) Flush() {
	e.flushExtend()

	e.mu.Lock()
	cursor := e.pendingCursor
	e.pendingCursor = nil
	e.mu.Unlock()

	if cursor != nil {
		e.send(domain.MustMessage(domain.MsgCursor, domain.CursorPayload{
			UserID: e.userID,
			Point:  *cursor,
		}))
	}
}

func (e *Encoder) flushExtend() {
	e.mu.Lock()
	extend := e.pendingExtend
	e.pendingExtend = nil
	e.mu.Unlock()

	if extend != nil {
		e.send(domain.MustMessage(domain.MsgStrokeExtend, domain.StrokeExtendPayload{
			UserID: e.userID,
			Point:  *extend,
		}))
	}
}
