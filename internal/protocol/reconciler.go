package protocol

import (
	"sync"
	"time"

	"github.com/tahababou12/CoCo-sub000/internal/domain"
)

// DefaultReconcileDelay is long enough for the commit to round-trip
// through the hub under normal latency.
const DefaultReconcileDelay = 750 * time.Millisecond

// LookupFunc finds a committed shape by id in the canonical list.
type LookupFunc func(id string) (domain.Shape, bool)

// Reconciler is the recovery step that guarantees eventual convergence
// without per-message acknowledgements: a short delay after every
// finished stroke it re-issues the commit as a full shape-upsert. The
// upsert is keyed by id, so peers that saw every extend apply it as a
// no-op and peers that lost a frame are repaired. A shape deleted
// locally before the delay fires is not resent.
type Reconciler struct {
	userID string
	delay  time.Duration
	lookup LookupFunc
	send   SendFunc

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewReconciler(userID string, delay time.Duration, lookup LookupFunc, send SendFunc) *Reconciler {
	if delay <= 0 {
		delay = DefaultReconcileDelay
	}
	return &Reconciler{
		userID: userID,
		delay:  delay,
		lookup: lookup,
		send:   send,
		timers: make(map[string]*time.Timer),
	}
}

// ShapeCommitted schedules verification of a freshly committed shape.
func (r *Reconciler) ShapeCommitted(shapeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if t, ok := r.timers[shapeID]; ok {
		t.Stop()
	}
	r.timers[shapeID] = time.AfterFunc(r.delay, func() {
		r.verify(shapeID)
	})
}

func (r *Reconciler) verify(shapeID string) {
	r.mu.Lock()
	delete(r.timers, shapeID)
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}

	shape, ok := r.lookup(shapeID)
	if !ok {
		return
	}
	r.send(domain.MustMessage(domain.MsgShapeUpsert, domain.ShapeUpsertPayload{
		UserID: r.userID,
		Shape:  shape,
	}))
}

// Close stops all pending verifications. Late timer callbacks are
// gated by the closed flag.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}
