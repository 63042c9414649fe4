// Package canvas owns the client-side drawing state: the canonical
// shape list, the shape currently being authored, selection, undo/redo
// and the view transform. All methods are synchronous and the Board is
// confined to a single goroutine; the session layer serializes access.
package canvas

import (
	"errors"

	"github.com/tahababou12/CoCo-sub000/internal/domain"
	"github.com/tahababou12/CoCo-sub000/internal/geometry"
)

var (
	ErrInvalidTool = errors.New("active tool cannot author shapes")
	ErrNoStroke    = errors.New("no shape is being authored")
)

type ViewTransform struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// Observer receives every local mutation with an observable external
// effect, exactly once, for outbound replication. Remote-originated
// mutations are never observed back (no echo).
type Observer interface {
	StrokeBegun(shape domain.Shape)
	StrokeExtended(point domain.Point)
	StrokeEnded(shapeID string)
	ShapeUpserted(shape domain.Shape)
	ShapesDeleted(ids []string)
}

// Board is the shape and draw state machine for one local author.
type Board struct {
	userID string

	tool  Tool
	style domain.ShapeStyle

	shapes   []domain.Shape
	current  *domain.Shape
	selected map[string]struct{}

	undo [][]domain.Shape
	redo [][]domain.Shape

	view ViewTransform

	// Snapshot of shapes taken at BeginStroke so the undo entry for an
	// incrementally committed freehand stroke restores the pre-begin list.
	strokeBase []domain.Shape

	// One open stroke slot per remote author.
	remote map[string]*domain.Shape

	obs Observer
}

func NewBoard(userID string) *Board {
	return &Board{
		userID:   userID,
		tool:     ToolPen,
		style:    domain.ShapeStyle{StrokeColor: "#1a1a1a", StrokeWidth: 2, Opacity: 1},
		selected: make(map[string]struct{}),
		remote:   make(map[string]*domain.Shape),
		view:     ViewTransform{Scale: 1},
	}
}

func (b *Board) SetObserver(obs Observer) { b.obs = obs }

func (b *Board) UserID() string { return b.userID }

func (b *Board) Tool() Tool { return b.tool }

// SetTool switches the active tool, clearing selection and any shape
// being authored.
func (b *Board) SetTool(tool Tool) {
	b.tool = tool
	b.current = nil
	b.clearSelection()
}

func (b *Board) Style() domain.ShapeStyle { return b.style }

func (b *Board) SetStyle(style domain.ShapeStyle) { b.style = style }

// BeginStroke starts authoring a new shape at point. The shape gets a
// fresh id and exists only provisionally until committed.
func (b *Board) BeginStroke(point domain.Point) (*domain.Shape, error) {
	kind, ok := b.tool.ShapeKind()
	if !ok {
		return nil, ErrInvalidTool
	}

	b.current = domain.NewShape(kind, point, b.style, b.userID)
	if kind == domain.KindStroke {
		b.strokeBase = cloneShapes(b.shapes)
	}

	if b.obs != nil {
		b.obs.StrokeBegun(*b.current.Clone())
	}
	return b.current.Clone(), nil
}

// ExtendStroke grows the current shape. Two-point kinds keep the start
// fixed and replace the end. Freehand strokes append the point and
// commit immediately so a partial stroke survives an interruption;
// those incremental commits do not touch undo history.
func (b *Board) ExtendStroke(point domain.Point) error {
	if b.current == nil {
		return ErrNoStroke
	}

	extendShape(b.current, point)
	if b.current.Kind == domain.KindStroke {
		b.upsert(*b.current.Clone())
	}

	if b.obs != nil {
		b.obs.StrokeExtended(point)
	}
	return nil
}

// EndStroke finalizes the current shape. A shape with fewer than two
// points (a click with no movement) is discarded instead of committed;
// text and image shapes commit through InsertText and PlaceImage, not
// here.
func (b *Board) EndStroke() (*domain.Shape, error) {
	if b.current == nil {
		return nil, ErrNoStroke
	}
	shape := b.current
	b.current = nil

	if len(shape.Points) < 2 {
		b.strokeBase = nil
		if b.obs != nil {
			b.obs.StrokeEnded(shape.ID)
		}
		return nil, nil
	}

	if shape.Kind == domain.KindStroke {
		// The stroke is already in shapes from incremental commits;
		// the undo entry restores the pre-begin list.
		b.pushUndoSnapshot(b.strokeBase)
		b.strokeBase = nil
		b.upsert(*shape.Clone())
	} else {
		b.pushUndo()
		b.upsert(*shape.Clone())
	}

	if b.obs != nil {
		b.obs.StrokeEnded(shape.ID)
	}
	return shape.Clone(), nil
}

// DiscardCurrent drops the shape being authored without touching the
// committed list. An incrementally committed stroke stays as-is.
func (b *Board) DiscardCurrent() {
	b.current = nil
	b.strokeBase = nil
}

// InsertText commits a one-point text shape at the anchor.
func (b *Board) InsertText(anchor domain.Point, text string) *domain.Shape {
	if text == "" {
		return nil
	}
	shape := domain.NewShape(domain.KindText, anchor, b.style, b.userID)
	shape.Text = text

	b.pushUndo()
	b.upsert(*shape.Clone())
	if b.obs != nil {
		b.obs.ShapeUpserted(*shape.Clone())
	}
	return shape.Clone()
}

// PlaceImage commits an image shape spanning the two corners.
func (b *Board) PlaceImage(a, c domain.Point, ref string) *domain.Shape {
	shape := domain.NewShape(domain.KindImage, a, b.style, b.userID)
	shape.Points = append(shape.Points, c)
	shape.ImageRef = ref

	b.pushUndo()
	b.upsert(*shape.Clone())
	if b.obs != nil {
		b.obs.ShapeUpserted(*shape.Clone())
	}
	return shape.Clone()
}

// DeleteShapes removes the given ids from the canonical list and the
// selection, pushing one undo snapshot.
func (b *Board) DeleteShapes(ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	removed := make([]string, 0, len(ids))
	kept := b.shapes[:0:0]
	for _, s := range b.shapes {
		if _, gone := drop[s.ID]; gone {
			removed = append(removed, s.ID)
			continue
		}
		kept = append(kept, s)
	}
	if len(removed) == 0 {
		return
	}

	b.pushUndo()
	b.shapes = kept
	for _, id := range removed {
		delete(b.selected, id)
	}

	if b.obs != nil {
		b.obs.ShapesDeleted(removed)
	}
}

// DeleteSelection deletes every selected shape.
func (b *Board) DeleteSelection() {
	if len(b.selected) == 0 {
		return
	}
	ids := make([]string, 0, len(b.selected))
	for id := range b.selected {
		ids = append(ids, id)
	}
	b.DeleteShapes(ids)
}

// SelectBox replaces the selection with every shape intersecting the
// drag rectangle spanned by a and c.
func (b *Board) SelectBox(a, c domain.Point) []string {
	b.clearSelection()
	ids := make([]string, 0)
	for i := range b.shapes {
		if geometry.InBox(&b.shapes[i], a, c) {
			b.shapes[i].Selected = true
			b.selected[b.shapes[i].ID] = struct{}{}
			ids = append(ids, b.shapes[i].ID)
		}
	}
	return ids
}

func (b *Board) ClearSelection() { b.clearSelection() }

func (b *Board) clearSelection() {
	for i := range b.shapes {
		b.shapes[i].Selected = false
	}
	b.selected = make(map[string]struct{})
}

// SelectedIDs returns the current selection.
func (b *Board) SelectedIDs() []string {
	ids := make([]string, 0, len(b.selected))
	for id := range b.selected {
		ids = append(ids, id)
	}
	return ids
}

// EraseAt erases whatever lies under point. A freehand stroke is split
// at the touched segment and replaced by its halves (empty or
// single-point halves are dropped); any other kind is deleted whole.
func (b *Board) EraseAt(point domain.Point, threshold float64) {
	if threshold <= 0 {
		threshold = geometry.DefaultHitThreshold
	}

	for i := range b.shapes {
		s := &b.shapes[i]
		if s.Kind == domain.KindStroke {
			idx := geometry.FindIntersectingSegment(s, point, threshold)
			if idx == -1 {
				continue
			}
			b.eraseStrokeSegment(i, idx)
			return
		}
		if geometry.HitTestThreshold(s, point, threshold) {
			b.DeleteShapes([]string{s.ID})
			return
		}
	}
}

func (b *Board) eraseStrokeSegment(shapeIdx, segIdx int) {
	old := b.shapes[shapeIdx]
	first, second, err := geometry.SplitStroke(&old, segIdx)
	if err != nil {
		return
	}

	b.pushUndo()

	replacement := make([]domain.Shape, 0, 2)
	if len(first.Points) >= 2 {
		replacement = append(replacement, *first)
	}
	if len(second.Points) >= 2 {
		replacement = append(replacement, *second)
	}

	b.shapes = append(b.shapes[:shapeIdx], append(replacement, b.shapes[shapeIdx+1:]...)...)
	delete(b.selected, old.ID)

	if b.obs != nil {
		b.obs.ShapesDeleted([]string{old.ID})
		for _, s := range replacement {
			b.obs.ShapeUpserted(*s.Clone())
		}
	}
}

// ClearAll empties the canvas, pushing one undo snapshot.
func (b *Board) ClearAll() {
	if len(b.shapes) == 0 {
		return
	}
	ids := make([]string, 0, len(b.shapes))
	for _, s := range b.shapes {
		ids = append(ids, s.ID)
	}

	b.pushUndo()
	b.shapes = nil
	b.selected = make(map[string]struct{})

	if b.obs != nil {
		b.obs.ShapesDeleted(ids)
	}
}

// Undo restores the previous shape list snapshot. A no-op with an
// empty stack. The resulting local/remote difference is replicated as
// upsert/delete diffs, keeping to append/remove wire semantics.
func (b *Board) Undo() bool {
	if len(b.undo) == 0 {
		return false
	}
	prev := b.undo[len(b.undo)-1]
	b.undo = b.undo[:len(b.undo)-1]
	b.redo = append(b.redo, cloneShapes(b.shapes))

	b.replaceShapesEmittingDiff(prev)
	return true
}

// Redo mirrors Undo.
func (b *Board) Redo() bool {
	if len(b.redo) == 0 {
		return false
	}
	next := b.redo[len(b.redo)-1]
	b.redo = b.redo[:len(b.redo)-1]
	b.undo = append(b.undo, cloneShapes(b.shapes))

	b.replaceShapesEmittingDiff(next)
	return true
}

// Pan shifts the view transform.
func (b *Board) Pan(dx, dy float64) {
	b.view.OffsetX += dx
	b.view.OffsetY += dy
}

// ZoomAt scales around a fixed canvas point.
func (b *Board) ZoomAt(factor float64, center domain.Point) {
	if factor <= 0 {
		return
	}
	b.view.OffsetX = center.X - (center.X-b.view.OffsetX)*factor
	b.view.OffsetY = center.Y - (center.Y-b.view.OffsetY)*factor
	b.view.Scale *= factor
}

func (b *Board) View() ViewTransform { return b.view }

// Shapes returns a deep copy of the committed list in z-order.
func (b *Board) Shapes() []domain.Shape { return cloneShapes(b.shapes) }

// Current returns a copy of the shape being authored, or nil.
func (b *Board) Current() *domain.Shape { return b.current.Clone() }

// Shape looks up a committed shape by id.
func (b *Board) Shape(id string) (domain.Shape, bool) {
	for _, s := range b.shapes {
		if s.ID == id {
			return *s.Clone(), true
		}
	}
	return domain.Shape{}, false
}

func (b *Board) UndoDepth() int { return len(b.undo) }
func (b *Board) RedoDepth() int { return len(b.redo) }

// --- remote replay -------------------------------------------------
//
// Remote mutations apply directly to the canonical list. They never
// push undo history (a remote edit is not a locally reversible action)
// and never reach the observer.

// ApplyRemoteUpsert inserts or replaces a shape by id.
func (b *Board) ApplyRemoteUpsert(shape domain.Shape) {
	b.upsert(*shape.Clone())
}

// ApplyRemoteDelete removes the ids from the list and selection.
func (b *Board) ApplyRemoteDelete(ids []string) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := b.shapes[:0:0]
	for _, s := range b.shapes {
		if _, gone := drop[s.ID]; gone {
			delete(b.selected, s.ID)
			continue
		}
		kept = append(kept, s)
	}
	b.shapes = kept
}

// ApplyFullSync merges the donor's list by id: synced shapes win on
// conflict, local shapes absent from the list survive at the end of
// the z-order. The donor cannot know about shapes committed here after
// the sync was requested, so a wholesale replace would destroy them.
// Undo history is dropped: the snapshots predate the new baseline.
func (b *Board) ApplyFullSync(shapes []domain.Shape) {
	merged := cloneShapes(shapes)
	synced := make(map[string]struct{}, len(merged))
	for _, s := range merged {
		synced[s.ID] = struct{}{}
	}
	for _, s := range b.shapes {
		if _, ok := synced[s.ID]; !ok {
			s.Selected = false
			merged = append(merged, s)
		}
	}
	b.shapes = merged
	b.selected = make(map[string]struct{})
	b.undo = nil
	b.redo = nil
}

// RemoteStrokeBegin opens an authoring slot for a remote user. Each
// remote user has at most one open stroke; a begin while one is open
// replaces it, matching the author's own single-current invariant.
func (b *Board) RemoteStrokeBegin(userID string, shape domain.Shape) {
	b.remote[userID] = shape.Clone()
}

// RemoteStrokeExtend replays the same transition the author ran:
// endpoint replacement for two-point kinds, append-and-commit for
// freehand strokes.
func (b *Board) RemoteStrokeExtend(userID string, point domain.Point) {
	shape, ok := b.remote[userID]
	if !ok {
		return
	}
	extendShape(shape, point)
	if shape.Kind == domain.KindStroke {
		b.upsert(*shape.Clone())
	}
}

// RemoteStrokeEnd finalizes a remote author's stroke with the same
// fewer-than-two-points discard rule.
func (b *Board) RemoteStrokeEnd(userID string) {
	shape, ok := b.remote[userID]
	if !ok {
		return
	}
	delete(b.remote, userID)
	if len(shape.Points) < 2 {
		return
	}
	b.upsert(*shape.Clone())
}

// RemoteCurrent returns the open stroke of a remote user, for
// rendering in-progress strokes of other participants.
func (b *Board) RemoteCurrent(userID string) *domain.Shape {
	return b.remote[userID].Clone()
}

// DropRemoteAuthor discards a remote user's open slot, e.g. on leave.
func (b *Board) DropRemoteAuthor(userID string) {
	delete(b.remote, userID)
}

// --- internals -----------------------------------------------------

func extendShape(s *domain.Shape, point domain.Point) {
	switch s.Kind {
	case domain.KindStroke:
		s.Points = append(s.Points, point)
	default:
		// Start stays fixed, the end follows the pointer.
		if len(s.Points) == 1 {
			s.Points = append(s.Points, point)
		} else {
			s.Points[len(s.Points)-1] = point
		}
	}
}

func (b *Board) upsert(shape domain.Shape) {
	for i := range b.shapes {
		if b.shapes[i].ID == shape.ID {
			b.shapes[i] = shape
			return
		}
	}
	b.shapes = append(b.shapes, shape)
}

func (b *Board) pushUndo() {
	b.pushUndoSnapshot(cloneShapes(b.shapes))
}

func (b *Board) pushUndoSnapshot(snapshot []domain.Shape) {
	b.undo = append(b.undo, snapshot)
	b.redo = nil
}

// replaceShapesEmittingDiff swaps in the target list and replicates the
// difference as deletes and upserts.
func (b *Board) replaceShapesEmittingDiff(target []domain.Shape) {
	oldByID := make(map[string]domain.Shape, len(b.shapes))
	for _, s := range b.shapes {
		oldByID[s.ID] = s
	}
	newByID := make(map[string]struct{}, len(target))
	for _, s := range target {
		newByID[s.ID] = struct{}{}
	}

	removed := make([]string, 0)
	for _, s := range b.shapes {
		if _, kept := newByID[s.ID]; !kept {
			removed = append(removed, s.ID)
		}
	}

	b.shapes = cloneShapes(target)
	b.selected = make(map[string]struct{})
	for i := range b.shapes {
		b.shapes[i].Selected = false
	}

	if b.obs == nil {
		return
	}
	if len(removed) > 0 {
		b.obs.ShapesDeleted(removed)
	}
	for _, s := range b.shapes {
		old, existed := oldByID[s.ID]
		if !existed || !shapesEqual(old, s) {
			b.obs.ShapeUpserted(*s.Clone())
		}
	}
}

func shapesEqual(a, b domain.Shape) bool {
	if a.ID != b.ID || a.Kind != b.Kind || a.Text != b.Text ||
		a.ImageRef != b.ImageRef || a.Style != b.Style || len(a.Points) != len(b.Points) {
		return false
	}
	for i := range a.Points {
		if a.Points[i] != b.Points[i] {
			return false
		}
	}
	return true
}

func cloneShapes(shapes []domain.Shape) []domain.Shape {
	if shapes == nil {
		return nil
	}
	out := make([]domain.Shape, len(shapes))
	for i := range shapes {
		out[i] = *shapes[i].Clone()
	}
	return out
}
