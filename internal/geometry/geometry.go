// Package geometry holds the pure hit-testing and stroke-splitting
// functions shared by selection, the eraser and sync reconciliation.
// Nothing here mutates its inputs or keeps state.
package geometry

import (
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/tahababou12/CoCo-sub000/internal/domain"
)

var ErrInvalidSplit = errors.New("stroke split index out of range")

// DefaultHitThreshold is the pick distance in canvas pixels for line
// and stroke shapes.
const DefaultHitThreshold = 5.0

const (
	defaultFontSize  = 16.0
	textWidthFactor  = 0.6
	textHeightFactor = 1.2
)

// DistSqToSegment projects p onto the segment ab, clamps the projection
// parameter to [0,1] and returns the squared distance. Squared so the
// hot path never pays for a square root.
func DistSqToSegment(p, a, b domain.Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		// Degenerate segment, distance to the single point.
		ex := p.X - a.X
		ey := p.Y - a.Y
		return ex*ex + ey*ey
	}

	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))

	cx := a.X + t*dx - p.X
	cy := a.Y + t*dy - p.Y
	return cx*cx + cy*cy
}

// HitTest reports whether point lies on shape, using
// DefaultHitThreshold for line and stroke kinds. It never errors;
// malformed shapes simply miss.
func HitTest(s *domain.Shape, p domain.Point) bool {
	return HitTestThreshold(s, p, DefaultHitThreshold)
}

func HitTestThreshold(s *domain.Shape, p domain.Point, threshold float64) bool {
	if s == nil || len(s.Points) == 0 {
		return false
	}

	switch s.Kind {
	case domain.KindRectangle, domain.KindImage:
		return hitRect(s, p)
	case domain.KindEllipse:
		return hitEllipse(s, p)
	case domain.KindLine, domain.KindStroke:
		idx := FindIntersectingSegment(s, p, threshold)
		return idx != -1
	case domain.KindText:
		return hitText(s, p)
	}
	return false
}

func hitRect(s *domain.Shape, p domain.Point) bool {
	if len(s.Points) < 2 {
		return false
	}
	minX, maxX := order(s.Points[0].X, s.Points[1].X)
	minY, maxY := order(s.Points[0].Y, s.Points[1].Y)
	if minX == maxX || minY == maxY {
		// Zero-area rectangle never hits.
		return false
	}
	return p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY
}

func hitEllipse(s *domain.Shape, p domain.Point) bool {
	if len(s.Points) < 2 {
		return false
	}
	cx := (s.Points[0].X + s.Points[1].X) / 2
	cy := (s.Points[0].Y + s.Points[1].Y) / 2
	rx := math.Abs(s.Points[1].X-s.Points[0].X) / 2
	ry := math.Abs(s.Points[1].Y-s.Points[0].Y) / 2
	if rx == 0 || ry == 0 {
		return false
	}
	nx := (p.X - cx) / rx
	ny := (p.Y - cy) / ry
	return nx*nx+ny*ny <= 1
}

func hitText(s *domain.Shape, p domain.Point) bool {
	fontSize := s.Style.FontSize
	if fontSize <= 0 {
		fontSize = defaultFontSize
	}
	anchor := s.Points[0]
	width := float64(len(s.Text)) * fontSize * textWidthFactor
	height := fontSize * textHeightFactor
	return p.X >= anchor.X && p.X <= anchor.X+width &&
		p.Y >= anchor.Y && p.Y <= anchor.Y+height
}

// FindIntersectingSegment returns the index of the first segment of the
// stroke within threshold of point, or -1 when none is.
func FindIntersectingSegment(s *domain.Shape, p domain.Point, threshold float64) int {
	if s == nil || len(s.Points) == 0 {
		return -1
	}
	thresholdSq := threshold * threshold

	if len(s.Points) == 1 {
		if DistSqToSegment(p, s.Points[0], s.Points[0]) <= thresholdSq {
			return 0
		}
		return -1
	}

	for i := 0; i < len(s.Points)-1; i++ {
		if DistSqToSegment(p, s.Points[i], s.Points[i+1]) <= thresholdSq {
			return i
		}
	}
	return -1
}

// SplitStroke partitions a stroke's points at segment index i into two
// new strokes that share the boundary point. Both halves get fresh ids
// and a copy of the original style so either can be erased again
// independently.
func SplitStroke(s *domain.Shape, i int) (*domain.Shape, *domain.Shape, error) {
	if s == nil || i < 0 || i > len(s.Points)-2 {
		return nil, nil, ErrInvalidSplit
	}

	first := &domain.Shape{
		ID:        uuid.New().String(),
		Kind:      s.Kind,
		Points:    append([]domain.Point(nil), s.Points[:i+1]...),
		Style:     s.Style,
		CreatedBy: s.CreatedBy,
	}
	second := &domain.Shape{
		ID:        uuid.New().String(),
		Kind:      s.Kind,
		Points:    append([]domain.Point(nil), s.Points[i+1:]...),
		Style:     s.Style,
		CreatedBy: s.CreatedBy,
	}
	return first, second, nil
}

// Bounds returns the axis-aligned bounding box over all points.
func Bounds(s *domain.Shape) (min, max domain.Point) {
	if s == nil || len(s.Points) == 0 {
		return
	}
	min, max = s.Points[0], s.Points[0]
	for _, p := range s.Points[1:] {
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
	}
	return min, max
}

// InBox reports whether shape falls inside the drag rectangle spanned
// by a and b. Rectangles, ellipses and images select by bounding-box
// overlap, lines and strokes by any point inside, text by its anchor.
func InBox(s *domain.Shape, a, b domain.Point) bool {
	if s == nil || len(s.Points) == 0 {
		return false
	}
	minX, maxX := order(a.X, b.X)
	minY, maxY := order(a.Y, b.Y)

	switch s.Kind {
	case domain.KindRectangle, domain.KindEllipse, domain.KindImage:
		sMin, sMax := Bounds(s)
		return sMin.X <= maxX && sMax.X >= minX && sMin.Y <= maxY && sMax.Y >= minY
	case domain.KindLine, domain.KindStroke:
		for _, p := range s.Points {
			if p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY {
				return true
			}
		}
		return false
	case domain.KindText:
		anchor := s.Points[0]
		return anchor.X >= minX && anchor.X <= maxX && anchor.Y >= minY && anchor.Y <= maxY
	}
	return false
}

func order(a, b float64) (float64, float64) {
	if a > b {
		return b, a
	}
	return a, b
}
