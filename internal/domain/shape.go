package domain

import "github.com/google/uuid"

type ShapeKind string

const (
	KindRectangle ShapeKind = "rectangle"
	KindEllipse   ShapeKind = "ellipse"
	KindLine      ShapeKind = "line"
	KindStroke    ShapeKind = "stroke"
	KindText      ShapeKind = "text"
	KindImage     ShapeKind = "image"
)

// Point is a canvas coordinate. The hand-tracking flags are provenance
// for presence rendering only and carry no geometric meaning.
type Point struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	IsHandTracking bool    `json:"isHandTracking,omitempty"`
	HandIndex      int     `json:"handIndex,omitempty"`
}

type ShapeStyle struct {
	StrokeColor string  `json:"strokeColor"`
	FillColor   string  `json:"fillColor,omitempty"`
	StrokeWidth float64 `json:"strokeWidth"`
	Opacity     float64 `json:"opacity"`
	FontSize    float64 `json:"fontSize,omitempty"`
}

// Shape is a drawable object with a stable id assigned by the client
// that authored it. The id is never reassigned.
//
// Rectangle, ellipse and line shapes hold exactly two points (opposing
// corners / endpoints), a freehand stroke holds one or more points and
// grows while authored, text and image anchor on their first point.
type Shape struct {
	ID        string     `json:"id"`
	Kind      ShapeKind  `json:"kind"`
	Points    []Point    `json:"points"`
	Text      string     `json:"text,omitempty"`
	ImageRef  string     `json:"imageRef,omitempty"`
	Style     ShapeStyle `json:"style"`
	Selected  bool       `json:"selected"`
	CreatedBy string     `json:"createdBy,omitempty"`
}

func NewShape(kind ShapeKind, start Point, style ShapeStyle, createdBy string) *Shape {
	return &Shape{
		ID:        uuid.New().String(),
		Kind:      kind,
		Points:    []Point{start},
		Style:     style,
		CreatedBy: createdBy,
	}
}

// Clone returns a deep copy. Shapes cross goroutine boundaries through
// snapshots and wire messages, never by shared reference.
func (s *Shape) Clone() *Shape {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Points = make([]Point, len(s.Points))
	copy(cp.Points, s.Points)
	return &cp
}
