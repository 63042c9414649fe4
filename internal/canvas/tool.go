package canvas

import "github.com/tahababou12/CoCo-sub000/internal/domain"

type Tool string

const (
	ToolSelect    Tool = "select"
	ToolPan       Tool = "pan"
	ToolEraser    Tool = "eraser"
	ToolPen       Tool = "pen"
	ToolRectangle Tool = "rectangle"
	ToolEllipse   Tool = "ellipse"
	ToolLine      Tool = "line"
	ToolText      Tool = "text"
	ToolImage     Tool = "image"
)

// ShapeKind maps a tool to the shape kind it authors. Select, pan and
// eraser author nothing.
func (t Tool) ShapeKind() (domain.ShapeKind, bool) {
	switch t {
	case ToolPen:
		return domain.KindStroke, true
	case ToolRectangle:
		return domain.KindRectangle, true
	case ToolEllipse:
		return domain.KindEllipse, true
	case ToolLine:
		return domain.KindLine, true
	case ToolText:
		return domain.KindText, true
	case ToolImage:
		return domain.KindImage, true
	}
	return "", false
}
