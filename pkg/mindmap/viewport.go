package mindmap

const (
	MinViewWidth = 80.0
	MaxViewWidth = 8000.0

	zoomOut = 1.1
	zoomIn  = 0.9
)

// ViewBox is the visible region of the map in layout coordinates.
type ViewBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// DefaultViewBox is the view when a map is first opened.
func DefaultViewBox() ViewBox {
	return ViewBox{X: -400, Y: -300, W: 800, H: 600}
}

// Pan moves the view by a pointer drag of (dxPx, dyPx) screen pixels on a
// surface clientW by clientH pixels large. Dragging right moves the view left.
func (v ViewBox) Pan(dxPx, dyPx, clientW, clientH float64) ViewBox {
	if clientW <= 0 || clientH <= 0 {
		return v
	}
	v.X -= dxPx * (v.W / clientW)
	v.Y -= dyPx * (v.H / clientH)
	return v
}

// Zoom scales the view around its center: a positive wheel delta zooms out
// by 1.1, a negative one zooms in by 0.9. The width stays within
// [MinViewWidth, MaxViewWidth] and the aspect ratio is kept.
func (v ViewBox) Zoom(deltaY float64) ViewBox {
	if deltaY == 0 || v.W <= 0 {
		return v
	}
	scale := zoomIn
	if deltaY > 0 {
		scale = zoomOut
	}
	w := v.W * scale
	if w < MinViewWidth {
		scale = MinViewWidth / v.W
	} else if w > MaxViewWidth {
		scale = MaxViewWidth / v.W
	}
	return ViewBox{
		X: v.X + v.W*(1-scale)/2,
		Y: v.Y + v.H*(1-scale)/2,
		W: v.W * scale,
		H: v.H * scale,
	}
}
