// Package viewport maps between image space and screen space.
//
// The mapping is screen = image*scale + offset on both axes. There is no
// rotation and no clamping of the offset; the scale is kept within the
// configured bounds.
package viewport

import (
	"math"

	"box-annotator/pkg/geometry"
)

const (
	DefaultMinScale = 0.01
	DefaultMaxScale = 200.0
	DefaultMargin   = 20.0
)

// State is a snapshot of the transform parameters.
type State struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
}

// Transform is the mutable viewport. It is not safe for concurrent use.
type Transform struct {
	scale    float64
	offsetX  float64
	offsetY  float64
	minScale float64
	maxScale float64

	listeners map[int]func()
	nextID    int
}

// New creates a transform at scale 1 with no offset and the default bounds.
func New() *Transform {
	return NewWithBounds(DefaultMinScale, DefaultMaxScale)
}

// NewWithBounds creates a transform with custom scale bounds.
func NewWithBounds(minScale, maxScale float64) *Transform {
	if minScale <= 0 {
		minScale = DefaultMinScale
	}
	if maxScale < minScale {
		maxScale = minScale
	}
	return &Transform{
		scale:     1,
		minScale:  minScale,
		maxScale:  maxScale,
		listeners: make(map[int]func()),
	}
}

// Scale returns the current scale.
func (t *Transform) Scale() float64 { return t.scale }

// Offset returns the current screen offset.
func (t *Transform) Offset() geometry.Point2D {
	return geometry.Point2D{X: t.offsetX, Y: t.offsetY}
}

// Bounds returns the configured scale bounds.
func (t *Transform) Bounds() (minScale, maxScale float64) {
	return t.minScale, t.maxScale
}

// State returns a snapshot of the transform.
func (t *Transform) State() State {
	return State{Scale: t.scale, OffsetX: t.offsetX, OffsetY: t.offsetY}
}

// Set restores a snapshot. The scale is clamped to the bounds.
func (t *Transform) Set(s State) {
	t.scale = clamp(s.Scale, t.minScale, t.maxScale)
	t.offsetX = s.OffsetX
	t.offsetY = s.OffsetY
	t.notify()
}

// ImageToScreen maps an image-space point to screen space.
func (t *Transform) ImageToScreen(p geometry.Point2D) geometry.Point2D {
	return geometry.Point2D{
		X: p.X*t.scale + t.offsetX,
		Y: p.Y*t.scale + t.offsetY,
	}
}

// ScreenToImage maps a screen-space point to image space.
func (t *Transform) ScreenToImage(p geometry.Point2D) geometry.Point2D {
	return geometry.Point2D{
		X: (p.X - t.offsetX) / t.scale,
		Y: (p.Y - t.offsetY) / t.scale,
	}
}

// ImageRectToScreen maps an image-space rectangle to screen space.
func (t *Transform) ImageRectToScreen(r geometry.Rect) geometry.Rect {
	tl := t.ImageToScreen(r.TopLeft())
	return geometry.Rect{X: tl.X, Y: tl.Y, Width: r.Width * t.scale, Height: r.Height * t.scale}
}

// PanBy shifts the offset by a screen-space delta.
func (t *Transform) PanBy(delta geometry.Point2D) {
	t.offsetX += delta.X
	t.offsetY += delta.Y
	t.notify()
}

// ZoomAtScreenPoint multiplies the scale by factor, clamps it to
// [minScale, maxScale] and adjusts the offset so the image point under
// screenPoint stays under it.
func (t *Transform) ZoomAtScreenPoint(screenPoint geometry.Point2D, factor, minScale, maxScale float64) {
	before := t.ScreenToImage(screenPoint)
	t.scale = clamp(t.scale*factor, minScale, maxScale)
	t.offsetX = screenPoint.X - before.X*t.scale
	t.offsetY = screenPoint.Y - before.Y*t.scale
	t.notify()
}

// ZoomAt zooms around screenPoint using the configured bounds.
func (t *Transform) ZoomAt(screenPoint geometry.Point2D, factor float64) {
	t.ZoomAtScreenPoint(screenPoint, factor, t.minScale, t.maxScale)
}

// FitToImage scales the image to fit inside a view of viewW x viewH minus
// margin on every side and centers it. Non-positive sizes leave the
// transform untouched.
func (t *Transform) FitToImage(viewW, viewH, imgW, imgH, margin float64) {
	if viewW <= 0 || viewH <= 0 || imgW <= 0 || imgH <= 0 {
		return
	}
	availW := math.Max(1, viewW-2*margin)
	availH := math.Max(1, viewH-2*margin)
	s := clamp(math.Min(availW/imgW, availH/imgH), t.minScale, t.maxScale)
	t.scale = s
	t.offsetX = (viewW - imgW*s) / 2
	t.offsetY = (viewH - imgH*s) / 2
	t.notify()
}

// Affine returns the image-to-screen mapping as an affine transform.
func (t *Transform) Affine() geometry.AffineTransform {
	return geometry.Translation(t.offsetX, t.offsetY).Compose(geometry.Scale(t.scale, t.scale))
}

// OnChanged registers fn to run after every mutation. The returned
// function removes the subscription.
func (t *Transform) OnChanged(fn func()) (remove func()) {
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	return func() { delete(t.listeners, id) }
}

func (t *Transform) notify() {
	for id := 0; id < t.nextID; id++ {
		if fn, ok := t.listeners[id]; ok {
			fn()
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
