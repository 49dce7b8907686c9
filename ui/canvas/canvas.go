// Package canvas provides the annotation canvas widget: it draws the scene
// and forwards mouse, wheel and keyboard input to the gesture controller.
package canvas

import (
	"image"
	"math"

	"box-annotator/internal/gesture"
	"box-annotator/internal/scene"
	"box-annotator/pkg/geometry"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
)

// AnnotationCanvas displays the scene through its viewport.
type AnnotationCanvas struct {
	widget.BaseWidget

	scene      *scene.Scene
	ctrl       *gesture.Controller
	styles     scene.StyleLookup
	background func() image.Image

	raster *fynecanvas.Raster

	// Button that started the current gesture, if any.
	pressed  gesture.Button
	captured bool
	lastPos  fyne.Position

	onResize  func(w, h float64)
	onPointer func(p geometry.Point2D)
	onKey     func(ev *fyne.KeyEvent) bool
}

var (
	_ desktop.Mouseable   = (*AnnotationCanvas)(nil)
	_ desktop.Hoverable   = (*AnnotationCanvas)(nil)
	_ desktop.Cursorable  = (*AnnotationCanvas)(nil)
	_ fyne.Draggable      = (*AnnotationCanvas)(nil)
	_ fyne.Scrollable     = (*AnnotationCanvas)(nil)
	_ fyne.Focusable      = (*AnnotationCanvas)(nil)
	_ fyne.Shortcutable   = (*AnnotationCanvas)(nil)
	_ gesture.Capturer    = (*AnnotationCanvas)(nil)
	_ fyne.CanvasObject   = (*AnnotationCanvas)(nil)
	_ fyne.WidgetRenderer = (*canvasRenderer)(nil)
)

// New creates a canvas drawing s and driving ctrl. background returns the
// image under the boxes and may return nil.
func New(s *scene.Scene, ctrl *gesture.Controller, styles scene.StyleLookup, background func() image.Image) *AnnotationCanvas {
	ac := &AnnotationCanvas{
		scene:      s,
		ctrl:       ctrl,
		styles:     styles,
		background: background,
	}
	ac.raster = fynecanvas.NewRaster(ac.draw)
	ac.raster.ScaleMode = fynecanvas.ImageScalePixels

	ctrl.Capture = ac
	s.OnInvalidate(ac.raster.Refresh)
	s.Viewport().OnChanged(ac.raster.Refresh)

	ac.ExtendBaseWidget(ac)
	return ac
}

// OnResize registers a callback receiving the canvas size after layout.
func (ac *AnnotationCanvas) OnResize(fn func(w, h float64)) { ac.onResize = fn }

// OnPointer registers a callback receiving the cursor position in image space.
func (ac *AnnotationCanvas) OnPointer(fn func(p geometry.Point2D)) { ac.onPointer = fn }

// OnKey registers a handler for keys the controller does not consume.
func (ac *AnnotationCanvas) OnKey(fn func(ev *fyne.KeyEvent) bool) { ac.onKey = fn }

// Capture implements gesture.Capturer.
func (ac *AnnotationCanvas) Capture() { ac.captured = true }

// Release implements gesture.Capturer.
func (ac *AnnotationCanvas) Release() {
	ac.captured = false
	ac.pressed = gesture.ButtonNone
}

// Captured reports whether a gesture currently owns the pointer.
func (ac *AnnotationCanvas) Captured() bool { return ac.captured }

// Resize lays the canvas out and reports the new size.
func (ac *AnnotationCanvas) Resize(size fyne.Size) {
	ac.BaseWidget.Resize(size)
	if ac.onResize != nil {
		ac.onResize(float64(size.Width), float64(size.Height))
	}
}

// draw renders at the widget's logical size; the raster scales to pixels.
func (ac *AnnotationCanvas) draw(w, h int) image.Image {
	size := ac.Size()
	lw, lh := int(math.Ceil(float64(size.Width))), int(math.Ceil(float64(size.Height)))
	if lw <= 0 || lh <= 0 {
		lw, lh = w, h
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(lw, 1), max(lh, 1)))

	var bg image.Image
	if ac.background != nil {
		bg = ac.background()
	}
	ac.scene.Render(dst, ac.styles, bg)
	return dst
}

// Mouse input

func (ac *AnnotationCanvas) MouseDown(ev *desktop.MouseEvent) {
	ac.requestFocus()
	btn := mapButton(ev.Button)
	if btn == gesture.ButtonNone {
		return
	}
	ac.lastPos = ev.Position
	if ac.ctrl.Mode() == gesture.ModeIdle {
		ac.pressed = btn
	}
	ac.ctrl.PointerDown(gesture.PointerEvent{
		Position:  toPoint(ev.Position),
		Button:    btn,
		Modifiers: mapModifiers(ev.Modifier),
	})
}

func (ac *AnnotationCanvas) MouseUp(ev *desktop.MouseEvent) {
	btn := mapButton(ev.Button)
	if btn == gesture.ButtonNone {
		return
	}
	ac.lastPos = ev.Position
	ac.release(btn, ev.Position)
}

func (ac *AnnotationCanvas) release(btn gesture.Button, pos fyne.Position) {
	if btn == ac.pressed {
		ac.pressed = gesture.ButtonNone
	}
	ac.ctrl.PointerUp(gesture.PointerEvent{Position: toPoint(pos), Button: btn})
}

// MouseIn finishes a gesture whose button was released outside the canvas.
func (ac *AnnotationCanvas) MouseIn(ev *desktop.MouseEvent) {
	if ac.pressed != gesture.ButtonNone && ev.Button&buttonMask(ac.pressed) == 0 {
		ac.release(ac.pressed, ac.lastPos)
	}
	ac.move(ev.Position, mapModifiers(ev.Modifier))
}

func (ac *AnnotationCanvas) MouseMoved(ev *desktop.MouseEvent) {
	ac.move(ev.Position, mapModifiers(ev.Modifier))
}

func (ac *AnnotationCanvas) MouseOut() {}

// Dragged keeps delivering moves when the cursor leaves the canvas with the
// left or middle button held.
func (ac *AnnotationCanvas) Dragged(ev *fyne.DragEvent) {
	ac.move(ev.Position, 0)
}

func (ac *AnnotationCanvas) DragEnd() {
	if ac.pressed != gesture.ButtonNone {
		ac.release(ac.pressed, ac.lastPos)
	}
}

func (ac *AnnotationCanvas) move(pos fyne.Position, mods gesture.Modifiers) {
	ac.lastPos = pos
	p := toPoint(pos)
	ac.ctrl.PointerMove(gesture.PointerEvent{Position: p, Button: ac.pressed, Modifiers: mods})
	if ac.onPointer != nil {
		ac.onPointer(ac.scene.Viewport().ScreenToImage(p))
	}
}

func (ac *AnnotationCanvas) Scrolled(ev *fyne.ScrollEvent) {
	ac.ctrl.Wheel(gesture.WheelEvent{
		Position: toPoint(ev.Position),
		Delta:    float64(ev.Scrolled.DY),
	})
}

func (ac *AnnotationCanvas) Cursor() desktop.Cursor {
	return desktop.CrosshairCursor
}

// Keyboard input

func (ac *AnnotationCanvas) FocusGained() {}
func (ac *AnnotationCanvas) FocusLost()   {}
func (ac *AnnotationCanvas) TypedRune(r rune) {}

func (ac *AnnotationCanvas) TypedKey(ev *fyne.KeyEvent) {
	switch ev.Name {
	case fyne.KeyDelete, fyne.KeyBackspace:
		ac.ctrl.KeyDown(gesture.KeyEvent{Key: gesture.KeyDelete})
		return
	}
	if ac.onKey != nil {
		ac.onKey(ev)
	}
}

// TypedShortcut maps Ctrl/Cmd shortcuts onto controller keys.
func (ac *AnnotationCanvas) TypedShortcut(s fyne.Shortcut) {
	ks, ok := s.(fyne.KeyboardShortcut)
	if !ok {
		return
	}
	key := mapKey(ks.Key())
	mods := mapModifiers(ks.Mod())
	if key == gesture.KeyUnknown || !mods.Has(gesture.ModToggle) {
		return
	}
	if key == gesture.KeyZ && mods.Has(gesture.ModAdditive) {
		key = gesture.KeyY
	}
	ac.ctrl.KeyDown(gesture.KeyEvent{Key: key, Modifiers: mods})
}

func (ac *AnnotationCanvas) requestFocus() {
	if c := fyne.CurrentApp(); c != nil {
		if cv := c.Driver().CanvasForObject(ac); cv != nil {
			cv.Focus(ac)
		}
	}
}

// CreateRenderer implements fyne.Widget.
func (ac *AnnotationCanvas) CreateRenderer() fyne.WidgetRenderer {
	return &canvasRenderer{canvas: ac}
}

type canvasRenderer struct {
	canvas *AnnotationCanvas
}

func (r *canvasRenderer) Layout(size fyne.Size) {
	r.canvas.raster.Resize(size)
}

func (r *canvasRenderer) MinSize() fyne.Size {
	return fyne.NewSize(200, 150)
}

func (r *canvasRenderer) Refresh() {
	r.canvas.raster.Refresh()
}

func (r *canvasRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.canvas.raster}
}

func (r *canvasRenderer) Destroy() {}

// Event mapping

func toPoint(p fyne.Position) geometry.Point2D {
	return geometry.NewPoint2D(float64(p.X), float64(p.Y))
}

func mapButton(b desktop.MouseButton) gesture.Button {
	switch {
	case b&desktop.MouseButtonPrimary != 0:
		return gesture.ButtonLeft
	case b&desktop.MouseButtonSecondary != 0:
		return gesture.ButtonRight
	case b&desktop.MouseButtonTertiary != 0:
		return gesture.ButtonMiddle
	}
	return gesture.ButtonNone
}

func buttonMask(b gesture.Button) desktop.MouseButton {
	switch b {
	case gesture.ButtonLeft:
		return desktop.MouseButtonPrimary
	case gesture.ButtonRight:
		return desktop.MouseButtonSecondary
	case gesture.ButtonMiddle:
		return desktop.MouseButtonTertiary
	}
	return 0
}

func mapModifiers(m fyne.KeyModifier) gesture.Modifiers {
	var out gesture.Modifiers
	if m&(fyne.KeyModifierControl|fyne.KeyModifierSuper) != 0 {
		out |= gesture.ModToggle
	}
	if m&fyne.KeyModifierShift != 0 {
		out |= gesture.ModAdditive
	}
	return out
}

func mapKey(k fyne.KeyName) gesture.Key {
	switch k {
	case fyne.KeyZ:
		return gesture.KeyZ
	case fyne.KeyY:
		return gesture.KeyY
	case fyne.KeyC:
		return gesture.KeyC
	case fyne.KeyV:
		return gesture.KeyV
	case fyne.KeyDelete:
		return gesture.KeyDelete
	}
	return gesture.KeyUnknown
}
