// Package scene holds the boxes being edited on the current image, the
// selection, the transient overlays and the hit-testing that the gesture
// controller and renderer share.
package scene

import (
	"box-annotator/internal/annotation"
	"box-annotator/internal/viewport"
	"box-annotator/pkg/geometry"
)

const (
	DefaultHandleDrawSize = 8.0
	DefaultHandleHitPad   = 6.0
)

// Handle identifies one of the eight resize grips of a box.
type Handle int

const (
	HandleNone Handle = iota
	HandleN
	HandleNE
	HandleE
	HandleSE
	HandleS
	HandleSW
	HandleW
	HandleNW
)

var handleNames = map[Handle]string{
	HandleNone: "none",
	HandleN:    "n",
	HandleNE:   "ne",
	HandleE:    "e",
	HandleSE:   "se",
	HandleS:    "s",
	HandleSW:   "sw",
	HandleW:    "w",
	HandleNW:   "nw",
}

func (h Handle) String() string { return handleNames[h] }

// HandlePoint is a grip and its anchor in image space.
type HandlePoint struct {
	Handle Handle
	Point  geometry.Point2D
}

// HandlePoints returns the grip anchors of r in the order NW, N, NE, W, E,
// SW, S, SE.
func HandlePoints(r geometry.Rect) []HandlePoint {
	cx := r.X + r.Width/2
	cy := r.Y + r.Height/2
	return []HandlePoint{
		{HandleNW, geometry.Point2D{X: r.X, Y: r.Y}},
		{HandleN, geometry.Point2D{X: cx, Y: r.Y}},
		{HandleNE, geometry.Point2D{X: r.Right(), Y: r.Y}},
		{HandleW, geometry.Point2D{X: r.X, Y: cy}},
		{HandleE, geometry.Point2D{X: r.Right(), Y: cy}},
		{HandleSW, geometry.Point2D{X: r.X, Y: r.Bottom()}},
		{HandleS, geometry.Point2D{X: cx, Y: r.Bottom()}},
		{HandleSE, geometry.Point2D{X: r.Right(), Y: r.Bottom()}},
	}
}

// Sides are tested before corners so a click near a side midpoint never
// picks a corner.
var handleHitOrder = []Handle{
	HandleN, HandleE, HandleS, HandleW,
	HandleNW, HandleNE, HandleSE, HandleSW,
}

// Scene is the editable annotation state of one image. It is not safe for
// concurrent use; every call happens on the UI goroutine.
type Scene struct {
	view *viewport.Transform

	boxes    []*annotation.Box
	selected map[int]bool
	marquee  *geometry.Rect
	preview  *geometry.Rect

	// Screen-pixel sizes of the drawn grip and the extra hit margin around it.
	HandleDrawSize float64
	HandleHitPad   float64

	listeners    map[int]func()
	nextListener int
}

// New creates an empty scene viewed through vt.
func New(vt *viewport.Transform) *Scene {
	return &Scene{
		view:           vt,
		selected:       make(map[int]bool),
		HandleDrawSize: DefaultHandleDrawSize,
		HandleHitPad:   DefaultHandleHitPad,
		listeners:      make(map[int]func()),
	}
}

// Viewport returns the transform the scene is viewed through.
func (s *Scene) Viewport() *viewport.Transform { return s.view }

// OnInvalidate registers fn to run after any visible change.
func (s *Scene) OnInvalidate(fn func()) (remove func()) {
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() { delete(s.listeners, id) }
}

// Invalidate asks listeners to redraw.
func (s *Scene) Invalidate() {
	for id := 0; id < s.nextListener; id++ {
		if fn, ok := s.listeners[id]; ok {
			fn()
		}
	}
}

// Boxes returns the boxes in z-order, bottom first.
func (s *Scene) Boxes() []*annotation.Box {
	out := make([]*annotation.Box, len(s.boxes))
	copy(out, s.boxes)
	return out
}

// Len returns the number of boxes.
func (s *Scene) Len() int { return len(s.boxes) }

// Box returns the box with the given id, or nil.
func (s *Scene) Box(id int) *annotation.Box {
	for _, b := range s.boxes {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// IndexOf returns the z-order index of b, or -1.
func (s *Scene) IndexOf(b *annotation.Box) int {
	for i, x := range s.boxes {
		if x == b {
			return i
		}
	}
	return -1
}

// Add appends b on top of the z-order.
func (s *Scene) Add(b *annotation.Box) {
	s.insert(len(s.boxes), b)
	s.Invalidate()
}

// Insert places b at index, clamped to [0, Len()].
func (s *Scene) Insert(index int, b *annotation.Box) {
	s.insert(index, b)
	s.Invalidate()
}

// Remove takes b out of the list and the selection. It reports whether b
// was present.
func (s *Scene) Remove(b *annotation.Box) bool {
	ok := s.remove(b)
	if ok {
		s.Invalidate()
	}
	return ok
}

// SetBoxRect replaces the geometry of the box with the given id.
func (s *Scene) SetBoxRect(id int, r geometry.Rect) {
	if b := s.Box(id); b != nil {
		b.SetRect(r)
		s.Invalidate()
	}
}

// ReplaceAll swaps in a freshly loaded box list and drops the selection
// and overlays.
func (s *Scene) ReplaceAll(boxes []*annotation.Box) {
	s.boxes = append(s.boxes[:0:0], boxes...)
	s.selected = make(map[int]bool)
	s.marquee = nil
	s.preview = nil
	s.Invalidate()
}

func (s *Scene) insert(index int, b *annotation.Box) {
	if index < 0 {
		index = 0
	}
	if index > len(s.boxes) {
		index = len(s.boxes)
	}
	s.boxes = append(s.boxes, nil)
	copy(s.boxes[index+1:], s.boxes[index:])
	s.boxes[index] = b
}

func (s *Scene) remove(b *annotation.Box) bool {
	i := s.IndexOf(b)
	if i < 0 {
		return false
	}
	s.removeAt(i)
	return true
}

func (s *Scene) removeAt(i int) {
	b := s.boxes[i]
	s.boxes = append(s.boxes[:i], s.boxes[i+1:]...)
	delete(s.selected, b.ID)
}

// Selection

// IsSelected reports whether the box with id is selected.
func (s *Scene) IsSelected(id int) bool { return s.selected[id] }

// SelectionCount returns the number of selected boxes.
func (s *Scene) SelectionCount() int { return len(s.selected) }

// Selected returns the selected boxes in z-order.
func (s *Scene) Selected() []*annotation.Box {
	var out []*annotation.Box
	for _, b := range s.boxes {
		if s.selected[b.ID] {
			out = append(out, b)
		}
	}
	return out
}

// SelectedIDs returns the ids of the selected boxes in z-order.
func (s *Scene) SelectedIDs() []int {
	var out []int
	for _, b := range s.boxes {
		if s.selected[b.ID] {
			out = append(out, b.ID)
		}
	}
	return out
}

// SingleSelected returns the selected box when exactly one is selected.
func (s *Scene) SingleSelected() *annotation.Box {
	if len(s.selected) != 1 {
		return nil
	}
	for _, b := range s.boxes {
		if s.selected[b.ID] {
			return b
		}
	}
	return nil
}

// ClearSelection deselects everything.
func (s *Scene) ClearSelection() {
	if len(s.selected) == 0 {
		return
	}
	s.selected = make(map[int]bool)
	s.Invalidate()
}

// Select adds id to the selection if the box exists.
func (s *Scene) Select(id int) {
	if s.Box(id) == nil || s.selected[id] {
		return
	}
	s.selected[id] = true
	s.Invalidate()
}

// Deselect removes id from the selection.
func (s *Scene) Deselect(id int) {
	if !s.selected[id] {
		return
	}
	delete(s.selected, id)
	s.Invalidate()
}

// ToggleSelected flips the selection state of id.
func (s *Scene) ToggleSelected(id int) {
	if s.selected[id] {
		s.Deselect(id)
	} else {
		s.Select(id)
	}
}

// SetSelection makes ids the whole selection. Unknown ids are ignored.
func (s *Scene) SetSelection(ids []int) {
	s.setSelection(ids)
	s.Invalidate()
}

func (s *Scene) setSelection(ids []int) {
	s.selected = make(map[int]bool, len(ids))
	for _, id := range ids {
		if s.Box(id) != nil {
			s.selected[id] = true
		}
	}
}

// Overlays

// Marquee returns the marquee rectangle in image space, if shown.
func (s *Scene) Marquee() (geometry.Rect, bool) {
	if s.marquee == nil {
		return geometry.Rect{}, false
	}
	return *s.marquee, true
}

// SetMarquee shows the marquee rectangle; nil hides it.
func (s *Scene) SetMarquee(r *geometry.Rect) {
	s.marquee = copyRect(r)
	s.Invalidate()
}

// Preview returns the create-box preview in image space, if shown.
func (s *Scene) Preview() (geometry.Rect, bool) {
	if s.preview == nil {
		return geometry.Rect{}, false
	}
	return *s.preview, true
}

// SetPreview shows the create-box preview; nil hides it.
func (s *Scene) SetPreview(r *geometry.Rect) {
	s.preview = copyRect(r)
	s.Invalidate()
}

func copyRect(r *geometry.Rect) *geometry.Rect {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Hit-testing

// HitTestBox returns the topmost box containing the screen point, or nil.
// Box edges count as inside.
func (s *Scene) HitTestBox(screenPoint geometry.Point2D) *annotation.Box {
	p := s.view.ScreenToImage(screenPoint)
	for i := len(s.boxes) - 1; i >= 0; i-- {
		if s.boxes[i].Rect().Contains(p) {
			return s.boxes[i]
		}
	}
	return nil
}

// BoxesIntersecting returns the boxes whose rectangles intersect r (image
// space), in z-order.
func (s *Scene) BoxesIntersecting(r geometry.Rect) []*annotation.Box {
	var out []*annotation.Box
	for _, b := range s.boxes {
		if b.Rect().Intersects(r) {
			out = append(out, b)
		}
	}
	return out
}

// HitTestHandle returns the grip of b under the screen point, or HandleNone.
func (s *Scene) HitTestHandle(screenPoint geometry.Point2D, b *annotation.Box) Handle {
	if b == nil {
		return HandleNone
	}
	anchors := make(map[Handle]geometry.Point2D, 8)
	for _, hp := range HandlePoints(b.Rect()) {
		anchors[hp.Handle] = hp.Point
	}
	for _, h := range handleHitOrder {
		if s.handleHitRect(anchors[h]).Contains(screenPoint) {
			return h
		}
	}
	return HandleNone
}

// handleHitRect is the padded screen-space square around an anchor.
func (s *Scene) handleHitRect(anchor geometry.Point2D) geometry.Rect {
	c := s.view.ImageToScreen(anchor)
	size := s.HandleDrawSize + 2*s.HandleHitPad
	return geometry.Rect{X: c.X - size/2, Y: c.Y - size/2, Width: size, Height: size}
}

func (s *Scene) handleDrawRect(anchor geometry.Point2D) geometry.Rect {
	c := s.view.ImageToScreen(anchor)
	size := s.HandleDrawSize
	return geometry.Rect{X: c.X - size/2, Y: c.Y - size/2, Width: size, Height: size}
}
