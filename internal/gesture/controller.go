// Package gesture turns pointer, wheel and keyboard input into viewport
// changes, selection changes and undoable scene commands.
package gesture

import (
	"log/slog"
	"math"

	"box-annotator/internal/annotation"
	"box-annotator/internal/containment"
	"box-annotator/internal/history"
	"box-annotator/internal/logging"
	"box-annotator/internal/scene"
	"box-annotator/pkg/geometry"
)

// unknownBound stands in for image dimensions when none are known.
const unknownBound = 1e6

// ImageProvider reports the pixel size of the displayed image. Zero means
// unknown.
type ImageProvider interface {
	ImageSize() (width, height int)
}

// Capturer routes every pointer event to the canvas until Release.
type Capturer interface {
	Capture()
	Release()
}

// ActiveCategory is the category given to newly created boxes.
type ActiveCategory struct {
	ID   int
	Name string
}

// Config holds the tunable editor constants.
type Config struct {
	WheelFactor   float64
	PasteOffset   float64
	MinBoxSize    float64
	MoveThreshold float64 // squared image-space distance
}

// DefaultConfig returns the standard editor constants.
func DefaultConfig() Config {
	return Config{
		WheelFactor:   1.15,
		PasteOffset:   10,
		MinBoxSize:    1,
		MoveThreshold: 0.25,
	}
}

// Controller is the gesture state machine. All methods run on the UI
// goroutine.
type Controller struct {
	scene   *scene.Scene
	history *history.History
	cfg     Config
	log     *slog.Logger

	// Images supplies clamping bounds; nil means unknown.
	Images ImageProvider
	// Capture is told when a mode starts and ends; may be nil.
	Capture Capturer
	// Resolver infers parents for new boxes.
	Resolver containment.Resolver
	// Category is used for created and pasted boxes.
	Category ActiveCategory

	mode      Mode
	nextID    int
	lastMouse geometry.Point2D

	createAnchor  geometry.Point2D
	marqueeAnchor geometry.Point2D

	dragAnchor geometry.Point2D
	dragStart  map[int]geometry.Rect

	resizeBox    *annotation.Box
	resizeHandle scene.Handle
	resizeStart  geometry.Rect

	clipboard       []geometry.Rect
	lastCreatedSize *geometry.Size

	onModeChanged []func(Mode)
}

// New creates a controller editing s and recording commands in h.
func New(s *scene.Scene, h *history.History, cfg Config) *Controller {
	return &Controller{
		scene:   s,
		history: h,
		cfg:     cfg,
		log:     logging.WithComponent("gesture"),
		nextID:  1,
		Category: ActiveCategory{
			ID:   annotation.DefaultCategoryID,
			Name: annotation.DefaultCategoryName,
		},
	}
}

// Mode returns the active mode.
func (c *Controller) Mode() Mode { return c.mode }

// OnModeChanged registers fn to run on every mode transition.
func (c *Controller) OnModeChanged(fn func(Mode)) {
	c.onModeChanged = append(c.onModeChanged, fn)
}

// NextID returns the id the next new box will get.
func (c *Controller) NextID() int { return c.nextID }

// SetNextID moves the id counter. It never moves backwards.
func (c *Controller) SetNextID(n int) {
	if n > c.nextID {
		c.nextID = n
	}
}

// LastMouse returns the last pointer position seen, in screen space.
func (c *Controller) LastMouse() geometry.Point2D { return c.lastMouse }

// ResetForImage abandons any gesture and clears overlays and selection.
// The clipboard survives so boxes can be pasted onto another image.
func (c *Controller) ResetForImage() {
	if c.mode != ModeIdle && c.Capture != nil {
		c.Capture.Release()
	}
	c.resizeBox = nil
	c.dragStart = nil
	c.scene.SetMarquee(nil)
	c.scene.SetPreview(nil)
	c.scene.ClearSelection()
	c.setMode(ModeIdle)
}

func (c *Controller) allocID() int {
	id := c.nextID
	c.nextID++
	return id
}

func (c *Controller) setMode(m Mode) {
	if c.mode == m {
		return
	}
	c.log.Debug("mode", slog.String("from", c.mode.String()), slog.String("to", m.String()))
	c.mode = m
	for _, fn := range c.onModeChanged {
		fn(m)
	}
}

func (c *Controller) enter(m Mode) {
	if c.Capture != nil {
		c.Capture.Capture()
	}
	c.setMode(m)
}

func (c *Controller) leave() {
	if c.Capture != nil {
		c.Capture.Release()
	}
	c.setMode(ModeIdle)
}

func (c *Controller) execute(cmd history.Command) {
	c.log.Debug("execute", slog.String("command", cmd.Name()))
	c.history.Execute(cmd)
}

// Pointer input

// PointerDown starts a gesture. It is ignored while one is in progress.
func (c *Controller) PointerDown(ev PointerEvent) {
	c.lastMouse = ev.Position
	if c.mode != ModeIdle {
		return
	}

	switch ev.Button {
	case ButtonMiddle:
		c.enter(ModePanning)
	case ButtonRight:
		c.rightDown(ev)
	case ButtonLeft:
		c.leftDown(ev)
	}
}

func (c *Controller) rightDown(ev PointerEvent) {
	s := c.scene
	if s.SelectionCount() > 1 {
		s.ClearSelection()
	} else if b := s.SingleSelected(); b != nil {
		if h := s.HitTestHandle(ev.Position, b); h != scene.HandleNone {
			c.resizeBox = b
			c.resizeHandle = h
			c.resizeStart = b.Rect()
			c.enter(ModeResizing)
			return
		}
	}

	c.createAnchor = s.Viewport().ScreenToImage(ev.Position)
	s.SetPreview(&geometry.Rect{X: c.createAnchor.X, Y: c.createAnchor.Y})
	c.enter(ModeCreatingBox)
}

func (c *Controller) leftDown(ev PointerEvent) {
	s := c.scene
	toggle := ev.Modifiers.Has(ModToggle)
	additive := ev.Modifiers.Has(ModAdditive)

	hit := s.HitTestBox(ev.Position)
	if hit == nil {
		c.marqueeAnchor = s.Viewport().ScreenToImage(ev.Position)
		if !toggle {
			s.ClearSelection()
		}
		s.SetMarquee(&geometry.Rect{X: c.marqueeAnchor.X, Y: c.marqueeAnchor.Y})
		c.enter(ModeMarqueeSelecting)
		return
	}

	if !toggle && !additive && s.IsSelected(hit.ID) {
		c.beginGroupDrag(ev.Position)
		return
	}

	switch {
	case toggle:
		s.ToggleSelected(hit.ID)
	case additive:
		s.Select(hit.ID)
	default:
		s.SetSelection([]int{hit.ID})
	}

	if s.IsSelected(hit.ID) {
		c.beginGroupDrag(ev.Position)
	}
}

func (c *Controller) beginGroupDrag(screen geometry.Point2D) {
	c.dragAnchor = c.scene.Viewport().ScreenToImage(screen)
	c.dragStart = make(map[int]geometry.Rect)
	for _, b := range c.scene.Selected() {
		c.dragStart[b.ID] = b.Rect()
	}
	c.enter(ModeDraggingGroup)
}

// PointerMove updates the active gesture. In idle mode it only records the
// cursor position used by paste.
func (c *Controller) PointerMove(ev PointerEvent) {
	delta := ev.Position.Sub(c.lastMouse)
	c.lastMouse = ev.Position

	s := c.scene
	cur := s.Viewport().ScreenToImage(ev.Position)

	switch c.mode {
	case ModePanning:
		s.Viewport().PanBy(delta)
		s.Invalidate()

	case ModeResizing:
		if c.resizeBox == nil {
			return
		}
		r := ResizeRect(c.resizeStart, cur, c.resizeHandle, c.cfg.MinBoxSize)
		c.resizeBox.SetRect(c.clampResize(r))
		s.Invalidate()

	case ModeCreatingBox:
		r := geometry.RectFromPoints(c.createAnchor, cur)
		s.SetPreview(&r)

	case ModeDraggingGroup:
		d := cur.Sub(c.dragAnchor)
		for id, start := range c.dragStart {
			if b := s.Box(id); b != nil {
				b.SetRect(start.Translate(d).ShiftInside(c.imageRect()))
			}
		}
		s.Invalidate()

	case ModeMarqueeSelecting:
		r := geometry.RectFromPoints(c.marqueeAnchor, cur)
		s.SetMarquee(&r)
	}
}

// PointerUp finishes the gesture started with the same button.
func (c *Controller) PointerUp(ev PointerEvent) {
	c.lastMouse = ev.Position

	switch {
	case ev.Button == ButtonMiddle && c.mode == ModePanning:
		c.leave()
	case ev.Button == ButtonRight && c.mode == ModeResizing:
		c.finishResize()
	case ev.Button == ButtonRight && c.mode == ModeCreatingBox:
		c.finishCreate()
	case ev.Button == ButtonLeft && c.mode == ModeDraggingGroup:
		c.finishGroupDrag()
	case ev.Button == ButtonLeft && c.mode == ModeMarqueeSelecting:
		c.finishMarquee()
	}
}

func (c *Controller) finishResize() {
	b := c.resizeBox
	c.resizeBox = nil
	c.resizeHandle = scene.HandleNone
	c.leave()

	if b == nil {
		return
	}
	end := b.Rect()
	if end != c.resizeStart {
		c.execute(scene.NewMoveBoxes(c.scene,
			map[int]geometry.Rect{b.ID: c.resizeStart},
			map[int]geometry.Rect{b.ID: end}))
	}
}

func (c *Controller) finishCreate() {
	s := c.scene
	preview, ok := s.Preview()
	s.SetPreview(nil)
	c.leave()
	if !ok {
		return
	}

	r := preview.Intersect(c.imageRect())
	if r.Width < c.cfg.MinBoxSize || r.Height < c.cfg.MinBoxSize {
		return
	}

	b := c.newBox(r)
	c.execute(scene.NewAddBoxes(s, []*annotation.Box{b}, true))
	c.lastCreatedSize = &geometry.Size{Width: r.Width, Height: r.Height}
}

func (c *Controller) finishGroupDrag() {
	start := c.dragStart
	c.dragStart = nil
	c.leave()

	before := make(map[int]geometry.Rect)
	after := make(map[int]geometry.Rect)
	moved := false
	for id, r := range start {
		b := c.scene.Box(id)
		if b == nil {
			continue
		}
		end := b.Rect()
		before[id] = r
		after[id] = end
		if end.TopLeft().DistanceSq(r.TopLeft()) >= c.cfg.MoveThreshold {
			moved = true
		}
	}
	if moved {
		c.execute(scene.NewMoveBoxes(c.scene, before, after))
	}
}

func (c *Controller) finishMarquee() {
	s := c.scene
	m, ok := s.Marquee()
	s.SetMarquee(nil)
	c.leave()
	if !ok {
		return
	}

	sel := s.SelectedIDs()
	for _, b := range s.BoxesIntersecting(m) {
		sel = append(sel, b.ID)
	}
	s.SetSelection(sel)
}

// Wheel zooms around the cursor.
func (c *Controller) Wheel(ev WheelEvent) {
	var factor float64
	switch {
	case ev.Delta > 0:
		factor = c.cfg.WheelFactor
	case ev.Delta < 0:
		factor = 1 / c.cfg.WheelFactor
	default:
		return
	}
	c.lastMouse = ev.Position
	c.scene.Viewport().ZoomAt(ev.Position, factor)
	c.scene.Invalidate()
}

// Keyboard input

// KeyDown handles Delete and the Ctrl shortcuts. It reports whether the
// key was consumed.
func (c *Controller) KeyDown(ev KeyEvent) bool {
	if ev.Key == KeyDelete {
		c.DeleteSelected()
		return true
	}
	if !ev.Modifiers.Has(ModToggle) {
		return false
	}
	switch ev.Key {
	case KeyZ:
		c.history.Undo()
	case KeyY:
		c.history.Redo()
	case KeyC:
		c.Copy()
	case KeyV:
		c.Paste()
	default:
		return false
	}
	return true
}

// DeleteSelected removes every selected box as one command.
func (c *Controller) DeleteSelected() {
	sel := c.scene.Selected()
	if len(sel) == 0 {
		return
	}
	c.execute(scene.NewDeleteBoxes(c.scene, sel))
}

// Copy stores the geometry of the selected boxes.
func (c *Controller) Copy() {
	sel := c.scene.Selected()
	c.clipboard = c.clipboard[:0]
	for _, b := range sel {
		c.clipboard = append(c.clipboard, b.Rect())
	}
}

// ClipboardLen returns how many rectangles are on the clipboard.
func (c *Controller) ClipboardLen() int { return len(c.clipboard) }

// Paste places the clipboard so its bounding box starts at the cursor plus
// the paste offset. With an empty clipboard it drops one box of the last
// created size at the cursor.
func (c *Controller) Paste() {
	s := c.scene
	cursor := s.Viewport().ScreenToImage(c.lastMouse)

	if bounds, ok := geometry.BoundingRect(c.clipboard); ok {
		target := cursor.Add(geometry.Point2D{X: c.cfg.PasteOffset, Y: c.cfg.PasteOffset})
		d := target.Sub(bounds.TopLeft())

		pasted := make([]*annotation.Box, 0, len(c.clipboard))
		for _, r := range c.clipboard {
			pasted = append(pasted, c.newBox(r.Translate(d).ShiftInside(c.imageRect())))
		}
		c.execute(scene.NewAddBoxes(s, pasted, true))
		return
	}

	if c.lastCreatedSize != nil {
		r := geometry.Rect{X: cursor.X, Y: cursor.Y, Width: c.lastCreatedSize.Width, Height: c.lastCreatedSize.Height}
		r = r.ShiftInside(c.imageRect())
		c.execute(scene.NewAddBoxes(s, []*annotation.Box{c.newBox(r)}, true))
	}
}

// newBox allocates an id and resolves the parent against the current boxes.
func (c *Controller) newBox(r geometry.Rect) *annotation.Box {
	b := &annotation.Box{
		ID:           c.allocID(),
		CategoryID:   c.Category.ID,
		CategoryName: c.Category.Name,
	}
	b.SetRect(r)
	if p := c.Resolver.FindContainingParent(c.scene.Boxes(), r, b.CategoryID); p != nil {
		id := p.ID
		b.ParentID = &id
	}
	return b
}

// imageRect is the clamping area: the image, or a very large square when
// the image size is unknown.
func (c *Controller) imageRect() geometry.Rect {
	if c.Images != nil {
		if w, h := c.Images.ImageSize(); w > 0 && h > 0 {
			return geometry.Rect{Width: float64(w), Height: float64(h)}
		}
	}
	return geometry.Rect{Width: unknownBound, Height: unknownBound}
}

// clampResize cuts a resized rectangle to the image while keeping the
// minimum size.
func (c *Controller) clampResize(r geometry.Rect) geometry.Rect {
	bounds := c.imageRect()
	out := r.Intersect(bounds)
	out.Width = math.Max(out.Width, c.cfg.MinBoxSize)
	out.Height = math.Max(out.Height, c.cfg.MinBoxSize)
	return out.ShiftInside(bounds)
}

// ResizeRect moves the edges named by handle to the cursor. Each moving
// edge stops minSize short of the opposite edge so the rectangle never
// inverts.
func ResizeRect(start geometry.Rect, cursor geometry.Point2D, handle scene.Handle, minSize float64) geometry.Rect {
	left, top := start.X, start.Y
	right, bottom := start.Right(), start.Bottom()

	switch handle {
	case scene.HandleW, scene.HandleNW, scene.HandleSW:
		left = math.Min(cursor.X, right-minSize)
	case scene.HandleE, scene.HandleNE, scene.HandleSE:
		right = math.Max(cursor.X, left+minSize)
	}

	switch handle {
	case scene.HandleN, scene.HandleNW, scene.HandleNE:
		top = math.Min(cursor.Y, bottom-minSize)
	case scene.HandleS, scene.HandleSW, scene.HandleSE:
		bottom = math.Max(cursor.Y, top+minSize)
	}

	return geometry.RectFromEdges(left, top, right, bottom)
}
