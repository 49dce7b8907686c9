package scene

import (
	"sort"

	"box-annotator/internal/annotation"
	"box-annotator/pkg/geometry"
)

// AddBoxesCommand inserts boxes into the scene.
type AddBoxesCommand struct {
	scene       *Scene
	boxes       []*annotation.Box
	selectAdded bool

	prevSelection []int
}

// NewAddBoxes appends boxes on top of the z-order. With selectAdded the
// added boxes become the whole selection.
func NewAddBoxes(s *Scene, boxes []*annotation.Box, selectAdded bool) *AddBoxesCommand {
	return &AddBoxesCommand{
		scene:       s,
		boxes:       append([]*annotation.Box(nil), boxes...),
		selectAdded: selectAdded,
	}
}

func (c *AddBoxesCommand) Name() string {
	if len(c.boxes) == 1 {
		return "Add Box"
	}
	return "Add Boxes"
}

// Boxes returns the boxes the command adds.
func (c *AddBoxesCommand) Boxes() []*annotation.Box { return c.boxes }

func (c *AddBoxesCommand) Do() {
	s := c.scene
	c.prevSelection = s.SelectedIDs()
	for _, b := range c.boxes {
		s.insert(len(s.boxes), b)
	}
	if c.selectAdded {
		ids := make([]int, len(c.boxes))
		for i, b := range c.boxes {
			ids[i] = b.ID
		}
		s.setSelection(ids)
	}
	s.Invalidate()
}

func (c *AddBoxesCommand) Undo() {
	s := c.scene
	for _, b := range c.boxes {
		s.remove(b)
	}
	s.setSelection(c.prevSelection)
	s.Invalidate()
}

// DeleteBoxesCommand removes boxes and remembers where they were.
type DeleteBoxesCommand struct {
	scene *Scene
	boxes []*annotation.Box

	removed       []indexedBox
	prevSelection []int
}

type indexedBox struct {
	index int
	box   *annotation.Box
}

// NewDeleteBoxes removes boxes from the scene and clears the selection.
func NewDeleteBoxes(s *Scene, boxes []*annotation.Box) *DeleteBoxesCommand {
	return &DeleteBoxesCommand{scene: s, boxes: append([]*annotation.Box(nil), boxes...)}
}

func (c *DeleteBoxesCommand) Name() string { return "Delete Boxes" }

func (c *DeleteBoxesCommand) Do() {
	s := c.scene
	c.prevSelection = s.SelectedIDs()

	c.removed = c.removed[:0]
	for _, b := range c.boxes {
		if i := s.IndexOf(b); i >= 0 {
			c.removed = append(c.removed, indexedBox{index: i, box: b})
		}
	}

	// Highest index first so earlier indices stay valid.
	sort.Slice(c.removed, func(i, j int) bool { return c.removed[i].index > c.removed[j].index })
	for _, r := range c.removed {
		s.removeAt(r.index)
	}
	s.selected = make(map[int]bool)
	s.Invalidate()
}

func (c *DeleteBoxesCommand) Undo() {
	s := c.scene
	for i := len(c.removed) - 1; i >= 0; i-- {
		r := c.removed[i]
		s.insert(r.index, r.box)
	}
	s.setSelection(c.prevSelection)
	s.Invalidate()
}

// MoveBoxesCommand sets box geometry from before/after snapshots keyed by
// box id. A resize is a move of a single box.
type MoveBoxesCommand struct {
	scene  *Scene
	before map[int]geometry.Rect
	after  map[int]geometry.Rect
}

// NewMoveBoxes builds a move from before and after rectangles.
func NewMoveBoxes(s *Scene, before, after map[int]geometry.Rect) *MoveBoxesCommand {
	return &MoveBoxesCommand{scene: s, before: copyRects(before), after: copyRects(after)}
}

func (c *MoveBoxesCommand) Name() string {
	if len(c.after) == 1 {
		return "Move Box"
	}
	return "Move Boxes"
}

func (c *MoveBoxesCommand) Do()   { c.apply(c.after) }
func (c *MoveBoxesCommand) Undo() { c.apply(c.before) }

func (c *MoveBoxesCommand) apply(rects map[int]geometry.Rect) {
	for id, r := range rects {
		if b := c.scene.Box(id); b != nil {
			b.SetRect(r)
		}
	}
	c.scene.Invalidate()
}

func copyRects(in map[int]geometry.Rect) map[int]geometry.Rect {
	out := make(map[int]geometry.Rect, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
