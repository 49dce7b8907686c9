package scene

import (
	"image"
	"image/color"
	"testing"

	"box-annotator/internal/annotation"
	"box-annotator/internal/history"
	"box-annotator/internal/viewport"
	"box-annotator/pkg/colorutil"
	"box-annotator/pkg/geometry"

	"github.com/stretchr/testify/require"
)

func newTestScene(t *testing.T) *Scene {
	t.Helper()
	return New(viewport.New())
}

func box(id int, x, y, w, h float64) *annotation.Box {
	return annotation.NewBox(id, geometry.NewRect(x, y, w, h))
}

func ids(boxes []*annotation.Box) []int {
	out := make([]int, len(boxes))
	for i, b := range boxes {
		out[i] = b.ID
	}
	return out
}

func TestHitTestBoxTopmostAndInclusive(t *testing.T) {
	s := newTestScene(t)
	s.Add(box(1, 0, 0, 100, 100))
	s.Add(box(2, 50, 50, 100, 100))

	require.Equal(t, 2, s.HitTestBox(geometry.Point2D{X: 60, Y: 60}).ID)
	require.Equal(t, 1, s.HitTestBox(geometry.Point2D{X: 10, Y: 10}).ID)
	require.Equal(t, 1, s.HitTestBox(geometry.Point2D{X: 0, Y: 100}).ID, "edge counts as inside")
	require.Nil(t, s.HitTestBox(geometry.Point2D{X: 300, Y: 300}))
}

func TestHitTestBoxUsesViewport(t *testing.T) {
	s := newTestScene(t)
	s.Add(box(1, 10, 10, 10, 10))
	s.Viewport().Set(viewport.State{Scale: 2, OffsetX: 100, OffsetY: 0})

	// image (15, 15) -> screen (130, 30)
	require.NotNil(t, s.HitTestBox(geometry.Point2D{X: 130, Y: 30}))
	require.Nil(t, s.HitTestBox(geometry.Point2D{X: 15, Y: 15}))
}

func TestHandlePointsOrder(t *testing.T) {
	hp := HandlePoints(geometry.NewRect(0, 0, 10, 20))
	want := []Handle{HandleNW, HandleN, HandleNE, HandleW, HandleE, HandleSW, HandleS, HandleSE}
	for i, h := range want {
		require.Equal(t, h, hp[i].Handle)
	}
	require.Equal(t, geometry.Point2D{X: 5, Y: 0}, hp[1].Point)
	require.Equal(t, geometry.Point2D{X: 10, Y: 20}, hp[7].Point)
}

func TestHitTestHandle(t *testing.T) {
	s := newTestScene(t)
	b := box(1, 100, 100, 200, 100)
	s.Add(b)

	tests := []struct {
		p    geometry.Point2D
		want Handle
	}{
		{geometry.Point2D{X: 200, Y: 100}, HandleN},
		{geometry.Point2D{X: 309, Y: 150}, HandleE},
		{geometry.Point2D{X: 200, Y: 205}, HandleS},
		{geometry.Point2D{X: 92, Y: 150}, HandleW},
		{geometry.Point2D{X: 100, Y: 100}, HandleNW},
		{geometry.Point2D{X: 300, Y: 200}, HandleSE},
		{geometry.Point2D{X: 311, Y: 150}, HandleNone},
		{geometry.Point2D{X: 150, Y: 150}, HandleNone},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, s.HitTestHandle(tt.p, b), "point %+v", tt.p)
	}
}

func TestHitTestHandleSidesBeforeCorners(t *testing.T) {
	s := newTestScene(t)
	// 4x4 box: every grip hit square overlaps, the north side wins
	b := box(1, 0, 0, 4, 4)
	s.Add(b)
	require.Equal(t, HandleN, s.HitTestHandle(geometry.Point2D{X: 1, Y: 1}, b))
}

func TestSelection(t *testing.T) {
	s := newTestScene(t)
	a, b, c := box(1, 0, 0, 1, 1), box(2, 0, 0, 1, 1), box(3, 0, 0, 1, 1)
	s.Add(a)
	s.Add(b)
	s.Add(c)

	s.Select(3)
	s.Select(1)
	s.Select(99)
	require.Equal(t, []int{1, 3}, s.SelectedIDs(), "scene order, unknown ids ignored")
	require.Nil(t, s.SingleSelected())

	s.ToggleSelected(3)
	require.Equal(t, a, s.SingleSelected())

	s.Remove(a)
	require.Equal(t, 0, s.SelectionCount(), "removing a box deselects it")

	s.SetSelection([]int{2, 3, 42})
	require.Equal(t, []int{2, 3}, s.SelectedIDs())
	s.ClearSelection()
	require.Equal(t, 0, s.SelectionCount())
}

func TestInvalidate(t *testing.T) {
	s := newTestScene(t)
	n := 0
	remove := s.OnInvalidate(func() { n++ })
	s.Add(box(1, 0, 0, 1, 1))
	s.Select(1)
	s.SetMarquee(&geometry.Rect{Width: 2, Height: 2})
	require.Equal(t, 3, n)
	remove()
	s.SetMarquee(nil)
	require.Equal(t, 3, n)
}

func TestDeleteUndoRestoresOrderAndSelection(t *testing.T) {
	s := newTestScene(t)
	h := history.New()
	a, b, c := box(1, 0, 0, 1, 1), box(2, 0, 0, 1, 1), box(3, 0, 0, 1, 1)
	s.ReplaceAll([]*annotation.Box{a, b, c})
	s.SetSelection([]int{1, 3})

	h.Execute(NewDeleteBoxes(s, s.Selected()))
	require.Equal(t, []int{2}, ids(s.Boxes()))
	require.Equal(t, 0, s.SelectionCount())

	h.Undo()
	require.Equal(t, []int{1, 2, 3}, ids(s.Boxes()))
	require.Equal(t, []int{1, 3}, s.SelectedIDs())

	h.Redo()
	require.Equal(t, []int{2}, ids(s.Boxes()))
	h.Undo()
	require.Equal(t, []int{1, 2, 3}, ids(s.Boxes()))
}

func TestAddBoxesUndoRestoresSelection(t *testing.T) {
	s := newTestScene(t)
	h := history.New()
	s.Add(box(1, 0, 0, 1, 1))
	s.Select(1)

	added := []*annotation.Box{box(2, 5, 5, 1, 1), box(3, 6, 6, 1, 1)}
	cmd := NewAddBoxes(s, added, true)
	require.Equal(t, "Add Boxes", cmd.Name())
	h.Execute(cmd)
	require.Equal(t, []int{1, 2, 3}, ids(s.Boxes()))
	require.Equal(t, []int{2, 3}, s.SelectedIDs())

	h.Undo()
	require.Equal(t, []int{1}, ids(s.Boxes()))
	require.Equal(t, []int{1}, s.SelectedIDs())

	h.Redo()
	require.Equal(t, []int{2, 3}, s.SelectedIDs())
}

func TestAddBoxesWithoutSelecting(t *testing.T) {
	s := newTestScene(t)
	s.Add(box(1, 0, 0, 1, 1))
	s.Select(1)
	NewAddBoxes(s, []*annotation.Box{box(2, 0, 0, 1, 1)}, false).Do()
	require.Equal(t, []int{1}, s.SelectedIDs())
}

func TestMoveBoxes(t *testing.T) {
	s := newTestScene(t)
	h := history.New()
	s.ReplaceAll([]*annotation.Box{box(1, 0, 0, 10, 10), box(2, 20, 20, 10, 10)})

	before := map[int]geometry.Rect{1: geometry.NewRect(0, 0, 10, 10), 2: geometry.NewRect(20, 20, 10, 10)}
	after := map[int]geometry.Rect{1: geometry.NewRect(5, 5, 10, 10), 2: geometry.NewRect(25, 25, 10, 10)}
	h.Execute(NewMoveBoxes(s, before, after))
	require.Equal(t, after[2], s.Box(2).Rect())

	h.Undo()
	require.Equal(t, before[1], s.Box(1).Rect())
	require.Equal(t, before[2], s.Box(2).Rect())
}

func TestRenderDrawsWithoutMutating(t *testing.T) {
	s := newTestScene(t)
	a := box(1, 10, 10, 20, 20)
	a.CategoryName = ""
	s.Add(a)
	s.Add(box(2, 50, 50, 20, 20))
	s.Select(2)
	s.SetMarquee(&geometry.Rect{X: 0, Y: 0, Width: 90, Height: 90})

	bg := image.NewRGBA(image.Rect(0, 0, 100, 100))
	dst := image.NewRGBA(image.Rect(0, 0, 100, 100))
	styles := func(int) color.RGBA { return colorutil.Cyan }

	beforeBoxes := ids(s.Boxes())
	s.Render(dst, styles, bg)

	require.Equal(t, colorutil.Cyan, dst.RGBAAt(20, 10), "unselected outline uses category color")
	require.Equal(t, colorutil.Yellow, dst.RGBAAt(55, 51), "selected outline is highlighted")
	require.Equal(t, colorutil.White, dst.RGBAAt(70, 70), "single selection shows handles")
	require.Equal(t, beforeBoxes, ids(s.Boxes()))
	require.Equal(t, []int{2}, s.SelectedIDs())
}

func TestRenderHugeZoomStaysInBounds(t *testing.T) {
	s := newTestScene(t)
	s.Add(box(1, 0, 0, 1e6, 1e6))
	s.Select(1)
	s.Viewport().Set(viewport.State{Scale: 200, OffsetX: -5e7, OffsetY: -5e7})

	dst := image.NewRGBA(image.Rect(0, 0, 64, 64))
	require.NotPanics(t, func() { s.Render(dst, nil, nil) })
}
