package viewport

import (
	"testing"

	"box-annotator/pkg/geometry"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	states := []State{
		{Scale: 1},
		{Scale: 2.5, OffsetX: 13, OffsetY: -7},
		{Scale: 0.01, OffsetX: 400, OffsetY: 300},
		{Scale: 200, OffsetX: -1e4, OffsetY: 5e3},
	}
	points := []geometry.Point2D{{X: 0, Y: 0}, {X: 123.5, Y: -88.25}, {X: 1e4, Y: 3}}

	for _, s := range states {
		vt := New()
		vt.Set(s)
		for _, p := range points {
			back := vt.ScreenToImage(vt.ImageToScreen(p))
			require.True(t, back.ApproxEqual(p, 1e-9), "state %+v point %+v got %+v", s, p, back)
		}
	}
}

func TestPanBy(t *testing.T) {
	vt := New()
	vt.PanBy(geometry.Point2D{X: 10, Y: -5})
	vt.PanBy(geometry.Point2D{X: 1, Y: 1})
	require.Equal(t, geometry.Point2D{X: 11, Y: -4}, vt.Offset())
	require.Equal(t, 1.0, vt.Scale())
}

func TestZoomAtScreenPointKeepsAnchor(t *testing.T) {
	tests := []struct {
		name   string
		start  State
		factor float64
		want   float64
	}{
		{"zoom in", State{Scale: 1, OffsetX: 10, OffsetY: 20}, 1.15, 1.15},
		{"zoom out", State{Scale: 2, OffsetX: -30, OffsetY: 5}, 1 / 1.15, 2 / 1.15},
		{"clamped at max", State{Scale: 150, OffsetX: 3, OffsetY: 4}, 10, DefaultMaxScale},
		{"clamped at min", State{Scale: 0.02, OffsetX: 3, OffsetY: 4}, 0.001, DefaultMinScale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vt := New()
			vt.Set(tt.start)
			p := geometry.Point2D{X: 317, Y: 211}
			before := vt.ScreenToImage(p)

			vt.ZoomAt(p, tt.factor)

			require.InDelta(t, tt.want, vt.Scale(), 1e-9)
			after := vt.ScreenToImage(p)
			require.InDelta(t, before.X, after.X, 1e-6)
			require.InDelta(t, before.Y, after.Y, 1e-6)
		})
	}
}

func TestZoomAtScreenPointExplicitBounds(t *testing.T) {
	vt := New()
	vt.ZoomAtScreenPoint(geometry.Point2D{X: 50, Y: 50}, 100, 0.5, 4)
	require.Equal(t, 4.0, vt.Scale())
	require.InDelta(t, 50, vt.ScreenToImage(geometry.Point2D{X: 50, Y: 50}).X, 1e-9)
}

func TestFitToImage(t *testing.T) {
	vt := New()
	vt.FitToImage(840, 640, 400, 200, DefaultMargin)

	// available 800x600 -> min(2, 3) = 2
	require.InDelta(t, 2.0, vt.Scale(), 1e-9)
	require.InDelta(t, 20.0, vt.Offset().X, 1e-9)
	require.InDelta(t, 120.0, vt.Offset().Y, 1e-9)

	before := vt.State()
	vt.FitToImage(0, 640, 400, 200, DefaultMargin)
	require.Equal(t, before, vt.State())
}

func TestAffineMatchesImageToScreen(t *testing.T) {
	vt := New()
	vt.Set(State{Scale: 3, OffsetX: 7, OffsetY: -2})
	p := geometry.Point2D{X: 5, Y: 9}
	require.True(t, vt.Affine().Apply(p).ApproxEqual(vt.ImageToScreen(p), 1e-12))
}

func TestOnChanged(t *testing.T) {
	vt := New()
	calls := 0
	remove := vt.OnChanged(func() { calls++ })

	vt.PanBy(geometry.Point2D{X: 1})
	vt.ZoomAt(geometry.Point2D{}, 2)
	vt.Set(State{Scale: 1})
	require.Equal(t, 3, calls)

	remove()
	vt.PanBy(geometry.Point2D{X: 1})
	require.Equal(t, 3, calls)
}
