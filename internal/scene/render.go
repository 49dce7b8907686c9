package scene

import (
	"image"
	"image/color"
	"math"

	"box-annotator/pkg/colorutil"
	"box-annotator/pkg/geometry"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

// StyleLookup returns the outline color for a category.
type StyleLookup func(categoryID int) color.RGBA

var (
	canvasBackground = color.RGBA{R: 32, G: 32, B: 32, A: 255}
	selectedColor    = colorutil.Yellow
	transientColor   = colorutil.Orange
	handleColor      = colorutil.White
	labelBackground  = color.RGBA{R: 0, G: 0, B: 0, A: 160}
)

// Render draws the background image and the annotations into dst through
// the viewport. It only reads scene state.
func (s *Scene) Render(dst *image.RGBA, styles StyleLookup, background image.Image) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(canvasBackground), image.Point{}, draw.Src)

	if background != nil {
		s.drawBackground(dst, background)
	}

	for _, b := range s.boxes {
		r := s.screenRect(b.Rect())
		if s.selected[b.ID] {
			strokeRect(dst, r, selectedColor, 2)
		} else {
			col := colorutil.Lime
			if styles != nil {
				col = styles(b.CategoryID)
			}
			strokeRect(dst, r, col, 1)
		}
		if b.CategoryName != "" {
			drawLabel(dst, b.CategoryName, r.Min.X, r.Min.Y)
		}
	}

	if m, ok := s.Marquee(); ok {
		dashedRect(dst, s.screenRect(m), transientColor)
	}
	if p, ok := s.Preview(); ok {
		dashedRect(dst, s.screenRect(p), transientColor)
	}

	if b := s.SingleSelected(); b != nil {
		for _, hp := range HandlePoints(b.Rect()) {
			hr := s.handleDrawRect(hp.Point)
			draw.Draw(dst, toPixels(hr), image.NewUniform(handleColor), image.Point{}, draw.Src)
		}
	}
}

// drawBackground maps the image through the viewport affine. Nearest
// neighbour above 2x keeps individual pixels visible for precise edges.
func (s *Scene) drawBackground(dst *image.RGBA, src image.Image) {
	sb := src.Bounds()
	sc := s.view.Scale()
	off := s.view.Offset()
	s2d := f64.Aff3{
		sc, 0, off.X - sc*float64(sb.Min.X),
		0, sc, off.Y - sc*float64(sb.Min.Y),
	}
	var t draw.Transformer = draw.ApproxBiLinear
	if sc >= 2 {
		t = draw.NearestNeighbor
	}
	t.Transform(dst, s2d, src, sb, draw.Src, nil)
}

func (s *Scene) screenRect(r geometry.Rect) image.Rectangle {
	return toPixels(s.view.ImageRectToScreen(r))
}

func toPixels(r geometry.Rect) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Floor(r.Right())), int(math.Floor(r.Bottom())),
	)
}

// strokeRect draws an outline thickness pixels wide, inset from r. Only
// the part that falls inside dst is visited.
func strokeRect(dst *image.RGBA, r image.Rectangle, col color.RGBA, thickness int) {
	for t := 0; t < thickness; t++ {
		x1, y1 := r.Min.X+t, r.Min.Y+t
		x2, y2 := r.Max.X-t, r.Max.Y-t
		if x2 < x1 || y2 < y1 {
			return
		}
		hline(dst, x1, x2, y1, col, nil)
		hline(dst, x1, x2, y2, col, nil)
		vline(dst, x1, y1, y2, col, nil)
		vline(dst, x2, y1, y2, col, nil)
	}
}

// dashedRect draws a 2-on 2-off outline.
func dashedRect(dst *image.RGBA, r image.Rectangle, col color.RGBA) {
	dash := func(x, y int) bool { return (x+y)%4 < 2 }
	hline(dst, r.Min.X, r.Max.X, r.Min.Y, col, dash)
	hline(dst, r.Min.X, r.Max.X, r.Max.Y, col, dash)
	vline(dst, r.Min.X, r.Min.Y, r.Max.Y, col, dash)
	vline(dst, r.Max.X, r.Min.Y, r.Max.Y, col, dash)
}

func hline(dst *image.RGBA, x1, x2, y int, col color.RGBA, keep func(x, y int) bool) {
	b := dst.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	x1 = max(x1, b.Min.X)
	x2 = min(x2, b.Max.X-1)
	for x := x1; x <= x2; x++ {
		if keep == nil || keep(x, y) {
			dst.SetRGBA(x, y, col)
		}
	}
}

func vline(dst *image.RGBA, x, y1, y2 int, col color.RGBA, keep func(x, y int) bool) {
	b := dst.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	y1 = max(y1, b.Min.Y)
	y2 = min(y2, b.Max.Y-1)
	for y := y1; y <= y2; y++ {
		if keep == nil || keep(x, y) {
			dst.SetRGBA(x, y, col)
		}
	}
}

// drawLabel writes text on a dark plate just above (x, y), or just inside
// the box when there is no room above.
func drawLabel(dst *image.RGBA, text string, x, y int) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	h := face.Height
	top := y - h - 2
	if top < dst.Bounds().Min.Y {
		top = y + 1
	}
	plate := image.Rect(x, top, x+w+4, top+h+2)
	if !plate.Overlaps(dst.Bounds()) {
		return
	}
	draw.Draw(dst, plate, image.NewUniform(labelBackground), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(colorutil.White),
		Face: face,
		Dot:  fixed.P(x+2, top+1+face.Ascent),
	}
	d.DrawString(text)
}
