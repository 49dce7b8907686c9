// Package annotation defines the annotation records edited by the box annotator.
package annotation

import (
	"image/color"
	"sort"

	"box-annotator/pkg/colorutil"
	"box-annotator/pkg/geometry"
)

// DefaultCategoryID is the category assigned when nothing else is chosen.
const (
	DefaultCategoryID   = 1
	DefaultCategoryName = "default"
)

// Category is an annotation class.
type Category struct {
	ID    int
	Name  string
	Color color.RGBA
}

// Box is an axis-aligned bounding box in image coordinates.
type Box struct {
	ID           int
	CategoryID   int
	CategoryName string
	X            float64
	Y            float64
	Width        float64
	Height       float64

	// ParentID is set once at creation to the smallest box containing this
	// one. It is not updated when either box moves.
	ParentID *int
}

// NewBox creates a box in the default category.
func NewBox(id int, r geometry.Rect) *Box {
	b := &Box{ID: id, CategoryID: DefaultCategoryID, CategoryName: DefaultCategoryName}
	b.SetRect(r)
	return b
}

// Rect returns the box geometry.
func (b *Box) Rect() geometry.Rect {
	return geometry.Rect{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
}

// SetRect replaces the box geometry.
func (b *Box) SetRect(r geometry.Rect) {
	b.X, b.Y, b.Width, b.Height = r.X, r.Y, r.Width, r.Height
}

// Clone returns a deep copy of the box.
func (b *Box) Clone() *Box {
	c := *b
	if b.ParentID != nil {
		p := *b.ParentID
		c.ParentID = &p
	}
	return &c
}

// CategoryTable looks categories up by id.
type CategoryTable struct {
	byID map[int]Category
}

// NewCategoryTable builds a table from cats. A category without a color
// gets one from the palette. The default category is always present.
func NewCategoryTable(cats ...Category) *CategoryTable {
	t := &CategoryTable{byID: make(map[int]Category)}
	for _, c := range cats {
		t.Put(c)
	}
	if _, ok := t.byID[DefaultCategoryID]; !ok {
		t.Put(Category{ID: DefaultCategoryID, Name: DefaultCategoryName, Color: colorutil.Lime})
	}
	return t
}

// Put adds or replaces a category.
func (t *CategoryTable) Put(c Category) {
	if c.Color == (color.RGBA{}) {
		c.Color = colorutil.PaletteColor(len(t.byID))
	}
	t.byID[c.ID] = c
}

// Get returns the category with the given id.
func (t *CategoryTable) Get(id int) (Category, bool) {
	c, ok := t.byID[id]
	return c, ok
}

// Name returns the category name, or "" if unknown.
func (t *CategoryTable) Name(id int) string {
	return t.byID[id].Name
}

// Color returns the display color for a category. Unknown ids use the
// default category's color.
func (t *CategoryTable) Color(id int) color.RGBA {
	if c, ok := t.byID[id]; ok {
		return c.Color
	}
	return t.byID[DefaultCategoryID].Color
}

// All returns the categories sorted by id.
func (t *CategoryTable) All() []Category {
	out := make([]Category, 0, len(t.byID))
	for _, c := range t.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of categories.
func (t *CategoryTable) Len() int { return len(t.byID) }
