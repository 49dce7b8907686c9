package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"box-annotator/internal/annotation"
	"box-annotator/internal/coco"
	"box-annotator/internal/containment"

	"gonum.org/v1/gonum/stat"
)

// Options tunes the analysis.
type Options struct {
	// DuplicateTolerance is the largest per-edge difference, in pixels, at
	// which two boxes of the same category count as duplicates.
	DuplicateTolerance float64
	InferParents       bool
}

// ImageStats summarizes the boxes of one image.
type ImageStats struct {
	ID       int
	FileName string
	Boxes    int
}

// CategoryStats summarizes box areas of one category.
type CategoryStats struct {
	ID     int
	Name   string
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Median float64
	Max    float64
}

// Relation is an inferred parent for a box.
type Relation struct {
	ImageID  int
	ChildID  int
	ParentID int
}

// Duplicate is a pair of near-identical boxes on one image.
type Duplicate struct {
	ImageID int
	A, B    int
}

// Report is the result of Analyze.
type Report struct {
	Images      []ImageStats
	Categories  []CategoryStats
	Parents     []Relation
	Duplicates  []Duplicate
	Annotations int
	// Malformed counts annotations whose bbox does not have four values.
	Malformed int
	// Orphans counts annotations pointing at an image id not in the file.
	Orphans int
}

// Analyze computes the report for root.
func Analyze(root *coco.Root, opts Options) Report {
	rep := Report{Annotations: len(root.Annotations)}

	known := make(map[int]bool, len(root.Images))
	for _, img := range root.Images {
		known[img.ID] = true
	}
	for _, a := range root.Annotations {
		if len(a.BBox) != 4 {
			rep.Malformed++
		}
		if !known[a.ImageID] {
			rep.Orphans++
		}
	}

	areas := make(map[int][]float64)
	for _, img := range root.Images {
		boxes := coco.ToBoxes(root, img.ID)
		rep.Images = append(rep.Images, ImageStats{ID: img.ID, FileName: img.FileName, Boxes: len(boxes)})

		for _, b := range boxes {
			areas[b.CategoryID] = append(areas[b.CategoryID], b.Rect().Area())
		}
		rep.Duplicates = append(rep.Duplicates, findDuplicates(img.ID, boxes, opts.DuplicateTolerance)...)
		if opts.InferParents {
			rep.Parents = append(rep.Parents, inferParents(img.ID, boxes, opts.DuplicateTolerance)...)
		}
	}

	for id, values := range areas {
		rep.Categories = append(rep.Categories, areaStats(id, root.CategoryName(id), values))
	}
	sort.Slice(rep.Categories, func(i, j int) bool { return rep.Categories[i].ID < rep.Categories[j].ID })
	return rep
}

func areaStats(id int, name string, values []float64) CategoryStats {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	cs := CategoryStats{
		ID:     id,
		Name:   name,
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Min:    sorted[0],
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
	if len(sorted) > 1 {
		cs.StdDev = stat.StdDev(sorted, nil)
	}
	return cs
}

func findDuplicates(imageID int, boxes []*annotation.Box, tol float64) []Duplicate {
	var out []Duplicate
	for i := 0; i < len(boxes); i++ {
		for j := i + 1; j < len(boxes); j++ {
			a, b := boxes[i], boxes[j]
			if a.CategoryID == b.CategoryID && a.Rect().ApproxEqual(b.Rect(), tol) {
				out = append(out, Duplicate{ImageID: imageID, A: a.ID, B: b.ID})
			}
		}
	}
	return out
}

// inferParents applies the containment resolver to every box against the
// other boxes of the image. Near-identical boxes are not parents of each
// other.
func inferParents(imageID int, boxes []*annotation.Box, tol float64) []Relation {
	var out []Relation
	for _, child := range boxes {
		cr := child.Rect()
		candidates := make([]*annotation.Box, 0, len(boxes))
		for _, b := range boxes {
			if b != child && !b.Rect().ApproxEqual(cr, tol) {
				candidates = append(candidates, b)
			}
		}
		if p := containment.FindContainingParent(candidates, cr, child.CategoryID); p != nil {
			out = append(out, Relation{ImageID: imageID, ChildID: child.ID, ParentID: p.ID})
		}
	}
	return out
}

// Write prints the report as plain text tables.
func (r Report) Write(w io.Writer) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Images: %d  Annotations: %d  Malformed: %d  Orphans: %d\n\n",
		len(r.Images), r.Annotations, r.Malformed, r.Orphans)

	fmt.Fprintf(&sb, "%-8s %-40s %6s\n", "ID", "File", "Boxes")
	for _, img := range r.Images {
		fmt.Fprintf(&sb, "%-8d %-40s %6d\n", img.ID, img.FileName, img.Boxes)
	}

	fmt.Fprintf(&sb, "\n%-6s %-20s %6s %10s %10s %10s %10s %10s\n",
		"ID", "Category", "Count", "Mean", "StdDev", "Min", "Median", "Max")
	for _, c := range r.Categories {
		fmt.Fprintf(&sb, "%-6d %-20s %6d %10.1f %10.1f %10.1f %10.1f %10.1f\n",
			c.ID, c.Name, c.Count, c.Mean, c.StdDev, c.Min, c.Median, c.Max)
	}

	if len(r.Parents) > 0 {
		fmt.Fprintf(&sb, "\nParents (%d):\n", len(r.Parents))
		for _, p := range r.Parents {
			fmt.Fprintf(&sb, "  image %d: %d inside %d\n", p.ImageID, p.ChildID, p.ParentID)
		}
	}
	if len(r.Duplicates) > 0 {
		fmt.Fprintf(&sb, "\nDuplicates (%d):\n", len(r.Duplicates))
		for _, d := range r.Duplicates {
			fmt.Fprintf(&sb, "  image %d: %d ~ %d\n", d.ImageID, d.A, d.B)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
