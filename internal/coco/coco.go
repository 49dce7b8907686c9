// Package coco reads and writes COCO-format annotation files and maps them
// to and from editor boxes.
package coco

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"box-annotator/internal/annotation"
)

// ErrInvalidBBox marks an annotation whose bbox is not [x, y, w, h].
var ErrInvalidBBox = errors.New("bbox must have 4 values")

// Root is a COCO dataset file.
type Root struct {
	Images      []Image      `json:"images"`
	Annotations []Annotation `json:"annotations"`
	Categories  []Category   `json:"categories"`
}

// Image is an entry of the images array.
type Image struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    *int   `json:"width,omitempty"`
	Height   *int   `json:"height,omitempty"`
}

// Category is an entry of the categories array.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Annotation is an entry of the annotations array. BBox is
// [x, y, width, height] in image pixels.
type Annotation struct {
	ID           int             `json:"id"`
	ImageID      int             `json:"image_id"`
	CategoryID   int             `json:"category_id"`
	BBox         []float64       `json:"bbox"`
	Segmentation json.RawMessage `json:"segmentation,omitempty"`
	IsCrowd      *int            `json:"iscrowd,omitempty"`
}

// NewEmpty returns a dataset with only the default category.
func NewEmpty() *Root {
	return &Root{
		Images:      []Image{},
		Annotations: []Annotation{},
		Categories: []Category{
			{ID: annotation.DefaultCategoryID, Name: annotation.DefaultCategoryName},
		},
	}
}

// Load reads a COCO file.
func Load(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read COCO file: %w", err)
	}
	return Parse(data)
}

// Parse decodes COCO JSON. Missing arrays decode as empty.
func Parse(data []byte) (*Root, error) {
	var root Root
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse COCO JSON: %w", err)
	}
	root.normalize()
	return &root, nil
}

// Save writes the dataset as indented JSON.
func Save(path string, root *Root) error {
	root.normalize()
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal COCO: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write COCO file: %w", err)
	}
	return nil
}

func (r *Root) normalize() {
	if r.Images == nil {
		r.Images = []Image{}
	}
	if r.Annotations == nil {
		r.Annotations = []Annotation{}
	}
	if r.Categories == nil {
		r.Categories = []Category{}
	}
}

// Validate checks every bbox has four values.
func (r *Root) Validate() error {
	for _, a := range r.Annotations {
		if len(a.BBox) != 4 {
			return fmt.Errorf("annotation %d: %w", a.ID, ErrInvalidBBox)
		}
	}
	return nil
}

// ImageByID returns the image entry with id.
func (r *Root) ImageByID(id int) (Image, bool) {
	for _, img := range r.Images {
		if img.ID == id {
			return img, true
		}
	}
	return Image{}, false
}

// CategoryName returns the name of category id, or "".
func (r *Root) CategoryName(id int) string {
	for _, c := range r.Categories {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}

// MaxAnnotationID returns the largest annotation id, or 0.
func (r *Root) MaxAnnotationID() int {
	m := 0
	for _, a := range r.Annotations {
		if a.ID > m {
			m = a.ID
		}
	}
	return m
}

// EnsureImage adds an image entry unless one with the same id exists.
func (r *Root) EnsureImage(img Image) {
	if _, ok := r.ImageByID(img.ID); ok {
		return
	}
	r.Images = append(r.Images, img)
}

// ToBoxes returns the boxes of one image in file order. Annotations whose
// bbox does not have four values are skipped.
func ToBoxes(r *Root, imageID int) []*annotation.Box {
	var boxes []*annotation.Box
	for _, a := range r.Annotations {
		if a.ImageID != imageID || len(a.BBox) != 4 {
			continue
		}
		boxes = append(boxes, &annotation.Box{
			ID:           a.ID,
			CategoryID:   a.CategoryID,
			CategoryName: r.CategoryName(a.CategoryID),
			X:            a.BBox[0],
			Y:            a.BBox[1],
			Width:        a.BBox[2],
			Height:       a.BBox[3],
		})
	}
	return boxes
}

// FromBoxes converts boxes of one image to annotations.
func FromBoxes(boxes []*annotation.Box, imageID int) []Annotation {
	out := make([]Annotation, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, Annotation{
			ID:         b.ID,
			ImageID:    imageID,
			CategoryID: b.CategoryID,
			BBox:       []float64{b.X, b.Y, b.Width, b.Height},
		})
	}
	return out
}

// ReplaceImageAnnotations swaps all annotations of imageID for anns,
// keeping the annotations of other images in place.
func (r *Root) ReplaceImageAnnotations(imageID int, anns []Annotation) {
	kept := r.Annotations[:0:0]
	for _, a := range r.Annotations {
		if a.ImageID != imageID {
			kept = append(kept, a)
		}
	}
	r.Annotations = append(kept, anns...)
}

// AnnotationCount returns how many annotations belong to imageID.
func (r *Root) AnnotationCount(imageID int) int {
	n := 0
	for _, a := range r.Annotations {
		if a.ImageID == imageID {
			n++
		}
	}
	return n
}
