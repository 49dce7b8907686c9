// Package containment infers parent boxes from geometric containment.
package containment

import (
	"box-annotator/internal/annotation"
	"box-annotator/pkg/geometry"
)

// Rules lists which child categories each parent category may contain.
type Rules struct {
	allowed map[int]map[int]bool
}

// NewRules returns an empty rule table.
func NewRules() *Rules {
	return &Rules{allowed: make(map[int]map[int]bool)}
}

// AllowChild permits boxes of childCategoryID inside parentCategoryID.
func (r *Rules) AllowChild(parentCategoryID, childCategoryID int) {
	set, ok := r.allowed[parentCategoryID]
	if !ok {
		set = make(map[int]bool)
		r.allowed[parentCategoryID] = set
	}
	set[childCategoryID] = true
}

// CanContain reports whether the pair was allowed.
func (r *Rules) CanContain(parentCategoryID, childCategoryID int) bool {
	return r.allowed[parentCategoryID][childCategoryID]
}

// Resolver finds containing parents. With nil Rules every category may
// contain every other.
type Resolver struct {
	Rules *Rules
}

// FindContainingParent returns the smallest-area box in boxes whose
// rectangle fully contains childRect, or nil. Ties go to the box that
// comes first.
func (r Resolver) FindContainingParent(boxes []*annotation.Box, childRect geometry.Rect, childCategoryID int) *annotation.Box {
	var best *annotation.Box
	bestArea := 0.0
	for _, b := range boxes {
		if r.Rules != nil && !r.Rules.CanContain(b.CategoryID, childCategoryID) {
			continue
		}
		pr := b.Rect()
		if !pr.ContainsRect(childRect) {
			continue
		}
		if area := pr.Area(); best == nil || area < bestArea {
			best = b
			bestArea = area
		}
	}
	return best
}

// FindContainingParent uses a resolver without category rules.
func FindContainingParent(boxes []*annotation.Box, childRect geometry.Rect, childCategoryID int) *annotation.Box {
	return Resolver{}.FindContainingParent(boxes, childRect, childCategoryID)
}
