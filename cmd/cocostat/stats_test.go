package main

import (
	"strings"
	"testing"

	"box-annotator/internal/coco"

	"github.com/stretchr/testify/require"
)

const sample = `{
	"images": [{"id": 1, "file_name": "a.png"}, {"id": 2, "file_name": "b.png"}],
	"annotations": [
		{"id": 10, "image_id": 1, "category_id": 1, "bbox": [0, 0, 100, 100]},
		{"id": 11, "image_id": 1, "category_id": 2, "bbox": [10, 10, 20, 10]},
		{"id": 12, "image_id": 1, "category_id": 2, "bbox": [10.2, 10, 20, 10]},
		{"id": 13, "image_id": 2, "category_id": 2, "bbox": [0, 0, 10, 10]},
		{"id": 14, "image_id": 2, "category_id": 2, "bbox": [1, 2]},
		{"id": 15, "image_id": 9, "category_id": 1, "bbox": [0, 0, 1, 1]}
	],
	"categories": [{"id": 1, "name": "car"}, {"id": 2, "name": "plate"}]
}`

func TestAnalyze(t *testing.T) {
	root, err := coco.Parse([]byte(sample))
	require.NoError(t, err)

	rep := Analyze(root, Options{DuplicateTolerance: 0.5, InferParents: true})
	require.Equal(t, 6, rep.Annotations)
	require.Equal(t, 1, rep.Malformed)
	require.Equal(t, 1, rep.Orphans)
	require.Equal(t, []ImageStats{{1, "a.png", 3}, {2, "b.png", 1}}, rep.Images)

	require.Len(t, rep.Categories, 2)
	car, plate := rep.Categories[0], rep.Categories[1]
	require.Equal(t, "car", car.Name)
	require.Equal(t, 1, car.Count)
	require.InDelta(t, 10000, car.Mean, 1e-9)
	require.Zero(t, car.StdDev)

	require.Equal(t, "plate", plate.Name)
	require.Equal(t, 3, plate.Count)
	require.InDelta(t, 100, plate.Min, 1e-9)
	require.InDelta(t, 200, plate.Median, 1e-9)
	require.InDelta(t, 200, plate.Max, 1e-9)
	require.InDelta(t, 500.0/3, plate.Mean, 1e-9)

	require.Equal(t, []Duplicate{{ImageID: 1, A: 11, B: 12}}, rep.Duplicates)
	require.Equal(t, []Relation{
		{ImageID: 1, ChildID: 11, ParentID: 10},
		{ImageID: 1, ChildID: 12, ParentID: 10},
	}, rep.Parents)
}

func TestAnalyzeWithoutParents(t *testing.T) {
	root, err := coco.Parse([]byte(sample))
	require.NoError(t, err)
	rep := Analyze(root, Options{DuplicateTolerance: 0})
	require.Empty(t, rep.Parents)
	require.Empty(t, rep.Duplicates, "0.2px apart is not a duplicate at zero tolerance")
}

func TestWrite(t *testing.T) {
	root, err := coco.Parse([]byte(sample))
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, Analyze(root, Options{DuplicateTolerance: 0.5, InferParents: true}).Write(&sb))
	out := sb.String()
	require.Contains(t, out, "Images: 2  Annotations: 6  Malformed: 1  Orphans: 1")
	require.Contains(t, out, "plate")
	require.Contains(t, out, "image 1: 11 inside 10")
	require.Contains(t, out, "image 1: 11 ~ 12")
}
