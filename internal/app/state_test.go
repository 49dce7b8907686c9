package app

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"box-annotator/internal/annotation"
	"box-annotator/internal/coco"
	"box-annotator/internal/config"
	"box-annotator/internal/scene"
	"box-annotator/internal/store"
	"box-annotator/internal/viewport"
	"box-annotator/pkg/geometry"

	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
}

func imageFolder(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		writePNG(t, filepath.Join(dir, n), 100, 50)
	}
	return dir
}

func newState(t *testing.T, backend string) *State {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.ProjectsRoot = t.TempDir()
	cfg.Storage.Backend = backend
	s, err := NewState(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeCOCO(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "import.json")
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func addBox(s *State, r geometry.Rect) *annotation.Box {
	b := annotation.NewBox(s.Gesture.NextID(), r)
	s.Gesture.SetNextID(b.ID + 1)
	s.History.Execute(scene.NewAddBoxes(s.Scene, []*annotation.Box{b}, false))
	return b
}

func TestCreateProjectScansFolder(t *testing.T) {
	s := newState(t, store.BackendCOCO)
	folder := imageFolder(t, "b.png", "A.png", "c.png")
	require.NoError(t, os.WriteFile(filepath.Join(folder, "notes.txt"), []byte("x"), 0644))

	var loaded, shown int
	s.On(EventProjectLoaded, func(interface{}) { loaded++ })
	s.On(EventImageLoaded, func(interface{}) { shown++ })

	require.NoError(t, s.CreateProject("scan", folder, ""))
	require.Equal(t, []ImageEntry{{0, "A.png"}, {1, "b.png"}, {2, "c.png"}}, s.Images)
	require.Equal(t, 0, s.Index)
	require.Equal(t, 1, loaded)
	require.Equal(t, 1, shown)

	w, h := s.ImageSize()
	require.Equal(t, 100, w)
	require.Equal(t, 50, h)

	// the folder scan is persisted with the project
	saved, err := coco.Load(s.Project.WorkingAnnotationsPath)
	require.NoError(t, err)
	require.Len(t, saved.Images, 3)
}

func TestCocoImagesFilteredToDisk(t *testing.T) {
	s := newState(t, store.BackendCOCO)
	folder := imageFolder(t, "z.png", "a.png")
	src := writeCOCO(t, `{
		"images": [{"id": 7, "file_name": "z.png"}, {"id": 3, "file_name": "missing.png"}, {"id": 9, "file_name": "A.PNG"}],
		"annotations": [{"id": 41, "image_id": 9, "category_id": 2, "bbox": [1, 2, 30, 20]}],
		"categories": [{"id": 1, "name": "default"}, {"id": 2, "name": "car"}]
	}`)

	require.NoError(t, s.CreateProject("filtered", folder, src))
	require.Equal(t, []ImageEntry{{9, "A.PNG"}, {7, "z.png"}}, s.Images)
	require.Equal(t, 42, s.Gesture.NextID(), "ids continue past the largest loaded id")
	require.Equal(t, "car", s.Categories.Name(2))

	require.Equal(t, 1, s.Scene.Len())
	require.Equal(t, geometry.NewRect(1, 2, 30, 20), s.Scene.Boxes()[0].Rect())
}

func TestNoImages(t *testing.T) {
	s := newState(t, store.BackendCOCO)
	err := s.CreateProject("empty", t.TempDir(), "")
	require.True(t, errors.Is(err, ErrNoImages))
	require.NotNil(t, s.Project)
	require.Equal(t, -1, s.Index)

	fresh := newState(t, store.BackendCOCO)
	require.ErrorIs(t, fresh.Save(), ErrNoProject)
	require.ErrorIs(t, fresh.ShowImage(0), ErrNoProject)
	require.NoError(t, fresh.Next(), "navigation without a project is a no-op")
}

func TestNavigateCommitsAndSaves(t *testing.T) {
	for _, backend := range []string{store.BackendCOCO, store.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			s := newState(t, backend)
			require.NoError(t, s.CreateProject("nav", imageFolder(t, "a.png", "b.png"), ""))

			b := addBox(s, geometry.NewRect(10, 10, 20, 20))
			require.True(t, s.Modified)

			require.NoError(t, s.Next())
			require.Equal(t, 1, s.Index)
			require.False(t, s.Modified)
			require.Equal(t, 0, s.Scene.Len())
			require.False(t, s.History.CanUndo(), "history is per image")

			st, err := s.Project.OpenStore()
			require.NoError(t, err)
			root, err := st.Load(context.Background())
			require.NoError(t, err)
			require.NoError(t, st.Close())
			require.Len(t, root.Annotations, 1)
			require.Equal(t, b.ID, root.Annotations[0].ID)
			require.Equal(t, 0, root.Annotations[0].ImageID)

			require.NoError(t, s.Next(), "stays on the last image")
			require.Equal(t, 1, s.Index)

			require.NoError(t, s.Prev())
			require.Equal(t, 0, s.Index)
			require.Len(t, s.Scene.Boxes(), 1)
			require.Equal(t, geometry.NewRect(10, 10, 20, 20), s.Scene.Boxes()[0].Rect())
		})
	}
}

func TestCommitDoesNotClobberUneditedEmptyScene(t *testing.T) {
	s := newState(t, store.BackendCOCO)
	src := writeCOCO(t, `{
		"images": [{"id": 1, "file_name": "a.png"}],
		"annotations": [
			{"id": 1, "image_id": 1, "category_id": 1, "bbox": [0, 0, 10, 10], "iscrowd": 0},
			{"id": 2, "image_id": 1, "category_id": 1, "bbox": [20, 20, 10, 10]}
		],
		"categories": [{"id": 1, "name": "default"}]
	}`)
	require.NoError(t, s.CreateProject("clobber", imageFolder(t, "a.png"), src))
	require.Equal(t, 2, s.Scene.Len())

	s.Scene.ReplaceAll(nil)
	s.Commit()
	require.Equal(t, 2, s.Dataset.AnnotationCount(1))

	require.NoError(t, s.ShowImage(0))
	s.Scene.SetSelection([]int{1, 2})
	s.Gesture.DeleteSelected()
	s.Commit()
	require.Equal(t, 0, s.Dataset.AnnotationCount(1), "an edited empty scene is written")
}

func TestCommitKeepsExtraFieldsAndAssignsIDs(t *testing.T) {
	s := newState(t, store.BackendCOCO)
	src := writeCOCO(t, `{
		"images": [{"id": 1, "file_name": "a.png"}],
		"annotations": [{"id": 5, "image_id": 1, "category_id": 1, "bbox": [0, 0, 10, 10], "iscrowd": 1, "segmentation": [[0, 0, 1, 1]]}],
		"categories": [{"id": 1, "name": "default"}]
	}`)
	require.NoError(t, s.CreateProject("fields", imageFolder(t, "a.png"), src))

	orphan := annotation.NewBox(0, geometry.NewRect(40, 10, 5, 5))
	orphan.CategoryID = 3
	s.History.Execute(scene.NewAddBoxes(s.Scene, []*annotation.Box{orphan}, false))
	s.Commit()

	require.Len(t, s.Dataset.Annotations, 2)
	kept := s.Dataset.Annotations[0]
	require.Equal(t, 5, kept.ID)
	require.Equal(t, 1, *kept.IsCrowd)
	require.JSONEq(t, `[[0,0,1,1]]`, string(kept.Segmentation))

	require.Equal(t, 6, orphan.ID)
	require.Equal(t, "category_3", s.Dataset.CategoryName(3))
}

func TestViewportCache(t *testing.T) {
	s := newState(t, store.BackendCOCO)
	require.NoError(t, s.CreateProject("view", imageFolder(t, "a.png", "b.png"), ""))

	// no canvas size yet: the fit waits
	_, ok := s.CachedViewport(0)
	require.False(t, ok)

	s.SetViewSize(240, 140)
	fitted := viewport.State{Scale: 2, OffsetX: 20, OffsetY: 20}
	require.Equal(t, fitted, s.View.State())
	cached, ok := s.CachedViewport(0)
	require.True(t, ok)
	require.Equal(t, fitted, cached)

	s.View.PanBy(geometry.NewPoint2D(5, 7))
	require.NoError(t, s.Next())
	require.Equal(t, fitted, s.View.State(), "first visit fits")

	require.NoError(t, s.Prev())
	require.Equal(t, viewport.State{Scale: 2, OffsetX: 25, OffsetY: 27}, s.View.State(), "revisit restores")

	s.FitToView()
	require.Equal(t, fitted, s.View.State())
}

func TestSaveEmitsAndExport(t *testing.T) {
	s := newState(t, store.BackendCOCO)
	require.NoError(t, s.CreateProject("save", imageFolder(t, "a.png"), ""))

	var saved []interface{}
	s.On(EventProjectSaved, func(d interface{}) { saved = append(saved, d) })
	var modified []bool
	s.On(EventModified, func(d interface{}) { modified = append(modified, d.(bool)) })

	addBox(s, geometry.NewRect(1, 1, 5, 5))
	require.NoError(t, s.Save())
	require.Equal(t, []interface{}{s.Project.ProjectFilePath}, saved)
	require.Equal(t, []bool{true, false}, modified)

	out := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, s.Export(out))
	root, err := coco.Load(out)
	require.NoError(t, err)
	require.Len(t, root.Annotations, 1)
	require.Equal(t, 100, *root.Images[0].Width, "image size recorded on show")
	require.Equal(t, 50, *root.Images[0].Height)
}

func TestOpenProjectAndActiveCategory(t *testing.T) {
	s := newState(t, store.BackendCOCO)
	require.NoError(t, s.CreateProject("reopen", imageFolder(t, "a.png"), ""))
	addBox(s, geometry.NewRect(1, 1, 5, 5))
	require.NoError(t, s.Save())
	path := s.Project.ProjectFilePath

	other := newState(t, store.BackendCOCO)
	require.NoError(t, other.OpenProject(path))
	require.Equal(t, 1, other.Scene.Len())

	require.False(t, other.SetActiveCategory(99))
	other.Categories.Put(annotation.Category{ID: 2, Name: "car"})
	require.True(t, other.SetActiveCategory(2))
	require.Equal(t, "car", other.Gesture.Category.Name)

	require.Error(t, other.OpenProject(filepath.Join(t.TempDir(), "missing.agproj.json")))
}

func TestAddCategory(t *testing.T) {
	s := newState(t, store.BackendCOCO)
	require.NoError(t, s.CreateProject("cats", imageFolder(t, "a.png"), ""))

	var changed []interface{}
	s.On(EventCategoryChanged, func(d interface{}) { changed = append(changed, d) })

	cat, err := s.AddCategory("  truck ", color.RGBA{})
	require.NoError(t, err)
	require.Equal(t, 2, cat.ID)
	require.Equal(t, "truck", cat.Name)
	require.NotEqual(t, color.RGBA{}, cat.Color)
	require.Equal(t, 2, s.Gesture.Category.ID)
	require.Len(t, changed, 1)
	require.True(t, s.Modified)
	require.Contains(t, s.Dataset.Categories, coco.Category{ID: 2, Name: "truck"})

	_, err = s.AddCategory("Truck", color.RGBA{})
	require.ErrorIs(t, err, ErrCategoryName)
	_, err = s.AddCategory(" ", color.RGBA{})
	require.ErrorIs(t, err, ErrCategoryName)
}

func TestReloadDropsUnsavedEdits(t *testing.T) {
	s := newState(t, store.BackendCOCO)
	require.NoError(t, s.CreateProject("reload", imageFolder(t, "a.png", "b.png"), ""))
	require.NoError(t, s.Next())
	addBox(s, geometry.NewRect(1, 1, 5, 5))
	require.True(t, s.Modified)

	require.NoError(t, s.Reload())
	require.Equal(t, 1, s.Index, "stays on the shown image")
	require.Equal(t, 0, s.Scene.Len())
	require.False(t, s.Modified)

	require.ErrorIs(t, newState(t, store.BackendCOCO).Reload(), ErrNoProject)
}

func TestSaveWrapsStoreWrite(t *testing.T) {
	s := newState(t, store.BackendCOCO)
	require.NoError(t, s.CreateProject("wrap", imageFolder(t, "a.png"), ""))

	var events []string
	s.On(EventStoreWriting, func(d interface{}) {
		if d.(bool) {
			events = append(events, "writing")
		} else {
			events = append(events, "written")
		}
	})
	s.On(EventProjectSaved, func(interface{}) { events = append(events, "saved") })

	addBox(s, geometry.NewRect(1, 1, 5, 5))
	require.NoError(t, s.Save())
	require.Equal(t, []string{"writing", "written", "saved"}, events)

	events = nil
	require.NoError(t, s.Reload())
	require.Equal(t, []string{"writing", "written"}, events)
}
