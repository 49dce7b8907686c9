package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"box-annotator/internal/coco"
	"box-annotator/internal/store"

	"github.com/stretchr/testify/require"
)

func TestSafeFolderName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Cars 2024", "Cars 2024"},
		{"a/b:c*d", "a_b_c_d"},
		{"   ", "Project"},
		{"", "Project"},
		{"..", "Project"},
		{" trimmed ", "trimmed"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, SafeFolderName(tt.in), "input %q", tt.in)
	}
}

func TestCreateEmptyProject(t *testing.T) {
	svc := NewService(t.TempDir(), store.BackendCOCO)
	p, err := svc.Create("My/Project", "/data/images", "")
	require.NoError(t, err)

	require.NotEmpty(t, p.ID)
	require.Equal(t, filepath.Join(svc.Root, "My_Project"), p.ProjectFolder)
	require.FileExists(t, p.ProjectFilePath)
	require.Empty(t, p.OriginalAnnotationsPath)
	require.Equal(t, p.WorkingAnnotationsPath, p.StorePath())

	root, err := coco.Load(p.WorkingAnnotationsPath)
	require.NoError(t, err)
	require.Equal(t, []coco.Category{{ID: 1, Name: "default"}}, root.Categories)
	require.Empty(t, root.Annotations)
}

func TestCreateWithImport(t *testing.T) {
	src := filepath.Join(t.TempDir(), "import.json")
	data := `{"images":[{"id":1,"file_name":"a.png"}],"annotations":[{"id":1,"image_id":1,"category_id":1,"bbox":[0,0,5,5]}],"categories":[{"id":1,"name":"car"}]}`
	require.NoError(t, os.WriteFile(src, []byte(data), 0644))

	svc := NewService(t.TempDir(), "")
	p, err := svc.Create("cars", "/imgs", src)
	require.NoError(t, err)

	for _, path := range []string{p.OriginalAnnotationsPath, p.WorkingAnnotationsPath} {
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, data, string(got))
	}
}

func TestCreateRejectsBrokenImport(t *testing.T) {
	src := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(src, []byte("{"), 0644))

	svc := NewService(t.TempDir(), "")
	_, err := svc.Create("x", "/imgs", src)
	require.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	svc := NewService(t.TempDir(), "")
	p, err := svc.Create("roundtrip", "/imgs", "")
	require.NoError(t, err)

	p.ImageFolder = "/other"
	require.NoError(t, p.Save())

	loaded, err := Load(p.ProjectFilePath)
	require.NoError(t, err)
	require.Equal(t, p.ID, loaded.ID)
	require.Equal(t, "roundtrip", loaded.Name)
	require.Equal(t, "/other", loaded.ImageFolder)
	require.Equal(t, p.ProjectFilePath, loaded.ProjectFilePath)
}

func TestLoadFillsMissingPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ProjectFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"project_name":"old","image_folder":"imgs"}`), 0644))

	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, dir, p.ProjectFolder)
	require.Equal(t, filepath.Join(dir, WorkingFileName), p.WorkingAnnotationsPath)
	require.Equal(t, path, p.ProjectFilePath)
	require.NotEmpty(t, p.ID)

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0644))
	_, err = Load(path)
	require.ErrorIs(t, err, ErrInvalidProject)
}

func TestImagePath(t *testing.T) {
	p := &File{ImageFolder: "/imgs"}
	require.Equal(t, filepath.Join("/imgs", "a.png"), p.ImagePath("a.png"))
	require.Equal(t, "/abs/b.png", p.ImagePath("/abs/b.png"))
}

func TestOpenSQLiteStoreSeedsFromWorkingFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "import.json")
	data := `{"images":[{"id":1,"file_name":"a.png"}],"annotations":[{"id":4,"image_id":1,"category_id":1,"bbox":[1,2,3,4]}],"categories":[{"id":1,"name":"default"}]}`
	require.NoError(t, os.WriteFile(src, []byte(data), 0644))

	svc := NewService(t.TempDir(), store.BackendSQLite)
	p, err := svc.Create("db", "/imgs", src)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(p.ProjectFolder, DatabaseFileName), p.StorePath())
	s, err := p.OpenStore()
	require.NoError(t, err)
	root, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, root.Annotations, 1)
	require.Equal(t, []float64{1, 2, 3, 4}, root.Annotations[0].BBox)

	// later opens use the database, not the JSON file
	root.Annotations = nil
	require.NoError(t, s.Save(context.Background(), root))
	require.NoError(t, s.Close())

	s, err = p.OpenStore()
	require.NoError(t, err)
	defer s.Close()
	root, err = s.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, root.Annotations)
}

func TestExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, Export(path, coco.NewEmpty()))
	root, err := coco.Load(path)
	require.NoError(t, err)
	require.Len(t, root.Categories, 1)
}

func TestRecreateSQLiteProjectStartsFresh(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(t.TempDir(), store.BackendSQLite)
	write := func(name string, id int) string {
		path := filepath.Join(dir, name)
		data := fmt.Sprintf(`{"images":[{"id":1,"file_name":"a.png"}],"annotations":[{"id":%d,"image_id":1,"category_id":1,"bbox":[0,0,5,5]}],"categories":[{"id":1,"name":"car"}]}`, id)
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))
		return path
	}

	p, err := svc.Create("Same", "/imgs", write("a.json", 111))
	require.NoError(t, err)
	s, err := p.OpenStore()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.FileExists(t, p.StorePath())

	p, err = svc.Create("Same", "/imgs", write("b.json", 222))
	require.NoError(t, err)
	s, err = p.OpenStore()
	require.NoError(t, err)
	defer s.Close()
	root, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, root.Annotations, 1)
	require.Equal(t, 222, root.Annotations[0].ID)
}

func TestOpenSQLiteStoreSkipsMalformedImport(t *testing.T) {
	src := filepath.Join(t.TempDir(), "import.json")
	data := `{"images":[{"id":1,"file_name":"a.png"}],"annotations":[{"id":1,"image_id":1,"category_id":1,"bbox":[0,0]},{"id":2,"image_id":1,"category_id":1,"bbox":[1,1,4,4]}],"categories":[{"id":1,"name":"car"}]}`
	require.NoError(t, os.WriteFile(src, []byte(data), 0644))

	svc := NewService(t.TempDir(), store.BackendSQLite)
	p, err := svc.Create("partial", "/imgs", src)
	require.NoError(t, err)
	s, err := p.OpenStore()
	require.NoError(t, err)
	defer s.Close()

	root, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, root.Annotations, 1)
	require.Equal(t, 2, root.Annotations[0].ID)
}
