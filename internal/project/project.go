// Package project provides project folder creation and persistence.
package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"box-annotator/internal/coco"
	"box-annotator/internal/logging"
	"box-annotator/internal/store"

	"github.com/google/uuid"
)

// File names inside a project folder.
const (
	ProjectFileName  = "project.agproj.json"
	WorkingFileName  = "annotations.working.json"
	OriginalFileName = "annotations.original.json"
	DatabaseFileName = "annotations.working.db"
)

// ErrInvalidProject is returned when a project file cannot be used.
var ErrInvalidProject = errors.New("invalid project file")

// File is a project description (project.agproj.json).
type File struct {
	Version  int       `json:"version"`
	ID       string    `json:"id"`
	Name     string    `json:"project_name"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`

	ProjectFolder string `json:"project_folder"`
	ImageFolder   string `json:"image_folder"`

	// WorkingAnnotationsPath is the COCO file the editor writes.
	WorkingAnnotationsPath string `json:"working_annotations_path"`
	// OriginalAnnotationsPath is an untouched copy of the imported file.
	OriginalAnnotationsPath string `json:"original_annotations_path,omitempty"`

	// Backend selects the working store ("coco" or "sqlite").
	Backend string `json:"backend,omitempty"`

	ProjectFilePath string `json:"project_file_path"`
}

// DefaultRoot returns ~/Documents/AnnotationGems/Projects.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, "Documents", "AnnotationGems", "Projects")
}

// Service creates projects under a root folder.
type Service struct {
	Root    string
	Backend string
	log     *slog.Logger
}

// NewService returns a service creating projects under root.
func NewService(root, backend string) *Service {
	if root == "" {
		root = DefaultRoot()
	}
	return &Service{Root: root, Backend: backend, log: logging.WithComponent("project")}
}

// Create makes a project folder for name. When cocoImportPath is set the
// file is copied to both the original and working annotation files;
// otherwise an empty dataset with the default category is written.
func (s *Service) Create(name, imageFolder, cocoImportPath string) (*File, error) {
	folder := filepath.Join(s.Root, SafeFolderName(name))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create project folder: %w", err)
	}

	now := time.Now()
	p := &File{
		Version:                1,
		ID:                     uuid.NewString(),
		Name:                   name,
		Created:                now,
		Modified:               now,
		ProjectFolder:          folder,
		ImageFolder:            imageFolder,
		WorkingAnnotationsPath: filepath.Join(folder, WorkingFileName),
		Backend:                s.Backend,
		ProjectFilePath:        filepath.Join(folder, ProjectFileName),
	}

	if strings.TrimSpace(cocoImportPath) != "" {
		// parse first so a broken import never produces a project
		if _, err := coco.Load(cocoImportPath); err != nil {
			return nil, err
		}
		p.OriginalAnnotationsPath = filepath.Join(folder, OriginalFileName)
		if err := copyFile(cocoImportPath, p.OriginalAnnotationsPath); err != nil {
			return nil, err
		}
		if err := copyFile(cocoImportPath, p.WorkingAnnotationsPath); err != nil {
			return nil, err
		}
	} else if err := coco.Save(p.WorkingAnnotationsPath, coco.NewEmpty()); err != nil {
		return nil, err
	}

	// a database left by an earlier project of the same name would shadow
	// the new working file
	if err := removeDatabase(folder); err != nil {
		return nil, err
	}

	if err := p.Save(); err != nil {
		return nil, err
	}
	s.log.Info("created project", slog.String("name", name), slog.String("folder", folder))
	return p, nil
}

// Load reads a project file. Paths missing from older files are filled in
// from the file location.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}

	var p File
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}

	p.ProjectFilePath = path
	if p.ProjectFolder == "" {
		p.ProjectFolder = filepath.Dir(path)
	}
	if p.WorkingAnnotationsPath == "" {
		p.WorkingAnnotationsPath = filepath.Join(p.ProjectFolder, WorkingFileName)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return &p, nil
}

// Save writes the project file.
func (p *File) Save() error {
	if p.ProjectFilePath == "" {
		return fmt.Errorf("%w: no file path", ErrInvalidProject)
	}
	p.Modified = time.Now()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.ProjectFilePath), 0o755); err != nil {
		return fmt.Errorf("failed to create project folder: %w", err)
	}
	return os.WriteFile(p.ProjectFilePath, data, 0644)
}

// ImagePath returns the absolute path of an image file name.
func (p *File) ImagePath(fileName string) string {
	if filepath.IsAbs(fileName) {
		return fileName
	}
	return filepath.Join(p.ImageFolder, fileName)
}

// StorePath returns the file the working store writes.
func (p *File) StorePath() string {
	if p.Backend == store.BackendSQLite {
		return filepath.Join(p.ProjectFolder, DatabaseFileName)
	}
	return p.WorkingAnnotationsPath
}

// OpenStore opens the working store. A new SQLite store is seeded from the
// working COCO file.
func (p *File) OpenStore() (store.Store, error) {
	if p.Backend != store.BackendSQLite {
		return store.Open(p.Backend, p.WorkingAnnotationsPath)
	}

	dbPath := p.StorePath()
	_, statErr := os.Stat(dbPath)
	s, err := store.Open(store.BackendSQLite, dbPath)
	if err != nil {
		return nil, err
	}
	if errors.Is(statErr, os.ErrNotExist) {
		if err := seedFromCOCO(s, p.WorkingAnnotationsPath); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func removeDatabase(folder string) error {
	base := filepath.Join(folder, DatabaseFileName)
	for _, path := range []string{base, base + "-wal", base + "-shm", base + "-journal"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove old database: %w", err)
		}
	}
	return nil
}

func seedFromCOCO(s store.Store, path string) error {
	root, err := coco.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		root = coco.NewEmpty()
	} else if err != nil {
		return err
	}
	return s.Save(context.Background(), root)
}

// Export writes the dataset to path as COCO JSON.
func Export(path string, root *coco.Root) error {
	return coco.Save(path, root)
}

// SafeFolderName replaces characters not allowed in file names. An empty
// result becomes "Project".
func SafeFolderName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, name)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "Project"
	}
	return cleaned
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy to %s: %w", dst, err)
	}
	return out.Close()
}
