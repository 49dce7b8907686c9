// Package store persists the working annotation set of a project.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"box-annotator/internal/coco"
	"box-annotator/internal/logging"
)

// Backend names accepted by Open.
const (
	BackendCOCO   = "coco"
	BackendSQLite = "sqlite"
)

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Store loads and saves a whole COCO dataset.
type Store interface {
	Load(ctx context.Context) (*coco.Root, error)
	Save(ctx context.Context, root *coco.Root) error
	Close() error
}

// Open returns the backend named by backend, storing at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendCOCO:
		return NewFileStore(path), nil
	case BackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%q: %w", backend, ErrUnknownBackend)
	}
}

// FileStore keeps the dataset in a COCO JSON file.
type FileStore struct {
	Path string
	log  *slog.Logger
}

// NewFileStore returns a store backed by the COCO file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, log: logging.WithComponent("store")}
}

func (s *FileStore) Load(ctx context.Context) (*coco.Root, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := coco.Load(s.Path)
	if err != nil {
		return nil, err
	}
	s.log.Info("loaded annotations", slog.String("path", s.Path), slog.Int("annotations", len(root.Annotations)))
	return root, nil
}

func (s *FileStore) Save(ctx context.Context, root *coco.Root) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := coco.Save(s.Path, root); err != nil {
		return err
	}
	s.log.Info("saved annotations", slog.String("path", s.Path), slog.Int("annotations", len(root.Annotations)))
	return nil
}

func (s *FileStore) Close() error { return nil }
