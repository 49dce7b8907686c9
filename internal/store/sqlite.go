package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"box-annotator/internal/coco"
	"box-annotator/internal/logging"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS images (
    id INTEGER PRIMARY KEY,
    file_name TEXT NOT NULL,
    width INTEGER,
    height INTEGER
);

CREATE TABLE IF NOT EXISTS categories (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS annotations (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id INTEGER NOT NULL,
    image_id INTEGER NOT NULL,
    category_id INTEGER NOT NULL,
    x REAL NOT NULL,
    y REAL NOT NULL,
    w REAL NOT NULL,
    h REAL NOT NULL,
    segmentation TEXT,
    iscrowd INTEGER
);
CREATE INDEX IF NOT EXISTS idx_annotations_image ON annotations(image_id);
`

// SQLiteStore keeps the dataset in a SQLite database. Annotations keep
// their file order through an autoincrement sequence column.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSQLiteStore opens (and creates if needed) the database at dsn.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases alive between calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db, log: logging.WithComponent("store")}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Load(ctx context.Context) (*coco.Root, error) {
	root := &coco.Root{}

	rows, err := s.db.QueryContext(ctx, `SELECT id, file_name, width, height FROM images ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	for rows.Next() {
		var img coco.Image
		var w, h sql.NullInt64
		if err := rows.Scan(&img.ID, &img.FileName, &w, &h); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		img.Width = nullInt(w)
		img.Height = nullInt(h)
		root.Images = append(root.Images, img)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	for rows.Next() {
		var c coco.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		root.Categories = append(root.Categories, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, image_id, category_id, x, y, w, h, segmentation, iscrowd FROM annotations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a coco.Annotation
		var x, y, w, h float64
		var seg sql.NullString
		var crowd sql.NullInt64
		if err := rows.Scan(&a.ID, &a.ImageID, &a.CategoryID, &x, &y, &w, &h, &seg, &crowd); err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		a.BBox = []float64{x, y, w, h}
		if seg.Valid {
			a.Segmentation = []byte(seg.String)
		}
		a.IsCrowd = nullInt(crowd)
		root.Annotations = append(root.Annotations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if root.Images == nil {
		root.Images = []coco.Image{}
	}
	if root.Categories == nil {
		root.Categories = []coco.Category{}
	}
	if root.Annotations == nil {
		root.Annotations = []coco.Annotation{}
	}
	s.log.Info("loaded annotations", slog.String("backend", BackendSQLite), slog.Int("annotations", len(root.Annotations)))
	return root, nil
}

// Save replaces the whole database content with root in one transaction.
// Annotations whose bbox does not have four values are skipped, as they
// are when boxes are built from a dataset.
func (s *SQLiteStore) Save(ctx context.Context, root *coco.Root) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"annotations", "images", "categories"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, img := range root.Images {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO images (id, file_name, width, height) VALUES (?, ?, ?, ?)`,
			img.ID, img.FileName, intOrNil(img.Width), intOrNil(img.Height)); err != nil {
			return fmt.Errorf("failed to insert image %d: %w", img.ID, err)
		}
	}
	for _, c := range root.Categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (id, name) VALUES (?, ?)`, c.ID, c.Name); err != nil {
			return fmt.Errorf("failed to insert category %d: %w", c.ID, err)
		}
	}
	saved := 0
	for _, a := range root.Annotations {
		if len(a.BBox) != 4 {
			s.log.Warn("skipping annotation", slog.Int("id", a.ID), slog.Any("error", coco.ErrInvalidBBox))
			continue
		}
		var seg any
		if len(a.Segmentation) > 0 {
			seg = string(a.Segmentation)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO annotations (id, image_id, category_id, x, y, w, h, segmentation, iscrowd)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.ImageID, a.CategoryID, a.BBox[0], a.BBox[1], a.BBox[2], a.BBox[3],
			seg, intOrNil(a.IsCrowd)); err != nil {
			return fmt.Errorf("failed to insert annotation %d: %w", a.ID, err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.log.Info("saved annotations", slog.String("backend", BackendSQLite), slog.Int("annotations", saved))
	return nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
