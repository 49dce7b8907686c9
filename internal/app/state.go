// Package app provides the editor session: the open project, the image
// being edited and the events the window listens to.
package app

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"box-annotator/internal/annotation"
	"box-annotator/internal/coco"
	"box-annotator/internal/config"
	"box-annotator/internal/gesture"
	"box-annotator/internal/history"
	"box-annotator/internal/imagesrc"
	"box-annotator/internal/logging"
	"box-annotator/internal/project"
	"box-annotator/internal/scene"
	"box-annotator/internal/store"
	"box-annotator/internal/viewport"
)

var (
	// ErrNoProject is returned by operations that need an open project.
	ErrNoProject = errors.New("no project loaded")
	// ErrNoImages is returned when a project has no image to show.
	ErrNoImages = errors.New("no images found")
	// ErrCategoryName is returned for an empty or duplicate category name.
	ErrCategoryName = errors.New("invalid category name")
)

// ImageEntry is one navigable image of the project.
type ImageEntry struct {
	ID       int
	FileName string
}

// State holds the editor session: project, dataset, current image and the
// editing core.
type State struct {
	mu sync.RWMutex

	Config   config.Config
	Projects *project.Service

	// Project
	Project  *project.File
	Dataset  *coco.Root
	Modified bool
	store    store.Store

	// Images
	Images  []ImageEntry
	Index   int
	Current *imagesrc.Image

	Categories *annotation.CategoryTable

	// Editing core
	View    *viewport.Transform
	Scene   *scene.Scene
	History *history.History
	Gesture *gesture.Controller

	// Per-image viewport, keyed by image id.
	viewCache  map[int]viewport.State
	viewW      float64
	viewH      float64
	pendingFit bool

	log *slog.Logger

	// Event listeners
	listeners map[EventType][]EventListener
}

// EventType identifies different application events.
type EventType int

const (
	EventProjectLoaded EventType = iota
	EventProjectSaved
	EventImageLoaded
	EventModified
	EventCategoryChanged
	// EventStoreWriting is emitted with true before the working store is
	// written and with false once the write returned, whether it failed or not.
	EventStoreWriting
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// NewState creates a session from cfg.
func NewState(cfg config.Config) (*State, error) {
	cats, err := cfg.CategoryTable()
	if err != nil {
		return nil, err
	}

	view := viewport.NewWithBounds(cfg.Editor.MinScale, cfg.Editor.MaxScale)
	sc := scene.New(view)
	sc.HandleDrawSize = cfg.Editor.HandleDrawSize
	sc.HandleHitPad = cfg.Editor.HandleHitPad
	h := history.New()

	s := &State{
		Config:     cfg,
		Projects:   project.NewService(cfg.Storage.ProjectsRoot, cfg.Storage.Backend),
		Index:      -1,
		Categories: cats,
		View:       view,
		Scene:      sc,
		History:    h,
		Gesture:    gesture.New(sc, h, cfg.Gesture()),
		viewCache:  make(map[int]viewport.State),
		log:        logging.WithComponent("session"),
		listeners:  make(map[EventType][]EventListener),
	}
	s.Gesture.Images = s
	h.OnChange(func() {
		if h.CanUndo() || h.CanRedo() {
			s.SetModified(true)
		}
	})
	return s, nil
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// SetModified marks the project as modified and emits an event.
func (s *State) SetModified(modified bool) {
	s.mu.Lock()
	changed := s.Modified != modified
	s.Modified = modified
	s.mu.Unlock()
	if changed {
		s.Emit(EventModified, modified)
	}
}

// ImageSize reports the current image size, or zeros when none is shown.
func (s *State) ImageSize() (int, int) {
	return s.Current.ImageSize()
}

// CurrentEntry returns the image being edited.
func (s *State) CurrentEntry() (ImageEntry, bool) {
	if s.Index < 0 || s.Index >= len(s.Images) {
		return ImageEntry{}, false
	}
	return s.Images[s.Index], true
}

// CreateProject creates a project and opens it.
func (s *State) CreateProject(name, imageFolder, cocoImportPath string) error {
	p, err := s.Projects.Create(name, imageFolder, cocoImportPath)
	if err != nil {
		return err
	}
	return s.openProject(p)
}

// OpenProject loads the project file at path.
func (s *State) OpenProject(path string) error {
	p, err := project.Load(path)
	if err != nil {
		return err
	}
	return s.openProject(p)
}

func (s *State) openProject(p *project.File) error {
	ctx := context.Background()

	st, err := p.OpenStore()
	if err != nil {
		return err
	}
	root, err := st.Load(ctx)
	if err != nil {
		st.Close()
		return fmt.Errorf("failed to load annotations: %w", err)
	}
	if len(root.Categories) == 0 {
		root.Categories = coco.NewEmpty().Categories
	}

	images, err := buildImageList(root, p.ImageFolder)
	if err != nil {
		st.Close()
		return err
	}
	// the image list may have been filled from the folder
	if err := s.writeStore(ctx, st, root); err != nil {
		st.Close()
		return err
	}

	s.Close()
	s.Project = p
	s.Dataset = root
	s.store = st
	s.Images = images
	s.Index = -1
	s.Current = nil
	s.viewCache = make(map[int]viewport.State)
	s.pendingFit = false
	s.mergeCategories()

	s.Scene.ReplaceAll(nil)
	s.History.Clear()
	s.Gesture.ResetForImage()
	s.Gesture.SetNextID(root.MaxAnnotationID() + 1)
	s.SetModified(false)

	s.log.Info("opened project",
		slog.String("name", p.Name),
		slog.Int("images", len(images)),
		slog.Int("annotations", len(root.Annotations)))
	s.Emit(EventProjectLoaded, p)

	if len(images) == 0 {
		return ErrNoImages
	}
	return s.ShowImage(0)
}

// Reload rereads the open project from its store, dropping unsaved edits,
// and returns to the image that was shown.
func (s *State) Reload() error {
	if s.Project == nil {
		return ErrNoProject
	}
	index := s.Index
	if err := s.openProject(s.Project); err != nil {
		return err
	}
	if index > 0 && index < len(s.Images) {
		return s.ShowImage(index)
	}
	return nil
}

// Close releases the working store.
func (s *State) Close() error {
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}

// buildImageList returns the images to navigate. When the dataset lists
// images only those present on disk are kept; otherwise the folder is
// scanned and the dataset's image list is filled with ids from 0.
func buildImageList(root *coco.Root, folder string) ([]ImageEntry, error) {
	names, err := imagesrc.ListFolder(folder)
	if err != nil {
		return nil, err
	}

	var entries []ImageEntry
	if len(root.Images) > 0 {
		onDisk := make(map[string]bool, len(names))
		for _, n := range names {
			onDisk[strings.ToLower(n)] = true
		}
		for _, img := range root.Images {
			if onDisk[strings.ToLower(img.FileName)] {
				entries = append(entries, ImageEntry{ID: img.ID, FileName: img.FileName})
			}
		}
		sort.SliceStable(entries, func(i, j int) bool {
			return strings.ToLower(entries[i].FileName) < strings.ToLower(entries[j].FileName)
		})
		return entries, nil
	}

	for id, n := range names {
		root.EnsureImage(coco.Image{ID: id, FileName: n})
		entries = append(entries, ImageEntry{ID: id, FileName: n})
	}
	return entries, nil
}

func (s *State) mergeCategories() {
	for _, c := range s.Dataset.Categories {
		cat := annotation.Category{ID: c.ID, Name: c.Name}
		if existing, ok := s.Categories.Get(c.ID); ok {
			cat.Color = existing.Color
		}
		s.Categories.Put(cat)
	}
	if cat, ok := s.Categories.Get(s.Gesture.Category.ID); ok {
		s.Gesture.Category.Name = cat.Name
	}
}

// SetActiveCategory selects the category for new boxes.
func (s *State) SetActiveCategory(id int) bool {
	cat, ok := s.Categories.Get(id)
	if !ok {
		return false
	}
	s.Gesture.Category = gesture.ActiveCategory{ID: cat.ID, Name: cat.Name}
	s.Emit(EventCategoryChanged, cat)
	return true
}

// AddCategory adds a category with the next free id and makes it active.
// A zero color takes the next palette color.
func (s *State) AddCategory(name string, c color.RGBA) (annotation.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return annotation.Category{}, fmt.Errorf("%w: empty", ErrCategoryName)
	}
	next := 1
	for _, existing := range s.Categories.All() {
		if strings.EqualFold(existing.Name, name) {
			return annotation.Category{}, fmt.Errorf("%w: %q exists", ErrCategoryName, name)
		}
		next = max(next, existing.ID+1)
	}
	if s.Dataset != nil {
		for _, dc := range s.Dataset.Categories {
			next = max(next, dc.ID+1)
		}
	}

	s.Categories.Put(annotation.Category{ID: next, Name: name, Color: c})
	cat, _ := s.Categories.Get(next)
	if s.Dataset != nil {
		s.Dataset.Categories = append(s.Dataset.Categories, coco.Category{ID: cat.ID, Name: cat.Name})
		s.SetModified(true)
	}
	s.log.Info("added category", slog.Int("id", cat.ID), slog.String("name", cat.Name))
	s.SetActiveCategory(cat.ID)
	return cat, nil
}

// ShowImage loads the image at index (clamped) with its boxes. Selection,
// history and gesture state are reset. A bitmap that fails to load leaves
// the image blank but its boxes editable.
func (s *State) ShowImage(index int) error {
	if s.Project == nil {
		return ErrNoProject
	}
	if len(s.Images) == 0 {
		return ErrNoImages
	}
	index = max(0, min(len(s.Images)-1, index))

	s.saveViewport()

	entry := s.Images[index]
	img, err := imagesrc.Load(s.Project.ImagePath(entry.FileName))
	if err != nil {
		s.log.Warn("failed to load image", slog.String("file", entry.FileName), slog.Any("error", err))
		img = nil
	}
	s.Index = index
	s.Current = img
	s.recordImageSize(entry.ID)

	s.Scene.ReplaceAll(coco.ToBoxes(s.Dataset, entry.ID))
	s.History.Clear()
	s.Gesture.ResetForImage()
	s.restoreViewport(entry.ID)

	s.log.Debug("showing image",
		slog.String("file", entry.FileName),
		slog.Int("index", index),
		slog.Int("boxes", s.Scene.Len()))
	s.Emit(EventImageLoaded, entry)
	return nil
}

func (s *State) recordImageSize(imageID int) {
	w, h := s.ImageSize()
	if w == 0 || h == 0 {
		return
	}
	for i := range s.Dataset.Images {
		img := &s.Dataset.Images[i]
		if img.ID == imageID && img.Width == nil && img.Height == nil {
			img.Width, img.Height = &w, &h
			return
		}
	}
}

// Next commits and saves, then moves to the next image.
func (s *State) Next() error { return s.Navigate(1) }

// Prev commits and saves, then moves to the previous image.
func (s *State) Prev() error { return s.Navigate(-1) }

// Navigate commits and saves the current image, then shows the image delta
// steps away, stopping at either end of the list.
func (s *State) Navigate(delta int) error {
	if s.Project == nil || len(s.Images) == 0 {
		return nil
	}
	if err := s.Save(); err != nil {
		return err
	}
	next := max(0, min(len(s.Images)-1, s.Index+delta))
	if next == s.Index {
		return nil
	}
	return s.ShowImage(next)
}

// Commit writes the scene's boxes into the dataset for the current image.
// An empty scene is not written unless it was edited, so an image whose
// annotations failed to show never loses them.
func (s *State) Commit() {
	entry, ok := s.CurrentEntry()
	if !ok || s.Dataset == nil {
		return
	}

	boxes := s.Scene.Boxes()
	if len(boxes) == 0 && !s.History.CanUndo() {
		s.log.Debug("not committing empty scene", slog.Int("image_id", entry.ID))
		return
	}

	previous := make(map[int]coco.Annotation)
	for _, a := range s.Dataset.Annotations {
		if a.ImageID == entry.ID {
			previous[a.ID] = a
		}
	}

	for _, b := range boxes {
		if b.ID <= 0 {
			b.ID = s.Gesture.NextID()
			s.Gesture.SetNextID(b.ID + 1)
		}
		s.ensureCategory(b.CategoryID)
	}

	anns := coco.FromBoxes(boxes, entry.ID)
	for i := range anns {
		if old, ok := previous[anns[i].ID]; ok {
			anns[i].Segmentation = old.Segmentation
			anns[i].IsCrowd = old.IsCrowd
		}
	}
	s.Dataset.ReplaceImageAnnotations(entry.ID, anns)
}

func (s *State) ensureCategory(id int) {
	for _, c := range s.Dataset.Categories {
		if c.ID == id {
			return
		}
	}
	name := s.Categories.Name(id)
	if name == "" {
		name = fmt.Sprintf("category_%d", id)
	}
	s.Dataset.Categories = append(s.Dataset.Categories, coco.Category{ID: id, Name: name})
}

// Save commits the current image and writes the working annotations and the
// project file.
func (s *State) Save() error {
	if s.Project == nil || s.store == nil {
		return ErrNoProject
	}
	s.Commit()

	if err := s.writeStore(context.Background(), s.store, s.Dataset); err != nil {
		s.log.Error("failed to save annotations", slog.Any("error", err))
		return err
	}
	if err := s.Project.Save(); err != nil {
		s.log.Error("failed to save project", slog.Any("error", err))
		return err
	}

	s.SetModified(false)
	s.Emit(EventProjectSaved, s.Project.ProjectFilePath)
	return nil
}

func (s *State) writeStore(ctx context.Context, st store.Store, root *coco.Root) error {
	s.Emit(EventStoreWriting, true)
	defer s.Emit(EventStoreWriting, false)
	return st.Save(ctx, root)
}

// Export commits the current image and writes the dataset to path.
func (s *State) Export(path string) error {
	if s.Project == nil {
		return ErrNoProject
	}
	s.Commit()
	if err := project.Export(path, s.Dataset); err != nil {
		return err
	}
	s.log.Info("exported annotations", slog.String("path", path))
	return nil
}

// SetViewSize records the canvas size and performs a pending first fit.
func (s *State) SetViewSize(w, h float64) {
	s.viewW, s.viewH = w, h
	s.fitPending()
}

// FitToView fits the current image into the canvas and remembers the result.
func (s *State) FitToView() {
	s.pendingFit = true
	s.fitPending()
}

func (s *State) restoreViewport(imageID int) {
	if st, ok := s.viewCache[imageID]; ok {
		s.pendingFit = false
		s.View.Set(st)
		return
	}
	s.pendingFit = true
	s.fitPending()
}

func (s *State) fitPending() {
	if !s.pendingFit {
		return
	}
	entry, ok := s.CurrentEntry()
	if !ok {
		return
	}
	w, h := s.ImageSize()
	if w == 0 || h == 0 {
		s.pendingFit = false
		return
	}
	if s.viewW <= 0 || s.viewH <= 0 {
		return
	}
	s.View.FitToImage(s.viewW, s.viewH, float64(w), float64(h), s.Config.Editor.FitMargin)
	s.viewCache[entry.ID] = s.View.State()
	s.pendingFit = false
}

func (s *State) saveViewport() {
	entry, ok := s.CurrentEntry()
	if !ok || s.pendingFit {
		return
	}
	s.viewCache[entry.ID] = s.View.State()
}

// CachedViewport returns the remembered viewport of an image.
func (s *State) CachedViewport(imageID int) (viewport.State, bool) {
	st, ok := s.viewCache[imageID]
	return st, ok
}

// ProjectFileExists reports whether path names an existing project file.
func ProjectFileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
