// Package mainwindow provides the main application window.
package mainwindow

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"box-annotator/internal/annotation"
	"box-annotator/internal/app"
	"box-annotator/internal/gesture"
	"box-annotator/internal/logging"
	"box-annotator/internal/project"
	"box-annotator/internal/version"
	"box-annotator/pkg/geometry"
	"box-annotator/ui/canvas"
	"box-annotator/ui/dialogs"
	"box-annotator/ui/prefs"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
)

const (
	defaultWidth  = 1280
	defaultHeight = 800

	watchInterval = 2 * time.Second
)

// MainWindow is the primary application window.
type MainWindow struct {
	fyne.Window
	app   fyne.App
	state *app.State
	prefs *prefs.Prefs
	log   *slog.Logger

	canvas         *canvas.AnnotationCanvas
	statusBar      *widget.Label
	cursorLabel    *widget.Label
	categorySelect *widget.Select

	watcher       *app.FileWatcher
	reloadPending atomic.Bool
}

// New creates the main window for state.
func New(fyneApp fyne.App, state *app.State, p *prefs.Prefs) *MainWindow {
	win := fyneApp.NewWindow(version.Name)

	mw := &MainWindow{
		Window: win,
		app:    fyneApp,
		state:  state,
		prefs:  p,
		log:    logging.WithComponent("window"),
	}

	mw.setupUI()
	mw.setupMenus()
	mw.setupShortcuts()
	mw.setupEventHandlers()

	mw.Resize(fyne.NewSize(
		float32(p.Int(prefs.KeyWindowWidth, defaultWidth)),
		float32(p.Int(prefs.KeyWindowHeight, defaultHeight)),
	))
	mw.SetCloseIntercept(mw.onClose)

	return mw
}

// setupUI creates the main UI layout.
func (mw *MainWindow) setupUI() {
	st := mw.state
	mw.canvas = canvas.New(st.Scene, st.Gesture, st.Categories.Color, func() image.Image {
		if st.Current == nil {
			return nil
		}
		return st.Current.Image
	})
	mw.canvas.OnResize(st.SetViewSize)
	mw.canvas.OnPointer(mw.onPointer)
	mw.canvas.OnKey(mw.onKey)

	mw.statusBar = widget.NewLabel("Ready")
	mw.cursorLabel = widget.NewLabel("")

	toolbar := mw.createToolbar()
	statusArea := container.NewBorder(nil, nil, nil, mw.cursorLabel, mw.statusBar)

	content := container.NewBorder(
		toolbar,                         // top
		container.NewPadded(statusArea), // bottom
		nil,                             // left
		nil,                             // right
		mw.canvas,                       // center
	)
	mw.SetContent(content)
}

// createToolbar creates the navigation, zoom and category controls.
func (mw *MainWindow) createToolbar() fyne.CanvasObject {
	mw.categorySelect = widget.NewSelect(nil, mw.onCategorySelected)
	mw.categorySelect.PlaceHolder = "Category"
	mw.refreshCategories()

	return container.NewHBox(
		widget.NewButton("<", mw.onPrev),
		widget.NewButton(">", mw.onNext),
		widget.NewSeparator(),
		widget.NewLabel("Zoom:"),
		widget.NewButton("-", mw.onZoomOut),
		widget.NewButton("+", mw.onZoomIn),
		widget.NewButton("Fit", mw.onFit),
		widget.NewButton("1:1", mw.onActualSize),
		widget.NewSeparator(),
		widget.NewLabel("Category:"),
		mw.categorySelect,
		widget.NewButton("Add...", mw.onAddCategory),
	)
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	recent := fyne.NewMenuItem("Open Recent", nil)
	var recentItems []*fyne.MenuItem
	for _, path := range mw.prefs.Recent() {
		recentItems = append(recentItems, fyne.NewMenuItem(path, func() { mw.openProject(path) }))
	}
	if len(recentItems) == 0 {
		none := fyne.NewMenuItem("(none)", nil)
		none.Disabled = true
		recentItems = append(recentItems, none)
	}
	recent.ChildMenu = fyne.NewMenu("", recentItems...)

	save := fyne.NewMenuItem("Save", mw.onSave)
	save.Shortcut = shortcut(fyne.KeyS)

	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("New Project...", mw.onNewProject),
		fyne.NewMenuItem("Open Project...", mw.onOpenProject),
		recent,
		fyne.NewMenuItemSeparator(),
		save,
		fyne.NewMenuItem("Export COCO...", mw.onExport),
		fyne.NewMenuItem("Reload from Disk", mw.onReload),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", mw.onClose),
	)

	editMenu := fyne.NewMenu("Edit",
		fyne.NewMenuItem("Undo", mw.onUndo),
		fyne.NewMenuItem("Redo", mw.onRedo),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Copy", func() { mw.state.Gesture.Copy() }),
		fyne.NewMenuItem("Paste", func() { mw.state.Gesture.Paste() }),
		fyne.NewMenuItem("Delete", func() { mw.state.Gesture.DeleteSelected() }),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Add Category...", mw.onAddCategory),
	)

	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", mw.onZoomIn),
		fyne.NewMenuItem("Zoom Out", mw.onZoomOut),
		fyne.NewMenuItem("Fit to Window", mw.onFit),
		fyne.NewMenuItem("Actual Size", mw.onActualSize),
	)

	imageMenu := fyne.NewMenu("Image",
		fyne.NewMenuItem("Next", mw.onNext),
		fyne.NewMenuItem("Previous", mw.onPrev),
		fyne.NewMenuItem("First", func() { mw.navigateTo(0) }),
		fyne.NewMenuItem("Last", func() { mw.navigateTo(len(mw.state.Images) - 1) }),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("Controls", mw.onControls),
		fyne.NewMenuItem("About", mw.onAbout),
	)

	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, editMenu, viewMenu, imageMenu, helpMenu))
}

// setupShortcuts registers window-level shortcuts that work without canvas
// focus.
func (mw *MainWindow) setupShortcuts() {
	c := mw.Canvas()
	c.AddShortcut(shortcut(fyne.KeyS), func(fyne.Shortcut) { mw.onSave() })
	c.SetOnTypedKey(func(ev *fyne.KeyEvent) { mw.onKey(ev) })
}

func shortcut(key fyne.KeyName) *desktop.CustomShortcut {
	return &desktop.CustomShortcut{KeyName: key, Modifier: fyne.KeyModifierShortcutDefault}
}

// setupEventHandlers registers for application events.
func (mw *MainWindow) setupEventHandlers() {
	mw.state.On(app.EventProjectLoaded, func(data interface{}) {
		p, ok := data.(*project.File)
		if !ok {
			return
		}
		mw.prefs.AddRecent(p.ProjectFilePath)
		mw.savePrefs()
		mw.setupMenus()
		mw.refreshCategories()
		mw.restoreCategory()
		mw.watch(p)
		mw.updateTitle()
		mw.updateStatus("Project loaded: " + p.Name)
	})

	mw.state.On(app.EventImageLoaded, func(data interface{}) {
		mw.updateTitle()
		mw.updateStatus("")
		mw.canvas.Refresh()
	})

	mw.state.On(app.EventModified, func(data interface{}) {
		mw.updateTitle()
	})

	mw.state.On(app.EventStoreWriting, func(data interface{}) {
		if mw.watcher == nil {
			return
		}
		if writing, _ := data.(bool); writing {
			mw.watcher.Suspend()
		} else {
			mw.watcher.Resume()
		}
	})

	mw.state.On(app.EventProjectSaved, func(data interface{}) {
		mw.updateStatus("Saved")
	})

	mw.state.On(app.EventCategoryChanged, func(data interface{}) {
		cat, ok := data.(annotation.Category)
		if !ok {
			return
		}
		mw.refreshCategories()
		mw.categorySelect.SetSelected(categoryLabel(cat))
		mw.prefs.SetInt(prefs.KeyActiveCategory, cat.ID)
	})

	mw.state.History.OnChange(func() { mw.updateStatus("") })
	mw.state.Scene.OnInvalidate(func() { mw.updateStatus("") })
	mw.state.Gesture.OnModeChanged(func(gesture.Mode) { mw.updateStatus("") })
}

// OpenProject opens the project at path, reporting failures in a dialog.
func (mw *MainWindow) OpenProject(path string) {
	mw.openProject(path)
}

func (mw *MainWindow) openProject(path string) {
	if mw.state.Modified {
		if err := mw.state.Save(); err != nil {
			dialog.ShowError(err, mw.Window)
			return
		}
	}
	mw.handleProjectErr(mw.state.OpenProject(path))
}

func (mw *MainWindow) handleProjectErr(err error) {
	switch {
	case err == nil:
	case errors.Is(err, app.ErrNoImages):
		dialog.ShowInformation("No Images",
			"The image folder contains no supported images.", mw.Window)
	default:
		mw.log.Error("project failed", slog.Any("error", err))
		dialog.ShowError(err, mw.Window)
	}
}

// watch follows the working store of p for edits made by other programs.
func (mw *MainWindow) watch(p *project.File) {
	if mw.watcher != nil {
		mw.watcher.Stop()
	}
	mw.watcher = app.NewFileWatcher(p.StorePath(), watchInterval)
	mw.watcher.OnChange(mw.onExternalChange)
	mw.watcher.Start()
}

// onExternalChange runs on the watcher goroutine. Fyne 2.5 widgets and
// dialogs may be driven from any goroutine; the flag keeps one question open
// at a time.
func (mw *MainWindow) onExternalChange() {
	if !mw.reloadPending.CompareAndSwap(false, true) {
		return
	}
	mw.log.Info("working annotations changed on disk")
	dialog.ShowConfirm("Annotations Changed",
		"The working annotations were changed by another program.\nReload and discard unsaved edits?",
		func(ok bool) {
			mw.reloadPending.Store(false)
			if ok {
				mw.onReload()
			}
		}, mw.Window)
}

func (mw *MainWindow) refreshCategories() {
	cats := mw.state.Categories.All()
	options := make([]string, len(cats))
	for i, c := range cats {
		options[i] = categoryLabel(c)
	}
	mw.categorySelect.Options = options
	mw.categorySelect.Refresh()
}

func (mw *MainWindow) restoreCategory() {
	id := mw.prefs.Int(prefs.KeyActiveCategory, annotation.DefaultCategoryID)
	if !mw.state.SetActiveCategory(id) {
		mw.state.SetActiveCategory(annotation.DefaultCategoryID)
	}
}

func categoryLabel(c annotation.Category) string {
	return fmt.Sprintf("%d: %s", c.ID, c.Name)
}

func parseCategoryLabel(s string) (int, bool) {
	idText, _, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(idText))
	return id, err == nil
}

func (mw *MainWindow) updateTitle() {
	title := version.Name
	if p := mw.state.Project; p != nil {
		title += " - " + p.Name
		if entry, ok := mw.state.CurrentEntry(); ok {
			title += fmt.Sprintf(" - %s (%d/%d)", entry.FileName, mw.state.Index+1, len(mw.state.Images))
		}
	}
	if mw.state.Modified {
		title += " *"
	}
	mw.SetTitle(title)
}

// updateStatus shows msg, or the editing summary when msg is empty.
func (mw *MainWindow) updateStatus(msg string) {
	if msg == "" {
		st := mw.state
		msg = fmt.Sprintf("Boxes: %d   Selected: %d   Mode: %s   Zoom: %.0f%%",
			st.Scene.Len(), st.Scene.SelectionCount(), st.Gesture.Mode(), st.View.Scale()*100)
		if name := st.History.UndoName(); name != "" {
			msg += "   Undo: " + name
		}
		if name := st.History.RedoName(); name != "" {
			msg += "   Redo: " + name
		}
	}
	mw.statusBar.SetText(msg)
}

func (mw *MainWindow) onPointer(p geometry.Point2D) {
	mw.cursorLabel.SetText(fmt.Sprintf("x: %.0f  y: %.0f", p.X, p.Y))
}

// onKey handles navigation keys the canvas leaves alone.
func (mw *MainWindow) onKey(ev *fyne.KeyEvent) bool {
	switch ev.Name {
	case fyne.KeyRight, fyne.KeyPageDown:
		mw.onNext()
	case fyne.KeyLeft, fyne.KeyPageUp:
		mw.onPrev()
	case fyne.KeyHome:
		mw.navigateTo(0)
	case fyne.KeyEnd:
		mw.navigateTo(len(mw.state.Images) - 1)
	default:
		return false
	}
	return true
}

func (mw *MainWindow) navigateTo(index int) {
	if mw.state.Project == nil || index < 0 {
		return
	}
	mw.handleProjectErr(mw.state.Navigate(index - mw.state.Index))
}

func (mw *MainWindow) savePrefs() {
	if err := mw.prefs.Save(); err != nil {
		mw.log.Warn("failed to save preferences", slog.Any("error", err))
	}
}

// Menu action handlers

func (mw *MainWindow) onNewProject() {
	dialogs.NewNewProjectDialog(mw.Window, func(req dialogs.NewProjectRequest) {
		if mw.state.Modified {
			if err := mw.state.Save(); err != nil {
				dialog.ShowError(err, mw.Window)
				return
			}
		}
		mw.handleProjectErr(mw.state.CreateProject(req.Name, req.ImageFolder, req.ImportPath))
	}).Show()
}

func (mw *MainWindow) onOpenProject() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		mw.openProject(reader.URI().Path())
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".json"}))
	if loc, err := storage.ListerForURI(storage.NewFileURI(mw.state.Projects.Root)); err == nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onSave() {
	if mw.state.Project == nil {
		return
	}
	if err := mw.state.Save(); err != nil {
		dialog.ShowError(err, mw.Window)
	}
}

func (mw *MainWindow) onExport() {
	if mw.state.Project == nil {
		return
	}
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := writer.URI().Path()
		if filepath.Ext(path) != ".json" {
			path += ".json"
		}
		if err := mw.state.Export(path); err != nil {
			dialog.ShowError(err, mw.Window)
			return
		}
		mw.updateStatus("Exported to " + path)
	}, mw.Window)
	fd.SetFileName(mw.state.Project.Name + ".coco.json")
	fd.Show()
}

func (mw *MainWindow) onReload() {
	if mw.state.Project == nil {
		return
	}
	mw.handleProjectErr(mw.state.Reload())
}

func (mw *MainWindow) onNext() { mw.handleProjectErr(mw.state.Next()) }
func (mw *MainWindow) onPrev() { mw.handleProjectErr(mw.state.Prev()) }

func (mw *MainWindow) onUndo() { mw.state.History.Undo() }
func (mw *MainWindow) onRedo() { mw.state.History.Redo() }

func (mw *MainWindow) onCategorySelected(label string) {
	if id, ok := parseCategoryLabel(label); ok && id != mw.state.Gesture.Category.ID {
		mw.state.SetActiveCategory(id)
	}
}

func (mw *MainWindow) onAddCategory() {
	dialogs.NewCategoryDialog(mw.Window, func(name string, c color.RGBA) {
		if _, err := mw.state.AddCategory(name, c); err != nil {
			dialog.ShowError(err, mw.Window)
		}
	}).Show()
}

func (mw *MainWindow) canvasCenter() geometry.Point2D {
	size := mw.canvas.Size()
	return geometry.NewPoint2D(float64(size.Width)/2, float64(size.Height)/2)
}

func (mw *MainWindow) onZoomIn() {
	mw.state.View.ZoomAt(mw.canvasCenter(), mw.state.Config.Editor.WheelFactor)
}

func (mw *MainWindow) onZoomOut() {
	mw.state.View.ZoomAt(mw.canvasCenter(), 1/mw.state.Config.Editor.WheelFactor)
}

func (mw *MainWindow) onFit() {
	mw.state.FitToView()
}

func (mw *MainWindow) onActualSize() {
	mw.state.View.ZoomAt(mw.canvasCenter(), 1/mw.state.View.Scale())
}

func (mw *MainWindow) onClose() {
	if mw.state.Project != nil && mw.state.Modified {
		if err := mw.state.Save(); err != nil {
			mw.log.Error("failed to save on close", slog.Any("error", err))
		}
	}
	if mw.watcher != nil {
		mw.watcher.Stop()
	}
	size := mw.Canvas().Size()
	mw.prefs.SetInt(prefs.KeyWindowWidth, int(size.Width))
	mw.prefs.SetInt(prefs.KeyWindowHeight, int(size.Height))
	mw.savePrefs()
	mw.Close()
}

func (mw *MainWindow) onControls() {
	dialog.ShowInformation("Controls",
		"Right drag: draw a box, or resize the selected box by a handle\n"+
			"Left click: select; Ctrl toggles, Shift adds\n"+
			"Left drag: move the selection, or marquee select on empty space\n"+
			"Middle drag: pan    Wheel: zoom at cursor\n"+
			"Delete: remove selection    Ctrl+C / Ctrl+V: copy / paste\n"+
			"Ctrl+Z / Ctrl+Y: undo / redo    Left / Right: previous / next image",
		mw.Window)
}

func (mw *MainWindow) onAbout() {
	dialog.ShowInformation("About "+version.Name,
		fmt.Sprintf("%s\n\n"+
			"A bounding-box annotation editor for COCO datasets.\n\n"+
			"Built: %s\n"+
			"Commit: %s",
			version.String(), version.BuildTime, version.GitCommit),
		mw.Window)
}
