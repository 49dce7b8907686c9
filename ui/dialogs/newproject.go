// Package dialogs provides application dialogs.
package dialogs

import (
	"errors"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
)

// NewProjectRequest is what the user filled into the new project dialog.
type NewProjectRequest struct {
	Name        string
	ImageFolder string
	// ImportPath is an optional COCO file to start from.
	ImportPath string
}

// Validate checks the required fields.
func (r NewProjectRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("project name is required")
	}
	if strings.TrimSpace(r.ImageFolder) == "" {
		return errors.New("image folder is required")
	}
	return nil
}

// NewProjectDialog asks for a project name, an image folder and an optional
// COCO file to import.
type NewProjectDialog struct {
	window fyne.Window

	nameEntry   *widget.Entry
	folderEntry *widget.Entry
	importEntry *widget.Entry

	onCreate func(NewProjectRequest)
}

// NewNewProjectDialog creates the dialog. onCreate runs with a validated
// request.
func NewNewProjectDialog(window fyne.Window, onCreate func(NewProjectRequest)) *NewProjectDialog {
	return &NewProjectDialog{
		window:   window,
		onCreate: onCreate,
	}
}

// Show displays the dialog.
func (d *NewProjectDialog) Show() {
	dlg := dialog.NewCustomConfirm(
		"New Project",
		"Create",
		"Cancel",
		d.createContent(),
		func(create bool) {
			if !create {
				return
			}
			req := d.Request()
			if err := req.Validate(); err != nil {
				dialog.ShowError(err, d.window)
				return
			}
			if d.onCreate != nil {
				d.onCreate(req)
			}
		},
		d.window,
	)
	dlg.Resize(fyne.NewSize(560, 260))
	dlg.Show()
}

// Request returns the current field values.
func (d *NewProjectDialog) Request() NewProjectRequest {
	return NewProjectRequest{
		Name:        strings.TrimSpace(d.nameEntry.Text),
		ImageFolder: strings.TrimSpace(d.folderEntry.Text),
		ImportPath:  strings.TrimSpace(d.importEntry.Text),
	}
}

func (d *NewProjectDialog) createContent() fyne.CanvasObject {
	d.nameEntry = widget.NewEntry()
	d.nameEntry.SetPlaceHolder("My Dataset")

	d.folderEntry = widget.NewEntry()
	d.folderEntry.SetPlaceHolder("/path/to/images")
	folderBtn := widget.NewButton("Browse...", func() {
		dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
			if err != nil || uri == nil {
				return
			}
			d.folderEntry.SetText(uri.Path())
		}, d.window)
	})

	d.importEntry = widget.NewEntry()
	d.importEntry.SetPlaceHolder("optional")
	importBtn := widget.NewButton("Browse...", func() {
		fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
			if err != nil || reader == nil {
				return
			}
			reader.Close()
			d.importEntry.SetText(reader.URI().Path())
		}, d.window)
		fd.SetFilter(storage.NewExtensionFileFilter([]string{".json"}))
		fd.Show()
	})

	return widget.NewForm(
		widget.NewFormItem("Name", d.nameEntry),
		widget.NewFormItem("Image folder", container.NewBorder(nil, nil, nil, folderBtn, d.folderEntry)),
		widget.NewFormItem("Import COCO", container.NewBorder(nil, nil, nil, importBtn, d.importEntry)),
	)
}
