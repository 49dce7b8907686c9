package dialogs

import (
	"image/color"
	"strings"

	"box-annotator/pkg/colorutil"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
)

// CategoryDialog asks for a new category name and outline color.
type CategoryDialog struct {
	window fyne.Window

	nameEntry  *widget.Entry
	colorEntry *widget.Entry
	swatch     *fynecanvas.Rectangle

	onAdd func(name string, c color.RGBA)
}

// NewCategoryDialog creates the dialog. An empty or unparsable color is
// passed on as the zero color.
func NewCategoryDialog(window fyne.Window, onAdd func(name string, c color.RGBA)) *CategoryDialog {
	return &CategoryDialog{window: window, onAdd: onAdd}
}

// Show displays the dialog.
func (d *CategoryDialog) Show() {
	dlg := dialog.NewCustomConfirm(
		"Add Category",
		"Add",
		"Cancel",
		d.createContent(),
		func(add bool) {
			if add && d.onAdd != nil {
				d.onAdd(strings.TrimSpace(d.nameEntry.Text), d.color())
			}
		},
		d.window,
	)
	dlg.Resize(fyne.NewSize(380, 200))
	dlg.Show()
}

func (d *CategoryDialog) createContent() fyne.CanvasObject {
	d.nameEntry = widget.NewEntry()
	d.nameEntry.SetPlaceHolder("car")

	d.colorEntry = widget.NewEntry()
	d.colorEntry.SetPlaceHolder("#00ff00 (blank for automatic)")

	d.swatch = fynecanvas.NewRectangle(color.RGBA{R: 128, G: 128, B: 128, A: 255})
	d.swatch.SetMinSize(fyne.NewSize(40, 24))
	d.colorEntry.OnChanged = func(string) { d.updateSwatch() }

	return widget.NewForm(
		widget.NewFormItem("Name", d.nameEntry),
		widget.NewFormItem("Color", container.NewBorder(nil, nil, nil, d.swatch, d.colorEntry)),
	)
}

func (d *CategoryDialog) color() color.RGBA {
	c, err := colorutil.ParseHex(d.colorEntry.Text)
	if err != nil || strings.TrimSpace(d.colorEntry.Text) == "" {
		return color.RGBA{}
	}
	return c
}

func (d *CategoryDialog) updateSwatch() {
	if c := d.color(); c != (color.RGBA{}) {
		d.swatch.FillColor = c
	} else {
		d.swatch.FillColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	}
	d.swatch.Refresh()
}
