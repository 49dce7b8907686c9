// Package imagesrc loads the raster images that boxes are drawn on.
package imagesrc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned for files whose extension is not an image
// format we decode.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Image is a decoded image file.
type Image struct {
	Path  string
	Image image.Image
	DPI   float64 // from TIFF metadata, 0 when unknown
}

// Load decodes the image at path, applying EXIF orientation.
func Load(path string) (*Image, error) {
	if !IsSupportedFormat(path) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	out := &Image{Path: path, Image: img}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".tiff" || ext == ".tif" {
		if dpi, err := extractTIFFDPI(path); err == nil {
			out.DPI = dpi
		}
	}
	return out, nil
}

// ImageSize returns the pixel dimensions, or zeros for a nil image.
func (i *Image) ImageSize() (int, int) {
	if i == nil || i.Image == nil {
		return 0, 0
	}
	b := i.Image.Bounds()
	return b.Dx(), b.Dy()
}

// Name returns the file name without directory.
func (i *Image) Name() string {
	return filepath.Base(i.Path)
}

// SupportedFormats returns the list of supported image extensions.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// ListFolder returns the supported image file names in dir, sorted
// case-insensitively.
func ListFolder(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image folder: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedFormat(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	SortNames(names)
	return names, nil
}

// SortNames sorts file names case-insensitively, falling back to a
// byte-wise compare for names that differ only in case.
func SortNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a, b := strings.ToLower(names[i]), strings.ToLower(names[j])
		if a != b {
			return a < b
		}
		return names[i] < names[j]
	})
}

// extractTIFFDPI reads the resolution tags of the first IFD.
func extractTIFFDPI(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	header := make([]byte, 8)
	if _, err := file.Read(header); err != nil {
		return 0, err
	}

	var order binary.ByteOrder
	switch {
	case header[0] == 'I' && header[1] == 'I':
		order = binary.LittleEndian
	case header[0] == 'M' && header[1] == 'M':
		order = binary.BigEndian
	default:
		return 0, fmt.Errorf("not a valid TIFF file")
	}

	if _, err := file.Seek(int64(order.Uint32(header[4:8])), 0); err != nil {
		return 0, err
	}

	var numEntries uint16
	if err := binary.Read(file, order, &numEntries); err != nil {
		return 0, err
	}

	var xRes, yRes float64
	var resUnit uint16 = 2 // inches
	entry := make([]byte, 12)
	for i := uint16(0); i < numEntries; i++ {
		if _, err := file.Read(entry); err != nil {
			return 0, err
		}
		tag := order.Uint16(entry[0:2])
		fieldType := order.Uint16(entry[2:4])
		value := order.Uint32(entry[8:12])

		switch {
		case tag == 282 && fieldType == 5:
			xRes = readRational(file, int64(value), order)
		case tag == 283 && fieldType == 5:
			yRes = readRational(file, int64(value), order)
		case tag == 296 && fieldType == 3:
			// SHORT values sit in the first two bytes of the field
			resUnit = order.Uint16(entry[8:10])
		}
	}

	dpi := xRes
	if dpi == 0 {
		dpi = yRes
	}
	if dpi == 0 {
		return 0, fmt.Errorf("no resolution tags found")
	}
	if resUnit == 3 {
		dpi *= 2.54
	}
	return dpi, nil
}

func readRational(file *os.File, offset int64, order binary.ByteOrder) float64 {
	cur, _ := file.Seek(0, 1)
	defer file.Seek(cur, 0)

	if _, err := file.Seek(offset, 0); err != nil {
		return 0
	}
	var num, denom uint32
	if binary.Read(file, order, &num) != nil || binary.Read(file, order, &denom) != nil || denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}
