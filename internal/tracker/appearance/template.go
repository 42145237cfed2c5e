package appearance

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/banshee-data/pf3d/internal/tracker/modelio"
)

// ErrEmptyTemplate is returned when a training image has no object pixels.
var ErrEmptyTemplate = errors.New("training image has no non-background pixels")

// ComputeTemplateHistogram builds the object color model from a training
// image. Pure white pixels (255, 255, 255) are background and ignored.
func ComputeTemplateHistogram(img image.Image, b Bins) (*Histogram, error) {
	h := NewHistogram(b)
	bounds := img.Bounds()
	used := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r, g, bl := uint8(r16>>8), uint8(g16>>8), uint8(b16>>8)
			if r == 255 && g == 255 && bl == 255 {
				continue
			}
			h.Cells[Classify(b, r, g, bl)]++
			used++
		}
	}
	if used == 0 {
		return nil, ErrEmptyTemplate
	}
	h.Scale(used)
	return h, nil
}

// WriteHistogram writes h one value per line in raster order.
func WriteHistogram(w io.Writer, h *Histogram) error {
	return modelio.WriteFloats(w, h.Cells)
}

// ReadHistogram reads a histogram written by WriteHistogram.
func ReadHistogram(r io.Reader, b Bins) (*Histogram, error) {
	vals, err := modelio.ReadFloats(r)
	if err != nil {
		return nil, err
	}
	if len(vals) != b.Cells() {
		return nil, fmt.Errorf("histogram has %d values, want %d for %s bins", len(vals), b.Cells(), b)
	}
	for i, v := range vals {
		if v < 0 {
			return nil, fmt.Errorf("histogram cell %d is negative: %g", i, v)
		}
	}
	return &Histogram{Bins: b, Cells: vals}, nil
}

// SaveHistogramFile writes h to path.
func SaveHistogramFile(path string, h *Histogram) error {
	return modelio.WriteFloatsFile(path, h.Cells)
}

// LoadHistogramFile reads a histogram of the given layout from path.
func LoadHistogramFile(path string, b Bins) (*Histogram, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open histogram: %w", err)
	}
	defer f.Close()
	h, err := ReadHistogram(f, b)
	if err != nil {
		return nil, fmt.Errorf("failed to read histogram %s: %w", path, err)
	}
	return h, nil
}
