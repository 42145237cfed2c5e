package appearance

import "fmt"

// Bins is the number of quantisation levels per Y, U and V channel.
type Bins struct {
	Y, U, V int
}

// DefaultBins is the 4x8x8 layout: luminance is coarse so the model is
// tolerant to lighting changes.
var DefaultBins = Bins{Y: 4, U: 8, V: 8}

// Cells returns the number of histogram cells.
func (b Bins) Cells() int { return b.Y * b.U * b.V }

// Index returns the raster index of cell (y, u, v).
func (b Bins) Index(y, u, v int) int { return (y*b.U+u)*b.V + v }

func (b Bins) String() string { return fmt.Sprintf("%dx%dx%d", b.Y, b.U, b.V) }

// Histogram is a normalised YUV color histogram stored flat in raster order.
type Histogram struct {
	Bins  Bins
	Cells []float64
}

// NewHistogram allocates an empty histogram.
func NewHistogram(b Bins) *Histogram {
	return &Histogram{Bins: b, Cells: make([]float64, b.Cells())}
}

// Reset zeroes every cell.
func (h *Histogram) Reset() {
	for i := range h.Cells {
		h.Cells[i] = 0
	}
}

// Scale divides every cell by count. A zero count leaves the histogram as is.
func (h *Histogram) Scale(count int) {
	if count <= 0 {
		return
	}
	inv := 1 / float64(count)
	for i := range h.Cells {
		h.Cells[i] *= inv
	}
}

// Sum returns the total mass of the histogram.
func (h *Histogram) Sum() float64 {
	var s float64
	for _, c := range h.Cells {
		s += c
	}
	return s
}
