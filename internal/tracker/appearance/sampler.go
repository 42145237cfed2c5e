package appearance

import (
	"fmt"
	"image"
	"math"

	"github.com/banshee-data/pf3d/internal/config"
	"github.com/banshee-data/pf3d/internal/tracker/geometry"
)

// Sampler builds color histograms from pixels at projected contour points.
// Prepare is called once per frame before any BuildHistogram call.
type Sampler interface {
	Prepare(img *image.RGBA)
	BuildHistogram(dst *Histogram, pts []geometry.Point) int
}

// NewSampler returns the sampler for a color policy.
func NewSampler(policy string, b Bins) (Sampler, error) {
	switch policy {
	case config.ColorPolicyLUT:
		return NewQuantizedSampler(NewLUT(b)), nil
	case config.ColorPolicyDirect:
		return NewRGBSampler(b), nil
	default:
		return nil, fmt.Errorf("color policy %q not supported", policy)
	}
}

// pixelAt truncates p to integer pixel coordinates, as the C-style cast
// would, and reports whether they fall inside a w x h image.
func pixelAt(p geometry.Point, w, h int) (int, int, bool) {
	if math.IsNaN(p.U) || math.IsNaN(p.V) || math.IsInf(p.U, 0) || math.IsInf(p.V, 0) {
		return 0, 0, false
	}
	if p.U <= -1 || p.V <= -1 || p.U >= float64(w) || p.V >= float64(h) {
		return 0, 0, false
	}
	return int(p.U), int(p.V), true
}

// QuantizedSampler converts the whole frame to cell indices in Prepare and
// reads the quantized image when sampling.
type QuantizedSampler struct {
	lut   *LUT
	cells []uint16
	w, h  int
}

// NewQuantizedSampler returns a sampler backed by lut.
func NewQuantizedSampler(lut *LUT) *QuantizedSampler {
	return &QuantizedSampler{lut: lut}
}

// Prepare quantizes img.
func (s *QuantizedSampler) Prepare(img *image.RGBA) {
	b := img.Bounds()
	s.w, s.h = b.Dx(), b.Dy()
	if cap(s.cells) < s.w*s.h {
		s.cells = make([]uint16, s.w*s.h)
	}
	s.cells = s.cells[:s.w*s.h]
	for y := 0; y < s.h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+4*s.w]
		out := s.cells[y*s.w : (y+1)*s.w]
		for x := range out {
			out[x] = uint16(s.lut.Lookup(row[4*x], row[4*x+1], row[4*x+2]))
		}
	}
}

// BuildHistogram fills dst from the points and returns how many were inside
// the image. dst is normalised by that count.
func (s *QuantizedSampler) BuildHistogram(dst *Histogram, pts []geometry.Point) int {
	dst.Reset()
	used := 0
	for _, p := range pts {
		u, v, ok := pixelAt(p, s.w, s.h)
		if !ok {
			continue
		}
		dst.Cells[s.cells[v*s.w+u]]++
		used++
	}
	dst.Scale(used)
	return used
}

// RGBSampler classifies only the sampled pixels.
type RGBSampler struct {
	bins Bins
	img  *image.RGBA
}

// NewRGBSampler returns a sampler that classifies pixels on demand.
func NewRGBSampler(b Bins) *RGBSampler {
	return &RGBSampler{bins: b}
}

// Prepare records the frame.
func (s *RGBSampler) Prepare(img *image.RGBA) { s.img = img }

// BuildHistogram fills dst from the points and returns how many were inside
// the image. dst is normalised by that count.
func (s *RGBSampler) BuildHistogram(dst *Histogram, pts []geometry.Point) int {
	dst.Reset()
	b := s.img.Bounds()
	used := 0
	for _, p := range pts {
		u, v, ok := pixelAt(p, b.Dx(), b.Dy())
		if !ok {
			continue
		}
		off := s.img.PixOffset(b.Min.X+u, b.Min.Y+v)
		px := s.img.Pix[off : off+3 : off+3]
		dst.Cells[Classify(s.bins, px[0], px[1], px[2])]++
		used++
	}
	dst.Scale(used)
	return used
}
