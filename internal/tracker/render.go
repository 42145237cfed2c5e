package tracker

import (
	"image"
	"image/color"
	"math"

	"github.com/banshee-data/pf3d/internal/tracker/geometry"
)

var (
	colorContour   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorSeeing    = color.RGBA{G: 255, A: 255}
	colorSearching = color.RGBA{R: 255, G: 255, A: 255}
)

// render draws the template projected at mean (mm) on a copy of src and
// returns it with the floor of the mean image position of the contour.
func (t *Tracker) render(src *image.RGBA, mean [3]float64, seeing bool) (*image.RGBA, float64, float64) {
	out := cloneRGBA(src)

	var (
		uv  []geometry.Point
		ok  bool
		col color.RGBA
	)
	switch t.cfg.VisualizationMode {
	case VisualizeCircle:
		uv, ok = t.vis.ProjectAt(mean[0], mean[1], mean[2])
		col = colorSearching
		if seeing {
			col = colorSeeing
		}
	default:
		uv, ok = t.scorer.Project(mean[0], mean[1], mean[2])
		col = colorContour
	}
	if !ok {
		return out, t.lastU, t.lastV
	}

	n := t.contourN
	if n > len(uv) {
		n = len(uv)
	}
	var su, sv float64
	for _, p := range uv[:n] {
		su += p.U
		sv += p.V
	}
	u := math.Floor(su / float64(n))
	v := math.Floor(sv / float64(n))

	if t.cfg.VisualizationMode == VisualizeCircle {
		for _, p := range uv {
			fillBlock(out, int(p.U), int(p.V), 2, col)
		}
	} else {
		for _, p := range uv {
			setPixel(out, int(p.U), int(p.V), col)
		}
	}
	setPixel(out, int(u), int(v), col)

	t.lastU, t.lastV = u, v
	return out, u, v
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(b)
	rowLen := 4 * b.Dx()
	for y := 0; y < b.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+rowLen], src.Pix[y*src.Stride:y*src.Stride+rowLen])
	}
	return out
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	p := image.Pt(img.Rect.Min.X+x, img.Rect.Min.Y+y)
	if p.In(img.Rect) {
		img.SetRGBA(p.X, p.Y, c)
	}
}

func fillBlock(img *image.RGBA, x, y, half int, c color.RGBA) {
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			setPixel(img, x+dx, y+dy, c)
		}
	}
}
