package likelihood

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pf3d/internal/config"
	"github.com/banshee-data/pf3d/internal/tracker/appearance"
	"github.com/banshee-data/pf3d/internal/tracker/geometry"
)

func onehot(b appearance.Bins, cell int) *appearance.Histogram {
	h := appearance.NewHistogram(b)
	h.Cells[cell] = 1
	return h
}

func scaled(h *appearance.Histogram, f float64) *appearance.Histogram {
	for i := range h.Cells {
		h.Cells[i] *= f
	}
	return h
}

func TestScore(t *testing.T) {
	b := appearance.DefaultBins
	w := 1.5

	tests := []struct {
		name       string
		model      *appearance.Histogram
		inner      *appearance.Histogram
		outer      *appearance.Histogram
		want       float64
		wantNonNeg bool
	}{
		{"perfect match, distinct background", onehot(b, 3), onehot(b, 3), onehot(b, 9), 1, true},
		{"perfect match, same background", onehot(b, 3), onehot(b, 3), onehot(b, 3), 1 / (1 + w), true},
		{"no match, distinct background", onehot(b, 3), onehot(b, 4), onehot(b, 9), w / (1 + w), true},
		{"empty inner", onehot(b, 3), appearance.NewHistogram(b), onehot(b, 3), w / (1 + w), true},
		{"no match, same background", onehot(b, 3), onehot(b, 4), onehot(b, 4), 0, true},
		{"unnormalised overlap", onehot(b, 3), scaled(onehot(b, 4), 4), onehot(b, 4), (-2*w + w) / (1 + w), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Score(tt.model, tt.inner, tt.outer, w)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.Equal(t, tt.wantNonNeg, ok)
		})
	}
}

func TestNormalizedLikelihood(t *testing.T) {
	assert.InDelta(t, 1.0, NormalizedLikelihood(math.Exp(20)), 1e-12)
	assert.InDelta(t, math.Exp(-20), NormalizedLikelihood(1), 1e-20)
}

// discScene renders a red disc of the projected sphere radius at the image
// position of (x, y, z) on a blue background.
func discScene(cam geometry.Camera, x, y, z, radiusMM float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, cam.W, cam.H))
	cu := cam.Fx*x/z + cam.Cx
	cv := cam.Fy*y/z + cam.Cy
	r := cam.Fx * radiusMM / z
	for v := 0; v < cam.H; v++ {
		for u := 0; u < cam.W; u++ {
			c := color.RGBA{R: 20, G: 40, B: 200, A: 255}
			if math.Hypot(float64(u)+0.5-cu, float64(v)+0.5-cv) <= r {
				c = color.RGBA{R: 220, G: 30, B: 30, A: 255}
			}
			img.SetRGBA(u, v, c)
		}
	}
	return img
}

func TestEvaluator_PeaksAtTruePosition(t *testing.T) {
	cam := geometry.NewCamera(config.DefaultCamera())
	bins := appearance.DefaultBins
	tmpl := geometry.SphereTemplate(60, 0.3, 40)
	model := onehot(bins, appearance.Classify(bins, 220, 30, 30))

	e := NewEvaluator(tmpl, cam, model, appearance.NewRGBSampler(bins), 1.5)
	e.Prepare(discScene(cam, 100, -50, 1000, 60))

	at := e.Evaluate(100, -50, 1000)
	require.True(t, at.Projected)
	assert.Equal(t, 40, at.UsedInner)
	assert.Equal(t, 40, at.UsedOuter)
	assert.InDelta(t, 1.0, at.Score, 1e-9)
	assert.InDelta(t, 1.0, NormalizedLikelihood(at.Likelihood), 1e-9)

	off := e.Evaluate(300, 100, 1000)
	assert.Less(t, off.Likelihood, at.Likelihood/100)
}

func TestEvaluator_CoveragePenalty(t *testing.T) {
	cam := geometry.NewCamera(config.DefaultCamera())
	bins := appearance.DefaultBins
	tmpl := geometry.SphereTemplate(60, 0.3, 40)
	model := onehot(bins, appearance.Classify(bins, 220, 30, 30))

	e := NewEvaluator(tmpl, cam, model, appearance.NewRGBSampler(bins), 1.5)
	// Centre the disc on the left image edge so about half the contour is off-image.
	x := -cam.Cx * 1000 / cam.Fx
	e.Prepare(discScene(cam, x, 0, 1000, 60))

	r := e.Evaluate(x, 0, 1000)
	require.True(t, r.Projected)
	assert.Less(t, r.UsedInner, 40)
	assert.Greater(t, r.UsedInner, 0)
	fin := float64(r.UsedInner) / 40
	fout := float64(r.UsedOuter) / 40
	assert.InDelta(t, math.Exp(20*r.Score)*fin*fin*fout*fout, r.Likelihood, 1e-6*r.Likelihood)
}

// fixedSampler fills the inner histogram, then the outer one, with preset
// contents and reports preset sample counts.
type fixedSampler struct {
	inner, outer         *appearance.Histogram
	usedInner, usedOuter int
	calls                int
}

func (s *fixedSampler) Prepare(*image.RGBA) {}

func (s *fixedSampler) BuildHistogram(dst *appearance.Histogram, _ []geometry.Point) int {
	s.calls++
	if s.calls%2 == 1 {
		copy(dst.Cells, s.inner.Cells)
		return s.usedInner
	}
	copy(dst.Cells, s.outer.Cells)
	return s.usedOuter
}

func TestEvaluator_LikelihoodChain(t *testing.T) {
	cam := geometry.NewCamera(config.DefaultCamera())
	b := appearance.DefaultBins
	tmpl := geometry.SphereTemplate(35, 0.3, 40)

	tests := []struct {
		name       string
		outerCell  int
		usedInner  int
		usedOuter  int
		wantScore  float64
		wantLikely float64
	}{
		// exp(20*1) * (40/40)^2 * (40/40)^2
		{"full coverage, distinct background", 9, 40, 40, 1, math.Exp(20)},
		// exp(20*1) * (30/40)^2 * (20/40)^2 = exp(20) * 0.5625 * 0.25
		{"partial coverage, distinct background", 9, 30, 20, 1, math.Exp(20) * 0.140625},
		// score 1/(1+1.5) = 0.4; exp(8) * 0.5625 * 0.25
		{"partial coverage, same background", 3, 30, 20, 0.4, math.Exp(8) * 0.140625},
		// no outer samples zeroes the likelihood
		{"no outer samples", 9, 40, 0, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fixedSampler{inner: onehot(b, 3), outer: onehot(b, tt.outerCell), usedInner: tt.usedInner, usedOuter: tt.usedOuter}
			e := NewEvaluator(tmpl, cam, onehot(b, 3), s, 1.5)
			r := e.Evaluate(0, 0, 1000)
			require.True(t, r.Projected)
			assert.InDelta(t, tt.wantScore, r.Score, 1e-12)
			assert.InDelta(t, tt.wantLikely, r.Likelihood, 1e-9*math.Max(tt.wantLikely, 1))
			assert.Equal(t, tt.usedInner, r.UsedInner)
			assert.Equal(t, tt.usedOuter, r.UsedOuter)
		})
	}
}

func TestEvaluator_BehindCameraScoresZero(t *testing.T) {
	cam := geometry.NewCamera(config.DefaultCamera())
	bins := appearance.DefaultBins
	e := NewEvaluator(geometry.SphereTemplate(35, 0.3, 20), cam, onehot(bins, 0), appearance.NewRGBSampler(bins), 1.5)
	e.Prepare(image.NewRGBA(image.Rect(0, 0, cam.W, cam.H)))

	r := e.Evaluate(0, 0, -500)
	assert.False(t, r.Projected)
	assert.Equal(t, 0.0, r.Likelihood)
}
