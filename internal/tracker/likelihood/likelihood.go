// Package likelihood scores a 3D position hypothesis against the current
// frame by comparing the colors just inside and just outside the projected
// object contour with the object's color model.
package likelihood

import (
	"image"
	"math"

	"github.com/banshee-data/pf3d/internal/monitoring"
	"github.com/banshee-data/pf3d/internal/tracker/appearance"
	"github.com/banshee-data/pf3d/internal/tracker/geometry"
)

// Exponent sharpens the similarity score: likelihood = exp(Exponent * score).
const Exponent = 20

var expMax = math.Exp(Exponent)

// NormalizedLikelihood maps a raw likelihood to [0, 1] by dividing by the
// value of a perfect match with full contour coverage.
func NormalizedLikelihood(l float64) float64 { return l / expMax }

// Score compares the inner histogram with the model (Bhattacharyya
// coefficient) and penalises similarity between the inner and outer
// histograms by weight w. The result is rescaled so that a perfect match
// with a disjoint background scores 1. It reports false when the rescaled
// score is negative.
func Score(model, inner, outer *appearance.Histogram, w float64) (float64, bool) {
	var sum float64
	for i, m := range model.Cells {
		in := inner.Cells[i]
		sum += math.Sqrt(in*m) - w*math.Sqrt(outer.Cells[i]*in)
	}
	score := (sum + w) / (1 + w)
	return score, score >= 0
}

// Result is the outcome of one hypothesis evaluation.
type Result struct {
	Likelihood float64
	Score      float64
	UsedInner  int
	UsedOuter  int
	Projected  bool
}

// Evaluator holds the scoring buffers for one tracker. It is not safe for
// concurrent use.
type Evaluator struct {
	model     *appearance.Histogram
	projector *geometry.Projector
	sampler   appearance.Sampler
	inner     *appearance.Histogram
	outer     *appearance.Histogram
	n         int
	weight    float64
}

// NewEvaluator returns an evaluator for the given template, intrinsics and
// color model.
func NewEvaluator(tmpl geometry.ShapeTemplate, cam geometry.Camera, model *appearance.Histogram, sampler appearance.Sampler, weight float64) *Evaluator {
	return &Evaluator{
		model:     model,
		projector: geometry.NewProjector(tmpl.Points, cam),
		sampler:   sampler,
		inner:     appearance.NewHistogram(model.Bins),
		outer:     appearance.NewHistogram(model.Bins),
		n:         tmpl.N,
		weight:    weight,
	}
}

// SetCamera replaces the intrinsics.
func (e *Evaluator) SetCamera(cam geometry.Camera) { e.projector.SetCamera(cam) }

// Camera returns the current intrinsics.
func (e *Evaluator) Camera() geometry.Camera { return e.projector.Camera() }

// Prepare hands the frame to the sampler. Call once per frame.
func (e *Evaluator) Prepare(img *image.RGBA) { e.sampler.Prepare(img) }

// Project places and projects the template at (x, y, z) mm. The returned
// slice is reused by the next Project or Evaluate call.
func (e *Evaluator) Project(x, y, z float64) ([]geometry.Point, bool) {
	return e.projector.ProjectAt(x, y, z)
}

// Evaluate scores the hypothesis (x, y, z) mm. A hypothesis that cannot be
// projected scores zero.
func (e *Evaluator) Evaluate(x, y, z float64) Result {
	uv, ok := e.projector.ProjectAt(x, y, z)
	if !ok {
		return Result{}
	}

	usedIn := e.sampler.BuildHistogram(e.inner, uv[:e.n])
	usedOut := e.sampler.BuildHistogram(e.outer, uv[e.n:])

	score, valid := Score(e.model, e.inner, e.outer, e.weight)
	if !valid {
		monitoring.Diagf("negative likelihood %.4f at (%.0f, %.0f, %.0f)", score, x, y, z)
	}

	l := math.Exp(Exponent * score)
	fin := float64(usedIn) / float64(e.n)
	fout := float64(usedOut) / float64(e.n)
	l *= fin * fin * fout * fout

	return Result{
		Likelihood: l,
		Score:      score,
		UsedInner:  usedIn,
		UsedOuter:  usedOut,
		Projected:  true,
	}
}
