package tracker

import (
	"fmt"
	"image"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/pf3d/internal/framesource"
	"github.com/banshee-data/pf3d/internal/monitoring"
	"github.com/banshee-data/pf3d/internal/timeutil"
	"github.com/banshee-data/pf3d/internal/tracker/geometry"
	"github.com/banshee-data/pf3d/internal/tracker/likelihood"
	"github.com/banshee-data/pf3d/internal/tracker/particles"
	"github.com/banshee-data/pf3d/internal/units"
)

// State is the lifecycle state of the tracker.
type State string

const (
	StateUninitialized  State = "uninitialized"  // No frame seen yet
	StateInitializing   State = "initializing"   // First frame: camera rescale and prior draw
	StateTracking       State = "tracking"       // Normal score/resample/propagate cycle
	StateReinitializing State = "reinitializing" // Set redrawn from the prior this frame
)

// ProposalSource supplies externally detected object positions in metres.
// Poll must not block; ok is false when nothing new is available.
type ProposalSource interface {
	Poll() (positions [][3]float64, ok bool)
}

// Estimate is the per-frame output of the tracker.
type Estimate struct {
	Seq       uint64
	Timestamp time.Time

	// Position in metres, camera frame.
	X, Y, Z float64

	// Likelihood is the normalized maximum particle likelihood in [0, 1].
	Likelihood float64
	// MeanU, MeanV is the image position of the projected estimate.
	MeanU, MeanV float64

	Seeing        bool
	Reinitialized bool
	State         State

	// Attention is (dirU, dirV, 0, 0, magnitude).
	Attention [5]float64

	Injected  int
	CycleTime time.Duration
}

// scorer is the part of likelihood.Evaluator the tracker depends on.
type scorer interface {
	Prepare(img *image.RGBA)
	Evaluate(x, y, z float64) likelihood.Result
	Project(x, y, z float64) ([]geometry.Point, bool)
	SetCamera(cam geometry.Camera)
}

// Tracker runs the particle filter. It is not safe for concurrent use.
type Tracker struct {
	cfg        Config
	scorer     scorer
	vis        *geometry.Projector
	contourN   int
	baseCamera geometry.Camera
	camera     geometry.Camera

	set        []particles.Particle
	next       []particles.Particle
	resampler  *particles.Resampler
	propagator *particles.Propagator

	rng   *rand.Rand
	clock timeutil.Clock

	state         State
	width, height int
	notTracking   int
	attention     float64
	lastDir       [2]float64
	lastU, lastV  float64
	frames        uint64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock used to measure cycle time.
func WithClock(c timeutil.Clock) Option { return func(t *Tracker) { t.clock = c } }

// WithRand replaces the random source. By default it is seeded from
// Config.Seed, or from the clock when the seed is zero.
func WithRand(r *rand.Rand) Option { return func(t *Tracker) { t.rng = r } }

// New builds a tracker from its configuration and models.
func New(cfg Config, m Models, opts ...Option) (*Tracker, error) {
	if m.Color == nil || m.Sampler == nil {
		return nil, fmt.Errorf("tracker: color model and sampler are required")
	}
	eval := likelihood.NewEvaluator(m.Template, m.Camera, m.Color, m.Sampler, cfg.InsideOutsideWeight)
	return newTracker(cfg, eval, m, opts...)
}

func newTracker(cfg Config, s scorer, m Models, opts ...Option) (*Tracker, error) {
	if cfg.NParticles <= 0 {
		return nil, fmt.Errorf("tracker: n_particles must be positive, got %d", cfg.NParticles)
	}
	if m.Template.N <= 0 {
		return nil, fmt.Errorf("tracker: empty shape template")
	}
	if m.Motion.A == nil {
		return nil, fmt.Errorf("tracker: motion model is required")
	}
	t := &Tracker{
		cfg:        cfg,
		scorer:     s,
		vis:        geometry.NewProjector(m.Template.Midline(), m.Camera),
		contourN:   m.Template.N,
		baseCamera: m.Camera,
		camera:     m.Camera,
		set:        make([]particles.Particle, cfg.NParticles),
		next:       make([]particles.Particle, cfg.NParticles),
		resampler:  particles.NewResampler(cfg.NParticles),
		propagator: particles.NewPropagator(m.Motion, cfg.NParticles),
		clock:      timeutil.RealClock{},
		state:      StateUninitialized,
	}
	for _, o := range opts {
		o(t)
	}
	if t.rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = uint64(t.clock.Now().UnixNano())
		}
		t.rng = rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))
	}
	return t, nil
}

// State returns the current lifecycle state.
func (t *Tracker) State() State { return t.state }

// Camera returns the intrinsics in use, rescaled after the first frame.
func (t *Tracker) Camera() geometry.Camera { return t.camera }

// Frames returns the number of processed frames.
func (t *Tracker) Frames() uint64 { return t.frames }

// Particles returns a copy of the current particle set (mm).
func (t *Tracker) Particles() []particles.Particle {
	out := make([]particles.Particle, len(t.set))
	copy(out, t.set)
	return out
}

// Initialize adapts the camera to the frame size and draws the initial
// particle set. Step calls it on the first frame.
func (t *Tracker) Initialize(f framesource.Frame) {
	t.state = StateInitializing
	b := f.Image.Bounds()
	t.width, t.height = b.Dx(), b.Dy()
	t.camera = t.baseCamera.Rescale(t.width, t.height)
	t.scorer.SetCamera(t.camera)
	t.vis.SetCamera(t.camera)

	particles.DrawPrior(t.set, t.cfg.InitialPositionMM, t.cfg.AccelStdDevMM, t.rng)
	t.notTracking = 0
	t.attention = 0
	t.lastDir = [2]float64{}
	t.lastU, t.lastV = float64(t.width)/2, float64(t.height)/2
	t.state = StateTracking

	monitoring.Opsf("initialised %d particles at (%.0f, %.0f, %.0f) mm; %dx%d image, fx=%.2f fy=%.2f cx=%.1f cy=%.1f",
		len(t.set), t.cfg.InitialPositionMM[0], t.cfg.InitialPositionMM[1], t.cfg.InitialPositionMM[2],
		t.width, t.height, t.camera.Fx, t.camera.Fy, t.camera.Cx, t.camera.Cy)
}

// Step runs one full cycle on frame f and returns the estimate and an
// annotated copy of the frame. props may be nil.
func (t *Tracker) Step(f framesource.Frame, props ProposalSource) (Estimate, *image.RGBA) {
	start := t.clock.Now()
	if t.state == StateUninitialized {
		t.Initialize(f)
	}

	t.scorer.Prepare(f.Image)

	var maxL, sumL float64
	maxIdx := 0
	for i := range t.set {
		p := &t.set[i]
		r := t.scorer.Evaluate(p.X, p.Y, p.Z)
		p.Weight = r.Likelihood
		sumL += r.Likelihood
		if r.Likelihood > maxL {
			maxL = r.Likelihood
			maxIdx = i
		}
	}
	best := t.set[maxIdx]
	monitoring.Tracef("frame %d best particle %d at (%.0f, %.0f, %.0f) likelihood %.4g, total %.4g",
		f.Seq, maxIdx, best.X, best.Y, best.Z, maxL, sumL)

	norm := likelihood.NormalizedLikelihood(maxL)
	seeing := norm > t.cfg.LikelihoodThreshold
	if seeing {
		t.notTracking = 0
		t.attention = t.cfg.AttentionMax
	} else {
		t.attention *= t.cfg.AttentionDecrease
		t.notTracking++
	}

	est := Estimate{
		Seq:        f.Seq,
		Timestamp:  f.Timestamp,
		Likelihood: norm,
		Seeing:     seeing,
	}

	var mean [3]float64
	if t.notTracking >= ReinitAfterFrames || sumL == 0 {
		monitoring.Opsf("frame %d: reinitialising (%d frames without detection, total likelihood %.4g)",
			f.Seq, t.notTracking, sumL)
		particles.DrawPrior(t.set, t.cfg.InitialPositionMM, t.cfg.AccelStdDevMM, t.rng)
		t.notTracking = 0
		mean = particles.Mean(t.set)
		t.state = StateReinitializing
		est.Reinitialized = true
	} else {
		particles.Normalize(t.set)
		mean = particles.WeightedMean(t.set)
		est.Injected = t.advance(maxL, props)
		t.state = StateTracking
	}

	est.X = units.MMToMetres(mean[0])
	est.Y = units.MMToMetres(mean[1])
	est.Z = units.MMToMetres(mean[2])

	annotated, u, v := t.render(f.Image, mean, seeing)
	est.MeanU, est.MeanV = u, v
	est.Attention = t.attentionVector(u, v, seeing)
	est.State = t.state
	est.CycleTime = t.clock.Since(start)
	t.frames++

	monitoring.Diagf("frame %d: x=%.3f y=%.3f z=%.3f m likelihood=%.4f u=%.0f v=%.0f seeing=%t %v",
		f.Seq, est.X, est.Y, est.Z, est.Likelihood, est.MeanU, est.MeanV, est.Seeing, est.CycleTime)
	return est, annotated
}

// advance resamples, propagates and injects proposals. It returns the
// number of injected particles.
func (t *Tracker) advance(maxL float64, props ProposalSource) int {
	injected := t.pollProposals(props)
	k := len(injected)
	m := len(t.set) - k

	resampled := false
	if m > 0 && maxL > t.cfg.MinResampleLikelihood {
		if err := t.resampler.Systematic(t.next, t.set, m, t.rng); err != nil {
			monitoring.Opsf("resampling skipped: %v", err)
		} else {
			resampled = true
		}
	}
	if !resampled {
		copy(t.next, t.set)
	}
	t.set, t.next = t.next, t.set

	t.propagator.Propagate(t.set, t.rng)

	for i, pos := range injected {
		t.set[m+i] = particles.Particle{
			X:      units.MetresToMM(pos[0]),
			Y:      units.MetresToMM(pos[1]),
			Z:      units.MetresToMM(pos[2]),
			Weight: InjectedWeight,
		}
	}
	return k
}

func (t *Tracker) pollProposals(props ProposalSource) [][3]float64 {
	if props == nil {
		return nil
	}
	batch, ok := props.Poll()
	if !ok || len(batch) == 0 {
		return nil
	}
	if len(batch) > len(t.set) {
		monitoring.Opsf("ignoring %d proposed particles: only %d particles in the set", len(batch), len(t.set))
		return nil
	}
	return batch
}

func (t *Tracker) attentionVector(u, v float64, seeing bool) [5]float64 {
	if seeing {
		hw, hh := float64(t.width)/2, float64(t.height)/2
		t.lastDir = [2]float64{(u - hw) / hw / attentionScale, (v - hh) / hh / attentionScale}
	}
	return [5]float64{t.lastDir[0], t.lastDir[1], 0, 0, t.attention}
}
