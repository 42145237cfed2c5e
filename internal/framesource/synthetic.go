package framesource

import (
	"context"
	"image"
	"image/color"
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/pf3d/internal/timeutil"
	"github.com/banshee-data/pf3d/internal/tracker/geometry"
)

// SyntheticConfig describes a rendered scene: a colored ball circling the
// optical axis in front of a flat background.
type SyntheticConfig struct {
	Camera     geometry.Camera
	RadiusMM   float64 // ball radius
	OrbitMM    float64 // radius of the circular path
	DepthMM    float64 // distance of the path plane from the camera
	StepRad    float64 // angle advanced per frame
	Ball       color.RGBA
	Background color.RGBA
	Noise      int           // uniform per-channel noise amplitude
	Frames     int           // 0 renders forever
	Interval   time.Duration // pacing between frames, 0 for none
	Seed       uint64

	// Hide reports frames where the ball is not drawn.
	Hide func(seq uint64) bool
}

// DefaultSyntheticConfig returns a red ball on a blue-grey background.
func DefaultSyntheticConfig(cam geometry.Camera) SyntheticConfig {
	return SyntheticConfig{
		Camera:     cam,
		RadiusMM:   35,
		OrbitMM:    150,
		DepthMM:    1000,
		StepRad:    0.02,
		Ball:       color.RGBA{R: 220, G: 30, B: 30, A: 255},
		Background: color.RGBA{R: 60, G: 80, B: 140, A: 255},
		Noise:      8,
		Seed:       1,
	}
}

// SyntheticSource renders frames of a SyntheticConfig scene by ray casting
// each pixel against the ball.
type SyntheticSource struct {
	cfg   SyntheticConfig
	seq   uint64
	rng   *rand.Rand
	clock timeutil.Clock
}

// NewSyntheticSource returns a renderer for cfg.
func NewSyntheticSource(cfg SyntheticConfig, clock timeutil.Clock) *SyntheticSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SyntheticSource{
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1)),
		clock: clock,
	}
}

// Position returns the ball centre in millimetres for frame seq.
func (s *SyntheticSource) Position(seq uint64) [3]float64 {
	a := s.cfg.StepRad * float64(seq)
	return [3]float64{s.cfg.OrbitMM * math.Cos(a), s.cfg.OrbitMM * math.Sin(a), s.cfg.DepthMM}
}

// Next renders the next frame.
func (s *SyntheticSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.cfg.Frames > 0 && s.seq >= uint64(s.cfg.Frames) {
		return Frame{}, io.EOF
	}
	if s.cfg.Interval > 0 && s.seq > 0 {
		s.clock.Sleep(s.cfg.Interval)
	}
	s.seq++
	hidden := s.cfg.Hide != nil && s.cfg.Hide(s.seq)
	img := s.Render(s.Position(s.seq), !hidden)
	return Frame{Seq: s.seq, Timestamp: s.clock.Now(), Image: img}, nil
}

// Render draws the scene with the ball at centre (mm).
func (s *SyntheticSource) Render(centre [3]float64, drawBall bool) *image.RGBA {
	cam := s.cfg.Camera
	img := image.NewRGBA(image.Rect(0, 0, cam.W, cam.H))
	r2 := s.cfg.RadiusMM * s.cfg.RadiusMM
	for v := 0; v < cam.H; v++ {
		dy := (float64(v) + 0.5 - cam.Cy) / cam.Fy
		for u := 0; u < cam.W; u++ {
			c := s.cfg.Background
			if drawBall {
				dx := (float64(u) + 0.5 - cam.Cx) / cam.Fx
				if rayHitsSphere(dx, dy, centre, r2) {
					c = s.cfg.Ball
				}
			}
			off := img.PixOffset(u, v)
			img.Pix[off] = s.jitter(c.R)
			img.Pix[off+1] = s.jitter(c.G)
			img.Pix[off+2] = s.jitter(c.B)
			img.Pix[off+3] = 255
		}
	}
	return img
}

// rayHitsSphere tests the ray t*(dx, dy, 1), t > 0, against a sphere.
func rayHitsSphere(dx, dy float64, c [3]float64, r2 float64) bool {
	dd := dx*dx + dy*dy + 1
	t := (dx*c[0] + dy*c[1] + c[2]) / dd
	if t <= 0 {
		return false
	}
	px, py, pz := t*dx-c[0], t*dy-c[1], t-c[2]
	return px*px+py*py+pz*pz <= r2
}

func (s *SyntheticSource) jitter(v uint8) uint8 {
	if s.cfg.Noise <= 0 {
		return v
	}
	n := int(v) + s.rng.IntN(2*s.cfg.Noise+1) - s.cfg.Noise
	return uint8(min(max(n, 0), 255))
}

// Close is a no-op.
func (s *SyntheticSource) Close() error { return nil }
