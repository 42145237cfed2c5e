package monitor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/pf3d/internal/tracker"
)

// TrajectoryPlotter collects estimates and writes PNG plots when saved.
// It implements tracker.Sink.
type TrajectoryPlotter struct {
	mu      sync.Mutex
	samples []tracker.Estimate
}

func NewTrajectoryPlotter() *TrajectoryPlotter { return &TrajectoryPlotter{} }

// Emit records est.
func (p *TrajectoryPlotter) Emit(_ context.Context, est tracker.Estimate, _ *image.RGBA) error {
	p.mu.Lock()
	p.samples = append(p.samples, est)
	p.mu.Unlock()
	return nil
}

// Len is the number of estimates collected.
func (p *TrajectoryPlotter) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.samples)
}

var axisColors = []color.Color{
	color.RGBA{R: 220, G: 50, B: 47, A: 255},
	color.RGBA{R: 38, G: 139, B: 210, A: 255},
	color.RGBA{R: 133, G: 153, B: 0, A: 255},
}

// Save writes trajectory.png and likelihood.png into dir.
func (p *TrajectoryPlotter) Save(dir string) error {
	p.mu.Lock()
	samples := append([]tracker.Estimate(nil), p.samples...)
	p.mu.Unlock()
	if len(samples) == 0 {
		return fmt.Errorf("no estimates to plot")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	pTrack := plot.New()
	pTrack.Title.Text = "Ball position"
	pTrack.X.Label.Text = "Frame"
	pTrack.Y.Label.Text = "Position (m)"

	pLik := plot.New()
	pLik.Title.Text = "Maximum particle likelihood"
	pLik.X.Label.Text = "Frame"
	pLik.Y.Label.Text = "Likelihood"
	pLik.Y.Min, pLik.Y.Max = 0, 1

	axes := [3]plotter.XYs{}
	lik := make(plotter.XYs, 0, len(samples))
	var seeing plotter.XYs
	for _, s := range samples {
		f := float64(s.Seq)
		axes[0] = append(axes[0], plotter.XY{X: f, Y: s.X})
		axes[1] = append(axes[1], plotter.XY{X: f, Y: s.Y})
		axes[2] = append(axes[2], plotter.XY{X: f, Y: s.Z})
		lik = append(lik, plotter.XY{X: f, Y: s.Likelihood})
		if s.Seeing {
			seeing = append(seeing, plotter.XY{X: f, Y: s.Likelihood})
		}
	}

	for i, name := range []string{"x", "y", "z"} {
		line, err := plotter.NewLine(axes[i])
		if err != nil {
			return err
		}
		line.Color = axisColors[i]
		line.Width = vg.Points(1)
		pTrack.Add(line)
		pTrack.Legend.Add(name, line)
	}

	likLine, err := plotter.NewLine(lik)
	if err != nil {
		return err
	}
	likLine.Width = vg.Points(1)
	pLik.Add(likLine)
	pLik.Legend.Add("likelihood", likLine)
	if len(seeing) > 0 {
		sc, err := plotter.NewScatter(seeing)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Radius = vg.Points(1.5)
		sc.GlyphStyle.Color = axisColors[2]
		pLik.Add(sc)
		pLik.Legend.Add("seeing", sc)
	}

	for _, pl := range []*plot.Plot{pTrack, pLik} {
		pl.Legend.Top = true
		pl.Legend.Left = false
		pl.Legend.XOffs = -10
		pl.Legend.YOffs = -10
	}

	if err := pTrack.Save(14*vg.Inch, 6*vg.Inch, filepath.Join(dir, "trajectory.png")); err != nil {
		return fmt.Errorf("save trajectory plot: %w", err)
	}
	if err := pLik.Save(14*vg.Inch, 6*vg.Inch, filepath.Join(dir, "likelihood.png")); err != nil {
		return fmt.Errorf("save likelihood plot: %w", err)
	}
	return nil
}
