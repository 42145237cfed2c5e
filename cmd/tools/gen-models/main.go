// Command gen-models writes the default sphere shape template and constant
// velocity motion model as plain text model files.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/pf3d/internal/monitoring"
	"github.com/banshee-data/pf3d/internal/tracker/geometry"
	"github.com/banshee-data/pf3d/internal/tracker/particles"
)

// Config holds the tool options.
type Config struct {
	OutputDir     string
	RadiusMM      float64
	Margin        float64
	Points        int
	AccelStdDevMM float64
}

func main() {
	cfg := parseFlags()
	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.OutputDir, "out", "models", "Output directory")
	flag.Float64Var(&cfg.RadiusMM, "radius-mm", 35, "Sphere radius in mm")
	flag.Float64Var(&cfg.Margin, "margin", 0.3, "Relative offset of the inner and outer contours")
	flag.IntVar(&cfg.Points, "points", 50, "Contour points per ring")
	flag.Float64Var(&cfg.AccelStdDevMM, "accel-stdev-mm", 150, "Acceleration noise in mm per frame")
	flag.Parse()
	return cfg
}

func run(cfg Config) error {
	if cfg.Points < 3 {
		return fmt.Errorf("need at least 3 contour points, got %d", cfg.Points)
	}
	if cfg.RadiusMM <= 0 || cfg.Margin <= 0 || cfg.Margin >= 1 {
		return fmt.Errorf("invalid sphere radius %g or margin %g", cfg.RadiusMM, cfg.Margin)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}

	tmplPath := filepath.Join(cfg.OutputDir, "sphere_template.txt")
	tmpl := geometry.SphereTemplate(cfg.RadiusMM, cfg.Margin, cfg.Points)
	if err := geometry.WriteShapeTemplate(tmplPath, tmpl); err != nil {
		return fmt.Errorf("write shape template: %w", err)
	}

	motionPath := filepath.Join(cfg.OutputDir, "constant_velocity.txt")
	if err := particles.WriteMotionModel(motionPath, particles.ConstantVelocity(cfg.AccelStdDevMM)); err != nil {
		return fmt.Errorf("write motion model: %w", err)
	}

	monitoring.Logf("wrote %s (%d points, r=%gmm) and %s", tmplPath, cfg.Points, cfg.RadiusMM, motionPath)
	return nil
}
