package tracker

import (
	"github.com/banshee-data/pf3d/internal/config"
	"github.com/banshee-data/pf3d/internal/units"
)

// Fixed policy constants.
const (
	// ReinitAfterFrames is the number of consecutive frames without a
	// confident detection that triggers reinitialisation.
	ReinitAfterFrames = 5
	// InjectedWeight is the placeholder weight of externally proposed particles.
	InjectedWeight = 0.8
	// attentionScale bounds the attention direction components.
	attentionScale = 1.5
)

// Visualization modes.
const (
	VisualizeSampledLines = 0
	VisualizeCircle       = 1
)

// Config holds the filter parameters in tracker units (millimetres).
type Config struct {
	NParticles            int
	AccelStdDevMM         float64
	InsideOutsideWeight   float64
	LikelihoodThreshold   float64
	MinResampleLikelihood float64
	AttentionMax          float64
	AttentionDecrease     float64
	InitialPositionMM     [3]float64
	VisualizationMode     int
	Seed                  uint64
}

// DefaultConfig returns the configuration from the canonical defaults file.
// Panics if the file cannot be found; intended for tests.
func DefaultConfig() Config {
	return ConfigFromTracker(config.MustLoadDefaultConfig())
}

// ConfigFromTracker builds a Config from a loaded TrackerConfig.
func ConfigFromTracker(cfg *config.TrackerConfig) Config {
	pos := cfg.GetInitialPositionM()
	return Config{
		NParticles:            cfg.GetNParticles(),
		AccelStdDevMM:         cfg.GetAccelStdDevMM(),
		InsideOutsideWeight:   cfg.GetInsideOutsideWeight(),
		LikelihoodThreshold:   cfg.GetLikelihoodThreshold(),
		MinResampleLikelihood: cfg.GetMinResampleLikelihood(),
		AttentionMax:          cfg.GetAttentionOutputMax(),
		AttentionDecrease:     cfg.GetAttentionOutputDecrease(),
		InitialPositionMM: [3]float64{
			units.MetresToMM(pos[0]),
			units.MetresToMM(pos[1]),
			units.MetresToMM(pos[2]),
		},
		VisualizationMode: cfg.GetCircleVisualizationMode(),
		Seed:              cfg.GetSeed(),
	}
}
