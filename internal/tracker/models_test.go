package tracker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pf3d/internal/config"
	"github.com/banshee-data/pf3d/internal/tracker/appearance"
	"github.com/banshee-data/pf3d/internal/tracker/geometry"
	"github.com/banshee-data/pf3d/internal/tracker/particles"
)

// defaultsWithHistogram loads the shipped defaults and adds a uniform colour
// model so LoadModels has everything it needs.
func defaultsWithHistogram(t *testing.T) *config.TrackerConfig {
	t.Helper()
	cfg := config.MustLoadDefaultConfig()
	y, u, v := cfg.GetBins()
	h := appearance.NewHistogram(appearance.Bins{Y: y, U: u, V: v})
	for i := range h.Cells {
		h.Cells[i] = 1
	}
	path := filepath.Join(t.TempDir(), "ball.hist")
	require.NoError(t, appearance.SaveHistogramFile(path, h))
	cfg.ColorTemplateHistogram = &path
	return cfg
}

func TestLoadModels_DefaultModelFiles(t *testing.T) {
	cfg := defaultsWithHistogram(t)
	require.NotEmpty(t, cfg.GetShapeTemplatePath())
	require.NotEmpty(t, cfg.GetMotionModelPath())

	m, err := LoadModels(cfg)
	require.NoError(t, err)

	want := geometry.SphereTemplate(cfg.GetSphereRadiusMM(), cfg.GetSphereMargin(), cfg.GetShapeTemplatePoints())
	require.Equal(t, want.N, m.Template.N)
	r, c := want.Points.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.InDelta(t, want.Points.At(i, j), m.Template.Points.At(i, j), 1e-9, "point (%d,%d)", i, j)
		}
	}

	cv := particles.ConstantVelocity(cfg.GetAccelStdDevMM())
	for i := 0; i < particles.StateSize; i++ {
		for j := 0; j < particles.StateSize; j++ {
			assert.Equal(t, cv.A.At(i, j), m.Motion.A.At(i, j), "A(%d,%d)", i, j)
		}
	}
	assert.Equal(t, cfg.GetAccelStdDevMM(), m.Motion.AccelStdDev)
}

func TestLoadModels_NonFiniteTemplate(t *testing.T) {
	cfg := defaultsWithHistogram(t)

	data, err := os.ReadFile(cfg.GetShapeTemplatePath())
	require.NoError(t, err)
	bad := filepath.Join(t.TempDir(), "sphere_template.txt")
	require.NoError(t, os.WriteFile(bad, append([]byte("NaN\n"), data[len("0\n"):]...), 0644))
	cfg.ShapeTemplatePath = &bad

	_, err = LoadModels(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-finite")
}
