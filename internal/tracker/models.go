package tracker

import (
	"fmt"

	"github.com/banshee-data/pf3d/internal/config"
	"github.com/banshee-data/pf3d/internal/framesource"
	"github.com/banshee-data/pf3d/internal/tracker/appearance"
	"github.com/banshee-data/pf3d/internal/tracker/geometry"
	"github.com/banshee-data/pf3d/internal/tracker/particles"
)

// Models bundles the startup-time inputs of the tracker.
type Models struct {
	Template geometry.ShapeTemplate
	Motion   particles.MotionModel
	Color    *appearance.Histogram
	Sampler  appearance.Sampler
	Camera   geometry.Camera
}

// LoadModels reads or generates every model named by cfg. Any failure is a
// startup error.
func LoadModels(cfg *config.TrackerConfig) (Models, error) {
	var m Models

	n := cfg.GetShapeTemplatePoints()
	if path := cfg.GetShapeTemplatePath(); path != "" {
		tmpl, err := geometry.LoadShapeTemplate(path, n)
		if err != nil {
			return Models{}, err
		}
		m.Template = tmpl
	} else {
		m.Template = geometry.SphereTemplate(cfg.GetSphereRadiusMM(), cfg.GetSphereMargin(), n)
	}

	if path := cfg.GetMotionModelPath(); path != "" {
		motion, err := particles.LoadMotionModel(path, cfg.GetAccelStdDevMM())
		if err != nil {
			return Models{}, err
		}
		m.Motion = motion
	} else {
		m.Motion = particles.ConstantVelocity(cfg.GetAccelStdDevMM())
	}

	y, u, v := cfg.GetBins()
	bins := appearance.Bins{Y: y, U: u, V: v}
	switch {
	case cfg.GetColorTemplateHistogram() != "":
		h, err := appearance.LoadHistogramFile(cfg.GetColorTemplateHistogram(), bins)
		if err != nil {
			return Models{}, err
		}
		m.Color = h
	case cfg.GetColorTemplateImage() != "":
		img, err := framesource.DecodeFile(cfg.GetColorTemplateImage())
		if err != nil {
			return Models{}, fmt.Errorf("color template: %w", err)
		}
		h, err := appearance.ComputeTemplateHistogram(img, bins)
		if err != nil {
			return Models{}, fmt.Errorf("color template: %w", err)
		}
		m.Color = h
	default:
		return Models{}, fmt.Errorf("no color model: set color_template_histogram or color_template_image")
	}

	sampler, err := appearance.NewSampler(cfg.GetColorPolicy(), bins)
	if err != nil {
		return Models{}, err
	}
	m.Sampler = sampler

	cam, err := cfg.ResolveCamera()
	if err != nil {
		return Models{}, err
	}
	m.Camera = geometry.NewCamera(cam)

	return m, nil
}
