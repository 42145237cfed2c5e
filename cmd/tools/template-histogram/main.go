// Command template-histogram builds the object colour model from a training
// image. Pure white pixels are treated as background.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/banshee-data/pf3d/internal/framesource"
	"github.com/banshee-data/pf3d/internal/monitoring"
	"github.com/banshee-data/pf3d/internal/tracker/appearance"
)

// Config holds the tool options.
type Config struct {
	Image  string
	Output string
	Bins   appearance.Bins
}

func main() {
	cfg := parseFlags()
	if cfg.Image == "" || cfg.Output == "" {
		log.Fatal("-image and -out are required")
	}
	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Image, "image", "", "Training image (PNG, JPEG, BMP or TIFF)")
	flag.StringVar(&cfg.Output, "out", "", "Output histogram file")
	flag.IntVar(&cfg.Bins.Y, "y-bins", appearance.DefaultBins.Y, "Luma bins")
	flag.IntVar(&cfg.Bins.U, "u-bins", appearance.DefaultBins.U, "U chroma bins")
	flag.IntVar(&cfg.Bins.V, "v-bins", appearance.DefaultBins.V, "V chroma bins")
	flag.Parse()
	return cfg
}

func run(cfg Config) error {
	if cfg.Bins.Y <= 0 || cfg.Bins.U <= 0 || cfg.Bins.V <= 0 {
		return fmt.Errorf("invalid bins %s", cfg.Bins)
	}
	img, err := framesource.DecodeFile(cfg.Image)
	if err != nil {
		return err
	}
	h, err := appearance.ComputeTemplateHistogram(img, cfg.Bins)
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.Image, err)
	}
	if err := appearance.SaveHistogramFile(cfg.Output, h); err != nil {
		return err
	}
	monitoring.Logf("wrote %s histogram of %s to %s", cfg.Bins, cfg.Image, cfg.Output)
	return nil
}
