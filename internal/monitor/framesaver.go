package monitor

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/banshee-data/pf3d/internal/tracker"
)

// FrameSaver writes each annotated frame to dir as 0001.jpeg, 0002.jpeg
// and so on. It implements tracker.Sink.
type FrameSaver struct {
	dir     string
	quality int
	n       int
}

// NewFrameSaver creates dir if needed.
func NewFrameSaver(dir string) (*FrameSaver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FrameSaver{dir: dir, quality: 90}, nil
}

// Emit writes annotated; frames without an image are skipped.
func (s *FrameSaver) Emit(_ context.Context, _ tracker.Estimate, annotated *image.RGBA) error {
	if annotated == nil {
		return nil
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%04d.jpeg", s.n+1))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, annotated, &jpeg.Options{Quality: s.quality}); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	s.n++
	return f.Close()
}

// Saved is the number of frames written.
func (s *FrameSaver) Saved() int { return s.n }
