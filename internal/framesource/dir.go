package framesource

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/pf3d/internal/timeutil"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// DirSource replays the images of a directory in file name order.
type DirSource struct {
	files    []string
	next     int
	seq      uint64
	loop     bool
	interval time.Duration
	clock    timeutil.Clock
}

// DirOption configures a DirSource.
type DirOption func(*DirSource)

// WithLoop restarts from the first image after the last one.
func WithLoop(loop bool) DirOption { return func(s *DirSource) { s.loop = loop } }

// WithFrameInterval paces frames at the given period.
func WithFrameInterval(d time.Duration) DirOption { return func(s *DirSource) { s.interval = d } }

// WithClock sets the clock used for timestamps and pacing.
func WithClock(c timeutil.Clock) DirOption { return func(s *DirSource) { s.clock = c } }

// NewDirSource lists the image files of dir.
func NewDirSource(dir string, opts ...DirOption) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}
	s := &DirSource{clock: timeutil.RealClock{}}
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		s.files = append(s.files, filepath.Join(dir, e.Name()))
	}
	if len(s.files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(s.files)
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Len returns the number of images in one pass.
func (s *DirSource) Len() int { return len(s.files) }

// Next decodes the next image.
func (s *DirSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.next >= len(s.files) {
		if !s.loop {
			return Frame{}, io.EOF
		}
		s.next = 0
	}
	if s.interval > 0 && s.seq > 0 {
		s.clock.Sleep(s.interval)
	}
	img, err := DecodeFile(s.files[s.next])
	if err != nil {
		return Frame{}, err
	}
	s.next++
	s.seq++
	return Frame{Seq: s.seq, Timestamp: s.clock.Now(), Image: img}, nil
}

// Close is a no-op.
func (s *DirSource) Close() error { return nil }
