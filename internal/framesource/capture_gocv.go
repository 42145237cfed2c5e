//go:build gocv
// +build gocv

package framesource

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"gocv.io/x/gocv"

	"github.com/banshee-data/pf3d/internal/timeutil"
)

// CaptureSource reads frames from a camera index or a video file through
// OpenCV. This type is only available when building with the 'gocv' tag.
type CaptureSource struct {
	capture *gocv.VideoCapture
	bgr     gocv.Mat
	rgba    gocv.Mat
	seq     uint64
	clock   timeutil.Clock
}

// OpenCapture opens device, either a numeric camera index or a file path.
func OpenCapture(device string, clock timeutil.Clock) (Source, error) {
	var (
		capture *gocv.VideoCapture
		err     error
	)
	if id, convErr := strconv.Atoi(device); convErr == nil {
		capture, err = gocv.VideoCaptureDevice(id)
	} else {
		capture, err = gocv.VideoCaptureFile(device)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %q: %w", device, err)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &CaptureSource{
		capture: capture,
		bgr:     gocv.NewMat(),
		rgba:    gocv.NewMat(),
		clock:   clock,
	}, nil
}

// Next blocks until the device delivers a frame.
func (s *CaptureSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if ok := s.capture.Read(&s.bgr); !ok || s.bgr.Empty() {
		return Frame{}, io.EOF
	}
	gocv.CvtColor(s.bgr, &s.rgba, gocv.ColorBGRToRGBA)
	img, err := s.rgba.ToImage()
	if err != nil {
		return Frame{}, fmt.Errorf("failed to convert frame: %w", err)
	}
	s.seq++
	return Frame{Seq: s.seq, Timestamp: s.clock.Now(), Image: ToRGBA(img)}, nil
}

// Close releases the device and buffers.
func (s *CaptureSource) Close() error {
	s.bgr.Close()
	s.rgba.Close()
	return s.capture.Close()
}
