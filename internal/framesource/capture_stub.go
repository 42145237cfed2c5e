//go:build !gocv
// +build !gocv

package framesource

import (
	"fmt"

	"github.com/banshee-data/pf3d/internal/timeutil"
)

// OpenCapture is a stub implementation when OpenCV support is disabled.
// Build with -tags=gocv to enable camera and video capture.
func OpenCapture(device string, clock timeutil.Clock) (Source, error) {
	return nil, fmt.Errorf("capture support not enabled: rebuild with -tags=gocv to open %q", device)
}
