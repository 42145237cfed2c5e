package attention

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/pf3d/internal/monitoring"
	"github.com/banshee-data/pf3d/internal/tracker"
)

// Opener opens a serial device. It is replaced in tests.
type Opener func(path string, mode *serial.Mode) (io.WriteCloser, error)

func openSerial(path string, mode *serial.Mode) (io.WriteCloser, error) {
	return serial.Open(path, mode)
}

// SerialSink writes "dirU dirV 0 0 magnitude" lines. It implements
// tracker.Sink.
type SerialSink struct {
	mu      sync.Mutex
	port    io.WriteCloser
	written uint64
	failed  uint64
}

// Open opens path with opts and returns a sink writing to it.
func Open(path string, opts PortOptions) (*SerialSink, error) {
	return OpenWith(openSerial, path, opts)
}

// OpenWith is Open with a custom opener.
func OpenWith(open Opener, path string, opts PortOptions) (*SerialSink, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open attention port %s: %w", path, err)
	}
	monitoring.Opsf("attention output on %s at %d baud", path, mode.BaudRate)
	return NewSerialSink(port), nil
}

// NewSerialSink wraps an already open port.
func NewSerialSink(port io.WriteCloser) *SerialSink {
	return &SerialSink{port: port}
}

// FormatLine encodes one attention vector.
func FormatLine(a [5]float64) string {
	return fmt.Sprintf("%.4f %.4f %.4f %.4f %.3f\n", a[0], a[1], a[2], a[3], a[4])
}

// Emit writes the estimate's attention vector.
func (s *SerialSink) Emit(_ context.Context, est tracker.Estimate, _ *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.port.Write([]byte(FormatLine(est.Attention))); err != nil {
		s.failed++
		return fmt.Errorf("attention write: %w", err)
	}
	s.written++
	return nil
}

// Counts returns the number of successful and failed writes.
func (s *SerialSink) Counts() (written, failed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written, s.failed
}

// Close closes the port.
func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}
