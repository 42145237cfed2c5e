// Package monitor exposes the running tracker over HTTP and writes offline
// plots and annotated frames.
package monitor

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"

	"github.com/banshee-data/pf3d/internal/tracker"
)

// DefaultHistory is the number of estimates kept for charts.
const DefaultHistory = 900

// Monitor keeps the latest tracker output for the web server. It implements
// tracker.Sink.
type Monitor struct {
	mu      sync.RWMutex
	history []tracker.Estimate
	max     int
	last    tracker.Estimate
	jpeg    []byte
	frames  uint64
	seeing  uint64
	reinits uint64
}

// NewMonitor keeps up to history estimates; 0 uses DefaultHistory.
func NewMonitor(history int) *Monitor {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Monitor{max: history}
}

// Emit records est and encodes the annotated frame as JPEG.
func (m *Monitor) Emit(_ context.Context, est tracker.Estimate, annotated *image.RGBA) error {
	var buf bytes.Buffer
	if annotated != nil {
		if err := jpeg.Encode(&buf, annotated, &jpeg.Options{Quality: 85}); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = est
	if buf.Len() > 0 {
		m.jpeg = buf.Bytes()
	}
	m.frames++
	if est.Seeing {
		m.seeing++
	}
	if est.Reinitialized {
		m.reinits++
	}
	if len(m.history) == m.max {
		copy(m.history, m.history[1:])
		m.history = m.history[:m.max-1]
	}
	m.history = append(m.history, est)
	return nil
}

// Status is the /api/status payload.
type Status struct {
	Frames        uint64           `json:"frames"`
	SeeingFrames  uint64           `json:"seeing_frames"`
	Reinitialized uint64           `json:"reinitialized"`
	Last          *EstimateSummary `json:"last,omitempty"`
}

// EstimateSummary is the JSON form of an estimate.
type EstimateSummary struct {
	Seq        uint64     `json:"seq"`
	X          float64    `json:"x_m"`
	Y          float64    `json:"y_m"`
	Z          float64    `json:"z_m"`
	Likelihood float64    `json:"likelihood"`
	U          float64    `json:"u"`
	V          float64    `json:"v"`
	Seeing     bool       `json:"seeing"`
	State      string     `json:"state"`
	Attention  [5]float64 `json:"attention"`
	CycleMS    float64    `json:"cycle_ms"`
}

func summarize(est tracker.Estimate) EstimateSummary {
	return EstimateSummary{
		Seq:        est.Seq,
		X:          est.X,
		Y:          est.Y,
		Z:          est.Z,
		Likelihood: est.Likelihood,
		U:          est.MeanU,
		V:          est.MeanV,
		Seeing:     est.Seeing,
		State:      string(est.State),
		Attention:  est.Attention,
		CycleMS:    float64(est.CycleTime.Microseconds()) / 1000,
	}
}

// Status returns counters and the last estimate.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Status{Frames: m.frames, SeeingFrames: m.seeing, Reinitialized: m.reinits}
	if m.frames > 0 {
		last := summarize(m.last)
		s.Last = &last
	}
	return s
}

// History returns a copy of the retained estimates, oldest first.
func (m *Monitor) History() []tracker.Estimate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]tracker.Estimate, len(m.history))
	copy(out, m.history)
	return out
}

// FrameJPEG returns the last annotated frame, or nil before the first one.
func (m *Monitor) FrameJPEG() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jpeg
}
