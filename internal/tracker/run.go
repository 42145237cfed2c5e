package tracker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/banshee-data/pf3d/internal/framesource"
	"github.com/banshee-data/pf3d/internal/monitoring"
)

// Sink consumes the per-frame output. The annotated image is shared between
// sinks and must be copied if retained after Emit returns.
type Sink interface {
	Emit(ctx context.Context, est Estimate, annotated *image.RGBA) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, est Estimate, annotated *image.RGBA) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, est Estimate, annotated *image.RGBA) error {
	return f(ctx, est, annotated)
}

// Run processes frames from src until it is exhausted or ctx is cancelled.
// Cancellation is checked between frames only. Sink errors are logged and do
// not stop the loop. It returns nil when the source ends.
func (t *Tracker) Run(ctx context.Context, src framesource.Source, props ProposalSource, sinks ...Sink) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			monitoring.Opsf("frame source exhausted after %d frames", t.frames)
			return nil
		}
		if err != nil {
			return fmt.Errorf("frame source: %w", err)
		}

		est, annotated := t.Step(f, props)
		for _, s := range sinks {
			if err := s.Emit(ctx, est, annotated); err != nil {
				monitoring.Opsf("frame %d: sink error: %v", est.Seq, err)
			}
		}
	}
}
