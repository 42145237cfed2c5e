// Package tracker owns the per-frame particle filter loop of the 3D ball
// tracker.
//
// Each frame every particle is scored by projecting the object template
// at its position and comparing the colors inside and outside the
// projected contour with the object's color model. The weighted mean of
// the scored set is the frame's estimate. The set is then resampled,
// optionally topped up with externally proposed positions, and propagated
// with the motion model. After five consecutive frames without a confident
// detection, or when no particle scores at all, the set is redrawn around
// the configured initial position.
//
// Subpackages: geometry (camera and template projection), appearance
// (color histograms), likelihood (hypothesis scoring) and particles
// (particle set, motion model, resampler).
//
// The tracker is single-threaded: Step and Run must be called from one
// goroutine. Sinks receive the annotated frame by value and must not retain
// it past Emit unless they copy it.
package tracker
