package particles

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrZeroWeight is returned when a set with no weight is resampled.
var ErrZeroWeight = errors.New("particle weights sum to zero")

// Resampler draws a new particle set with systematic (low variance)
// resampling. It keeps its cumulative weight buffer between calls.
type Resampler struct {
	cum []float64
}

// NewResampler allocates buffers for sets of n particles.
func NewResampler(n int) *Resampler {
	return &Resampler{cum: make([]float64, n+1)}
}

// Systematic normalizes src and fills dst[:m] with copies of src particles
// chosen by a single random offset u in [0, 1/m) and stride 1/m, so each
// particle is copied about weight*m times. Copies have zero weight. The
// remaining slots dst[m:] are copies of src[m:] and are meant to be
// overwritten by the caller.
func (r *Resampler) Systematic(dst, src []Particle, m int, rng *rand.Rand) error {
	n := len(src)
	if len(dst) != n {
		return fmt.Errorf("resample: dst has %d particles, src has %d", len(dst), n)
	}
	if m <= 0 || m > n {
		return fmt.Errorf("resample: cannot generate %d of %d particles", m, n)
	}
	if Normalize(src) == 0 {
		return ErrZeroWeight
	}
	if len(r.cum) != n+1 {
		r.cum = make([]float64, n+1)
	}

	r.cum[0] = 0
	for i := 0; i < n; i++ {
		r.cum[i+1] = r.cum[i] + src[i].Weight
	}
	r.cum[n] = 1

	u := rng.Float64() / float64(m)
	c := 1
	for j := 0; j < m; j++ {
		target := float64(j)/float64(m) + u
		for c < n && r.cum[c] < target {
			c++
		}
		p := src[c-1]
		p.Weight = 0
		dst[j] = p
	}
	copy(dst[m:], src[m:])
	return nil
}
