// Package particles holds the particle set of the 3D tracker together with
// its motion model and systematic resampler. Positions are millimetres in
// the camera frame, velocities millimetres per frame.
package particles

import (
	"math/rand/v2"
)

// StateSize is the number of entries in a particle state vector:
// position, velocity and weight.
const StateSize = 7

// Particle is one position and velocity hypothesis with its weight.
type Particle struct {
	X, Y, Z    float64
	VX, VY, VZ float64
	Weight     float64
}

// Position returns the particle position.
func (p Particle) Position() [3]float64 { return [3]float64{p.X, p.Y, p.Z} }

// SumWeights returns the total weight of ps.
func SumWeights(ps []Particle) float64 {
	var s float64
	for i := range ps {
		s += ps[i].Weight
	}
	return s
}

// Normalize scales the weights to sum to one and returns the sum before
// scaling. A zero sum leaves the weights untouched.
func Normalize(ps []Particle) float64 {
	s := SumWeights(ps)
	if s == 0 {
		return 0
	}
	for i := range ps {
		ps[i].Weight /= s
	}
	return s
}

// WeightedMean returns the weight-averaged position of a normalized set.
func WeightedMean(ps []Particle) [3]float64 {
	var m [3]float64
	for i := range ps {
		w := ps[i].Weight
		m[0] += w * ps[i].X
		m[1] += w * ps[i].Y
		m[2] += w * ps[i].Z
	}
	return m
}

// Mean returns the unweighted mean position.
func Mean(ps []Particle) [3]float64 {
	var m [3]float64
	if len(ps) == 0 {
		return m
	}
	for i := range ps {
		m[0] += ps[i].X
		m[1] += ps[i].Y
		m[2] += ps[i].Z
	}
	n := float64(len(ps))
	return [3]float64{m[0] / n, m[1] / n, m[2] / n}
}

// DrawPrior scatters ps around mean with independent Gaussian noise of the
// given standard deviation on each axis. Velocities and weights are zeroed.
func DrawPrior(ps []Particle, mean [3]float64, stdDev float64, rng *rand.Rand) {
	for i := range ps {
		ps[i] = Particle{
			X: mean[0] + rng.NormFloat64()*stdDev,
			Y: mean[1] + rng.NormFloat64()*stdDev,
			Z: mean[2] + rng.NormFloat64()*stdDev,
		}
	}
}
