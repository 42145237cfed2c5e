package particles

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pf3d/internal/tracker/modelio"
)

// MotionModel is a linear transition on the 7-element state plus a random
// acceleration.
type MotionModel struct {
	A           *mat.Dense
	AccelStdDev float64
}

// ConstantVelocity returns the model p' = p + v, v' = v with weights kept.
func ConstantVelocity(accelStdDev float64) MotionModel {
	a := mat.NewDense(StateSize, StateSize, nil)
	for i := 0; i < StateSize; i++ {
		a.Set(i, i, 1)
	}
	for i := 0; i < 3; i++ {
		a.Set(i, i+3, 1)
	}
	return MotionModel{A: a, AccelStdDev: accelStdDev}
}

// LoadMotionModel reads a 7x7 transition matrix stored row by row, one value
// per line.
func LoadMotionModel(path string, accelStdDev float64) (MotionModel, error) {
	vals, err := modelio.ReadFloatsFile(path, StateSize*StateSize)
	if err != nil {
		return MotionModel{}, fmt.Errorf("motion model: %w", err)
	}
	return MotionModel{A: mat.NewDense(StateSize, StateSize, vals), AccelStdDev: accelStdDev}, nil
}

// WriteMotionModel writes the transition matrix in the LoadMotionModel format.
func WriteMotionModel(path string, m MotionModel) error {
	vals := make([]float64, 0, StateSize*StateSize)
	for i := 0; i < StateSize; i++ {
		vals = append(vals, mat.Row(nil, i, m.A)...)
	}
	return modelio.WriteFloatsFile(path, vals)
}

// Propagator applies a motion model to a fixed-size particle set.
type Propagator struct {
	model MotionModel
	state *mat.Dense
	next  *mat.Dense
}

// NewPropagator allocates the state buffers for n particles.
func NewPropagator(m MotionModel, n int) *Propagator {
	return &Propagator{
		model: m,
		state: mat.NewDense(StateSize, n, nil),
		next:  mat.NewDense(StateSize, n, nil),
	}
}

// Propagate advances every particle by one frame. The same acceleration
// sample a is added to the velocity and, halved, to the position.
func (p *Propagator) Propagate(ps []Particle, rng *rand.Rand) {
	raw := p.state.RawMatrix()
	s := raw.Stride
	for j := range ps {
		q := &ps[j]
		raw.Data[j] = q.X
		raw.Data[s+j] = q.Y
		raw.Data[2*s+j] = q.Z
		raw.Data[3*s+j] = q.VX
		raw.Data[4*s+j] = q.VY
		raw.Data[5*s+j] = q.VZ
		raw.Data[6*s+j] = q.Weight
	}

	p.next.Mul(p.model.A, p.state)

	out := p.next.RawMatrix()
	s = out.Stride
	sd := p.model.AccelStdDev
	for j := range ps {
		ax := rng.NormFloat64() * sd
		ay := rng.NormFloat64() * sd
		az := rng.NormFloat64() * sd
		ps[j] = Particle{
			X:      out.Data[j] + ax/2,
			Y:      out.Data[s+j] + ay/2,
			Z:      out.Data[2*s+j] + az/2,
			VX:     out.Data[3*s+j] + ax,
			VY:     out.Data[4*s+j] + ay,
			VZ:     out.Data[5*s+j] + az,
			Weight: out.Data[6*s+j],
		}
	}
}
