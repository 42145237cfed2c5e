package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Point is an image-plane coordinate in pixels.
type Point struct {
	U, V float64
}

// Scratch holds the buffers used to place and project one template. It is
// sized once for a fixed number of points and reused every call.
type Scratch struct {
	ry, rz  *mat.Dense
	rotated *mat.Dense
	placed  *mat.Dense
	uv      []Point
}

// NewScratch allocates buffers for templates with the given number of points.
func NewScratch(points int) *Scratch {
	return &Scratch{
		ry:      mat.NewDense(3, 3, nil),
		rz:      mat.NewDense(3, 3, nil),
		rotated: mat.NewDense(3, points, nil),
		placed:  mat.NewDense(3, points, nil),
		uv:      make([]Point, points),
	}
}

// Place moves a template defined at the origin so that its centre sits at
// (x, y, z) and its x axis points along the line of sight from the camera.
// The template is rotated about Y by the elevation, shifted by (r, 0, z) and
// rotated about Z by the azimuth. The result aliases s and is overwritten by
// the next call.
//
// On the optical axis (x = y = 0) the azimuth is taken as zero, and at the
// camera centre both angles are zero.
func Place(s *Scratch, template *mat.Dense, x, y, z float64) *mat.Dense {
	r := math.Hypot(x, y)
	d := math.Sqrt(x*x + y*y + z*z)

	cosA, sinA := 1.0, 0.0
	if d > 0 {
		cosA = r / d
		sinA = -z / d
	}
	cosB, sinB := 1.0, 0.0
	if r > 0 {
		cosB = x / r
		sinB = y / r
	}

	s.ry.Set(0, 0, cosA)
	s.ry.Set(0, 1, 0)
	s.ry.Set(0, 2, sinA)
	s.ry.Set(1, 0, 0)
	s.ry.Set(1, 1, 1)
	s.ry.Set(1, 2, 0)
	s.ry.Set(2, 0, -sinA)
	s.ry.Set(2, 1, 0)
	s.ry.Set(2, 2, cosA)

	s.rz.Set(0, 0, cosB)
	s.rz.Set(0, 1, -sinB)
	s.rz.Set(0, 2, 0)
	s.rz.Set(1, 0, sinB)
	s.rz.Set(1, 1, cosB)
	s.rz.Set(1, 2, 0)
	s.rz.Set(2, 0, 0)
	s.rz.Set(2, 1, 0)
	s.rz.Set(2, 2, 1)

	s.rotated.Mul(s.ry, template)

	raw := s.rotated.RawMatrix()
	n := raw.Cols
	for j := 0; j < n; j++ {
		raw.Data[j] += r
		raw.Data[2*raw.Stride+j] += z
	}

	s.placed.Mul(s.rz, s.rotated)
	return s.placed
}

// Project applies the pinhole model to a 3xM matrix of camera-frame points.
// It reports false if any point lies on or behind the camera plane; those
// points are returned as NaN. The slice aliases s.
func Project(s *Scratch, xyz *mat.Dense, cam Camera) ([]Point, bool) {
	raw := xyz.RawMatrix()
	n := raw.Cols
	ok := true
	for j := 0; j < n; j++ {
		X := raw.Data[j]
		Y := raw.Data[raw.Stride+j]
		Z := raw.Data[2*raw.Stride+j]
		if !(Z > 0) {
			s.uv[j] = Point{U: math.NaN(), V: math.NaN()}
			ok = false
			continue
		}
		s.uv[j] = Point{
			U: cam.Fx*X/Z + cam.Cx,
			V: cam.Fy*Y/Z + cam.Cy,
		}
	}
	return s.uv[:n], ok
}

// Projector places and projects one template with fixed intrinsics.
type Projector struct {
	template *mat.Dense
	cam      Camera
	scratch  *Scratch
}

// NewProjector returns a projector for the given template points.
func NewProjector(template *mat.Dense, cam Camera) *Projector {
	_, n := template.Dims()
	return &Projector{template: template, cam: cam, scratch: NewScratch(n)}
}

// SetCamera replaces the intrinsics, typically after a rescale.
func (p *Projector) SetCamera(cam Camera) { p.cam = cam }

// Camera returns the current intrinsics.
func (p *Projector) Camera() Camera { return p.cam }

// ProjectAt places the template at (x, y, z) mm and projects it. The returned
// slice is reused by the next call.
func (p *Projector) ProjectAt(x, y, z float64) ([]Point, bool) {
	placed := Place(p.scratch, p.template, x, y, z)
	return Project(p.scratch, placed, p.cam)
}
