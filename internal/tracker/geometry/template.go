package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pf3d/internal/tracker/modelio"
)

// ShapeTemplate is the 3D contour model of the tracked object: n points
// just inside its silhouette followed by n points just outside it, stored
// as the columns of a 3 x 2n matrix in millimetres.
type ShapeTemplate struct {
	Points *mat.Dense
	N      int
}

// NewShapeTemplate wraps a 3 x 2n matrix.
func NewShapeTemplate(points *mat.Dense) (ShapeTemplate, error) {
	r, c := points.Dims()
	if r != 3 || c == 0 || c%2 != 0 {
		return ShapeTemplate{}, fmt.Errorf("shape template must be 3 x 2n, got %d x %d", r, c)
	}
	return ShapeTemplate{Points: points, N: c / 2}, nil
}

// SphereTemplate generates the template of a sphere of the given radius seen
// along the x axis: two circles in the x = 0 plane with radii r(1-margin)
// and r(1+margin).
func SphereTemplate(radiusMM, margin float64, n int) ShapeTemplate {
	pts := mat.NewDense(3, 2*n, nil)
	inner := radiusMM * (1 - margin)
	outer := radiusMM * (1 + margin)
	for k := 0; k < n; k++ {
		theta := 2 * math.Pi * float64(k) / float64(n)
		c, s := math.Cos(theta), math.Sin(theta)
		pts.Set(1, k, inner*c)
		pts.Set(2, k, inner*s)
		pts.Set(1, n+k, outer*c)
		pts.Set(2, n+k, outer*s)
	}
	return ShapeTemplate{Points: pts, N: n}
}

// Midline returns the 3 x n contour halfway between the inner and outer
// points, used when drawing the estimate.
func (t ShapeTemplate) Midline() *mat.Dense {
	mid := mat.NewDense(3, t.N, nil)
	for i := 0; i < 3; i++ {
		for k := 0; k < t.N; k++ {
			mid.Set(i, k, (t.Points.At(i, k)+t.Points.At(i, t.N+k))/2)
		}
	}
	return mid
}

// LoadShapeTemplate reads a template of n points per contour. The file holds
// the X row, then the Y row, then the Z row, one value per line.
func LoadShapeTemplate(path string, n int) (ShapeTemplate, error) {
	vals, err := modelio.ReadFloatsFile(path, 3*2*n)
	if err != nil {
		return ShapeTemplate{}, fmt.Errorf("shape template: %w", err)
	}
	return NewShapeTemplate(mat.NewDense(3, 2*n, vals))
}

// WriteShapeTemplate writes t in the format read by LoadShapeTemplate.
func WriteShapeTemplate(path string, t ShapeTemplate) error {
	r, c := t.Points.Dims()
	vals := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		vals = append(vals, mat.Row(nil, i, t.Points)...)
	}
	return modelio.WriteFloatsFile(path, vals)
}
