package geometry

import "github.com/banshee-data/pf3d/internal/config"

// Camera holds pinhole intrinsics and the image size they apply to.
type Camera struct {
	W, H   int
	Fx, Fy float64
	Cx, Cy float64
}

// NewCamera builds a Camera from its configuration.
func NewCamera(c config.CameraConfig) Camera {
	return Camera{W: c.W, H: c.H, Fx: c.Fx, Fy: c.Fy, Cx: c.Cx, Cy: c.Cy}
}

// Rescale returns the intrinsics scaled to an image of width x height.
// Horizontal parameters scale with width/W, vertical ones with height/H.
func (c Camera) Rescale(width, height int) Camera {
	if c.W <= 0 || c.H <= 0 || (width == c.W && height == c.H) {
		out := c
		out.W, out.H = width, height
		return out
	}
	sx := float64(width) / float64(c.W)
	sy := float64(height) / float64(c.H)
	return Camera{
		W: width, H: height,
		Fx: c.Fx * sx, Cx: c.Cx * sx,
		Fy: c.Fy * sy, Cy: c.Cy * sy,
	}
}
