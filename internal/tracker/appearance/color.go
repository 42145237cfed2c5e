package appearance

// RGBToYUV converts an RGB triple to analog YUV offset into 0..255.
func RGBToYUV(r, g, b uint8) (y, u, v uint8) {
	rf, gf, bf := float64(r), float64(g), float64(b)
	yf := 0.299*rf + 0.587*gf + 0.114*bf
	uf := -0.14713*rf - 0.28886*gf + 0.436*bf + 128
	vf := 0.615*rf - 0.51499*gf - 0.10001*bf + 128
	return clamp8(yf), clamp8(uf), clamp8(vf)
}

func clamp8(f float64) uint8 {
	switch {
	case f <= 0:
		return 0
	case f >= 255:
		return 255
	default:
		return uint8(f + 0.5)
	}
}

// Classify returns the histogram cell of an RGB pixel.
func Classify(b Bins, r, g, bl uint8) int {
	y, u, v := RGBToYUV(r, g, bl)
	return b.Index(int(y)*b.Y/256, int(u)*b.U/256, int(v)*b.V/256)
}

// LUT maps every 24-bit RGB value to its histogram cell.
type LUT struct {
	bins Bins
	cell []uint16
}

// NewLUT precomputes the table for the given bins. It holds 2^24 entries.
func NewLUT(b Bins) *LUT {
	l := &LUT{bins: b, cell: make([]uint16, 1<<24)}
	i := 0
	for r := 0; r < 256; r++ {
		for g := 0; g < 256; g++ {
			for bl := 0; bl < 256; bl++ {
				l.cell[i] = uint16(Classify(b, uint8(r), uint8(g), uint8(bl)))
				i++
			}
		}
	}
	return l
}

// Bins returns the layout the table was built for.
func (l *LUT) Bins() Bins { return l.bins }

// Lookup returns the cell of an RGB pixel.
func (l *LUT) Lookup(r, g, b uint8) int {
	return int(l.cell[int(r)<<16|int(g)<<8|int(b)])
}
