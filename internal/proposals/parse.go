// Package proposals receives externally detected object positions and hands
// the most recent batch to the tracker for injection.
package proposals

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxBatch bounds the declared count of a datagram.
const MaxBatch = 4096

var ErrMalformed = errors.New("malformed proposal datagram")

// ParseDatagram decodes "k x1 y1 z1 ... xk yk zk" with positions in metres.
// Exactly 3k coordinates must follow the count.
func ParseDatagram(b []byte) ([][3]float64, error) {
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}
	k, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: count %q", ErrMalformed, fields[0])
	}
	if k < 0 || k > MaxBatch {
		return nil, fmt.Errorf("%w: count %d out of range", ErrMalformed, k)
	}
	if len(fields)-1 != 3*k {
		return nil, fmt.Errorf("%w: count %d needs %d coordinates, got %d", ErrMalformed, k, 3*k, len(fields)-1)
	}

	out := make([][3]float64, k)
	for i := 0; i < k; i++ {
		for j := 0; j < 3; j++ {
			s := fields[1+3*i+j]
			v, err := strconv.ParseFloat(s, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: coordinate %q", ErrMalformed, s)
			}
			out[i][j] = v
		}
	}
	return out, nil
}

// FormatDatagram encodes positions in the ParseDatagram format.
func FormatDatagram(positions [][3]float64) []byte {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(len(positions)))
	for _, p := range positions {
		for _, v := range p {
			sb.WriteByte(' ')
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	return []byte(sb.String())
}
