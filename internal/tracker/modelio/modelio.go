// Package modelio reads and writes the flat text format shared by the model
// files (shape templates, motion matrices, color histograms): one float per
// line, blank lines ignored.
package modelio

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadFloats parses every non-blank line of r as a finite float64.
func ReadFloats(r io.Reader) ([]float64, error) {
	var vals []float64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("line %d: non-finite value %q", line, text)
		}
		vals = append(vals, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return vals, nil
}

// ReadFloatsFile reads a model file and checks it holds exactly want values.
func ReadFloatsFile(path string, want int) ([]float64, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	vals, err := ReadFloats(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(vals) != want {
		return nil, fmt.Errorf("%s: expected %d values, got %d", path, want, len(vals))
	}
	return vals, nil
}

// WriteFloats writes one value per line using the shortest representation
// that parses back to the same float64.
func WriteFloats(w io.Writer, vals []float64) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 32)
	for _, v := range vals {
		buf = strconv.AppendFloat(buf[:0], v, 'g', -1, 64)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFloatsFile creates path and writes vals to it.
func WriteFloatsFile(path string, vals []float64) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteFloats(f, vals); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
