package framesource

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/banshee-data/pf3d/internal/config"
	"github.com/banshee-data/pf3d/internal/timeutil"
	"github.com/banshee-data/pf3d/internal/tracker/geometry"
)

func writeImage(t *testing.T, path string, c color.RGBA, enc func(io.Writer, image.Image) error) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, 255
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, enc(f, img))
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "0002.png"), color.RGBA{G: 200}, png.Encode)
	writeImage(t, filepath.Join(dir, "0001.bmp"), color.RGBA{R: 200}, bmp.Encode)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	src, err := NewDirSource(dir, WithClock(clock), WithFrameInterval(40*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())

	ctx := context.Background()
	f1, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f1.Seq)
	assert.Equal(t, uint8(200), f1.Image.Pix[0], "bmp frame first")

	f2, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(200), f2.Image.Pix[1])
	assert.Equal(t, 40*time.Millisecond, f2.Timestamp.Sub(f1.Timestamp))

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, src.Close())
}

func TestDirSource_Loop(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.png"), color.RGBA{B: 10}, png.Encode)
	src, err := NewDirSource(dir, WithLoop(true))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		f, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), f.Seq)
	}
}

func TestDirSource_Errors(t *testing.T) {
	_, err := NewDirSource(t.TempDir())
	assert.Error(t, err)
	_, err = NewDirSource(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.png"), color.RGBA{}, png.Encode)
	src, err := NewDirSource(dir)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestToRGBA_Offset(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 9, 8))
	src.Set(5, 5, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	out := ToRGBA(src)
	assert.Equal(t, image.Rect(0, 0, 4, 3), out.Bounds())
	assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 255}, out.RGBAAt(0, 0))
}

func TestSyntheticSource(t *testing.T) {
	cam := geometry.NewCamera(config.DefaultCamera())
	cfg := DefaultSyntheticConfig(cam)
	cfg.Noise = 0
	cfg.Frames = 3
	cfg.Hide = func(seq uint64) bool { return seq == 2 }
	src := NewSyntheticSource(cfg, timeutil.NewMockClock(time.Unix(0, 0)))

	ctx := context.Background()
	f, err := src.Next(ctx)
	require.NoError(t, err)
	pos := src.Position(f.Seq)
	u := int(cam.Fx*pos[0]/pos[2] + cam.Cx)
	v := int(cam.Fy*pos[1]/pos[2] + cam.Cy)
	assert.Equal(t, cfg.Ball, f.Image.RGBAAt(u, v))
	assert.Equal(t, cfg.Background, f.Image.RGBAAt(0, 0))

	f, err = src.Next(ctx)
	require.NoError(t, err)
	pos = src.Position(f.Seq)
	u = int(cam.Fx*pos[0]/pos[2] + cam.Cx)
	v = int(cam.Fy*pos[1]/pos[2] + cam.Cy)
	assert.Equal(t, cfg.Background, f.Image.RGBAAt(u, v), "hidden frame")

	_, err = src.Next(ctx)
	require.NoError(t, err)
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRayHitsSphere(t *testing.T) {
	c := [3]float64{0, 0, 1000}
	assert.True(t, rayHitsSphere(0, 0, c, 35*35))
	assert.True(t, rayHitsSphere(0.034, 0, c, 35*35))
	assert.False(t, rayHitsSphere(0.036, 0, c, 35*35))
	assert.False(t, rayHitsSphere(0, 0, [3]float64{0, 0, -1000}, 35*35))
}

func TestOpenCaptureStub(t *testing.T) {
	if _, err := OpenCapture("0", nil); err == nil {
		t.Skip("built with gocv support")
	}
}
