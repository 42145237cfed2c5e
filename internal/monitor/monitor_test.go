package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pf3d/internal/db"
	"github.com/banshee-data/pf3d/internal/tracker"
)

func testFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(10, 10, color.RGBA{R: 255, A: 255})
	return img
}

func estimate(seq uint64, seeing bool) tracker.Estimate {
	return tracker.Estimate{
		Seq:        seq,
		Timestamp:  time.Unix(1700000000, int64(seq)*int64(40*time.Millisecond)),
		X:          0.01 * float64(seq),
		Y:          -0.05,
		Z:          1.2,
		Likelihood: 0.5,
		Seeing:     seeing,
		State:      tracker.StateTracking,
	}
}

func TestMonitor_StatusAndHistory(t *testing.T) {
	m := NewMonitor(3)
	ctx := context.Background()

	assert.Nil(t, m.Status().Last)
	assert.Nil(t, m.FrameJPEG())

	for i := uint64(1); i <= 5; i++ {
		est := estimate(i, i%2 == 1)
		est.Reinitialized = i == 4
		require.NoError(t, m.Emit(ctx, est, testFrame()))
	}

	s := m.Status()
	assert.Equal(t, uint64(5), s.Frames)
	assert.Equal(t, uint64(3), s.SeeingFrames)
	assert.Equal(t, uint64(1), s.Reinitialized)
	require.NotNil(t, s.Last)
	assert.Equal(t, uint64(5), s.Last.Seq)
	assert.Equal(t, "tracking", s.Last.State)

	h := m.History()
	require.Len(t, h, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{h[0].Seq, h[1].Seq, h[2].Seq})

	_, err := jpeg.Decode(bytes.NewReader(m.FrameJPEG()))
	require.NoError(t, err)
}

func TestMonitor_NilFrameKeepsLastJPEG(t *testing.T) {
	m := NewMonitor(0)
	require.NoError(t, m.Emit(context.Background(), estimate(1, true), testFrame()))
	first := m.FrameJPEG()
	require.NoError(t, m.Emit(context.Background(), estimate(2, true), nil))
	assert.Equal(t, first, m.FrameJPEG())
	assert.Equal(t, uint64(2), m.Status().Frames)
}

func newTestServer(t *testing.T, cfg WebServerConfig) http.Handler {
	t.Helper()
	ws, err := NewWebServer(cfg)
	require.NoError(t, err)
	return ws.Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestWebServer_Routes(t *testing.T) {
	m := NewMonitor(0)
	h := newTestServer(t, WebServerConfig{
		Address: "localhost:0",
		Monitor: m,
		Extra:   func() map[string]interface{} { return map[string]interface{}{"proposals": 7} },
	})

	w := get(t, h, "/frame.jpg")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, m.Emit(context.Background(), estimate(i, true), testFrame()))
	}

	w = get(t, h, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)

	w = get(t, h, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pf3d tracker")
	assert.Contains(t, w.Body.String(), "tracking")

	assert.Equal(t, http.StatusNotFound, get(t, h, "/nope").Code)

	w = get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Frames uint64                 `json:"frames"`
		Last   EstimateSummary        `json:"last"`
		Extra  map[string]interface{} `json:"extra"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, uint64(4), status.Frames)
	assert.Equal(t, uint64(4), status.Last.Seq)
	assert.InDelta(t, 0.04, status.Last.X, 1e-12)
	assert.Equal(t, float64(7), status.Extra["proposals"])

	w = get(t, h, "/api/status?units=mm")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.InDelta(t, 40, status.Last.X, 1e-9)
	assert.InDelta(t, 1200, status.Last.Z, 1e-9)
	assert.Equal(t, uint64(4), m.Status().Last.Seq)
	assert.InDelta(t, 0.04, m.Status().Last.X, 1e-12, "conversion must not touch the monitor")

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/status?units=ft").Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = get(t, h, "/frame.jpg")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	w = get(t, h, "/charts/track")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "echarts")

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/runs").Code)
}

func TestWebServer_Runs(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "pf3d.db"))
	require.NoError(t, err)
	defer store.Close()

	rec, err := store.NewRecorder("synthetic", "test", map[string]int{"n_particles": 10})
	require.NoError(t, err)
	require.NoError(t, rec.Emit(context.Background(), estimate(1, true), nil))
	require.NoError(t, rec.Close())

	h := newTestServer(t, WebServerConfig{Address: "localhost:0", Monitor: NewMonitor(0), DB: store})

	w := get(t, h, "/api/runs?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	var runs []struct {
		ID      string          `json:"run_id"`
		Frames  int64           `json:"frames"`
		EndedAt *time.Time      `json:"ended_at"`
		Config  json.RawMessage `json:"config"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, rec.Run().ID, runs[0].ID)
	assert.Equal(t, int64(1), runs[0].Frames)
	assert.NotNil(t, runs[0].EndedAt)
	assert.JSONEq(t, `{"n_particles":10}`, string(runs[0].Config))

	assert.NotEqual(t, http.StatusNotFound, get(t, h, "/debug/db-stats").Code)
}

func TestWebServer_StartStops(t *testing.T) {
	ws, err := NewWebServer(WebServerConfig{Address: "127.0.0.1:0", Monitor: NewMonitor(0)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("web server did not stop")
	}
}

func TestTrajectoryPlotter_Save(t *testing.T) {
	p := NewTrajectoryPlotter()
	dir := t.TempDir()
	assert.Error(t, p.Save(dir), "nothing collected")

	for i := uint64(1); i <= 20; i++ {
		require.NoError(t, p.Emit(context.Background(), estimate(i, i > 5), nil))
	}
	assert.Equal(t, 20, p.Len())

	out := filepath.Join(dir, "plots")
	require.NoError(t, p.Save(out))
	for _, name := range []string{"trajectory.png", "likelihood.png"} {
		info, err := os.Stat(filepath.Join(out, name))
		require.NoError(t, err, name)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestFrameSaver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	s, err := NewFrameSaver(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Emit(ctx, estimate(1, true), testFrame()))
	require.NoError(t, s.Emit(ctx, estimate(2, true), nil))
	require.NoError(t, s.Emit(ctx, estimate(3, true), testFrame()))
	assert.Equal(t, 2, s.Saved())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"0001.jpeg", "0002.jpeg"}, names)

	f, err := os.Open(filepath.Join(dir, "0002.jpeg"))
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), img.Bounds())
}
