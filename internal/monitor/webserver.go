package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/pf3d/internal/db"
	"github.com/banshee-data/pf3d/internal/httputil"
	"github.com/banshee-data/pf3d/internal/monitoring"
	"github.com/banshee-data/pf3d/internal/units"
	"github.com/banshee-data/pf3d/internal/version"
)

//go:embed status.html
var statusHTML embed.FS

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Monitor *Monitor
	// DB enables /api/runs and the database debug routes.
	DB *db.DB
	// Extra reports additional component stats under /api/status "extra".
	Extra func() map[string]interface{}
}

// WebServer serves tracker status, the latest annotated frame and charts.
type WebServer struct {
	address string
	mon     *Monitor
	db      *db.DB
	extra   func() map[string]interface{}
	tmpl    *template.Template
	server  *http.Server
}

// NewWebServer creates a web server; routes are ready before Start.
func NewWebServer(cfg WebServerConfig) (*WebServer, error) {
	tmpl, err := template.ParseFS(statusHTML, "status.html")
	if err != nil {
		return nil, err
	}
	ws := &WebServer{
		address: cfg.Address,
		mon:     cfg.Monitor,
		db:      cfg.DB,
		extra:   cfg.Extra,
		tmpl:    tmpl,
	}
	mux, err := ws.setupRoutes()
	if err != nil {
		return nil, err
	}
	ws.server = &http.Server{Addr: ws.address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return ws, nil
}

// Handler exposes the route table.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves until ctx is cancelled.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Opsf("HTTP monitor on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Opsf("HTTP server shutdown error: %v", err)
		ws.server.Close()
	}
	return nil
}

func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatusPage)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/runs", ws.handleRuns)
	mux.HandleFunc("/frame.jpg", ws.handleFrame)
	mux.HandleFunc("/charts/track", ws.handleTrackChart)
	if ws.db != nil {
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok", "version": version.Version})
}

func (ws *WebServer) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	data := struct {
		Version string
		Status  Status
	}{version.String(), ws.mon.Status()}
	if err := ws.tmpl.Execute(w, data); err != nil {
		monitoring.Diagf("status page: %v", err)
	}
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	unit := units.M
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			httputil.BadRequest(w, "invalid units: expected one of "+units.GetValidUnitsString())
			return
		}
		unit = u
	}
	resp := struct {
		Status
		Units string                 `json:"units"`
		Extra map[string]interface{} `json:"extra,omitempty"`
	}{Status: ws.mon.Status(), Units: unit}
	if last := resp.Last; last != nil {
		last.X = units.ConvertLength(last.X, unit)
		last.Y = units.ConvertLength(last.Y, unit)
		last.Z = units.ConvertLength(last.Z, unit)
	}
	if ws.extra != nil {
		resp.Extra = ws.extra()
	}
	httputil.WriteJSONOK(w, resp)
}

func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no database configured")
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	runs, err := ws.db.Runs(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	type runJSON struct {
		ID        string          `json:"run_id"`
		StartedAt time.Time       `json:"started_at"`
		EndedAt   *time.Time      `json:"ended_at,omitempty"`
		Source    string          `json:"source"`
		Version   string          `json:"version"`
		Frames    int64           `json:"frames"`
		Config    json.RawMessage `json:"config"`
	}
	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		rj := runJSON{ID: run.ID, StartedAt: run.StartedAt, Source: run.Source, Version: run.Version, Frames: run.Frames, Config: run.Config}
		if !run.EndedAt.IsZero() {
			ended := run.EndedAt
			rj.EndedAt = &ended
		}
		out = append(out, rj)
	}
	httputil.WriteJSONOK(w, out)
}

func (ws *WebServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame := ws.mon.FrameJPEG()
	if frame == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(frame)
}
