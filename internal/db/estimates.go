package db

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/banshee-data/pf3d/internal/tracker"
)

// InsertEstimate stores one frame's estimate under runID.
func (db *DB) InsertEstimate(ctx context.Context, runID string, est tracker.Estimate) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO estimates (
			run_id, seq, ts_unix_nanos, x_m, y_m, z_m, likelihood, u, v,
			seeing, reinitialized, state, attention, injected, cycle_us
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(est.Seq), est.Timestamp.UnixNano(), est.X, est.Y, est.Z, est.Likelihood,
		est.MeanU, est.MeanV, est.Seeing, est.Reinitialized, string(est.State),
		est.Attention[4], est.Injected, est.CycleTime.Microseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert estimate %d: %w", est.Seq, err)
	}
	return nil
}

// Estimates returns up to limit estimates of a run in frame order.
// Attention direction is not stored.
func (db *DB) Estimates(runID string, limit int) ([]tracker.Estimate, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := db.Query(`SELECT seq, ts_unix_nanos, x_m, y_m, z_m, likelihood, u, v,
			seeing, reinitialized, state, attention, injected, cycle_us
		FROM estimates WHERE run_id = ? ORDER BY seq LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tracker.Estimate
	for rows.Next() {
		var (
			est     tracker.Estimate
			seq     int64
			ts      int64
			state   string
			cycleUS int64
		)
		if err := rows.Scan(&seq, &ts, &est.X, &est.Y, &est.Z, &est.Likelihood, &est.MeanU, &est.MeanV,
			&est.Seeing, &est.Reinitialized, &state, &est.Attention[4], &est.Injected, &cycleUS); err != nil {
			return nil, err
		}
		est.Seq = uint64(seq)
		est.Timestamp = time.Unix(0, ts)
		est.State = tracker.State(state)
		est.CycleTime = time.Duration(cycleUS) * time.Microsecond
		out = append(out, est)
	}
	return out, rows.Err()
}

// RunSummary aggregates the estimates of one run.
type RunSummary struct {
	Frames         int64
	SeeingFrames   int64
	Reinitialized  int64
	MeanLikelihood float64
}

// Summarize computes a RunSummary for runID.
func (db *DB) Summarize(runID string) (RunSummary, error) {
	var s RunSummary
	err := db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(seeing), 0), COALESCE(SUM(reinitialized), 0),
			COALESCE(AVG(likelihood), 0)
		FROM estimates WHERE run_id = ?`, runID).Scan(&s.Frames, &s.SeeingFrames, &s.Reinitialized, &s.MeanLikelihood)
	return s, err
}

// Recorder writes every estimate of one run. It implements tracker.Sink.
type Recorder struct {
	db     *DB
	run    *Run
	frames int64
}

// NewRecorder starts a run and returns a recorder for it.
func (db *DB) NewRecorder(source, version string, cfg interface{}) (*Recorder, error) {
	run, err := db.StartRun(source, version, cfg, time.Now())
	if err != nil {
		return nil, err
	}
	return &Recorder{db: db, run: run}, nil
}

// Run is the run being recorded.
func (r *Recorder) Run() *Run { return r.run }

// Emit stores est.
func (r *Recorder) Emit(ctx context.Context, est tracker.Estimate, _ *image.RGBA) error {
	if err := r.db.InsertEstimate(ctx, r.run.ID, est); err != nil {
		return err
	}
	r.frames++
	return nil
}

// Close marks the run ended.
func (r *Recorder) Close() error {
	return r.db.EndRun(r.run.ID, r.frames, time.Now())
}
