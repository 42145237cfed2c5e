// Package db stores tracker runs and their per-frame estimates in SQLite.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// dsn adds the pragmas every pooled connection needs.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// Path is the database file path.
func (db *DB) Path() string { return db.path }

// Run is one tracker session.
type Run struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time // zero while running
	Source    string
	Version   string
	Config    json.RawMessage
	Frames    int64
}

// StartRun records a new run. cfg is stored as JSON.
func (db *DB) StartRun(source, version string, cfg interface{}, at time.Time) (*Run, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode run config: %w", err)
	}
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: at,
		Source:    source,
		Version:   version,
		Config:    raw,
	}
	_, err = db.Exec(
		`INSERT INTO runs (run_id, started_at, source, version, config_json) VALUES (?, ?, ?, ?, ?)`,
		run.ID, at.UnixNano(), source, version, string(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// EndRun marks a run finished and stores its frame count.
func (db *DB) EndRun(id string, frames int64, at time.Time) error {
	res, err := db.Exec(`UPDATE runs SET ended_at = ?, frames = ? WHERE run_id = ?`, at.UnixNano(), frames, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// GetRun loads one run.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`SELECT run_id, started_at, ended_at, source, version, config_json, frames FROM runs WHERE run_id = ?`, id)
	return scanRun(row)
}

// Runs lists runs, most recent first.
func (db *DB) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT run_id, started_at, ended_at, source, version, config_json, frames
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r       Run
		started int64
		ended   sql.NullInt64
		cfg     string
	)
	if err := s.Scan(&r.ID, &started, &ended, &r.Source, &r.Version, &cfg, &r.Frames); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started)
	if ended.Valid {
		r.EndedAt = time.Unix(0, ended.Int64)
	}
	r.Config = json.RawMessage(cfg)
	return &r, nil
}
