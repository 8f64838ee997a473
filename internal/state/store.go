// Package state tracks pipeline execution locally in SQLite: one row per
// stage run, plus per-source ingest cursors so interrupted ingests resume
// where they stopped.
package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver (pure Go)
)

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Pipeline stage names recorded in pipeline_runs.
const (
	StageSetup   = "setup"
	StageIngest  = "ingest"
	StageProcess = "process"
	StageAnalyze = "analyze"
)

// Run represents one execution of a pipeline stage.
type Run struct {
	ID          string
	Stage       string
	Target      string // warehouse type the stage ran against
	Status      RunStatus
	Records     int64 // rows ingested, spectra fitted, or groups analyzed
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Store tracks pipeline runs and ingest cursors.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new state store instance.
func NewStore() *Store {
	return &Store{}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *Store) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping state database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the state database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// CreateRun records the start of a pipeline stage.
func (s *Store) CreateRun(stage, target string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("state database not opened")
	}

	run := &Run{
		ID:        generateID(),
		Stage:     stage,
		Target:    target,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO pipeline_runs (id, stage, target, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Stage, run.Target, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// CompleteRun marks a run finished with the given status, record count, and
// optional error message.
func (s *Store) CompleteRun(id string, status RunStatus, records int64, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("state database not opened")
	}

	res, err := s.db.Exec(
		`UPDATE pipeline_runs SET status = ?, records = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, records, time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("state database not opened")
	}

	run := &Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRow(
		`SELECT id, stage, target, status, records, started_at, completed_at, error
		 FROM pipeline_runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Stage, &run.Target, &run.Status, &run.Records,
		&run.StartedAt, &completedAt, &errMsg)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return run, nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("state database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, stage, target, status, records, started_at, completed_at, error
		 FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var completedAt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&run.ID, &run.Stage, &run.Target, &run.Status, &run.Records,
			&run.StartedAt, &completedAt, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			run.CompletedAt = &t
		}
		if errMsg.Valid {
			run.Error = errMsg.String
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetCursor returns the ingest position for a catalog source.
// A source that has never been ingested is at position 0.
func (s *Store) GetCursor(source string) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("state database not opened")
	}

	var pos int64
	err := s.db.QueryRow(
		`SELECT position FROM ingest_cursors WHERE source = ?`, source).Scan(&pos)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor for %s: %w", source, err)
	}
	return pos, nil
}

// SetCursor records the ingest position for a catalog source.
func (s *Store) SetCursor(source string, position int64) error {
	if s.db == nil {
		return fmt.Errorf("state database not opened")
	}

	_, err := s.db.Exec(
		`INSERT INTO ingest_cursors (source, position, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (source) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`,
		source, position, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set cursor for %s: %w", source, err)
	}
	return nil
}
