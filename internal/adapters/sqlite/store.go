// Package sqlite persists agent runs in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/conveyor-dev/conveyor/internal/domain"
)

type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// Enable WAL mode for concurrent read/write access
	db.Exec("PRAGMA journal_mode=WAL")

	// Wait up to 5 seconds when the database is locked instead of failing immediately
	db.Exec("PRAGMA busy_timeout=5000")

	// Serialize all Go-side access through a single connection so SQLite
	// never sees concurrent writers.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agent_runs (
			id TEXT PRIMARY KEY,
			assignment TEXT NOT NULL,
			state TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			error_message TEXT NOT NULL DEFAULT ''
		);
	`)
	return err
}

func (s *Store) CreateRun(ctx context.Context, run *domain.AgentRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_runs (id, assignment, state, started_at, completed_at, error_message)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Assignment, string(run.State),
		formatTime(run.StartedAt), formatTime(run.CompletedAt), run.ErrorMessage,
	)
	return err
}

func (s *Store) UpdateRun(ctx context.Context, run *domain.AgentRun) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agent_runs SET state = ?, started_at = ?, completed_at = ?, error_message = ? WHERE id = ?`,
		string(run.State), formatTime(run.StartedAt), formatTime(run.CompletedAt),
		run.ErrorMessage, run.ID,
	)
	return err
}

func (s *Store) GetRun(ctx context.Context, id string) (*domain.AgentRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, assignment, state, started_at, completed_at, error_message FROM agent_runs WHERE id = ?`, id)

	run := &domain.AgentRun{}
	var startedAt, completedAt string
	err := row.Scan(&run.ID, &run.Assignment, &run.State, &startedAt, &completedAt, &run.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %q not found", id)
	}
	if err != nil {
		return nil, err
	}

	run.StartedAt = parseTime(startedAt)
	run.CompletedAt = parseTime(completedAt)
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context) ([]*domain.AgentRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assignment, state, started_at, completed_at, error_message
		 FROM agent_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.AgentRun
	for rows.Next() {
		run := &domain.AgentRun{}
		var startedAt, completedAt string
		if err := rows.Scan(&run.ID, &run.Assignment, &run.State, &startedAt, &completedAt, &run.ErrorMessage); err != nil {
			return nil, err
		}
		run.StartedAt = parseTime(startedAt)
		run.CompletedAt = parseTime(completedAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
