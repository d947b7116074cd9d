package installer

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/001_install_status.sql
var statusMigration string

const memoryDSN = ":memory:"

// Store persists the single installer status row.
type Store struct {
	db *sql.DB
}

// OpenStore opens the sqlite status database at dsn. ":memory:" keeps the
// status for the life of the process only.
func OpenStore(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = memoryDSN
	}
	if dsn != memoryDSN {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(statusMigration); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored status, or NotStarted when nothing is stored.
func (s *Store) Load(ctx context.Context) (Status, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT state, job_id, started_at, finished_at, job_done, exit_code, stdout, stderr, message, module_version
		FROM install_status
		WHERE id = 1
	`)

	var (
		st                  Status
		state               string
		startedAt, finished string
		jobDone             int
	)
	err := row.Scan(&state, &st.JobID, &startedAt, &finished, &jobDone, &st.ExitCode, &st.Stdout, &st.Stderr, &st.Message, &st.ModuleVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return Status{State: StateNotStarted}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("load install status: %w", err)
	}

	st.State = State(state)
	if !st.State.valid() {
		return Status{}, fmt.Errorf("load install status: unknown state %q", state)
	}
	st.JobDone = jobDone != 0
	st.StartedAt = parseTime(startedAt)
	st.FinishedAt = parseTime(finished)
	return st, nil
}

func (s *Store) Save(ctx context.Context, st Status) error {
	jobDone := 0
	if st.JobDone {
		jobDone = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO install_status (id, state, job_id, started_at, finished_at, job_done, exit_code, stdout, stderr, message, module_version, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			job_id = excluded.job_id,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			job_done = excluded.job_done,
			exit_code = excluded.exit_code,
			stdout = excluded.stdout,
			stderr = excluded.stderr,
			message = excluded.message,
			module_version = excluded.module_version,
			updated_at = datetime('now')
	`, string(st.State), st.JobID, formatTime(st.StartedAt), formatTime(st.FinishedAt), jobDone,
		st.ExitCode, st.Stdout, st.Stderr, st.Message, st.ModuleVersion)
	if err != nil {
		return fmt.Errorf("save install status: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM install_status WHERE id = 1`); err != nil {
		return fmt.Errorf("clear install status: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
