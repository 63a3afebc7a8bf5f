package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/condaenv/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory ledger.
const MemoryPath = ":memory:"

// defaultListLimit bounds ListRuns when no limit is given.
const defaultListLimit = 50

// ErrRunNotFound is returned when a run ID is not in the ledger.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore is the run ledger. It implements engine.Recorder.
type SQLiteStore struct {
	db   *sql.DB
	cfg  Config
	path string
}

var _ engine.Recorder = (*SQLiteStore)(nil)

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: is a separate database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		cfg:  cfg,
		path: cfg.Path,
	}, nil
}

// Open creates, initializes and migrates a store in one call.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Init opens the database connection. File databases use WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.path
	if s.path != MemoryPath {
		dsn = fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordRun stores a finished run and its commands in one transaction.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *engine.RunRecord) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if run == nil || run.Result == nil {
		return fmt.Errorf("run record has no result")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res := run.Result
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, name, prefix, step, check_only, spec_present, changed, failed,
			is_valid_env, returncode, resolved_prefix, error_class, msg, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Params.Name,
		run.Params.Prefix,
		string(res.Step),
		run.Params.CheckOnly,
		run.Params.SpecPresent(),
		res.Changed,
		res.Failed,
		res.IsValidEnv,
		res.ReturnCode,
		res.Prefix,
		string(run.ErrorClass),
		res.Msg,
		run.StartedAt.UnixNano(),
		run.CompletedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, cmd := range run.Commands {
		argv, err := json.Marshal(cmd.Argv)
		if err != nil {
			return fmt.Errorf("failed to encode argv: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO commands (run_id, seq, argv, returncode, duration_ms, launch_error)
			VALUES (?, ?, ?, ?, ?, ?)
		`, run.ID, cmd.Seq, string(argv), cmd.ReturnCode, cmd.Duration.Milliseconds(), cmd.LaunchError)
		if err != nil {
			return fmt.Errorf("failed to insert command %d: %w", cmd.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `id, name, prefix, step, check_only, spec_present, changed, failed,
	is_valid_env, returncode, resolved_prefix, error_class, msg, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var started, completed int64
	err := row.Scan(
		&run.ID,
		&run.Name,
		&run.Prefix,
		&run.Step,
		&run.CheckOnly,
		&run.SpecPresent,
		&run.Changed,
		&run.Failed,
		&run.IsValidEnv,
		&run.ReturnCode,
		&run.ResolvedPrefix,
		&run.ErrorClass,
		&run.Msg,
		&started,
		&completed,
	)
	if err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, started).UTC()
	run.CompletedAt = time.Unix(0, completed).UTC()
	return run, nil
}

// GetRun retrieves a run and its commands by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Commands, err = s.ListCommands(ctx, id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first. Commands are not loaded.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var (
		where []string
		args  []any
	)
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Prefix != "" {
		where = append(where, "(prefix = ? OR resolved_prefix = ?)")
		args = append(args, filter.Prefix, filter.Prefix)
	}
	if filter.Failed != nil {
		where = append(where, "failed = ?")
		args = append(args, *filter.Failed)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// ListCommands returns the commands of a run in execution order.
func (s *SQLiteStore) ListCommands(ctx context.Context, runID string) ([]*Command, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, argv, returncode, duration_ms, launch_error
		FROM commands
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cmds []*Command
	for rows.Next() {
		cmd := &Command{}
		var argv string
		var durationMs int64
		if err := rows.Scan(&cmd.RunID, &cmd.Seq, &argv, &cmd.ReturnCode, &durationMs, &cmd.LaunchError); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		if err := json.Unmarshal([]byte(argv), &cmd.Argv); err != nil {
			return nil, fmt.Errorf("failed to decode argv of command %d: %w", cmd.Seq, err)
		}
		cmd.Duration = time.Duration(durationMs) * time.Millisecond
		cmds = append(cmds, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate commands: %w", err)
	}

	return cmds, nil
}

// PruneRuns deletes runs that started before cutoff and returns how many were removed.
func (s *SQLiteStore) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return result.RowsAffected()
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
