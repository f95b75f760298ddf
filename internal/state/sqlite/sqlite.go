// Package sqlite persists workspace state snapshots in SQLite, so results
// outlive the process that produced them.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/valtask/internal/log"
	"github.com/slok/valtask/internal/model"
	"github.com/slok/valtask/internal/state"
	"github.com/slok/valtask/internal/state/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite snapshot repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
	// StaleAfter is the heartbeat age after which a stored running batch can be
	// replaced by another run. Default: [state.DefaultBatchStaleAfter].
	StaleAfter time.Duration
	TimeNow    func() time.Time
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "state.SQLite"})

	if c.StaleAfter <= 0 {
		c.StaleAfter = state.DefaultBatchStaleAfter
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	return nil
}

// Repository stores workspace snapshots in SQLite.
//
// The database can be shared by many processes. Results are merged keeping the
// newest one of each validation, and a running batch with a recent heartbeat is
// only updated by its own run.
type Repository struct {
	db         *sql.DB
	logger     log.Logger
	staleAfter time.Duration
	timeNow    func() time.Time
}

// NewRepository creates a new SQLite snapshot repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{
		db:         db,
		logger:     cfg.Logger,
		staleAfter: cfg.StaleAfter,
		timeNow:    cfg.TimeNow,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// SaveSnapshot stores the state of a workspace.
//
// Stored results newer than the snapshot ones are kept. The batch state is left
// untouched when another live run owns it or when it would move an ended run
// back to running.
func (r *Repository) SaveSnapshot(ctx context.Context, snap state.WorkspaceSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO validation_results (workspace_id, validation_type, status, timestamp, details)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, validation_type) DO UPDATE SET
			status = excluded.status,
			timestamp = excluded.timestamp,
			details = excluded.details
		WHERE excluded.timestamp >= validation_results.timestamp
	`)
	if err != nil {
		return fmt.Errorf("could not prepare statement: %w", err)
	}
	defer stmt.Close()

	for vt, res := range snap.Results {
		var details *string
		if len(res.Details) > 0 {
			d := string(res.Details)
			details = &d
		}
		_, err := stmt.ExecContext(ctx, snap.WorkspaceID, vt, res.Status, res.Timestamp.UnixMilli(), details)
		if err != nil {
			return fmt.Errorf("could not upsert %s result: %w", vt, err)
		}
	}

	written, err := r.upsertBatch(ctx, tx, snap)
	if err != nil {
		return err
	}
	if !written {
		r.logger.Debugf("Workspace %d batch state not saved, owned by another run", snap.WorkspaceID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Saved workspace %d snapshot with %d results", snap.WorkspaceID, len(snap.Results))
	return nil
}

// ClaimBatch stores the batch state of a snapshot only. It fails with
// model.ErrAlreadyExists when the stored batch belongs to another live run.
func (r *Repository) ClaimBatch(ctx context.Context, snap state.WorkspaceSnapshot) error {
	written, err := r.upsertBatch(ctx, r.db, snap)
	if err != nil {
		return err
	}
	if !written {
		return fmt.Errorf("workspace %d batch is running in another process: %w", snap.WorkspaceID, model.ErrAlreadyExists)
	}

	r.logger.Debugf("Workspace %d batch %s claimed", snap.WorkspaceID, snap.Batch.RunID)
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// upsertBatch writes the batch state unless the stored one must be kept:
//   - Same run: everything except moving an ended run back to running.
//   - Other run: only a newer run over an ended or stale one.
func (r *Repository) upsertBatch(ctx context.Context, db execer, snap state.WorkspaceSnapshot) (bool, error) {
	b := snap.Batch
	if b.Status == "" {
		b.Status = model.BatchStatusIdle
	}
	staleBefore := r.timeNow().Add(-r.staleAfter).UnixMilli()

	res, err := db.ExecContext(ctx, `
		INSERT INTO batch_states (workspace_id, status, run_id, started_at, finished_at, error, heartbeat_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id) DO UPDATE SET
			status = excluded.status,
			run_id = excluded.run_id,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			error = excluded.error,
			heartbeat_at = CASE
				WHEN excluded.heartbeat_at IS NULL THEN batch_states.heartbeat_at
				WHEN batch_states.heartbeat_at IS NULL THEN excluded.heartbeat_at
				ELSE MAX(batch_states.heartbeat_at, excluded.heartbeat_at)
			END
		WHERE
			(batch_states.run_id = excluded.run_id
				AND NOT (batch_states.status <> ? AND excluded.status = ?))
			OR (batch_states.run_id <> excluded.run_id
				AND COALESCE(excluded.started_at, 0) >= COALESCE(batch_states.started_at, 0)
				AND (batch_states.status <> ? OR COALESCE(batch_states.heartbeat_at, 0) < ?))
	`,
		snap.WorkspaceID, b.Status, b.RunID, unixMilliPtr(b.StartedAt), unixMilliPtr(b.FinishedAt), b.Error, unixMilliPtr(snap.HeartbeatAt),
		model.BatchStatusRunning, model.BatchStatusRunning,
		model.BatchStatusRunning, staleBefore,
	)
	if err != nil {
		return false, fmt.Errorf("could not upsert batch state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get upserted batch rows: %w", err)
	}

	return n > 0, nil
}

// GetSnapshot returns the stored state of a workspace.
func (r *Repository) GetSnapshot(ctx context.Context, workspaceID int64) (*state.WorkspaceSnapshot, error) {
	snap := state.WorkspaceSnapshot{
		WorkspaceID: workspaceID,
		Results:     map[model.ValidationType]model.ValidationResult{},
		Batch:       model.BatchState{Status: model.BatchStatusIdle},
	}

	var startedAt, finishedAt, heartbeatAt sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT status, run_id, started_at, finished_at, error, heartbeat_at
		FROM batch_states
		WHERE workspace_id = ?
	`, workspaceID).Scan(&snap.Batch.Status, &snap.Batch.RunID, &startedAt, &finishedAt, &snap.Batch.Error, &heartbeatAt)
	found := true
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("could not query batch state: %w", err)
		}
		found = false
	}
	snap.Batch.StartedAt = timeFromNullUnixMilli(startedAt)
	snap.Batch.FinishedAt = timeFromNullUnixMilli(finishedAt)
	snap.HeartbeatAt = timeFromNullUnixMilli(heartbeatAt)

	rows, err := r.db.QueryContext(ctx, `
		SELECT validation_type, status, timestamp, details
		FROM validation_results
		WHERE workspace_id = ?
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("could not query results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var vt model.ValidationType
		var res model.ValidationResult
		var ts int64
		var details sql.NullString
		if err := rows.Scan(&vt, &res.Status, &ts, &details); err != nil {
			return nil, fmt.Errorf("could not scan result: %w", err)
		}
		res.Timestamp = time.UnixMilli(ts).UTC()
		if details.Valid {
			res.Details = model.RawResult(details.String)
		}
		snap.Results[vt] = res
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate results: %w", err)
	}

	if !found {
		return nil, fmt.Errorf("workspace %d: %w", workspaceID, model.ErrNotFound)
	}

	return &snap, nil
}

// ListWorkspaces returns the IDs of the workspaces with stored state.
func (r *Repository) ListWorkspaces(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT workspace_id FROM batch_states
		UNION
		SELECT workspace_id FROM validation_results
		ORDER BY workspace_id
	`)
	if err != nil {
		return nil, fmt.Errorf("could not query workspaces: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("could not scan workspace: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate workspaces: %w", err)
	}

	return ids, nil
}

func unixMilliPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.UnixMilli()
	return &u
}

func timeFromNullUnixMilli(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
