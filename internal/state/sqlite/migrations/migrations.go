// Package migrations holds the SQLite schema of the state snapshots.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/slok/valtask/internal/log"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migrator applies the embedded schema migrations.
type Migrator struct {
	db     *sql.DB
	logger log.Logger
}

// NewMigrator creates a new migrator instance.
func NewMigrator(db *sql.DB, logger log.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	return &Migrator{db: db, logger: logger}, nil
}

// Up migrates the schema to the latest version.
func (m *Migrator) Up(ctx context.Context) error {
	return m.withInstance(func(inst *migrate.Migrate) error {
		if err := inst.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not run migrations: %w", err)
		}
		m.logger.Debugf("Schema migrated")
		return nil
	})
}

// Down removes the whole schema.
func (m *Migrator) Down(ctx context.Context) error {
	return m.withInstance(func(inst *migrate.Migrate) error {
		if err := inst.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not revert migrations: %w", err)
		}
		m.logger.Debugf("Schema reverted")
		return nil
	})
}

// Version returns the current schema version, 0 when no migration has been applied.
func (m *Migrator) Version(ctx context.Context) (version uint, dirty bool, err error) {
	err = m.withInstance(func(inst *migrate.Migrate) error {
		v, d, err := inst.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				return nil
			}
			return fmt.Errorf("could not get schema version: %w", err)
		}
		version, dirty = v, d
		return nil
	})

	return version, dirty, err
}

func (m *Migrator) withInstance(fn func(inst *migrate.Migrate) error) error {
	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return fmt.Errorf("could not create fs: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			m.logger.Errorf("could not close fs: %s", err)
		}
	}()

	inst, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	return fn(inst)
}
