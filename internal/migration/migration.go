package migration

import (
	"context"

	"ukbreport/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createLedgerTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create ukb_report_ledger table")
	}

	if err := r.createCompositionTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create product_component table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createLedgerTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ukb_report_ledger (
			path TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'UNSET',
			status_changed_at TIMESTAMP WITH TIME ZONE,
			md5 TEXT,
			sample_name TEXT,
			plate_barcode TEXT,
			library_id BIGINT
		)
	`)
	return err
}

// createCompositionTable holds the parent/component links the backfill
// script creates; product rows themselves live in the warehouse schema.
func (r *MigrationRunner) createCompositionTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS product_component (
			id_parent BIGINT NOT NULL,
			id_component BIGINT NOT NULL,
			position INTEGER NOT NULL,
			num_components INTEGER NOT NULL,
			PRIMARY KEY (id_parent, position),
			UNIQUE (id_parent, id_component)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_ledger_status ON ukb_report_ledger(status)",
		"CREATE INDEX IF NOT EXISTS idx_ledger_file_name ON ukb_report_ledger(file_name)",
		"CREATE INDEX IF NOT EXISTS idx_component_parent ON product_component(id_parent)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			return err
		}
	}

	return nil
}
