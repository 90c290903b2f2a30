package postgres

import (
	"context"
	"fmt"
	"time"

	"ukbreport/internal/errors"
	"ukbreport/models"
	"ukbreport/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// LedgerRepositoryImpl implements LedgerRepository for PostgreSQL
type LedgerRepositoryImpl struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(db *sqlx.DB) ports.LedgerRepository {
	return &LedgerRepositoryImpl{db: db}
}

// Unreported splits candidate paths into the claimable subset and the
// paths blocked by an existing record. A FAIL record does not block: a
// failed file is retried every run.
func (r *LedgerRepositoryImpl) Unreported(ctx context.Context, paths []string) ([]string, map[string]models.ReportStatus, error) {
	blocked := make(map[string]models.ReportStatus)
	if len(paths) == 0 {
		return nil, blocked, nil
	}

	rows, err := r.db.QueryxContext(ctx, `
		SELECT path, status
		FROM ukb_report_ledger
		WHERE path = ANY($1)
		  AND status IN ($2, $3, $4)
	`, pq.Array(paths), models.StatusInProgress, models.StatusSuccess, models.StatusAnnulled)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to query reported paths")
	}
	defer rows.Close()

	for rows.Next() {
		var path string
		var status models.ReportStatus
		if err := rows.Scan(&path, &status); err != nil {
			return nil, nil, errors.Wrap(err, "failed to scan ledger row")
		}
		blocked[path] = status
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read ledger rows")
	}

	eligible := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, ok := blocked[path]; !ok {
			eligible = append(eligible, path)
		}
	}
	return eligible, blocked, nil
}

// Claim transitions every file to IN_PROGRESS in one transaction,
// creating records for paths the ledger has never seen. The conditional
// upsert refuses paths another run claimed between the unreported query
// and here, which rolls the whole batch back: a run owns its batch fully
// or not at all.
func (r *LedgerRepositoryImpl) Claim(ctx context.Context, files []models.CandidateFile, at time.Time) error {
	if len(files) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.ClaimFailed(err)
	}
	defer tx.Rollback()

	for _, f := range files {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO ukb_report_ledger (path, file_name, status, status_changed_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (path) DO UPDATE
			SET status = $3, status_changed_at = $4
			WHERE ukb_report_ledger.status NOT IN ($5, $6, $7)
		`, f.Path, f.FileName, models.StatusInProgress, at,
			models.StatusInProgress, models.StatusSuccess, models.StatusAnnulled)
		if err != nil {
			return errors.ClaimFailed(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return errors.ClaimFailed(err)
		}
		if affected != 1 {
			return errors.ClaimFailed(fmt.Errorf("path %s claimed by a concurrent run", f.Path))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.ClaimFailed(err)
	}
	return nil
}

// MarkFailed records a single file's FAIL outcome. Deliberately not part
// of any batch transaction so a slow validation pass never holds one
// open.
func (r *LedgerRepositoryImpl) MarkFailed(ctx context.Context, file models.CandidateFile, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ukb_report_ledger
		SET status = $2, status_changed_at = $3, md5 = $4
		WHERE path = $1
	`, file.Path, models.StatusFail, at, file.MD5)
	if err != nil {
		return errors.Wrapf(err, "failed to mark %s as failed", file.Path)
	}
	return nil
}

// Finalize moves every surviving file from IN_PROGRESS to the terminal
// status in one transaction, recording checksum and enrichment metadata.
func (r *LedgerRepositoryImpl) Finalize(ctx context.Context, files []models.EnrichedFile, status models.ReportStatus, at time.Time) error {
	if len(files) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.FinalizeFailed(err)
	}
	defer tx.Rollback()

	for _, f := range files {
		res, err := tx.ExecContext(ctx, `
			UPDATE ukb_report_ledger
			SET status = $2,
			    status_changed_at = $3,
			    md5 = $4,
			    sample_name = $5,
			    plate_barcode = $6,
			    library_id = $7
			WHERE path = $1 AND status = $8
		`, f.Path, status, at, f.MD5, f.SampleID, f.PlateBarcode, f.LibraryID,
			models.StatusInProgress)
		if err != nil {
			return errors.FinalizeFailed(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return errors.FinalizeFailed(err)
		}
		if affected != 1 {
			return errors.FinalizeFailed(fmt.Errorf("path %s is not IN_PROGRESS", f.Path))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.FinalizeFailed(err)
	}
	return nil
}
