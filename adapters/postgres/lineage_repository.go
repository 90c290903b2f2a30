package postgres

import (
	"context"
	"database/sql"

	"ukbreport/internal/errors"
	"ukbreport/models"
	"ukbreport/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// LineageRepositoryImpl implements LineageRepository over the tracking
// warehouse schema.
type LineageRepositoryImpl struct {
	db *sqlx.DB
}

// NewLineageRepository creates a new PostgreSQL lineage repository
func NewLineageRepository(db *sqlx.DB) ports.LineageRepository {
	return &LineageRepositoryImpl{db: db}
}

// QCCompleteRuns returns the runs among runIDs whose current tracking
// status is "qc complete".
func (r *LineageRepositoryImpl) QCCompleteRuns(ctx context.Context, runIDs []int64) (map[int64]bool, error) {
	complete := make(map[int64]bool)
	if len(runIDs) == 0 {
		return complete, nil
	}

	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
		SELECT rs.id_run
		FROM run_status rs
		JOIN run_status_dict rsd ON rsd.id_run_status_dict = rs.id_run_status_dict
		WHERE rs.iscurrent
		  AND rsd.description = 'qc complete'
		  AND rs.id_run = ANY($1)
	`, pq.Array(runIDs))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query run QC status")
	}

	for _, id := range ids {
		complete[id] = true
	}
	return complete, nil
}

// Lineage resolves a single-lane product to its sample, plate and
// library. The joins are inner on purpose: a broken link anywhere in the
// run→lane→tag→library→plate→sample chain must fail the lookup.
func (r *LineageRepositoryImpl) Lineage(ctx context.Context, runID int64, lane, tagIndex int) (*models.Lineage, error) {
	var lineage models.Lineage
	err := r.db.GetContext(ctx, &lineage, `
		SELECT s.name          AS sample_name,
		       lib.plate_barcode AS plate_barcode,
		       lib.id_library    AS library_id
		FROM product_metrics pm
		JOIN library lib ON lib.id_library = pm.id_library
		JOIN sample s    ON s.id_sample = lib.id_sample
		WHERE pm.id_run = $1
		  AND pm.position = $2
		  AND pm.tag_index = $3
	`, runID, lane, tagIndex)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.CodeLineageMissing,
			"no lineage link for run/lane/tag")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query lineage")
	}
	return &lineage, nil
}
