package ports

import (
	"context"

	"ukbreport/models"
)

// LineageRepository resolves tracking-warehouse metadata: per-run QC
// state and the run/lane/tag to library/plate/sample lineage chain.
type LineageRepository interface {
	// QCCompleteRuns returns the subset of run ids whose current run
	// status is QC complete.
	QCCompleteRuns(ctx context.Context, runIDs []int64) (map[int64]bool, error)

	// Lineage resolves one single-lane product to its sample lineage. A
	// missing link anywhere in the chain is an error.
	Lineage(ctx context.Context, runID int64, lane, tagIndex int) (*models.Lineage, error)
}
