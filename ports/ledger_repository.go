package ports

import (
	"context"
	"time"

	"ukbreport/models"
)

// LedgerRepository is the persisted per-path reporting ledger. The Claim
// and Finalize operations are the only multi-row transactions in the
// pipeline and are the sole mutual-exclusion points between overlapping
// scheduled runs.
type LedgerRepository interface {
	// Unreported partitions the candidate paths into the eligible subset
	// (no record, or a record in FAIL) and the blocked paths with the
	// status that blocks them. Input order is preserved in the eligible
	// slice.
	Unreported(ctx context.Context, paths []string) (eligible []string, blocked map[string]models.ReportStatus, err error)

	// Claim atomically creates-or-updates a ledger record for every file,
	// setting IN_PROGRESS with the given timestamp. Any error leaves no
	// record mutated.
	Claim(ctx context.Context, files []models.CandidateFile, at time.Time) error

	// MarkFailed persists a single file's FAIL outcome out-of-band of the
	// batch transactions.
	MarkFailed(ctx context.Context, file models.CandidateFile, at time.Time) error

	// Finalize atomically transitions every file's record from
	// IN_PROGRESS to the given terminal status, recording checksum and
	// enrichment metadata.
	Finalize(ctx context.Context, files []models.EnrichedFile, status models.ReportStatus, at time.Time) error
}
