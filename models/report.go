package models

import (
	"time"
)

// ReportStatus is the ledger status of a single remote product file.
type ReportStatus string

const (
	StatusUnset      ReportStatus = "UNSET"
	StatusInProgress ReportStatus = "IN_PROGRESS"
	StatusSuccess    ReportStatus = "SUCCESS"
	StatusFail       ReportStatus = "FAIL"
	// StatusAnnulled is set by an external process only. The pipeline never
	// writes it and never reprocesses a path carrying it.
	StatusAnnulled ReportStatus = "ANNULLED"
)

// Blocked reports whether a path in this status must be excluded from a new
// claim. FAIL is retried every run; everything else with a record is not.
func (s ReportStatus) Blocked() bool {
	switch s {
	case StatusInProgress, StatusSuccess, StatusAnnulled:
		return true
	}
	return false
}

// Terminal reports whether the status is an end state for this pipeline.
func (s ReportStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFail || s == StatusAnnulled
}

// CandidateFile is a product file discovered in the bucket listing.
// It lives only for the duration of one pipeline run.
type CandidateFile struct {
	FileName string // logical name, e.g. "48573_1-2#44.cram"
	Path     string // full remote path
	MD5      string // hex-encoded remote content hash
	RunID    int64
	Lanes    []int
	TagIndex int
	SampleID string // sample identifier declared in the remote path
}

// LedgerRecord is the persisted reporting state for one remote path.
type LedgerRecord struct {
	Path            string       `db:"path"`
	FileName        string       `db:"file_name"`
	Status          ReportStatus `db:"status"`
	StatusChangedAt *time.Time   `db:"status_changed_at"`
	MD5             *string      `db:"md5"`
	SampleName      *string      `db:"sample_name"`
	PlateBarcode    *string      `db:"plate_barcode"`
	LibraryID       *int64       `db:"library_id"`
}

// Lineage is the run/lane/tag resolution from the tracking warehouse.
type Lineage struct {
	SampleName   string `db:"sample_name"`
	PlateBarcode string `db:"plate_barcode"`
	LibraryID    int64  `db:"library_id"`
}

// EnrichedFile is a candidate that passed validation, carrying the
// warehouse metadata the manifest and the finalize transaction need.
type EnrichedFile struct {
	CandidateFile
	PlateBarcode string
	LibraryID    int64
}
