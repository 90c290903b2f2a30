// Package testkit provides in-memory implementations of the pipeline's
// ports for service-level tests and local experiments.
package testkit

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"ukbreport/internal/errors"
	"ukbreport/models"
	"ukbreport/ports"

	"go.uber.org/zap"
)

// Kit bundles one of each fake; nothing is shared between instances.
type Kit struct {
	Lister    *FakeLister
	Ledger    *InMemoryLedger
	Lineage   *FakeLineage
	Checksums *FakeChecksums
	Uploader  *RecordingUploader
}

func NewKit() *Kit {
	return &Kit{
		Lister:    &FakeLister{Discovery: models.NewDiscovery()},
		Ledger:    NewInMemoryLedger(),
		Lineage:   NewFakeLineage(),
		Checksums: &FakeChecksums{Digests: make(map[string]string)},
		Uploader:  &RecordingUploader{},
	}
}

// FakeLister serves a pre-built discovery.
type FakeLister struct {
	Discovery *models.Discovery
	Err       error
}

func (l *FakeLister) ListProducts(ctx context.Context) (*models.Discovery, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Discovery, nil
}

// InMemoryLedger implements LedgerRepository over a map, mirroring the
// transactional semantics of the Postgres adapter: a failed claim or
// finalize mutates nothing.
type InMemoryLedger struct {
	mu        sync.Mutex
	Records   map[string]*models.LedgerRecord
	ClaimErr  error
	FinalErr  error
	Mutations int
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{Records: make(map[string]*models.LedgerRecord)}
}

// Seed installs a pre-existing record, as a prior run would have left it.
func (l *InMemoryLedger) Seed(path, fileName string, status models.ReportStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	at := time.Now()
	l.Records[path] = &models.LedgerRecord{
		Path:            path,
		FileName:        fileName,
		Status:          status,
		StatusChangedAt: &at,
	}
}

// Status returns the current status for a path, StatusUnset if absent.
func (l *InMemoryLedger) Status(path string) models.ReportStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.Records[path]; ok {
		return rec.Status
	}
	return models.StatusUnset
}

func (l *InMemoryLedger) Unreported(ctx context.Context, paths []string) ([]string, map[string]models.ReportStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	blocked := make(map[string]models.ReportStatus)
	var eligible []string
	for _, path := range paths {
		if rec, ok := l.Records[path]; ok && rec.Status.Blocked() {
			blocked[path] = rec.Status
			continue
		}
		eligible = append(eligible, path)
	}
	return eligible, blocked, nil
}

func (l *InMemoryLedger) Claim(ctx context.Context, files []models.CandidateFile, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ClaimErr != nil {
		return l.ClaimErr
	}
	for _, f := range files {
		if rec, ok := l.Records[f.Path]; ok && rec.Status.Blocked() {
			return errors.ClaimFailed(fmt.Errorf("path %s claimed by a concurrent run", f.Path))
		}
	}
	for _, f := range files {
		changed := at
		l.Records[f.Path] = &models.LedgerRecord{
			Path:            f.Path,
			FileName:        f.FileName,
			Status:          models.StatusInProgress,
			StatusChangedAt: &changed,
		}
		l.Mutations++
	}
	return nil
}

func (l *InMemoryLedger) MarkFailed(ctx context.Context, file models.CandidateFile, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.Records[file.Path]
	if !ok {
		return errors.DatabaseError("no ledger record for " + file.Path)
	}
	changed := at
	md5 := file.MD5
	rec.Status = models.StatusFail
	rec.StatusChangedAt = &changed
	rec.MD5 = &md5
	l.Mutations++
	return nil
}

func (l *InMemoryLedger) Finalize(ctx context.Context, files []models.EnrichedFile, status models.ReportStatus, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FinalErr != nil {
		return l.FinalErr
	}
	for _, f := range files {
		rec, ok := l.Records[f.Path]
		if !ok || rec.Status != models.StatusInProgress {
			return errors.FinalizeFailed(fmt.Errorf("path %s is not IN_PROGRESS", f.Path))
		}
	}
	for _, f := range files {
		rec := l.Records[f.Path]
		changed := at
		md5, sample, plate, library := f.MD5, f.SampleID, f.PlateBarcode, f.LibraryID
		rec.Status = status
		rec.StatusChangedAt = &changed
		rec.MD5 = &md5
		rec.SampleName = &sample
		rec.PlateBarcode = &plate
		rec.LibraryID = &library
		l.Mutations++
	}
	return nil
}

// FakeLineage resolves lineage from canned maps.
type FakeLineage struct {
	QCComplete map[int64]bool
	Lineages   map[string]models.Lineage
}

func NewFakeLineage() *FakeLineage {
	return &FakeLineage{
		QCComplete: make(map[int64]bool),
		Lineages:   make(map[string]models.Lineage),
	}
}

// LineageKey builds the lookup key for Lineages.
func LineageKey(runID int64, lane, tagIndex int) string {
	return fmt.Sprintf("%d_%d#%d", runID, lane, tagIndex)
}

func (f *FakeLineage) QCCompleteRuns(ctx context.Context, runIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, id := range runIDs {
		if f.QCComplete[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (f *FakeLineage) Lineage(ctx context.Context, runID int64, lane, tagIndex int) (*models.Lineage, error) {
	lineage, ok := f.Lineages[LineageKey(runID, lane, tagIndex)]
	if !ok {
		return nil, errors.New(errors.CodeLineageMissing, "no lineage link for run/lane/tag")
	}
	return &lineage, nil
}

// FakeChecksums serves staged digests keyed by file name.
type FakeChecksums struct {
	Digests map[string]string
}

func (f *FakeChecksums) StagedMD5(ctx context.Context, runID int64, fileName string) (string, error) {
	digest, ok := f.Digests[fileName]
	if !ok {
		return "", errors.ChecksumMissing(fileName)
	}
	return digest, nil
}

// RecordingUploader captures uploaded manifests in memory.
type RecordingUploader struct {
	Err     error
	Uploads []Upload
}

// Upload is one recorded transfer.
type Upload struct {
	DestURL string
	Content string
}

func (u *RecordingUploader) Upload(ctx context.Context, localPath, destURL string) error {
	if u.Err != nil {
		return u.Err
	}
	raw, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	u.Uploads = append(u.Uploads, Upload{DestURL: destURL, Content: string(raw)})
	return nil
}

// NopLogger returns the logger used in tests.
func NopLogger() *zap.Logger {
	return zap.NewNop()
}

var (
	_ ports.ObjectLister         = (*FakeLister)(nil)
	_ ports.LedgerRepository     = (*InMemoryLedger)(nil)
	_ ports.LineageRepository    = (*FakeLineage)(nil)
	_ ports.StagedChecksumFinder = (*FakeChecksums)(nil)
	_ ports.ManifestUploader     = (*RecordingUploader)(nil)
)
