package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ukbreport/internal/errors"
	"ukbreport/models"
	"ukbreport/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReportService drives one pipeline invocation through
// GATHER → FILTER → CLAIM → VALIDATE → BUILD/UPLOAD → FINALIZE → REPORT.
// The run is sequential; all cross-run coordination happens through the
// ledger's claim and finalize transactions.
type ReportService struct {
	lister    ports.ObjectLister
	ledger    ports.LedgerRepository
	lineage   ports.LineageRepository
	checksums ports.StagedChecksumFinder
	uploader  ports.ManifestUploader
	log       *zap.Logger
	now       func() time.Time
}

// NewReportService creates the pipeline service over its collaborators.
func NewReportService(
	lister ports.ObjectLister,
	ledger ports.LedgerRepository,
	lineage ports.LineageRepository,
	checksums ports.StagedChecksumFinder,
	uploader ports.ManifestUploader,
	log *zap.Logger,
) *ReportService {
	return &ReportService{
		lister:    lister,
		ledger:    ledger,
		lineage:   lineage,
		checksums: checksums,
		uploader:  uploader,
		log:       log,
		now:       time.Now,
	}
}

// SetClock overrides the service clock, for tests.
func (s *ReportService) SetClock(now func() time.Time) {
	s.now = now
}

// RunRequest carries the per-invocation switches.
type RunRequest struct {
	// DryRun suppresses every ledger mutation and every upload.
	DryRun bool
	// SendEmpty uploads a header-only manifest when nothing survives.
	SendEmpty bool
	// CheckStagedChecksums cross-checks remote hashes against the
	// staging area sidecars.
	CheckStagedChecksums bool
	// RequireQCComplete drops candidates whose run is not QC complete.
	RequireQCComplete bool
	// DestinationURL is where the manifest is uploaded.
	DestinationURL string
	// ManifestDir is the local directory the manifest is written to.
	ManifestDir string
	// ManifestSuffix is appended to the timestamp-derived document name.
	ManifestSuffix string
}

// RunOutcome summarizes one invocation for the caller's exit-code logic.
type RunOutcome struct {
	RunID        uuid.UUID
	Reported     []models.EnrichedFile
	FailedFiles  []string
	Duplicates   map[string][]string
	ManifestPath string
	Uploaded     bool
}

// Run executes one pipeline invocation. The returned error, when
// non-nil, means the run must exit with a failure code; duplicate
// detection is reported through the outcome instead.
func (s *ReportService) Run(ctx context.Context, req RunRequest) (*RunOutcome, error) {
	out := &RunOutcome{RunID: uuid.New(), Duplicates: map[string][]string{}}
	log := s.log.With(zap.String("run_id", out.RunID.String()))
	startedAt := s.now()

	if req.DryRun {
		log.Info("dry-run: ledger mutations and uploads are suppressed")
	}

	// GATHER
	discovery, err := s.lister.ListProducts(ctx)
	if err != nil {
		log.Error("listing failed; sending empty manifest", zap.Error(err))
		s.heartbeat(ctx, req, out, startedAt, log)
		return out, err
	}
	out.Duplicates = discovery.Duplicates()

	// FILTER
	if req.RequireQCComplete {
		if err := s.filterQCComplete(ctx, discovery, log); err != nil {
			log.Error("QC status lookup failed; sending empty manifest", zap.Error(err))
			s.heartbeat(ctx, req, out, startedAt, log)
			return out, err
		}
	}

	candidates := discovery.SortedCandidates()
	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.Path
	}

	eligible, blocked, err := s.ledger.Unreported(ctx, paths)
	if err != nil {
		log.Error("unreported-set query failed; sending empty manifest", zap.Error(err))
		s.heartbeat(ctx, req, out, startedAt, log)
		return out, err
	}
	for path, status := range blocked {
		if status == models.StatusInProgress {
			log.Warn("path already being reported; stuck records need an operator reset",
				zap.String("path", path))
		}
	}

	eligibleSet := make(map[string]bool, len(eligible))
	for _, path := range eligible {
		eligibleSet[path] = true
	}
	claimable := make([]models.CandidateFile, 0, len(eligible))
	for _, c := range candidates {
		if eligibleSet[c.Path] {
			claimable = append(claimable, c)
		}
	}
	log.Info("batch computed",
		zap.Int("discovered", len(candidates)),
		zap.Int("duplicate_groups", len(out.Duplicates)),
		zap.Int("unreported", len(claimable)))

	// CLAIM
	if len(claimable) == 0 {
		log.Info("no unreported files found")
	} else if !req.DryRun {
		if err := s.ledger.Claim(ctx, claimable, startedAt); err != nil {
			log.Error("claim failed; sending empty manifest", zap.Error(err))
			s.heartbeat(ctx, req, out, startedAt, log)
			return out, err
		}
	}

	// VALIDATE
	survivors := make([]models.EnrichedFile, 0, len(claimable))
	for _, c := range claimable {
		enriched, err := s.validate(ctx, c, req)
		if err != nil {
			log.Error("file failed validation",
				zap.String("file", c.FileName),
				zap.String("code", errors.GetCode(err)),
				zap.Error(err))
			out.FailedFiles = append(out.FailedFiles, c.FileName)
			if !req.DryRun {
				if markErr := s.ledger.MarkFailed(ctx, c, s.now()); markErr != nil {
					log.Error("failed to persist FAIL status",
						zap.String("file", c.FileName), zap.Error(markErr))
				}
			}
			continue
		}
		survivors = append(survivors, *enriched)
	}
	out.Reported = survivors

	// BUILD/UPLOAD
	manifest := models.NewManifest(survivors)
	uploadErr := s.deliver(ctx, manifest, req, out, startedAt, log,
		len(survivors) > 0 || req.SendEmpty)

	// FINALIZE
	var finalizeErr error
	if !req.DryRun && len(survivors) > 0 {
		status := models.StatusSuccess
		if uploadErr != nil {
			status = models.StatusFail
		}
		if err := s.ledger.Finalize(ctx, survivors, status, s.now()); err != nil {
			finalizeErr = err
			log.Error("finalize failed; records remain IN_PROGRESS pending operator intervention",
				zap.Error(err))
		}
	}

	// REPORT
	for name, dupPaths := range out.Duplicates {
		log.Warn("duplicate logical file excluded from reporting",
			zap.String("file", name),
			zap.Strings("paths", dupPaths))
	}
	log.Info("run complete",
		zap.Int("reported", len(survivors)),
		zap.Int("failed", len(out.FailedFiles)),
		zap.Bool("uploaded", out.Uploaded))

	if uploadErr != nil {
		return out, uploadErr
	}
	return out, finalizeErr
}

// filterQCComplete prunes candidates whose run is not QC complete.
// Pruning is by run membership: all files of a run pass or none do.
func (s *ReportService) filterQCComplete(ctx context.Context, discovery *models.Discovery, log *zap.Logger) error {
	candidates := discovery.Candidates()
	runSet := make(map[int64]bool)
	for _, c := range candidates {
		runSet[c.RunID] = true
	}
	runIDs := make([]int64, 0, len(runSet))
	for id := range runSet {
		runIDs = append(runIDs, id)
	}

	complete, err := s.lineage.QCCompleteRuns(ctx, runIDs)
	if err != nil {
		return err
	}
	for name, c := range candidates {
		if !complete[c.RunID] {
			log.Debug("dropping candidate from run not yet QC complete",
				zap.String("file", name), zap.Int64("run", c.RunID))
			discovery.Remove(name)
		}
	}
	return nil
}

// validate runs the per-file checks. Any error fails this file only.
func (s *ReportService) validate(ctx context.Context, c models.CandidateFile, req RunRequest) (*models.EnrichedFile, error) {
	if req.CheckStagedChecksums {
		staged, err := s.checksums.StagedMD5(ctx, c.RunID, c.FileName)
		if err != nil {
			return nil, err
		}
		if staged != c.MD5 {
			return nil, errors.ChecksumMismatch(c.FileName, c.MD5, staged)
		}
	}

	lanes := c.Lanes
	if len(lanes) == 0 {
		// Laneless names come from single-lane instruments.
		lanes = []int{1}
	}
	var lineage *models.Lineage
	for _, lane := range lanes {
		resolved, err := s.lineage.Lineage(ctx, c.RunID, lane, c.TagIndex)
		if err != nil {
			return nil, errors.LineageMissing(c.FileName, err)
		}
		if lineage == nil {
			lineage = resolved
		} else if *resolved != *lineage {
			return nil, errors.LineageMissing(c.FileName,
				fmt.Errorf("lanes of %s disagree on lineage", c.FileName))
		}
	}

	if lineage.SampleName != c.SampleID {
		return nil, errors.SampleMismatch(c.FileName, c.SampleID, lineage.SampleName)
	}

	return &models.EnrichedFile{
		CandidateFile: c,
		PlateBarcode:  lineage.PlateBarcode,
		LibraryID:     lineage.LibraryID,
	}, nil
}

// deliver writes the manifest locally and, when wanted, uploads it.
func (s *ReportService) deliver(ctx context.Context, manifest models.Manifest, req RunRequest, out *RunOutcome, at time.Time, log *zap.Logger, wantUpload bool) error {
	name := manifest.DocumentName(at, req.ManifestSuffix)
	localPath, err := s.writeManifest(manifest, req.ManifestDir, name)
	if err != nil {
		log.Error("failed to write manifest", zap.Error(err))
		return err
	}
	out.ManifestPath = localPath
	log.Info("manifest written",
		zap.String("path", localPath),
		zap.Int("rows", len(manifest.Files)))

	if req.DryRun || !wantUpload {
		return nil
	}
	destURL := req.DestinationURL + "/" + name
	if err := s.uploader.Upload(ctx, localPath, destURL); err != nil {
		log.Error("manifest upload failed", zap.String("dest", destURL), zap.Error(err))
		return err
	}
	out.Uploaded = true
	log.Info("manifest uploaded", zap.String("dest", destURL))
	return nil
}

// heartbeat sends a header-only manifest when the batch could not be
// computed at all, so downstream consumers are not starved silently.
func (s *ReportService) heartbeat(ctx context.Context, req RunRequest, out *RunOutcome, at time.Time, log *zap.Logger) {
	empty := models.NewManifest(nil)
	if err := s.deliver(ctx, empty, req, out, at, log, true); err != nil {
		log.Error("failed to send heartbeat manifest", zap.Error(err))
	}
}

func (s *ReportService) writeManifest(manifest models.Manifest, dir, name string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create manifest directory")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(manifest.Render()), 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write manifest")
	}
	return path, nil
}
