package app

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"ukbreport/internal/errors"
	"ukbreport/internal/testkit"
	"ukbreport/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRun = int64(48573)

func newTestService(t *testing.T, kit *testkit.Kit) (*ReportService, RunRequest) {
	t.Helper()
	svc := NewReportService(kit.Lister, kit.Ledger, kit.Lineage, kit.Checksums, kit.Uploader, testkit.NopLogger())
	req := RunRequest{
		CheckStagedChecksums: true,
		DestinationURL:       "gs://ukb-dest/manifests",
		ManifestDir:          t.TempDir(),
	}
	return svc, req
}

// addProduct registers a consistent candidate: listing entry, staged
// checksum and warehouse lineage all agree.
func addProduct(kit *testkit.Kit, sample string, lane, tag int) models.CandidateFile {
	name := fmt.Sprintf("%d_%d#%d.cram", testRun, lane, tag)
	c := models.CandidateFile{
		FileName: name,
		Path:     fmt.Sprintf("gs://ukb/2026-08-01/%s/%d/%s", sample, testRun, name),
		MD5:      fmt.Sprintf("md5-%s", name),
		RunID:    testRun,
		Lanes:    []int{lane},
		TagIndex: tag,
		SampleID: sample,
	}
	kit.Lister.Discovery.Add(c)
	kit.Checksums.Digests[name] = c.MD5
	kit.Lineage.Lineages[testkit.LineageKey(testRun, lane, tag)] = models.Lineage{
		SampleName:   sample,
		PlateBarcode: "PL0001",
		LibraryID:    700 + int64(tag),
	}
	return c
}

func TestRunReportsNewFiles(t *testing.T) {
	kit := testkit.NewKit()
	a := addProduct(kit, "UKBS1", 1, 9)
	b := addProduct(kit, "UKBS2", 2, 9)
	svc, req := newTestService(t, kit)

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, out.Reported, 2)
	assert.True(t, out.Uploaded)
	assert.Equal(t, models.StatusSuccess, kit.Ledger.Status(a.Path))
	assert.Equal(t, models.StatusSuccess, kit.Ledger.Status(b.Path))

	require.Len(t, kit.Uploader.Uploads, 1)
	lines := strings.Split(strings.TrimRight(kit.Uploader.Uploads[0].Content, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(models.ManifestColumns, "\t"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "UKBS1\t"))
	assert.True(t, strings.HasPrefix(lines[2], "UKBS2\t"))
}

func TestRunIsIdempotent(t *testing.T) {
	kit := testkit.NewKit()
	addProduct(kit, "UKBS1", 1, 9)
	svc, req := newTestService(t, kit)

	_, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	mutationsAfterFirst := kit.Ledger.Mutations
	uploadsAfterFirst := len(kit.Uploader.Uploads)

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, out.Reported)
	assert.Equal(t, mutationsAfterFirst, kit.Ledger.Mutations)
	assert.Len(t, kit.Uploader.Uploads, uploadsAfterFirst)
	assert.Empty(t, out.Duplicates)
}

func TestClaimFailureIsAtomicAndSendsHeartbeat(t *testing.T) {
	kit := testkit.NewKit()
	a := addProduct(kit, "UKBS1", 1, 9)
	kit.Ledger.ClaimErr = errors.ClaimFailed(fmt.Errorf("connection reset"))
	svc, req := newTestService(t, kit)

	out, err := svc.Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errors.CodeClaimFailed, errors.GetCode(err))

	// No record mutated, and the empty heartbeat manifest went out.
	assert.Equal(t, models.StatusUnset, kit.Ledger.Status(a.Path))
	assert.Equal(t, 0, kit.Ledger.Mutations)
	require.Len(t, kit.Uploader.Uploads, 1)
	assert.Equal(t, strings.Join(models.ManifestColumns, "\t")+"\n", kit.Uploader.Uploads[0].Content)
	assert.Empty(t, out.Reported)
}

func TestPerFileFailureIsolation(t *testing.T) {
	kit := testkit.NewKit()
	a := addProduct(kit, "UKBS1", 1, 9)
	bad := addProduct(kit, "UKBS2", 2, 9)
	c := addProduct(kit, "UKBS3", 3, 9)
	kit.Checksums.Digests[bad.FileName] = "something-else"
	svc, req := newTestService(t, kit)

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, kit.Ledger.Status(a.Path))
	assert.Equal(t, models.StatusFail, kit.Ledger.Status(bad.Path))
	assert.Equal(t, models.StatusSuccess, kit.Ledger.Status(c.Path))
	assert.Equal(t, []string{bad.FileName}, out.FailedFiles)

	content := kit.Uploader.Uploads[0].Content
	assert.Contains(t, content, "UKBS1\t")
	assert.Contains(t, content, "UKBS3\t")
	assert.NotContains(t, content, "UKBS2\t")
}

func TestAllFilesFailingReportsNothing(t *testing.T) {
	kit := testkit.NewKit()
	c := addProduct(kit, "UKBS1", 1, 9)
	kit.Checksums.Digests[c.FileName] = "not-the-staged-digest"
	svc, req := newTestService(t, kit)

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	// Validation failures are per-file, never a run error; the caller's
	// exit mapping must read them from the outcome.
	assert.Empty(t, out.Reported)
	assert.Equal(t, []string{c.FileName}, out.FailedFiles)
	assert.Equal(t, models.StatusFail, kit.Ledger.Status(c.Path))
	assert.Empty(t, kit.Uploader.Uploads)
}

func TestRetrySemantics(t *testing.T) {
	kit := testkit.NewKit()
	failed := addProduct(kit, "UKBS1", 1, 9)
	succeeded := addProduct(kit, "UKBS2", 2, 9)
	inProgress := addProduct(kit, "UKBS3", 3, 9)
	annulled := addProduct(kit, "UKBS4", 4, 9)
	kit.Ledger.Seed(failed.Path, failed.FileName, models.StatusFail)
	kit.Ledger.Seed(succeeded.Path, succeeded.FileName, models.StatusSuccess)
	kit.Ledger.Seed(inProgress.Path, inProgress.FileName, models.StatusInProgress)
	kit.Ledger.Seed(annulled.Path, annulled.FileName, models.StatusAnnulled)
	svc, req := newTestService(t, kit)

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, out.Reported, 1)
	assert.Equal(t, failed.FileName, out.Reported[0].FileName)
	assert.Equal(t, models.StatusSuccess, kit.Ledger.Status(failed.Path))
	assert.Equal(t, models.StatusSuccess, kit.Ledger.Status(succeeded.Path))
	assert.Equal(t, models.StatusInProgress, kit.Ledger.Status(inProgress.Path))
	assert.Equal(t, models.StatusAnnulled, kit.Ledger.Status(annulled.Path))
}

func TestUploadFailureFinalizesFail(t *testing.T) {
	kit := testkit.NewKit()
	a := addProduct(kit, "UKBS1", 1, 9)
	kit.Uploader.Err = errors.UploadFailed(fmt.Errorf("bucket unreachable"))
	svc, req := newTestService(t, kit)

	out, err := svc.Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errors.CodeUploadFailed, errors.GetCode(err))

	// Finalize still ran, with a FAIL outcome for the whole batch.
	assert.Equal(t, models.StatusFail, kit.Ledger.Status(a.Path))
	assert.False(t, out.Uploaded)
}

func TestFinalizeFailureLeavesInProgress(t *testing.T) {
	kit := testkit.NewKit()
	a := addProduct(kit, "UKBS1", 1, 9)
	kit.Ledger.FinalErr = errors.FinalizeFailed(fmt.Errorf("deadlock detected"))
	svc, req := newTestService(t, kit)

	_, err := svc.Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errors.CodeFinalizeFailed, errors.GetCode(err))
	assert.Equal(t, models.StatusInProgress, kit.Ledger.Status(a.Path))
}

func TestDryRunSuppressesMutationAndUpload(t *testing.T) {
	kit := testkit.NewKit()
	a := addProduct(kit, "UKBS1", 1, 9)
	svc, req := newTestService(t, kit)
	req.DryRun = true

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, out.Reported, 1)
	assert.Equal(t, 0, kit.Ledger.Mutations)
	assert.Equal(t, models.StatusUnset, kit.Ledger.Status(a.Path))
	assert.Empty(t, kit.Uploader.Uploads)
	assert.NotEmpty(t, out.ManifestPath)
}

func TestQCCompletenessFilter(t *testing.T) {
	kit := testkit.NewKit()
	ready := addProduct(kit, "UKBS1", 1, 9)
	notReady := models.CandidateFile{
		FileName: "48999_1#9.cram",
		Path:     "gs://ukb/2026-08-01/UKBS2/48999/48999_1#9.cram",
		MD5:      "md5-48999",
		RunID:    48999,
		Lanes:    []int{1},
		TagIndex: 9,
		SampleID: "UKBS2",
	}
	kit.Lister.Discovery.Add(notReady)
	kit.Lineage.QCComplete[testRun] = true
	svc, req := newTestService(t, kit)
	req.RequireQCComplete = true

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, out.Reported, 1)
	assert.Equal(t, ready.FileName, out.Reported[0].FileName)
	assert.Equal(t, models.StatusUnset, kit.Ledger.Status(notReady.Path))
}

func TestNothingToReportSendsEmptyWhenEnabled(t *testing.T) {
	kit := testkit.NewKit()
	svc, req := newTestService(t, kit)
	req.SendEmpty = true

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, out.Reported)
	require.Len(t, kit.Uploader.Uploads, 1)
	assert.Equal(t, strings.Join(models.ManifestColumns, "\t")+"\n", kit.Uploader.Uploads[0].Content)
	assert.True(t, out.Uploaded)
}

func TestNothingToReportSkipsUploadByDefault(t *testing.T) {
	kit := testkit.NewKit()
	svc, req := newTestService(t, kit)

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, kit.Uploader.Uploads)
	assert.False(t, out.Uploaded)
}

func TestDuplicatesAreReportedNotProcessed(t *testing.T) {
	kit := testkit.NewKit()
	addProduct(kit, "UKBS1", 1, 9)
	dup := addProduct(kit, "UKBS2", 2, 9)
	reupload := dup
	reupload.Path = "gs://ukb/2026-08-02/UKBS2/48573/" + dup.FileName
	kit.Lister.Discovery.Add(reupload)
	svc, req := newTestService(t, kit)

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, out.Reported, 1)
	require.Len(t, out.Duplicates, 1)
	paths := out.Duplicates[dup.FileName]
	assert.Equal(t, []string{dup.Path, reupload.Path}, paths)
	assert.Equal(t, models.StatusUnset, kit.Ledger.Status(dup.Path))
	assert.NotContains(t, kit.Uploader.Uploads[0].Content, dup.FileName)
}

func TestValidateSampleMismatch(t *testing.T) {
	kit := testkit.NewKit()
	c := addProduct(kit, "UKBS1", 1, 9)
	lineage := kit.Lineage.Lineages[testkit.LineageKey(testRun, 1, 9)]
	lineage.SampleName = "UKBS-OTHER"
	kit.Lineage.Lineages[testkit.LineageKey(testRun, 1, 9)] = lineage
	svc, req := newTestService(t, kit)

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{c.FileName}, out.FailedFiles)
	assert.Equal(t, models.StatusFail, kit.Ledger.Status(c.Path))
}

func TestValidateMissingLineage(t *testing.T) {
	kit := testkit.NewKit()
	c := addProduct(kit, "UKBS1", 1, 9)
	delete(kit.Lineage.Lineages, testkit.LineageKey(testRun, 1, 9))
	svc, req := newTestService(t, kit)

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{c.FileName}, out.FailedFiles)
	assert.Equal(t, models.StatusFail, kit.Ledger.Status(c.Path))
}

func TestValidateMergedLanesMustAgree(t *testing.T) {
	kit := testkit.NewKit()
	c := models.CandidateFile{
		FileName: "48573_1-2#44.cram",
		Path:     "gs://ukb/2026-08-01/UKBS9/48573/48573_1-2#44.cram",
		MD5:      "md5-merged",
		RunID:    testRun,
		Lanes:    []int{1, 2},
		TagIndex: 44,
		SampleID: "UKBS9",
	}
	kit.Lister.Discovery.Add(c)
	kit.Checksums.Digests[c.FileName] = c.MD5
	kit.Lineage.Lineages[testkit.LineageKey(testRun, 1, 44)] = models.Lineage{SampleName: "UKBS9", PlateBarcode: "PL1", LibraryID: 1}
	kit.Lineage.Lineages[testkit.LineageKey(testRun, 2, 44)] = models.Lineage{SampleName: "UKBS9", PlateBarcode: "PL2", LibraryID: 2}
	svc, req := newTestService(t, kit)

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{c.FileName}, out.FailedFiles)
}

func TestChecksumCheckCanBeDisabled(t *testing.T) {
	kit := testkit.NewKit()
	c := addProduct(kit, "UKBS1", 1, 9)
	delete(kit.Checksums.Digests, c.FileName)
	svc, req := newTestService(t, kit)
	req.CheckStagedChecksums = false

	out, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, out.Reported, 1)
	assert.Empty(t, out.FailedFiles)
}
