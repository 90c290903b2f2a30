package ports

import "context"

// StagedChecksumFinder locates the checksum recorded when a product file
// was staged locally, for cross-checking against the remote hash.
type StagedChecksumFinder interface {
	// StagedMD5 returns the hex checksum staged for the named file under
	// the given run's folder.
	StagedMD5(ctx context.Context, runID int64, fileName string) (string, error)
}
