package staging

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ukbreport/internal/errors"
	"ukbreport/ports"
)

// ChecksumFinder locates .md5 sidecar files in the local staging area.
// Runfolders are named with the run id embedded
// (e.g. 20260801_A00123_48573_BHXXX), so lookup globs each staging root
// for a folder mentioning the run and then walks it for the sidecar.
type ChecksumFinder struct {
	Roots []string
}

func NewChecksumFinder(roots []string) *ChecksumFinder {
	return &ChecksumFinder{Roots: roots}
}

// StagedMD5 returns the hex checksum recorded for fileName under the
// run's staged folder. The sidecar is md5sum output: the first
// whitespace-separated token is the digest.
func (f *ChecksumFinder) StagedMD5(ctx context.Context, runID int64, fileName string) (string, error) {
	sidecar := fileName + ".md5"
	for _, root := range f.Roots {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		folders, err := filepath.Glob(filepath.Join(root, fmt.Sprintf("*_%d_*", runID)))
		if err != nil {
			return "", errors.Wrapf(err, "bad staging root pattern %s", root)
		}
		for _, folder := range folders {
			found, err := findSidecar(folder, sidecar)
			if err != nil {
				return "", err
			}
			if found != "" {
				return readDigest(found)
			}
		}
	}
	return "", errors.ChecksumMissing(fileName)
}

func findSidecar(folder, sidecar string) (string, error) {
	var found string
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == sidecar {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to walk staging folder %s", folder)
	}
	return found, nil
}

func readDigest(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read checksum file %s", path)
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return "", errors.New(errors.CodeChecksumMissing,
			fmt.Sprintf("checksum file %s is empty", path))
	}
	return strings.ToLower(fields[0]), nil
}

var _ ports.StagedChecksumFinder = (*ChecksumFinder)(nil)
