package gcs

import (
	"bufio"
	"encoding/base64"
	"encoding/hex"
	"io"
	"regexp"

	"ukbreport/internal/errors"
	"ukbreport/models"

	"go.uber.org/zap"
)

// listingPattern matches a file-of-interest line of the long listing:
// a remote path ending in <sample>/<run-id>/<run-id>[_<lanes>]#<tag>.cram,
// followed later on the line by the base64 content hash labelled
// "Hash (md5):". Metadata and continuation lines do not match and are
// skipped.
var listingPattern = regexp.MustCompile(
	`(\S+/([^/\s]+)/(\d+)/((\d+)(?:_\d+(?:-\d+)*)?#\d+\.cram))\S*\s.*Hash \(md5\):\s*([A-Za-z0-9+/=]+)`)

// ParseListing reads a raw listing stream into a Discovery, performing
// retroactive duplicate detection as entries arrive. Lines that do not
// describe a product file are ignored.
func ParseListing(r io.Reader, log *zap.Logger) (*models.Discovery, error) {
	discovery := models.NewDiscovery()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		m := listingPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		path, sample, runDir, fileName, runInName, hash := m[1], m[2], m[3], m[4], m[5], m[6]
		if runDir != runInName {
			log.Debug("skipping entry with inconsistent run id",
				zap.String("path", path))
			continue
		}

		runID, lanes, tagIndex, err := models.ParseProductFileName(fileName)
		if err != nil {
			log.Debug("skipping unparseable product name",
				zap.String("file", fileName), zap.Error(err))
			continue
		}

		md5, err := decodeHash(hash)
		if err != nil {
			log.Warn("skipping entry with undecodable hash",
				zap.String("path", path), zap.Error(err))
			continue
		}

		discovery.Add(models.CandidateFile{
			FileName: fileName,
			Path:     path,
			MD5:      md5,
			RunID:    runID,
			Lanes:    lanes,
			TagIndex: tagIndex,
			SampleID: sample,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.WithCode(errors.CodeListingError,
			errors.Wrap(err, "failed to read listing stream"))
	}
	return discovery, nil
}

// decodeHash converts the listing's base64 MD5 to the hex form used by
// the ledger and the staging sidecars.
func decodeHash(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
