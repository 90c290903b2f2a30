package gcs

import (
	"context"
	"io"
	"os"
	"os/exec"

	"ukbreport/internal/errors"
	"ukbreport/models"
	"ukbreport/ports"

	"go.uber.org/zap"
)

// GsutilLister lists the bucket by shelling out to the storage tool with
// long-form output, which carries the content hash per object. The tool
// exits non-zero when any date-partition prefix is invalid even though
// all valid prefixes were listed, so a non-zero exit after output is a
// warning (possibly-incomplete listing), not a failure.
type GsutilLister struct {
	Binary    string
	BucketURL string
	log       *zap.Logger
}

// NewGsutilLister creates a lister over the given bucket URL.
func NewGsutilLister(binary, bucketURL string, log *zap.Logger) *GsutilLister {
	if binary == "" {
		binary = "gsutil"
	}
	return &GsutilLister{Binary: binary, BucketURL: bucketURL, log: log}
}

// ListProducts runs the listing command and parses its output into a
// Discovery.
func (l *GsutilLister) ListProducts(ctx context.Context) (*models.Discovery, error) {
	cmd := exec.CommandContext(ctx, l.Binary, "ls", "-L", l.BucketURL+"/*/*/*/*.cram")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open listing pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.WithCode(errors.CodeListingError,
			errors.Wrapf(err, "failed to start %s", l.Binary))
	}

	discovery, parseErr := ParseListing(stdout, l.log)
	io.Copy(io.Discard, stdout)
	if waitErr := cmd.Wait(); waitErr != nil {
		l.log.Warn("listing source did not close cleanly; listing may be incomplete",
			zap.Error(waitErr))
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return discovery, nil
}

// StdinLister serves the listing from standard input instead of invoking
// the storage tool, for pre-captured listings.
type StdinLister struct {
	log *zap.Logger
}

func NewStdinLister(log *zap.Logger) *StdinLister {
	return &StdinLister{log: log}
}

func (l *StdinLister) ListProducts(ctx context.Context) (*models.Discovery, error) {
	return ParseListing(os.Stdin, l.log)
}

var (
	_ ports.ObjectLister = (*GsutilLister)(nil)
	_ ports.ObjectLister = (*StdinLister)(nil)
)
