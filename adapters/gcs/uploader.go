package gcs

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"ukbreport/internal/errors"
	"ukbreport/ports"
)

// GsutilUploader copies a local manifest into the bucket with the storage
// tool.
type GsutilUploader struct {
	Binary string
}

func NewGsutilUploader(binary string) *GsutilUploader {
	if binary == "" {
		binary = "gsutil"
	}
	return &GsutilUploader{Binary: binary}
}

// Upload copies localPath to destURL. The tool's stderr is folded into
// the returned error.
func (u *GsutilUploader) Upload(ctx context.Context, localPath, destURL string) error {
	cmd := exec.CommandContext(ctx, u.Binary, "cp", localPath, destURL)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return errors.UploadFailed(errors.Wrapf(err, "%s", msg))
		}
		return errors.UploadFailed(err)
	}
	return nil
}

var _ ports.ManifestUploader = (*GsutilUploader)(nil)
