package ports

import (
	"context"

	"ukbreport/models"
)

// ObjectLister discovers candidate product files in the object store.
// A listing source that fails to close cleanly yields a warning inside
// the adapter, not an error: the listing tool lists every valid prefix
// even when some prefixes are invalid.
type ObjectLister interface {
	ListProducts(ctx context.Context) (*models.Discovery, error)
}

// ManifestUploader transports a locally built manifest document to the
// object store.
type ManifestUploader interface {
	Upload(ctx context.Context, localPath, destURL string) error
}
