package config

import (
	"os"
	"strings"

	"ukbreport/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig `validate:"required"`
	Storage  StorageConfig  `validate:"required"`
	Staging  StagingConfig
	Manifest ManifestConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL     string `validate:"required"`
	SSLMode string
}

// StorageConfig holds object-store settings
type StorageConfig struct {
	// BucketURL is the listing root, e.g. "gs://ukb-products".
	BucketURL string `validate:"required"`
	// DestinationURL is where manifests are uploaded; overridable per run.
	DestinationURL string
	// GsutilBinary is the storage tool invoked for listing and upload.
	GsutilBinary string
}

// StagingConfig holds the local staging area settings for checksum
// cross-checks.
type StagingConfig struct {
	// Roots are directories searched for runfolders, e.g.
	// "/staging/IL_seq/*/incoming".
	Roots []string
}

// ManifestConfig holds manifest build settings
type ManifestConfig struct {
	Dir string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			URL:     os.Getenv("DATABASE_URL"),
			SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
		},
		Storage: StorageConfig{
			BucketURL:      os.Getenv("UKB_BUCKET_URL"),
			DestinationURL: getEnvOrDefault("UKB_DEST_URL", os.Getenv("UKB_BUCKET_URL")),
			GsutilBinary:   getEnvOrDefault("GSUTIL", "gsutil"),
		},
		Staging: StagingConfig{
			Roots: splitList(os.Getenv("STAGING_ROOTS")),
		},
		Manifest: ManifestConfig{
			Dir: getEnvOrDefault("MANIFEST_DIR", os.TempDir()),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if config.Database.URL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required")
	}
	return nil
}

// ValidateStorage checks the object-store settings a reporting run over
// the bucket needs. Commands that never touch the object store, like
// the composition loader, skip this.
func (c *Config) ValidateStorage() error {
	if c.Storage.BucketURL == "" {
		return errors.ConfigInvalid("UKB_BUCKET_URL is required")
	}
	return nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
