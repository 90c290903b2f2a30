package main

import (
	"fmt"
	"os"

	"ukbreport/adapters/gcs"
	"ukbreport/adapters/postgres"
	"ukbreport/adapters/staging"
	"ukbreport/app"
	"ukbreport/internal/config"
	"ukbreport/internal/errors"
	"ukbreport/internal/logging"
	"ukbreport/internal/migration"
	"ukbreport/ports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// exitDuplicates is returned when the manifest was sent successfully but
// duplicate logical files were detected. Kept at its historical value:
// downstream schedulers match on it.
const exitDuplicates = 277

var (
	verbose  bool
	logger   *zap.Logger
	exitCode int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ukbreport",
		Short:         "Report newly archived UKB product files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = logging.New(verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	rootCmd.AddCommand(newRunCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func newRunCmd() *cobra.Command {
	var (
		dryRun         bool
		sendEmpty      bool
		checkStagedMD5 bool
		requireQC      bool
		readStdin      bool
		destURL        string
		manifestSuffix string
		manifestDir    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reporting pass over the bucket",
		Long: `Discovers product files in the bucket, claims the unreported ones in
the ledger, validates each against the staging area and the tracking
warehouse, uploads a manifest and finalizes the ledger.

Exit codes: 0 on success or nothing to report, 1 on any run-level
failure, 277 when the manifest was sent but duplicate logical files
were detected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, runOptions{
				dryRun:         dryRun,
				sendEmpty:      sendEmpty,
				checkStagedMD5: checkStagedMD5,
				requireQC:      requireQC,
				readStdin:      readStdin,
				destURL:        destURL,
				manifestSuffix: manifestSuffix,
				manifestDir:    manifestDir,
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "suppress ledger mutation and upload")
	cmd.Flags().BoolVar(&sendEmpty, "send-empty", false, "upload a header-only manifest when nothing survives")
	cmd.Flags().BoolVar(&checkStagedMD5, "check-staging-md5", true, "cross-check remote hashes against staging sidecars")
	cmd.Flags().BoolVar(&requireQC, "require-qc-complete", true, "only report files from QC-complete runs")
	cmd.Flags().BoolVar(&readStdin, "stdin", false, "read the listing from standard input")
	cmd.Flags().StringVar(&destURL, "dest-url", "", "manifest destination URL (default from UKB_DEST_URL)")
	cmd.Flags().StringVar(&manifestSuffix, "manifest-suffix", "", "optional suffix for the manifest file name")
	cmd.Flags().StringVar(&manifestDir, "manifest-dir", "", "local directory for the manifest (default from MANIFEST_DIR)")

	return cmd
}

type runOptions struct {
	dryRun         bool
	sendEmpty      bool
	checkStagedMD5 bool
	requireQC      bool
	readStdin      bool
	destURL        string
	manifestSuffix string
	manifestDir    string
}

func runReport(cmd *cobra.Command, opts runOptions) error {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !opts.readStdin {
		if err := cfg.ValidateStorage(); err != nil {
			return err
		}
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	defer db.Close()

	ctx := cmd.Context()
	if !opts.dryRun {
		migrator := migration.NewRunner()
		if err := migrator.Run(ctx, db); err != nil {
			return errors.Wrap(err, "database migration failed")
		}
	}

	var lister ports.ObjectLister
	if opts.readStdin {
		lister = gcs.NewStdinLister(logger)
	} else {
		lister = gcs.NewGsutilLister(cfg.Storage.GsutilBinary, cfg.Storage.BucketURL, logger)
	}

	if opts.destURL == "" {
		opts.destURL = cfg.Storage.DestinationURL
	}
	if opts.manifestDir == "" {
		opts.manifestDir = cfg.Manifest.Dir
	}

	svc := app.NewReportService(
		lister,
		postgres.NewLedgerRepository(db),
		postgres.NewLineageRepository(db),
		staging.NewChecksumFinder(cfg.Staging.Roots),
		gcs.NewGsutilUploader(cfg.Storage.GsutilBinary),
		logger,
	)

	outcome, runErr := svc.Run(ctx, app.RunRequest{
		DryRun:               opts.dryRun,
		SendEmpty:            opts.sendEmpty,
		CheckStagedChecksums: opts.checkStagedMD5,
		RequireQCComplete:    opts.requireQC,
		DestinationURL:       opts.destURL,
		ManifestDir:          opts.manifestDir,
		ManifestSuffix:       opts.manifestSuffix,
	})

	if runErr != nil {
		logger.Error("run failed", zap.Error(runErr))
	}
	exitCode = resolveExitCode(runErr, outcome, opts.dryRun)
	return nil
}

// resolveExitCode maps a run outcome onto the process exit contract:
// 0 on success or nothing to report, 1 on any run-level failure or when
// every claimed file failed validation and nothing was reported, 277
// when the manifest went out but duplicate logical files were detected.
func resolveExitCode(runErr error, out *app.RunOutcome, dryRun bool) int {
	switch {
	case runErr != nil:
		return 1
	case len(out.FailedFiles) > 0 && len(out.Reported) == 0:
		return 1
	case len(out.Duplicates) > 0 && manifestSent(out, dryRun):
		return exitDuplicates
	default:
		return 0
	}
}

// manifestSent reports whether the run actually produced its manifest:
// an upload outside dry-run, the locally written document inside it.
func manifestSent(out *app.RunOutcome, dryRun bool) bool {
	if dryRun {
		return out.ManifestPath != ""
	}
	return out.Uploaded
}
