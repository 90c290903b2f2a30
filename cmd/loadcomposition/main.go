package main

import (
	"fmt"
	"os"

	"ukbreport/adapters/postgres"
	"ukbreport/app"
	"ukbreport/internal/config"
	"ukbreport/internal/errors"
	"ukbreport/internal/logging"
	"ukbreport/internal/migration"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var verbose bool
	var logger *zap.Logger

	rootCmd := &cobra.Command{
		Use:           "loadcomposition",
		Short:         "Backfill parent/component links for merged products",
		Long: `One-shot backfill: for every merged product with no composition
links yet, resolves its declared single-lane components to existing
product rows and creates the linking rows, one transaction per parent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = logging.New(verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				logger.Debug("no .env file found, using system environment variables")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			db, err := sqlx.Connect("postgres", cfg.Database.URL)
			if err != nil {
				return errors.Wrap(err, "failed to connect to database")
			}
			defer db.Close()

			migrator := migration.NewRunner()
			if err := migrator.Run(cmd.Context(), db); err != nil {
				return errors.Wrap(err, "database migration failed")
			}

			svc := app.NewCompositionService(postgres.NewCompositionRepository(db), logger)
			outcome, err := svc.Backfill(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("backfill complete",
				zap.Int("linked", outcome.Linked),
				zap.Int("failed", outcome.Failed))
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
