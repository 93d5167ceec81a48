package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/yvsainath/postgres-backup-simple/internal/config"
	"github.com/yvsainath/postgres-backup-simple/internal/services/credentials"
	"github.com/yvsainath/postgres-backup-simple/internal/services/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the backup workflow",
	Long: `Execute the complete backup workflow:
1. Validate configuration
2. Resolve AWS credentials and probe the bucket
3. Probe the PostgreSQL server
4. For each database: check existence, dump, verify, upload, clean up
5. Delete backups older than RETENTION_DAYS
6. Push metrics and send Telegram notification (if configured)

Exits non-zero unless every database was backed up.`,
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	log.Info().
		Str("host", cfg.Postgres.Host).
		Str("bucket", cfg.Storage.Bucket).
		Int("databases", len(cfg.Databases)).
		Int("retention_days", cfg.RetentionDays).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	awsCfg, err := credentials.LoadAWSConfig(ctx, cfg.Storage, cfg.Identity)
	if err != nil {
		log.Error().Err(err).Msg("failed to load AWS configuration")
		return err
	}

	// Run backup
	runnerSvc := runner.New(log.Logger, awsCfg, *cfg)
	summary, err := runnerSvc.Run(ctx, *cfg)
	if err != nil {
		log.Error().Err(err).Msg("backup failed")
		return err
	}

	if !summary.OK() {
		return fmt.Errorf("%d of %d database backups failed", summary.Failed, summary.Attempted)
	}

	log.Info().Msg("backup completed successfully")
	return nil
}
