package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/yvsainath/postgres-backup-simple/internal/config"
	"github.com/yvsainath/postgres-backup-simple/internal/services/credentials"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the environment configuration without contacting AWS or PostgreSQL.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to parse config")
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	out := cmd.OutOrStdout()

	// Print configuration summary
	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "PostgreSQL:")
	fmt.Fprintf(out, "  Host: %s\n", cfg.Postgres.Host)
	fmt.Fprintf(out, "  Port: %d\n", cfg.Postgres.Port)
	fmt.Fprintf(out, "  User: %s\n", cfg.Postgres.Username)
	fmt.Fprintf(out, "  Password: (configured)\n")
	fmt.Fprintf(out, "  SSL mode: %s\n", cfg.Postgres.SSLMode)
	fmt.Fprintf(out, "  Databases: %s\n", strings.Join(cfg.Databases, ", "))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Storage:")
	fmt.Fprintf(out, "  Bucket: %s\n", cfg.Storage.Bucket)
	fmt.Fprintf(out, "  Prefix: %s\n", cfg.Storage.Prefix)
	fmt.Fprintf(out, "  Region: %s\n", cfg.Storage.Region)
	if cfg.Storage.Endpoint != "" {
		fmt.Fprintf(out, "  Endpoint: %s (path-style)\n", cfg.Storage.Endpoint)
	}
	fmt.Fprintf(out, "  Credentials: %s\n", credentials.DetectMode(cfg.Identity))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Run:")
	fmt.Fprintf(out, "  Retention: %d day(s)\n", cfg.RetentionDays)
	fmt.Fprintf(out, "  Scratch directory: %s\n", cfg.BackupDir)
	fmt.Fprintf(out, "  Source host: %s\n", cfg.SourceHost)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Optional Features:")
	fmt.Fprintf(out, "  Pushgateway: %v\n", cfg.PushgatewayURL != "")
	fmt.Fprintf(out, "  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.Telegram != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Telegram Configuration:")
		fmt.Fprintf(out, "  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Fprintf(out, "  Bot Token: (configured)\n")
	}

	return nil
}
