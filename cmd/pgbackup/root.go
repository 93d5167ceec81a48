package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	envFile    string
	logFile    string
	verbose    bool
	quiet      bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "pgbackup",
	Short: "A PostgreSQL backup orchestrator for S3-compatible storage",
	Long: `pgbackup dumps a list of PostgreSQL databases and ships them to object storage:
  - Credential and connectivity preflight (AWS identity, bucket, server)
  - pg_dump of each database, gzip-compressed on the fly
  - Upload with retries and descriptive object metadata
  - Secure removal of local artifacts
  - Date-based retention of old backups
  - Optional Pushgateway metrics and Telegram notifications

Settings are read from the environment. Use as a one-shot command with an
external scheduler (cron, Kubernetes CronJob, systemd timer, etc.)`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return loadEnvFile()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", "", "dotenv file to load into the environment")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file (rotated)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

func setupLogging() {
	// Set output format
	var out io.Writer
	if jsonOutput {
		out = os.Stdout
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		out = output
	}

	if logFile != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// loadEnvFile exports the --env-file settings into the process environment,
// where both the config parser and the AWS SDK read them. Variables already
// set in the environment win.
func loadEnvFile() error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Error().Err(err).Str("file", envFile).Msg("failed to load env file")
		return fmt.Errorf("loading env file: %w", err)
	}
	log.Debug().Str("file", envFile).Msg("env file loaded")
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
