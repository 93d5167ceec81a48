// Package models contains the data structures used throughout pgbackup.
package models

import "time"

// Defaults applied when optional settings are absent.
const (
	DefaultPort          = 5432
	DefaultPrefix        = "postgres-backups"
	DefaultRetentionDays = 30
	DefaultSSLMode       = "prefer"
	DefaultMaintenanceDB = "postgres"

	DefaultDumpTimeout   = 3600 * time.Second
	DefaultProbeTimeout  = 10 * time.Second
	DefaultUploadRetries = 3
	DefaultRetryDelay    = 5 * time.Second
)

// BackupConfig holds the complete configuration for a backup run.
// It is resolved once at start and never mutated afterwards.
type BackupConfig struct {
	Postgres       PostgresConfig
	Databases      []string // trimmed, deduplicated, in first-seen order
	Storage        StorageConfig
	Identity       IdentityConfig
	RetentionDays  int
	BackupDir      string // local scratch directory, mode 0700
	SourceHost     string // reported in object metadata
	PushgatewayURL string
	Telegram       *TelegramConfig // nil if not configured
	Timeouts       Timeouts
}

// StorageConfig holds S3 bucket configuration.
type StorageConfig struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string // optional, for S3-compatible stores
	UsePathStyle bool
}

// IdentityConfig holds the workload-identity markers.
type IdentityConfig struct {
	WebIdentityTokenFile string
	RoleARN              string
}

// Timeouts bounds the blocking steps of a run.
type Timeouts struct {
	Dump          time.Duration
	Probe         time.Duration
	UploadRetries int
	RetryDelay    time.Duration
}

// DefaultTimeouts returns the bounds used by a normal run.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Dump:          DefaultDumpTimeout,
		Probe:         DefaultProbeTimeout,
		UploadRetries: DefaultUploadRetries,
		RetryDelay:    DefaultRetryDelay,
	}
}
