package models

import "time"

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	SSLMode       string
	MaintenanceDB string // database used for the version probe and catalog queries
}

// PostgresDumpResult holds the result of a pg_dump operation.
type PostgresDumpResult struct {
	OutputPath string
	RawBytes   int64 // uncompressed bytes produced by pg_dump
	SizeBytes  int64 // compressed artifact size
	Duration   time.Duration
	Error      error
}
