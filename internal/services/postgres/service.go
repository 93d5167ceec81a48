// Package postgres provides PostgreSQL dump and catalog operations.
package postgres

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/yvsainath/postgres-backup-simple/internal/backuperr"
	"github.com/yvsainath/postgres-backup-simple/internal/models"
)

// Service defines the interface for PostgreSQL dump operations.
type Service interface {
	Dump(ctx context.Context, cfg models.PostgresConfig, database, outputPath string) (*models.PostgresDumpResult, error)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	ExecuteWithEnv(ctx context.Context, env []string, stdout io.Writer, name string, args ...string) error
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// ExecuteWithEnv runs a command, streaming its stdout to the given writer.
// Stderr is captured and included in the returned error.
func (e *DefaultExecutor) ExecuteWithEnv(ctx context.Context, env []string, stdout io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = stdout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s failed: %w", name, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s failed: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}

	return nil
}

// Impl implements the PostgreSQL Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new PostgreSQL dump service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new PostgreSQL service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// DumpArgs returns the pg_dump arguments for a database. The dump is plain SQL
// with DROP ... IF EXISTS statements and without ownership or privilege commands,
// so it restores cleanly over an existing schema.
func DumpArgs(cfg models.PostgresConfig, database string) []string {
	return []string{
		"-h", cfg.Host,
		"-p", strconv.Itoa(cfg.Port),
		"-U", cfg.Username,
		"-d", database,
		"--format=plain",
		"--clean",
		"--if-exists",
		"--no-owner",
		"--no-acl",
		"--no-password",
	}
}

// DumpEnv returns the environment passed to pg_dump.
func DumpEnv(cfg models.PostgresConfig) []string {
	env := []string{}
	if cfg.Password != "" {
		env = append(env, fmt.Sprintf("PGPASSWORD=%s", cfg.Password))
	}
	if cfg.SSLMode != "" {
		env = append(env, fmt.Sprintf("PGSSLMODE=%s", cfg.SSLMode))
	}
	return env
}

// Dump runs pg_dump and gzips its output straight into outputPath.
// Dump failures are reported in the result, not as the returned error.
func (s *Impl) Dump(ctx context.Context, cfg models.PostgresConfig, database, outputPath string) (*models.PostgresDumpResult, error) {
	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", database).
		Str("output", outputPath).
		Msg("starting PostgreSQL dump")

	start := time.Now()
	result := &models.PostgresDumpResult{
		OutputPath: outputPath,
	}

	fail := func(msg string, err error) (*models.PostgresDumpResult, error) {
		_ = os.Remove(outputPath)
		result.Error = backuperr.New(backuperr.KindDump, msg, err)
		result.Duration = time.Since(start)
		return result, nil
	}

	// Ensure output directory exists
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o700); err != nil {
		return fail("failed to create output directory", err)
	}

	output, err := os.OpenFile(outputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:gosec // outputPath is controlled by caller
	if err != nil {
		return fail("failed to create output file", err)
	}

	gz := gzip.NewWriter(output)
	counter := &countingWriter{w: gz}

	execErr := s.executor.ExecuteWithEnv(ctx, DumpEnv(cfg), counter, "pg_dump", DumpArgs(cfg, database)...)
	gzErr := gz.Close()
	closeErr := output.Close()

	switch {
	case execErr != nil:
		return fail("pg_dump failed", execErr)
	case gzErr != nil:
		return fail("failed to finish compression", gzErr)
	case closeErr != nil:
		return fail("failed to close output file", closeErr)
	}

	result.RawBytes = counter.n
	if info, err := os.Stat(outputPath); err == nil {
		result.SizeBytes = info.Size()
	}
	result.Duration = time.Since(start)

	s.logger.Info().
		Str("database", database).
		Str("output", outputPath).
		Int64("raw_bytes", result.RawBytes).
		Int64("size_bytes", result.SizeBytes).
		Dur("duration", result.Duration).
		Msg("PostgreSQL dump completed")

	return result, nil
}

// GetOutputFilename returns the artifact file name for a database and run timestamp.
func GetOutputFilename(database, timestamp string) string {
	return models.ObjectName(database, timestamp)
}
