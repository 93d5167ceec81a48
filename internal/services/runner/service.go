// Package runner orchestrates the backup workflow.
package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/yvsainath/postgres-backup-simple/internal/backuperr"
	"github.com/yvsainath/postgres-backup-simple/internal/metrics"
	"github.com/yvsainath/postgres-backup-simple/internal/models"
	"github.com/yvsainath/postgres-backup-simple/internal/retry"
	"github.com/yvsainath/postgres-backup-simple/internal/services/artifact"
	"github.com/yvsainath/postgres-backup-simple/internal/services/credentials"
	"github.com/yvsainath/postgres-backup-simple/internal/services/postgres"
	"github.com/yvsainath/postgres-backup-simple/internal/services/retention"
	"github.com/yvsainath/postgres-backup-simple/internal/services/storage"
	"github.com/yvsainath/postgres-backup-simple/internal/services/telegram"
)

// reportTimeout bounds each best-effort report sent after the run.
const reportTimeout = 30 * time.Second

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, cfg models.BackupConfig) (*models.RunSummary, error)
}

// Services groups the collaborators of a run. Metrics and Telegram are optional.
type Services struct {
	Credentials  credentials.Service
	Storage      storage.Service
	Catalog      postgres.Catalog
	Dumper       postgres.Service
	Retention    retention.Service
	Telegram     telegram.Service
	Metrics      metrics.Pusher
	UploadPolicy retry.Policy
}

// Impl implements the runner Service interface.
type Impl struct {
	credentialsSvc credentials.Service
	storageSvc     storage.Service
	catalog        postgres.Catalog
	dumper         postgres.Service
	retentionSvc   retention.Service
	telegramSvc    telegram.Service
	metrics        metrics.Pusher
	uploadPolicy   retry.Policy
	now            func() time.Time
	newRunID       func() string
	logger         zerolog.Logger
}

// New creates a new runner service backed by AWS and the local pg_dump.
func New(logger zerolog.Logger, awsCfg aws.Config, cfg models.BackupConfig) *Impl {
	policy := retry.Fixed(cfg.Timeouts.UploadRetries, cfg.Timeouts.RetryDelay)
	storageSvc := storage.New(logger, awsCfg, cfg.Storage)

	services := Services{
		Credentials:  credentials.NewResolver(logger, awsCfg, cfg.Storage, policy),
		Storage:      storageSvc,
		Catalog:      postgres.NewCatalog(logger),
		Dumper:       postgres.New(logger),
		Retention:    retention.New(logger, storageSvc),
		Telegram:     telegram.New(logger),
		UploadPolicy: policy,
	}
	if cfg.PushgatewayURL != "" {
		services.Metrics = metrics.New(logger, cfg.PushgatewayURL)
	}

	return NewWithServices(logger, services, time.Now)
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(logger zerolog.Logger, services Services, now func() time.Time) *Impl {
	return &Impl{
		credentialsSvc: services.Credentials,
		storageSvc:     services.Storage,
		catalog:        services.Catalog,
		dumper:         services.Dumper,
		retentionSvc:   services.Retention,
		telegramSvc:    services.Telegram,
		metrics:        services.Metrics,
		uploadPolicy:   services.UploadPolicy,
		now:            now,
		newRunID:       uuid.NewString,
		logger:         logger,
	}
}

// Run executes the complete backup workflow. The returned error is non-nil
// only when the run aborted; per-database failures are reported in the summary.
//
//nolint:gocognit,gocyclo // backup workflow has multiple steps by design
func (s *Impl) Run(ctx context.Context, cfg models.BackupConfig) (*models.RunSummary, error) {
	startTime := s.now()
	summary := models.NewRunSummary(s.newRunID(), startTime)
	logger := s.logger.With().Str("run_id", summary.RunID).Logger()

	var failedStep string
	var runErr error

	logger.Info().
		Str("host", cfg.Postgres.Host).
		Str("bucket", cfg.Storage.Bucket).
		Str("prefix", cfg.Storage.Prefix).
		Strs("databases", cfg.Databases).
		Msg("starting backup run")

	defer func() {
		summary.Finish(s.now())
		s.logSummary(logger, summary, runErr)
		s.report(ctx, logger, cfg, summary, failedStep, runErr)
	}()

	// Step 1: Credentials
	failedStep = "credentials"
	identity, err := s.credentialsSvc.Resolve(ctx, cfg.Identity)
	if err != nil {
		runErr = abort(backuperr.KindCredential, "identity check failed", err)
		return summary, runErr
	}
	logger.Info().
		Str("mode", string(identity.Mode)).
		Bool("confirmed", identity.Confirmed).
		Msg("credentials resolved")

	// Step 2: Storage reachability
	failedStep = "storage"
	if err := s.probeStorage(ctx, cfg); err != nil {
		runErr = abort(backuperr.KindStorageAccess, "bucket not reachable", err)
		return summary, runErr
	}

	// Step 3: Database reachability
	failedStep = "database"
	if err := s.probeDatabase(ctx, logger, cfg); err != nil {
		runErr = err
		return summary, err
	}

	// Step 4: Scratch directory
	failedStep = "scratch_dir"
	if err := artifact.PrepareDir(cfg.BackupDir); err != nil {
		runErr = abort(backuperr.KindConfig, "BACKUP_DIR unusable", err)
		return summary, runErr
	}

	// Step 5: Per-database backups
	failedStep = "backup"
	timestamp := startTime.UTC().Format(models.TimestampLayout)
	for _, database := range cfg.Databases {
		if ctx.Err() != nil {
			break
		}
		job := s.backupDatabase(ctx, logger, cfg, summary.RunID, database, timestamp)
		summary.Record(job)
	}
	if err := ctx.Err(); err != nil {
		runErr = fmt.Errorf("run interrupted: %w", err)
		return summary, runErr
	}

	// Step 6: Retention
	failedStep = "retention"
	s.applyRetention(ctx, logger, cfg, summary, retention.Cutoff(startTime, cfg.RetentionDays))

	failedStep = ""
	return summary, nil
}

// abort classifies a preflight error. Errors that already carry a fatal kind
// keep it.
func abort(kind backuperr.Kind, msg string, err error) error {
	if backuperr.IsFatal(err) {
		return err
	}
	return backuperr.New(kind, msg, err)
}

func (s *Impl) probeStorage(ctx context.Context, cfg models.BackupConfig) error {
	probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Probe)
	defer cancel()

	return s.storageSvc.Probe(probeCtx)
}

func (s *Impl) probeDatabase(ctx context.Context, logger zerolog.Logger, cfg models.BackupConfig) error {
	probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Probe)
	defer cancel()

	version, err := s.catalog.Version(probeCtx, cfg.Postgres)
	if err != nil {
		return backuperr.New(backuperr.KindDatabaseConnection,
			fmt.Sprintf("cannot reach %s:%d", cfg.Postgres.Host, cfg.Postgres.Port), err)
	}

	logger.Info().Str("version", version).Msg("PostgreSQL server reachable")
	return nil
}

// backupDatabase runs the existence check, dump, verification, upload and
// cleanup for one database. The returned job is always terminal.
func (s *Impl) backupDatabase(
	ctx context.Context,
	logger zerolog.Logger,
	cfg models.BackupConfig,
	runID string,
	database string,
	timestamp string,
) *models.BackupJob {
	start := time.Now()
	job := &models.BackupJob{
		Database:     database,
		Timestamp:    timestamp,
		ArtifactPath: filepath.Join(cfg.BackupDir, postgres.GetOutputFilename(database, timestamp)),
		ObjectKey:    models.ObjectKey(cfg.Storage.Prefix, database, timestamp),
		Status:       models.JobPending,
	}
	log := logger.With().Str("database", database).Logger()

	defer func() {
		job.Duration = time.Since(start)
		logJob(log, job)
	}()

	fail := func(err error) *models.BackupJob {
		job.Status = models.JobFailed
		job.Error = err
		return job
	}

	existsCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Probe)
	exists, err := s.catalog.DatabaseExists(existsCtx, cfg.Postgres, database)
	cancel()
	if err != nil {
		return fail(backuperr.New(backuperr.KindDatabaseConnection, "existence check failed", err))
	}
	if !exists {
		job.Status = models.JobSkipped
		job.SkipReason = "database does not exist"
		job.Error = backuperr.New(backuperr.KindDatabaseMissing, database, nil)
		return job
	}

	defer s.removeArtifact(log, job.ArtifactPath)

	dumpCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Dump)
	dumpResult, err := s.dumper.Dump(dumpCtx, cfg.Postgres, database, job.ArtifactPath)
	cancel()
	if err != nil {
		return fail(backuperr.New(backuperr.KindDump, "pg_dump failed", err))
	}
	if dumpResult.Error != nil {
		return fail(dumpResult.Error)
	}

	if _, err := artifact.Verify(job.ArtifactPath); err != nil {
		return fail(err)
	}
	// gzip output is never zero bytes, so check what pg_dump wrote.
	if dumpResult.RawBytes == 0 {
		return fail(backuperr.New(backuperr.KindEmptyArtifact, "pg_dump produced no output", nil))
	}

	checksum, err := artifact.Checksum(job.ArtifactPath)
	if err != nil {
		return fail(backuperr.New(backuperr.KindUpload, "failed to checksum artifact", err))
	}

	metadata := map[string]string{
		"database":    database,
		"timestamp":   timestamp,
		"source-host": cfg.SourceHost,
		"run-id":      runID,
		"blake2b-256": checksum,
	}

	var uploaded *models.UploadResult
	attempts, err := s.uploadPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		result, err := s.storageSvc.Upload(ctx, job.ArtifactPath, job.ObjectKey, metadata)
		if err == nil && result.Error != nil {
			err = result.Error
		}
		if err != nil {
			log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_attempts", s.uploadPolicy.MaxAttempts).
				Msg("upload attempt failed")
			return err
		}
		uploaded = result
		return nil
	})
	job.Attempts = attempts
	if err != nil {
		if backuperr.KindOf(err) == "" {
			err = backuperr.New(backuperr.KindUpload, "upload failed", err)
		}
		return fail(err)
	}

	job.Status = models.JobSuccess
	job.BytesUploaded = uploaded.SizeBytes
	return job
}

func (s *Impl) removeArtifact(log zerolog.Logger, path string) {
	result := artifact.SecureRemove(path)
	if result.Error != nil {
		log.Error().Err(result.Error).Str("path", path).Msg("failed to remove local artifact")
		return
	}
	if result.Removed && !result.Overwritten {
		log.Warn().Str("path", path).Msg("local artifact removed without overwrite")
	}
}

// applyRetention sweeps every configured database against one cutoff derived
// from the run start.
func (s *Impl) applyRetention(
	ctx context.Context,
	logger zerolog.Logger,
	cfg models.BackupConfig,
	summary *models.RunSummary,
	cutoff models.Date,
) {
	logger.Info().
		Int("retention_days", cfg.RetentionDays).
		Str("cutoff", cutoff.String()).
		Msg("applying retention")

	for _, database := range cfg.Databases {
		result, err := s.retentionSvc.Sweep(ctx, cfg.Storage.Prefix, database, cutoff)
		if err != nil {
			summary.RetentionErrors++
			logger.Error().
				Err(err).
				Str("database", database).
				Msg("retention sweep failed")
			continue
		}
		summary.RetentionDeleted += len(result.Deleted)
		summary.RetentionErrors += len(result.Errors)
	}
}

func logJob(log zerolog.Logger, job *models.BackupJob) {
	switch job.Status {
	case models.JobSuccess:
		log.Info().
			Str("key", job.ObjectKey).
			Int64("bytes", job.BytesUploaded).
			Int("attempts", job.Attempts).
			Dur("duration", job.Duration).
			Msg("backup succeeded")
	case models.JobSkipped:
		log.Warn().
			Str("reason", job.SkipReason).
			Msg("backup skipped")
	default:
		log.Error().
			Err(job.Error).
			Str("kind", string(backuperr.KindOf(job.Error))).
			Int("attempts", job.Attempts).
			Dur("duration", job.Duration).
			Msg("backup failed")
	}
}

func (s *Impl) logSummary(logger zerolog.Logger, summary *models.RunSummary, runErr error) {
	event := logger.Info()
	msg := "backup run completed successfully"
	switch {
	case runErr != nil:
		event = logger.Error().Err(runErr).Str("kind", string(backuperr.KindOf(runErr)))
		msg = "backup run aborted"
	case !summary.OK():
		event = logger.Error()
		msg = "backup run completed with failures"
	}

	event.
		Int("attempted", summary.Attempted).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int64("bytes_transferred", summary.BytesTransferred).
		Int("retention_deleted", summary.RetentionDeleted).
		Int("retention_errors", summary.RetentionErrors).
		Strs("failed_databases", summary.FailedDatabases()).
		Dur("duration", summary.Duration()).
		Msg(msg)
}

// report sends the optional metrics and notification. Both run on a context
// detached from cancellation so an interrupted run is still reported.
func (s *Impl) report(
	ctx context.Context,
	logger zerolog.Logger,
	cfg models.BackupConfig,
	summary *models.RunSummary,
	failedStep string,
	runErr error,
) {
	ctx = context.WithoutCancel(ctx)

	if s.metrics != nil {
		pushCtx, cancel := context.WithTimeout(ctx, reportTimeout)
		if err := s.metrics.Push(pushCtx, cfg.SourceHost, summary); err != nil {
			logger.Error().Err(err).Msg("failed to push metrics")
		}
		cancel()
	}

	if cfg.Telegram != nil && s.telegramSvc != nil {
		sendCtx, cancel := context.WithTimeout(ctx, reportTimeout)
		s.sendNotification(sendCtx, logger, cfg, summary, failedStep, runErr)
		cancel()
	}
}

func (s *Impl) sendNotification(
	ctx context.Context,
	logger zerolog.Logger,
	cfg models.BackupConfig,
	summary *models.RunSummary,
	failedStep string,
	runErr error,
) {
	msg := models.TelegramMessage{
		Success:          runErr == nil && summary.OK(),
		Host:             cfg.SourceHost,
		Bucket:           cfg.Storage.Bucket,
		RunID:            summary.RunID,
		StartTime:        summary.StartTime,
		Duration:         summary.Duration(),
		Attempted:        summary.Attempted,
		Succeeded:        summary.Succeeded,
		Failed:           summary.Failed,
		BytesTransferred: summary.BytesTransferred,
		RetentionDeleted: summary.RetentionDeleted,
		FailedDatabases:  summary.FailedDatabases(),
	}

	if runErr != nil {
		msg.FailedStep = failedStep
		msg.ErrorMessage = runErr.Error()
	}

	result, err := s.telegramSvc.SendNotification(ctx, *cfg.Telegram, msg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	logger.Info().Msg("Telegram notification sent")
}
