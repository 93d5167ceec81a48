// Package retention deletes stored backups older than the retention period.
package retention

import (
	"context"
	"path"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/yvsainath/postgres-backup-simple/internal/backuperr"
	"github.com/yvsainath/postgres-backup-simple/internal/models"
	"github.com/yvsainath/postgres-backup-simple/internal/services/storage"
)

// objectNamePattern matches <database>_<YYYYMMDD>_<HHMMSS>.sql.gz.
var objectNamePattern = regexp.MustCompile(`^([A-Za-z0-9_-]+)_([0-9]{8})_([0-9]{6})\.sql\.gz$`)

// Service defines the interface for retention sweeps.
type Service interface {
	Sweep(ctx context.Context, prefix, database string, cutoff models.Date) (*models.RetentionResult, error)
}

// Impl implements the retention Service interface.
type Impl struct {
	storage storage.Service
	logger  zerolog.Logger
}

// New creates a new retention service.
func New(logger zerolog.Logger, storageSvc storage.Service) *Impl {
	return &Impl{
		storage: storageSvc,
		logger:  logger,
	}
}

// Cutoff returns the UTC date of now minus retentionDays. Callers pass the run
// start so the cutoff and the object timestamps share one reference day.
func Cutoff(now time.Time, retentionDays int) models.Date {
	return models.DateOf(now).AddDays(-retentionDays)
}

// ParseCandidate extracts the backup date from an object key. It returns false
// for keys that do not belong to database or do not follow the naming format.
func ParseCandidate(key, database string) (models.RetentionCandidate, bool) {
	m := objectNamePattern.FindStringSubmatch(path.Base(key))
	if m == nil || m[1] != database {
		return models.RetentionCandidate{}, false
	}

	date, err := models.ParseDate(m[2])
	if err != nil {
		return models.RetentionCandidate{}, false
	}
	if _, err := time.Parse("150405", m[3]); err != nil {
		return models.RetentionCandidate{}, false
	}

	return models.RetentionCandidate{
		Key:      key,
		Database: database,
		Date:     date,
	}, true
}

// Sweep deletes the database's backups dated before the cutoff. Objects with
// unrecognised names are left alone. Individual delete failures are recorded
// in the result and do not stop the sweep; only a failed listing is returned
// as an error.
func (s *Impl) Sweep(ctx context.Context, prefix, database string, cutoff models.Date) (*models.RetentionResult, error) {
	start := time.Now()
	result := &models.RetentionResult{
		Database: database,
		Cutoff:   cutoff,
	}

	s.logger.Info().
		Str("database", database).
		Str("cutoff", cutoff.String()).
		Msg("applying retention policy")

	objects, err := s.storage.List(ctx, models.DatabasePrefix(prefix, database))
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	for _, obj := range objects {
		result.Scanned++

		candidate, ok := ParseCandidate(obj.Key, database)
		if !ok {
			result.Ignored++
			s.logger.Debug().Str("key", obj.Key).Msg("ignoring object with unrecognised name")
			continue
		}
		candidate.Size = obj.Size

		if !candidate.Date.Before(cutoff) {
			continue
		}

		if err := s.storage.Delete(ctx, candidate.Key); err != nil {
			delErr := backuperr.New(backuperr.KindRetentionDelete, candidate.Key, err)
			result.Errors = append(result.Errors, delErr)
			s.logger.Error().Err(delErr).Str("key", candidate.Key).Msg("failed to delete expired backup")
			continue
		}

		result.Deleted = append(result.Deleted, candidate.Key)
		s.logger.Info().
			Str("key", candidate.Key).
			Str("backup_date", candidate.Date.String()).
			Int64("size", candidate.Size).
			Msg("deleted expired backup")
	}

	result.Duration = time.Since(start)

	s.logger.Info().
		Str("database", database).
		Int("scanned", result.Scanned).
		Int("deleted", len(result.Deleted)).
		Int("ignored", result.Ignored).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("retention policy applied")

	return result, nil
}
