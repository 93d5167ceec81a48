package models

import (
	"fmt"
	"path"
	"time"
)

// TimestampLayout is the run-wide timestamp token format (YYYYMMDD_HHMMSS).
const TimestampLayout = "20060102_150405"

// ArtifactSuffix is appended to every backup object name.
const ArtifactSuffix = ".sql.gz"

// JobStatus is the terminal state of a BackupJob.
type JobStatus string

// Job statuses.
const (
	JobPending JobStatus = "pending"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
	JobSkipped JobStatus = "skipped"
)

// BackupJob tracks one database within a single run.
type BackupJob struct {
	Database      string
	Timestamp     string
	ArtifactPath  string
	ObjectKey     string
	Status        JobStatus
	SkipReason    string
	BytesUploaded int64
	Attempts      int
	Duration      time.Duration
	Error         error
}

// ObjectName returns the file name of a backup for a database and timestamp token.
func ObjectName(database, timestamp string) string {
	return fmt.Sprintf("%s_%s%s", database, timestamp, ArtifactSuffix)
}

// DatabasePrefix returns the key prefix under which a database's backups live.
func DatabasePrefix(prefix, database string) string {
	return path.Join(prefix, database) + "/"
}

// ObjectKey returns prefix/database/database_timestamp.sql.gz.
func ObjectKey(prefix, database, timestamp string) string {
	return path.Join(prefix, database, ObjectName(database, timestamp))
}

// Succeeded reports whether the job reached JobSuccess.
func (j *BackupJob) Succeeded() bool {
	return j.Status == JobSuccess
}
