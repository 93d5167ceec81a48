package models

import "time"

// RunSummary aggregates the outcome of a run.
type RunSummary struct {
	RunID            string
	StartTime        time.Time
	EndTime          time.Time
	Attempted        int
	Succeeded        int
	Failed           int
	BytesTransferred int64
	RetentionDeleted int
	RetentionErrors  int
	Jobs             []*BackupJob
}

// NewRunSummary starts a summary for a run.
func NewRunSummary(runID string, start time.Time) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		StartTime: start,
	}
}

// Record adds a finished job to the summary.
func (s *RunSummary) Record(job *BackupJob) {
	s.Attempted++
	s.Jobs = append(s.Jobs, job)
	if job.Succeeded() {
		s.Succeeded++
		s.BytesTransferred += job.BytesUploaded
		return
	}
	s.Failed++
}

// Finish stamps the end time.
func (s *RunSummary) Finish(end time.Time) {
	s.EndTime = end
}

// Duration returns the elapsed wall-clock time of the run.
func (s *RunSummary) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// OK reports whether every attempted database was backed up.
func (s *RunSummary) OK() bool {
	return s.Failed == 0 && s.Succeeded == s.Attempted
}

// ExitCode returns 0 when the run succeeded and 1 otherwise.
func (s *RunSummary) ExitCode() int {
	if s.OK() {
		return 0
	}
	return 1
}

// FailedDatabases lists the databases that did not succeed.
func (s *RunSummary) FailedDatabases() []string {
	var names []string
	for _, job := range s.Jobs {
		if !job.Succeeded() {
			names = append(names, job.Database)
		}
	}
	return names
}
