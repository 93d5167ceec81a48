// Package metrics publishes run results to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"
	"github.com/yvsainath/postgres-backup-simple/internal/models"
)

// JobName is the Pushgateway job the run metrics are grouped under.
const JobName = "pgbackup"

const namespace = "pgbackup"

// Pusher defines the interface for publishing run metrics.
type Pusher interface {
	Push(ctx context.Context, instance string, summary *models.RunSummary) error
}

// Impl pushes run metrics to a Pushgateway.
type Impl struct {
	url    string
	client push.HTTPDoer
	logger zerolog.Logger
}

// New creates a new Pushgateway pusher.
func New(logger zerolog.Logger, url string) *Impl {
	return NewWithClient(logger, url, &http.Client{Timeout: 30 * time.Second})
}

// NewWithClient creates a pusher with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, url string, client push.HTTPDoer) *Impl {
	return &Impl{
		url:    url,
		client: client,
		logger: logger,
	}
}

// Registry builds a registry holding the gauges for a finished run.
func Registry(summary *models.RunSummary) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, value float64) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
		g.Set(value)
		reg.MustRegister(g)
	}

	gauge("databases_total", "Databases attempted in the last run.", float64(summary.Attempted))
	gauge("databases_succeeded", "Databases backed up successfully in the last run.", float64(summary.Succeeded))
	gauge("databases_failed", "Databases that failed or were skipped in the last run.", float64(summary.Failed))
	gauge("bytes_uploaded", "Compressed bytes uploaded in the last run.", float64(summary.BytesTransferred))
	gauge("duration_seconds", "Wall-clock duration of the last run.", summary.Duration().Seconds())
	gauge("retention_deleted", "Expired backups deleted in the last run.", float64(summary.RetentionDeleted))
	if summary.OK() {
		gauge("last_success_timestamp_seconds", "Unix time of the last fully successful run.", float64(summary.EndTime.Unix()))
	}

	status := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "database_success",
		Help:      "1 if the database was backed up in the last run, 0 otherwise.",
	}, []string{"database"})
	for _, job := range summary.Jobs {
		value := 0.0
		if job.Succeeded() {
			value = 1
		}
		status.WithLabelValues(job.Database).Set(value)
	}
	reg.MustRegister(status)

	return reg
}

// Push replaces the metrics of this instance on the Pushgateway.
func (p *Impl) Push(ctx context.Context, instance string, summary *models.RunSummary) error {
	p.logger.Debug().
		Str("url", p.url).
		Str("instance", instance).
		Msg("pushing run metrics")

	err := push.New(p.url, JobName).
		Client(p.client).
		Gatherer(Registry(summary)).
		Grouping("instance", instance).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}

	p.logger.Info().Str("url", p.url).Msg("run metrics pushed")
	return nil
}
