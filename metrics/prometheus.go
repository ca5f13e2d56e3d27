// Package metrics provides Prometheus metrics for the HICP pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	StageRunsTotal *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	RowsDecoded    prometheus.Counter
	RowsLoaded     prometheus.Counter
	ChecksFailed   *prometheus.CounterVec
}

// New creates and registers the pipeline metrics
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		StageRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage executions by stage and status",
		}, []string{"stage", "status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Stage execution duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		RowsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_decoded_total",
			Help:      "Observation rows produced by the decoder",
		}),
		RowsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Observation rows upserted into the fact table",
		}),
		ChecksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_checks_failed_total",
			Help:      "Quality check failures by check name",
		}, []string{"check"}),
	}

	registry.MustRegister(
		m.StageRunsTotal,
		m.StageDuration,
		m.RowsDecoded,
		m.RowsLoaded,
		m.ChecksFailed,
	)
	return m
}

// ObserveStage records one stage execution
func (m *Metrics) ObserveStage(stage string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StageRunsTotal.WithLabelValues(stage, status).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler returns the scrape endpoint for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
