// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package metrics collects per-job Prometheus metrics. Jobs are short-lived
// batch processes, so metrics are pushed to a Pushgateway when the job ends
// instead of being scraped.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Job holds the metrics of one job run. A nil *Job is valid and records
// nothing.
type Job struct {
	kind     string
	registry *prometheus.Registry

	Units        *prometheus.CounterVec
	UnitDuration prometheus.Histogram
	Rows         *prometheus.CounterVec
	Checks       *prometheus.CounterVec
	LastFinished prometheus.Gauge
}

// NewJob creates the metrics of a job of the given kind.
func NewJob(kind string) *Job {
	j := &Job{
		kind:     kind,
		registry: prometheus.NewRegistry(),
		Units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_job_units_total",
			Help: "Tenants processed by the job, by outcome.",
		}, []string{"status"}),
		UnitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "repairdesk_job_unit_duration_seconds",
			Help:    "Time spent on a single tenant.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		Rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_migrated_rows_total",
			Help: "Rows copied into tenant stores, by table.",
		}, []string{"table"}),
		Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_validation_checks_total",
			Help: "Validation checks executed, by result.",
		}, []string{"result"}),
		LastFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "repairdesk_job_last_finished_timestamp_seconds",
			Help: "Unix time the job finished.",
		}),
	}
	j.registry.MustRegister(j.Units, j.UnitDuration, j.Rows, j.Checks, j.LastFinished)
	return j
}

// Registry exposes the job's registry, mostly for tests.
func (j *Job) Registry() *prometheus.Registry {
	if j == nil {
		return nil
	}
	return j.registry
}

// ObserveUnit records one finished tenant.
func (j *Job) ObserveUnit(status string, d time.Duration) {
	if j == nil {
		return
	}
	j.Units.WithLabelValues(status).Inc()
	j.UnitDuration.Observe(d.Seconds())
}

// AddRows counts rows copied into table.
func (j *Job) AddRows(table string, n int) {
	if j == nil || n <= 0 {
		return
	}
	j.Rows.WithLabelValues(table).Add(float64(n))
}

// ObserveCheck counts one validation check.
func (j *Job) ObserveCheck(passed bool) {
	if j == nil {
		return
	}
	if passed {
		j.Checks.WithLabelValues("passed").Inc()
		return
	}
	j.Checks.WithLabelValues("failed").Inc()
}

// Push stamps the finish time and pushes everything to the Pushgateway at
// url, grouped by job kind. An empty url disables pushing.
func (j *Job) Push(ctx context.Context, url string) error {
	if j == nil || url == "" {
		return nil
	}
	j.LastFinished.Set(float64(time.Now().Unix()))
	return push.New(url, "repairdesk").
		Gatherer(j.registry).
		Grouping("kind", j.kind).
		PushContext(ctx)
}
