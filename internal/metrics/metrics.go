// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

// Package metrics holds the Prometheus collectors for every GadgetGrove
// component. Collectors are registered on the default registry via promauto
// and exposed by the HTTP API on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultNoop    = "noop"
)

var (
	// Publisher
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gadgetgrove_publish_total",
			Help: "Events published to the broker by queue and result",
		},
		[]string{"queue", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gadgetgrove_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Consumer
	ConsumerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gadgetgrove_consumer_messages_total",
			Help: "Messages handled by the queue consumer by queue and outcome (ack, nack_parse, nack_write)",
		},
		[]string{"queue", "outcome"},
	)

	LandingWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gadgetgrove_landing_write_duration_seconds",
			Help:    "Time to durably write one landing file",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	// Staging pipeline
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gadgetgrove_pipeline_runs_total",
			Help: "Staging pipeline runs by result (success, failure, noop)",
		},
		[]string{"result"},
	)

	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gadgetgrove_pipeline_run_duration_seconds",
			Help:    "Duration of staging pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	PipelineFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gadgetgrove_pipeline_files_total",
			Help: "Files moved by the staging pipeline by stage (staged, archived)",
		},
		[]string{"stage"},
	)

	PipelineLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gadgetgrove_pipeline_last_success_timestamp_seconds",
			Help: "Unix time of the last successful pipeline run",
		},
	)

	ProcessingBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gadgetgrove_processing_backlog_files",
			Help: "Files left in the processing area after the last run",
		},
	)

	// Transform step
	TransformDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gadgetgrove_transform_duration_seconds",
			Help:    "Duration of Transform Step invocations",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	TransformAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gadgetgrove_transform_attempts_total",
			Help: "Transform Step invocations by result",
		},
		[]string{"result"},
	)

	TransformRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gadgetgrove_transform_rows_total",
			Help: "Rows accepted into the warehouse by queue",
		},
		[]string{"queue"},
	)

	// Retention sweeper
	SweepDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gadgetgrove_sweep_deleted_files_total",
			Help: "Archived files deleted by the retention sweeper by queue",
		},
		[]string{"queue"},
	)

	SweepErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gadgetgrove_sweep_errors_total",
			Help: "Archived files the retention sweeper failed to delete",
		},
	)

	// Emitter
	EmitterSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gadgetgrove_emitter_sessions_total",
			Help: "Synthetic sessions emitted by outcome (purchase, checkout_error)",
		},
		[]string{"outcome"},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gadgetgrove_api_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gadgetgrove_api_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordPublish records one publish attempt.
func RecordPublish(queue string, err error) {
	PublishTotal.WithLabelValues(queue, resultOf(err)).Inc()
}

// RecordConsumed records how the consumer settled one message.
func RecordConsumed(queue, outcome string) {
	ConsumerMessagesTotal.WithLabelValues(queue, outcome).Inc()
}

// RecordPipelineRun records a finished pipeline run.
func RecordPipelineRun(result string, staged, archived int, duration time.Duration) {
	PipelineRunsTotal.WithLabelValues(result).Inc()
	PipelineRunDuration.Observe(duration.Seconds())
	PipelineFilesTotal.WithLabelValues("staged").Add(float64(staged))
	PipelineFilesTotal.WithLabelValues("archived").Add(float64(archived))
	if result == ResultSuccess {
		PipelineLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordTransform records a single Transform Step invocation.
func RecordTransform(duration time.Duration, perQueue map[string]int, err error) {
	TransformDuration.Observe(duration.Seconds())
	TransformAttemptsTotal.WithLabelValues(resultOf(err)).Inc()
	for queue, n := range perQueue {
		TransformRowsTotal.WithLabelValues(queue).Add(float64(n))
	}
}

// RecordSweep records deletions from one sweeper pass.
func RecordSweep(deleted map[string]int, failures int) {
	for queue, n := range deleted {
		SweepDeletedTotal.WithLabelValues(queue).Add(float64(n))
	}
	SweepErrorsTotal.Add(float64(failures))
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func resultOf(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
