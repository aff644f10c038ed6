// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the completion
// study service.
//
// # Description
//
// Metrics cover the request lifecycle (outcomes, filter decisions by
// arm), the provider fan-out (batch latency), and the verification
// protocol. Exposed via the /metrics endpoint for Prometheus scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for completion study metrics
const completionSubsystem = "completion"

// CompletionMetrics holds all Prometheus metrics for the completion
// lifecycle.
//
// Initialize once at startup via InitMetrics().
type CompletionMetrics struct {
	// RequestsTotal counts completion requests by outcome.
	// Labels: outcome (shown, filtered, error)
	RequestsTotal *prometheus.CounterVec

	// FilterDecisionsTotal counts filter decisions by arm and verdict.
	// Labels: arm, filtered (true, false)
	FilterDecisionsTotal *prometheus.CounterVec

	// DispatchDurationSeconds measures provider fan-out wall-clock span.
	DispatchDurationSeconds prometheus.Histogram

	// VerifyRequestsTotal counts verification requests by result.
	// Labels: result (success, unknown_token, already_verified, error)
	VerifyRequestsTotal *prometheus.CounterVec

	// StoreErrorsTotal counts record store failures by operation.
	// Labels: operation (create, update, count)
	StoreErrorsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of CompletionMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *CompletionMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Call once at startup;
// a second call panics on duplicate registration.
func InitMetrics() *CompletionMetrics {
	DefaultMetrics = &CompletionMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: completionSubsystem,
				Name:      "requests_total",
				Help:      "Total completion requests by outcome",
			},
			[]string{"outcome"},
		),

		FilterDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: completionSubsystem,
				Name:      "filter_decisions_total",
				Help:      "Filter decisions by experiment arm and verdict",
			},
			[]string{"arm", "filtered"},
		),

		DispatchDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: completionSubsystem,
				Name:      "dispatch_duration_seconds",
				Help:      "Wall-clock span of the provider fan-out in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),

		VerifyRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: completionSubsystem,
				Name:      "verify_requests_total",
				Help:      "Verification requests by result",
			},
			[]string{"result"},
		),

		StoreErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: completionSubsystem,
				Name:      "store_errors_total",
				Help:      "Record store failures by operation",
			},
			[]string{"operation"},
		),
	}

	return DefaultMetrics
}

// RecordRequest records a completed completion request.
func (m *CompletionMetrics) RecordRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordFilterDecision records one filter verdict.
func (m *CompletionMetrics) RecordFilterDecision(arm string, filtered bool) {
	if m == nil {
		return
	}
	verdict := "false"
	if filtered {
		verdict = "true"
	}
	m.FilterDecisionsTotal.WithLabelValues(arm, verdict).Inc()
}

// RecordDispatch records the fan-out duration.
func (m *CompletionMetrics) RecordDispatch(seconds float64) {
	if m == nil {
		return
	}
	m.DispatchDurationSeconds.Observe(seconds)
}

// RecordVerify records one verification result.
func (m *CompletionMetrics) RecordVerify(result string) {
	if m == nil {
		return
	}
	m.VerifyRequestsTotal.WithLabelValues(result).Inc()
}

// RecordStoreError records one record store failure.
func (m *CompletionMetrics) RecordStoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(operation).Inc()
}
