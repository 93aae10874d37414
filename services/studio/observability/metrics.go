// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the studio
// service: request counters, chat latency, and export outcomes.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "trajectorystudio"

// StudioMetrics holds all Prometheus metrics for the studio service.
// Initialize once at startup via NewStudioMetrics().
type StudioMetrics struct {
	// RequestsTotal counts API requests by endpoint and status.
	// Labels: endpoint (chat, replace, save, load, export, filter, op), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ChatDurationSeconds measures the full chat round trip, tool
	// dispatch included.
	ChatDurationSeconds prometheus.Histogram

	// ChatToolCallsTotal counts tool calls the model issued, by tool name.
	ChatToolCallsTotal *prometheus.CounterVec

	// ExportsTotal counts export attempts by source format and outcome.
	// Labels: format (legacy, annotation), status (success, validation_error, error)
	ExportsTotal *prometheus.CounterVec

	// ActiveChats tracks chat requests currently in flight.
	ActiveChats prometheus.Gauge
}

// NewStudioMetrics creates and registers all studio metrics with the
// given registerer. Pass prometheus.DefaultRegisterer in production and
// a fresh prometheus.NewRegistry() in tests to avoid double-register
// panics.
func NewStudioMetrics(reg prometheus.Registerer) *StudioMetrics {
	factory := promauto.With(reg)

	return &StudioMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total API requests by endpoint and status.",
			},
			[]string{"endpoint", "status"},
		),
		ChatDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "chat_duration_seconds",
				Help:      "Duration of chat round trips in seconds.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		ChatToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "chat_tool_calls_total",
				Help:      "Tool calls issued by the model, by tool name.",
			},
			[]string{"tool"},
		),
		ExportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "exports_total",
				Help:      "Export attempts by source format and outcome.",
			},
			[]string{"format", "status"},
		),
		ActiveChats: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "active_chats",
				Help:      "Chat requests currently in flight.",
			},
		),
	}
}
