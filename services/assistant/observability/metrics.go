// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the assistant.
//
// # Description
//
// Counters and histograms covering the turn pipeline: how turns resolve
// (tool, confirmation, model, ...), tool execution outcomes, guard blocks,
// and routing decisions. Exposed on /metrics.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "aleutian"

const assistantSubsystem = "assistant"

// AssistantMetrics holds all Prometheus metrics for the turn pipeline.
// Initialize once at startup via InitMetrics().
type AssistantMetrics struct {
	// TurnsTotal counts turns by how they resolved.
	// Labels: outcome (tool, confirmation_requested, confirmed, cancelled,
	// disambiguation, clarification, model, error)
	TurnsTotal *prometheus.CounterVec

	// ToolExecutionsTotal counts tool runs by tool and status.
	// Labels: tool, status (success, error)
	ToolExecutionsTotal *prometheus.CounterVec

	// GuardBlocksTotal counts model replies replaced by the guard.
	// Labels: pattern
	GuardBlocksTotal *prometheus.CounterVec

	// RoutingDecisionsTotal counts routing decisions by worker and capability.
	// Labels: model, capability
	RoutingDecisionsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures full turn latency.
	// Labels: outcome
	TurnDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently open SSE chat streams.
	ActiveStreams prometheus.Gauge
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *AssistantMetrics

// InitMetrics creates and registers all assistant metrics. Call once at
// startup; a second call panics on duplicate registration.
func InitMetrics() *AssistantMetrics {
	DefaultMetrics = &AssistantMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "turns_total",
				Help:      "Total chat turns by outcome",
			},
			[]string{"outcome"},
		),

		ToolExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "tool_executions_total",
				Help:      "Total tool executions by tool and status",
			},
			[]string{"tool", "status"},
		),

		GuardBlocksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "guard_blocks_total",
				Help:      "Model replies replaced by the action-claim guard",
			},
			[]string{"pattern"},
		),

		RoutingDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "routing_decisions_total",
				Help:      "Routing decisions by chosen worker and capability",
			},
			[]string{"model", "capability"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Full turn latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0, 60.0},
			},
			[]string{"outcome"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "active_streams",
				Help:      "Currently open SSE chat streams",
			},
		),
	}
	return DefaultMetrics
}

// TurnOutcome labels how a turn resolved.
type TurnOutcome string

const (
	OutcomeTool                  TurnOutcome = "tool"
	OutcomeConfirmationRequested TurnOutcome = "confirmation_requested"
	OutcomeConfirmed             TurnOutcome = "confirmed"
	OutcomeCancelled             TurnOutcome = "cancelled"
	OutcomeDisambiguation        TurnOutcome = "disambiguation"
	OutcomeClarification         TurnOutcome = "clarification"
	OutcomeModel                 TurnOutcome = "model"
	OutcomeError                 TurnOutcome = "error"
)

// RecordTurn records one completed turn.
func (m *AssistantMetrics) RecordTurn(outcome TurnOutcome, seconds float64) {
	m.TurnsTotal.WithLabelValues(string(outcome)).Inc()
	m.TurnDurationSeconds.WithLabelValues(string(outcome)).Observe(seconds)
}

// RecordToolExecution records one tool run.
func (m *AssistantMetrics) RecordToolExecution(tool string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, status).Inc()
}

// RecordGuardBlock records a reply replaced by the guard.
func (m *AssistantMetrics) RecordGuardBlock(pattern string) {
	m.GuardBlocksTotal.WithLabelValues(pattern).Inc()
}

// RecordRouting records one routing decision.
func (m *AssistantMetrics) RecordRouting(model, capability string) {
	m.RoutingDecisionsTotal.WithLabelValues(model, capability).Inc()
}

// StreamStarted increments the active streams gauge.
func (m *AssistantMetrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *AssistantMetrics) StreamEnded() {
	m.ActiveStreams.Dec()
}
