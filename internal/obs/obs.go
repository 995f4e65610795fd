// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package obs centralizes the ambient observability stack shared by every
// Craft Quality Engine component: structured logging, OTel tracing, and
// Prometheus metrics. Grounded on the teacher's own mix of slog.Default()
// plus explicit attributes (services/llm/*) and promauto counters
// (services/trace/agent/routing/escalating_router.go).
package obs

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var (
	mu       sync.RWMutex
	logger   = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	Tracer   = otel.Tracer("craftengine")
)

// SetLogger replaces the package-level logger. Intended for test harnesses
// and cmd/craftd startup wiring.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Logger returns the configured structured logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// WithAttrs returns a logger with the given request/session/project
// attributes attached, mirroring the teacher's per-call slog.Info(..., "k", v)
// idiom but pre-bound so call sites don't repeat the key list.
func WithAttrs(attrs ...any) *slog.Logger {
	return Logger().With(attrs...)
}

// StartSpan begins an OTel span for a top-level RPC, returning the derived
// context and span so callers can set attributes/status and defer End().
func StartSpan(ctx context.Context, name string, opts ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	return Tracer.Start(ctx, name, opts...)
}

// Metrics bundles the Prometheus instruments shared across components. Each
// field mirrors a named instrument in the teacher's routing package
// (counter per outcome, histogram for latency).
type Metrics struct {
	AnalyzeTotal        *prometheus.CounterVec
	AnalyzeLatency      prometheus.Histogram
	EnhancementTotal    *prometheus.CounterVec
	TournamentVariants  *prometheus.CounterVec
	ModelDegradeTotal   *prometheus.CounterVec
	BudgetRefusedTotal  *prometheus.CounterVec
	RetryTotal          *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// M returns the process-wide Metrics instance, initializing it on first use.
func M() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			AnalyzeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "craftengine",
				Subsystem: "analyzer",
				Name:      "analyze_total",
				Help:      "Analyzer calls by outcome: ok, degraded.",
			}, []string{"outcome"}),
			AnalyzeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: "craftengine",
				Subsystem: "analyzer",
				Name:      "analyze_latency_seconds",
				Help:      "Latency of analyze() calls.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			}),
			EnhancementTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "craftengine",
				Subsystem: "enhancement",
				Name:      "outcome_total",
				Help:      "Enhancement outcomes by mode: action_prompt, six_pass, reject.",
			}, []string{"mode"}),
			TournamentVariants: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "craftengine",
				Subsystem: "tournament",
				Name:      "variant_total",
				Help:      "Tournament variants by terminal state: scored, timed_out, error.",
			}, []string{"state"}),
			ModelDegradeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "craftengine",
				Subsystem: "router",
				Name:      "degradation_total",
				Help:      "Model router degradation events by task type.",
			}, []string{"task_type"}),
			BudgetRefusedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "craftengine",
				Subsystem: "router",
				Name:      "budget_refused_total",
				Help:      "Calls refused due to exceeded budget, by project.",
			}, []string{"project_id"}),
			RetryTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "craftengine",
				Subsystem: "transport",
				Name:      "retry_total",
				Help:      "LLM transport retries by provider and reason.",
			}, []string{"provider", "reason"}),
		}
	})
	return metrics
}
