// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the plumberd core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No cardinality explosion: event types and hook names are bounded by
// the installed policy, never by runtime objects.

var (
	// EventsPushedTotal counts events accepted into the pending queue, by type.
	EventsPushedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plumberd_events_pushed_total",
		Help: "Total number of events pushed to the dispatcher, by event type.",
	}, []string{"type"})

	// EventsDispatchedTotal counts completed event dispatches, by outcome.
	EventsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plumberd_events_dispatched_total",
		Help: "Total number of dispatched events, by outcome (completed/cancelled).",
	}, []string{"outcome"})

	// HookRunsTotal counts hook executions, by hook and result.
	HookRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plumberd_hook_runs_total",
		Help: "Total number of hook executions, by hook name and result (ok/error/skipped).",
	}, []string{"hook", "result"})

	// OrderingCyclesTotal counts hook ordering cycles detected at schedule time.
	OrderingCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plumberd_ordering_cycles_total",
		Help: "Total number of hook ordering cycles detected and skipped.",
	})

	// QueueDepth tracks the current pending event queue depth.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plumberd_event_queue_depth",
		Help: "Current number of events waiting for dispatch.",
	})

	// DispatchDuration observes per-event dispatch latency.
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plumberd_dispatch_duration_seconds",
		Help:    "Time spent dispatching a single event across all its hooks.",
		Buckets: prometheus.DefBuckets,
	})
)

// IncHookRun records one hook execution result.
func IncHookRun(hook, result string) {
	HookRunsTotal.WithLabelValues(hook, result).Inc()
}
