// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StateWritesTotal counts persistent state writes, by store and trigger.
	StateWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plumberd_state_writes_total",
		Help: "Total number of persistent state writes, by store name and trigger (direct/debounced).",
	}, []string{"store", "trigger"})

	// StateWriteErrorsTotal counts failed persistent state writes.
	StateWriteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plumberd_state_write_errors_total",
		Help: "Total number of failed persistent state writes, by store name.",
	}, []string{"store"})

	// ReservationTransitionsTotal counts device reservation ownership transitions.
	ReservationTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plumberd_reservation_transitions_total",
		Help: "Total number of reservation ownership transitions, by target state.",
	}, []string{"state"})
)
