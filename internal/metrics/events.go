// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsDroppedTotal counts job and preview events a watcher did not receive.
	// Topics are "<stream>.<id>"; only the stream kind is used as a label.
	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_events_dropped_total",
		Help: "Render and preview events dropped for slow watchers, by stream and reason",
	}, []string{"stream", "reason"})
)

// StreamOf returns the stream kind of an event topic ("render.<id>" -> "render").
func StreamOf(topic string) string {
	kind, _, _ := strings.Cut(topic, ".")
	if kind == "" {
		return "unknown"
	}
	return kind
}

// IncEventDrop records one event dropped on topic.
func IncEventDrop(topic, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	EventsDroppedTotal.WithLabelValues(StreamOf(topic), reason).Inc()
}
