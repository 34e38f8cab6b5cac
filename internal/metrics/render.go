// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RenderJobsTotal counts finished render jobs by result ("done", "failed", "rejected").
	RenderJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_render_jobs_total",
		Help: "Total number of finished render jobs",
	}, []string{"result"})

	// RenderFailuresTotal counts render failures by the phase that failed.
	RenderFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_render_failures_total",
		Help: "Total number of render failures by phase",
	}, []string{"phase"})

	// RenderDuration tracks wall-clock render time by negotiated codec.
	RenderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adreel_render_duration_seconds",
		Help:    "Wall-clock duration of render jobs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5min
	}, []string{"codec"})

	// RenderFramesTotal counts frames handed to encoders.
	RenderFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adreel_render_frames_total",
		Help: "Total number of frames composed and written to an encoder",
	})

	// RenderPreloadDuration tracks the asset preload phase.
	RenderPreloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "adreel_render_preload_duration_seconds",
		Help:    "Duration of the parallel image preload phase",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// RenderJobsActive is the number of render jobs currently running.
	RenderJobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adreel_render_jobs_active",
		Help: "Number of render jobs currently running",
	})
)

// ObserveRenderFailure records a failed job and its failing phase.
func ObserveRenderFailure(phase string) {
	if phase == "" {
		phase = "unknown"
	}
	RenderJobsTotal.WithLabelValues("failed").Inc()
	RenderFailuresTotal.WithLabelValues(phase).Inc()
}
