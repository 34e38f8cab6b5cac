// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RenderJobsQueued counts submitted jobs waiting for a render slot.
	RenderJobsQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adreel_render_jobs_queued",
		Help: "Render jobs waiting for a free render slot",
	})

	// JobStoreErrorsTotal counts failed history writes by operation.
	JobStoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_job_store_errors_total",
		Help: "Render job history store failures by operation",
	}, []string{"op"})
)
