// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlaybackSessionsActive is the number of live preview sessions.
	PlaybackSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adreel_playback_sessions_active",
		Help: "Number of live preview sessions",
	})

	// PlaybackLoopsTotal counts loop wraps across all preview sessions.
	PlaybackLoopsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adreel_playback_loops_total",
		Help: "Total number of preview loop wraps",
	})

	// PlaybackAutoplayFallbackTotal counts forced-mute fallbacks after a blocked start.
	PlaybackAutoplayFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adreel_playback_autoplay_fallback_total",
		Help: "Total number of blocked unmuted starts that fell back to muted playback",
	})

	// PlaybackTrackErrorsTotal counts swallowed audio track failures by operation.
	PlaybackTrackErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_playback_track_errors_total",
		Help: "Total number of swallowed audio track errors",
	}, []string{"op"})
)
