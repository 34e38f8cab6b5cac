// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/adreel/internal/platform/outbound"
	"github.com/ManuGH/adreel/internal/validate"
)

var knownCodecs = []string{"vp9", "vp8", "mjpeg"}

// Validate checks every field and returns all failures at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("dataDir", cfg.DataDir, false)
	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", err.Error(), cfg.LogLevel)
	}

	v.ListenAddr("server.listen", cfg.Server.Listen)
	v.DurationRange("server.shutdownTimeout", cfg.Server.ShutdownTimeout, time.Second, 5*time.Minute)
	if cfg.Server.MaxBodyBytes <= 0 {
		v.AddError("server.maxBodyBytes", "must be positive", cfg.Server.MaxBodyBytes)
	}
	if cfg.Server.RateLimit.Enabled {
		v.Positive("server.rateLimit.requests", cfg.Server.RateLimit.Requests)
		v.DurationRange("server.rateLimit.window", cfg.Server.RateLimit.Window, time.Second, 24*time.Hour)
	}

	r := cfg.Render
	v.Range("render.width", r.Width, 16, 7680)
	v.Range("render.height", r.Height, 16, 4320)
	v.Range("render.fps", r.FPS, 1, 120)
	v.DurationRange("render.titleWindow", r.TitleWindow, 0, 0)
	if len(r.Codecs) == 0 {
		v.AddError("render.codecs", "at least one codec is required", r.Codecs)
	}
	for _, c := range r.Codecs {
		v.OneOf("render.codecs", c, knownCodecs)
	}
	v.Range("render.preloadConcurrency", r.PreloadConcurrency, 1, 64)
	v.Range("render.maxConcurrent", r.MaxConcurrent, 1, 32)
	v.Range("render.jpegQuality", r.JPEGQuality, 1, 100)
	v.Positive("render.retainJobs", r.RetainJobs)
	v.DurationRange("render.artifactTTL", r.ArtifactTTL, 0, 0)

	if !cfg.FFmpeg.Disabled {
		v.NotEmpty("ffmpeg.bin", cfg.FFmpeg.Bin)
		v.DurationRange("ffmpeg.killTimeout", cfg.FFmpeg.KillTimeout, 100*time.Millisecond, time.Minute)
		v.DurationRange("ffmpeg.startTimeout", cfg.FFmpeg.StartTimeout, 0, 0)
		v.DurationRange("ffmpeg.stallTimeout", cfg.FFmpeg.StallTimeout, 0, 0)
	}

	v.DurationRange("assets.timeout", cfg.Assets.Timeout, time.Second, 10*time.Minute)
	if cfg.Assets.MaxBytes <= 0 {
		v.AddError("assets.maxBytes", "must be positive", cfg.Assets.MaxBytes)
	}
	if cfg.Assets.Root != "" {
		v.Directory("assets.root", cfg.Assets.Root, true)
	}
	if cfg.Assets.Outbound.Restrict {
		if _, err := outbound.New(cfg.Assets.Outbound.Policy()); err != nil {
			v.AddError("assets.outbound", err.Error(), cfg.Assets.Outbound)
		}
	}

	p := cfg.Playback
	v.Positive("playback.maxSessions", p.MaxSessions)
	v.DurationRange("playback.tick", p.Tick, 10*time.Millisecond, time.Second)
	v.DurationRange("playback.controlsHide", p.ControlsHide, 0, 0)
	v.DurationRange("playback.idleTimeout", p.IdleTimeout, 0, 0)
	v.DurationRange("playback.sweepInterval", p.SweepInterval, 0, 0)

	if t := cfg.Telemetry; t.Enabled {
		v.NotEmpty("telemetry.serviceName", t.ServiceName)
		v.OneOf("telemetry.exporter", t.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", t.Endpoint)
		v.FloatRange("telemetry.samplingRate", t.SamplingRate, 0, 1)
	}

	return v.Err()
}
