// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:  "data",
		LogLevel: "info",
		Server: ServerConfig{
			Listen:          ":8088",
			ReadTimeout:     30 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20,
			RateLimit: RateLimit{
				Enabled:  true,
				Requests: 120,
				Window:   time.Minute,
			},
		},
		Render: RenderConfig{
			Width:              1920,
			Height:             1080,
			FPS:                30,
			TitleWindow:        3 * time.Second,
			Codecs:             []string{"vp9", "vp8", "mjpeg"},
			PreloadConcurrency: 8,
			MaxConcurrent:      1,
			Pace:               true,
			JPEGQuality:        90,
			RetainJobs:         100,
			ArtifactTTL:        24 * time.Hour,
		},
		FFmpeg: FFmpegConfig{
			Bin:          "ffmpeg",
			KillTimeout:  5 * time.Second,
			StartTimeout: 20 * time.Second,
			StallTimeout: 30 * time.Second,
		},
		Assets: AssetsConfig{
			Timeout:  30 * time.Second,
			MaxBytes: 64 << 20,
		},
		Playback: PlaybackConfig{
			MaxSessions:   256,
			IdleTimeout:   10 * time.Minute,
			Tick:          100 * time.Millisecond,
			ControlsHide:  3 * time.Second,
			SweepInterval: time.Minute,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "adreel",
			Environment:  "production",
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
