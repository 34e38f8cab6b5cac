// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/adreel/internal/platform/outbound"
)

// AppConfig is the effective runtime configuration.
type AppConfig struct {
	Version  string `yaml:"-"`
	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"`

	Server    ServerConfig    `yaml:"server"`
	Render    RenderConfig    `yaml:"render"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Assets    AssetsConfig    `yaml:"assets"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
	RateLimit       RateLimit     `yaml:"rateLimit"`
}

// RateLimit is a per-client request budget.
type RateLimit struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// RenderConfig configures the render engine and job manager.
type RenderConfig struct {
	Width              int           `yaml:"width"`
	Height             int           `yaml:"height"`
	FPS                int           `yaml:"fps"`
	TitleWindow        time.Duration `yaml:"titleWindow"`
	Codecs             []string      `yaml:"codecs"`
	PreloadConcurrency int           `yaml:"preloadConcurrency"`
	MaxConcurrent      int           `yaml:"maxConcurrent"`
	Pace               bool          `yaml:"pace"`
	JPEGQuality        int           `yaml:"jpegQuality"`
	RetainJobs         int           `yaml:"retainJobs"`
	ArtifactTTL        time.Duration `yaml:"artifactTTL"`
}

// FFmpegConfig locates the encoder binaries and bounds their runtime.
type FFmpegConfig struct {
	Bin          string        `yaml:"bin"`
	FFprobeBin   string        `yaml:"ffprobeBin"`
	KillTimeout  time.Duration `yaml:"killTimeout"`
	StartTimeout time.Duration `yaml:"startTimeout"`
	StallTimeout time.Duration `yaml:"stallTimeout"`
	// Disabled skips ffmpeg entirely, leaving only the built-in MJPEG/AVI encoder.
	Disabled bool `yaml:"disabled"`
}

// AssetsConfig bounds asset downloads.
type AssetsConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"maxBytes"`
	// Root confines local paths and file:// URLs; empty allows any readable path.
	Root     string         `yaml:"root"`
	Outbound OutboundConfig `yaml:"outbound"`
}

// OutboundConfig restricts remote asset hosts. When Restrict is set, loopback,
// private and link-local addresses are refused unless listed in CIDRs, and a
// non-empty Hosts or CIDRs list admits only those destinations.
type OutboundConfig struct {
	Restrict bool     `yaml:"restrict"`
	Hosts    []string `yaml:"hosts"`
	CIDRs    []string `yaml:"cidrs"`
	Ports    []int    `yaml:"ports"`
}

// Policy converts the config into an outbound policy.
func (o OutboundConfig) Policy() outbound.Policy {
	return outbound.Policy{Hosts: o.Hosts, CIDRs: o.CIDRs, Ports: o.Ports}
}

// PlaybackConfig configures preview sessions.
type PlaybackConfig struct {
	MaxSessions   int           `yaml:"maxSessions"`
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	Tick          time.Duration `yaml:"tick"`
	ControlsHide  time.Duration `yaml:"controlsHide"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	Environment  string  `yaml:"environment"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}
