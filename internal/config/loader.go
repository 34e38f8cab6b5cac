// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the runtime configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/adreel/internal/log"
)

// ErrUnknownConfigField classifies strict YAML failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader loads configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every environment key the loader read.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader for the optional YAML file at configPath.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) consume(key string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) envString(key, def string) string { return ParseString(l.consume(key), def) }
func (l *Loader) envInt(key string, def int) int   { return ParseInt(l.consume(key), def) }
func (l *Loader) envInt64(key string, def int64) int64 {
	return ParseInt64(l.consume(key), def)
}
func (l *Loader) envBool(key string, def bool) bool { return ParseBool(l.consume(key), def) }
func (l *Loader) envFloat(key string, def float64) float64 {
	return ParseFloat(l.consume(key), def)
}
func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	return ParseDuration(l.consume(key), def)
}
func (l *Loader) envList(key string, def []string) []string { return ParseList(l.consume(key), def) }

// Load parses the file strictly, applies the environment, resolves paths and validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	l.warnUnknownEnv()

	cfg.FFmpeg.FFprobeBin = ResolveFFprobeBin(cfg.FFmpeg.FFprobeBin, cfg.FFmpeg.Bin)
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the YAML file over cfg. Unknown keys and multiple documents fail.
func loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}
	// #nosec G304 -- the config path is chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)

	s := &cfg.Server
	s.Listen = l.envString("LISTEN", s.Listen)
	s.ReadTimeout = l.envDuration("SERVER_READ_TIMEOUT", s.ReadTimeout)
	s.IdleTimeout = l.envDuration("SERVER_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = l.envDuration("SERVER_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = l.envInt64("SERVER_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.RateLimit.Enabled = l.envBool("RATELIMIT_ENABLED", s.RateLimit.Enabled)
	s.RateLimit.Requests = l.envInt("RATELIMIT_REQUESTS", s.RateLimit.Requests)
	s.RateLimit.Window = l.envDuration("RATELIMIT_WINDOW", s.RateLimit.Window)

	r := &cfg.Render
	r.Width = l.envInt("RENDER_WIDTH", r.Width)
	r.Height = l.envInt("RENDER_HEIGHT", r.Height)
	r.FPS = l.envInt("RENDER_FPS", r.FPS)
	r.TitleWindow = l.envDuration("RENDER_TITLE_WINDOW", r.TitleWindow)
	r.Codecs = l.envList("RENDER_CODECS", r.Codecs)
	r.PreloadConcurrency = l.envInt("RENDER_PRELOAD_CONCURRENCY", r.PreloadConcurrency)
	r.MaxConcurrent = l.envInt("RENDER_MAX_CONCURRENT", r.MaxConcurrent)
	r.Pace = l.envBool("RENDER_PACE", r.Pace)
	r.JPEGQuality = l.envInt("RENDER_JPEG_QUALITY", r.JPEGQuality)
	r.RetainJobs = l.envInt("RENDER_RETAIN_JOBS", r.RetainJobs)
	r.ArtifactTTL = l.envDuration("RENDER_ARTIFACT_TTL", r.ArtifactTTL)

	f := &cfg.FFmpeg
	f.Bin = l.envString("FFMPEG_BIN", f.Bin)
	f.FFprobeBin = l.envString("FFPROBE_BIN", f.FFprobeBin)
	f.KillTimeout = l.envDuration("FFMPEG_KILL_TIMEOUT", f.KillTimeout)
	f.StartTimeout = l.envDuration("FFMPEG_START_TIMEOUT", f.StartTimeout)
	f.StallTimeout = l.envDuration("FFMPEG_STALL_TIMEOUT", f.StallTimeout)
	f.Disabled = l.envBool("FFMPEG_DISABLED", f.Disabled)

	a := &cfg.Assets
	a.Timeout = l.envDuration("ASSETS_TIMEOUT", a.Timeout)
	a.MaxBytes = l.envInt64("ASSETS_MAX_BYTES", a.MaxBytes)
	a.Root = l.envString("ASSETS_ROOT", a.Root)
	a.Outbound.Restrict = l.envBool("ASSETS_OUTBOUND_RESTRICT", a.Outbound.Restrict)
	a.Outbound.Hosts = l.envList("ASSETS_OUTBOUND_HOSTS", a.Outbound.Hosts)
	a.Outbound.CIDRs = l.envList("ASSETS_OUTBOUND_CIDRS", a.Outbound.CIDRs)

	p := &cfg.Playback
	p.MaxSessions = l.envInt("PLAYBACK_MAX_SESSIONS", p.MaxSessions)
	p.IdleTimeout = l.envDuration("PLAYBACK_IDLE_TIMEOUT", p.IdleTimeout)
	p.Tick = l.envDuration("PLAYBACK_TICK", p.Tick)
	p.ControlsHide = l.envDuration("PLAYBACK_CONTROLS_HIDE", p.ControlsHide)
	p.SweepInterval = l.envDuration("PLAYBACK_SWEEP_INTERVAL", p.SweepInterval)

	t := &cfg.Telemetry
	t.Enabled = l.envBool("TELEMETRY_ENABLED", t.Enabled)
	t.ServiceName = l.envString("TELEMETRY_SERVICE_NAME", t.ServiceName)
	t.Environment = l.envString("TELEMETRY_ENVIRONMENT", t.Environment)
	t.Exporter = l.envString("TELEMETRY_EXPORTER", t.Exporter)
	t.Endpoint = l.envString("TELEMETRY_ENDPOINT", t.Endpoint)
	t.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", t.SamplingRate)
}

// knownNonLoaderEnv are prefixed keys read outside the loader.
var knownNonLoaderEnv = []string{EnvPrefix + "CONFIG"}

// UnknownEnvKeys returns prefixed environment keys the loader did not read.
func (l *Loader) UnknownEnvKeys() []string {
	var unknown []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) || slices.Contains(knownNonLoaderEnv, key) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func (l *Loader) warnUnknownEnv() {
	if unknown := l.UnknownEnvKeys(); len(unknown) > 0 {
		logger := log.WithComponent("config")
		logger.Warn().Strs("keys", unknown).Msg("ignoring unknown environment variables")
	}
}

// ResolveFFprobeBin returns the configured ffprobe, else the ffprobe next to an
// explicit ffmpeg path, else "ffprobe" from PATH.
func ResolveFFprobeBin(ffprobeBin, ffmpegBin string) string {
	return resolveFFprobeBin(ffprobeBin, ffmpegBin, os.Stat)
}

func resolveFFprobeBin(ffprobeBin, ffmpegBin string, stat func(string) (os.FileInfo, error)) string {
	if v := strings.TrimSpace(ffprobeBin); v != "" {
		return v
	}
	ffmpegBin = strings.TrimSpace(ffmpegBin)
	if strings.ContainsRune(ffmpegBin, filepath.Separator) {
		dir, base := filepath.Split(ffmpegBin)
		candidate := filepath.Join(dir, strings.Replace(base, "ffmpeg", "ffprobe", 1))
		if candidate != ffmpegBin {
			if fi, err := stat(candidate); err == nil && !fi.IsDir() {
				return candidate
			}
		}
	}
	return "ffprobe"
}
