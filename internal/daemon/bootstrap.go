// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ManuGH/adreel/internal/api"
	"github.com/ManuGH/adreel/internal/assets"
	"github.com/ManuGH/adreel/internal/bus"
	"github.com/ManuGH/adreel/internal/config"
	"github.com/ManuGH/adreel/internal/health"
	"github.com/ManuGH/adreel/internal/jobs"
	"github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/media/avi"
	"github.com/ManuGH/adreel/internal/media/ffmpeg"
	"github.com/ManuGH/adreel/internal/platform/httpx"
	"github.com/ManuGH/adreel/internal/platform/outbound"
	"github.com/ManuGH/adreel/internal/playback"
	"github.com/ManuGH/adreel/internal/render"
	"github.com/ManuGH/adreel/internal/render/raster"
	"github.com/ManuGH/adreel/internal/telemetry"
)

// expiryInterval is how often finished render jobs are checked against the TTL.
const expiryInterval = 10 * time.Minute

// Runtime is the assembled service graph.
type Runtime struct {
	Config   config.AppConfig
	Render   *render.Engine
	Jobs     *jobs.Manager
	Previews *playback.Manager
	Health   *health.Manager
	API      *api.Server

	store     *jobs.Store
	telemetry *telemetry.Provider
}

// NewRenderEngine builds the export pipeline: asset loaders, the ffmpeg backend
// unless disabled, and the built-in Motion JPEG fallback.
func NewRenderEngine(cfg config.AppConfig) (*render.Engine, error) {
	fetcher := assets.NewFetcher(httpx.NewClient(cfg.Assets.Timeout))
	fetcher.MaxBytes = cfg.Assets.MaxBytes
	fetcher.Root = cfg.Assets.Root
	if cfg.Assets.Outbound.Restrict {
		guard, err := outbound.New(cfg.Assets.Outbound.Policy())
		if err != nil {
			return nil, fmt.Errorf("outbound policy: %w", err)
		}
		fetcher.Guard = guard
	}

	var (
		backends []render.Backend
		probe    assets.DurationProber
	)
	if !cfg.FFmpeg.Disabled {
		ff := ffmpeg.NewBackend(cfg.FFmpeg.Bin, cfg.FFmpeg.KillTimeout)
		ff.StartTimeout = cfg.FFmpeg.StartTimeout
		ff.StallTimeout = cfg.FFmpeg.StallTimeout
		backends = append(backends, ff)
		probe = assets.FFprobe(cfg.FFmpeg.FFprobeBin)
	}
	mjpeg := avi.NewBackend()
	mjpeg.Quality = cfg.Render.JPEGQuality
	backends = append(backends, mjpeg)

	workDir := filepath.Join(cfg.DataDir, "work")
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	return render.NewEngine(render.Config{
		Width:              cfg.Render.Width,
		Height:             cfg.Render.Height,
		FPS:                cfg.Render.FPS,
		TitleWindow:        cfg.Render.TitleWindow,
		Preferences:        cfg.Render.Codecs,
		PreloadConcurrency: cfg.Render.PreloadConcurrency,
		Pace:               cfg.Render.Pace,
	}, render.Deps{
		Images:   assets.NewImageLoader(fetcher),
		Audio:    assets.NewAudioGraph(fetcher, workDir, probe),
		Backends: backends,
		NewCanvas: func(w, h int) (render.Canvas, error) {
			c, err := raster.NewCanvas(w, h)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	})
}

// Bootstrap assembles every service from cfg. Telemetry failures are logged and
// tolerated; everything else is fatal.
func Bootstrap(ctx context.Context, cfg config.AppConfig) (_ *Runtime, err error) {
	logger := log.WithComponent("bootstrap")
	rt := &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	if cfg.Telemetry.Enabled {
		rt.telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
			Enabled:        true,
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Version,
			Environment:    cfg.Telemetry.Environment,
			ExporterType:   cfg.Telemetry.Exporter,
			Endpoint:       cfg.Telemetry.Endpoint,
			SamplingRate:   cfg.Telemetry.SamplingRate,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("telemetry initialization failed, continuing without tracing")
			rt.telemetry, err = nil, nil
		}
	}

	if rt.Render, err = NewRenderEngine(cfg); err != nil {
		return nil, err
	}
	if rt.store, err = jobs.OpenStore(ctx, filepath.Join(cfg.DataDir, "jobs.sqlite")); err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	events := bus.NewMemoryBus()
	rt.Jobs, err = jobs.NewManager(jobs.Config{
		MaxConcurrent: cfg.Render.MaxConcurrent,
		ArtifactDir:   filepath.Join(cfg.DataDir, "artifacts"),
		Retain:        cfg.Render.RetainJobs,
	}, rt.Render, events, rt.store)
	if err != nil {
		return nil, fmt.Errorf("start render jobs: %w", err)
	}
	rt.Previews = playback.NewManager(playback.ManagerConfig{
		MaxSessions:  cfg.Playback.MaxSessions,
		IdleTimeout:  cfg.Playback.IdleTimeout,
		Tick:         cfg.Playback.Tick,
		ControlsHide: cfg.Playback.ControlsHide,
		Events:       events,
	})

	rt.Health = health.NewManager(cfg.Version)
	rt.Health.RegisterChecker(health.NewDirChecker("data_dir", cfg.DataDir))
	rt.Health.RegisterChecker(health.NewFuncChecker("job_store", 2*time.Second, rt.store.Ping))
	if !cfg.FFmpeg.Disabled {
		enc := health.NewFuncChecker("encoder", 10*time.Second, func(ctx context.Context) error {
			formats := rt.Render.Formats(ctx)
			if !slices.ContainsFunc(formats, render.Format.HasAudio) {
				return errors.New("only the silent mjpeg fallback is available")
			}
			return nil
		})
		enc.Optional = true
		rt.Health.RegisterChecker(enc)
	}

	rt.API, err = api.New(cfg, api.Deps{
		Previews: rt.Previews,
		Renders:  rt.Jobs,
		Composer: rt.Render,
		Health:   rt.Health,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// Daemon returns a manager running the API server, the preview sweeper and the
// render job expiry, with shutdown hooks releasing the runtime.
func (rt *Runtime) Daemon() (*Manager, error) {
	cfg := rt.Config
	m, err := NewManager(Deps{
		Logger:     log.WithComponent("daemon"),
		Server:     cfg.Server,
		APIHandler: rt.API.Handler(),
		Workers: []Worker{
			{Name: "preview-sweeper", Run: func(ctx context.Context) error {
				return rt.Previews.Run(ctx, cfg.Playback.SweepInterval)
			}},
			{Name: "render-expiry", Run: func(ctx context.Context) error {
				rt.Jobs.Run(ctx, expiryInterval, cfg.Render.ArtifactTTL)
				return nil
			}},
		},
	})
	if err != nil {
		return nil, err
	}
	m.RegisterShutdownHook("runtime", rt.Close)
	return m, nil
}

// Close stops render jobs, drops previews and releases the store and exporter.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Previews != nil {
		rt.Previews.CloseAll()
	}
	if rt.Jobs != nil {
		if err := rt.Jobs.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("render jobs: %w", err))
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("job store: %w", err))
		}
	}
	if rt.telemetry != nil {
		if err := rt.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
