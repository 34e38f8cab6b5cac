// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package render exports a timeline as a video file: parallel image preload,
// a deterministic frame loop paced at the output frame rate, and an atomic commit.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	xglog "github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/metrics"
	"github.com/ManuGH/adreel/internal/telemetry"
	"github.com/ManuGH/adreel/internal/timeline"
)

// Config holds render parameters.
type Config struct {
	Width       int
	Height      int
	FPS         int
	TitleWindow time.Duration
	Preferences []string
	// PreloadConcurrency bounds parallel image loads.
	PreloadConcurrency int
	// LoadTimeout bounds one shared image load.
	LoadTimeout time.Duration
	// Pace emits frames at the nominal frame interval. Disable only for encoders
	// that do not consume a live stream.
	Pace bool
}

const defaultLoadTimeout = time.Minute

// DefaultConfig returns the 1080p30 defaults.
func DefaultConfig() Config {
	return Config{
		Width:              1920,
		Height:             1080,
		FPS:                30,
		TitleWindow:        3 * time.Second,
		Preferences:        DefaultPreferences,
		PreloadConcurrency: 8,
		LoadTimeout:        defaultLoadTimeout,
		Pace:               true,
	}
}

// Deps are the engine's capabilities.
type Deps struct {
	Images    ImageLoader
	Audio     AudioGraph
	Backends  []Backend
	NewCanvas CanvasFactory
	// NewPacer overrides the frame pacer; nil uses a rate.Limiter.
	NewPacer func(fps int) Pacer
}

// Request is one export.
type Request struct {
	ID        string
	Timeline  timeline.Timeline
	OutputDir string
	Progress  ProgressFunc
	// OnState is called after every lifecycle transition.
	OnState StateFunc
}

// Artifact is a committed export.
type Artifact struct {
	JobID    string        `json:"jobId"`
	Path     string        `json:"-"`
	Filename string        `json:"filename"`
	MIMEType string        `json:"mimeType"`
	Codec    string        `json:"codec"`
	Frames   int           `json:"frames"`
	Size     int64         `json:"size"`
	Duration time.Duration `json:"duration"`
}

// Engine renders timelines. It is safe for concurrent use; each Render call owns
// its own canvas, encoder, pacer and job state.
type Engine struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	tracer trace.Tracer
	loads  singleflight.Group
}

// NewEngine validates cfg and deps.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("render: invalid canvas size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("render: invalid frame rate %d", cfg.FPS)
	}
	if cfg.PreloadConcurrency <= 0 {
		cfg.PreloadConcurrency = 1
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if len(cfg.Preferences) == 0 {
		cfg.Preferences = DefaultPreferences
	}
	if deps.Images == nil || deps.NewCanvas == nil {
		return nil, errors.New("render: image loader and canvas factory are required")
	}
	if deps.NewPacer == nil {
		pace := cfg.Pace
		deps.NewPacer = func(fps int) Pacer {
			if !pace {
				return rate.NewLimiter(rate.Inf, 1)
			}
			return rate.NewLimiter(rate.Every(time.Second/time.Duration(fps)), 1)
		}
	}
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		logger: xglog.WithComponent("render"),
		tracer: telemetry.Tracer("adreel.render"),
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// TotalFrames is ceil(duration × fps).
func TotalFrames(duration float64, fps int) int {
	if duration <= 0 || fps <= 0 {
		return 0
	}
	// round away float noise such as 12.1*30 = 363.00000000000006
	n := math.Round(duration*float64(fps)*1e6) / 1e6
	return int(math.Ceil(n))
}

// Formats returns every format offered by the configured backends, in backend order.
func (e *Engine) Formats(ctx context.Context) []Format {
	formats, _ := e.available(ctx)
	return formats
}

func (e *Engine) available(ctx context.Context) ([]Format, map[string]Backend) {
	var formats []Format
	owners := make(map[string]Backend)
	for _, b := range e.deps.Backends {
		fs, err := b.Formats(ctx)
		if err != nil {
			e.logger.Warn().Err(err).Str(xglog.FieldEncoder, b.Name()).Msg("encoder backend unavailable")
			continue
		}
		for _, f := range fs {
			if _, taken := owners[f.Name]; taken {
				continue
			}
			owners[f.Name] = b
			formats = append(formats, f)
		}
	}
	return formats, owners
}

// Render runs one export job to completion. On failure the pending output is
// discarded, progress is reset to 0 and a *JobError is returned. A timeline with
// no segments is rejected with ErrNoContent before any work starts.
func (e *Engine) Render(ctx context.Context, req Request) (_ *Artifact, err error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	tl := req.Timeline
	if tl.Empty() {
		metrics.RenderJobsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrNoContent
	}

	ctx = xglog.ContextWithJobID(ctx, req.ID)
	logger := xglog.WithContext(ctx, e.logger)
	frames := TotalFrames(tl.TotalDuration, e.cfg.FPS)
	ctx, span := e.tracer.Start(ctx, "adreel.render.job",
		trace.WithAttributes(telemetry.RenderAttributes(req.ID, len(tl.Segments), frames, e.cfg.FPS, e.cfg.Width, e.cfg.Height)...))
	defer span.End()

	metrics.RenderJobsActive.Inc()
	defer metrics.RenderJobsActive.Dec()
	started := time.Now()

	j := newJob(req.ID, req.Progress, req.OnState, logger)
	var (
		enc     Encoder
		pending *renameio.PendingFile
		mix     *AudioMix
	)
	defer func() {
		if err == nil {
			return
		}
		phase := j.state()
		if enc != nil {
			enc.Abort()
		}
		if pending != nil {
			if cerr := pending.Cleanup(); cerr != nil {
				logger.Debug().Err(cerr).Msg("cleanup pending render output")
			}
		}
		mix.Release()
		if phase != StateIdle && phase != StateFailed && phase != StateDone {
			_ = j.fire(ctx, EventFail)
		}
		j.reset()
		metrics.ObserveRenderFailure(string(phase))
		telemetry.Fail(span, err, string(phase))
		logger.Error().Err(err).Str(xglog.FieldPhase, string(phase)).Str(xglog.FieldEvent, "render.failed").Msg("render job failed")
		err = &JobError{JobID: req.ID, Phase: phase, Err: err}
	}()

	if err := j.fire(ctx, EventStart); err != nil {
		return nil, err
	}
	logger.Info().Str(xglog.FieldEvent, "render.start").Int(xglog.FieldFrames, frames).Msg("render job started")

	images, err := e.preload(ctx, tl.ImageRefs())
	if err != nil {
		return nil, err
	}
	j.report(ProgressPreloaded)

	canvas, err := e.deps.NewCanvas(e.cfg.Width, e.cfg.Height)
	if err != nil {
		return nil, fmt.Errorf("allocate canvas: %w", err)
	}
	if e.deps.Audio != nil && tl.HasAudio() {
		if mix, err = e.deps.Audio.Prepare(ctx, tl); err != nil {
			return nil, fmt.Errorf("prepare audio: %w", err)
		}
	}
	j.report(ProgressReady)

	formats, owners := e.available(ctx)
	format, err := Negotiate(e.cfg.Preferences, formats)
	if err != nil {
		return nil, err
	}
	backend := owners[format.Name]
	span.SetAttributes(telemetry.EncodeAttributes(format.Name, backend.Name())...)
	if !mix.Empty() && !format.HasAudio() {
		logger.Warn().Str(xglog.FieldCodec, format.Name).Msg("output format has no audio stream, audio mix dropped")
	}

	if err := j.fire(ctx, EventEncode); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(req.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	finalPath := filepath.Join(req.OutputDir, req.ID+"."+format.Ext)
	if pending, err = renameio.NewPendingFile(finalPath, renameio.WithPermissions(0o640)); err != nil {
		return nil, fmt.Errorf("create pending output: %w", err)
	}
	if enc, err = backend.NewEncoder(format); err != nil {
		return nil, fmt.Errorf("create %s encoder: %w", format.Name, err)
	}
	stream := Stream{
		Format:   format,
		Width:    e.cfg.Width,
		Height:   e.cfg.Height,
		FPS:      e.cfg.FPS,
		Duration: tl.Duration(),
	}
	if err := enc.Begin(ctx, stream, mix, pending); err != nil {
		return nil, fmt.Errorf("start %s encoder: %w", format.Name, err)
	}

	comp := &composer{tl: &tl, images: images, titleWindow: e.cfg.TitleWindow.Seconds()}
	pacer := e.deps.NewPacer(e.cfg.FPS)
	for i := 0; i < frames; i++ {
		comp.draw(canvas, float64(i)/float64(e.cfg.FPS))
		if err := pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pace frame %d: %w", i, err)
		}
		if err := enc.WriteFrame(ctx, canvas.Frame()); err != nil {
			return nil, fmt.Errorf("write frame %d: %w", i, err)
		}
		metrics.RenderFramesTotal.Inc()
		j.report(frameProgress(i, frames))
	}

	if err := j.fire(ctx, EventFinalize); err != nil {
		return nil, err
	}
	mix.Release()
	stats, err := enc.Finish(ctx)
	if err != nil {
		return nil, fmt.Errorf("finish %s encoder: %w", format.Name, err)
	}
	enc = nil
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("commit output: %w", err)
	}
	pending = nil
	if err := j.fire(ctx, EventComplete); err != nil {
		return nil, err
	}

	size := stats.Bytes
	if fi, serr := os.Stat(finalPath); serr == nil {
		size = fi.Size()
	}
	j.report(ProgressDone)
	elapsed := time.Since(started)
	metrics.RenderJobsTotal.WithLabelValues("done").Inc()
	metrics.RenderDuration.WithLabelValues(format.Name).Observe(elapsed.Seconds())
	logger.Info().
		Str(xglog.FieldEvent, "render.done").
		Str(xglog.FieldCodec, format.Name).
		Int(xglog.FieldFrames, stats.Frames).
		Int64("bytes", size).
		Dur("elapsed", elapsed).
		Msg("render job finished")

	return &Artifact{
		JobID:    req.ID,
		Path:     finalPath,
		Filename: timeline.Filename(tl.Title, format.Ext),
		MIMEType: format.MIMEType,
		Codec:    format.Name,
		Frames:   stats.Frames,
		Size:     size,
		Duration: tl.Duration(),
	}, nil
}

// preload decodes every distinct image reference in parallel. Concurrent jobs
// loading the same reference share one load. Any failure fails the whole preload.
func (e *Engine) preload(ctx context.Context, refs []string) (map[string]image.Image, error) {
	ctx, span := e.tracer.Start(ctx, "adreel.render.preload",
		trace.WithAttributes(telemetry.AssetAttributes("image", "")...))
	defer span.End()
	started := time.Now()

	loaded := make([]image.Image, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PreloadConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			img, err := e.loadShared(gctx, ref)
			if err != nil {
				return fmt.Errorf("load image %q: %w", ref, err)
			}
			loaded[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.Fail(span, err, "preload")
		return nil, err
	}

	out := make(map[string]image.Image, len(refs))
	for i, ref := range refs {
		out[ref] = loaded[i]
	}
	metrics.RenderPreloadDuration.Observe(time.Since(started).Seconds())
	return out, nil
}

// loadShared joins or starts the load of ref. The shared load ignores the
// cancellation of whichever caller started it and is bounded by LoadTimeout
// instead; each caller stops waiting when its own ctx ends.
func (e *Engine) loadShared(ctx context.Context, ref string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := e.loads.DoChan(ref, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.LoadTimeout)
		defer cancel()
		return e.deps.Images.Load(lctx, ref)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		img, ok := res.Val.(image.Image)
		if !ok || img == nil {
			return nil, errors.New("no image decoded")
		}
		return img, nil
	}
}

// Snapshot composes the single frame at t. It can stand in for a full export when
// no encoder is usable.
func (e *Engine) Snapshot(ctx context.Context, tl timeline.Timeline, t float64) (*image.RGBA, error) {
	if tl.Empty() {
		return nil, ErrNoContent
	}
	ctx, span := e.tracer.Start(ctx, "adreel.render.snapshot")
	defer span.End()

	seg, _ := tl.Resolve(t)
	images, err := e.preload(ctx, []string{seg.ImageRef})
	if err != nil {
		return nil, err
	}
	canvas, err := e.deps.NewCanvas(e.cfg.Width, e.cfg.Height)
	if err != nil {
		return nil, fmt.Errorf("allocate canvas: %w", err)
	}
	comp := &composer{tl: &tl, images: images, titleWindow: e.cfg.TitleWindow.Seconds()}
	comp.draw(canvas, t)

	src := canvas.Frame()
	out := image.NewRGBA(src.Rect)
	copy(out.Pix, src.Pix)
	return out, nil
}
