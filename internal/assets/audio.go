// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	xglog "github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/media/ffmpeg"
	"github.com/ManuGH/adreel/internal/metrics"
	"github.com/ManuGH/adreel/internal/render"
	"github.com/ManuGH/adreel/internal/telemetry"
	"github.com/ManuGH/adreel/internal/timeline"
)

// DurationProber reports the native length of a local media file.
type DurationProber func(ctx context.Context, path string) (time.Duration, error)

// FFprobe returns a prober backed by the ffprobe binary bin.
func FFprobe(bin string) DurationProber {
	if bin == "" {
		bin = "ffprobe"
	}
	return func(ctx context.Context, path string) (time.Duration, error) {
		return ffmpeg.ProbeDuration(ctx, bin, path)
	}
}

// AudioGraph downloads narration and music into a per-job work directory so the
// encoder can read them as local inputs.
type AudioGraph struct {
	fetch   *Fetcher
	workDir string
	probe   DurationProber
	logger  zerolog.Logger
}

// NewAudioGraph stores downloads under workDir. probe may be nil.
func NewAudioGraph(f *Fetcher, workDir string, probe DurationProber) *AudioGraph {
	return &AudioGraph{
		fetch:   f,
		workDir: workDir,
		probe:   probe,
		logger:  xglog.WithComponent("audio"),
	}
}

// Prepare resolves the timeline's audio references. It returns a nil mix when no
// audio is configured. A source that cannot be downloaded fails the whole call;
// a duration probe failure only loses the duration.
func (g *AudioGraph) Prepare(ctx context.Context, tl timeline.Timeline) (mix *render.AudioMix, err error) {
	if !tl.HasAudio() {
		return nil, nil
	}
	ctx, span := telemetry.Tracer("adreel.assets").Start(ctx, "asset.audio")
	defer func() {
		if err != nil {
			telemetry.Fail(span, err, "audio_prepare")
		}
		span.End()
	}()
	logger := xglog.WithContext(ctx, g.logger)

	if err := os.MkdirAll(g.workDir, 0o750); err != nil {
		return nil, fmt.Errorf("audio work dir: %w", err)
	}
	dir, err := os.MkdirTemp(g.workDir, "audio-*")
	if err != nil {
		return nil, fmt.Errorf("audio work dir: %w", err)
	}
	release := func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn().Err(rmErr).Str(xglog.FieldPath, dir).Msg("failed to remove audio work dir")
		}
	}

	var inputs []render.AudioInput
	if tl.NarrationRef != "" {
		inputs = append(inputs, render.AudioInput{Name: "narration"})
	}
	if tl.MusicRef != "" {
		inputs = append(inputs, render.AudioInput{Name: "music"})
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for i := range inputs {
		ref := tl.NarrationRef
		if inputs[i].Name == "music" {
			ref = tl.MusicRef
		}
		eg.Go(func() error {
			p, err := g.download(egCtx, dir, inputs[i].Name, ref)
			if err != nil {
				return fmt.Errorf("%s audio: %w", inputs[i].Name, err)
			}
			inputs[i].Path = p
			if g.probe == nil {
				return nil
			}
			d, err := g.probe(egCtx, p)
			if err != nil {
				logger.Warn().Err(err).Str(xglog.FieldTrack, inputs[i].Name).Msg("audio duration probe failed")
				return nil
			}
			inputs[i].Duration = d
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		release()
		return nil, err
	}

	for _, in := range inputs {
		logger.Debug().Str(xglog.FieldTrack, in.Name).Dur("duration", in.Duration).Msg("audio source ready")
	}
	span.AddEvent("audio.ready", trace.WithAttributes(telemetry.AssetAttributes("audio", "")...))
	return render.NewAudioMix(inputs, release), nil
}

func (g *AudioGraph) download(ctx context.Context, dir, name, ref string) (p string, err error) {
	src, _, _ := source(ref)
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.IncAssetFetch("audio", src, result)
	}()

	rc, err := g.fetch.Open(ctx, ref)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	p = filepath.Join(dir, name+audioExt(ref))
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, rc)
	metrics.AddAssetBytes("audio", n)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("download %s: %w", ref, err)
	}
	return p, nil
}

// audioExt keeps a short alphanumeric extension from ref as a demuxer hint.
func audioExt(ref string) string {
	_, u, err := source(ref)
	if err != nil {
		return ".audio"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) < 2 || len(ext) > 6 {
		return ".audio"
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ".audio"
		}
	}
	return ext
}
