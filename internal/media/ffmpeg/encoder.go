// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/media/ffmpeg/watchdog"
	"github.com/ManuGH/adreel/internal/metrics"
	"github.com/ManuGH/adreel/internal/procgroup"
	"github.com/ManuGH/adreel/internal/render"
)

// Backend offers the WebM formats its ffmpeg binary can produce.
type Backend struct {
	Bin          string
	KillTimeout  time.Duration
	StartTimeout time.Duration
	StallTimeout time.Duration
	Logger       zerolog.Logger

	mu     sync.Mutex
	probed bool
	caps   Capabilities
	err    error
}

// NewBackend creates a backend for bin ("ffmpeg" when empty).
func NewBackend(bin string, killTimeout time.Duration) *Backend {
	if bin == "" {
		bin = "ffmpeg"
	}
	if killTimeout <= 0 {
		killTimeout = 5 * time.Second
	}
	return &Backend{
		Bin:          bin,
		KillTimeout:  killTimeout,
		StartTimeout: 20 * time.Second,
		StallTimeout: 30 * time.Second,
		Logger:       xglog.WithComponent("ffmpeg"),
	}
}

func (b *Backend) Name() string { return "ffmpeg" }

// Formats probes the binary once and maps its encoders to formats. Without libopus
// the WebM formats are offered video-only.
func (b *Backend) Formats(ctx context.Context) ([]render.Format, error) {
	caps, err := b.capabilities(ctx)
	if err != nil {
		return nil, err
	}
	return formatsFor(caps), nil
}

func formatsFor(caps Capabilities) []render.Format {
	var out []render.Format
	for _, f := range []render.Format{render.FormatVP9, render.FormatVP8} {
		enc := encVP9
		if f.VideoCodec == "vp8" {
			enc = encVP8
		}
		if !caps.Has(enc) {
			continue
		}
		if !caps.Has(encOpus) {
			f.AudioCodec = ""
			f.MIMEType = "video/webm;codecs=" + f.VideoCodec
		}
		out = append(out, f)
	}
	return out
}

func (b *Backend) capabilities(ctx context.Context) (Capabilities, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.probed {
		b.caps, b.err = ProbeEncoders(ctx, b.Bin)
		b.probed = b.err == nil || !errors.Is(b.err, context.Canceled)
		if b.err == nil {
			b.Logger.Info().
				Bool("vp9", b.caps.Has(encVP9)).
				Bool("vp8", b.caps.Has(encVP8)).
				Bool("opus", b.caps.Has(encOpus)).
				Msg("ffmpeg encoders probed")
		}
	}
	return b.caps, b.err
}

func (b *Backend) NewEncoder(f render.Format) (render.Encoder, error) {
	if f.Container != "webm" {
		return nil, fmt.Errorf("ffmpeg: unsupported container %q", f.Container)
	}
	return &Encoder{
		bin:    b.Bin,
		grace:  b.KillTimeout,
		wd:     watchdog.New(b.StartTimeout, b.StallTimeout),
		logger: b.Logger,
	}, nil
}

// Encoder feeds RGBA frames to one ffmpeg process and copies its WebM output.
type Encoder struct {
	bin    string
	grace  time.Duration
	logger zerolog.Logger

	codec    string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	ring     *LineRing
	wd       *watchdog.Watchdog
	wdCancel context.CancelFunc
	wdDone   chan error
	waitCh   chan error
	copyCh   chan copyResult
	frames   int
	rowSize  int
	done     bool
}

type copyResult struct {
	n   int64
	err error
}

func (e *Encoder) Begin(ctx context.Context, s render.Stream, audio *render.AudioMix, out io.WriteSeeker) error {
	args, err := buildArgs(s, audio)
	if err != nil {
		return err
	}
	e.codec = s.Format.Name
	e.rowSize = s.Width * 4
	e.ring = NewLineRing(256)
	e.logger = xglog.WithContext(ctx, e.logger)

	cmd := exec.Command(e.bin, args...)
	procgroup.Set(cmd)
	cmd.Stderr = &stderrSink{ring: e.ring, wd: e.wd}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	e.logger.Debug().Str("command", cmd.String()).Msg("starting ffmpeg encoder")
	if err := cmd.Start(); err != nil {
		metrics.EncoderStartTotal.WithLabelValues(e.codec, "error").Inc()
		return fmt.Errorf("ffmpeg start failed: %w", err)
	}
	metrics.EncoderStartTotal.WithLabelValues(e.codec, "ok").Inc()
	e.cmd, e.stdin = cmd, stdin

	e.copyCh = make(chan copyResult, 1)
	go func() {
		n, err := io.Copy(out, stdout)
		e.copyCh <- copyResult{n: n, err: err}
	}()
	e.waitCh = make(chan error, 1)
	go func() {
		// Wait after the copy finished: Wait closes the stdout pipe.
		res := <-e.copyCh
		e.waitCh <- e.cmd.Wait()
		e.copyCh <- res
	}()

	wdCtx, cancel := context.WithCancel(context.Background())
	e.wdCancel = cancel
	e.wdDone = make(chan error, 1)
	go func() {
		err := e.wd.Run(wdCtx)
		if err != nil {
			e.logger.Warn().Err(err).Strs("stderr", e.ring.LastN(5)).Msg("ffmpeg watchdog fired, killing encoder")
			metrics.EncoderExitTotal.WithLabelValues("watchdog").Inc()
			_ = procgroup.Kill(cmd, syscall.SIGKILL)
		}
		e.wdDone <- err
	}()
	return nil
}

// stopWatchdog stops the watchdog and returns the timeout it hit, if any.
func (e *Encoder) stopWatchdog() error {
	if e.wdCancel == nil {
		return nil
	}
	e.wdCancel()
	e.wdCancel = nil
	return <-e.wdDone
}

// stderrSink routes ffmpeg -progress lines to the watchdog and keeps the rest.
// exec feeds it from a single goroutine.
type stderrSink struct {
	ring    *LineRing
	wd      *watchdog.Watchdog
	partial []byte
}

func (s *stderrSink) Write(p []byte) (int, error) {
	data := p
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			s.partial = append(s.partial, data...)
			return len(p), nil
		}
		line := string(append(s.partial, data[:i]...))
		s.partial = s.partial[:0]
		if !s.wd.ParseLine(line) {
			_, _ = s.ring.Write([]byte(line + "\n"))
		}
		data = data[i+1:]
	}
}

func (e *Encoder) WriteFrame(_ context.Context, frame *image.RGBA) error {
	if e.wd != nil {
		switch e.wd.State() {
		case watchdog.StateTimedOut, watchdog.StateStalled:
			return e.wrap(watchdog.ErrStalled)
		}
	}
	if e.stdin == nil {
		return errors.New("ffmpeg: encoder not started")
	}
	b := frame.Bounds()
	if frame.Stride == e.rowSize && b.Min == (image.Point{}) {
		if _, err := e.stdin.Write(frame.Pix[:e.rowSize*b.Dy()]); err != nil {
			return e.wrap(err)
		}
	} else {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := frame.PixOffset(b.Min.X, y)
			if _, err := e.stdin.Write(frame.Pix[off : off+e.rowSize]); err != nil {
				return e.wrap(err)
			}
		}
	}
	e.frames++
	return nil
}

// Finish closes the frame stream and waits for ffmpeg to flush the container.
func (e *Encoder) Finish(ctx context.Context) (render.Stats, error) {
	if e.cmd == nil {
		return render.Stats{}, errors.New("ffmpeg: encoder not started")
	}
	if err := e.stdin.Close(); err != nil {
		return render.Stats{}, e.wrap(err)
	}
	select {
	case err := <-e.waitCh:
		res := <-e.copyCh
		e.done = true
		if wdErr := e.stopWatchdog(); wdErr != nil {
			return render.Stats{}, e.wrap(wdErr)
		}
		if err != nil {
			metrics.EncoderExitTotal.WithLabelValues("error").Inc()
			return render.Stats{}, e.wrap(err)
		}
		if res.err != nil {
			return render.Stats{}, fmt.Errorf("copy ffmpeg output: %w", res.err)
		}
		metrics.EncoderExitTotal.WithLabelValues("ok").Inc()
		return render.Stats{Frames: e.frames, Bytes: res.n}, nil
	case <-ctx.Done():
		e.Abort()
		return render.Stats{}, ctx.Err()
	}
}

// Abort stops the process group and waits for its exit.
func (e *Encoder) Abort() {
	if e.cmd == nil || e.done {
		return
	}
	e.done = true
	if e.stdin != nil {
		_ = e.stdin.Close()
	}
	err := procgroup.Terminate(e.cmd, e.waitCh, e.grace)
	<-e.copyCh
	_ = e.stopWatchdog()
	metrics.EncoderExitTotal.WithLabelValues("aborted").Inc()
	e.logger.Debug().Err(err).Strs("stderr", e.ring.LastN(10)).Msg("ffmpeg encoder aborted")
}

func (e *Encoder) wrap(err error) error {
	if tail := e.ring.LastN(5); len(tail) > 0 {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.Join(tail, " | "))
	}
	return fmt.Errorf("ffmpeg: %w", err)
}
