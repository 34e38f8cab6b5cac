// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package render

import (
	"context"
	"image"
	"image/color"
	"io"
	"time"

	"github.com/ManuGH/adreel/internal/timeline"
)

// Canvas is a fixed-size off-screen drawing surface.
type Canvas interface {
	Size() (w, h int)
	Clear(c color.Color)
	// DrawCover scales img uniformly to fill the whole surface and center-crops the overflow.
	DrawCover(img image.Image)
	FillRect(r image.Rectangle, c color.Color)
	// MeasureText returns the advance width of text set in the bold face at px pixels.
	MeasureText(text string, px float64) float64
	// DrawText draws text horizontally centered on cx with its baseline at y.
	DrawText(text string, cx, y int, px float64, c color.Color)
	// Frame returns the surface pixels. The image is reused by the next draw call.
	Frame() *image.RGBA
}

// CanvasFactory allocates a canvas of the given size.
type CanvasFactory func(w, h int) (Canvas, error)

// ImageLoader resolves an image reference to a decoded bitmap.
type ImageLoader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// AudioGraph resolves a timeline's narration and music into encoder inputs.
// It returns a nil mix when the timeline has no audio.
type AudioGraph interface {
	Prepare(ctx context.Context, tl timeline.Timeline) (*AudioMix, error)
}

// AudioInput is one local audio source for the mix.
type AudioInput struct {
	Name     string
	Path     string
	Duration time.Duration
}

// AudioMix is the set of sources mixed into the output's audio stream.
type AudioMix struct {
	Inputs  []AudioInput
	release func()
}

// NewAudioMix returns a mix whose release func runs once on Release.
func NewAudioMix(inputs []AudioInput, release func()) *AudioMix {
	return &AudioMix{Inputs: inputs, release: release}
}

// Empty reports whether the mix has no sources.
func (m *AudioMix) Empty() bool { return m == nil || len(m.Inputs) == 0 }

// Release stops using the sources and frees their local copies. Safe on nil.
func (m *AudioMix) Release() {
	if m == nil || m.release == nil {
		return
	}
	m.release()
	m.release = nil
}

// Stream describes the video stream handed to an encoder.
type Stream struct {
	Format   Format
	Width    int
	Height   int
	FPS      int
	Duration time.Duration
}

// Stats summarizes a finished encode.
type Stats struct {
	Frames int
	Bytes  int64
}

// Encoder turns paced frames plus an audio mix into a container stream.
// Calls are sequential: Begin, WriteFrame in frame order, then Finish or Abort.
type Encoder interface {
	Begin(ctx context.Context, s Stream, audio *AudioMix, out io.WriteSeeker) error
	WriteFrame(ctx context.Context, frame *image.RGBA) error
	Finish(ctx context.Context) (Stats, error)
	// Abort releases the encoder after a failure. It is safe to call at any point.
	Abort()
}

// Backend advertises formats and creates encoders for them.
type Backend interface {
	Name() string
	// Formats lists the formats usable in this environment.
	Formats(ctx context.Context) ([]Format, error)
	NewEncoder(f Format) (Encoder, error)
}

// Pacer blocks until the next frame may be emitted. *rate.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// ProgressFunc receives the job progress in percent.
type ProgressFunc func(percent int)

// StateFunc receives the job state after a transition.
type StateFunc func(s State)
