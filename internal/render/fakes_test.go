// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/adreel/internal/timeline"
)

// taggedImage lets the fake canvas tell which reference it is drawing.
type taggedImage struct {
	image.Image
	ref string
}

type fakeLoader struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	// gate, when set, holds every load until it is closed or ctx ends.
	gate chan struct{}
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{calls: map[string]int{}, fail: map[string]error{}}
}

func (l *fakeLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	l.mu.Lock()
	l.calls[ref]++
	err := l.fail[ref]
	gate := l.gate
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return taggedImage{Image: image.NewRGBA(image.Rect(0, 0, 4, 3)), ref: ref}, nil
}

func (l *fakeLoader) count(ref string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[ref]
}

// fakeCanvas records draw operations; each Frame call closes one frame's log.
type fakeCanvas struct {
	w, h   int
	img    *image.RGBA
	ops    []string
	frames [][]string
}

func newFakeCanvas(w, h int) *fakeCanvas {
	return &fakeCanvas{w: w, h: h, img: image.NewRGBA(image.Rect(0, 0, 4, 4))}
}

func (c *fakeCanvas) Size() (int, int)    { return c.w, c.h }
func (c *fakeCanvas) Clear(color.Color)   { c.ops = append(c.ops, "clear") }
func (c *fakeCanvas) DrawCover(img image.Image) {
	ref := "?"
	if t, ok := img.(taggedImage); ok {
		ref = t.ref
	}
	c.ops = append(c.ops, "cover "+ref)
}

func (c *fakeCanvas) FillRect(r image.Rectangle, _ color.Color) {
	c.ops = append(c.ops, fmt.Sprintf("rect %v", r))
}

// MeasureText uses a fixed half-em advance per byte.
func (c *fakeCanvas) MeasureText(text string, px float64) float64 {
	return float64(len(text)) * px * 0.5
}

func (c *fakeCanvas) DrawText(text string, cx, y int, px float64, _ color.Color) {
	c.ops = append(c.ops, fmt.Sprintf("text %q cx=%d y=%d px=%.1f", text, cx, y, px))
}

func (c *fakeCanvas) Frame() *image.RGBA {
	c.frames = append(c.frames, c.ops)
	c.ops = nil
	return c.img
}

type fakeBackend struct {
	name       string
	formats    []Format
	formatsErr error
	newErr     error
	enc        *fakeEncoder
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Formats(context.Context) ([]Format, error) {
	return b.formats, b.formatsErr
}

func (b *fakeBackend) NewEncoder(f Format) (Encoder, error) {
	if b.newErr != nil {
		return nil, b.newErr
	}
	if b.enc == nil {
		b.enc = &fakeEncoder{}
	}
	b.enc.format = f
	return b.enc, nil
}

type fakeEncoder struct {
	format    Format
	failFrame int // 1-based; 0 never fails
	failBegin error

	stream   Stream
	audio    *AudioMix
	out      io.WriteSeeker
	frames   int
	finished bool
	aborted  bool
}

var errEncode = errors.New("encoder pipe closed")

func (e *fakeEncoder) Begin(_ context.Context, s Stream, audio *AudioMix, out io.WriteSeeker) error {
	if e.failBegin != nil {
		return e.failBegin
	}
	e.stream, e.audio, e.out = s, audio, out
	_, err := out.Write([]byte("HEAD"))
	return err
}

func (e *fakeEncoder) WriteFrame(_ context.Context, _ *image.RGBA) error {
	e.frames++
	if e.failFrame > 0 && e.frames == e.failFrame {
		return errEncode
	}
	_, err := e.out.Write([]byte{'F'})
	return err
}

func (e *fakeEncoder) Finish(context.Context) (Stats, error) {
	e.finished = true
	if _, err := e.out.Seek(0, io.SeekStart); err != nil {
		return Stats{}, err
	}
	if _, err := e.out.Write([]byte("head")); err != nil {
		return Stats{}, err
	}
	return Stats{Frames: e.frames, Bytes: int64(4 + e.frames)}, nil
}

func (e *fakeEncoder) Abort() { e.aborted = true }

type fakeAudio struct {
	released atomic.Int32
	err      error
}

func (a *fakeAudio) Prepare(_ context.Context, tl timeline.Timeline) (*AudioMix, error) {
	if a.err != nil {
		return nil, a.err
	}
	in := []AudioInput{{Name: "music", Path: "/tmp/music.mp3"}}
	return NewAudioMix(in, func() { a.released.Add(1) }), nil
}

type countingPacer struct{ n atomic.Int32 }

func (p *countingPacer) Wait(ctx context.Context) error {
	p.n.Add(1)
	return ctx.Err()
}
