// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playback implements the looping preview player: a virtual clock over a
// timeline, audio tracks mirrored onto it, and the controls-visibility debounce.
package playback

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/adreel/internal/metrics"
	"github.com/ManuGH/adreel/internal/timeline"
)

const (
	DefaultTick         = 100 * time.Millisecond
	DefaultControlsHide = 3 * time.Second
)

// Options configures an Engine.
type Options struct {
	Tick         time.Duration
	ControlsHide time.Duration
	AutoPlay     bool
	Clock        Clock
	Tracks       []AudioTrack
	Gate         *ActivationGate
	Logger       zerolog.Logger
	// OnChange receives a snapshot after every state change, outside the engine lock.
	// Calls are serialized and Version strictly increases across them.
	OnChange func(State)
}

// State is the engine's UI surface. Version increases with every state change.
type State struct {
	NoContent       bool               `json:"noContent"`
	Title           string             `json:"title,omitempty"`
	CurrentTime     float64            `json:"currentTime"`
	Duration        float64            `json:"duration"`
	Progress        float64            `json:"progress"`
	Elapsed         string             `json:"elapsed"`
	Total           string             `json:"total"`
	Playing         bool               `json:"playing"`
	Muted           bool               `json:"muted"`
	SegmentIndex    int                `json:"segmentIndex"`
	Segment         *timeline.Segment  `json:"segment,omitempty"`
	SegmentCount    int                `json:"segmentCount"`
	ControlsVisible bool               `json:"controlsVisible"`
	UserInteracted  bool               `json:"userInteracted"`
	UnmuteHint      bool               `json:"unmuteHint"`
	Loops           int                `json:"loops"`
	Version         uint64             `json:"version"`
}

// Engine is one preview session's player. All methods are safe for concurrent use.
// Playback problems are never returned to the caller: they are absorbed into state.
type Engine struct {
	tl       timeline.Timeline
	total    time.Duration
	tick     time.Duration
	hide     time.Duration
	clock    Clock
	tracks   []AudioTrack
	gate     *ActivationGate
	logger   zerolog.Logger
	onChange func(State)

	mu         sync.Mutex
	current    time.Duration
	playing    bool
	muted      bool
	segIdx     int
	interacted bool
	controls   bool
	loops      int
	closed     bool
	version    uint64

	pubMu     sync.Mutex
	published uint64

	tickGen  uint64
	tickStop chan struct{}
	ticker   Ticker
	hideGen  uint64
	hideT    Timer
	wg       sync.WaitGroup
}

// New creates an engine for tl. With AutoPlay the engine starts playing immediately.
func New(tl timeline.Timeline, opts Options) *Engine {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.ControlsHide <= 0 {
		opts.ControlsHide = DefaultControlsHide
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	e := &Engine{
		tl:       tl,
		total:    loopLength(tl),
		tick:     opts.Tick,
		hide:     opts.ControlsHide,
		clock:    opts.Clock,
		tracks:   append([]AudioTrack(nil), opts.Tracks...),
		gate:     opts.Gate,
		logger:   opts.Logger.With().Str("component", "playback").Logger(),
		onChange: opts.OnChange,
		controls: true,
	}
	if opts.AutoPlay {
		e.Play()
	}
	return e
}

// loopLength is TotalDuration at full precision. A non-empty timeline never gets
// a zero length, so the clock and track seeks always have a positive modulus.
func loopLength(tl timeline.Timeline) time.Duration {
	if tl.Empty() {
		return 0
	}
	d := time.Duration(math.Round(tl.TotalDuration * float64(time.Second)))
	if d <= 0 {
		d = time.Nanosecond
	}
	return d
}

// Timeline returns the engine's read-only timeline.
func (e *Engine) Timeline() timeline.Timeline { return e.tl }

// Play starts playback. A no-op on an empty timeline or when already playing.
func (e *Engine) Play() {
	e.update(func() { e.playLocked() })
}

// Pause stops playback and forces the controls to be shown.
func (e *Engine) Pause() {
	e.update(func() { e.pauseLocked() })
}

// TogglePlay flips play/pause as a user gesture.
func (e *Engine) TogglePlay() {
	e.update(func() {
		e.gestureLocked()
		e.toggleLocked()
		e.resetControlsLocked()
	})
}

// Click handles a click on the video surface: it toggles playback and, on the very
// first interaction, unmutes audio that was muted by the autoplay fallback.
func (e *Engine) Click() {
	e.update(func() {
		first := !e.interacted
		e.gestureLocked()
		e.toggleLocked()
		e.resetControlsLocked()
		if e.muted && first {
			e.setMutedLocked(false)
		}
	})
}

// ToggleMute flips the mute flag. Play state is unaffected.
func (e *Engine) ToggleMute() {
	e.update(func() { e.setMutedLocked(!e.muted) })
}

// SetMuted sets the mute flag. Idempotent; play state is unaffected.
func (e *Engine) SetMuted(muted bool) {
	e.update(func() { e.setMutedLocked(muted) })
}

// Restart rewinds clock and tracks to zero and starts playback if paused.
func (e *Engine) Restart() {
	e.update(func() {
		if e.tl.Empty() {
			return
		}
		e.current = 0
		e.segIdx = 0
		for _, tr := range e.tracks {
			tr.Seek(0)
		}
		if !e.playing {
			e.playLocked()
		}
	})
}

// Seek moves the clock to fraction×duration. fraction is clamped to [0, 1].
// Each track is re-pointed to target mod its own native duration (or the timeline
// duration when unknown), so audio seeking is best effort.
func (e *Engine) Seek(fraction float64) {
	e.update(func() {
		if e.tl.Empty() {
			return
		}
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		target := time.Duration(fraction * float64(e.total))
		e.current = target
		e.resolveLocked()
		for _, tr := range e.tracks {
			span := tr.Duration()
			if span <= 0 {
				span = e.total
			}
			if span <= 0 {
				tr.Seek(0)
				continue
			}
			tr.Seek(target % span)
		}
	})
}

// Interact records pointer or touch activity: the controls are shown and, while
// playing, scheduled to hide again.
func (e *Engine) Interact() {
	e.update(func() { e.resetControlsLocked() })
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Close tears the engine down: the ticker and controls timer are stopped, tracks
// are paused, and Close returns only after the tick goroutine has exited.
// No timer fires after Close returns. Close is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopTickerLocked()
	e.cancelHideLocked()
	if e.playing {
		e.playing = false
		for _, tr := range e.tracks {
			tr.Pause()
		}
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// update runs fn under the lock and publishes the resulting state.
func (e *Engine) update(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	st := func() State {
		defer e.mu.Unlock()
		fn()
		e.version++
		return e.snapshotLocked()
	}()
	e.publish(st)
}

// publish hands st to OnChange in version order; a snapshot overtaken by a newer
// one is dropped.
func (e *Engine) publish(st State) {
	if e.onChange == nil {
		return
	}
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if st.Version <= e.published {
		return
	}
	e.published = st.Version
	e.onChange(st)
}

func (e *Engine) gestureLocked() {
	e.interacted = true
	e.gate.Activate()
}

func (e *Engine) toggleLocked() {
	if e.playing {
		e.pauseLocked()
	} else {
		e.playLocked()
	}
}

func (e *Engine) playLocked() {
	if e.playing || e.tl.Empty() {
		return
	}
	e.playing = true
	e.startTracksLocked()
	e.startTickerLocked()
	e.resetControlsLocked()
}

func (e *Engine) pauseLocked() {
	if !e.playing {
		e.resetControlsLocked()
		return
	}
	e.playing = false
	e.stopTickerLocked()
	for _, tr := range e.tracks {
		tr.Pause()
	}
	e.resetControlsLocked()
}

func (e *Engine) setMutedLocked(muted bool) {
	e.muted = muted
	for _, tr := range e.tracks {
		tr.SetMuted(muted)
	}
}

// startTracksLocked is a two-state attempt: start every track with the current mute
// flag; if the environment blocks audible autoplay, force muted and start again.
func (e *Engine) startTracksLocked() {
	if len(e.tracks) == 0 {
		return
	}
	if !e.playTracksLocked(e.muted) || e.muted {
		return
	}

	e.logger.Info().Str("event", "playback.autoplay_blocked").Msg("autoplay blocked, muting audio")
	metrics.PlaybackAutoplayFallbackTotal.Inc()
	e.setMutedLocked(true)
	e.playTracksLocked(true)
}

// playTracksLocked starts every track and reports whether any start was blocked
// by the autoplay policy. Other failures are logged and skipped.
func (e *Engine) playTracksLocked(muted bool) (blocked bool) {
	for _, tr := range e.tracks {
		tr.SetMuted(muted)
		if err := tr.Play(); err != nil {
			if errors.Is(err, ErrAutoplayBlocked) {
				blocked = true
				continue
			}
			metrics.PlaybackTrackErrorsTotal.WithLabelValues("play").Inc()
			e.logger.Warn().Err(err).Str("track", tr.Name()).Msg("audio track failed to start")
		}
	}
	if blocked && muted {
		metrics.PlaybackTrackErrorsTotal.WithLabelValues("play_muted").Inc()
		e.logger.Warn().Msg("audio track refused to start even when muted")
	}
	return blocked
}

func (e *Engine) startTickerLocked() {
	e.stopTickerLocked()
	e.tickGen++
	gen := e.tickGen
	t := e.clock.NewTicker(e.tick)
	stop := make(chan struct{})
	e.ticker = t
	e.tickStop = stop

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-stop:
				return
			case <-t.C():
				e.advance(gen)
			}
		}
	}()
}

func (e *Engine) stopTickerLocked() {
	if e.ticker == nil {
		return
	}
	e.ticker.Stop()
	close(e.tickStop)
	e.ticker = nil
	e.tickStop = nil
	e.tickGen++
}

// advance moves the clock by one tick. Reaching the duration resets to exactly zero;
// the non-zero to zero edge rewinds and replays every track once per loop.
func (e *Engine) advance(gen uint64) {
	e.mu.Lock()
	if e.closed || gen != e.tickGen || !e.playing {
		e.mu.Unlock()
		return
	}
	e.stepLocked()
	e.version++
	st := e.snapshotLocked()
	e.mu.Unlock()
	e.publish(st)
}

func (e *Engine) stepLocked() {
	prev := e.current
	next := prev + e.tick
	if next >= e.total {
		next = 0
	}
	e.current = next
	e.resolveLocked()

	if prev != 0 && next == 0 {
		e.loops++
		metrics.PlaybackLoopsTotal.Inc()
		for _, tr := range e.tracks {
			tr.Seek(0)
			if err := tr.Play(); err != nil {
				metrics.PlaybackTrackErrorsTotal.WithLabelValues("loop").Inc()
				e.logger.Debug().Err(err).Str("track", tr.Name()).Msg("audio track failed to restart on loop")
			}
		}
	}
}

func (e *Engine) resolveLocked() {
	if idx, ok := e.tl.ResolveIndex(e.current.Seconds()); ok {
		e.segIdx = idx
	}
}

func (e *Engine) resetControlsLocked() {
	e.cancelHideLocked()
	e.controls = true
	if !e.playing || e.closed {
		return
	}
	gen := e.hideGen
	e.hideT = e.clock.AfterFunc(e.hide, func() { e.hideControls(gen) })
}

func (e *Engine) cancelHideLocked() {
	e.hideGen++
	if e.hideT != nil {
		e.hideT.Stop()
		e.hideT = nil
	}
}

func (e *Engine) hideControls(gen uint64) {
	e.mu.Lock()
	if e.closed || gen != e.hideGen || !e.playing {
		e.mu.Unlock()
		return
	}
	e.controls = false
	e.hideT = nil
	e.version++
	st := e.snapshotLocked()
	e.mu.Unlock()
	e.publish(st)
}

func (e *Engine) snapshotLocked() State {
	st := State{
		NoContent:       e.tl.Empty(),
		Title:           e.tl.Title,
		CurrentTime:     e.current.Seconds(),
		Duration:        e.total.Seconds(),
		Elapsed:         formatClock(e.current),
		Total:           formatClock(e.total),
		Playing:         e.playing,
		Muted:           e.muted,
		SegmentCount:    len(e.tl.Segments),
		Version:         e.version,
		ControlsVisible: e.controls,
		UserInteracted:  e.interacted,
		UnmuteHint:      e.muted && e.playing && !e.interacted,
		Loops:           e.loops,
	}
	if st.NoContent {
		return st
	}
	if e.total > 0 {
		st.Progress = float64(e.current) / float64(e.total) * 100
	}
	seg := e.tl.Segments[e.segIdx]
	st.SegmentIndex = e.segIdx
	st.Segment = &seg
	return st
}

// formatClock renders d as m:ss.
func formatClock(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
