// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"sync"
	"time"
)

type fakeTicker struct {
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

// fakeClock hands out manually driven tickers and timers.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) lastTicker() *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		return nil
	}
	return c.tickers[len(c.tickers)-1]
}

// fireTimers runs every pending timer callback, including stopped ones: the engine
// must ignore stale callbacks on its own.
func (c *fakeClock) fireTimers(includeStopped bool) int {
	c.mu.Lock()
	pending := append([]*fakeTimer(nil), c.timers...)
	c.timers = nil
	c.mu.Unlock()
	n := 0
	for _, t := range pending {
		if t.fired || (t.stopped && !includeStopped) {
			continue
		}
		t.fired = true
		t.f()
		n++
	}
	return n
}

// recordingTrack is an AudioTrack that records calls and can refuse to play.
type recordingTrack struct {
	name     string
	duration time.Duration

	mu        sync.Mutex
	blockLoud bool
	failPlay  error
	playing   bool
	muted     bool
	pos       time.Duration
	plays     int
	seeks     []time.Duration
}

func (r *recordingTrack) Name() string            { return r.name }
func (r *recordingTrack) Duration() time.Duration { return r.duration }

func (r *recordingTrack) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPlay != nil {
		return r.failPlay
	}
	if r.blockLoud && !r.muted {
		return ErrAutoplayBlocked
	}
	r.playing = true
	r.plays++
	return nil
}

func (r *recordingTrack) Pause() {
	r.mu.Lock()
	r.playing = false
	r.mu.Unlock()
}

func (r *recordingTrack) SetMuted(m bool) {
	r.mu.Lock()
	r.muted = m
	r.mu.Unlock()
}

func (r *recordingTrack) Seek(pos time.Duration) {
	r.mu.Lock()
	r.pos = pos
	r.seeks = append(r.seeks, pos)
	r.mu.Unlock()
}

func (r *recordingTrack) snapshot() (playing, muted bool, plays int, pos time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing, r.muted, r.plays, r.pos
}
