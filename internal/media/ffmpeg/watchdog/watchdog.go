// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package watchdog detects an ffmpeg encoder that stops making progress.
package watchdog

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/adreel/internal/log"
)

var (
	ErrStartTimeout = errors.New("encoder produced no output before the start timeout")
	ErrStalled      = errors.New("encoder stopped making progress")
)

type State int

const (
	StateStarting State = iota
	StateRunning
	StateStalled
	StateTimedOut
	StateCompleted
)

type clock interface {
	Now() time.Time
	NewTicker(d time.Duration) ticker
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) ticker { return &realTicker{time.NewTicker(d)} }

type realTicker struct {
	*time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.Ticker.C }

// progressKeys are the keys ffmpeg writes with -progress.
var progressKeys = map[string]bool{
	"frame": true, "fps": true, "bitrate": true, "total_size": true,
	"out_time_us": true, "out_time_ms": true, "out_time": true,
	"dup_frames": true, "drop_frames": true, "speed": true, "progress": true,
}

// Watchdog tracks ffmpeg -progress output and enforces start and stall timeouts.
type Watchdog struct {
	mu sync.Mutex

	startTimeout time.Duration
	stallTimeout time.Duration
	interval     time.Duration

	lastFrame     int64
	lastTotalSize int64
	lastHeartbeat time.Time
	state         State

	clock clock
}

// New creates a watchdog. A zero timeout disables that check.
func New(startTimeout, stallTimeout time.Duration) *Watchdog {
	return &Watchdog{
		startTimeout: startTimeout,
		stallTimeout: stallTimeout,
		interval:     time.Second,
		clock:        realClock{},
	}
}

// Run checks progress every interval until ctx is done or the encoder completes.
// It returns ErrStartTimeout or ErrStalled when a timeout is hit.
func (w *Watchdog) Run(ctx context.Context) error {
	w.mu.Lock()
	w.lastHeartbeat = w.clock.Now()
	w.mu.Unlock()

	t := w.clock.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			done, err := w.check()
			if err != nil || done {
				return err
			}
		}
	}
}

// ParseLine consumes one stderr line. It reports whether the line was progress
// output; other lines are diagnostics for the caller to keep.
func (w *Watchdog) ParseLine(line string) bool {
	key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || !progressKeys[key] {
		return false
	}
	val = strings.TrimSpace(val)

	w.mu.Lock()
	defer w.mu.Unlock()
	switch key {
	case "frame":
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > w.lastFrame {
			w.lastFrame = n
			w.heartbeatLocked()
		}
	case "total_size":
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > w.lastTotalSize {
			w.lastTotalSize = n
			w.heartbeatLocked()
		}
	case "progress":
		if val == "end" {
			w.state = StateCompleted
		}
	}
	return true
}

func (w *Watchdog) heartbeatLocked() {
	w.lastHeartbeat = w.clock.Now()
	if w.state == StateStarting {
		w.state = StateRunning
		log.L().Debug().Int64("frame", w.lastFrame).Msg("watchdog: encoder progress detected")
	}
}

func (w *Watchdog) check() (done bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := w.clock.Now().Sub(w.lastHeartbeat)
	switch w.state {
	case StateStarting:
		if w.startTimeout > 0 && elapsed > w.startTimeout {
			w.state = StateTimedOut
			return true, ErrStartTimeout
		}
	case StateRunning:
		if w.stallTimeout > 0 && elapsed > w.stallTimeout {
			w.state = StateStalled
			return true, ErrStalled
		}
	case StateCompleted:
		return true, nil
	}
	return false, nil
}

// State returns the current watchdog state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
