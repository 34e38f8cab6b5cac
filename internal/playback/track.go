// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAutoplayBlocked is returned by a track whose environment refuses to start
// audible playback without a prior user gesture.
var ErrAutoplayBlocked = errors.New("playback: autoplay blocked")

// AudioTrack is one background audio source (narration or music) mirrored by the engine.
// Implementations must not call back into the engine.
type AudioTrack interface {
	Name() string
	// Play starts or resumes playback at the current position.
	Play() error
	Pause()
	SetMuted(muted bool)
	Seek(pos time.Duration)
	// Duration is the native length of the track, or 0 when unknown.
	Duration() time.Duration
}

// ActivationGate records whether the user has interacted with a session yet.
// Unmuted starts are only allowed after activation.
type ActivationGate struct {
	active atomic.Bool
}

// NewActivationGate returns an inactive gate.
func NewActivationGate() *ActivationGate { return &ActivationGate{} }

// Activate marks the gate as activated by a user gesture.
func (g *ActivationGate) Activate() {
	if g != nil {
		g.active.Store(true)
	}
}

// Active reports whether a user gesture has been seen. A nil gate is always active.
func (g *ActivationGate) Active() bool {
	return g == nil || g.active.Load()
}

// VirtualTrack models an audio element server-side: it tracks position, play and mute
// state, loops at its native duration, and enforces the autoplay policy through a gate.
type VirtualTrack struct {
	name     string
	duration time.Duration
	gate     *ActivationGate
	now      func() time.Time

	mu        sync.Mutex
	playing   bool
	muted     bool
	pos       time.Duration
	startedAt time.Time
	plays     int
}

// NewVirtualTrack creates a track. duration may be 0 when the native length is unknown.
func NewVirtualTrack(name string, duration time.Duration, gate *ActivationGate, now func() time.Time) *VirtualTrack {
	if now == nil {
		now = time.Now
	}
	return &VirtualTrack{name: name, duration: duration, gate: gate, now: now}
}

func (t *VirtualTrack) Name() string            { return t.name }
func (t *VirtualTrack) Duration() time.Duration { return t.duration }

func (t *VirtualTrack) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.muted && !t.gate.Active() {
		return ErrAutoplayBlocked
	}
	if !t.playing {
		t.playing = true
		t.startedAt = t.now()
	}
	t.plays++
	return nil
}

func (t *VirtualTrack) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return
	}
	t.pos = t.positionLocked()
	t.playing = false
}

func (t *VirtualTrack) SetMuted(muted bool) {
	t.mu.Lock()
	t.muted = muted
	t.mu.Unlock()
}

func (t *VirtualTrack) Seek(pos time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pos = pos
	if t.playing {
		t.startedAt = t.now()
	}
}

// TrackState is a point-in-time view of a VirtualTrack.
type TrackState struct {
	Name     string        `json:"name"`
	Playing  bool          `json:"playing"`
	Muted    bool          `json:"muted"`
	Position time.Duration `json:"position"`
	Duration time.Duration `json:"duration"`
	Plays    int           `json:"plays"`
}

// State returns the current track state.
func (t *VirtualTrack) State() TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackState{
		Name:     t.name,
		Playing:  t.playing,
		Muted:    t.muted,
		Position: t.positionLocked(),
		Duration: t.duration,
		Plays:    t.plays,
	}
}

func (t *VirtualTrack) positionLocked() time.Duration {
	pos := t.pos
	if t.playing {
		pos += t.now().Sub(t.startedAt)
	}
	if t.duration > 0 {
		pos %= t.duration
	}
	return pos
}
