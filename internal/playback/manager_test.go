// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/adreel/internal/bus"
	"github.com/ManuGH/adreel/internal/timeline"
)

func withAudio() timeline.Timeline {
	tl := adTimeline()
	tl.NarrationRef = "https://cdn.example/voice.mp3"
	tl.MusicRef = "https://cdn.example/music.mp3"
	return tl
}

func TestManager_CreateWiresTracks(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(ManagerConfig{Clock: clock})
	t.Cleanup(m.CloseAll)

	sess, err := m.Create(withAudio(), CreateOptions{AutoPlay: true, MusicDuration: 20 * time.Second})
	require.NoError(t, err)
	require.Len(t, sess.Tracks, 2)
	assert.Equal(t, "narration", sess.Tracks[0].Name())
	assert.Equal(t, 20*time.Second, sess.Tracks[1].Duration())

	v := sess.View()
	assert.True(t, v.State.Playing)
	assert.True(t, v.State.Muted, "unmuted autoplay is blocked until the first gesture")
	for _, ts := range v.Tracks {
		assert.True(t, ts.Playing)
		assert.True(t, ts.Muted)
	}
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(ManagerConfig{Clock: clock})
	t.Cleanup(m.CloseAll)

	a, err := m.Create(withAudio(), CreateOptions{AutoPlay: true})
	require.NoError(t, err)
	b, err := m.Create(withAudio(), CreateOptions{AutoPlay: true})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	a.Engine.Click()
	a.Engine.Click()
	assert.False(t, a.Engine.Snapshot().Muted)
	assert.True(t, b.Engine.Snapshot().Muted, "activation is per session")

	require.NoError(t, m.Close(a.ID))
	assert.True(t, b.Engine.Snapshot().Playing)
	assert.Equal(t, 1, m.Len())
}

func TestManager_GetAndClose(t *testing.T) {
	m := NewManager(ManagerConfig{Clock: newFakeClock()})
	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Close("missing"), ErrSessionNotFound)

	sess, err := m.Create(adTimeline(), CreateOptions{})
	require.NoError(t, err)
	got, err := m.Get(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)
	require.NoError(t, m.Close(sess.ID))
	assert.Empty(t, m.List())
}

func TestManager_Limit(t *testing.T) {
	m := NewManager(ManagerConfig{MaxSessions: 1, Clock: newFakeClock()})
	t.Cleanup(m.CloseAll)
	_, err := m.Create(adTimeline(), CreateOptions{})
	require.NoError(t, err)
	_, err = m.Create(adTimeline(), CreateOptions{})
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestManager_SweepIdle(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(ManagerConfig{IdleTimeout: time.Minute, Clock: clock})
	t.Cleanup(m.CloseAll)

	old, err := m.Create(adTimeline(), CreateOptions{})
	require.NoError(t, err)
	clock.advance(45 * time.Second)
	fresh, err := m.Create(adTimeline(), CreateOptions{})
	require.NoError(t, err)

	clock.advance(30 * time.Second)
	assert.Equal(t, 1, m.Sweep())
	_, err = m.Get(old.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestManager_CloseAllNoLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewManager(ManagerConfig{Tick: time.Millisecond})
	for i := 0; i < 3; i++ {
		_, err := m.Create(withAudio(), CreateOptions{AutoPlay: true})
		require.NoError(t, err)
	}
	time.Sleep(10 * time.Millisecond)
	m.CloseAll()
	assert.Equal(t, 0, m.Len())
}

func TestManager_RunClosesOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewManager(ManagerConfig{})
	_, err := m.Create(adTimeline(), CreateOptions{AutoPlay: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Millisecond) }()
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, m.Len())
}

func nextEvent(t *testing.T, sub bus.Subscriber) Event {
	t.Helper()
	select {
	case msg := <-sub.C():
		ev, ok := msg.(Event)
		require.True(t, ok, "unexpected message %T", msg)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no session event")
		return Event{}
	}
}

func TestManager_WatchStreamsStateThenClosed(t *testing.T) {
	events := bus.NewMemoryBus()
	m := NewManager(ManagerConfig{Clock: newFakeClock(), Events: events})
	t.Cleanup(m.CloseAll)

	sess, err := m.Create(adTimeline(), CreateOptions{})
	require.NoError(t, err)

	view, sub, err := m.Watch(context.Background(), sess.ID)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()
	assert.Equal(t, sess.ID, view.ID)

	sess.Engine.Play()
	ev := nextEvent(t, sub)
	assert.Equal(t, sess.ID, ev.SessionID)
	assert.False(t, ev.Closed)
	assert.True(t, ev.State.Playing)
	assert.Greater(t, ev.State.Version, view.State.Version)

	require.NoError(t, m.Close(sess.ID))
	for {
		ev = nextEvent(t, sub)
		if ev.Closed {
			break
		}
	}
	assert.False(t, ev.State.Playing)
}

func TestManager_WatchErrors(t *testing.T) {
	_, _, err := NewManager(ManagerConfig{Clock: newFakeClock()}).Watch(context.Background(), "any")
	assert.ErrorIs(t, err, ErrEventsDisabled)

	events := bus.NewMemoryBus()
	m := NewManager(ManagerConfig{Clock: newFakeClock(), Events: events})
	_, _, err = m.Watch(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, events.Subscribers(Topic("missing")))
}
