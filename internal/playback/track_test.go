// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualTrack_AutoplayPolicy(t *testing.T) {
	gate := NewActivationGate()
	clock := newFakeClock()
	tr := NewVirtualTrack("narration", 10*time.Second, gate, clock.Now)

	require.ErrorIs(t, tr.Play(), ErrAutoplayBlocked)
	assert.False(t, tr.State().Playing)

	tr.SetMuted(true)
	require.NoError(t, tr.Play())
	assert.True(t, tr.State().Playing)

	gate.Activate()
	tr.SetMuted(false)
	require.NoError(t, tr.Play())
	assert.Equal(t, 2, tr.State().Plays)
}

func TestVirtualTrack_NilGateIsActive(t *testing.T) {
	var gate *ActivationGate
	assert.True(t, gate.Active())
	gate.Activate()

	tr := NewVirtualTrack("music", 0, nil, nil)
	require.NoError(t, tr.Play())
}

func TestVirtualTrack_PositionLoopsAtNativeDuration(t *testing.T) {
	clock := newFakeClock()
	tr := NewVirtualTrack("music", 4*time.Second, nil, clock.Now)
	require.NoError(t, tr.Play())

	clock.advance(3 * time.Second)
	assert.Equal(t, 3*time.Second, tr.State().Position)

	clock.advance(2 * time.Second)
	assert.Equal(t, time.Second, tr.State().Position)

	tr.Pause()
	clock.advance(time.Minute)
	assert.Equal(t, time.Second, tr.State().Position, "paused tracks do not advance")
}

func TestVirtualTrack_SeekWhilePlaying(t *testing.T) {
	clock := newFakeClock()
	tr := NewVirtualTrack("music", 0, nil, clock.Now)
	require.NoError(t, tr.Play())
	clock.advance(5 * time.Second)

	tr.Seek(0)
	assert.Equal(t, time.Duration(0), tr.State().Position)
	clock.advance(time.Second)
	assert.Equal(t, time.Second, tr.State().Position)
}
