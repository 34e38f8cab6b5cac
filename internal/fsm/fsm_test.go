// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string
type event string

func lamp(t *testing.T) *Machine[state, event] {
	t.Helper()
	m, err := New[state, event]("off", []Transition[state, event]{
		{From: "off", Event: "press", To: "on"},
		{From: "on", Event: "press", To: "off"},
		{From: "on", Event: "break", To: "broken"},
	})
	require.NoError(t, err)
	return m
}

func TestMachine_Fire(t *testing.T) {
	m := lamp(t)
	ctx := context.Background()

	to, err := m.Fire(ctx, "press")
	require.NoError(t, err)
	assert.Equal(t, state("on"), to)
	assert.False(t, m.Terminal())

	_, err = m.Fire(ctx, "break")
	require.NoError(t, err)
	assert.True(t, m.Terminal())

	_, err = m.Fire(ctx, "press")
	assert.Error(t, err)
	assert.Equal(t, state("broken"), m.State())
}

func TestMachine_DuplicateTransition(t *testing.T) {
	_, err := New[state, event]("a", []Transition[state, event]{
		{From: "a", Event: "x", To: "b"},
		{From: "a", Event: "x", To: "c"},
	})
	assert.Error(t, err)
}

func TestMachine_GuardRejects(t *testing.T) {
	deny := errors.New("denied")
	m, err := New[state, event]("a", []Transition[state, event]{
		{From: "a", Event: "go", To: "b", Guard: func(context.Context, state, event) error { return deny }},
	})
	require.NoError(t, err)

	_, err = m.Fire(context.Background(), "go")
	assert.ErrorIs(t, err, deny)
	assert.Equal(t, state("a"), m.State())
}

func TestMachine_Observe(t *testing.T) {
	m := lamp(t)
	var seen []string
	m.Observe(func(from, to state, ev event) {
		seen = append(seen, string(from)+">"+string(to))
	})
	_, _ = m.Fire(context.Background(), "press")
	_, _ = m.Fire(context.Background(), "press")
	assert.Equal(t, []string{"off>on", "on>off"}, seen)
	assert.True(t, m.Can("press"))
	assert.False(t, m.Can("break"))
}
