// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package render

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/adreel/internal/fsm"
	xglog "github.com/ManuGH/adreel/internal/log"
)

// State is a render job lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StatePreloading State = "preloading"
	StateEncoding   State = "encoding"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Event drives a render job between states.
type Event string

const (
	EventStart    Event = "start"
	EventEncode   Event = "encode"
	EventFinalize Event = "finalize"
	EventComplete Event = "complete"
	EventFail     Event = "fail"
)

// Progress checkpoints.
const (
	ProgressPreloaded = 20
	ProgressReady     = 30
	ProgressFramesEnd = 90
	ProgressDone      = 100
)

var jobTransitions = []fsm.Transition[State, Event]{
	{From: StateIdle, Event: EventStart, To: StatePreloading},
	{From: StatePreloading, Event: EventEncode, To: StateEncoding},
	{From: StateEncoding, Event: EventFinalize, To: StateFinalizing},
	{From: StateFinalizing, Event: EventComplete, To: StateDone},
	{From: StatePreloading, Event: EventFail, To: StateFailed},
	{From: StateEncoding, Event: EventFail, To: StateFailed},
	{From: StateFinalizing, Event: EventFail, To: StateFailed},
}

// job is the ephemeral state of one export.
type job struct {
	id       string
	machine  *fsm.Machine[State, Event]
	progress ProgressFunc

	mu   sync.Mutex
	last int
}

func newJob(id string, progress ProgressFunc, onState StateFunc, logger zerolog.Logger) *job {
	m, err := fsm.New(StateIdle, jobTransitions)
	if err != nil {
		// static table
		panic(err)
	}
	m.Observe(func(from, to State, event Event) {
		logger.Debug().
			Str(xglog.FieldOldState, string(from)).
			Str(xglog.FieldNewState, string(to)).
			Str(xglog.FieldEvent, string(event)).
			Msg("render job transition")
		if onState != nil {
			onState(to)
		}
	})
	return &job{id: id, machine: m, progress: progress}
}

func (j *job) state() State { return j.machine.State() }

func (j *job) fire(ctx context.Context, ev Event) error {
	_, err := j.machine.Fire(ctx, ev)
	return err
}

// report emits p if it moves progress forward.
func (j *job) report(p int) {
	j.mu.Lock()
	if p <= j.last {
		j.mu.Unlock()
		return
	}
	j.last = p
	j.mu.Unlock()
	if j.progress != nil {
		j.progress(p)
	}
}

// reset drops progress back to 0 after a failure.
func (j *job) reset() {
	j.mu.Lock()
	changed := j.last != 0
	j.last = 0
	j.mu.Unlock()
	if changed && j.progress != nil {
		j.progress(0)
	}
}

// frameProgress is the progress after frame i of n has been emitted.
func frameProgress(i, n int) int {
	if n <= 0 {
		return ProgressReady
	}
	return ProgressReady + (i+1)*(ProgressFramesEnd-ProgressReady)/n
}
