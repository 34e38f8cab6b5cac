// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"errors"
	"time"

	"github.com/ManuGH/adreel/internal/render"
)

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("render job not found")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("render job manager closed")
	// ErrNotReady is returned when an artifact is requested before the job is done.
	ErrNotReady = errors.New("render job has no artifact")
	// ErrFinished is returned when canceling a job that already ended.
	ErrFinished = errors.New("render job already finished")
)

// Status is the externally visible job state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusPreloading Status = "preloading"
	StatusEncoding   Status = "encoding"
	StatusFinalizing Status = "finalizing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
	// StatusInterrupted marks jobs that were running when the process stopped.
	StatusInterrupted Status = "interrupted"
)

// Terminal reports whether no further updates follow.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusCanceled, StatusInterrupted:
		return true
	}
	return false
}

func statusOf(s render.State) Status {
	switch s {
	case render.StatePreloading:
		return StatusPreloading
	case render.StateEncoding:
		return StatusEncoding
	case render.StateFinalizing:
		return StatusFinalizing
	case render.StateDone:
		return StatusDone
	case render.StateFailed:
		return StatusFailed
	default:
		return StatusQueued
	}
}

// Job is a snapshot of one render job.
type Job struct {
	ID         string           `json:"id"`
	Title      string           `json:"title,omitempty"`
	Status     Status           `json:"status"`
	Progress   int              `json:"progress"`
	Phase      string           `json:"phase,omitempty"`
	Error      string           `json:"error,omitempty"`
	Artifact   *render.Artifact `json:"artifact,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
}

// Event is published on the job's topic for every status or progress change.
type Event struct {
	JobID    string    `json:"jobId"`
	Status   Status    `json:"status"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
	Terminal bool      `json:"terminal"`
	At       time.Time `json:"at"`
}

// Topic is the bus topic carrying a job's events.
func Topic(jobID string) string { return "render." + jobID }
