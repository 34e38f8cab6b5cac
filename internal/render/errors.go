// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package render

import (
	"errors"
	"fmt"
)

// ErrNoContent rejects a timeline without segments before any work starts.
var ErrNoContent = errors.New("render: timeline has no segments")

// JobError is the single terminal failure of a render job.
type JobError struct {
	JobID string
	Phase State
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("render job %s failed during %s: %v", e.JobID, e.Phase, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }
