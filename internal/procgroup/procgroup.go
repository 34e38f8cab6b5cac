// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts encoder subprocesses in their own process group so that
// the whole tree can be reaped on abort.
package procgroup

import "strings"

// isGone reports whether a kill error only says the process already exited.
func isGone(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "process already finished") || strings.Contains(msg, "no such process")
}
