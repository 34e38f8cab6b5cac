// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package timeline holds the segment model shared by the playback and render engines
// and the single segment-resolution rule both of them use.
package timeline

import (
	"math"
	"time"
)

// Segment is one still-image shot of an ad. Times are seconds on the single-loop timeline.
type Segment struct {
	ImageRef string  `json:"imageUrl"`
	Start    float64 `json:"startTime"`
	End      float64 `json:"endTime"`
	Caption  string  `json:"caption,omitempty"`
}

// Timeline is the read-only input of both engines.
//
// TotalDuration is independent of the segments: it may be longer or shorter than
// the last segment's end.
type Timeline struct {
	Segments      []Segment `json:"segments"`
	TotalDuration float64   `json:"totalDuration"`
	Title         string    `json:"title,omitempty"`
	NarrationRef  string    `json:"narrationUrl,omitempty"`
	MusicRef      string    `json:"musicUrl,omitempty"`
}

// Empty reports the explicit "no content" state: nothing can ever be resolved.
func (tl *Timeline) Empty() bool {
	return tl == nil || len(tl.Segments) == 0 || tl.TotalDuration <= 0
}

// Duration returns TotalDuration as a time.Duration rounded to the millisecond.
func (tl *Timeline) Duration() time.Duration {
	if tl == nil || tl.TotalDuration <= 0 {
		return 0
	}
	return time.Duration(math.Round(tl.TotalDuration*1000)) * time.Millisecond
}

// HasAudio reports whether narration or music is configured.
func (tl *Timeline) HasAudio() bool {
	return tl != nil && (tl.NarrationRef != "" || tl.MusicRef != "")
}

// LoopedTime maps t onto [0, TotalDuration).
func (tl *Timeline) LoopedTime(t float64) float64 {
	if tl == nil || tl.TotalDuration <= 0 {
		return 0
	}
	looped := math.Mod(t, tl.TotalDuration)
	if looped < 0 {
		looped += tl.TotalDuration
	}
	return looped
}

// ResolveIndex returns the index of the segment visible at t.
//
// Segments are scanned in the order supplied and the first one whose [Start, End)
// contains the looped time wins, so unsorted or overlapping input is tolerated.
// When nothing matches (a gap, or before the first start) the first segment is
// returned: gaps show segment 0 rather than a blank frame.
// ok is false only for the no-content state.
func (tl *Timeline) ResolveIndex(t float64) (idx int, ok bool) {
	if tl.Empty() {
		return 0, false
	}
	looped := tl.LoopedTime(t)
	for i, s := range tl.Segments {
		if looped >= s.Start && looped < s.End {
			return i, true
		}
	}
	return 0, true
}

// Resolve returns the segment visible at t. See ResolveIndex.
func (tl *Timeline) Resolve(t float64) (Segment, bool) {
	idx, ok := tl.ResolveIndex(t)
	if !ok {
		return Segment{}, false
	}
	return tl.Segments[idx], true
}

// ImageRefs returns the distinct image references in first-seen order.
func (tl *Timeline) ImageRefs() []string {
	if tl == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(tl.Segments))
	out := make([]string, 0, len(tl.Segments))
	for _, s := range tl.Segments {
		if _, dup := seen[s.ImageRef]; dup {
			continue
		}
		seen[s.ImageRef] = struct{}{}
		out = append(out, s.ImageRef)
	}
	return out
}
