// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package timeline

import (
	"encoding/json"
	"fmt"
	"io"
)

// DefaultDuration is used when a manifest carries no usable duration.
const DefaultDuration = 30.0

// Manifest is the payload produced by the ad-generation service.
type Manifest struct {
	ID           string            `json:"id,omitempty"`
	Title        string            `json:"title,omitempty"`
	Duration     *float64          `json:"duration,omitempty"`
	Segments     []json.RawMessage `json:"segments"`
	AudioURL     string            `json:"audioUrl,omitempty"`
	MusicURL     string            `json:"musicUrl,omitempty"`
	VoiceoverURL string            `json:"voiceoverUrl,omitempty"`
	CreatedAt    string            `json:"createdAt,omitempty"`
}

type manifestSegment struct {
	ImageURL  *string  `json:"imageUrl"`
	StartTime *float64 `json:"startTime"`
	EndTime   *float64 `json:"endTime"`
	Caption   string   `json:"caption"`
}

// DecodeManifest reads a manifest and builds a Timeline from it.
// Segment entries lacking imageUrl, startTime or endTime are dropped; the remaining
// entries are kept as given (no overlap or ordering checks).
func DecodeManifest(r io.Reader) (Manifest, Timeline, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, Timeline{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, m.Timeline(), nil
}

// Timeline converts the manifest into the engines' input model.
func (m Manifest) Timeline() Timeline {
	tl := Timeline{
		Title:         m.Title,
		TotalDuration: DefaultDuration,
		NarrationRef:  m.VoiceoverURL,
		MusicRef:      m.AudioURL,
	}
	if m.MusicURL != "" {
		tl.MusicRef = m.MusicURL
	}
	if m.Duration != nil && *m.Duration > 0 {
		tl.TotalDuration = *m.Duration
	}
	tl.Segments = make([]Segment, 0, len(m.Segments))
	for _, raw := range m.Segments {
		var s manifestSegment
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if s.ImageURL == nil || s.StartTime == nil || s.EndTime == nil {
			continue
		}
		tl.Segments = append(tl.Segments, Segment{
			ImageRef: *s.ImageURL,
			Start:    *s.StartTime,
			End:      *s.EndTime,
			Caption:  s.Caption,
		})
	}
	return tl
}
