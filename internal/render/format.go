// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package render

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoCodec is returned when no preferred format is available.
var ErrNoCodec = errors.New("render: no supported output format")

// Format is a negotiated container and codec combination.
type Format struct {
	Name       string `json:"name"`
	Container  string `json:"container"`
	VideoCodec string `json:"videoCodec"`
	AudioCodec string `json:"audioCodec,omitempty"`
	MIMEType   string `json:"mimeType"`
	Ext        string `json:"ext"`
}

// HasAudio reports whether the format carries an audio stream.
func (f Format) HasAudio() bool { return f.AudioCodec != "" }

var (
	FormatVP9 = Format{
		Name:       "vp9",
		Container:  "webm",
		VideoCodec: "vp9",
		AudioCodec: "opus",
		MIMEType:   "video/webm;codecs=vp9,opus",
		Ext:        "webm",
	}
	FormatVP8 = Format{
		Name:       "vp8",
		Container:  "webm",
		VideoCodec: "vp8",
		AudioCodec: "opus",
		MIMEType:   "video/webm;codecs=vp8,opus",
		Ext:        "webm",
	}
	// FormatMJPEG is the generic container fallback: Motion JPEG in AVI, no audio.
	FormatMJPEG = Format{
		Name:       "mjpeg",
		Container:  "avi",
		VideoCodec: "mjpeg",
		MIMEType:   "video/x-msvideo",
		Ext:        "avi",
	}
)

// DefaultPreferences is the codec preference order.
var DefaultPreferences = []string{FormatVP9.Name, FormatVP8.Name, FormatMJPEG.Name}

// Negotiate returns the first preference present in available. The result depends
// only on the two inputs.
func Negotiate(preferences []string, available []Format) (Format, error) {
	byName := make(map[string]Format, len(available))
	for _, f := range available {
		key := strings.ToLower(f.Name)
		if _, dup := byName[key]; !dup {
			byName[key] = f
		}
	}
	for _, p := range preferences {
		if f, ok := byName[strings.ToLower(strings.TrimSpace(p))]; ok {
			return f, nil
		}
	}
	names := make([]string, 0, len(available))
	for _, f := range available {
		names = append(names, f.Name)
	}
	return Format{}, fmt.Errorf("%w: want %v, have %v", ErrNoCodec, preferences, names)
}
