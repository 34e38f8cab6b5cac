// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpeg encodes rendered frames through an external ffmpeg process.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Encoder names looked up in `ffmpeg -encoders`.
const (
	encVP9  = "libvpx-vp9"
	encVP8  = "libvpx"
	encOpus = "libopus"
)

// Capabilities is the encoder set of an ffmpeg binary.
type Capabilities struct {
	Encoders map[string]bool
}

func (c Capabilities) Has(name string) bool { return c.Encoders[name] }

// ProbeEncoders runs `ffmpeg -hide_banner -encoders` and parses the listing.
func ProbeEncoders(ctx context.Context, bin string) (Capabilities, error) {
	out, err := exec.CommandContext(ctx, bin, "-hide_banner", "-encoders").Output()
	if err != nil {
		return Capabilities{}, fmt.Errorf("ffmpeg -encoders: %w", err)
	}
	return parseEncoders(out), nil
}

// parseEncoders reads lines like " V....D libvpx-vp9  libvpx VP9 (codec vp9)".
// Everything before the "------" separator is the legend.
func parseEncoders(out []byte) Capabilities {
	caps := Capabilities{Encoders: make(map[string]bool)}
	sc := bufio.NewScanner(bytes.NewReader(out))
	listing := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !listing {
			listing = strings.HasPrefix(line, "------")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		caps.Encoders[fields[1]] = true
	}
	return caps
}

// ProbeDuration returns the container duration of an audio or video file via ffprobe.
func ProbeDuration(ctx context.Context, ffprobe, path string) (time.Duration, error) {
	out, err := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseDuration(string(out))
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if secs < 0 {
		return 0, nil
	}
	return time.Duration(secs * float64(time.Second)).Round(time.Millisecond), nil
}
