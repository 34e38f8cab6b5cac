// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuGH/adreel/internal/render"
)

// VideoBitrate matches the capture bitrate of the browser recorder.
const VideoBitrate = "5M"

// buildArgs returns the ffmpeg arguments for one encode: raw RGBA frames on stdin,
// each audio input looped indefinitely and mixed, WebM on stdout cut at the stream
// duration.
func buildArgs(s render.Stream, audio *render.AudioMix) ([]string, error) {
	var vcodec []string
	switch s.Format.VideoCodec {
	case "vp9":
		vcodec = []string{"-c:v", encVP9, "-row-mt", "1"}
	case "vp8":
		vcodec = []string{"-c:v", encVP8}
	default:
		return nil, fmt.Errorf("ffmpeg: unsupported video codec %q", s.Format.VideoCodec)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-nostats", "-progress", "pipe:2",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", s.Width, s.Height),
		"-r", strconv.Itoa(s.FPS),
		"-i", "pipe:0",
	}

	var inputs []render.AudioInput
	if s.Format.HasAudio() && !audio.Empty() {
		inputs = audio.Inputs
	}
	for _, in := range inputs {
		args = append(args, "-stream_loop", "-1", "-i", in.Path)
	}

	args = append(args, "-map", "0:v")
	switch len(inputs) {
	case 0:
	case 1:
		args = append(args, "-map", "1:a")
	default:
		labels := make([]string, len(inputs))
		for i := range inputs {
			labels[i] = fmt.Sprintf("[%d:a]", i+1)
		}
		graph := fmt.Sprintf("%samix=inputs=%d:duration=longest:normalize=0[aout]", strings.Join(labels, ""), len(inputs))
		args = append(args, "-filter_complex", graph, "-map", "[aout]")
	}

	args = append(args, vcodec...)
	args = append(args,
		"-b:v", VideoBitrate,
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-pix_fmt", "yuv420p",
	)
	if len(inputs) > 0 {
		args = append(args, "-c:a", encOpus, "-b:a", "128k")
	}
	if s.Duration > 0 {
		args = append(args, "-t", strconv.FormatFloat(s.Duration.Seconds(), 'f', 3, 64))
	}
	args = append(args, "-f", "webm", "pipe:1")
	return args, nil
}
