// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/ManuGH/adreel/internal/daemon"
	xglog "github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/render"
	"github.com/ManuGH/adreel/internal/timeline"
)

// runRender exports one manifest to a video file without starting the server.
func runRender(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("adreel render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := configPathFlag(fs)
	manifestPath := fs.String("manifest", "", "manifest JSON file, - for stdin")
	out := fs.String("out", "", "output file or directory (default: derived from the title in the current directory)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *manifestPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -manifest is required")
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	_, tl, err := readManifest(*manifestPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	eng, err := daemon.NewRenderEngine(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	workDir, err := os.MkdirTemp(cfg.DataDir, "cli-render-*")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	logger := xglog.WithComponent("render-cli")
	last := -1
	art, err := eng.Render(ctx, render.Request{
		ID:        uuid.NewString(),
		Timeline:  tl,
		OutputDir: workDir,
		Progress: func(p int) {
			if p/10 != last/10 {
				logger.Info().Int("progress", p).Msg("rendering")
			}
			last = p
		},
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Render failed: %v\n", err)
		return 1
	}

	dest := resolveOutput(*out, art.Filename)
	if err := moveFile(art.Path, dest); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "%s (%s, %d frames, %d bytes)\n", dest, art.Codec, art.Frames, art.Size)
	return 0
}

func readManifest(path string) (timeline.Manifest, timeline.Timeline, error) {
	if path == "-" {
		return timeline.DecodeManifest(os.Stdin)
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return timeline.Manifest{}, timeline.Timeline{}, err
	}
	defer func() { _ = f.Close() }()
	return timeline.DecodeManifest(f)
}

// resolveOutput places the artifact: an empty out uses the suggested name in
// the working directory, an existing directory receives the suggested name.
func resolveOutput(out, suggested string) string {
	if out == "" {
		return suggested
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, suggested)
	}
	return out
}

// moveFile renames src to dst, copying atomically when they are on different
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	pending, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o640))
	if err != nil {
		return err
	}
	defer func() { _ = pending.Cleanup() }()
	if _, err := io.Copy(pending, in); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}
