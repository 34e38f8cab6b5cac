// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/ManuGH/adreel/internal/config"
	"github.com/ManuGH/adreel/internal/log"
)

// PerformStartupChecks validates the environment before the server starts.
// A missing data directory is fatal; a missing ffmpeg only narrows the usable
// output formats and is logged.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if res := NewDirChecker("data_dir", cfg.DataDir).Check(context.Background()); res.Status != StatusHealthy {
		return fmt.Errorf("data directory check failed: %s (%s)", res.Error, cfg.DataDir)
	}

	if cfg.FFmpeg.Disabled {
		logger.Info().Msg("ffmpeg disabled, exports fall back to mjpeg")
		return nil
	}
	for _, bin := range []string{cfg.FFmpeg.Bin, cfg.FFmpeg.FFprobeBin} {
		if _, err := exec.LookPath(bin); err != nil {
			logger.Warn().Err(err).Str("bin", bin).Msg("media tool not found, exports fall back to mjpeg")
		}
	}
	logger.Info().Msg("startup checks passed")
	return nil
}
