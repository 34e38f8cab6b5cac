// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/adreel/internal/config"
	"github.com/ManuGH/adreel/internal/jobs"
)

func testAppConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.DataDir = t.TempDir()
	cfg.Server = testServerConfig()
	cfg.Server.RateLimit.Enabled = false
	cfg.FFmpeg.Disabled = true
	cfg.Render.Width = 64
	cfg.Render.Height = 36
	cfg.Render.FPS = 5
	cfg.Render.Pace = false
	return cfg
}

func writeImage(t *testing.T, dir string, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	for y := 0; y < 9; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	p := filepath.Join(dir, fmt.Sprintf("%02x%02x.png", c.(color.RGBA).R, c.(color.RGBA).G))
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return p
}

func TestBootstrap_EndToEnd(t *testing.T) {
	cfg := testAppConfig(t)
	assetDir := t.TempDir()
	red := writeImage(t, assetDir, color.RGBA{R: 255, A: 255})
	green := writeImage(t, assetDir, color.RGBA{G: 255, A: 255})
	manifest := fmt.Sprintf(`{"title":"Launch","duration":1,"segments":[
		{"imageUrl":%q,"startTime":0,"endTime":0.5},
		{"imageUrl":%q,"startTime":0.5,"endTime":1}]}`, red, green)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := Bootstrap(ctx, cfg)
	require.NoError(t, err)
	m, err := rt.Daemon()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	addr, err := m.Addr(ctx)
	require.NoError(t, err)
	base := "http://" + addr.String()
	client := newTestClient()

	resp, err := client.Get(base + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Post(base+"/api/v1/snapshots", "application/json",
		bytes.NewBufferString(`{"manifest":`+manifest+`,"time":0.75}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap, err := png.Decode(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 36), snap.Bounds())

	resp, err = client.Post(base+"/api/v1/renders", "application/json", bytes.NewBufferString(`{"manifest":`+manifest+`}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var job jobs.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	_ = resp.Body.Close()

	var final jobs.Job
	require.Eventually(t, func() bool {
		r, err := client.Get(base + "/api/v1/renders/" + job.ID)
		if err != nil {
			return false
		}
		defer func() { _ = r.Body.Close() }()
		var j jobs.Job
		if json.NewDecoder(r.Body).Decode(&j) != nil {
			return false
		}
		final = j
		return j.Status.Terminal()
	}, 10*time.Second, 20*time.Millisecond)
	require.Equal(t, jobs.StatusDone, final.Status, final.Error)

	resp, err = client.Get(base + "/api/v1/renders/" + job.ID + "/artifact")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/x-msvideo", resp.Header.Get("Content-Type"))
	assert.Equal(t, "RIFF", string(body[:4]))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Launch-full-video.avi")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}

	// Finished jobs survive a restart through the store.
	rt2, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, rt2.Close(context.Background())) }()
	got, err := rt2.Jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusDone, got.Status)
	require.NotNil(t, got.Artifact)
	assert.Equal(t, "mjpeg", got.Artifact.Codec)
}

func TestNewRenderEngine_FormatsWithoutFFmpeg(t *testing.T) {
	cfg := testAppConfig(t)
	eng, err := NewRenderEngine(cfg)
	require.NoError(t, err)
	formats := eng.Formats(context.Background())
	require.Len(t, formats, 1)
	assert.Equal(t, "mjpeg", formats[0].Name)
	assert.DirExists(t, filepath.Join(cfg.DataDir, "work"))
}
