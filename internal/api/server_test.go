// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/adreel/internal/bus"
	"github.com/ManuGH/adreel/internal/config"
	"github.com/ManuGH/adreel/internal/jobs"
	"github.com/ManuGH/adreel/internal/playback"
	"github.com/ManuGH/adreel/internal/render"
	"github.com/ManuGH/adreel/internal/timeline"
)

const manifestJSON = `{
	"title": "Summer Sale",
	"duration": 10,
	"segments": [
		{"imageUrl": "a.png", "startTime": 0, "endTime": 5, "caption": "first"},
		{"imageUrl": "b.png", "startTime": 5, "endTime": 10, "caption": "second"}
	]
}`

type fakeComposer struct{}

func (fakeComposer) Snapshot(_ context.Context, tl timeline.Timeline, _ float64) (*image.RGBA, error) {
	if tl.Empty() {
		return nil, render.ErrNoContent
	}
	img := image.NewRGBA(image.Rect(0, 0, 32, 18))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img, nil
}

func (fakeComposer) Formats(context.Context) []render.Format {
	return []render.Format{render.FormatMJPEG}
}

// fileRenderer writes a small artifact. When gate is set it waits for it first.
type fileRenderer struct {
	gate chan struct{}
}

func (f *fileRenderer) Render(ctx context.Context, req render.Request) (*render.Artifact, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	req.OnState(render.StatePreloading)
	req.Progress(20)
	req.OnState(render.StateEncoding)
	req.Progress(100)
	path := filepath.Join(req.OutputDir, req.ID+".avi")
	if err := os.WriteFile(path, []byte("RIFFdata"), 0o600); err != nil {
		return nil, err
	}
	return &render.Artifact{
		JobID:    req.ID,
		Path:     path,
		Filename: timeline.Filename(req.Timeline.Title, "avi"),
		MIMEType: render.FormatMJPEG.MIMEType,
		Codec:    "mjpeg",
		Size:     8,
	}, nil
}

type testEnv struct {
	handler  http.Handler
	previews *playback.Manager
	jobs     *jobs.Manager
	renderer *fileRenderer
	events   *bus.MemoryBus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.RateLimit.Enabled = false

	events := bus.NewMemoryBus()
	previews := playback.NewManager(playback.ManagerConfig{MaxSessions: 2, Tick: time.Hour, Events: events})
	renderer := &fileRenderer{}
	jm, err := jobs.NewManager(jobs.Config{ArtifactDir: t.TempDir()}, renderer, events, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		previews.CloseAll()
		_ = jm.Close(context.Background())
	})

	srv, err := New(cfg, Deps{Previews: previews, Renders: jm, Composer: fakeComposer{}})
	require.NoError(t, err)
	srv.heartbeat = 10 * time.Millisecond
	return &testEnv{handler: srv.Handler(), previews: previews, jobs: jm, renderer: renderer, events: events}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(config.Defaults(), Deps{})
	assert.Error(t, err)
}

func TestHealthEndpointsAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/readyz", "").Code)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestFormats(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/formats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]render.Format](t, rec)
	assert.Equal(t, []render.Format{render.FormatMJPEG}, body["formats"])
}

func TestPreview_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/previews", `{"manifest":`+manifestJSON+`,"autoPlay":false}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[playback.SessionView](t, rec)
	assert.False(t, view.State.Playing)
	assert.Equal(t, "Summer Sale", view.State.Title)
	assert.Equal(t, 2, view.State.SegmentCount)
	base := "/api/v1/previews/" + view.ID

	rec = env.do(t, http.MethodPost, base+"/actions/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[playback.SessionView](t, rec).State.Playing)

	rec = env.do(t, http.MethodPost, base+"/actions/mute", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[playback.SessionView](t, rec).State.Muted)

	rec = env.do(t, http.MethodPost, base+"/seek", `{"fraction":0.6}`)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[playback.SessionView](t, rec).State
	assert.InDelta(t, 6.0, st.CurrentTime, 1e-9)
	assert.Equal(t, 1, st.SegmentIndex)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, base+"/seek", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, base+"/actions/fly", "").Code)

	rec = env.do(t, http.MethodGet, "/api/v1/previews", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]playback.SessionView](t, rec)["previews"], 1)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, base, "").Code)
	rec = env.do(t, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestPreview_EmptyManifestIsNoContent(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/previews", `{"manifest":{"segments":[]}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	st := decode[playback.SessionView](t, rec).State
	assert.True(t, st.NoContent)
	assert.False(t, st.Playing)
}

func TestPreview_Limit(t *testing.T) {
	env := newTestEnv(t)
	body := `{"manifest":` + manifestJSON + `}`
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/previews", body).Code)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/previews", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodPost, "/api/v1/previews", body).Code)
}

func TestPreview_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/previews", `{"manifest":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decode[map[string]any](t, rec)
	assert.Equal(t, "INVALID_BODY", problem["code"])
	assert.NotEmpty(t, problem["requestId"])
	assert.Equal(t, rec.Header().Get("X-Request-ID"), problem["requestId"])
}

func readEvents(t *testing.T, body string) []string {
	t.Helper()
	var names []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	return names
}

func TestPreview_EventsFollowActionsUntilClosed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/previews", `{"manifest":`+manifestJSON+`,"autoPlay":false}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[playback.SessionView](t, rec).ID
	base := "/api/v1/previews/" + id

	events := make(chan *httptest.ResponseRecorder, 1)
	go func() { events <- env.do(t, http.MethodGet, base+"/events", "") }()
	require.Eventually(t, func() bool {
		return env.events.Subscribers(playback.Topic(id)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/actions/mute", "").Code)
	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, base, "").Code)

	var stream *httptest.ResponseRecorder
	select {
	case stream = <-events:
	case <-time.After(5 * time.Second):
		t.Fatal("preview event stream did not end")
	}
	assert.Equal(t, "text/event-stream", stream.Header().Get("Content-Type"))
	names := readEvents(t, stream.Body.String())
	require.GreaterOrEqual(t, len(names), 3, stream.Body.String())
	assert.Equal(t, "snapshot", names[0])
	assert.Contains(t, names, "state")
	assert.Equal(t, "closed", names[len(names)-1])
}

func TestPreview_EventsErrors(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/previews/missing/events", "").Code)
	assert.Zero(t, env.events.Subscribers(playback.Topic("missing")))
}

func TestRender_SubmitWatchDownload(t *testing.T) {
	env := newTestEnv(t)
	env.renderer.gate = make(chan struct{})

	rec := env.do(t, http.MethodPost, "/api/v1/renders", `{"manifest":`+manifestJSON+`}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	job := decode[jobs.Job](t, rec)
	assert.Equal(t, jobs.StatusQueued, job.Status)
	base := "/api/v1/renders/" + job.ID

	rec = env.do(t, http.MethodGet, base+"/artifact", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	events := make(chan *httptest.ResponseRecorder, 1)
	go func() { events <- env.do(t, http.MethodGet, base+"/events", "") }()
	require.Eventually(t, func() bool {
		return env.jobs.Bus().(*bus.MemoryBus).Subscribers(jobs.Topic(job.ID)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	close(env.renderer.gate)

	var stream *httptest.ResponseRecorder
	select {
	case stream = <-events:
	case <-time.After(5 * time.Second):
		t.Fatal("event stream did not end")
	}
	assert.Equal(t, "text/event-stream", stream.Header().Get("Content-Type"))
	names := readEvents(t, stream.Body.String())
	require.NotEmpty(t, names)
	assert.Equal(t, "snapshot", names[0])
	assert.Equal(t, "done", names[len(names)-1])

	rec = env.do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	done := decode[jobs.Job](t, rec)
	assert.Equal(t, jobs.StatusDone, done.Status)
	assert.Equal(t, 100, done.Progress)

	rec = env.do(t, http.MethodGet, base+"/artifact", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RIFFdata", rec.Body.String())
	assert.Equal(t, render.FormatMJPEG.MIMEType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".avi")

	rec = env.do(t, http.MethodGet, "/api/v1/renders?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]jobs.Job](t, rec)["renders"], 1)

	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodDelete, base, "").Code)
}

func TestRender_EventsOfFinishedJobEndImmediately(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/renders", `{"manifest":`+manifestJSON+`}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[jobs.Job](t, rec).ID

	require.Eventually(t, func() bool {
		j, err := env.jobs.Get(context.Background(), id)
		return err == nil && j.Status == jobs.StatusDone
	}, 2*time.Second, 5*time.Millisecond)

	rec = env.do(t, http.MethodGet, "/api/v1/renders/"+id+"/events", "")
	assert.Equal(t, []string{"snapshot"}, readEvents(t, rec.Body.String()))
}

func TestRender_Cancel(t *testing.T) {
	env := newTestEnv(t)
	env.renderer.gate = make(chan struct{})
	rec := env.do(t, http.MethodPost, "/api/v1/renders", `{"manifest":`+manifestJSON+`}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[jobs.Job](t, rec).ID

	assert.Equal(t, http.StatusAccepted, env.do(t, http.MethodDelete, "/api/v1/renders/"+id, "").Code)
	require.Eventually(t, func() bool {
		j, err := env.jobs.Get(context.Background(), id)
		return err == nil && j.Status == jobs.StatusCanceled
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRender_Errors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/renders", `{"manifest":{"segments":[{"caption":"no image"}]}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "NO_CONTENT", decode[map[string]any](t, rec)["code"])

	rec = env.do(t, http.MethodGet, "/api/v1/renders/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "render/not_found", decode[map[string]any](t, rec)["type"])

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/renders/missing/events", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/renders?limit=x", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/nothing", "").Code)
}

func TestSnapshot(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/snapshots", `{"manifest":`+manifestJSON+`,"time":2.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 18), img.Bounds())

	rec = env.do(t, http.MethodPost, "/api/v1/snapshots", `{"manifest":{"segments":[]}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
