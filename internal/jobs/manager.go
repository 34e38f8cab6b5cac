// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package jobs runs render jobs in the background and tracks their progress.
package jobs

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/adreel/internal/bus"
	xglog "github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/metrics"
	"github.com/ManuGH/adreel/internal/render"
	"github.com/ManuGH/adreel/internal/timeline"
)

const (
	progressPublishTimeout = 100 * time.Millisecond
	finalPublishTimeout    = 2 * time.Second
	storeTimeout           = 5 * time.Second
)

// Renderer produces one artifact per request.
type Renderer interface {
	Render(ctx context.Context, req render.Request) (*render.Artifact, error)
}

// Config bounds the manager.
type Config struct {
	// MaxConcurrent is the number of renders running at once.
	MaxConcurrent int
	// ArtifactDir receives committed outputs.
	ArtifactDir string
	// Retain is how many finished jobs stay in memory; older ones are served from the store.
	Retain int
	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

type entry struct {
	job    Job
	cancel context.CancelFunc
}

// Manager owns the render jobs of one process.
type Manager struct {
	cfg      Config
	renderer Renderer
	bus      bus.Bus
	store    *Store
	sem      *semaphore.Weighted
	logger   zerolog.Logger

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	jobs   map[string]*entry
	order  []string
	closed bool
}

// NewManager creates a manager. store may be nil for an in-memory history.
func NewManager(cfg Config, r Renderer, b bus.Bus, store *Store) (*Manager, error) {
	if r == nil {
		return nil, errors.New("jobs: renderer is required")
	}
	if b == nil {
		b = bus.NewMemoryBus()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Retain <= 0 {
		cfg.Retain = 100
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ArtifactDir == "" {
		return nil, errors.New("jobs: artifact dir is required")
	}
	if err := os.MkdirAll(cfg.ArtifactDir, 0o750); err != nil {
		return nil, err
	}
	ctx, stop := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		renderer: r,
		bus:      b,
		store:    store,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:   xglog.WithComponent("jobs"),
		ctx:      ctx,
		stop:     stop,
		jobs:     make(map[string]*entry),
	}
	if store != nil {
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		n, err := store.MarkInterrupted(sctx, cfg.Now())
		cancel()
		if err != nil {
			stop()
			return nil, err
		}
		if n > 0 {
			m.logger.Warn().Int64("jobs", n).Msg("marked unfinished render jobs as interrupted")
		}
	}
	return m, nil
}

// Bus returns the event bus the manager publishes on.
func (m *Manager) Bus() bus.Bus { return m.bus }

// Submit validates tl, queues a render and returns the queued job.
func (m *Manager) Submit(ctx context.Context, tl timeline.Timeline) (Job, error) {
	if tl.Empty() {
		return Job{}, render.ErrNoContent
	}
	now := m.cfg.Now().UTC()
	job := Job{
		ID:        uuid.NewString(),
		Title:     tl.Title,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	jobCtx, cancel := context.WithCancel(m.ctx)
	jobCtx = xglog.ContextWithJobID(jobCtx, job.ID)
	if reqID := xglog.RequestIDFromContext(ctx); reqID != "" {
		jobCtx = xglog.ContextWithRequestID(jobCtx, reqID)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return Job{}, ErrClosed
	}
	m.jobs[job.ID] = &entry{job: job, cancel: cancel}
	m.order = append(m.order, job.ID)
	m.wg.Add(1)
	m.mu.Unlock()

	m.persist(job)
	metrics.RenderJobsQueued.Inc()
	logger := xglog.WithContext(jobCtx, m.logger)
	logger.Info().
		Str(xglog.FieldEvent, "job.submitted").
		Int("segments", len(tl.Segments)).
		Msg("render job queued")

	go m.run(jobCtx, job.ID, tl)
	return job, nil
}

func (m *Manager) run(ctx context.Context, id string, tl timeline.Timeline) {
	defer m.wg.Done()
	logger := xglog.WithContext(ctx, m.logger)

	err := m.sem.Acquire(ctx, 1)
	metrics.RenderJobsQueued.Dec()
	if err != nil {
		m.finish(id, nil, err)
		return
	}
	defer m.sem.Release(1)

	art, err := m.renderer.Render(ctx, render.Request{
		ID:        id,
		Timeline:  tl,
		OutputDir: m.cfg.ArtifactDir,
		Progress:  func(p int) { m.update(id, func(j *Job) { j.Progress = p }, false) },
		OnState: func(s render.State) {
			if s == render.StateDone || s == render.StateFailed {
				// The outcome is recorded by finish.
				return
			}
			m.update(id, func(j *Job) { j.Status = statusOf(s); j.Phase = string(s) }, true)
		},
	})
	if err != nil {
		logger.Debug().Err(err).Msg("render returned error")
	}
	m.finish(id, art, err)
}

// update applies fn to the job and publishes the result. Status changes are persisted.
func (m *Manager) update(id string, fn func(*Job), persist bool) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok || e.job.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	fn(&e.job)
	e.job.UpdatedAt = m.cfg.Now().UTC()
	snap := e.job
	m.mu.Unlock()

	if persist {
		m.persist(snap)
	}
	m.publish(snap, progressPublishTimeout)
}

func (m *Manager) finish(id string, art *render.Artifact, err error) {
	now := m.cfg.Now().UTC()
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	j := &e.job
	switch {
	case err == nil:
		j.Status, j.Progress, j.Artifact = StatusDone, render.ProgressDone, art
	case errors.Is(err, context.Canceled):
		j.Status, j.Progress, j.Error = StatusCanceled, 0, "canceled"
	default:
		j.Status, j.Progress, j.Error = StatusFailed, 0, err.Error()
		var jobErr *render.JobError
		if errors.As(err, &jobErr) {
			j.Phase = string(jobErr.Phase)
		}
	}
	j.UpdatedAt, j.FinishedAt = now, &now
	e.cancel()
	snap := *j
	m.mu.Unlock()

	m.persist(snap)
	m.publish(snap, finalPublishTimeout)
	m.prune()

	logger := xglog.WithContext(xglog.ContextWithJobID(context.Background(), id), m.logger)
	ev := logger.Info()
	if snap.Status == StatusFailed {
		ev = logger.Warn().Str(xglog.FieldPhase, snap.Phase).Str("error", snap.Error)
	}
	ev.Str(xglog.FieldEvent, "job.finished").Str("status", string(snap.Status)).Msg("render job finished")
}

func (m *Manager) publish(j Job, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = m.bus.Publish(ctx, Topic(j.ID), Event{
		JobID:    j.ID,
		Status:   j.Status,
		Progress: j.Progress,
		Error:    j.Error,
		Terminal: j.Status.Terminal(),
		At:       j.UpdatedAt,
	})
}

func (m *Manager) persist(j Job) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.store.Put(ctx, j); err != nil {
		metrics.JobStoreErrorsTotal.WithLabelValues("put").Inc()
		m.logger.Warn().Err(err).Str(xglog.FieldJobID, j.ID).Msg("failed to persist render job")
	}
}

// prune drops the oldest finished jobs beyond the retention from memory.
func (m *Manager) prune() {
	m.mu.Lock()
	defer m.mu.Unlock()
	finished := 0
	for _, id := range m.order {
		if m.jobs[id].job.Status.Terminal() {
			finished++
		}
	}
	excess := finished - m.cfg.Retain
	if excess <= 0 {
		return
	}
	m.order = slices.DeleteFunc(m.order, func(id string) bool {
		if excess > 0 && m.jobs[id].job.Status.Terminal() {
			delete(m.jobs, id)
			excess--
			return true
		}
		return false
	})
}

// Get returns a job snapshot from memory or the store.
func (m *Manager) Get(ctx context.Context, id string) (Job, error) {
	m.mu.RLock()
	e, ok := m.jobs[id]
	var snap Job
	if ok {
		snap = e.job
	}
	m.mu.RUnlock()
	if ok {
		return snap, nil
	}
	if m.store == nil {
		return Job{}, ErrNotFound
	}
	return m.store.Get(ctx, id)
}

// List returns up to limit jobs, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	out := make([]Job, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.jobs[m.order[i]].job)
	}
	m.mu.RUnlock()
	if m.store == nil {
		return out[:min(limit, len(out))], nil
	}

	stored, err := m.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(out))
	for _, j := range out {
		seen[j.ID] = true
	}
	for _, j := range stored {
		if !seen[j.ID] {
			out = append(out, j)
		}
	}
	slices.SortStableFunc(out, func(a, b Job) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out[:min(limit, len(out))], nil
}

// Artifact returns the committed output of a finished job.
func (m *Manager) Artifact(ctx context.Context, id string) (render.Artifact, error) {
	j, err := m.Get(ctx, id)
	if err != nil {
		return render.Artifact{}, err
	}
	if j.Status != StatusDone || j.Artifact == nil {
		return render.Artifact{}, ErrNotReady
	}
	return *j.Artifact, nil
}

// Watch subscribes to a job's events and returns the current snapshot. The
// snapshot is taken after subscribing, so no transition is missed in between.
func (m *Manager) Watch(ctx context.Context, id string) (Job, bus.Subscriber, error) {
	sub, err := m.bus.Subscribe(ctx, Topic(id))
	if err != nil {
		return Job{}, nil, err
	}
	j, err := m.Get(ctx, id)
	if err != nil {
		_ = sub.Close()
		return Job{}, nil, err
	}
	return j, sub, nil
}

// Cancel stops a queued or running job.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	e, ok := m.jobs[id]
	var terminal bool
	if ok {
		terminal = e.job.Status.Terminal()
	}
	m.mu.RUnlock()
	switch {
	case !ok:
		return ErrNotFound
	case terminal:
		return ErrFinished
	}
	e.cancel()
	return nil
}

// Active returns the number of unfinished jobs.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.jobs {
		if !e.job.Status.Terminal() {
			n++
		}
	}
	return n
}

// Expire deletes finished jobs older than maxAge from the store and removes
// their artifacts. It is a no-op without a store.
func (m *Manager) Expire(ctx context.Context, maxAge time.Duration) (int, error) {
	if m.store == nil || maxAge <= 0 {
		return 0, nil
	}
	paths, err := m.store.Prune(ctx, m.cfg.Now().Add(-maxAge))
	if err != nil {
		metrics.JobStoreErrorsTotal.WithLabelValues("prune").Inc()
		return 0, err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn().Err(err).Str(xglog.FieldPath, p).Msg("failed to remove expired artifact")
		}
	}
	return len(paths), nil
}

// Run expires old jobs every interval until ctx ends.
func (m *Manager) Run(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := m.Expire(ctx, maxAge); err != nil {
				m.logger.Warn().Err(err).Msg("render job expiry failed")
			} else if n > 0 {
				m.logger.Info().Int("jobs", n).Msg("expired render jobs")
			}
		}
	}
}

// Close rejects new jobs, cancels running ones and waits for them until ctx ends.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
