// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/adreel/internal/bus"
	xglog "github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/metrics"
	"github.com/ManuGH/adreel/internal/timeline"
)

var (
	ErrSessionNotFound = errors.New("playback: session not found")
	ErrTooManySessions = errors.New("playback: session limit reached")
	ErrEventsDisabled  = errors.New("playback: session events are not enabled")
)

// eventTimeout bounds how long a state change waits on a full watcher buffer.
const eventTimeout = 50 * time.Millisecond

// Topic is the bus topic carrying a preview session's events.
func Topic(sessionID string) string { return "preview." + sessionID }

// Event is published on a session's topic after every state change, and once
// with Closed set when the session is torn down.
type Event struct {
	SessionID string `json:"sessionId"`
	State     State  `json:"state"`
	Closed    bool   `json:"closed,omitempty"`
}

// ManagerConfig bounds the preview session registry.
type ManagerConfig struct {
	MaxSessions  int
	IdleTimeout  time.Duration
	Tick         time.Duration
	ControlsHide time.Duration
	Clock        Clock
	// Events receives session events; nil disables Watch.
	Events bus.Bus
}

// Session is one registered preview.
type Session struct {
	ID        string
	CreatedAt time.Time
	Engine    *Engine
	Tracks    []*VirtualTrack
	Gate      *ActivationGate

	mu       sync.Mutex
	lastSeen time.Time
}

// Touch records activity on the session.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns the time of the most recent activity.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SessionView is the serializable form of a session.
type SessionView struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"createdAt"`
	State     State        `json:"state"`
	Tracks    []TrackState `json:"tracks,omitempty"`
}

// View snapshots the session.
func (s *Session) View() SessionView {
	v := SessionView{ID: s.ID, CreatedAt: s.CreatedAt, State: s.Engine.Snapshot()}
	for _, tr := range s.Tracks {
		v.Tracks = append(v.Tracks, tr.State())
	}
	return v
}

// Manager owns every live preview session. Sessions are independent: each has its
// own engine, clock timers, tracks and activation gate.
type Manager struct {
	cfg    ManagerConfig
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty registry.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	return &Manager{
		cfg:      cfg,
		logger:   xglog.WithComponent("playback"),
		sessions: make(map[string]*Session),
	}
}

// CreateOptions are the per-session knobs.
type CreateOptions struct {
	AutoPlay bool
	Muted    bool
	// NarrationDuration and MusicDuration are the native track lengths, 0 when unknown.
	NarrationDuration time.Duration
	MusicDuration     time.Duration
}

// Create registers a new session for tl. One virtual track is created per audio
// reference on the timeline; all of them share the session's activation gate.
func (m *Manager) Create(tl timeline.Timeline, opts CreateOptions) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		return nil, ErrTooManySessions
	}

	now := m.cfg.Clock.Now()
	gate := NewActivationGate()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Gate:      gate,
		lastSeen:  now,
	}
	if tl.NarrationRef != "" {
		sess.Tracks = append(sess.Tracks, NewVirtualTrack("narration", opts.NarrationDuration, gate, m.cfg.Clock.Now))
	}
	if tl.MusicRef != "" {
		sess.Tracks = append(sess.Tracks, NewVirtualTrack("music", opts.MusicDuration, gate, m.cfg.Clock.Now))
	}
	tracks := make([]AudioTrack, 0, len(sess.Tracks))
	for _, tr := range sess.Tracks {
		tr.SetMuted(opts.Muted)
		tracks = append(tracks, tr)
	}

	logger := m.logger.With().Str(xglog.FieldSessionID, sess.ID).Logger()
	sess.Engine = New(tl, Options{
		Tick:         m.cfg.Tick,
		ControlsHide: m.cfg.ControlsHide,
		Clock:        m.cfg.Clock,
		Tracks:       tracks,
		Gate:         gate,
		Logger:       logger,
		OnChange: func(st State) {
			m.publish(Event{SessionID: sess.ID, State: st})
		},
	})
	if opts.Muted {
		sess.Engine.SetMuted(true)
	}
	if opts.AutoPlay {
		sess.Engine.Play()
	}

	m.sessions[sess.ID] = sess
	metrics.PlaybackSessionsActive.Set(float64(len(m.sessions)))
	logger.Info().
		Str(xglog.FieldEvent, "session.created").
		Int("segments", len(tl.Segments)).
		Bool("no_content", tl.Empty()).
		Msg("preview session created")
	return sess, nil
}

// Get returns the session and marks it as active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.Touch(m.cfg.Clock.Now())
	return sess, nil
}

// List returns every session ordered by creation time.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close removes the session and tears its engine down.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		metrics.PlaybackSessionsActive.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.shutdown(sess)
	m.logger.Info().Str(xglog.FieldSessionID, id).Str(xglog.FieldEvent, "session.closed").Msg("preview session closed")
	return nil
}

// Sweep closes sessions idle for longer than the configured timeout and returns
// how many were removed.
func (m *Manager) Sweep() int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.cfg.Clock.Now().Add(-m.cfg.IdleTimeout)
	var stale []string
	m.mu.RLock()
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	n := 0
	for _, id := range stale {
		if m.Close(id) == nil {
			n++
		}
	}
	return n
}

// Run sweeps idle sessions every interval until ctx is done, then closes all sessions.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	defer m.CloseAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Info().Int("count", n).Msg("swept idle preview sessions")
			}
		}
	}
}

// CloseAll tears down every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	metrics.PlaybackSessionsActive.Set(0)
	m.mu.Unlock()
	for _, s := range all {
		m.shutdown(s)
	}
}

// shutdown closes the engine and tells watchers the session is gone.
func (m *Manager) shutdown(sess *Session) {
	sess.Engine.Close()
	m.publish(Event{SessionID: sess.ID, State: sess.Engine.Snapshot(), Closed: true})
}

func (m *Manager) publish(ev Event) {
	if m.cfg.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := m.cfg.Events.Publish(ctx, Topic(ev.SessionID), ev); err != nil {
		m.logger.Debug().Err(err).Str(xglog.FieldSessionID, ev.SessionID).Msg("preview event not delivered to every watcher")
	}
}

// Watch subscribes to the session's events and returns its current view. The
// subscription is taken before the view, so no later change is missed.
func (m *Manager) Watch(ctx context.Context, id string) (SessionView, bus.Subscriber, error) {
	if m.cfg.Events == nil {
		return SessionView{}, nil, ErrEventsDisabled
	}
	sub, err := m.cfg.Events.Subscribe(ctx, Topic(id))
	if err != nil {
		return SessionView{}, nil, err
	}
	sess, err := m.Get(id)
	if err != nil {
		_ = sub.Close()
		return SessionView{}, nil, err
	}
	return sess.View(), sub, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
