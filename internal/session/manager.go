package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/engine"
	"github.com/furnivision/furnivision/internal/geom"
)

// Publisher receives every committed change of every session.
type Publisher interface {
	Publish(sessionID string, c design.Change)
	Closed(sessionID string)
}

// Session is one editing session: a design store with its engine. The
// engine is single-threaded, so every use goes through Do.
type Session struct {
	ID      string
	Created time.Time

	mu       sync.Mutex
	store    *design.Store
	engine   *engine.Engine
	lastUsed time.Time
	detach   func()
}

// Do runs fn with exclusive access to the session's engine.
func (s *Session) Do(fn func(e *engine.Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
	return fn(s.engine)
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
	s.engine.Close()
}

const defaultCaptureWait = 5 * time.Second

// Options configures new sessions.
type Options struct {
	Engine        engine.Config
	Loaders       engine.Loaders
	ClearOnResize bool
	// CaptureWait bounds how long a capture waits for pending images.
	CaptureWait   time.Duration
}

type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	catalog   design.Catalog
	opts      Options
	publisher Publisher
	logger    *slog.Logger
}

// NewManager creates a session registry. publisher may be nil.
func NewManager(catalog design.Catalog, opts Options, publisher Publisher) *Manager {
	logger := opts.Engine.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		catalog:   catalog,
		opts:      opts,
		publisher: publisher,
		logger:    logger,
	}
}

func (m *Manager) Catalog() design.Catalog { return m.catalog }

// Create starts a session on the default room, optionally patched.
func (m *Manager) Create(room *design.RoomPatch) (*Session, error) {
	store := design.NewStore()
	store.ClearOnResize = m.opts.ClearOnResize
	if room != nil {
		if err := store.UpdateRoom(*room); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}
	eng, err := engine.New(store, m.opts.Loaders, m.opts.Engine)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	now := time.Now()
	s := &Session{
		ID:       uuid.New().String(),
		Created:  now,
		store:    store,
		engine:   eng,
		lastUsed: now,
	}
	if m.publisher != nil {
		id := s.ID
		s.detach = store.Subscribe(func(c design.Change) { m.publisher.Publish(id, c) })
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("session created", "session", s.ID)
	return s, nil
}

// Get returns the session or an error wrapping design.ErrNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, design.ErrNotFound)
	}
	return s, nil
}

func (m *Manager) Exists(id string) bool {
	_, err := m.Get(id)
	return err == nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Do looks up a session and runs fn on its engine.
func (m *Manager) Do(id string, fn func(e *engine.Engine) error) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Do(fn)
}

// Close ends a session and releases its engine.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, design.ErrNotFound)
	}
	s.close()
	if m.publisher != nil {
		m.publisher.Closed(id)
	}
	m.logger.Info("session closed", "session", id)
	return nil
}

// Sweep closes sessions unused for longer than maxIdle and reports how
// many went.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
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

func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		_ = m.Close(id)
	}
}

// Snapshot captures a session as a named design.
func (m *Manager) Snapshot(sessionID, designID, name string) (design.Design, error) {
	var d design.Design
	err := m.Do(sessionID, func(e *engine.Engine) error {
		d = e.Store().Snapshot(designID, name)
		return nil
	})
	return d, err
}

// Capture renders a session's elevation at its own viewport.
func (m *Manager) Capture(ctx context.Context, sessionID string) ([]byte, error) {
	return m.Render(ctx, sessionID, geom.Viewport{})
}

// Render renders a session's elevation at vp, or at its own viewport when
// vp is zero. The frame is read under the session lock; waiting for images
// and encoding happen after it is released.
func (m *Manager) Render(ctx context.Context, sessionID string, vp geom.Viewport) ([]byte, error) {
	var capture func(context.Context) ([]byte, error)
	err := m.Do(sessionID, func(e *engine.Engine) error {
		capture = e.PrepareCapture(vp)
		return nil
	})
	if err != nil {
		return nil, err
	}

	wait := m.opts.CaptureWait
	if wait <= 0 {
		wait = defaultCaptureWait
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return capture(ctx)
}

// Load replaces a session's contents with d.
func (m *Manager) Load(sessionID string, d design.Design) error {
	return m.Do(sessionID, func(e *engine.Engine) error {
		return e.Store().Load(d)
	})
}
