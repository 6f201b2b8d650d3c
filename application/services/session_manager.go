package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"canvas-backend/application/ports"
	"canvas-backend/domain/events"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SessionHooks lets callers follow the session lifecycle, e.g. for a gauge
type SessionHooks struct {
	Opened func()
	Closed func()
}

// SessionManager keeps live canvas sessions in memory and loads persisted
// canvases on first use
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	repo   ports.CanvasRepository
	loads  singleflight.Group
	hooks  SessionHooks
	logger *zap.Logger
}

// NewSessionManager creates a session manager; repo may be nil for a purely
// in-memory registry
func NewSessionManager(repo ports.CanvasRepository, logger *zap.Logger, hooks SessionHooks) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		repo:     repo,
		hooks:    hooks,
		logger:   logger,
	}
}

// Create registers a new empty session
func (m *SessionManager) Create(ctx context.Context, title string) *Session {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled canvas"
	}
	s := NewSession(uuid.New().String(), title)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.opened()

	m.logger.Info("Canvas session created",
		zap.String("canvasID", s.ID),
		zap.String("title", title),
	)
	return s
}

// Get returns the live session for canvasID, loading it from the repository
// if needed. Concurrent first requests share a single load.
func (m *SessionManager) Get(ctx context.Context, canvasID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[canvasID]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	if m.repo == nil {
		return nil, pkgerrors.NewNotFoundError("canvas " + canvasID)
	}

	v, err, shared := m.loads.Do(canvasID, func() (interface{}, error) {
		return m.load(ctx, canvasID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.logger.Debug("Canvas load shared between callers", zap.String("canvasID", canvasID))
	}
	return v.(*Session), nil
}

func (m *SessionManager) load(ctx context.Context, canvasID string) (*Session, error) {
	// another caller may have finished loading between our check and Do
	m.mu.RLock()
	s, ok := m.sessions[canvasID]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	start := time.Now()
	record, err := m.repo.LoadCanvas(ctx, canvasID)
	if err != nil {
		return nil, err
	}

	s = NewSession(record.ID, record.Title)
	if !record.CreatedAt.IsZero() {
		s.CreatedAt = record.CreatedAt
	}
	dropped, err := s.restore(record)
	if err != nil {
		return nil, pkgerrors.NewInternalError("stored canvas is inconsistent").WithCause(err)
	}
	if dropped > 0 {
		m.logger.Warn("Stored canvas had duplicate edges",
			zap.String("canvasID", canvasID),
			zap.Int("dropped", dropped),
		)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[canvasID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.sessions[canvasID] = s
	m.mu.Unlock()
	m.opened()

	m.logger.Info("Canvas session loaded",
		zap.String("canvasID", canvasID),
		zap.Int("nodes", len(record.Nodes)),
		zap.Int("edges", len(record.Edges)),
		zap.Int("tracked", s.tracker.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	return s, nil
}

// Save persists the session's current snapshot. It holds the session lock
// for the whole write, so the saved snapshot never falls between two steps
// of one mutation.
//
// Saves are guarded by the canvas revision. When another process saved the
// canvas since this session loaded it, Save reloads the stored canvas into
// the session, discarding the local changes, and returns a CONFLICT error.
func (m *SessionManager) Save(ctx context.Context, s *Session) error {
	if m.repo == nil {
		return pkgerrors.NewUnavailableError("canvas repository")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.store.Snapshot()
	record := ports.CanvasRecord{
		ID:        s.ID,
		Title:     s.Title,
		Nodes:     snap.Nodes,
		Edges:     snap.Edges,
		Epoch:     snap.Epoch,
		Revision:  s.revision,
		CreatedAt: s.CreatedAt,
		UpdatedAt: time.Now().UTC(),
	}
	err := m.repo.SaveCanvas(ctx, record)
	if pkgerrors.IsConflict(err) {
		return m.reloadLocked(ctx, s, err)
	}
	if err != nil {
		return err
	}
	s.revision++

	m.logger.Debug("Canvas saved",
		zap.String("canvasID", s.ID),
		zap.Int("nodes", len(snap.Nodes)),
		zap.Uint64("revision", s.revision),
	)
	return nil
}

// reloadLocked replaces s with the stored canvas after a lost save. The
// epoch moves past both copies so results still in flight are dropped as
// stale. Caller holds s.mu.
func (m *SessionManager) reloadLocked(ctx context.Context, s *Session, cause error) error {
	lost := s.revision
	record, err := m.repo.LoadCanvas(ctx, s.ID)
	if err != nil {
		return pkgerrors.NewConflictError("canvas " + s.ID + " was changed by another writer").WithCause(err)
	}

	epoch := s.store.Epoch()
	if record.Epoch > epoch {
		epoch = record.Epoch
	}
	if _, err := s.restoreLocked(record, epoch+1); err != nil {
		return pkgerrors.NewInternalError("stored canvas is inconsistent").WithCause(err)
	}

	m.logger.Warn("Canvas changed by another writer, reloaded",
		zap.String("canvasID", s.ID),
		zap.Uint64("localRevision", lost),
		zap.Uint64("storedRevision", record.Revision),
	)
	return pkgerrors.NewConflictError("canvas " + s.ID + " was changed by another writer; reload and retry").WithCause(cause)
}

// SaveOnEvent persists the live session an event belongs to. It has the
// signature of an event handler so it can be subscribed for autosave. Events
// for sessions that are no longer live are ignored.
func (m *SessionManager) SaveOnEvent(ctx context.Context, evt events.DomainEvent) error {
	m.mu.RLock()
	s, ok := m.sessions[evt.GetAggregateID()]
	m.mu.RUnlock()
	if !ok || m.repo == nil {
		return nil
	}
	return m.Save(ctx, s)
}

// Close drops a session from memory without touching persisted state
func (m *SessionManager) Close(canvasID string) {
	m.mu.Lock()
	_, ok := m.sessions[canvasID]
	delete(m.sessions, canvasID)
	m.mu.Unlock()
	if ok {
		m.closed()
	}
}

// Delete closes the session and removes it from the repository
func (m *SessionManager) Delete(ctx context.Context, canvasID string) error {
	m.Close(canvasID)
	if m.repo == nil {
		return nil
	}
	return m.repo.DeleteCanvas(ctx, canvasID)
}

// List returns persisted canvases plus any live sessions not saved yet
func (m *SessionManager) List(ctx context.Context) ([]ports.CanvasSummary, error) {
	byID := make(map[string]ports.CanvasSummary)
	if m.repo != nil {
		stored, err := m.repo.ListCanvases(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range stored {
			byID[c.ID] = c
		}
	}

	m.mu.RLock()
	for id, s := range m.sessions {
		if _, ok := byID[id]; ok {
			continue
		}
		nodes, _ := s.store.Len()
		byID[id] = ports.CanvasSummary{
			ID:        id,
			Title:     s.Title,
			NodeCount: nodes,
			UpdatedAt: s.CreatedAt,
		}
	}
	m.mu.RUnlock()

	out := make([]ports.CanvasSummary, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Len returns the number of live sessions
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) opened() {
	if m.hooks.Opened != nil {
		m.hooks.Opened()
	}
}

func (m *SessionManager) closed() {
	if m.hooks.Closed != nil {
		m.hooks.Closed()
	}
}
