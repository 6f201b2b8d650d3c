package services

import (
	"sync"
	"time"

	"canvas-backend/application/ports"
	"canvas-backend/domain/core/aggregates"
	"canvas-backend/domain/core/entities"
	domainservices "canvas-backend/domain/services"
)

// Session is one live canvas: its graph store, its generation tracker and
// the lock that serializes mutations. Generation calls are made without
// holding the lock.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time

	mu       sync.Mutex
	store    *aggregates.Canvas
	tracker  *aggregates.GenerationTracker
	revision uint64
}

// NewSession creates an empty session
func NewSession(id, title string) *Session {
	return &Session{
		ID:        id,
		Title:     title,
		CreatedAt: time.Now().UTC(),
		store:     aggregates.NewCanvas(),
		tracker:   aggregates.NewGenerationTracker(),
	}
}

// Store returns the session's graph store
func (s *Session) Store() *aggregates.Canvas {
	return s.store
}

// Tracker returns the session's generation tracker
func (s *Session) Tracker() *aggregates.GenerationTracker {
	return s.tracker
}

// Snapshot returns the current nodes and edges
func (s *Session) Snapshot() aggregates.Snapshot {
	return s.store.Snapshot()
}

// Revision returns the persisted revision this session last loaded or saved
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// restore replaces the graph with a persisted record. Duplicate edges are
// reconciled away and the record's epoch is kept. It returns the number of
// duplicate edges dropped.
func (s *Session) restore(record ports.CanvasRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreLocked(record, record.Epoch)
}

// restoreLocked installs record and rebuilds the tracker: a node counts as
// generated once it is expanded or already has follow-up children. Topic
// annotations do not count. Caller holds s.mu.
func (s *Session) restoreLocked(record ports.CanvasRecord, epoch uint64) (int, error) {
	edges, dropped := domainservices.ReconcileEdges(record.Edges)
	if err := s.store.ReplaceAll(record.Nodes, edges); err != nil {
		return 0, err
	}
	s.store.AdvanceEpoch(epoch)
	s.revision = record.Revision

	s.tracker.Clear()
	hasChildren := make(map[string]bool, len(edges))
	for _, e := range edges {
		if e.Type != entities.EdgeTypeTopic {
			hasChildren[e.Source] = true
		}
	}
	for _, n := range record.Nodes {
		if n.State == entities.StateExpanded || hasChildren[n.ID] {
			s.tracker.MarkGenerated(n.ID)
		}
	}
	return dropped, nil
}
