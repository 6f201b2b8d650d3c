package aggregates

import (
	"sort"
	"sync"
)

// GenerationTracker records which nodes have triggered (or attempted) child
// generation. A node is marked before the generation call it guards is
// dispatched and is never unmarked, except by Clear on canvas reset.
type GenerationTracker struct {
	mu     sync.Mutex
	marked map[string]struct{}
}

// NewGenerationTracker creates an empty tracker
func NewGenerationTracker() *GenerationTracker {
	return &GenerationTracker{marked: make(map[string]struct{})}
}

// HasGenerated reports whether nodeID has already been marked
func (t *GenerationTracker) HasGenerated(nodeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.marked[nodeID]
	return ok
}

// MarkGenerated marks nodeID unconditionally
func (t *GenerationTracker) MarkGenerated(nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marked[nodeID] = struct{}{}
}

// TryMark marks nodeID and returns true only for the first caller.
// The check and the mark happen under one lock.
func (t *GenerationTracker) TryMark(nodeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.marked[nodeID]; ok {
		return false
	}
	t.marked[nodeID] = struct{}{}
	return true
}

// Clear forgets every mark
func (t *GenerationTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marked = make(map[string]struct{})
}

// Len returns the number of marked nodes
func (t *GenerationTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.marked)
}

// IDs returns the marked node IDs in sorted order
func (t *GenerationTracker) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.marked))
	for id := range t.marked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
