package aggregates

import (
	"fmt"
	"slices"
	"sync"

	"canvas-backend/domain/core/entities"
	pkgerrors "canvas-backend/pkg/errors"
)

// Snapshot is an immutable view of the canvas at one point in time
type Snapshot struct {
	Nodes []entities.Node
	Edges []entities.Edge
	Epoch uint64
}

// Node looks up a node in the snapshot by ID
func (s Snapshot) Node(id string) (entities.Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return entities.Node{}, false
}

// Canvas is the authoritative store of nodes and edges for one canvas session.
// Readers always get copies; writers replace whole slices, so a reader never
// observes a partially applied batch.
type Canvas struct {
	mu    sync.RWMutex
	nodes []entities.Node
	edges []entities.Edge
	index map[string]int
	epoch uint64
}

// NewCanvas creates an empty canvas
func NewCanvas() *Canvas {
	return &Canvas{index: make(map[string]int)}
}

// Nodes returns a copy of the current node list
func (c *Canvas) Nodes() []entities.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneNodes(c.nodes)
}

// Edges returns a copy of the current edge list
func (c *Canvas) Edges() []entities.Edge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.edges)
}

// Snapshot returns nodes, edges and epoch read under one lock
func (c *Canvas) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Nodes: cloneNodes(c.nodes),
		Edges: slices.Clone(c.edges),
		Epoch: c.epoch,
	}
}

// Epoch increments on every reset; in-flight work compares it to detect staleness
func (c *Canvas) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Node returns the node with the given ID
func (c *Canvas) Node(id string) (entities.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return entities.Node{}, false
	}
	return c.nodes[i].Clone(), true
}

// HasNode checks if a node exists without copying it
func (c *Canvas) HasNode(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[id]
	return ok
}

// Len returns the number of nodes and edges
func (c *Canvas) Len() (nodes, edges int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes), len(c.edges)
}

// ParentOf returns the source of the first edge targeting id
func (c *Canvas) ParentOf(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.edges {
		if e.Target == id {
			return e.Source, true
		}
	}
	return "", false
}

// ChildrenOf returns the targets of all edges leaving id, in insertion order
func (c *Canvas) ChildrenOf(id string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var children []string
	for _, e := range c.edges {
		if e.Source == id {
			children = append(children, e.Target)
		}
	}
	return children
}

// AddNodes appends a batch of nodes
func (c *Canvas) AddNodes(batch ...entities.Node) error {
	return c.AddBatch(batch, nil)
}

// AddEdges appends a batch of edges whose endpoints already exist
func (c *Canvas) AddEdges(batch ...entities.Edge) error {
	return c.AddBatch(nil, batch)
}

// AddBatch appends nodes and edges as one all-or-nothing mutation.
// Edges may reference nodes from the same batch.
func (c *Canvas) AddBatch(nodes []entities.Node, edges []entities.Edge) error {
	if len(nodes) == 0 && len(edges) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return pkgerrors.NewValidationError("node ID cannot be empty")
		}
		if _, exists := c.index[n.ID]; exists {
			return pkgerrors.NewConflictError(fmt.Sprintf("node %s already exists", n.ID))
		}
		if _, dup := pending[n.ID]; dup {
			return pkgerrors.NewConflictError(fmt.Sprintf("node %s appears twice in batch", n.ID))
		}
		if !n.Position.Valid() {
			return pkgerrors.NewValidationError(fmt.Sprintf("node %s has a non-finite position", n.ID))
		}
		pending[n.ID] = struct{}{}
	}

	known := func(id string) bool {
		if _, ok := c.index[id]; ok {
			return true
		}
		_, ok := pending[id]
		return ok
	}
	for _, e := range edges {
		if !known(e.Source) || !known(e.Target) {
			return pkgerrors.NewValidationError(
				fmt.Sprintf("edge %s references a missing node (%s -> %s)", e.ID, e.Source, e.Target))
		}
	}

	nextNodes := make([]entities.Node, len(c.nodes), len(c.nodes)+len(nodes))
	copy(nextNodes, c.nodes)
	for _, n := range nodes {
		nextNodes = append(nextNodes, n.Clone())
	}
	nextEdges := make([]entities.Edge, len(c.edges), len(c.edges)+len(edges))
	copy(nextEdges, c.edges)
	nextEdges = append(nextEdges, edges...)

	c.swap(nextNodes, nextEdges)
	return nil
}

// ReplaceAll swaps in a complete node and edge list, e.g. after loading a saved canvas
func (c *Canvas) ReplaceAll(nodes []entities.Node, edges []entities.Edge) error {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := index[n.ID]; dup {
			return pkgerrors.NewConflictError(fmt.Sprintf("node %s appears twice", n.ID))
		}
		if !n.Position.Valid() {
			return pkgerrors.NewValidationError(fmt.Sprintf("node %s has a non-finite position", n.ID))
		}
		index[n.ID] = i
	}
	for _, e := range edges {
		_, srcOK := index[e.Source]
		_, dstOK := index[e.Target]
		if !srcOK || !dstOK {
			return pkgerrors.NewValidationError(
				fmt.Sprintf("edge %s references a missing node (%s -> %s)", e.ID, e.Source, e.Target))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.swap(cloneNodes(nodes), slices.Clone(edges))
	return nil
}

// ReplaceEdges applies fn to the current edge list and stores the result.
// fn may only drop edges; anything that introduces new edges is rejected.
func (c *Canvas) ReplaceEdges(fn func([]entities.Edge) []entities.Edge) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := make(map[string]struct{}, len(c.edges))
	for _, e := range c.edges {
		existing[e.ID] = struct{}{}
	}

	next := fn(slices.Clone(c.edges))
	for _, e := range next {
		if _, ok := existing[e.ID]; !ok {
			return pkgerrors.NewValidationError(fmt.Sprintf("edge %s was not present before replacement", e.ID))
		}
	}

	c.edges = next
	return nil
}

// UpdateNode replaces one node with the result of fn. The ID is immutable.
func (c *Canvas) UpdateNode(id string, fn func(entities.Node) (entities.Node, error)) (entities.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok {
		return entities.Node{}, pkgerrors.NewNotFoundError("node " + id)
	}

	updated, err := fn(c.nodes[i].Clone())
	if err != nil {
		return entities.Node{}, err
	}
	if updated.ID != id {
		return entities.Node{}, pkgerrors.NewValidationError("node ID is immutable")
	}
	if !updated.Position.Valid() {
		return entities.Node{}, pkgerrors.NewValidationError("node position must be finite")
	}

	next := make([]entities.Node, len(c.nodes))
	copy(next, c.nodes)
	next[i] = updated.Clone()
	c.nodes = next

	return updated, nil
}

// AdvanceEpoch moves the epoch forward to at least epoch, e.g. when a
// persisted canvas is loaded. It never moves backwards.
func (c *Canvas) AdvanceEpoch(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch > c.epoch {
		c.epoch = epoch
	}
}

// Reset empties the canvas and advances the epoch
func (c *Canvas) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = nil
	c.edges = nil
	c.index = make(map[string]int)
	c.epoch++
}

// Validate ensures canvas invariants hold
func (c *Canvas) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[entities.EdgeKey]struct{}, len(c.edges))
	for _, e := range c.edges {
		if _, ok := c.index[e.Source]; !ok {
			return fmt.Errorf("edge %s references non-existent source node %s", e.ID, e.Source)
		}
		if _, ok := c.index[e.Target]; !ok {
			return fmt.Errorf("edge %s references non-existent target node %s", e.ID, e.Target)
		}
		if _, dup := seen[e.Key()]; dup {
			return fmt.Errorf("duplicate edge %s -> %s", e.Source, e.Target)
		}
		seen[e.Key()] = struct{}{}
	}
	for _, n := range c.nodes {
		if !n.Position.Valid() {
			return fmt.Errorf("node %s has a non-finite position", n.ID)
		}
	}
	return nil
}

// swap installs new slices and rebuilds the index; caller holds the write lock
func (c *Canvas) swap(nodes []entities.Node, edges []entities.Edge) {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}
	c.nodes = nodes
	c.edges = edges
	c.index = index
}

func cloneNodes(nodes []entities.Node) []entities.Node {
	if nodes == nil {
		return nil
	}
	out := make([]entities.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}
