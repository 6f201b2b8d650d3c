package aggregates

import (
	"math"
	"sync"
	"testing"

	"canvas-backend/domain/core/entities"
	"canvas-backend/domain/core/valueobjects"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNode(id string, x, y float64) entities.Node {
	return entities.Node{
		ID:       id,
		Position: valueobjects.Position{X: x, Y: y},
		State:    entities.StateUnanswered,
		Payload:  entities.FollowUpPayload{Question: "q-" + id, ChildQuestions: []string{"x"}},
	}
}

func testEdge(id, source, target string) entities.Edge {
	return entities.Edge{ID: id, Source: source, Target: target, Type: entities.EdgeTypeHierarchical}
}

func TestCanvas_AddBatch(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(c *Canvas)
		nodes    []entities.Node
		edges    []entities.Edge
		wantErr  bool
		errType  pkgerrors.ErrorType
		wantSize [2]int
	}{
		{
			name:     "root only",
			nodes:    []entities.Node{testNode("root", 650, 400)},
			wantSize: [2]int{1, 0},
		},
		{
			name:     "edge to node in same batch",
			setup:    func(c *Canvas) { require.NoError(t, c.AddNodes(testNode("root", 0, 0))) },
			nodes:    []entities.Node{testNode("child", 400, 0)},
			edges:    []entities.Edge{testEdge("e1", "root", "child")},
			wantSize: [2]int{2, 1},
		},
		{
			name:    "duplicate existing ID",
			setup:   func(c *Canvas) { require.NoError(t, c.AddNodes(testNode("root", 0, 0))) },
			nodes:   []entities.Node{testNode("root", 400, 0)},
			wantErr: true,
			errType: pkgerrors.ErrorTypeConflict,
		},
		{
			name:    "duplicate within batch",
			nodes:   []entities.Node{testNode("a", 0, 0), testNode("a", 400, 0)},
			wantErr: true,
			errType: pkgerrors.ErrorTypeConflict,
		},
		{
			name:    "empty ID",
			nodes:   []entities.Node{testNode("", 0, 0)},
			wantErr: true,
			errType: pkgerrors.ErrorTypeValidation,
		},
		{
			name:    "non-finite position",
			nodes:   []entities.Node{testNode("a", math.NaN(), 0)},
			wantErr: true,
			errType: pkgerrors.ErrorTypeValidation,
		},
		{
			name:    "dangling edge rejects whole batch",
			nodes:   []entities.Node{testNode("a", 0, 0)},
			edges:   []entities.Edge{testEdge("e1", "a", "ghost")},
			wantErr: true,
			errType: pkgerrors.ErrorTypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCanvas()
			if tt.setup != nil {
				tt.setup(c)
			}
			beforeNodes, beforeEdges := c.Len()

			err := c.AddBatch(tt.nodes, tt.edges)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsType(err, tt.errType))
				n, e := c.Len()
				assert.Equal(t, beforeNodes, n, "no nodes applied from a rejected batch")
				assert.Equal(t, beforeEdges, e, "no edges applied from a rejected batch")
				return
			}
			require.NoError(t, err)
			n, e := c.Len()
			assert.Equal(t, tt.wantSize, [2]int{n, e})
		})
	}
}

func TestCanvas_SnapshotsAreIsolated(t *testing.T) {
	c := NewCanvas()
	require.NoError(t, c.AddNodes(testNode("a", 0, 0)))

	snap := c.Snapshot()
	snap.Nodes[0].ID = "mutated"
	payload := snap.Nodes[0].Payload.(entities.FollowUpPayload)
	payload.ChildQuestions[0] = "mutated"

	node, ok := c.Node("a")
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, node.Payload.(entities.FollowUpPayload).ChildQuestions)

	require.NoError(t, c.AddNodes(testNode("b", 400, 0)))
	assert.Len(t, snap.Nodes, 1, "older snapshot does not observe later batches")
}

func TestCanvas_ParentAndChildren(t *testing.T) {
	c := NewCanvas()
	require.NoError(t, c.AddBatch(
		[]entities.Node{testNode("root", 0, 0), testNode("a", 400, 0), testNode("b", 400, 250)},
		[]entities.Edge{testEdge("e1", "root", "a"), testEdge("e2", "root", "b")},
	))

	parent, ok := c.ParentOf("a")
	require.True(t, ok)
	assert.Equal(t, "root", parent)

	_, ok = c.ParentOf("root")
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, c.ChildrenOf("root"))
	assert.Empty(t, c.ChildrenOf("a"))
}

func TestCanvas_UpdateNode(t *testing.T) {
	c := NewCanvas()
	require.NoError(t, c.AddNodes(testNode("a", 0, 0)))

	updated, err := c.UpdateNode("a", func(n entities.Node) (entities.Node, error) {
		return n.WithState(entities.StateAnswered), nil
	})
	require.NoError(t, err)
	assert.Equal(t, entities.StateAnswered, updated.State)

	stored, _ := c.Node("a")
	assert.Equal(t, entities.StateAnswered, stored.State)

	_, err = c.UpdateNode("a", func(n entities.Node) (entities.Node, error) {
		n.ID = "b"
		return n, nil
	})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = c.UpdateNode("missing", func(n entities.Node) (entities.Node, error) { return n, nil })
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCanvas_ReplaceEdges(t *testing.T) {
	c := NewCanvas()
	require.NoError(t, c.AddBatch(
		[]entities.Node{testNode("a", 0, 0), testNode("b", 400, 0)},
		[]entities.Edge{testEdge("e1", "a", "b"), testEdge("e2", "a", "b")},
	))
	require.Error(t, c.Validate(), "duplicate edge is detected")

	require.NoError(t, c.ReplaceEdges(func(edges []entities.Edge) []entities.Edge {
		return edges[:1]
	}))
	assert.Len(t, c.Edges(), 1)
	assert.NoError(t, c.Validate())

	err := c.ReplaceEdges(func(edges []entities.Edge) []entities.Edge {
		return append(edges, testEdge("e3", "b", "a"))
	})
	assert.Error(t, err)
	assert.Len(t, c.Edges(), 1)
}

func TestCanvas_ReplaceAll(t *testing.T) {
	c := NewCanvas()
	require.NoError(t, c.AddNodes(testNode("old", 0, 0)))

	err := c.ReplaceAll(
		[]entities.Node{testNode("a", 0, 0)},
		[]entities.Edge{testEdge("e1", "a", "ghost")},
	)
	require.Error(t, err)
	assert.True(t, c.HasNode("old"))

	require.NoError(t, c.ReplaceAll(
		[]entities.Node{testNode("a", 0, 0), testNode("b", 400, 0)},
		[]entities.Edge{testEdge("e1", "a", "b")},
	))
	assert.False(t, c.HasNode("old"))
	assert.True(t, c.HasNode("b"))
}

func TestCanvas_ResetAdvancesEpoch(t *testing.T) {
	c := NewCanvas()
	require.NoError(t, c.AddNodes(testNode("a", 0, 0)))
	before := c.Epoch()

	c.Reset()

	assert.Equal(t, before+1, c.Epoch())
	n, e := c.Len()
	assert.Zero(t, n)
	assert.Zero(t, e)
	assert.False(t, c.HasNode("a"))
}

func TestCanvas_ConcurrentBatches(t *testing.T) {
	c := NewCanvas()
	require.NoError(t, c.AddNodes(testNode("root", 0, 0)))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := entities.NewNodeID()
			_ = c.AddBatch(
				[]entities.Node{testNode(id, float64(i)*400, 300)},
				[]entities.Edge{testEdge(entities.NewNodeID(), "root", id)},
			)
			_ = c.Snapshot()
		}(i)
	}
	wg.Wait()

	n, e := c.Len()
	assert.Equal(t, 21, n)
	assert.Equal(t, 20, e)
	assert.NoError(t, c.Validate())
}
