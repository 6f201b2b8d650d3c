package services

import (
	"testing"

	"canvas-backend/domain/core/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func edge(id, source, target string) entities.Edge {
	return entities.Edge{ID: id, Source: source, Target: target, Type: entities.EdgeTypeHierarchical}
}

func TestReconcileEdges(t *testing.T) {
	tests := []struct {
		name        string
		input       []entities.Edge
		wantIDs     []string
		wantDropped int
	}{
		{
			name:    "empty",
			input:   nil,
			wantIDs: nil,
		},
		{
			name:    "no duplicates",
			input:   []entities.Edge{edge("1", "a", "b"), edge("2", "a", "c")},
			wantIDs: []string{"1", "2"},
		},
		{
			name:        "same pair twice keeps first",
			input:       []entities.Edge{edge("1", "a", "b"), edge("2", "a", "b")},
			wantIDs:     []string{"1"},
			wantDropped: 1,
		},
		{
			name: "order preserved across interleaved duplicates",
			input: []entities.Edge{
				edge("1", "a", "b"),
				edge("2", "b", "c"),
				edge("3", "a", "b"),
				edge("4", "a", "d"),
				edge("5", "b", "c"),
			},
			wantIDs:     []string{"1", "2", "4"},
			wantDropped: 2,
		},
		{
			name:    "direction matters",
			input:   []entities.Edge{edge("1", "a", "b"), edge("2", "b", "a")},
			wantIDs: []string{"1", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, dropped := ReconcileEdges(tt.input)

			var ids []string
			for _, e := range kept {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantDropped, dropped)
		})
	}
}

func TestReconcileEdges_ExactlyOnePerPair(t *testing.T) {
	var input []entities.Edge
	for i := 0; i < 50; i++ {
		input = append(input, entities.NewEdge("p", string(rune('a'+i%5)), entities.EdgeTypeHierarchical))
	}

	kept, dropped := ReconcileEdges(input)

	counts := make(map[entities.EdgeKey]int)
	for _, e := range kept {
		counts[e.Key()]++
	}
	assert.Len(t, counts, 5)
	for key, n := range counts {
		assert.Equal(t, 1, n, "pair %v", key)
	}
	assert.Equal(t, 45, dropped)
}

func TestReconcileEdges_DoesNotMutateInput(t *testing.T) {
	input := []entities.Edge{edge("1", "a", "b"), edge("2", "a", "b"), edge("3", "b", "c")}
	original := append([]entities.Edge(nil), input...)

	ReconcileEdges(input)
	assert.Equal(t, original, input)
}

func TestEdgeReconciler_ReportsDuplicates(t *testing.T) {
	var reported []int
	r := NewEdgeReconciler(zap.NewNop(), func(dropped int) {
		reported = append(reported, dropped)
	})

	kept := r.Reconcile([]entities.Edge{edge("1", "a", "b"), edge("2", "a", "b")})
	require.Len(t, kept, 1)
	assert.Equal(t, []int{1}, reported)

	r.Reconcile([]entities.Edge{edge("1", "a", "b")})
	assert.Equal(t, []int{1}, reported, "hook only fires when something was dropped")
}
