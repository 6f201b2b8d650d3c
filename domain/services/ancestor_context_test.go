package services

import (
	"testing"

	"canvas-backend/domain/core/entities"

	"github.com/stretchr/testify/assert"
)

func chain() ([]entities.Node, []entities.Edge) {
	nodes := []entities.Node{
		{ID: "root", State: entities.StateExpanded, Payload: entities.ResponsePayload{Query: "What is Go?", Content: "A language."}},
		{ID: "a", State: entities.StateExpanded, Payload: entities.FollowUpPayload{Question: "Who made it?", Answer: "Google.", HasBeenAnswered: true}},
		{ID: "b", State: entities.StateAnswered, Payload: entities.FollowUpPayload{Question: "When?", Answer: "2009.", HasBeenAnswered: true}},
		{ID: "c", State: entities.StateUnanswered, Payload: entities.FollowUpPayload{Question: "Why?"}},
	}
	edges := []entities.Edge{
		edge("e1", "root", "a"),
		edge("e2", "a", "b"),
		edge("e3", "b", "c"),
	}
	return nodes, edges
}

func TestAncestorPath_RootFirst(t *testing.T) {
	nodes, edges := chain()

	assert.Equal(t, []string{"root", "a", "b", "c"}, AncestorPath("c", nodes, edges))
	assert.Equal(t, []string{"root"}, AncestorPath("root", nodes, edges))
	assert.Nil(t, AncestorPath("missing", nodes, edges))
}

func TestBuildAncestorContext_Chain(t *testing.T) {
	nodes, edges := chain()

	ctx := BuildAncestorContext("c", nodes, edges)

	assert.Equal(t, []string{
		"Q: What is Go?\nA: A language.",
		"Q: Who made it?\nA: Google.",
		"Q: When?\nA: 2009.",
		"Q: Why?",
	}, ctx)
}

func TestBuildAncestorContext_StableAcrossCalls(t *testing.T) {
	nodes, edges := chain()
	first := BuildAncestorContext("c", nodes, edges)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, BuildAncestorContext("c", nodes, edges))
	}
}

func TestBuildAncestorContext_Topic(t *testing.T) {
	nodes, edges := chain()
	nodes = append(nodes, entities.Node{
		ID:      "t",
		State:   entities.StateAnswered,
		Payload: entities.TopicPayload{Topic: "goroutines", Explanation: "Lightweight threads."},
	})
	edges = append(edges, entities.Edge{ID: "e4", Source: "a", Target: "t", Type: entities.EdgeTypeTopic})

	ctx := BuildAncestorContext("t", nodes, edges)
	assert.Len(t, ctx, 3)
	assert.Equal(t, "Topic: goroutines\nExplanation: Lightweight threads.", ctx[2])
}

func TestBuildAncestorContext_CycleTerminates(t *testing.T) {
	nodes, edges := chain()
	// corrupt the store: root now has a parent, closing a loop
	edges = append(edges, edge("bad", "c", "root"))

	ctx := BuildAncestorContext("b", nodes, edges)

	assert.Len(t, ctx, 4)
	seen := make(map[string]bool)
	for _, entry := range ctx {
		assert.False(t, seen[entry], "entry repeated: %q", entry)
		seen[entry] = true
	}
}

func TestBuildAncestorContext_UnknownNode(t *testing.T) {
	nodes, edges := chain()
	assert.Empty(t, BuildAncestorContext("nope", nodes, edges))
}

func TestBuildAncestorContext_DanglingParentStopsWalk(t *testing.T) {
	nodes, edges := chain()
	edges = append(edges, edge("dangling", "ghost", "root"))

	assert.Len(t, BuildAncestorContext("c", nodes, edges), 4)
}
