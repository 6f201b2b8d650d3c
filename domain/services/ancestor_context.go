package services

import (
	"fmt"
	"slices"

	"canvas-backend/domain/core/entities"
)

// AncestorPath returns the IDs from the root down to nodeID, inclusive.
// Each step follows the first edge targeting the current node. A visited set
// stops the walk if the edges ever form a cycle. Unknown nodes yield nil.
func AncestorPath(nodeID string, nodes []entities.Node, edges []entities.Edge) []string {
	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n.ID] = struct{}{}
	}
	if _, ok := known[nodeID]; !ok {
		return nil
	}

	parents := make(map[string]string, len(edges))
	for _, e := range edges {
		if _, exists := parents[e.Target]; !exists {
			parents[e.Target] = e.Source
		}
	}

	visited := make(map[string]struct{})
	var path []string
	for current := nodeID; current != ""; {
		if _, seen := visited[current]; seen {
			break
		}
		if _, ok := known[current]; !ok {
			break
		}
		visited[current] = struct{}{}
		path = append(path, current)
		current = parents[current]
	}

	slices.Reverse(path)
	return path
}

// BuildAncestorContext renders the root-first content trail ending at nodeID.
// Every node on the path contributes exactly one entry.
func BuildAncestorContext(nodeID string, nodes []entities.Node, edges []entities.Edge) []string {
	path := AncestorPath(nodeID, nodes, edges)
	if len(path) == 0 {
		return []string{}
	}

	byID := make(map[string]entities.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	entries := make([]string, 0, len(path))
	for _, id := range path {
		entries = append(entries, ContextEntry(byID[id]))
	}
	return entries
}

// ContextEntry formats a single node for use as generation context
func ContextEntry(n entities.Node) string {
	switch p := n.Payload.(type) {
	case entities.ResponsePayload:
		return qa(p.Query, p.Content)
	case entities.FollowUpPayload:
		if !p.HasBeenAnswered {
			return qa(p.Question, "")
		}
		return qa(p.Question, p.Answer)
	case entities.TopicPayload:
		return fmt.Sprintf("Topic: %s\nExplanation: %s", p.Topic, p.Explanation)
	default:
		return ""
	}
}

func qa(question, answer string) string {
	if answer == "" {
		return "Q: " + question
	}
	return fmt.Sprintf("Q: %s\nA: %s", question, answer)
}
