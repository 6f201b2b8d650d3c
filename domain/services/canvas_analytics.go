package services

import (
	"canvas-backend/domain/core/entities"
)

// CanvasStats summarizes the shape of a canvas
type CanvasStats struct {
	NodeCount int                        `json:"nodeCount"`
	EdgeCount int                        `json:"edgeCount"`
	ByKind    map[entities.NodeKind]int  `json:"byKind"`
	ByState   map[entities.NodeState]int `json:"byState"`
	Roots     int                        `json:"roots"`
	MaxDepth  int                        `json:"maxDepth"`
	MaxFanOut int                        `json:"maxFanOut"`
	AvgFanOut float64                    `json:"avgFanOut"`
	Pending   int                        `json:"pending"`
	Orphans   []string                   `json:"orphans"`
	Clusters  int                        `json:"clusters"`
}

// CanvasAnalytics computes read-only statistics over canvas snapshots
type CanvasAnalytics struct{}

// NewCanvasAnalytics creates a new analytics service
func NewCanvasAnalytics() *CanvasAnalytics {
	return &CanvasAnalytics{}
}

// Stats computes the statistics of one snapshot. Depth counts hierarchical
// edges only, so a root is depth 0 and topic annotations never add depth.
// Fan-out is averaged over nodes that have at least one hierarchical child.
func (a *CanvasAnalytics) Stats(nodes []entities.Node, edges []entities.Edge) CanvasStats {
	stats := CanvasStats{
		NodeCount: len(nodes),
		EdgeCount: len(edges),
		ByKind:    make(map[entities.NodeKind]int),
		ByState:   make(map[entities.NodeState]int),
		Orphans:   []string{},
	}

	children := make(map[string][]string, len(nodes))
	degree := make(map[string]int, len(nodes))
	for _, e := range edges {
		degree[e.Source]++
		degree[e.Target]++
		if e.Type != entities.EdgeTypeTopic {
			children[e.Source] = append(children[e.Source], e.Target)
		}
	}

	parents, totalChildren := 0, 0
	for _, n := range nodes {
		stats.ByKind[n.Kind()]++
		stats.ByState[n.State]++
		if n.IsRoot() {
			stats.Roots++
		}
		if n.Kind() == entities.KindFollowUp && !n.Answered() {
			stats.Pending++
		}
		if degree[n.ID] == 0 && !n.IsRoot() {
			stats.Orphans = append(stats.Orphans, n.ID)
		}
		if c := len(children[n.ID]); c > 0 {
			parents++
			totalChildren += c
			if c > stats.MaxFanOut {
				stats.MaxFanOut = c
			}
		}
	}
	if parents > 0 {
		stats.AvgFanOut = float64(totalChildren) / float64(parents)
	}

	for _, n := range nodes {
		if n.IsRoot() {
			if d := a.depth(n.ID, children, 0, map[string]bool{}); d > stats.MaxDepth {
				stats.MaxDepth = d
			}
		}
	}
	stats.Clusters = len(a.Clusters(nodes, edges))
	return stats
}

// Clusters groups node IDs into weakly connected components, in node order
func (a *CanvasAnalytics) Clusters(nodes []entities.Node, edges []entities.Edge) [][]string {
	adjacent := make(map[string][]string, len(nodes))
	for _, e := range edges {
		adjacent[e.Source] = append(adjacent[e.Source], e.Target)
		adjacent[e.Target] = append(adjacent[e.Target], e.Source)
	}

	visited := make(map[string]bool, len(nodes))
	var clusters [][]string
	for _, n := range nodes {
		if visited[n.ID] {
			continue
		}
		var cluster []string
		a.dfs(n.ID, adjacent, visited, &cluster)
		clusters = append(clusters, cluster)
	}
	return clusters
}

func (a *CanvasAnalytics) dfs(id string, adjacent map[string][]string, visited map[string]bool, cluster *[]string) {
	visited[id] = true
	*cluster = append(*cluster, id)
	for _, next := range adjacent[id] {
		if !visited[next] {
			a.dfs(next, adjacent, visited, cluster)
		}
	}
}

// depth guards against cycles, which a valid canvas never contains
func (a *CanvasAnalytics) depth(id string, children map[string][]string, d int, onPath map[string]bool) int {
	if onPath[id] {
		return d
	}
	onPath[id] = true
	defer delete(onPath, id)

	deepest := d
	for _, child := range children[id] {
		if cd := a.depth(child, children, d+1, onPath); cd > deepest {
			deepest = cd
		}
	}
	return deepest
}
