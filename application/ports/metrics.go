package ports

import (
	"time"
)

// CanvasMetrics receives engine-level measurements
type CanvasMetrics interface {
	NodesCreated(kind string, n int)
	Expansion(children int)
	DuplicateEdgesDropped(n int)
	RaceLost()
	OverlapResolved(fallback bool)
	Generation(operation string, duration time.Duration, err error)
}
