package services

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"canvas-backend/domain/core/entities"
	"canvas-backend/domain/core/valueobjects"

	"go.uber.org/zap"
)

// LayoutConfig configures grid placement and overlap avoidance
type LayoutConfig struct {
	NodeWidth         float64               `yaml:"nodeWidth"`
	NodeHeight        float64               `yaml:"nodeHeight"`
	Padding           float64               `yaml:"padding"`
	HorizontalSpacing float64               `yaml:"horizontalSpacing"`
	VerticalSpacing   float64               `yaml:"verticalSpacing"`
	MaxSiblings       int                   `yaml:"maxSiblings"`
	MaxAttempts       int                   `yaml:"maxAttempts"`
	Center            valueobjects.Position `yaml:"center"`
	TopicMinRadius    float64               `yaml:"topicMinRadius"`
	TopicMaxRadius    float64               `yaml:"topicMaxRadius"`
}

// DefaultLayoutConfig returns the canvas defaults
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		NodeWidth:         300,
		NodeHeight:        200,
		Padding:           50,
		HorizontalSpacing: 400,
		VerticalSpacing:   250,
		MaxSiblings:       3,
		MaxAttempts:       20,
		Center:            valueobjects.Position{X: 650, Y: 400},
		TopicMinRadius:    300,
		TopicMaxRadius:    450,
	}
}

// Validate checks that the config can produce a non-overlapping layout
func (c LayoutConfig) Validate() error {
	if c.NodeWidth <= 0 || c.NodeHeight <= 0 {
		return errors.New("node dimensions must be positive")
	}
	if c.Padding < 0 {
		return errors.New("padding cannot be negative")
	}
	if c.MaxSiblings < 1 {
		return errors.New("maxSiblings must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return errors.New("maxAttempts must be at least 1")
	}
	if c.HorizontalSpacing < c.NodeWidth+c.Padding {
		return errors.New("horizontalSpacing must clear a node width plus padding")
	}
	if c.VerticalSpacing < c.NodeHeight+c.Padding {
		return errors.New("verticalSpacing must clear a node height plus padding")
	}
	if !c.Center.Valid() {
		return errors.New("center must be finite")
	}
	if c.TopicMinRadius < 0 || c.TopicMaxRadius < c.TopicMinRadius {
		return errors.New("topic radius range is invalid")
	}
	return nil
}

// StepX is one grid step to the right
func (c LayoutConfig) StepX() float64 { return c.NodeWidth + c.Padding }

// StepY is one grid step down
func (c LayoutConfig) StepY() float64 { return c.NodeHeight + c.Padding }

// Overlaps reports whether two node boxes are closer than one node plus
// padding on both axes
func (c LayoutConfig) Overlaps(a, b valueobjects.Position) bool {
	return math.Abs(a.X-b.X) < c.StepX() && math.Abs(a.Y-b.Y) < c.StepY()
}

// OverlapHook is notified whenever a candidate had to be moved
type OverlapHook func(attempts int, fallback bool)

// LayoutOption customises a LayoutEngine
type LayoutOption func(*LayoutEngine)

// WithRand sets the random source used for topic placement
func WithRand(rng *rand.Rand) LayoutOption {
	return func(e *LayoutEngine) {
		e.rng = rng
	}
}

// WithOverlapHook registers a callback for resolved overlaps
func WithOverlapHook(hook OverlapHook) LayoutOption {
	return func(e *LayoutEngine) {
		e.onOverlap = hook
	}
}

// LayoutEngine computes node positions. It never returns an error: bad input
// is logged and replaced with a safe default.
type LayoutEngine struct {
	cfg       atomic.Pointer[LayoutConfig]
	logger    *zap.Logger
	onOverlap OverlapHook

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewLayoutEngine creates a layout engine; an invalid config falls back to defaults
func NewLayoutEngine(cfg LayoutConfig, logger *zap.Logger, opts ...LayoutOption) *LayoutEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("Invalid layout config, using defaults", zap.Error(err))
		cfg = DefaultLayoutConfig()
	}

	e := &LayoutEngine{
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	e.cfg.Store(&cfg)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine's layout configuration
func (e *LayoutEngine) Config() LayoutConfig {
	return *e.cfg.Load()
}

// SetConfig swaps the configuration used by subsequent calls. An invalid
// config is rejected and the current one kept.
func (e *LayoutEngine) SetConfig(cfg LayoutConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg.Store(&cfg)
	return nil
}

// ComputeChildPositions places childCount children of parentID to the right
// of the parent, stacked vertically around its y and wrapped into extra
// columns every MaxSiblings rows. An empty parentID places a single root at
// the canonical center. Results never overlap nodes or each other.
func (e *LayoutEngine) ComputeChildPositions(parentID string, childCount int, nodes []entities.Node) []valueobjects.Position {
	cfg := e.Config()
	if childCount < 1 {
		e.logger.Warn("Child count below 1, placing a single child",
			zap.String("parentID", parentID),
			zap.Int("childCount", childCount),
		)
		childCount = 1
	}

	obstacles := PositionsOf(nodes)

	if parentID == "" {
		return []valueobjects.Position{e.resolveOverlap(cfg, cfg.Center, obstacles)}
	}

	candidates := make([]valueobjects.Position, childCount)
	parent, ok := findNode(nodes, parentID)
	if !ok || !parent.Position.Valid() {
		e.logger.Warn("Parent missing or has no valid position, falling back to center",
			zap.String("parentID", parentID),
			zap.Bool("found", ok),
		)
		for i := range candidates {
			candidates[i] = cfg.Center
		}
	} else {
		rows := min(childCount, cfg.MaxSiblings)
		baseX := parent.Position.X + cfg.HorizontalSpacing
		startY := parent.Position.Y - float64(rows-1)*cfg.VerticalSpacing/2
		for i := range candidates {
			column := i / cfg.MaxSiblings
			row := i % cfg.MaxSiblings
			candidates[i] = valueobjects.Position{
				X: baseX + float64(column)*cfg.StepX(),
				Y: startY + float64(row)*cfg.VerticalSpacing,
			}
		}
	}

	positions := make([]valueobjects.Position, 0, childCount)
	for _, candidate := range candidates {
		p := e.resolveOverlap(cfg, candidate, obstacles)
		obstacles = append(obstacles, p)
		positions = append(positions, p)
	}
	return positions
}

// ResolveOverlap returns candidate if it is clear of every existing position,
// otherwise the first clear step (alternating one step right, then back to
// the original x one step down), otherwise a slot below the lowest node.
func (e *LayoutEngine) ResolveOverlap(candidate valueobjects.Position, existing []valueobjects.Position) valueobjects.Position {
	return e.resolveOverlap(e.Config(), candidate, existing)
}

// resolveOverlap does all its stepping and overlap tests against one config
func (e *LayoutEngine) resolveOverlap(cfg LayoutConfig, candidate valueobjects.Position, existing []valueobjects.Position) valueobjects.Position {
	if !candidate.Valid() {
		e.logger.Warn("Non-finite candidate position, using center",
			zap.Float64("x", candidate.X),
			zap.Float64("y", candidate.Y),
		)
		return cfg.Center
	}
	if len(existing) == 0 || !overlapsAny(cfg, candidate, existing) {
		return candidate
	}

	base := candidate
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		var step valueobjects.Position
		if attempt%2 == 1 {
			step = valueobjects.Position{X: base.X + cfg.StepX(), Y: base.Y}
		} else {
			base = valueobjects.Position{X: candidate.X, Y: base.Y + cfg.StepY()}
			step = base
		}
		if !overlapsAny(cfg, step, existing) {
			e.notifyOverlap(attempt, false)
			return step
		}
	}

	maxY := math.Inf(-1)
	for _, p := range existing {
		if p.Valid() && p.Y > maxY {
			maxY = p.Y
		}
	}
	fallback := valueobjects.Position{X: candidate.X, Y: maxY + cfg.StepY()}

	e.logger.Info("Overlap steps exhausted, placing below lowest node",
		zap.Int("attempts", cfg.MaxAttempts),
		zap.Float64("x", fallback.X),
		zap.Float64("y", fallback.Y),
	)
	e.notifyOverlap(cfg.MaxAttempts, true)
	return fallback
}

// Overlaps tests two positions against the current config
func (e *LayoutEngine) Overlaps(a, b valueobjects.Position) bool {
	return e.Config().Overlaps(a, b)
}

// TopicPosition picks a random point on an annulus around parent. Topic
// nodes are exploratory and deliberately bypass the grid and overlap logic.
func (e *LayoutEngine) TopicPosition(parent valueobjects.Position) valueobjects.Position {
	cfg := e.Config()
	if !parent.Valid() {
		parent = cfg.Center
	}

	e.rngMu.Lock()
	angle := e.rng.Float64() * 2 * math.Pi
	radius := cfg.TopicMinRadius + e.rng.Float64()*(cfg.TopicMaxRadius-cfg.TopicMinRadius)
	e.rngMu.Unlock()

	return valueobjects.Position{
		X: parent.X + radius*math.Cos(angle),
		Y: parent.Y + radius*math.Sin(angle),
	}
}

func overlapsAny(cfg LayoutConfig, p valueobjects.Position, existing []valueobjects.Position) bool {
	for _, other := range existing {
		if other.Valid() && cfg.Overlaps(p, other) {
			return true
		}
	}
	return false
}

func (e *LayoutEngine) notifyOverlap(attempts int, fallback bool) {
	if e.onOverlap != nil {
		e.onOverlap(attempts, fallback)
	}
}

// PositionsOf extracts node positions, skipping non-finite ones
func PositionsOf(nodes []entities.Node) []valueobjects.Position {
	out := make([]valueobjects.Position, 0, len(nodes))
	for _, n := range nodes {
		if n.Position.Valid() {
			out = append(out, n.Position)
		}
	}
	return out
}

func findNode(nodes []entities.Node, id string) (entities.Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return entities.Node{}, false
}
