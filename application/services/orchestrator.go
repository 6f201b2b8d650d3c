package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"canvas-backend/application/ports"
	"canvas-backend/domain/core/entities"
	domainservices "canvas-backend/domain/services"
	"canvas-backend/domain/events"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Placeholder content used when the generation service cannot help
const (
	PlaceholderAnswer      = "[unavailable] An answer could not be generated right now. Try again later."
	PlaceholderExplanation = "[unavailable] An explanation could not be generated right now."
	PlaceholderTitle       = "[unavailable] Untitled synthesis"
	PlaceholderSynthesis   = "[unavailable] The selected nodes could not be synthesized right now."
)

// Generation operation names, used for metrics and tracing
const (
	OpQuery      = "query"
	OpFollowUp   = "follow_up"
	OpTopic      = "topic"
	OpSynthesize = "synthesize"
)

// ErrStaleResult is returned when a generation result arrives for a canvas
// that was reset, or a node that no longer exists, while the call was in flight
var ErrStaleResult = pkgerrors.NewConflictError("generation result is stale")

// ErrMalformedResult marks a generation response missing required fields
var ErrMalformedResult = errors.New("malformed generation result")

// ArtifactStore persists synthesis artifacts
type ArtifactStore interface {
	SaveArtifact(ctx context.Context, artifact ports.Artifact) error
}

// ExpansionResult describes one answer-and-expand cycle
type ExpansionResult struct {
	NodeID      string          `json:"nodeId"`
	Node        *entities.Node  `json:"node,omitempty"`
	Children    []entities.Node `json:"children"`
	Edges       []entities.Edge `json:"edges"`
	Skipped     bool            `json:"skipped"`
	Placeholder bool            `json:"placeholder"`
}

// TopicResult describes a topic annotation added to the canvas
type TopicResult struct {
	Node        entities.Node `json:"node"`
	Edge        entities.Edge `json:"edge"`
	Placeholder bool          `json:"placeholder"`
}

// OrchestratorOption customises an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithGenerationTimeout bounds every generation call
func WithGenerationTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.generationTimeout = d
	}
}

// WithClock overrides the time source used for CreatedAt stamps
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator drives the per-node lifecycle
// Input -> Unanswered -> Answered -> Expanded on top of a Session.
type Orchestrator struct {
	layout     *domainservices.LayoutEngine
	reconciler *domainservices.EdgeReconciler
	generator  ports.GenerationService
	artifacts  ArtifactStore
	observer   GraphObserver
	logger     *zap.Logger

	generationTimeout time.Duration
	now               func() time.Time
}

// NewOrchestrator creates an orchestrator; observer and artifacts may be nil
func NewOrchestrator(
	layout *domainservices.LayoutEngine,
	generator ports.GenerationService,
	artifacts ArtifactStore,
	observer GraphObserver,
	logger *zap.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = NopObserver{}
	}

	o := &Orchestrator{
		layout:            layout,
		reconciler:        domainservices.NewEdgeReconciler(logger, nil),
		generator:         generator,
		artifacts:         artifacts,
		observer:          observer,
		logger:            logger,
		generationTimeout: 60 * time.Second,
		now:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ask creates a root Response node for question, answers it and expands it
// with the returned follow-ups.
func (o *Orchestrator) Ask(ctx context.Context, s *Session, question string) (ExpansionResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return ExpansionResult{}, pkgerrors.NewValidationError("question cannot be empty")
	}

	s.mu.Lock()
	snap := s.store.Snapshot()
	position := o.layout.ComputeChildPositions("", 1, snap.Nodes)[0]
	root, err := entities.NewNode(entities.NewNodeID(), position, entities.StateUnanswered,
		entities.ResponsePayload{Query: question})
	if err != nil {
		s.mu.Unlock()
		return ExpansionResult{}, err
	}
	root.CreatedAt = o.now()
	if err := s.store.AddNodes(root); err != nil {
		s.mu.Unlock()
		return ExpansionResult{}, err
	}
	s.tracker.MarkGenerated(root.ID)
	epoch := snap.Epoch
	s.mu.Unlock()

	o.observer.OnEvents(ctx, events.NewNodesAdded(s.ID, "", []entities.Node{root}, nil))

	answer, genErr := o.query(ctx, question)
	placeholder := genErr != nil
	if placeholder {
		o.logger.Error("Query generation failed, using placeholder",
			zap.String("canvasID", s.ID),
			zap.String("nodeID", root.ID),
			zap.Error(genErr),
		)
		answer = ports.Answer{Answer: PlaceholderAnswer}
	}

	s.mu.Lock()
	if err := o.checkFresh(s, epoch, root.ID); err != nil {
		s.mu.Unlock()
		o.logStale(s, root.ID, OpQuery)
		return ExpansionResult{}, err
	}
	updated, err := s.store.UpdateNode(root.ID, func(n entities.Node) (entities.Node, error) {
		return n.WithPayload(entities.ResponsePayload{Query: question, Content: answer.Answer}).
			WithState(entities.StateAnswered), nil
	})
	if err != nil {
		s.mu.Unlock()
		return ExpansionResult{}, err
	}
	result, evts, err := o.expandLocked(s, updated, answer.FollowUps)
	s.mu.Unlock()
	if err != nil {
		return ExpansionResult{}, err
	}

	evts = append([]events.DomainEvent{events.NewNodeAnswered(s.ID, root.ID, placeholder)}, evts...)
	o.observer.OnEvents(ctx, evts...)

	result.Placeholder = placeholder
	return result, nil
}

// AnswerFollowUp generates the answer for an unanswered follow-up and
// expands it. Of two triggers for the same node only the first proceeds;
// the other returns Skipped without error.
func (o *Orchestrator) AnswerFollowUp(ctx context.Context, s *Session, nodeID string) (ExpansionResult, error) {
	s.mu.Lock()
	node, ok := s.store.Node(nodeID)
	if !ok {
		s.mu.Unlock()
		return ExpansionResult{}, pkgerrors.NewNotFoundError("node " + nodeID)
	}
	payload, ok := node.Payload.(entities.FollowUpPayload)
	if !ok {
		s.mu.Unlock()
		return ExpansionResult{}, pkgerrors.NewValidationError(
			fmt.Sprintf("node %s is a %s node, only follow-ups can be answered", nodeID, node.Kind()))
	}
	if node.State == entities.StateInput {
		s.mu.Unlock()
		return ExpansionResult{}, pkgerrors.NewConflictError(
			fmt.Sprintf("node %s is awaiting custom input", nodeID))
	}
	if !s.tracker.TryMark(nodeID) {
		s.mu.Unlock()
		o.raceLost(s, nodeID)
		return ExpansionResult{NodeID: nodeID, Skipped: true}, nil
	}

	// answered before a restart but never expanded: reuse the stored follow-ups
	if node.Answered() {
		result, evts, err := o.expandLocked(s, node, payload.ChildQuestions)
		s.mu.Unlock()
		if err != nil {
			return ExpansionResult{}, err
		}
		o.observer.OnEvents(ctx, evts...)
		return result, nil
	}

	snap := s.store.Snapshot()
	trail := domainservices.BuildAncestorContext(nodeID, snap.Nodes, snap.Edges)
	// the question itself is sent as the prompt, not as context
	if len(trail) > 0 {
		trail = trail[:len(trail)-1]
	}
	epoch := snap.Epoch
	s.mu.Unlock()

	answer, genErr := o.followUp(ctx, payload.Question, trail)
	placeholder := genErr != nil
	if placeholder {
		o.logger.Error("Follow-up generation failed, using placeholder",
			zap.String("canvasID", s.ID),
			zap.String("nodeID", nodeID),
			zap.Error(genErr),
		)
		answer = ports.Answer{Answer: PlaceholderAnswer}
	}

	s.mu.Lock()
	if err := o.checkFresh(s, epoch, nodeID); err != nil {
		s.mu.Unlock()
		o.logStale(s, nodeID, OpFollowUp)
		return ExpansionResult{}, err
	}
	updated, err := s.store.UpdateNode(nodeID, func(n entities.Node) (entities.Node, error) {
		p, ok := n.Payload.(entities.FollowUpPayload)
		if !ok {
			return n, pkgerrors.NewInternalError("node payload changed kind")
		}
		p.Answer = answer.Answer
		p.HasBeenAnswered = true
		p.ChildQuestions = cleanQuestions(answer.FollowUps)
		return n.WithPayload(p).WithState(entities.StateAnswered), nil
	})
	if err != nil {
		s.mu.Unlock()
		return ExpansionResult{}, err
	}
	result, evts, err := o.expandLocked(s, updated, answer.FollowUps)
	s.mu.Unlock()
	if err != nil {
		return ExpansionResult{}, err
	}

	evts = append([]events.DomainEvent{events.NewNodeAnswered(s.ID, nodeID, placeholder)}, evts...)
	o.observer.OnEvents(ctx, evts...)

	result.Placeholder = placeholder
	return result, nil
}

// ExpandNode performs the Answered -> Expanded transition with the given
// follow-up questions. It runs at most once per node.
func (o *Orchestrator) ExpandNode(ctx context.Context, s *Session, nodeID string, followUps []string) (ExpansionResult, error) {
	s.mu.Lock()
	node, ok := s.store.Node(nodeID)
	if !ok {
		s.mu.Unlock()
		return ExpansionResult{}, pkgerrors.NewNotFoundError("node " + nodeID)
	}
	if node.Kind() == entities.KindTopic {
		s.mu.Unlock()
		return ExpansionResult{}, pkgerrors.NewValidationError("topic nodes cannot be expanded")
	}
	if !node.Answered() {
		s.mu.Unlock()
		return ExpansionResult{}, pkgerrors.NewConflictError(
			fmt.Sprintf("node %s must be answered before it can be expanded", nodeID))
	}
	if node.State == entities.StateExpanded || !s.tracker.TryMark(nodeID) {
		s.mu.Unlock()
		o.raceLost(s, nodeID)
		return ExpansionResult{NodeID: nodeID, Skipped: true}, nil
	}

	result, evts, err := o.expandLocked(s, node, followUps)
	s.mu.Unlock()
	if err != nil {
		return ExpansionResult{}, err
	}

	o.observer.OnEvents(ctx, evts...)
	return result, nil
}

// ExploreTopic explains term in the context of sourceNodeID and attaches the
// explanation as a Topic node at a random offset around the source.
func (o *Orchestrator) ExploreTopic(ctx context.Context, s *Session, sourceNodeID, term string) (TopicResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return TopicResult{}, pkgerrors.NewValidationError("topic term cannot be empty")
	}

	s.mu.Lock()
	if !s.store.HasNode(sourceNodeID) {
		s.mu.Unlock()
		return TopicResult{}, pkgerrors.NewNotFoundError("node " + sourceNodeID)
	}
	snap := s.store.Snapshot()
	trail := domainservices.BuildAncestorContext(sourceNodeID, snap.Nodes, snap.Edges)
	epoch := snap.Epoch
	s.mu.Unlock()

	explanation, genErr := o.topic(ctx, term, trail)
	placeholder := genErr != nil
	if placeholder {
		o.logger.Error("Topic generation failed, using placeholder",
			zap.String("canvasID", s.ID),
			zap.String("nodeID", sourceNodeID),
			zap.String("term", term),
			zap.Error(genErr),
		)
		explanation = ports.TopicExplanation{Explanation: PlaceholderExplanation}
	}

	s.mu.Lock()
	if err := o.checkFresh(s, epoch, sourceNodeID); err != nil {
		s.mu.Unlock()
		o.logStale(s, sourceNodeID, OpTopic)
		return TopicResult{}, err
	}
	source, _ := s.store.Node(sourceNodeID)
	position := o.layout.TopicPosition(source.Position)
	topicNode, err := entities.NewNode(entities.NewNodeID(), position, entities.StateAnswered,
		entities.TopicPayload{Topic: term, Explanation: explanation.Explanation})
	if err != nil {
		s.mu.Unlock()
		return TopicResult{}, err
	}
	topicNode.CreatedAt = o.now()
	edge := entities.NewEdge(sourceNodeID, topicNode.ID, entities.EdgeTypeTopic)
	topicNode.ParentEdgeID = edge.ID

	if err := s.store.AddBatch([]entities.Node{topicNode}, []entities.Edge{edge}); err != nil {
		s.mu.Unlock()
		return TopicResult{}, err
	}
	dropped, err := o.reconcileLocked(s)
	s.mu.Unlock()
	if err != nil {
		return TopicResult{}, err
	}

	evts := []events.DomainEvent{
		events.NewNodesAdded(s.ID, sourceNodeID, []entities.Node{topicNode}, []entities.Edge{edge}),
		events.NewTopicExplored(s.ID, sourceNodeID, topicNode.ID, term),
	}
	if dropped > 0 {
		evts = append(evts, events.NewEdgesReconciled(s.ID, dropped))
	}
	o.observer.OnEvents(ctx, evts...)

	return TopicResult{Node: topicNode, Edge: edge, Placeholder: placeholder}, nil
}

// CreateCustomInput adds an empty follow-up under parentID, waiting for the
// user to type a question. No generation call is made.
func (o *Orchestrator) CreateCustomInput(ctx context.Context, s *Session, parentID string) (entities.Node, error) {
	s.mu.Lock()
	parent, ok := s.store.Node(parentID)
	if !ok {
		s.mu.Unlock()
		return entities.Node{}, pkgerrors.NewNotFoundError("node " + parentID)
	}
	if parent.Kind() == entities.KindTopic {
		s.mu.Unlock()
		return entities.Node{}, pkgerrors.NewValidationError("custom follow-ups cannot be attached to topic nodes")
	}

	snap := s.store.Snapshot()
	position := o.layout.ComputeChildPositions(parentID, 1, snap.Nodes)[0]
	node, err := entities.NewNode(entities.NewNodeID(), position, entities.StateInput, entities.FollowUpPayload{})
	if err != nil {
		s.mu.Unlock()
		return entities.Node{}, err
	}
	node.CreatedAt = o.now()
	edge := entities.NewEdge(parentID, node.ID, entities.EdgeTypeHierarchical)
	node.ParentEdgeID = edge.ID

	if err := s.store.AddBatch([]entities.Node{node}, []entities.Edge{edge}); err != nil {
		s.mu.Unlock()
		return entities.Node{}, err
	}
	dropped, err := o.reconcileLocked(s)
	s.mu.Unlock()
	if err != nil {
		return entities.Node{}, err
	}

	evts := []events.DomainEvent{events.NewNodesAdded(s.ID, parentID, []entities.Node{node}, []entities.Edge{edge})}
	if dropped > 0 {
		evts = append(evts, events.NewEdgesReconciled(s.ID, dropped))
	}
	o.observer.OnEvents(ctx, evts...)

	return node, nil
}

// SubmitCustomInput turns an input node into a normal unanswered follow-up
// carrying question, then answers it.
func (o *Orchestrator) SubmitCustomInput(ctx context.Context, s *Session, nodeID, question string) (ExpansionResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return ExpansionResult{}, pkgerrors.NewValidationError("question cannot be empty")
	}

	s.mu.Lock()
	_, err := s.store.UpdateNode(nodeID, func(n entities.Node) (entities.Node, error) {
		if n.State != entities.StateInput {
			return n, pkgerrors.NewConflictError(fmt.Sprintf("node %s is not awaiting input", nodeID))
		}
		return n.WithPayload(entities.FollowUpPayload{Question: question}).
			WithState(entities.StateUnanswered), nil
	})
	s.mu.Unlock()
	if err != nil {
		return ExpansionResult{}, err
	}

	return o.AnswerFollowUp(ctx, s, nodeID)
}

// Synthesize combines the context trails of nodeIDs into an artifact
func (o *Orchestrator) Synthesize(ctx context.Context, s *Session, nodeIDs []string, customPrompt string) (ports.Artifact, error) {
	if len(nodeIDs) == 0 {
		return ports.Artifact{}, pkgerrors.NewValidationError("at least one node must be selected")
	}

	snap := s.Snapshot()
	contexts := make([]string, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if _, ok := snap.Node(id); !ok {
			return ports.Artifact{}, pkgerrors.NewNotFoundError("node " + id)
		}
		trail := domainservices.BuildAncestorContext(id, snap.Nodes, snap.Edges)
		contexts = append(contexts, strings.Join(trail, "\n\n"))
	}

	synthesis, genErr := o.synthesize(ctx, contexts, strings.TrimSpace(customPrompt))
	placeholder := genErr != nil
	if placeholder {
		o.logger.Error("Synthesis generation failed, using placeholder",
			zap.String("canvasID", s.ID),
			zap.Int("nodes", len(nodeIDs)),
			zap.Error(genErr),
		)
		synthesis = ports.Synthesis{Title: PlaceholderTitle, Content: PlaceholderSynthesis}
	}

	artifact := ports.Artifact{
		ID:            uuid.New().String(),
		CanvasID:      s.ID,
		Title:         synthesis.Title,
		Content:       synthesis.Content,
		SourceNodeIDs: append([]string(nil), nodeIDs...),
		Placeholder:   placeholder,
		CreatedAt:     o.now(),
	}

	if o.artifacts != nil {
		if err := o.artifacts.SaveArtifact(ctx, artifact); err != nil {
			return ports.Artifact{}, pkgerrors.NewDatabaseError("save artifact", err)
		}
	}

	o.observer.OnEvents(ctx, events.NewArtifactCreated(s.ID, artifact.ID, artifact.Title, artifact.SourceNodeIDs))
	return artifact, nil
}

// Reset empties the canvas and forgets every generation mark. Results of
// calls still in flight will be discarded as stale.
func (o *Orchestrator) Reset(ctx context.Context, s *Session) {
	s.mu.Lock()
	s.store.Reset()
	s.tracker.Clear()
	epoch := s.store.Epoch()
	s.mu.Unlock()

	o.logger.Info("Canvas reset", zap.String("canvasID", s.ID), zap.Uint64("epoch", epoch))
	o.observer.OnEvents(ctx, events.NewCanvasReset(s.ID, epoch))
}

// expandLocked creates one follow-up child per question next to parent and
// marks parent Expanded, all in one batch. Caller holds s.mu and has already
// claimed parent in the tracker.
func (o *Orchestrator) expandLocked(s *Session, parent entities.Node, followUps []string) (ExpansionResult, []events.DomainEvent, error) {
	questions := cleanQuestions(followUps)

	var (
		children []entities.Node
		edges    []entities.Edge
	)
	if len(questions) > 0 {
		snap := s.store.Snapshot()
		positions := o.layout.ComputeChildPositions(parent.ID, len(questions), snap.Nodes)

		children = make([]entities.Node, 0, len(questions))
		edges = make([]entities.Edge, 0, len(questions))
		for i, q := range questions {
			child, err := entities.NewNode(entities.NewNodeID(), positions[i], entities.StateUnanswered,
				entities.FollowUpPayload{Question: q})
			if err != nil {
				return ExpansionResult{}, nil, err
			}
			child.CreatedAt = o.now()
			edge := entities.NewEdge(parent.ID, child.ID, entities.EdgeTypeHierarchical)
			child.ParentEdgeID = edge.ID
			children = append(children, child)
			edges = append(edges, edge)
		}

		if err := s.store.AddBatch(children, edges); err != nil {
			return ExpansionResult{}, nil, err
		}
	}

	dropped, err := o.reconcileLocked(s)
	if err != nil {
		return ExpansionResult{}, nil, err
	}

	expanded, err := s.store.UpdateNode(parent.ID, func(n entities.Node) (entities.Node, error) {
		if p, ok := n.Payload.(entities.FollowUpPayload); ok {
			p.ChildQuestions = questions
			n = n.WithPayload(p)
		}
		return n.WithState(entities.StateExpanded), nil
	})
	if err != nil {
		return ExpansionResult{}, nil, err
	}

	childIDs := make([]string, 0, len(children))
	for _, c := range children {
		childIDs = append(childIDs, c.ID)
	}

	o.logger.Debug("Node expanded",
		zap.String("canvasID", s.ID),
		zap.String("nodeID", parent.ID),
		zap.Int("children", len(children)),
	)

	var evts []events.DomainEvent
	if len(children) > 0 {
		evts = append(evts, events.NewNodesAdded(s.ID, parent.ID, children, edges))
	}
	evts = append(evts, events.NewNodeExpanded(s.ID, parent.ID, childIDs))
	if dropped > 0 {
		evts = append(evts, events.NewEdgesReconciled(s.ID, dropped))
	}

	return ExpansionResult{
		NodeID:   parent.ID,
		Node:     &expanded,
		Children: children,
		Edges:    edges,
	}, evts, nil
}

// reconcileLocked drops duplicate edges from the store; caller holds s.mu
func (o *Orchestrator) reconcileLocked(s *Session) (int, error) {
	var dropped int
	err := s.store.ReplaceEdges(func(current []entities.Edge) []entities.Edge {
		kept := o.reconciler.Reconcile(current)
		dropped = len(current) - len(kept)
		return kept
	})
	return dropped, err
}

// checkFresh reports ErrStaleResult if the canvas was reset or nodeID removed
// since the generation call was dispatched; caller holds s.mu
func (o *Orchestrator) checkFresh(s *Session, epoch uint64, nodeID string) error {
	if s.store.Epoch() != epoch || !s.store.HasNode(nodeID) {
		return ErrStaleResult
	}
	return nil
}

func (o *Orchestrator) logStale(s *Session, nodeID, operation string) {
	o.logger.Info("Discarding stale generation result",
		zap.String("canvasID", s.ID),
		zap.String("nodeID", nodeID),
		zap.String("operation", operation),
	)
}

func (o *Orchestrator) raceLost(s *Session, nodeID string) {
	o.logger.Info("Generation already triggered for node, skipping",
		zap.String("canvasID", s.ID),
		zap.String("nodeID", nodeID),
	)
	o.observer.OnRaceLost(s.ID, nodeID)
}

func (o *Orchestrator) query(ctx context.Context, text string) (ports.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, o.generationTimeout)
	defer cancel()

	start := time.Now()
	answer, err := o.generator.Query(ctx, text)
	if err == nil && strings.TrimSpace(answer.Answer) == "" {
		err = ErrMalformedResult
	}
	o.observer.OnGeneration(OpQuery, time.Since(start), err)
	return answer, err
}

func (o *Orchestrator) followUp(ctx context.Context, text string, trail []string) (ports.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, o.generationTimeout)
	defer cancel()

	start := time.Now()
	answer, err := o.generator.FollowUp(ctx, text, trail)
	if err == nil && strings.TrimSpace(answer.Answer) == "" {
		err = ErrMalformedResult
	}
	o.observer.OnGeneration(OpFollowUp, time.Since(start), err)
	return answer, err
}

func (o *Orchestrator) topic(ctx context.Context, term string, trail []string) (ports.TopicExplanation, error) {
	ctx, cancel := context.WithTimeout(ctx, o.generationTimeout)
	defer cancel()

	start := time.Now()
	explanation, err := o.generator.Topic(ctx, term, trail)
	if err == nil && strings.TrimSpace(explanation.Explanation) == "" {
		err = ErrMalformedResult
	}
	o.observer.OnGeneration(OpTopic, time.Since(start), err)
	return explanation, err
}

func (o *Orchestrator) synthesize(ctx context.Context, contexts []string, prompt string) (ports.Synthesis, error) {
	ctx, cancel := context.WithTimeout(ctx, o.generationTimeout)
	defer cancel()

	start := time.Now()
	synthesis, err := o.generator.Synthesize(ctx, contexts, prompt)
	if err == nil && (strings.TrimSpace(synthesis.Title) == "" || strings.TrimSpace(synthesis.Content) == "") {
		err = ErrMalformedResult
	}
	o.observer.OnGeneration(OpSynthesize, time.Since(start), err)
	return synthesis, err
}

// cleanQuestions trims follow-ups and drops blanks and repeats
func cleanQuestions(followUps []string) []string {
	seen := make(map[string]struct{}, len(followUps))
	out := make([]string, 0, len(followUps))
	for _, q := range followUps {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
