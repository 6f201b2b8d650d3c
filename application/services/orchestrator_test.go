package services

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"canvas-backend/application/ports"
	"canvas-backend/domain/core/entities"
	"canvas-backend/domain/core/valueobjects"
	domainservices "canvas-backend/domain/services"
	"canvas-backend/domain/events"
	"canvas-backend/infrastructure/persistence/memory"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockGenerationService is a testify mock of ports.GenerationService
type MockGenerationService struct {
	mock.Mock
}

func (m *MockGenerationService) Query(ctx context.Context, text string) (ports.Answer, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(ports.Answer), args.Error(1)
}

func (m *MockGenerationService) FollowUp(ctx context.Context, text string, trail []string) (ports.Answer, error) {
	args := m.Called(ctx, text, trail)
	return args.Get(0).(ports.Answer), args.Error(1)
}

func (m *MockGenerationService) Topic(ctx context.Context, term string, trail []string) (ports.TopicExplanation, error) {
	args := m.Called(ctx, term, trail)
	return args.Get(0).(ports.TopicExplanation), args.Error(1)
}

func (m *MockGenerationService) Synthesize(ctx context.Context, contexts []string, prompt string) (ports.Synthesis, error) {
	args := m.Called(ctx, contexts, prompt)
	return args.Get(0).(ports.Synthesis), args.Error(1)
}

type recordingObserver struct {
	mu          sync.Mutex
	events      []events.DomainEvent
	racesLost   int
	generations map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{generations: make(map[string]int)}
}

func (r *recordingObserver) OnEvents(_ context.Context, evts ...events.DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evts...)
}

func (r *recordingObserver) OnGeneration(operation string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations[operation]++
}

func (r *recordingObserver) OnRaceLost(string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.racesLost++
}

func (r *recordingObserver) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, e := range r.events {
		types = append(types, e.GetEventType())
	}
	return types
}

type fixture struct {
	gen      *MockGenerationService
	observer *recordingObserver
	repo     *memory.CanvasRepository
	orch     *Orchestrator
	session  *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gen := &MockGenerationService{}
	observer := newRecordingObserver()
	repo := memory.NewCanvasRepository()
	layout := domainservices.NewLayoutEngine(domainservices.DefaultLayoutConfig(), zap.NewNop(),
		domainservices.WithRand(rand.New(rand.NewSource(1))))

	return &fixture{
		gen:      gen,
		observer: observer,
		repo:     repo,
		orch:     NewOrchestrator(layout, gen, repo, observer, zap.NewNop()),
		session:  NewSession("canvas-1", "test"),
	}
}

// askRoot asks a question whose answer proposes the given follow-ups
func (f *fixture) askRoot(t *testing.T, followUps ...string) ExpansionResult {
	t.Helper()
	f.gen.On("Query", mock.Anything, "What is Go?").
		Return(ports.Answer{Answer: "A language.", FollowUps: followUps}, nil).Once()

	result, err := f.orch.Ask(context.Background(), f.session, "What is Go?")
	require.NoError(t, err)
	return result
}

func TestOrchestrator_AskLaysOutRootAndChildren(t *testing.T) {
	f := newFixture(t)

	result := f.askRoot(t, "Who made it?", "When?", "Why?")

	require.NotNil(t, result.Node)
	assert.Equal(t, entities.StateExpanded, result.Node.State)
	assert.Equal(t, valueobjects.Position{X: 650, Y: 400}, result.Node.Position)
	assert.Equal(t, "A language.", result.Node.Payload.(entities.ResponsePayload).Content)
	assert.False(t, result.Placeholder)

	require.Len(t, result.Children, 3)
	require.Len(t, result.Edges, 3)
	wantY := []float64{150, 400, 650}
	for i, child := range result.Children {
		assert.Equal(t, valueobjects.Position{X: 1050, Y: wantY[i]}, child.Position)
		assert.Equal(t, entities.StateUnanswered, child.State)
		assert.Equal(t, result.Edges[i].ID, child.ParentEdgeID)
		assert.Equal(t, result.Node.ID, result.Edges[i].Source)
		assert.Equal(t, child.ID, result.Edges[i].Target)
	}

	nodes, edges := f.session.Store().Len()
	assert.Equal(t, 4, nodes)
	assert.Equal(t, 3, edges)
	assert.True(t, f.session.Tracker().HasGenerated(result.Node.ID))
	assert.NoError(t, f.session.Store().Validate())

	assert.Equal(t, []string{
		events.TypeNodesAdded,
		events.TypeNodeAnswered,
		events.TypeNodesAdded,
		events.TypeNodeExpanded,
	}, f.observer.eventTypes())
	f.gen.AssertExpectations(t)
}

func TestOrchestrator_AskRejectsEmptyQuestion(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Ask(context.Background(), f.session, "   ")
	assert.True(t, pkgerrors.IsValidation(err))
	f.gen.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestOrchestrator_AskFailureUsesPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.gen.On("Query", mock.Anything, "What is Go?").
		Return(ports.Answer{}, errors.New("connection refused")).Once()

	result, err := f.orch.Ask(context.Background(), f.session, "What is Go?")
	require.NoError(t, err)

	assert.True(t, result.Placeholder)
	assert.Equal(t, PlaceholderAnswer, result.Node.Payload.(entities.ResponsePayload).Content)
	assert.Empty(t, result.Children)
	assert.NoError(t, f.session.Store().Validate())
	assert.Equal(t, 1, f.observer.generations[OpQuery])
}

func TestOrchestrator_AskMalformedResultUsesPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.gen.On("Query", mock.Anything, "What is Go?").
		Return(ports.Answer{Answer: "  ", FollowUps: []string{"ignored"}}, nil).Once()

	result, err := f.orch.Ask(context.Background(), f.session, "What is Go?")
	require.NoError(t, err)

	assert.True(t, result.Placeholder)
	assert.Empty(t, result.Children)
}

func TestOrchestrator_AnswerFollowUpPassesAncestorContext(t *testing.T) {
	f := newFixture(t)
	root := f.askRoot(t, "Who made it?")
	child := root.Children[0]

	f.gen.On("FollowUp", mock.Anything, "Who made it?", []string{"Q: What is Go?\nA: A language."}).
		Return(ports.Answer{Answer: "Google.", FollowUps: []string{"Which team?", "", "Which team?"}}, nil).Once()

	result, err := f.orch.AnswerFollowUp(context.Background(), f.session, child.ID)
	require.NoError(t, err)

	require.NotNil(t, result.Node)
	payload := result.Node.Payload.(entities.FollowUpPayload)
	assert.Equal(t, "Google.", payload.Answer)
	assert.True(t, payload.HasBeenAnswered)
	assert.Equal(t, []string{"Which team?"}, payload.ChildQuestions, "blank and repeated follow-ups are dropped")
	assert.Equal(t, entities.StateExpanded, result.Node.State)
	require.Len(t, result.Children, 1)
	assert.Equal(t, child.Position.X+400, result.Children[0].Position.X)
	f.gen.AssertExpectations(t)
}

func TestOrchestrator_AnswerFollowUpIsIdempotent(t *testing.T) {
	f := newFixture(t)
	root := f.askRoot(t, "Who made it?")
	childID := root.Children[0].ID

	f.gen.On("FollowUp", mock.Anything, "Who made it?", mock.Anything).
		Return(ports.Answer{Answer: "Google.", FollowUps: []string{"a", "b"}}, nil).Once()

	first, err := f.orch.AnswerFollowUp(context.Background(), f.session, childID)
	require.NoError(t, err)
	second, err := f.orch.AnswerFollowUp(context.Background(), f.session, childID)
	require.NoError(t, err)

	assert.False(t, first.Skipped)
	assert.Len(t, first.Children, 2)
	assert.True(t, second.Skipped)
	assert.Empty(t, second.Children)

	assert.Len(t, f.session.Store().ChildrenOf(childID), 2)
	assert.Equal(t, 1, f.observer.racesLost)
	f.gen.AssertNumberOfCalls(t, "FollowUp", 1)
}

func TestOrchestrator_ConcurrentTriggersCreateOneBatch(t *testing.T) {
	f := newFixture(t)
	root := f.askRoot(t, "Who made it?")
	childID := root.Children[0].ID

	entered := make(chan struct{})
	release := make(chan struct{})
	f.gen.On("FollowUp", mock.Anything, "Who made it?", mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(ports.Answer{Answer: "Google.", FollowUps: []string{"a", "b", "c"}}, nil).Once()

	results := make(chan ExpansionResult, 2)
	errs := make(chan error, 2)
	trigger := func() {
		r, err := f.orch.AnswerFollowUp(context.Background(), f.session, childID)
		results <- r
		errs <- err
	}

	go trigger()
	<-entered
	// the first trigger is suspended inside the generation call
	go trigger()

	loser := <-results
	require.NoError(t, <-errs)
	assert.True(t, loser.Skipped)

	close(release)
	winner := <-results
	require.NoError(t, <-errs)
	assert.False(t, winner.Skipped)
	assert.Len(t, winner.Children, 3)

	assert.Len(t, f.session.Store().ChildrenOf(childID), 3)
	f.gen.AssertNumberOfCalls(t, "FollowUp", 1)
}

func TestOrchestrator_ZeroFollowUpsStillExpands(t *testing.T) {
	f := newFixture(t)
	root := f.askRoot(t, "Who made it?")
	childID := root.Children[0].ID

	f.gen.On("FollowUp", mock.Anything, "Who made it?", mock.Anything).
		Return(ports.Answer{Answer: "Google.", FollowUps: nil}, nil).Once()

	result, err := f.orch.AnswerFollowUp(context.Background(), f.session, childID)
	require.NoError(t, err)

	assert.Equal(t, entities.StateExpanded, result.Node.State)
	assert.Empty(t, result.Children)
	assert.True(t, f.session.Tracker().HasGenerated(childID))

	again, err := f.orch.AnswerFollowUp(context.Background(), f.session, childID)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	f.gen.AssertNumberOfCalls(t, "FollowUp", 1)
}

func TestOrchestrator_FailedFollowUpStaysMarked(t *testing.T) {
	f := newFixture(t)
	root := f.askRoot(t, "Who made it?")
	childID := root.Children[0].ID

	f.gen.On("FollowUp", mock.Anything, "Who made it?", mock.Anything).
		Return(ports.Answer{}, errors.New("timeout")).Once()

	result, err := f.orch.AnswerFollowUp(context.Background(), f.session, childID)
	require.NoError(t, err)
	assert.True(t, result.Placeholder)
	assert.Equal(t, PlaceholderAnswer, result.Node.Payload.(entities.FollowUpPayload).Answer)

	again, err := f.orch.AnswerFollowUp(context.Background(), f.session, childID)
	require.NoError(t, err)
	assert.True(t, again.Skipped, "a failed node is not retried automatically")
}

func TestOrchestrator_ResetDiscardsInFlightResult(t *testing.T) {
	f := newFixture(t)
	root := f.askRoot(t, "Who made it?")
	childID := root.Children[0].ID

	entered := make(chan struct{})
	release := make(chan struct{})
	f.gen.On("FollowUp", mock.Anything, "Who made it?", mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(ports.Answer{Answer: "Google.", FollowUps: []string{"a"}}, nil).Once()

	errs := make(chan error, 1)
	go func() {
		_, err := f.orch.AnswerFollowUp(context.Background(), f.session, childID)
		errs <- err
	}()

	<-entered
	f.orch.Reset(context.Background(), f.session)
	close(release)

	err := <-errs
	assert.True(t, errors.Is(err, ErrStaleResult))

	nodes, edges := f.session.Store().Len()
	assert.Zero(t, nodes)
	assert.Zero(t, edges)
	assert.Zero(t, f.session.Tracker().Len())
	assert.Contains(t, f.observer.eventTypes(), events.TypeCanvasReset)
}

func TestOrchestrator_AnswerFollowUpErrors(t *testing.T) {
	f := newFixture(t)
	root := f.askRoot(t)

	_, err := f.orch.AnswerFollowUp(context.Background(), f.session, "missing")
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = f.orch.AnswerFollowUp(context.Background(), f.session, root.NodeID)
	assert.True(t, pkgerrors.IsValidation(err), "response roots are answered through Ask")
}

func TestOrchestrator_ExploreTopic(t *testing.T) {
	f := newFixture(t)
	root := f.askRoot(t)

	f.gen.On("Topic", mock.Anything, "goroutines", []string{"Q: What is Go?\nA: A language."}).
		Return(ports.TopicExplanation{Explanation: "Lightweight threads."}, nil).Once()

	result, err := f.orch.ExploreTopic(context.Background(), f.session, root.NodeID, " goroutines ")
	require.NoError(t, err)

	assert.Equal(t, entities.KindTopic, result.Node.Kind())
	assert.Equal(t, entities.StateAnswered, result.Node.State)
	assert.Equal(t, entities.EdgeTypeTopic, result.Edge.Type)
	assert.Equal(t, root.NodeID, result.Edge.Source)
	assert.Equal(t, result.Node.ID, result.Edge.Target)

	distance := result.Node.Position.DistanceTo(root.Node.Position)
	assert.GreaterOrEqual(t, distance, 300.0-1e-6)
	assert.LessOrEqual(t, distance, 450.0+1e-6)

	assert.False(t, f.session.Tracker().HasGenerated(result.Node.ID))
	assert.NoError(t, f.session.Store().Validate())
	assert.Contains(t, f.observer.eventTypes(), events.TypeTopicExplored)
}

func TestOrchestrator_ExploreTopicFailureUsesPlaceholder(t *testing.T) {
	f := newFixture(t)
	root := f.askRoot(t)

	f.gen.On("Topic", mock.Anything, "channels", mock.Anything).
		Return(ports.TopicExplanation{}, errors.New("bad json")).Once()

	result, err := f.orch.ExploreTopic(context.Background(), f.session, root.NodeID, "channels")
	require.NoError(t, err)
	assert.True(t, result.Placeholder)
	assert.Equal(t, PlaceholderExplanation, result.Node.Payload.(entities.TopicPayload).Explanation)

	_, err = f.orch.ExploreTopic(context.Background(), f.session, "missing", "channels")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestOrchestrator_CustomInputLifecycle(t *testing.T) {
	f := newFixture(t)
	root := f.askRoot(t, "Who made it?")

	input, err := f.orch.CreateCustomInput(context.Background(), f.session, root.NodeID)
	require.NoError(t, err)
	assert.Equal(t, entities.StateInput, input.State)
	assert.True(t, f.session.Store().HasNode(input.ID))
	for _, sibling := range root.Children {
		assert.NotEqual(t, sibling.Position, input.Position)
	}

	_, err = f.orch.AnswerFollowUp(context.Background(), f.session, input.ID)
	assert.True(t, pkgerrors.IsConflict(err), "input nodes must be submitted first")

	f.gen.On("FollowUp", mock.Anything, "How fast is it?", mock.Anything).
		Return(ports.Answer{Answer: "Fast.", FollowUps: []string{"Compared to?"}}, nil).Once()

	result, err := f.orch.SubmitCustomInput(context.Background(), f.session, input.ID, "How fast is it?")
	require.NoError(t, err)
	assert.Equal(t, "How fast is it?", result.Node.Payload.(entities.FollowUpPayload).Question)
	assert.Equal(t, entities.StateExpanded, result.Node.State)
	assert.Len(t, result.Children, 1)

	_, err = f.orch.SubmitCustomInput(context.Background(), f.session, input.ID, "again")
	assert.True(t, pkgerrors.IsConflict(err))
	f.gen.AssertNumberOfCalls(t, "FollowUp", 1)
}

func TestOrchestrator_ExpandNode(t *testing.T) {
	f := newFixture(t)

	answered := entities.Node{
		ID:       "n1",
		Position: valueobjects.Position{X: 650, Y: 400},
		State:    entities.StateAnswered,
		Payload:  entities.FollowUpPayload{Question: "q", Answer: "a", HasBeenAnswered: true},
	}
	unanswered := entities.Node{
		ID:       "n2",
		Position: valueobjects.Position{X: 650, Y: 900},
		State:    entities.StateUnanswered,
		Payload:  entities.FollowUpPayload{Question: "q2"},
	}
	require.NoError(t, f.session.Store().AddNodes(answered, unanswered))

	_, err := f.orch.ExpandNode(context.Background(), f.session, "n2", []string{"x"})
	assert.True(t, pkgerrors.IsConflict(err))
	assert.False(t, f.session.Tracker().HasGenerated("n2"), "a rejected expansion does not claim the node")

	result, err := f.orch.ExpandNode(context.Background(), f.session, "n1", []string{"x", "y", "z", "w"})
	require.NoError(t, err)
	require.Len(t, result.Children, 4)
	assert.Equal(t, 1050.0, result.Children[0].Position.X)
	assert.Equal(t, 1400.0, result.Children[3].Position.X)

	again, err := f.orch.ExpandNode(context.Background(), f.session, "n1", []string{"x"})
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Len(t, f.session.Store().ChildrenOf("n1"), 4)
	assertNoOverlaps(t, f.session.Snapshot().Nodes)
}

func TestOrchestrator_Synthesize(t *testing.T) {
	f := newFixture(t)
	root := f.askRoot(t, "Who made it?")

	f.gen.On("Synthesize", mock.Anything,
		[]string{"Q: What is Go?\nA: A language.", "Q: What is Go?\nA: A language.\n\nQ: Who made it?"},
		"summarize").
		Return(ports.Synthesis{Title: "Go", Content: "Summary."}, nil).Once()

	artifact, err := f.orch.Synthesize(context.Background(), f.session,
		[]string{root.NodeID, root.Children[0].ID}, " summarize ")
	require.NoError(t, err)
	assert.Equal(t, "Go", artifact.Title)
	assert.False(t, artifact.Placeholder)

	stored, err := f.repo.ListArtifacts(context.Background(), f.session.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, artifact.ID, stored[0].ID)

	_, err = f.orch.Synthesize(context.Background(), f.session, []string{"missing"}, "")
	assert.True(t, pkgerrors.IsNotFound(err))
	_, err = f.orch.Synthesize(context.Background(), f.session, nil, "")
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestOrchestrator_SynthesizeFailureUsesPlaceholder(t *testing.T) {
	f := newFixture(t)
	root := f.askRoot(t)

	f.gen.On("Synthesize", mock.Anything, mock.Anything, "").
		Return(ports.Synthesis{}, errors.New("rate limited")).Once()

	artifact, err := f.orch.Synthesize(context.Background(), f.session, []string{root.NodeID}, "")
	require.NoError(t, err)
	assert.True(t, artifact.Placeholder)
	assert.Equal(t, PlaceholderTitle, artifact.Title)
}

func TestOrchestrator_GrowingCanvasNeverOverlaps(t *testing.T) {
	f := newFixture(t)
	root := f.askRoot(t, "a", "b", "c", "d")

	f.gen.On("FollowUp", mock.Anything, mock.Anything, mock.Anything).
		Return(ports.Answer{Answer: "ok", FollowUps: []string{"1", "2", "3", "4", "5"}}, nil)

	frontier := root.Children
	for depth := 0; depth < 2; depth++ {
		var next []entities.Node
		for _, n := range frontier {
			result, err := f.orch.AnswerFollowUp(context.Background(), f.session, n.ID)
			require.NoError(t, err)
			next = append(next, result.Children...)
		}
		frontier = next
	}

	snap := f.session.Snapshot()
	assert.Len(t, snap.Nodes, 1+4+4*5+4*5*5)
	assertNoOverlaps(t, snap.Nodes)
	assert.NoError(t, f.session.Store().Validate())
}

func assertNoOverlaps(t *testing.T, nodes []entities.Node) {
	t.Helper()
	cfg := domainservices.DefaultLayoutConfig()
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			a, b := nodes[i].Position, nodes[j].Position
			dx, dy := a.X-b.X, a.Y-b.Y
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			assert.False(t, dx < cfg.StepX() && dy < cfg.StepY(),
				"nodes %s %v and %s %v overlap", nodes[i].ID, a, nodes[j].ID, b)
		}
	}
}
