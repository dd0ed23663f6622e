package simulation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duskmantle/courtmind/api/schemas"
	"github.com/duskmantle/courtmind/internal/config"
)

type stubReasoner struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, agentCtx schemas.AgentContext) (schemas.AgentThought, error)
}

func (s *stubReasoner) SimulateAgent(ctx context.Context, agentCtx schemas.AgentContext) (schemas.AgentThought, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[agentCtx.Profile.ID]++
	s.mu.Unlock()
	return s.fn(ctx, agentCtx)
}

func (s *stubReasoner) callCount(agentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[agentID]
}

type stubGraph struct {
	edges []schemas.Edge
}

func (s *stubGraph) EdgesTouching(string) []schemas.Edge { return s.edges }

func testSimConfig() config.SimulationConfig {
	return config.SimulationConfig{
		SelectionCount: 3,
		MaxRetries:     3,
		BackoffBase:    time.Millisecond,
		RateLimitBase:  time.Millisecond,
		CallTimeout:    time.Second,
	}
}

func testCast() []schemas.AgentProfile {
	return []schemas.AgentProfile{
		{ID: "a1", Name: "Corvin", Archetype: schemas.ArchetypeSchemer, Favor: 55},
		{ID: "a2", Name: "Halvence", Archetype: schemas.ArchetypeZealot, Favor: 45},
		{ID: "a3", Name: "Ilka", Archetype: schemas.ArchetypeSurvivor, Favor: 25},
	}
}

func TestRunReturnsThoughtsInSelectionOrder(t *testing.T) {
	t.Parallel()

	client := &stubReasoner{fn: func(_ context.Context, agentCtx schemas.AgentContext) (schemas.AgentThought, error) {
		return schemas.AgentThought{PublicAction: "acts as " + agentCtx.Profile.Name}, nil
	}}
	exec := NewExecutor(testSimConfig(), client, &stubGraph{}, "protagonist", zap.NewNop())

	thoughts, err := exec.Run(context.Background(), testCast(), "the great hall", 4)
	require.NoError(t, err)
	require.Len(t, thoughts, 3)

	assert.Equal(t, "acts as Corvin", thoughts[0].PublicAction)
	assert.Equal(t, "acts as Halvence", thoughts[1].PublicAction)
	assert.Equal(t, "acts as Ilka", thoughts[2].PublicAction)
	// Blank agent ids are backfilled from the profile.
	assert.Equal(t, "a1", thoughts[0].AgentID)
}

func TestRunDispatchesAgentsConcurrently(t *testing.T) {
	t.Parallel()

	var barrier sync.WaitGroup
	barrier.Add(3)
	client := &stubReasoner{fn: func(_ context.Context, _ schemas.AgentContext) (schemas.AgentThought, error) {
		// Each call parks until all three are in flight. A sequential
		// executor would deadlock here.
		barrier.Done()
		barrier.Wait()
		return schemas.AgentThought{AgentID: "x"}, nil
	}}
	exec := NewExecutor(testSimConfig(), client, &stubGraph{}, "protagonist", zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := exec.Run(context.Background(), testCast(), "scene", 1)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("agents were not simulated concurrently")
	}
}

func TestRunSubstitutesFallbackAfterExhaustedRetries(t *testing.T) {
	t.Parallel()

	client := &stubReasoner{fn: func(_ context.Context, agentCtx schemas.AgentContext) (schemas.AgentThought, error) {
		if agentCtx.Profile.ID == "a2" {
			return schemas.AgentThought{}, errors.New("connection refused")
		}
		return schemas.AgentThought{AgentID: agentCtx.Profile.ID, PublicAction: "speaks"}, nil
	}}
	exec := NewExecutor(testSimConfig(), client, &stubGraph{}, "protagonist", zap.NewNop())

	thoughts, err := exec.Run(context.Background(), testCast(), "scene", 2)
	require.NoError(t, err)
	require.Len(t, thoughts, 3)

	assert.False(t, thoughts[0].Fallback())
	assert.False(t, thoughts[2].Fallback())

	fb := thoughts[1]
	assert.True(t, fb.Fallback())
	assert.Equal(t, schemas.FallbackAgentID, fb.AgentID)
	assert.Contains(t, fb.PublicAction, "Halvence")
	assert.Contains(t, fb.PublicAction, "observes silently")
	assert.Negative(t, fb.FavorDelta)

	// One initial call plus MaxRetries more.
	assert.Equal(t, 4, client.callCount("a2"))
	assert.Equal(t, 1, client.callCount("a1"))
}

func TestRunRecoversWithinRetryBudget(t *testing.T) {
	t.Parallel()

	client := &stubReasoner{}
	client.fn = func(_ context.Context, agentCtx schemas.AgentContext) (schemas.AgentThought, error) {
		if client.callCount(agentCtx.Profile.ID) < 3 {
			return schemas.AgentThought{}, schemas.NewCollabError(schemas.ErrCodeRateLimited, errors.New("429"))
		}
		return schemas.AgentThought{AgentID: agentCtx.Profile.ID, PublicAction: "recovered"}, nil
	}
	exec := NewExecutor(testSimConfig(), client, &stubGraph{}, "protagonist", zap.NewNop())

	thoughts, err := exec.Run(context.Background(), testCast()[:1], "scene", 3)
	require.NoError(t, err)
	require.Len(t, thoughts, 1)
	assert.False(t, thoughts[0].Fallback())
	assert.Equal(t, "recovered", thoughts[0].PublicAction)
	assert.Equal(t, 3, client.callCount("a1"))
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	client := &stubReasoner{fn: func(_ context.Context, _ schemas.AgentContext) (schemas.AgentThought, error) {
		cancel()
		return schemas.AgentThought{}, errors.New("boom")
	}}
	cfg := testSimConfig()
	cfg.BackoffBase = time.Minute
	exec := NewExecutor(cfg, client, &stubGraph{}, "protagonist", zap.NewNop())

	_, err := exec.Run(ctx, testCast()[:1], "scene", 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetryDelayPolicy(t *testing.T) {
	t.Parallel()

	cfg := config.SimulationConfig{
		BackoffBase:   500 * time.Millisecond,
		RateLimitBase: 2 * time.Second,
	}
	exec := NewExecutor(cfg, nil, &stubGraph{}, "protagonist", zap.NewNop())

	rateLimited := schemas.NewCollabError(schemas.ErrCodeRateLimited, errors.New("429"))
	generic := errors.New("connection reset")

	// Rate limits double per attempt; generic failures grow linearly.
	assert.Equal(t, 2*time.Second, exec.retryDelay(rateLimited, 0))
	assert.Equal(t, 4*time.Second, exec.retryDelay(rateLimited, 1))
	assert.Equal(t, 8*time.Second, exec.retryDelay(rateLimited, 2))
	assert.Equal(t, 500*time.Millisecond, exec.retryDelay(generic, 0))
	assert.Equal(t, 1*time.Second, exec.retryDelay(generic, 1))
	assert.Equal(t, 1500*time.Millisecond, exec.retryDelay(generic, 2))
}

func TestThreatScore(t *testing.T) {
	t.Parallel()

	base := schemas.AgentProfile{ID: "me", Favor: 40, Relationships: map[string]float64{}}

	tests := []struct {
		name     string
		observer schemas.AgentProfile
		peer     schemas.AgentProfile
		want     float64
	}{
		{
			name:     "neutral peer",
			observer: base,
			peer:     schemas.AgentProfile{ID: "p", Favor: 30},
			want:     0,
		},
		{
			name:     "slight favor lead",
			observer: base,
			peer:     schemas.AgentProfile{ID: "p", Favor: 50},
			want:     0.2,
		},
		{
			name:     "large favor lead",
			observer: base,
			peer:     schemas.AgentProfile{ID: "p", Favor: 60},
			want:     0.4,
		},
		{
			name: "hostile relationship",
			observer: schemas.AgentProfile{
				ID: "me", Favor: 40,
				Relationships: map[string]float64{"p": -0.6},
			},
			peer: schemas.AgentProfile{ID: "p", Favor: 30},
			want: 0.3,
		},
		{
			name: "allied discount floors at zero",
			observer: schemas.AgentProfile{
				ID: "me", Favor: 40,
				Relationships: map[string]float64{"p": 0.9},
			},
			peer: schemas.AgentProfile{ID: "p", Favor: 30},
			want: 0,
		},
		{
			name: "stacked threats cap at one",
			observer: schemas.AgentProfile{
				ID: "me", Favor: 40,
				Relationships: map[string]float64{"p": -0.6},
			},
			peer: schemas.AgentProfile{
				ID: "p", Favor: 90,
				Archetype: schemas.ArchetypeParasite,
				Traits:    schemas.TraitVector{Ambition: 0.9, Cunning: 0.9},
			},
			want: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tc.want, ThreatScore(tc.observer, tc.peer), 1e-9)
		})
	}
}

func TestBuildContextExcludesSelfAndFiltersEdges(t *testing.T) {
	t.Parallel()

	graph := &stubGraph{edges: []schemas.Edge{
		{Source: "a1", Target: "protagonist", Type: schemas.EdgeRelationship, Label: "distrusts"},
		{Source: "a1", Target: "a2", Type: schemas.EdgeRelationship, Label: "rivals"},
	}}
	exec := NewExecutor(testSimConfig(), nil, graph, "protagonist", zap.NewNop())

	cast := testCast()
	agentCtx := exec.buildContext(cast[0], cast, "throne room", 7)

	assert.Equal(t, "a1", agentCtx.Profile.ID)
	assert.Equal(t, "throne room", agentCtx.Scene)
	assert.Equal(t, 7, agentCtx.Turn)

	require.Len(t, agentCtx.Peers, 2)
	names := []string{agentCtx.Peers[0].Name, agentCtx.Peers[1].Name}
	assert.ElementsMatch(t, []string{"Halvence", "Ilka"}, names)

	// Only edges touching the protagonist cross the boundary.
	require.Len(t, agentCtx.Edges, 1)
	assert.Equal(t, "distrusts", agentCtx.Edges[0].Label)
}
