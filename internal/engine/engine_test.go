package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duskmantle/courtmind/api/schemas"
	"github.com/duskmantle/courtmind/internal/chronicle"
	"github.com/duskmantle/courtmind/internal/config"
	"github.com/duskmantle/courtmind/internal/graph"
	"github.com/duskmantle/courtmind/internal/media"
	"github.com/duskmantle/courtmind/internal/roster"
	"github.com/duskmantle/courtmind/internal/simulation"
)

type stubReasoner struct {
	fn func(ctx context.Context, agentCtx schemas.AgentContext) (schemas.AgentThought, error)
}

func (s *stubReasoner) SimulateAgent(ctx context.Context, agentCtx schemas.AgentContext) (schemas.AgentThought, error) {
	if s.fn == nil {
		return schemas.AgentThought{
			AgentID:      agentCtx.Profile.ID,
			PublicAction: agentCtx.Profile.Name + " watches the throne",
		}, nil
	}
	return s.fn(ctx, agentCtx)
}

type stubDirector struct {
	fn func(ctx context.Context, input schemas.DirectorInput) (schemas.DirectorOutcome, error)
}

func (s *stubDirector) Direct(ctx context.Context, input schemas.DirectorInput) (schemas.DirectorOutcome, error) {
	if s.fn == nil {
		return schemas.DirectorOutcome{
			NarrativeText: "The hall falls silent.",
			VisualPrompt:  "a silent hall",
			Choices:       []string{"Speak", "Wait"},
		}, nil
	}
	return s.fn(ctx, input)
}

type noopGenerator struct{}

func (noopGenerator) Generate(context.Context, schemas.MediaRequest) (schemas.MediaResult, error) {
	return schemas.MediaResult{Artifact: schemas.MediaArtifact{MIMEType: "image/png"}}, nil
}

type fixture struct {
	engine    *Engine
	reasoner  *stubReasoner
	director  *stubDirector
	roster    *roster.Roster
	graph     *graph.Store
	turns     *chronicle.Registry
	scheduler *media.Scheduler
}

// newFixture wires a full engine against stub collaborators. The roster
// holds only the three canon agents so relationships are known, and the
// scheduler loop is left stopped so queued tasks stay observable.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.NewDefaultConfig()
	cfg.Session.ProceduralCast = 0
	cfg.Simulation.MaxRetries = 0
	cfg.Simulation.BackoffBase = time.Millisecond
	cfg.Simulation.RateLimitBase = time.Millisecond

	log := zap.NewNop()
	g := graph.NewStore(log)
	cast := roster.New(log, cfg.Session.Seed, cfg.Session.ProceduralCast)
	turns := chronicle.NewRegistry(log)
	reasoner := &stubReasoner{}
	director := &stubDirector{}

	gen := noopGenerator{}
	scheduler := media.NewScheduler(cfg.Media, turns, map[schemas.Modality]schemas.MediaGenerator{
		schemas.ModalityImage: gen,
		schemas.ModalityAudio: gen,
		schemas.ModalityVideo: gen,
	}, log)

	sim := simulation.NewExecutor(cfg.Simulation, reasoner, g, cfg.Session.ProtagonistNode, log)

	eng, err := New(Options{
		Config:    cfg,
		Graph:     g,
		Roster:    cast,
		Turns:     turns,
		Simulator: sim,
		Director:  director,
		Scheduler: scheduler,
		Logger:    log,
	})
	require.NoError(t, err)

	return &fixture{
		engine:    eng,
		reasoner:  reasoner,
		director:  director,
		roster:    cast,
		graph:     g,
		turns:     turns,
		scheduler: scheduler,
	}
}

func TestNewSeedsGraphWithCast(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	snap := f.graph.Snapshot()

	// Protagonist plus three canon agents.
	assert.Len(t, snap.Nodes, 4)
	assert.Len(t, snap.Edges, 3)

	edges := f.graph.EdgesTouching("protagonist")
	assert.Len(t, edges, 3)
}

func TestProcessPlayerActionRegistersTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.director.fn = func(_ context.Context, input schemas.DirectorInput) (schemas.DirectorOutcome, error) {
		assert.Equal(t, "I bow to the Seneschal.", input.PlayerInput)
		assert.Len(t, input.Thoughts, 3)
		return schemas.DirectorOutcome{
			NarrativeText: "Corvin inclines his head a fraction.",
			VisualPrompt:  "a seneschal's cold nod",
			Choices:       []string{"Press him", "Retreat"},
			LedgerDelta:   schemas.Ledger{Distress: 5, Hope: -10},
			TensionDelta:  0.1,
			Location:      "the audience chamber",
		}, nil
	}

	res, err := f.engine.ProcessPlayerAction(context.Background(), "I bow to the Seneschal.")
	require.NoError(t, err)

	assert.Equal(t, 0, res.Turn.Index)
	assert.Equal(t, "Corvin inclines his head a fraction.", res.Turn.Text)
	assert.Equal(t, []string{"Press him", "Retreat"}, res.Choices)
	assert.Len(t, res.Thoughts, 3)
	assert.Len(t, res.Turn.Metadata.ActiveAgents, 3)
	assert.Equal(t, "the audience chamber", res.Turn.Metadata.Location)

	// Ledger deltas applied on top of the starting vector.
	ledger := f.engine.Ledger()
	assert.InDelta(t, 15, ledger.Distress, 1e-9)
	assert.InDelta(t, 60, ledger.Hope, 1e-9)

	state := f.graph.State()
	assert.Equal(t, 1, state.TurnCount)
	assert.InDelta(t, 0.1, state.TensionLevel, 1e-9)
	assert.Equal(t, "the audience chamber", f.engine.Location())

	// One task per modality waits in the stopped scheduler.
	pending, inProgress, failed := f.scheduler.Counts()
	assert.Equal(t, 3, pending)
	assert.Zero(t, inProgress)
	assert.Zero(t, failed)
}

func TestProcessPlayerActionAppliesGraphDelta(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.director.fn = func(_ context.Context, _ schemas.DirectorInput) (schemas.DirectorOutcome, error) {
		return schemas.DirectorOutcome{
			NarrativeText: "A letter changes hands.",
			VisualPrompt:  "a sealed letter",
			Delta: schemas.GraphDelta{
				NodesAdded: []schemas.Node{{ID: "letter", Type: schemas.NodeConcept, Label: "The Letter"}},
				EdgesAdded: []schemas.Edge{{
					Source: "canon-corvin", Target: "letter",
					Type: schemas.EdgeKnowledge, Label: "holds", Weight: 1,
				}},
			},
			Phase: schemas.PhaseActTwo,
		}, nil
	}

	_, err := f.engine.ProcessPlayerAction(context.Background(), "I hand over the letter.")
	require.NoError(t, err)

	snap := f.graph.Snapshot()
	assert.Len(t, snap.Nodes, 5)
	assert.Equal(t, schemas.PhaseActTwo, snap.State.Phase)
}

func TestProcessPlayerActionClampsLedger(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.director.fn = func(_ context.Context, _ schemas.DirectorInput) (schemas.DirectorOutcome, error) {
		return schemas.DirectorOutcome{
			NarrativeText: "Everything collapses at once.",
			VisualPrompt:  "chaos",
			LedgerDelta:   schemas.Ledger{Distress: 500, Hope: -500},
		}, nil
	}

	_, err := f.engine.ProcessPlayerAction(context.Background(), "panic")
	require.NoError(t, err)

	ledger := f.engine.Ledger()
	assert.InDelta(t, 100, ledger.Distress, 1e-9)
	assert.InDelta(t, 0, ledger.Hope, 1e-9)
}

func TestProcessPlayerActionDirectorFailureAbortsTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.director.fn = func(_ context.Context, _ schemas.DirectorInput) (schemas.DirectorOutcome, error) {
		return schemas.DirectorOutcome{}, errors.New("director unreachable")
	}

	_, err := f.engine.ProcessPlayerAction(context.Background(), "speak")
	require.Error(t, err)
	assert.Equal(t, 0, f.turns.Len())
	assert.Equal(t, 0, f.graph.State().TurnCount)
}

func TestProcessPlayerActionRejectsEmptyNarrative(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.director.fn = func(_ context.Context, _ schemas.DirectorInput) (schemas.DirectorOutcome, error) {
		return schemas.DirectorOutcome{NarrativeText: ""}, nil
	}

	_, err := f.engine.ProcessPlayerAction(context.Background(), "speak")
	require.ErrorIs(t, err, chronicle.ErrEmptyText)
}

func TestFallbackThoughtsStillLandFavorPenalty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.reasoner.fn = func(_ context.Context, _ schemas.AgentContext) (schemas.AgentThought, error) {
		return schemas.AgentThought{}, errors.New("collaborator down")
	}

	before := map[string]float64{}
	for _, a := range f.roster.All() {
		before[a.ID] = a.Favor
	}

	res, err := f.engine.ProcessPlayerAction(context.Background(), "wait")
	require.NoError(t, err)
	for _, thought := range res.Thoughts {
		assert.True(t, thought.Fallback())
	}
	for _, a := range f.roster.All() {
		assert.Less(t, a.Favor, before[a.ID], a.ID)
	}
}

func TestSabotageThoughtMutatesRelationships(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.reasoner.fn = func(_ context.Context, agentCtx schemas.AgentContext) (schemas.AgentThought, error) {
		return schemas.AgentThought{
			AgentID:      agentCtx.Profile.ID,
			PublicAction: "whispers to a servant",
			Sabotage:     &schemas.SabotageAttempt{Target: "Ilka", Method: "rumor", Deniability: 0.8},
		}, nil
	}

	_, err := f.engine.ProcessPlayerAction(context.Background(), "watch")
	require.NoError(t, err)

	corvin, ok := f.roster.Get("canon-corvin")
	require.True(t, ok)
	ilka, ok := f.roster.Get("canon-ilka")
	require.True(t, ok)

	// Corvin started at +0.2 toward Ilka; the sabotage costs him 0.3 and
	// her trust in him 0.4.
	assert.InDelta(t, -0.1, corvin.Relationships["canon-ilka"], 1e-9)
	assert.InDelta(t, -0.2, ilka.Relationships["canon-corvin"], 1e-9)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.engine.ProcessPlayerAction(context.Background(), "first move")
	require.NoError(t, err)

	snap := f.engine.Snapshot()
	require.Len(t, snap.Turns, 1)
	require.Len(t, snap.Roster, 3)

	other := newFixture(t)
	other.engine.Restore(snap)

	assert.Equal(t, f.engine.Ledger(), other.engine.Ledger())
	assert.Equal(t, 1, other.turns.Len())
	assert.Equal(t, f.graph.State(), other.graph.State())

	// Play continues from the restored index.
	res, err := other.engine.ProcessPlayerAction(context.Background(), "second move")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Turn.Index)
}

func TestRestoreRecoversInFlightMediaTracks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res, err := f.engine.ProcessPlayerAction(context.Background(), "first move")
	require.NoError(t, err)

	// The scheduler loop is stopped, so all three tracks are still
	// pending when the snapshot is taken.
	snap := f.engine.Snapshot()

	other := newFixture(t)
	other.engine.Restore(snap)

	turn, err := other.engine.Turn(res.Turn.ID)
	require.NoError(t, err)
	for _, m := range schemas.Modalities {
		assert.Equal(t, schemas.MediaIdle, turn.Media.Track(m).Status)
	}

	// The fresh scheduler accepts a regenerate for the recovered track.
	require.NoError(t, other.engine.RegenerateMedia(res.Turn.ID, schemas.ModalityImage))
	turn, err = other.engine.Turn(res.Turn.ID)
	require.NoError(t, err)
	assert.Equal(t, schemas.MediaPending, turn.Media.Image.Status)
}

func TestPruneDropsSchedulerTasksForRemovedTurns(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.engine.cfg.Session.TurnKeepCount = 1

	_, err := f.engine.ProcessPlayerAction(context.Background(), "first move")
	require.NoError(t, err)
	pending, _, _ := f.scheduler.Counts()
	assert.Equal(t, 3, pending)

	// The second turn evicts the first, and with it the first turn's
	// queued media tasks. Without the drop the count would read six.
	_, err = f.engine.ProcessPlayerAction(context.Background(), "second move")
	require.NoError(t, err)
	pending, _, _ = f.scheduler.Counts()
	assert.Equal(t, 3, pending)
	assert.Equal(t, 1, f.turns.Len())
}
