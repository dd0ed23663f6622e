// Package engine orchestrates one narrative turn end to end: attention
// selection, concurrent agent simulation, relationship mutation, narrative
// direction, graph delta application, turn registration, and media
// enqueueing. Turn processing is serialized; only the external
// collaborator calls overlap.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/duskmantle/courtmind/api/schemas"
	"github.com/duskmantle/courtmind/internal/chronicle"
	"github.com/duskmantle/courtmind/internal/config"
	"github.com/duskmantle/courtmind/internal/graph"
	"github.com/duskmantle/courtmind/internal/media"
	"github.com/duskmantle/courtmind/internal/roster"
	"github.com/duskmantle/courtmind/internal/simulation"
)

// historyWindow bounds how many past narrative beats travel to the
// director collaborator.
const historyWindow = 12

// startingLedger is the protagonist's state at the top of a fresh session.
var startingLedger = schemas.Ledger{
	Distress:   10,
	Compliance: 40,
	Trauma:     0,
	Hope:       70,
}

// Options carries the engine's collaborators. Config, Graph, Roster,
// Turns, Simulator, Director, and Scheduler are required; Snapshots may
// be nil when persistence is disabled.
type Options struct {
	Config    *config.Config
	Graph     *graph.Store
	Roster    *roster.Roster
	Turns     *chronicle.Registry
	Simulator *simulation.Executor
	Director  schemas.DirectorClient
	Scheduler *media.Scheduler
	Snapshots schemas.SnapshotStore
	Logger    *zap.Logger
}

// TurnResult is what a processed player action hands back to the caller.
type TurnResult struct {
	Turn     schemas.Turn
	Choices  []string
	Thoughts []schemas.AgentThought
}

// Engine drives the turn loop.
type Engine struct {
	cfg       *config.Config
	graph     *graph.Store
	roster    *roster.Roster
	turns     *chronicle.Registry
	simulator *simulation.Executor
	director  schemas.DirectorClient
	scheduler *media.Scheduler
	snapshots schemas.SnapshotStore
	log       *zap.Logger

	mu         sync.Mutex
	ledger     schemas.Ledger
	location   string
	history    []string
	lastTurnID string
}

func New(opts Options) (*Engine, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("engine: config is required")
	case opts.Graph == nil:
		return nil, errors.New("engine: graph store is required")
	case opts.Roster == nil:
		return nil, errors.New("engine: roster is required")
	case opts.Turns == nil:
		return nil, errors.New("engine: turn registry is required")
	case opts.Simulator == nil:
		return nil, errors.New("engine: simulator is required")
	case opts.Director == nil:
		return nil, errors.New("engine: director client is required")
	case opts.Scheduler == nil:
		return nil, errors.New("engine: media scheduler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:       opts.Config,
		graph:     opts.Graph,
		roster:    opts.Roster,
		turns:     opts.Turns,
		simulator: opts.Simulator,
		director:  opts.Director,
		scheduler: opts.Scheduler,
		snapshots: opts.Snapshots,
		log:       logger.Named("engine"),
		ledger:    startingLedger,
		location:  "the great hall",
	}
	e.seedGraph()
	return e, nil
}

// seedGraph plants the protagonist and the cast as entities so agent
// contexts have edges to reason over from the first turn. A restored or
// pre-populated graph is left alone.
func (e *Engine) seedGraph() {
	if len(e.graph.Snapshot().Nodes) > 0 {
		return
	}

	protagonist := e.cfg.Session.ProtagonistNode
	delta := schemas.GraphDelta{
		NodesAdded: []schemas.Node{{
			ID:    protagonist,
			Type:  schemas.NodeEntity,
			Label: "The Protagonist",
		}},
	}
	for _, agent := range e.roster.All() {
		delta.NodesAdded = append(delta.NodesAdded, schemas.Node{
			ID:    agent.ID,
			Type:  schemas.NodeEntity,
			Label: agent.Name,
			Attributes: map[string]any{
				"archetype": string(agent.Archetype),
			},
		})
		delta.EdgesAdded = append(delta.EdgesAdded, schemas.Edge{
			Source: agent.ID,
			Target: protagonist,
			Type:   schemas.EdgeRelationship,
			Label:  "attends",
			Weight: 0.5,
		})
	}
	e.graph.ApplyDelta(delta)
}

// ProcessPlayerAction runs one full turn for the given player input.
func (e *Engine) ProcessPlayerAction(ctx context.Context, input string) (TurnResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	turnIndex := e.graph.State().TurnCount
	selected := e.roster.SelectActing(e.ledger, e.cfg.Simulation.SelectionCount)
	e.log.Info("turn started",
		zap.Int("turn", turnIndex),
		zap.Int("selected", len(selected)),
		zap.String("location", e.location))

	thoughts, err := e.simulator.Run(ctx, selected, e.location, turnIndex)
	if err != nil {
		return TurnResult{}, fmt.Errorf("simulate agents: %w", err)
	}
	e.applyThoughts(selected, thoughts)

	outcome, err := e.director.Direct(ctx, schemas.DirectorInput{
		PlayerInput: input,
		History:     e.history,
		Graph:       e.graph.Snapshot(),
		Thoughts:    thoughts,
		Ledger:      e.ledger,
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("direct turn: %w", err)
	}

	e.graph.ApplyDelta(outcome.Delta)
	e.graph.BumpTension(outcome.TensionDelta)
	if outcome.Phase != "" {
		e.graph.AdvancePhase(outcome.Phase)
	}
	e.graph.IncrementTurn()
	e.ledger = applyLedgerDelta(e.ledger, outcome.LedgerDelta)
	if outcome.Location != "" {
		e.location = outcome.Location
	}

	activeIDs := make([]string, 0, len(selected))
	for _, agent := range selected {
		activeIDs = append(activeIDs, agent.ID)
	}
	turn, err := e.turns.Register(outcome.NarrativeText, outcome.Script, outcome.VisualPrompt, schemas.TurnMetadata{
		Ledger:       e.ledger,
		ActiveAgents: activeIDs,
		Location:     e.location,
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("register turn: %w", err)
	}
	if removed := e.turns.PruneOldest(e.cfg.Session.TurnKeepCount); len(removed) > 0 {
		e.scheduler.DropTurns(removed...)
	}

	e.enqueueMedia(turn)

	e.history = append(e.history, outcome.NarrativeText)
	if len(e.history) > historyWindow {
		e.history = e.history[len(e.history)-historyWindow:]
	}
	e.lastTurnID = turn.ID

	e.log.Info("turn completed",
		zap.Int("turn", turnIndex),
		zap.String("turn_id", turn.ID),
		zap.Float64("distress", e.ledger.Distress))
	return TurnResult{Turn: turn, Choices: outcome.Choices, Thoughts: thoughts}, nil
}

// applyThoughts folds each agent's decision back into the roster. A
// fallback thought still lands its favor penalty; only genuine thoughts
// move relationships.
func (e *Engine) applyThoughts(selected []schemas.AgentProfile, thoughts []schemas.AgentThought) {
	for i, thought := range thoughts {
		agentID := selected[i].ID
		e.roster.ApplyThought(agentID, thought)
		if thought.Fallback() {
			continue
		}
		if thought.Sabotage != nil {
			e.roster.ApplySabotage(agentID, thought.Sabotage.Target)
		}
		if thought.Alliance != nil {
			e.roster.ApplyAlliance(agentID, thought.Alliance.Target)
		}
	}
}

// enqueueMedia queues one task per modality for the new turn. A missing
// generator or occupied slot is logged, never fatal; play must not stall
// on artifacts.
func (e *Engine) enqueueMedia(turn schemas.Turn) {
	for _, m := range schemas.Modalities {
		err := e.scheduler.Enqueue(schemas.MediaRequest{
			TurnID:      turn.ID,
			Modality:    m,
			Prompt:      turn.VisualPrompt,
			Script:      turn.Script,
			PriorTurnID: e.lastTurnID,
		}, e.ledger)
		if err != nil {
			e.log.Warn("media enqueue skipped",
				zap.String("turn_id", turn.ID),
				zap.String("modality", string(m)),
				zap.Error(err))
		}
	}
}

// RegenerateMedia rebuilds one artifact for an existing turn.
func (e *Engine) RegenerateMedia(turnID string, m schemas.Modality) error {
	turn, err := e.turns.Turn(turnID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	ledger := e.ledger
	e.mu.Unlock()

	return e.scheduler.Regenerate(schemas.MediaRequest{
		TurnID:   turn.ID,
		Modality: m,
		Prompt:   turn.VisualPrompt,
		Script:   turn.Script,
	}, ledger)
}

// Ledger returns the protagonist's current state vector.
func (e *Engine) Ledger() schemas.Ledger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger
}

// Location returns the current scene.
func (e *Engine) Location() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.location
}

// RecentTurns returns copies of the latest n turns.
func (e *Engine) RecentTurns(n int) []schemas.Turn {
	return e.turns.Latest(n)
}

// Turn returns a copy of one registered turn.
func (e *Engine) Turn(turnID string) (schemas.Turn, error) {
	return e.turns.Turn(turnID)
}

// FailedMedia lists media tasks that exhausted their retries.
func (e *Engine) FailedMedia() []schemas.MediaTask {
	return e.scheduler.FailedTasks()
}

// Snapshot captures the full session as plain data.
func (e *Engine) Snapshot() schemas.Snapshot {
	e.mu.Lock()
	ledger := e.ledger
	e.mu.Unlock()

	return schemas.Snapshot{
		Graph:  e.graph.Snapshot(),
		Roster: e.roster.All(),
		Ledger: ledger,
		Turns:  e.turns.Snapshot(),
	}
}

// SaveSession persists the current snapshot through the configured store.
func (e *Engine) SaveSession(ctx context.Context) error {
	if e.snapshots == nil {
		return errors.New("engine: no snapshot store configured")
	}
	return e.snapshots.Save(ctx, e.Snapshot())
}

// LoadSession restores engine state from the configured store.
func (e *Engine) LoadSession(ctx context.Context) error {
	if e.snapshots == nil {
		return errors.New("engine: no snapshot store configured")
	}
	snap, err := e.snapshots.Load(ctx)
	if err != nil {
		return err
	}
	e.Restore(snap)
	return nil
}

// Restore replaces all engine state with the given snapshot.
func (e *Engine) Restore(snap schemas.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.graph.Restore(snap.Graph)
	e.roster.Restore(snap.Roster)
	e.turns.Restore(snap.Turns)
	e.ledger = snap.Ledger

	e.history = e.history[:0]
	e.lastTurnID = ""
	for _, turn := range e.turns.Latest(historyWindow) {
		e.history = append(e.history, turn.Text)
		e.lastTurnID = turn.ID
		if turn.Metadata.Location != "" {
			e.location = turn.Metadata.Location
		}
	}
}

func applyLedgerDelta(cur, delta schemas.Ledger) schemas.Ledger {
	return schemas.Ledger{
		Distress:   clampAxis(cur.Distress + delta.Distress),
		Compliance: clampAxis(cur.Compliance + delta.Compliance),
		Trauma:     clampAxis(cur.Trauma + delta.Trauma),
		Hope:       clampAxis(cur.Hope + delta.Hope),
	}
}

func clampAxis(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
