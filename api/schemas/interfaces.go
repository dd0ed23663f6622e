package schemas

import "context"

// ReasoningClient is the external collaborator that decides how one agent
// reacts to the current turn. Implementations must be safe for concurrent
// calls; the executor dispatches one call per selected agent in parallel.
type ReasoningClient interface {
	SimulateAgent(ctx context.Context, agentCtx AgentContext) (AgentThought, error)
}

// DirectorInput is everything the narrative direction collaborator sees
// when composing a turn.
type DirectorInput struct {
	PlayerInput string         `json:"player_input"`
	History     []string       `json:"history,omitempty"`
	Graph       GraphSnapshot  `json:"graph"`
	Thoughts    []AgentThought `json:"thoughts,omitempty"`
	Ledger      Ledger         `json:"ledger"`
}

// DirectorOutcome is the direction collaborator's structured response.
type DirectorOutcome struct {
	NarrativeText string         `json:"narrative_text"`
	VisualPrompt  string         `json:"visual_prompt"`
	Script        []DialogueLine `json:"script,omitempty"`
	Delta         GraphDelta     `json:"delta"`
	Choices       []string       `json:"choices,omitempty"`
	// LedgerDelta is added axis-wise to the current ledger, then clamped.
	LedgerDelta  Ledger         `json:"ledger_delta"`
	TensionDelta float64        `json:"tension_delta"`
	Phase        NarrativePhase `json:"phase,omitempty"`
	Location     string         `json:"location,omitempty"`
}

// DirectorClient is the external collaborator that folds resolved agent
// decisions into narrative text, a visual prompt, and state deltas.
type DirectorClient interface {
	Direct(ctx context.Context, input DirectorInput) (DirectorOutcome, error)
}

// MediaGenerator produces one artifact modality. The scheduler holds one
// generator per modality and dispatches up to its concurrency cap.
type MediaGenerator interface {
	Generate(ctx context.Context, req MediaRequest) (MediaResult, error)
}

// Snapshot aggregates everything needed to restore a session: the graph,
// the roster, the ledger, and turn metadata. It contains plain data only.
type Snapshot struct {
	Graph  GraphSnapshot  `json:"graph"`
	Roster []AgentProfile `json:"roster"`
	Ledger Ledger         `json:"ledger"`
	Turns  []Turn         `json:"turns,omitempty"`
}

// SnapshotStore persists and restores session snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
}
