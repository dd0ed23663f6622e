package schemas

import "time"

// MediaRequest carries the generation inputs for one (turn, modality)
// artifact. PriorTurnID references the previous turn's artifact for visual
// continuity; collaborators may ignore it.
type MediaRequest struct {
	TurnID      string         `json:"turn_id"`
	Modality    Modality       `json:"modality"`
	Prompt      string         `json:"prompt"`
	Script      []DialogueLine `json:"script,omitempty"`
	PriorTurnID string         `json:"prior_turn_id,omitempty"`
}

// MediaResult is a generation collaborator's successful response.
type MediaResult struct {
	Artifact MediaArtifact `json:"artifact"`
}

// MediaTask is one unit of artifact generation work. For a given
// (TurnID, Modality) pair, a task lives in exactly one of the scheduler's
// pending, in-progress, or failed queues at any time.
type MediaTask struct {
	ID         string       `json:"id"`
	TurnID     string       `json:"turn_id"`
	Modality   Modality     `json:"modality"`
	Request    MediaRequest `json:"request"`
	Priority   int          `json:"priority"` // lower = more urgent
	Retries    int          `json:"retries"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
	LastError  string       `json:"last_error,omitempty"`
}
