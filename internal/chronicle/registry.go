// Package chronicle keeps the append-only record of narrative turns.
// Turn text, script, and metadata freeze at registration; only the media
// tracks move through their lifecycle afterward.
package chronicle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duskmantle/courtmind/api/schemas"
)

var (
	// ErrEmptyText rejects registration of a turn with no narrative text.
	ErrEmptyText = errors.New("chronicle: turn text must not be empty")
	// ErrUnknownTurn reports a lookup for a turn id the registry does not hold.
	ErrUnknownTurn = errors.New("chronicle: unknown turn")
	// ErrUnknownModality reports a media operation on an unrecognized modality.
	ErrUnknownModality = errors.New("chronicle: unknown modality")
)

// InvalidTransitionError reports a media status change outside the
// allowed lifecycle.
type InvalidTransitionError struct {
	TurnID   string
	Modality schemas.Modality
	From, To schemas.MediaStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("chronicle: invalid media transition %s -> %s for turn %s %s", e.From, e.To, e.TurnID, e.Modality)
}

// allowedTransitions encodes the media lifecycle. error -> idle and
// ready -> idle exist only for the explicit regenerate path.
var allowedTransitions = map[schemas.MediaStatus][]schemas.MediaStatus{
	schemas.MediaIdle:       {schemas.MediaPending},
	schemas.MediaPending:    {schemas.MediaInProgress},
	schemas.MediaInProgress: {schemas.MediaReady, schemas.MediaError, schemas.MediaPending},
	schemas.MediaError:      {schemas.MediaIdle},
	schemas.MediaReady:      {schemas.MediaIdle},
}

func transitionAllowed(from, to schemas.MediaStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Registry is the in-memory turn store. All methods are safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	turns     []*schemas.Turn
	byID      map[string]*schemas.Turn
	nextIndex int
	log       *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byID: make(map[string]*schemas.Turn),
		log:  logger.Named("chronicle"),
	}
}

// Register appends a new turn. Indices are assigned contiguously in
// registration order and every media track starts idle. The returned
// value is a copy.
func (r *Registry) Register(text string, script []schemas.DialogueLine, visualPrompt string, meta schemas.TurnMetadata) (schemas.Turn, error) {
	if text == "" {
		return schemas.Turn{}, ErrEmptyText
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	turn := &schemas.Turn{
		ID:           uuid.New().String(),
		Index:        r.nextIndex,
		Text:         text,
		Script:       copyScript(script),
		VisualPrompt: visualPrompt,
		Metadata:     copyMetadata(meta),
		CreatedAt:    time.Now().UTC(),
	}
	for _, m := range schemas.Modalities {
		turn.Media.Track(m).Status = schemas.MediaIdle
	}

	r.nextIndex++
	r.turns = append(r.turns, turn)
	r.byID[turn.ID] = turn

	r.log.Debug("turn registered",
		zap.String("turn_id", turn.ID),
		zap.Int("index", turn.Index))
	return copyTurn(turn), nil
}

// SetMediaStatus moves one media track through its lifecycle, validating
// the transition. Artifact and error fields are untouched; use MarkReady,
// MarkError, or ResetMedia for transitions that carry data.
func (r *Registry) SetMediaStatus(turnID string, m schemas.Modality, to schemas.MediaStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	track, err := r.trackLocked(turnID, m)
	if err != nil {
		return err
	}
	if !transitionAllowed(track.Status, to) {
		return &InvalidTransitionError{TurnID: turnID, Modality: m, From: track.Status, To: to}
	}
	track.Status = to
	return nil
}

// MarkReady attaches a finished artifact and completes the track.
func (r *Registry) MarkReady(turnID string, m schemas.Modality, artifact schemas.MediaArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	track, err := r.trackLocked(turnID, m)
	if err != nil {
		return err
	}
	if !transitionAllowed(track.Status, schemas.MediaReady) {
		return &InvalidTransitionError{TurnID: turnID, Modality: m, From: track.Status, To: schemas.MediaReady}
	}
	a := copyArtifact(&artifact)
	track.Status = schemas.MediaReady
	track.Artifact = a
	track.Err = ""
	return nil
}

// MarkError records a terminal generation failure on the track.
func (r *Registry) MarkError(turnID string, m schemas.Modality, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	track, err := r.trackLocked(turnID, m)
	if err != nil {
		return err
	}
	if !transitionAllowed(track.Status, schemas.MediaError) {
		return &InvalidTransitionError{TurnID: turnID, Modality: m, From: track.Status, To: schemas.MediaError}
	}
	track.Status = schemas.MediaError
	track.Artifact = nil
	track.Err = msg
	return nil
}

// ResetMedia returns an errored or completed track to idle so it can be
// regenerated, discarding any artifact and error message. An already
// idle track is left as is.
func (r *Registry) ResetMedia(turnID string, m schemas.Modality) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	track, err := r.trackLocked(turnID, m)
	if err != nil {
		return err
	}
	if track.Status == schemas.MediaIdle {
		return nil
	}
	if !transitionAllowed(track.Status, schemas.MediaIdle) {
		return &InvalidTransitionError{TurnID: turnID, Modality: m, From: track.Status, To: schemas.MediaIdle}
	}
	track.Status = schemas.MediaIdle
	track.Artifact = nil
	track.Err = ""
	return nil
}

// Turn returns a copy of the turn with the given id.
func (r *Registry) Turn(turnID string) (schemas.Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	turn, ok := r.byID[turnID]
	if !ok {
		return schemas.Turn{}, fmt.Errorf("%w: %s", ErrUnknownTurn, turnID)
	}
	return copyTurn(turn), nil
}

// Latest returns copies of the most recent n turns in chronological
// order. n larger than the registry returns everything.
func (r *Registry) Latest(n int) []schemas.Turn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > len(r.turns) {
		n = len(r.turns)
	}
	if n <= 0 {
		return nil
	}
	out := make([]schemas.Turn, 0, n)
	for _, turn := range r.turns[len(r.turns)-n:] {
		out = append(out, copyTurn(turn))
	}
	return out
}

// Len reports how many turns the registry currently holds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.turns)
}

// PruneOldest drops the oldest turns until at most keep remain. Retained
// turns keep their original indices. It returns the ids removed.
func (r *Registry) PruneOldest(keep int) []string {
	if keep < 0 {
		keep = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	excess := len(r.turns) - keep
	if excess <= 0 {
		return nil
	}
	removed := make([]string, 0, excess)
	for _, turn := range r.turns[:excess] {
		delete(r.byID, turn.ID)
		removed = append(removed, turn.ID)
	}
	r.turns = append([]*schemas.Turn(nil), r.turns[excess:]...)

	r.log.Info("pruned old turns", zap.Int("removed", len(removed)), zap.Int("kept", len(r.turns)))
	return removed
}

// Snapshot returns copies of every held turn in chronological order.
func (r *Registry) Snapshot() []schemas.Turn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schemas.Turn, 0, len(r.turns))
	for _, turn := range r.turns {
		out = append(out, copyTurn(turn))
	}
	return out
}

// Restore replaces the registry contents from a snapshot. Index
// assignment resumes after the highest restored index. Tracks captured
// mid-generation (pending or inProgress) are normalized back to idle:
// a fresh scheduler holds no task for them, so the snapshotted status
// would otherwise be unreachable by any transition.
func (r *Registry) Restore(turns []schemas.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.turns = make([]*schemas.Turn, 0, len(turns))
	r.byID = make(map[string]*schemas.Turn, len(turns))
	r.nextIndex = 0
	for i := range turns {
		t := copyTurn(&turns[i])
		p := &t
		for _, m := range schemas.Modalities {
			track := p.Media.Track(m)
			if track.Status == schemas.MediaPending || track.Status == schemas.MediaInProgress {
				track.Status = schemas.MediaIdle
				track.Artifact = nil
				track.Err = ""
			}
		}
		r.turns = append(r.turns, p)
		r.byID[p.ID] = p
		if p.Index >= r.nextIndex {
			r.nextIndex = p.Index + 1
		}
	}
}

func (r *Registry) trackLocked(turnID string, m schemas.Modality) (*schemas.MediaTrack, error) {
	turn, ok := r.byID[turnID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTurn, turnID)
	}
	track := turn.Media.Track(m)
	if track == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModality, m)
	}
	return track, nil
}

func copyTurn(t *schemas.Turn) schemas.Turn {
	out := *t
	out.Script = copyScript(t.Script)
	out.Metadata = copyMetadata(t.Metadata)
	for _, m := range schemas.Modalities {
		out.Media.Track(m).Artifact = copyArtifact(t.Media.Track(m).Artifact)
	}
	return out
}

func copyScript(script []schemas.DialogueLine) []schemas.DialogueLine {
	if script == nil {
		return nil
	}
	return append([]schemas.DialogueLine(nil), script...)
}

func copyMetadata(meta schemas.TurnMetadata) schemas.TurnMetadata {
	out := meta
	if meta.ActiveAgents != nil {
		out.ActiveAgents = append([]string(nil), meta.ActiveAgents...)
	}
	if meta.Tags != nil {
		out.Tags = append([]string(nil), meta.Tags...)
	}
	return out
}

func copyArtifact(a *schemas.MediaArtifact) *schemas.MediaArtifact {
	if a == nil {
		return nil
	}
	out := *a
	if a.Payload != nil {
		out.Payload = append([]byte(nil), a.Payload...)
	}
	if a.Alignment != nil {
		out.Alignment = append([]schemas.WordTiming(nil), a.Alignment...)
	}
	return &out
}
