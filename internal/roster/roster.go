// Package roster owns the session's cast of autonomous agents: their
// profiles, favor standings, relationship matrix, and the per-turn
// attention selection that decides who gets to act.
package roster

import (
	"math/rand"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/duskmantle/courtmind/api/schemas"
)

// Relationship adjustments applied when sabotage or alliance signals
// resolve to a roster member.
const (
	sabotageActorToTarget = -0.3
	sabotageTargetToActor = -0.4
	allianceActorToTarget = 0.2
	allianceTargetToActor = 0.1
)

// Roster holds every agent profile for a session. Agents are created once
// at initialization and never deleted while the session runs.
type Roster struct {
	mu     sync.RWMutex
	agents map[string]*schemas.AgentProfile
	order  []string // creation order, for deterministic iteration

	rngMu sync.Mutex
	rng   *rand.Rand

	log *zap.Logger
}

// New builds a roster from a seed: the fixed canon agents plus
// proceduralCount generated ones. The same seed always yields the same
// cast, including the per-turn attention jitter.
func New(logger *zap.Logger, seed int64, proceduralCount int) *Roster {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Roster{
		agents: make(map[string]*schemas.AgentProfile),
		rng:    rand.New(rand.NewSource(seed)),
		log:    logger.Named("roster"),
	}

	for _, canon := range canonAgents() {
		r.insert(canon)
	}
	for i := 0; i < proceduralCount; i++ {
		r.insert(r.generateAgent(i))
	}

	r.log.Info("Roster initialized",
		zap.Int64("seed", seed),
		zap.Int("agents", len(r.order)))
	return r
}

// insert assumes the caller is still single-threaded (construction or Restore).
func (r *Roster) insert(profile schemas.AgentProfile) {
	clampProfile(&profile)
	r.agents[profile.ID] = &profile
	r.order = append(r.order, profile.ID)
}

// Get returns a copy of one profile.
func (r *Roster) Get(id string) (schemas.AgentProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok {
		return schemas.AgentProfile{}, false
	}
	return copyProfile(agent), true
}

// All returns copies of every profile in creation order.
func (r *Roster) All() []schemas.AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schemas.AgentProfile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyProfile(r.agents[id]))
	}
	return out
}

// ApplyThought folds a simulation outcome back into the acting agent's
// profile: favor delta, emotional state, last public action, and any
// uncovered secrets (bounded to the most recent entries). Fallback
// thoughts carry the sentinel agent id and still apply to agentID.
func (r *Roster) ApplyThought(agentID string, thought schemas.AgentThought) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		r.log.Warn("Thought for unknown agent dropped", zap.String("agent_id", agentID))
		return
	}

	agent.Favor = clampFavor(agent.Favor + thought.FavorDelta)
	agent.Emotions = clampEmotions(thought.Emotions)
	if thought.PublicAction != "" {
		agent.LastAction = thought.PublicAction
	}
	for _, secret := range thought.SecretsUncovered {
		agent.Knowledge = append(agent.Knowledge, secret)
	}
	if excess := len(agent.Knowledge) - schemas.MaxKnowledgeEntries; excess > 0 {
		agent.Knowledge = agent.Knowledge[excess:]
	}
}

// ResolveName maps a display name to an agent id, case-insensitively.
// Exact matches win; otherwise a unique prefix match is accepted. An
// unresolvable name returns ok=false and is treated as a no-op by callers.
func (r *Roster) ResolveName(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveNameLocked(name)
}

func (r *Roster) resolveNameLocked(name string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return "", false
	}
	for _, id := range r.order {
		if strings.ToLower(r.agents[id].Name) == needle {
			return id, true
		}
	}
	var prefixMatch string
	for _, id := range r.order {
		if strings.HasPrefix(strings.ToLower(r.agents[id].Name), needle) {
			if prefixMatch != "" {
				return "", false // ambiguous
			}
			prefixMatch = id
		}
	}
	return prefixMatch, prefixMatch != ""
}

// ApplySabotage records a resolved sabotage attempt: the actor's regard
// for the target drops, and the target's regard for the actor drops
// harder. Unresolvable target names mutate nothing.
func (r *Roster) ApplySabotage(actorID, targetName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	targetID, ok := r.resolveNameLocked(targetName)
	if !ok || targetID == actorID {
		r.log.Debug("Sabotage target unresolved, ignoring",
			zap.String("actor", actorID), zap.String("target", targetName))
		return
	}
	r.adjustLocked(actorID, targetID, sabotageActorToTarget)
	r.adjustLocked(targetID, actorID, sabotageTargetToActor)
}

// ApplyAlliance records a resolved alliance signal: regard rises on both
// sides, more for the initiator.
func (r *Roster) ApplyAlliance(actorID, targetName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	targetID, ok := r.resolveNameLocked(targetName)
	if !ok || targetID == actorID {
		r.log.Debug("Alliance target unresolved, ignoring",
			zap.String("actor", actorID), zap.String("target", targetName))
		return
	}
	r.adjustLocked(actorID, targetID, allianceActorToTarget)
	r.adjustLocked(targetID, actorID, allianceTargetToActor)
}

func (r *Roster) adjustLocked(fromID, toID string, delta float64) {
	agent, ok := r.agents[fromID]
	if !ok {
		return
	}
	if agent.Relationships == nil {
		agent.Relationships = make(map[string]float64)
	}
	agent.Relationships[toID] = clampRelationship(agent.Relationships[toID] + delta)
}

// Restore replaces the roster contents from a snapshot.
func (r *Roster) Restore(profiles []schemas.AgentProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.agents = make(map[string]*schemas.AgentProfile, len(profiles))
	r.order = r.order[:0]
	for _, p := range profiles {
		if p.ID == "" {
			continue
		}
		r.insert(copyProfile(&p))
	}
}

func copyProfile(p *schemas.AgentProfile) schemas.AgentProfile {
	out := *p
	if p.Relationships != nil {
		out.Relationships = make(map[string]float64, len(p.Relationships))
		for k, v := range p.Relationships {
			out.Relationships[k] = v
		}
	}
	out.Knowledge = append([]string(nil), p.Knowledge...)
	return out
}

func clampProfile(p *schemas.AgentProfile) {
	p.Favor = clampFavor(p.Favor)
	p.Traits.Ambition = clampUnit(p.Traits.Ambition)
	p.Traits.Cunning = clampUnit(p.Traits.Cunning)
	p.Traits.Loyalty = clampUnit(p.Traits.Loyalty)
	p.Traits.Cruelty = clampUnit(p.Traits.Cruelty)
	p.Traits.Composure = clampUnit(p.Traits.Composure)
	p.Emotions = clampEmotions(p.Emotions)
	for k, v := range p.Relationships {
		p.Relationships[k] = clampRelationship(v)
	}
	if len(p.Knowledge) > schemas.MaxKnowledgeEntries {
		p.Knowledge = p.Knowledge[len(p.Knowledge)-schemas.MaxKnowledgeEntries:]
	}
}

func clampEmotions(e schemas.EmotionalState) schemas.EmotionalState {
	return schemas.EmotionalState{
		Paranoia:    clampUnit(e.Paranoia),
		Desperation: clampUnit(e.Desperation),
		Confidence:  clampUnit(e.Confidence),
	}
}

func clampFavor(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampRelationship(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
