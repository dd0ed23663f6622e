package roster

import (
	"sort"

	"go.uber.org/zap"

	"github.com/duskmantle/courtmind/api/schemas"
)

// DefaultSelectionCount is how many agents act per turn unless configured
// otherwise.
const DefaultSelectionCount = 3

// Attention scoring weights. The base keeps every agent eligible; the
// bonuses make selection track the protagonist's state rather than a
// static rotation.
const (
	attentionBase       = 1.0
	favorBonusWeight    = 0.5
	emotionBonusWeight  = 0.3
	attentionJitterSpan = 0.25
)

// SelectActing scores every agent against the current ledger and returns
// copies of the top-n, highest score first. Jitter comes from the
// roster's seeded generator, so selection is reproducible for a given
// seed and call sequence.
func (r *Roster) SelectActing(ledger schemas.Ledger, n int) []schemas.AgentProfile {
	if n <= 0 {
		n = DefaultSelectionCount
	}

	r.mu.RLock()
	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(r.order))
	for _, id := range r.order {
		ranked = append(ranked, scored{id: id, score: r.attentionScore(r.agents[id], ledger)})
	}
	r.mu.RUnlock()

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if n > len(ranked) {
		n = len(ranked)
	}

	selected := make([]schemas.AgentProfile, 0, n)
	r.mu.RLock()
	for _, s := range ranked[:n] {
		selected = append(selected, copyProfile(r.agents[s.id]))
	}
	r.mu.RUnlock()

	if len(selected) > 0 {
		fields := make([]string, 0, len(selected))
		for _, a := range selected {
			fields = append(fields, a.Name)
		}
		r.log.Debug("Attention selection complete", zap.Strings("acting", fields))
	}
	return selected
}

// attentionScore implements the per-turn relevance heuristic: a base
// constant, archetype bonuses gated on ledger thresholds, a favor bonus,
// an emotional-agitation bonus, and bounded seeded jitter.
func (r *Roster) attentionScore(agent *schemas.AgentProfile, ledger schemas.Ledger) float64 {
	score := attentionBase

	// Archetype bonuses keyed to the protagonist's condition: predatory
	// archetypes surge toward distress, social ones toward compliance,
	// opportunists toward fading hope.
	if ledger.Distress > 60 {
		switch agent.Archetype {
		case schemas.ArchetypeParasite:
			score += 0.5
		case schemas.ArchetypeWarden:
			score += 0.2
		}
	}
	if ledger.Compliance > 70 {
		switch agent.Archetype {
		case schemas.ArchetypeCourtier:
			score += 0.3
		case schemas.ArchetypeZealot:
			score += 0.2
		}
	}
	if ledger.Hope < 30 {
		switch agent.Archetype {
		case schemas.ArchetypeSchemer:
			score += 0.3
		case schemas.ArchetypeSurvivor:
			score += 0.2
		}
	}

	score += (agent.Favor / 100) * favorBonusWeight

	agitation := (agent.Emotions.Paranoia + agent.Emotions.Desperation + agent.Emotions.Confidence) / 3
	score += agitation * emotionBonusWeight

	r.rngMu.Lock()
	score += r.rng.Float64() * attentionJitterSpan
	r.rngMu.Unlock()

	return score
}
