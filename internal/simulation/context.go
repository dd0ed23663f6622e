package simulation

import (
	"github.com/duskmantle/courtmind/api/schemas"
)

// Favor/relationship thresholds for the peer threat heuristic.
const (
	threatFavorGapBonus  = 0.4 // peer leads by more than the gap
	threatFavorLeadBonus = 0.2 // peer merely leads
	threatFavorGap       = 15.0
	threatHostileBonus   = 0.3 // relationship below -0.5
	threatColdBonus      = 0.1 // relationship below -0.1
	threatAlliedDiscount = 0.2 // relationship above +0.5
	threatTraitBonus     = 0.1 // ambition or cunning above 0.8
	threatParasiteBonus  = 0.2
	threatTraitThreshold = 0.8
)

// ThreatScore estimates how dangerous peer looks from observer's seat,
// in [0,1]. It combines favor standing, the observer's disposition toward
// the peer, and the peer's visible temperament.
func ThreatScore(observer, peer schemas.AgentProfile) float64 {
	score := 0.0

	switch {
	case peer.Favor > observer.Favor+threatFavorGap:
		score += threatFavorGapBonus
	case peer.Favor > observer.Favor:
		score += threatFavorLeadBonus
	}

	rel := observer.Relationships[peer.ID]
	switch {
	case rel < -0.5:
		score += threatHostileBonus
	case rel < -0.1:
		score += threatColdBonus
	case rel > 0.5:
		score -= threatAlliedDiscount
	}

	if peer.Traits.Ambition > threatTraitThreshold {
		score += threatTraitBonus
	}
	if peer.Traits.Cunning > threatTraitThreshold {
		score += threatTraitBonus
	}
	if peer.Archetype == schemas.ArchetypeParasite {
		score += threatParasiteBonus
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// buildContext assembles the isolated reasoning context for one selected
// agent: summaries of its co-selected peers and the graph edges tying it
// to the protagonist. Everything is copied; the collaborator never sees
// live state.
func (e *Executor) buildContext(agent schemas.AgentProfile, selected []schemas.AgentProfile, scene string, turn int) schemas.AgentContext {
	peers := make([]schemas.PeerSummary, 0, len(selected)-1)
	for _, peer := range selected {
		if peer.ID == agent.ID {
			continue
		}
		peers = append(peers, schemas.PeerSummary{
			Name:       peer.Name,
			LastAction: peer.LastAction,
			Favor:      peer.Favor,
			Threat:     ThreatScore(agent, peer),
		})
	}

	var edges []schemas.Edge
	for _, edge := range e.graph.EdgesTouching(agent.ID) {
		if edge.Source == e.protagonistID || edge.Target == e.protagonistID {
			edges = append(edges, edge)
		}
	}

	return schemas.AgentContext{
		Profile: agent,
		Peers:   peers,
		Edges:   edges,
		Scene:   scene,
		Turn:    turn,
	}
}
