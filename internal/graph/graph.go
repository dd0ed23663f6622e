// Package graph holds the shared narrative knowledge graph: typed nodes
// and weighted edges plus the global story counters (turn count, tension,
// narrative phase). It is the single source of truth the director and the
// agents reason over.
package graph

import (
	"sync"

	"go.uber.org/zap"

	"github.com/duskmantle/courtmind/api/schemas"
)

// Store is an in-memory knowledge graph guarded by a RWMutex. Writers go
// through ApplyDelta and the state mutators; readers get independent
// copies so they can never observe a partial write.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]schemas.Node
	edges map[schemas.EdgeKey]schemas.Edge
	state schemas.GraphState
	log   *zap.Logger
}

// NewStore creates an empty graph starting in ACT_1.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		nodes: make(map[string]schemas.Node),
		edges: make(map[schemas.EdgeKey]schemas.Edge),
		state: schemas.GraphState{Phase: schemas.PhaseActOne},
		log:   logger.Named("graph"),
	}
}

// ApplyDelta folds a batch of changes into the graph. Malformed entries
// (missing ids, edges referencing absent nodes) are skipped and logged;
// the rest of the delta still applies. Applying the same delta twice
// leaves the graph identical to applying it once.
func (s *Store) ApplyDelta(delta schemas.GraphDelta) {
	if delta.Empty() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, node := range delta.NodesAdded {
		if node.ID == "" {
			s.log.Warn("Dropping node with missing id from delta", zap.String("label", node.Label))
			continue
		}
		s.nodes[node.ID] = copyNode(node)
	}

	for _, id := range delta.NodesRemoved {
		if _, ok := s.nodes[id]; !ok {
			continue
		}
		delete(s.nodes, id)
		// An edge may not reference a removed node; cascade.
		for key := range s.edges {
			if key.Source == id || key.Target == id {
				delete(s.edges, key)
			}
		}
		s.log.Debug("Node removed with edge cascade", zap.String("id", id))
	}

	for _, edge := range delta.EdgesAdded {
		if edge.Source == "" || edge.Target == "" {
			s.log.Warn("Dropping edge with missing endpoint from delta", zap.String("label", edge.Label))
			continue
		}
		if _, ok := s.nodes[edge.Source]; !ok {
			s.log.Warn("Dropping edge referencing unknown source node",
				zap.String("source", edge.Source), zap.String("label", edge.Label))
			continue
		}
		if _, ok := s.nodes[edge.Target]; !ok {
			s.log.Warn("Dropping edge referencing unknown target node",
				zap.String("target", edge.Target), zap.String("label", edge.Label))
			continue
		}
		edge.Weight = clamp01(edge.Weight)
		key := edge.Key()
		if existing, ok := s.edges[key]; ok {
			// Identity match: update weight (and meta) in place.
			existing.Weight = edge.Weight
			existing.Meta = copyMeta(edge.Meta)
			s.edges[key] = existing
			continue
		}
		s.edges[key] = copyEdge(edge)
	}

	for _, key := range delta.EdgesRemoved {
		delete(s.edges, key)
	}
}

// Snapshot returns a fully independent copy of the graph: no map, slice,
// or pointer is shared with the live store.
func (s *Store) Snapshot() schemas.GraphSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := schemas.GraphSnapshot{
		Nodes: make([]schemas.Node, 0, len(s.nodes)),
		Edges: make([]schemas.Edge, 0, len(s.edges)),
		State: s.state,
	}
	for _, node := range s.nodes {
		snap.Nodes = append(snap.Nodes, copyNode(node))
	}
	for _, edge := range s.edges {
		snap.Edges = append(snap.Edges, copyEdge(edge))
	}
	return snap
}

// EdgesTouching returns copies of every edge with the given node as
// either endpoint. Used to assemble the per-agent reasoning context.
func (s *Store) EdgesTouching(nodeID string) []schemas.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []schemas.Edge
	for _, edge := range s.edges {
		if edge.Source == nodeID || edge.Target == nodeID {
			out = append(out, copyEdge(edge))
		}
	}
	return out
}

// State returns the current global narrative counters.
func (s *Store) State() schemas.GraphState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IncrementTurn bumps the global turn counter and returns the new value.
func (s *Store) IncrementTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TurnCount++
	return s.state.TurnCount
}

// BumpTension adds delta to the tension level, clamped to [0,1].
func (s *Store) BumpTension(delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TensionLevel = clamp01(s.state.TensionLevel + delta)
}

// AdvancePhase moves the narrative phase forward. Regressions and unknown
// phases are ignored; phases are monotonic for the life of a session.
func (s *Store) AdvancePhase(phase schemas.NarrativePhase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if phase.Order() == 0 {
		s.log.Warn("Ignoring unknown narrative phase", zap.String("phase", string(phase)))
		return
	}
	if phase.Order() <= s.state.Phase.Order() {
		return
	}
	s.log.Info("Narrative phase advanced",
		zap.String("from", string(s.state.Phase)), zap.String("to", string(phase)))
	s.state.Phase = phase
}

// Restore replaces the graph contents from a snapshot. Used at session
// load; not part of the per-turn write path.
func (s *Store) Restore(snap schemas.GraphSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]schemas.Node, len(snap.Nodes))
	s.edges = make(map[schemas.EdgeKey]schemas.Edge, len(snap.Edges))
	for _, node := range snap.Nodes {
		if node.ID == "" {
			continue
		}
		s.nodes[node.ID] = copyNode(node)
	}
	for _, edge := range snap.Edges {
		if _, ok := s.nodes[edge.Source]; !ok {
			continue
		}
		if _, ok := s.nodes[edge.Target]; !ok {
			continue
		}
		s.edges[edge.Key()] = copyEdge(edge)
	}
	s.state = snap.State
	if s.state.Phase.Order() == 0 {
		s.state.Phase = schemas.PhaseActOne
	}
}

// copyNode makes a structural copy. Attribute values are plain scalars by
// contract, so copying the map itself is sufficient.
func copyNode(n schemas.Node) schemas.Node {
	out := n
	if n.Attributes != nil {
		out.Attributes = make(map[string]any, len(n.Attributes))
		for k, v := range n.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

func copyEdge(e schemas.Edge) schemas.Edge {
	out := e
	out.Meta = copyMeta(e.Meta)
	return out
}

func copyMeta(m *schemas.EdgeMeta) *schemas.EdgeMeta {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
