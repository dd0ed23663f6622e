package schemas

// -- Canonical Narrative Knowledge Graph Data Model --

// NodeType represents the specific type of an entity (node) in the knowledge graph.
type NodeType string

const (
	NodeEntity   NodeType = "ENTITY"
	NodeLocation NodeType = "LOCATION"
	NodeEvent    NodeType = "EVENT"
	NodeConcept  NodeType = "CONCEPT"
)

// EdgeType defines the semantic type of a relationship (edge) between
// two nodes in the knowledge graph.
type EdgeType string

const (
	EdgeRelationship EdgeType = "RELATIONSHIP" // e.g., an ENTITY despises another ENTITY.
	EdgeSpatial      EdgeType = "SPATIAL"      // e.g., an ENTITY is confined to a LOCATION.
	EdgeTemporal     EdgeType = "TEMPORAL"     // e.g., an EVENT precedes another EVENT.
	EdgeKnowledge    EdgeType = "KNOWLEDGE"    // e.g., an ENTITY knows a CONCEPT.
)

// Node represents a single entity or concept in the narrative graph. The
// attribute map is an open schema; collaborators may attach arbitrary keys.
type Node struct {
	ID          string         `json:"id"`
	Type        NodeType       `json:"type"`
	Label       string         `json:"label"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
	TurnCreated int            `json:"turn_created,omitempty"`
}

// EdgeMeta carries optional narrative annotations on an edge.
type EdgeMeta struct {
	Tension float64 `json:"tension,omitempty"`
	Secret  bool    `json:"secret,omitempty"`
}

// Edge represents a directed, weighted relationship between two nodes.
// Identity is the (Source, Target, Label) triple; re-adding an existing
// triple updates the weight in place rather than duplicating the edge.
type Edge struct {
	Source string    `json:"source"`
	Target string    `json:"target"`
	Type   EdgeType  `json:"type"`
	Label  string    `json:"label"`
	Weight float64   `json:"weight"` // [0,1]
	Meta   *EdgeMeta `json:"meta,omitempty"`
}

// EdgeKey identifies an edge for removal.
type EdgeKey struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Key returns the identity triple of an edge.
func (e Edge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Target: e.Target, Label: e.Label}
}

// NarrativePhase tracks which act of the story the session is in.
// Phases only ever advance; they never regress.
type NarrativePhase string

const (
	PhaseActOne   NarrativePhase = "ACT_1"
	PhaseActTwo   NarrativePhase = "ACT_2"
	PhaseActThree NarrativePhase = "ACT_3"
)

// Order maps a phase to its position so monotonicity can be enforced.
// Unknown phases order below ACT_1 and are rejected by the store.
func (p NarrativePhase) Order() int {
	switch p {
	case PhaseActOne:
		return 1
	case PhaseActTwo:
		return 2
	case PhaseActThree:
		return 3
	default:
		return 0
	}
}

// GraphState holds the global narrative counters attached to the graph.
type GraphState struct {
	TurnCount    int            `json:"turn_count"`
	TensionLevel float64        `json:"tension_level"`
	Phase        NarrativePhase `json:"phase"`
}

// GraphDelta is a batch of changes to apply to the graph as one unit.
// Malformed entries are skipped per-entry; the rest of the delta still applies.
type GraphDelta struct {
	NodesAdded   []Node    `json:"nodes_added,omitempty"`
	NodesRemoved []string  `json:"nodes_removed,omitempty"`
	EdgesAdded   []Edge    `json:"edges_added,omitempty"`
	EdgesRemoved []EdgeKey `json:"edges_removed,omitempty"`
}

// Empty reports whether the delta contains no changes.
func (d GraphDelta) Empty() bool {
	return len(d.NodesAdded) == 0 && len(d.NodesRemoved) == 0 &&
		len(d.EdgesAdded) == 0 && len(d.EdgesRemoved) == 0
}

// GraphSnapshot is a fully independent copy of the graph, safe to hand to
// collaborators or the persistence layer without exposing live state.
type GraphSnapshot struct {
	Nodes []Node     `json:"nodes"`
	Edges []Edge     `json:"edges"`
	State GraphState `json:"state"`
}
