package schemas

// Archetype is the closed set of behavioral molds an agent can be cast from.
type Archetype string

const (
	ArchetypeSchemer  Archetype = "SCHEMER"
	ArchetypeZealot   Archetype = "ZEALOT"
	ArchetypeCourtier Archetype = "COURTIER"
	ArchetypeWarden   Archetype = "WARDEN"
	ArchetypeSurvivor Archetype = "SURVIVOR"
	ArchetypeParasite Archetype = "PARASITE"
)

// Archetypes lists every valid archetype, in a stable order for seeded
// procedural generation.
var Archetypes = []Archetype{
	ArchetypeSchemer,
	ArchetypeZealot,
	ArchetypeCourtier,
	ArchetypeWarden,
	ArchetypeSurvivor,
	ArchetypeParasite,
}

// TraitVector holds an agent's five personality axes, each clamped to [0,1].
type TraitVector struct {
	Ambition  float64 `json:"ambition"`
	Cunning   float64 `json:"cunning"`
	Loyalty   float64 `json:"loyalty"`
	Cruelty   float64 `json:"cruelty"`
	Composure float64 `json:"composure"`
}

// EmotionalState is an agent's current affect, each axis in [0,1].
type EmotionalState struct {
	Paranoia    float64 `json:"paranoia"`
	Desperation float64 `json:"desperation"`
	Confidence  float64 `json:"confidence"`
}

// MaxKnowledgeEntries bounds the per-agent knowledge list to the most
// recent entries.
const MaxKnowledgeEntries = 10

// AgentProfile is the full mutable state of one autonomous character.
// Profiles are created once per session and never deleted while it runs.
type AgentProfile struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Archetype Archetype   `json:"archetype"`
	Traits    TraitVector `json:"traits"`
	Drive     string      `json:"drive"`
	Weakness  string      `json:"weakness"`
	Favor     float64     `json:"favor"` // competitive standing, [0,100]
	// Relationships maps other agent IDs to a disposition in [-1,1].
	Relationships map[string]float64 `json:"relationships"`
	Emotions      EmotionalState     `json:"emotions"`
	LastAction    string             `json:"last_action,omitempty"`
	Knowledge     []string           `json:"knowledge,omitempty"`
}

// FallbackAgentID marks an AgentThought synthesized locally after the
// reasoning collaborator was unreachable through every retry.
const FallbackAgentID = "__fallback__"

// SabotageAttempt is a covert move against another agent, resolved by
// display name against the roster.
type SabotageAttempt struct {
	Target      string  `json:"target"`
	Method      string  `json:"method"`
	Deniability float64 `json:"deniability"`
}

// AllianceSignal is an overture toward another agent.
type AllianceSignal struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

// AgentThought is the outcome of simulating one selected agent for one
// turn. Exactly one is produced per selected agent.
type AgentThought struct {
	AgentID          string           `json:"agent_id"`
	PublicAction     string           `json:"public_action"`
	HiddenMotivation string           `json:"hidden_motivation"`
	Monologue        string           `json:"monologue"`
	Sabotage         *SabotageAttempt `json:"sabotage,omitempty"`
	Alliance         *AllianceSignal  `json:"alliance,omitempty"`
	Emotions         EmotionalState   `json:"emotions"`
	SecretsUncovered []string         `json:"secrets_uncovered,omitempty"`
	FavorDelta       float64          `json:"favor_delta"`
}

// Fallback reports whether this thought was synthesized locally rather
// than produced by the reasoning collaborator.
func (t AgentThought) Fallback() bool { return t.AgentID == FallbackAgentID }

// PeerSummary is what one selected agent is allowed to know about a
// co-selected peer when reasoning about this turn.
type PeerSummary struct {
	Name       string  `json:"name"`
	LastAction string  `json:"last_action,omitempty"`
	Favor      float64 `json:"favor"`
	Threat     float64 `json:"threat"` // [0,1]
}

// AgentContext is the isolated context handed to the reasoning
// collaborator for one agent. It carries plain data only; no live
// references cross the collaborator boundary.
type AgentContext struct {
	Profile AgentProfile  `json:"profile"`
	Peers   []PeerSummary `json:"peers,omitempty"`
	// Edges are the graph edges linking this agent to the protagonist.
	Edges []Edge `json:"edges,omitempty"`
	Scene string `json:"scene"`
	Turn  int    `json:"turn"`
}
