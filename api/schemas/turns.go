package schemas

import "time"

// Modality is one of the artifact types generated per turn.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
)

// Modalities lists every modality in a stable order.
var Modalities = []Modality{ModalityImage, ModalityAudio, ModalityVideo}

// MediaStatus is the lifecycle state of one modality on one turn.
// Transitions: idle -> pending -> inProgress -> {ready | error}.
// error -> idle happens only through an explicit regenerate.
type MediaStatus string

const (
	MediaIdle       MediaStatus = "idle"
	MediaPending    MediaStatus = "pending"
	MediaInProgress MediaStatus = "inProgress"
	MediaReady      MediaStatus = "ready"
	MediaError      MediaStatus = "error"
)

// MediaArtifact is the payload produced by a generation collaborator.
// Audio artifacts may additionally carry duration and word alignment data.
type MediaArtifact struct {
	Payload    []byte       `json:"payload,omitempty"`
	MIMEType   string       `json:"mime_type,omitempty"`
	DurationMS float64      `json:"duration_ms,omitempty"`
	Alignment  []WordTiming `json:"alignment,omitempty"`
}

// WordTiming aligns a spoken word to its offset within an audio artifact.
type WordTiming struct {
	Word    string  `json:"word"`
	StartMS float64 `json:"start_ms"`
	EndMS   float64 `json:"end_ms"`
}

// MediaTrack is the mutable media slot for one modality on a turn.
type MediaTrack struct {
	Status   MediaStatus    `json:"status"`
	Artifact *MediaArtifact `json:"artifact,omitempty"`
	Err      string         `json:"error,omitempty"`
}

// MediaState keys one track per modality as explicit struct fields so the
// compiler enforces exhaustiveness over the modality set.
type MediaState struct {
	Image MediaTrack `json:"image"`
	Audio MediaTrack `json:"audio"`
	Video MediaTrack `json:"video"`
}

// Track returns the track for the given modality, or nil for an unknown one.
func (s *MediaState) Track(m Modality) *MediaTrack {
	switch m {
	case ModalityImage:
		return &s.Image
	case ModalityAudio:
		return &s.Audio
	case ModalityVideo:
		return &s.Video
	default:
		return nil
	}
}

// DialogueLine is one entry in a turn's structured dialogue script.
type DialogueLine struct {
	Speaker string `json:"speaker"`
	Line    string `json:"line"`
}

// Ledger is the protagonist's numeric psychological state vector. It
// drives attention selection and media priority heuristics. Every axis is
// clamped to [0,100].
type Ledger struct {
	Distress   float64 `json:"distress"`
	Compliance float64 `json:"compliance"`
	Trauma     float64 `json:"trauma"`
	Hope       float64 `json:"hope"`
}

// TurnMetadata is the snapshot of session state captured when a turn is
// registered. It is copied, never referenced, and never mutated afterward.
type TurnMetadata struct {
	Ledger       Ledger   `json:"ledger"`
	ActiveAgents []string `json:"active_agents,omitempty"`
	Location     string   `json:"location,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// Turn is one immutable unit of narrative progress. Only the media tracks
// mutate after creation; text, script, and metadata are frozen.
type Turn struct {
	ID           string         `json:"id"`
	Index        int            `json:"index"`
	Text         string         `json:"text"`
	Script       []DialogueLine `json:"script,omitempty"`
	VisualPrompt string         `json:"visual_prompt"`
	Media        MediaState     `json:"media"`
	Metadata     TurnMetadata   `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}
