package model

import "time"

// Report represents the complete alignment report for one session
type Report struct {
	Session   string    `json:"session"`          // Session identifier (e.g., "sub-V1001")
	RunID     string    `json:"run_id,omitempty"` // Batch run the session belongs to
	CreatedAt time.Time `json:"created_at"`

	Inputs Inputs `json:"inputs"`
	Counts Counts `json:"counts"`

	RejectedSentences []string        `json:"rejected_sentences"` // Sentence candidates not found in the corpus
	RejectedEvents    []RejectedEvent `json:"rejected_events,omitempty"`

	Score Score `json:"score"`

	Outputs map[string]string `json:"outputs,omitempty"` // Artifact kind -> path
}

// Inputs records which files a session was built from
type Inputs struct {
	Corpus   string `json:"corpus"`
	Log      string `json:"log"`
	Triggers string `json:"triggers,omitempty"`
}

// Counts summarizes every stage of a session
type Counts struct {
	RawRows         int `json:"raw_rows"`
	Events          int `json:"events"`
	IgnoredClusters int `json:"ignored_clusters"`
	WordEvents      int `json:"word_events"`
	BoundTokens     int `json:"bound_tokens"`
	UnboundTokens   int `json:"unbound_tokens"` // Resolved sentence/position without a token

	DeviceEvents int `json:"device_events"`
	Accepted     int `json:"accepted"`
	Rejected     int `json:"rejected"`
	Skipped      int `json:"skipped"` // Codes outside the code table
	Dropped      int `json:"dropped"` // Blank-trial word codes
	Cropped      int `json:"cropped"` // Pairs left after Simplify/Crop
}

// Score represents the transparent session quality breakdown
type Score struct {
	ValidPercent float64  `json:"valid_percent"` // Accepted / (accepted + rejected) * 100
	Confidence   string   `json:"confidence"`    // "low", "medium", "high"
	Signals      []Signal `json:"signals"`       // Diagnostic signals
}

// Signal represents a diagnostic signal with transparent data
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    SignalSeverity         `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalRejectedSentences SignalType = "rejected_sentences"
	SignalRejectedEvents    SignalType = "rejected_events"
	SignalUnboundTokens     SignalType = "unbound_tokens"
	SignalIgnoredClusters   SignalType = "ignored_clusters"
	SignalLowValidity       SignalType = "low_validity"
	SignalNoTriggers        SignalType = "no_triggers"
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
