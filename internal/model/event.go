package model

// Category is the semantic class of an event, shared by the behavioral log
// and the acquisition device's trigger codes
type Category string

const (
	CategoryWord      Category = "word"
	CategoryBlock     Category = "block"
	CategoryOffset    Category = "offset"
	CategoryFixation  Category = "fixation"
	CategoryPause     Category = "pause"
	CategoryQuestion  Category = "question"
	CategoryResponse1 Category = "response/1"
	CategoryResponse2 Category = "response/2"
	CategoryResponse3 Category = "response/3"
	CategoryEmpty     Category = "empty" // blank trial, e.g. "5 300"
)

// IsResponse reports whether c is one of the response/<n> categories
func (c Category) IsResponse() bool {
	return c == CategoryResponse1 || c == CategoryResponse2 || c == CategoryResponse3
}

// UnresolvedToken marks an accepted event whose token could not be resolved
const UnresolvedToken = -1

// RawLogRow is one row of the behavioral log as recorded by the
// experiment-control computer
type RawLogRow struct {
	Sample int     `json:"sample"`
	Type   string  `json:"type"`            // Source label, e.g. "Picture", "Response", "trial"
	Value  string  `json:"value"`           // Free-form content
	Onset  float64 `json:"onset,omitempty"` // Seconds since recording start (optional column)
	Line   int     `json:"line,omitempty"`  // 1-based line in the source file
}

// NormalizedEvent summarizes one cluster of raw log rows
type NormalizedEvent struct {
	Sample   int      `json:"sample"` // Sample of the cluster's first row
	Category Category `json:"category"`
	Onset    float64  `json:"onset"`
	Form     string   `json:"form,omitempty"`
}

// IgnoredCluster records a cluster of raw rows that produced no event
type IgnoredCluster struct {
	Sample int         `json:"sample"`
	Rows   []RawLogRow `json:"rows"`
	Reason string      `json:"reason"`
}

// AnnotatedEvent is a normalized event optionally resolved against the corpus
type AnnotatedEvent struct {
	NormalizedEvent
	SentenceID *int `json:"sentence_id,omitempty"`
	Position   *int `json:"position,omitempty"`
	TokenID    *int `json:"token_id,omitempty"`
}

// Resolved reports whether the event carries a sentence and position
func (e AnnotatedEvent) Resolved() bool {
	return e.SentenceID != nil && e.Position != nil
}

// TokenOr returns the token ID, or def when the token is unresolved
func (e AnnotatedEvent) TokenOr(def int) int {
	if e.TokenID == nil {
		return def
	}
	return *e.TokenID
}

// DeviceEvent is a trigger detected in the acquisition stream
type DeviceEvent struct {
	Sample   int `json:"sample"`
	Duration int `json:"duration"` // Carried through, unused downstream
	Code     int `json:"code"`
}

// ValidatedPair holds an accepted device event and its token-space twin.
// Token.Code carries the token ID or UnresolvedToken.
type ValidatedPair struct {
	Device      DeviceEvent `json:"device"`
	Token       DeviceEvent `json:"token"`
	LogCategory Category    `json:"log_category,omitempty"` // Category of the paired log entry
}

// RejectReason explains why a device event was rejected
type RejectReason string

const (
	RejectNoLogEntry       RejectReason = "no matching log entry within tolerance"
	RejectCategoryMismatch RejectReason = "category mismatch"
)

// RejectedEvent is a device event that the behavioral log did not confirm
type RejectedEvent struct {
	Event  DeviceEvent  `json:"event"`
	Reason RejectReason `json:"reason"`
	// Category of the log entry found within tolerance, if any
	LogCategory Category `json:"log_category,omitempty"`
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}
