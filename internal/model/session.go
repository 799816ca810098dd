package model

// Session names the input files of one recording session
type Session struct {
	ID            string `json:"id"`                       // e.g. "sub-V1001"
	LogPath       string `json:"log_path"`                 // Behavioral log TSV
	TriggersPath  string `json:"triggers_path,omitempty"`  // Device triggers; empty skips validation
	ResampledPath string `json:"resampled_path,omitempty"` // Triggers at the analysis rate, index-aligned
}

// HasTriggers reports whether cross-stream validation can run
func (s Session) HasTriggers() bool {
	return s.TriggersPath != ""
}
