package score

import (
	"fmt"

	"github.com/ppiankov/stimalign/internal/model"
)

// Scorer calculates the session validity and generates signals
type Scorer struct {
	warnBelow float64
}

// NewScorer creates a new scorer; validity below warnBelow percent raises a
// low_validity signal
func NewScorer(warnBelow float64) *Scorer {
	if warnBelow <= 0 {
		warnBelow = 90
	}
	return &Scorer{warnBelow: warnBelow}
}

// Calculate derives the session score from the stage counts.
// The score is diagnostic only; it never fails a session.
func (s *Scorer) Calculate(counts model.Counts, rejectedSentences int, hasTriggers bool) model.Score {
	var signals []model.Signal

	// 1. Sentence matching
	if sig, ok := s.sentenceSignal(counts, rejectedSentences); ok {
		signals = append(signals, sig)
	}

	// 2. Token binding
	if counts.UnboundTokens > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalUnboundTokens,
			Severity:    model.SeverityWarning,
			Description: fmt.Sprintf("%d matched words have no token in the corpus", counts.UnboundTokens),
			Data: map[string]interface{}{
				"unbound": counts.UnboundTokens,
				"bound":   counts.BoundTokens,
			},
		})
	}

	// 3. Ignored clusters
	if counts.IgnoredClusters > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalIgnoredClusters,
			Severity:    model.SeverityInfo,
			Description: fmt.Sprintf("%d log clusters produced no event", counts.IgnoredClusters),
			Data: map[string]interface{}{
				"ignored":  counts.IgnoredClusters,
				"raw_rows": counts.RawRows,
			},
		})
	}

	// 4. Cross-stream validation
	if !hasTriggers {
		signals = append(signals, model.Signal{
			Type:        model.SignalNoTriggers,
			Severity:    model.SeverityInfo,
			Description: "No trigger stream; cross-stream validation skipped",
		})
		return model.Score{
			ValidPercent: 0,
			Confidence:   "low",
			Signals:      signals,
		}
	}

	valid := validPercent(counts)

	if counts.Rejected > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalRejectedEvents,
			Severity:    model.SeverityWarning,
			Description: fmt.Sprintf("%d device events were not confirmed by the log", counts.Rejected),
			Data: map[string]interface{}{
				"rejected": counts.Rejected,
				"accepted": counts.Accepted,
				"skipped":  counts.Skipped,
				"dropped":  counts.Dropped,
			},
		})
	}

	if valid < s.warnBelow {
		severity := model.SeverityWarning
		if valid < s.warnBelow/2 {
			severity = model.SeverityCritical
		}
		signals = append(signals, model.Signal{
			Type:        model.SignalLowValidity,
			Severity:    severity,
			Description: fmt.Sprintf("%.2f%% valid (threshold %.0f%%)", valid, s.warnBelow),
			Data: map[string]interface{}{
				"valid_percent": valid,
				"threshold":     s.warnBelow,
				"formula":       "accepted / (accepted + rejected) * 100",
			},
		})
	}

	return model.Score{
		ValidPercent: valid,
		Confidence:   determineConfidence(valid),
		Signals:      signals,
	}
}

func (s *Scorer) sentenceSignal(counts model.Counts, rejected int) (model.Signal, bool) {
	if rejected == 0 {
		return model.Signal{}, false
	}

	severity := model.SeverityWarning
	if counts.BoundTokens == 0 {
		severity = model.SeverityCritical
	}

	return model.Signal{
		Type:        model.SignalRejectedSentences,
		Severity:    severity,
		Description: fmt.Sprintf("%d sentence candidates not found in the corpus", rejected),
		Data: map[string]interface{}{
			"rejected":    rejected,
			"word_events": counts.WordEvents,
		},
	}, true
}

func validPercent(counts model.Counts) float64 {
	judged := counts.Accepted + counts.Rejected
	if judged == 0 {
		return 0
	}
	return float64(counts.Accepted) / float64(judged) * 100
}

// determineConfidence maps validity to a confidence label
func determineConfidence(valid float64) string {
	switch {
	case valid >= 90:
		return "high"
	case valid >= 70:
		return "medium"
	default:
		return "low"
	}
}
