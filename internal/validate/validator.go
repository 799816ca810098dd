// Package validate reconciles acquisition-device trigger codes against the
// token-identified behavioral log.
package validate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/stimalign/internal/model"
)

// DefaultTolerance is the clock jitter allowed between log and device, in samples
const DefaultTolerance = 1

// MaxTolerance bounds the configured tolerance; a device event never pairs
// with a log entry more than one sample away
const MaxTolerance = 1

// ErrShapeMismatch signals paired sequences of different lengths
var ErrShapeMismatch = errors.New("shape mismatch between paired event arrays")

// Result holds the outcome of validating one session
type Result struct {
	Pairs    []model.ValidatedPair
	Rejected []model.RejectedEvent
	Skipped  int // Codes outside the code table
	Dropped  int // Word codes paired with blank trials
}

// Accepted returns the number of validated pairs
func (r *Result) Accepted() int {
	return len(r.Pairs)
}

// ValidPercent returns accepted / (accepted + rejected) as a percentage.
// Skipped and dropped events are not judged. Returns 0 when nothing was judged.
func (r *Result) ValidPercent() float64 {
	judged := len(r.Pairs) + len(r.Rejected)
	if judged == 0 {
		return 0
	}
	return float64(len(r.Pairs)) / float64(judged) * 100
}

// DeviceEvents returns the device-space triples of the accepted pairs
func (r *Result) DeviceEvents() []model.DeviceEvent {
	out := make([]model.DeviceEvent, len(r.Pairs))
	for i, p := range r.Pairs {
		out[i] = p.Device
	}
	return out
}

// TokenEvents returns the token-space triples of the accepted pairs
func (r *Result) TokenEvents() []model.DeviceEvent {
	out := make([]model.DeviceEvent, len(r.Pairs))
	for i, p := range r.Pairs {
		out[i] = p.Token
	}
	return out
}

// CheckShape verifies two paired sequences have equal length
func CheckShape(device, token []model.DeviceEvent) error {
	if len(device) != len(token) {
		return fmt.Errorf("%w: %d device events, %d token events", ErrShapeMismatch, len(device), len(token))
	}
	return nil
}

// Validator checks device events against the annotated log
type Validator struct {
	tolerance int
}

// NewValidator creates a validator; tolerance <= 0 selects DefaultTolerance
// and values above MaxTolerance are clamped
func NewValidator(tolerance int) *Validator {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if tolerance > MaxTolerance {
		slog.Warn("clamping validation tolerance", "configured", tolerance, "max", MaxTolerance)
		tolerance = MaxTolerance
	}
	return &Validator{tolerance: tolerance}
}

// Validate judges every device event in original against the log.
//
// resampled, when non-nil, holds the same events at another sampling rate
// (e.g. after downsampling) and must be index-aligned with original; the
// accepted pairs carry its samples. Lookup always uses original samples.
func (v *Validator) Validate(original, resampled []model.DeviceEvent, log []model.AnnotatedEvent) (*Result, error) {
	if resampled == nil {
		resampled = original
	}
	if err := CheckShape(original, resampled); err != nil {
		return nil, err
	}

	bySample := make(map[int]int, len(log))
	for i, ev := range log {
		if _, seen := bySample[ev.Sample]; !seen {
			bySample[ev.Sample] = i
		}
	}

	res := &Result{
		Pairs:    []model.ValidatedPair{},
		Rejected: []model.RejectedEvent{},
	}

	for i, d := range original {
		codeCat, known := CodeCategory(d.Code)
		if !known {
			res.Skipped++
			continue
		}

		a, found := v.lookup(bySample, log, d.Sample)
		if !found {
			res.Rejected = append(res.Rejected, model.RejectedEvent{
				Event:  d,
				Reason: model.RejectNoLogEntry,
			})
			continue
		}

		switch {
		case a.Category == codeCat, codeCat == model.CategoryWord && overlaps(d.Code, a.Category):
			res.Pairs = append(res.Pairs, pair(resampled[i], a))
		case isSilent(codeCat, a.Category):
			res.Dropped++
		default:
			res.Rejected = append(res.Rejected, model.RejectedEvent{
				Event:       d,
				Reason:      model.RejectCategoryMismatch,
				LogCategory: a.Category,
			})
		}
	}

	slog.Debug("triggers validated",
		"device_events", len(original),
		"accepted", len(res.Pairs),
		"rejected", len(res.Rejected),
		"skipped", res.Skipped,
		"dropped", res.Dropped)

	return res, nil
}

// lookup finds the log entry at sample, then sample-k, then sample+k for
// k = 1..tolerance
func (v *Validator) lookup(bySample map[int]int, log []model.AnnotatedEvent, sample int) (model.AnnotatedEvent, bool) {
	if i, ok := bySample[sample]; ok {
		return log[i], true
	}
	for k := 1; k <= v.tolerance; k++ {
		if i, ok := bySample[sample-k]; ok {
			return log[i], true
		}
		if i, ok := bySample[sample+k]; ok {
			return log[i], true
		}
	}
	return model.AnnotatedEvent{}, false
}

func pair(device model.DeviceEvent, a model.AnnotatedEvent) model.ValidatedPair {
	token := device
	token.Code = a.TokenOr(model.UnresolvedToken)
	return model.ValidatedPair{Device: device, Token: token, LogCategory: a.Category}
}
