package validate

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ppiankov/stimalign/internal/model"
)

func logEvent(sample int, cat model.Category, token *int) model.AnnotatedEvent {
	return model.AnnotatedEvent{
		NormalizedEvent: model.NormalizedEvent{Sample: sample, Category: cat},
		TokenID:         token,
	}
}

func TestValidator_Tolerance(t *testing.T) {
	tests := []struct {
		logSample int
		accepted  bool
	}{
		{498, false},
		{499, true},
		{500, true},
		{501, true},
		{502, false},
	}

	for _, tt := range tests {
		log := []model.AnnotatedEvent{logEvent(tt.logSample, model.CategoryWord, model.IntPtr(7))}
		device := []model.DeviceEvent{{Sample: 500, Code: 1}}

		result, err := NewValidator(1).Validate(device, nil, log)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := result.Accepted() == 1; got != tt.accepted {
			t.Errorf("log sample %d: expected accepted=%v, got %v", tt.logSample, tt.accepted, got)
		}
		if !tt.accepted {
			if len(result.Rejected) != 1 || result.Rejected[0].Reason != model.RejectNoLogEntry {
				t.Errorf("log sample %d: expected no-log-entry rejection, got %+v", tt.logSample, result.Rejected)
			}
		}
	}
}

func TestValidator_LookupOrderPrefersExactThenEarlier(t *testing.T) {
	log := []model.AnnotatedEvent{
		logEvent(499, model.CategoryFixation, nil),
		logEvent(500, model.CategoryWord, model.IntPtr(3)),
		logEvent(501, model.CategoryQuestion, nil),
	}

	result, err := NewValidator(1).Validate([]model.DeviceEvent{{Sample: 500, Code: 2}}, nil, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted() != 1 || result.Pairs[0].Token.Code != 3 {
		t.Fatalf("expected exact-sample word match, got %+v", result)
	}

	// Without the exact sample, sample-1 wins over sample+1
	result, _ = NewValidator(1).Validate([]model.DeviceEvent{{Sample: 500, Code: CodeFixation}}, nil,
		[]model.AnnotatedEvent{log[0], log[2]})
	if result.Accepted() != 1 {
		t.Errorf("expected sample-1 fixation to be accepted, got %+v", result)
	}
}

func TestValidator_ResponseCodeMatchesDirectly(t *testing.T) {
	log := []model.AnnotatedEvent{logEvent(700, model.CategoryResponse1, nil)}
	device := []model.DeviceEvent{{Sample: 700, Code: CodeResponse1}}

	result, err := NewValidator(1).Validate(device, nil, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Accepted() != 1 {
		t.Fatalf("expected 1 accepted pair, got %d", result.Accepted())
	}
	pair := result.Pairs[0]
	if pair.Device.Code != CodeResponse1 {
		t.Errorf("expected device code %d, got %d", CodeResponse1, pair.Device.Code)
	}
	if pair.Token.Code != model.UnresolvedToken {
		t.Errorf("expected unresolved token marker, got %d", pair.Token.Code)
	}
}

func TestValidator_ResponseWordOverlap(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		logCat   model.Category
		accepted bool
	}{
		{"code 1 as response/1", 1, model.CategoryResponse1, true},
		{"code 2 as response/2", 2, model.CategoryResponse2, true},
		{"code 3 as response/3", 3, model.CategoryResponse3, true},
		{"code 2 vs response/1", 2, model.CategoryResponse1, false},
		{"code 4 vs response/1", 4, model.CategoryResponse1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := []model.AnnotatedEvent{logEvent(100, tt.logCat, nil)}
			result, err := NewValidator(1).Validate([]model.DeviceEvent{{Sample: 100, Code: tt.code}}, nil, log)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := result.Accepted() == 1; got != tt.accepted {
				t.Errorf("expected accepted=%v, got %v", tt.accepted, got)
			}
			if tt.accepted {
				if got := result.Pairs[0].LogCategory; got != tt.logCat {
					t.Errorf("expected pair to record log category %q, got %q", tt.logCat, got)
				}
				if kept := Crop(Simplify(result.Pairs)); len(kept) != 0 {
					t.Errorf("expected response-paired word code to be cropped, got %v", kept)
				}
			}
			if !tt.accepted && (len(result.Rejected) != 1 || result.Rejected[0].Reason != model.RejectCategoryMismatch) {
				t.Errorf("expected category mismatch, got %+v", result.Rejected)
			}
		})
	}
}

func TestValidator_BlankTrialDroppedSilently(t *testing.T) {
	log := []model.AnnotatedEvent{logEvent(100, model.CategoryEmpty, nil)}

	result, err := NewValidator(1).Validate([]model.DeviceEvent{{Sample: 100, Code: 5}}, nil, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Accepted() != 0 || len(result.Rejected) != 0 {
		t.Errorf("expected neither accepted nor rejected, got %+v", result)
	}
	if result.Dropped != 1 {
		t.Errorf("expected 1 dropped event, got %d", result.Dropped)
	}
}

func TestValidator_UnknownCodesSkipped(t *testing.T) {
	device := []model.DeviceEvent{{Sample: 10, Code: 255}, {Sample: 20, Code: 9}}

	result, err := NewValidator(1).Validate(device, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", result.Skipped)
	}
	if len(result.Rejected) != 0 {
		t.Errorf("expected no rejections, got %d", len(result.Rejected))
	}
	if result.ValidPercent() != 0 {
		t.Errorf("expected 0%% with nothing judged, got %f", result.ValidPercent())
	}
}

func TestValidator_ResampledCarriedIntoPairs(t *testing.T) {
	log := []model.AnnotatedEvent{logEvent(1000, model.CategoryWord, model.IntPtr(42))}
	original := []model.DeviceEvent{{Sample: 1000, Code: 4}}
	resampled := []model.DeviceEvent{{Sample: 250, Code: 4}}

	result, err := NewValidator(1).Validate(original, resampled, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := model.ValidatedPair{
		Device:      model.DeviceEvent{Sample: 250, Code: 4},
		Token:       model.DeviceEvent{Sample: 250, Code: 42},
		LogCategory: model.CategoryWord,
	}
	if !reflect.DeepEqual(result.Pairs, []model.ValidatedPair{want}) {
		t.Errorf("expected %+v, got %+v", want, result.Pairs)
	}
}

func TestValidator_ShapeMismatchIsFatal(t *testing.T) {
	original := []model.DeviceEvent{{Sample: 1, Code: 1}, {Sample: 2, Code: 1}}
	resampled := []model.DeviceEvent{{Sample: 1, Code: 1}}

	_, err := NewValidator(1).Validate(original, resampled, nil)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestValidator_ValidPercent(t *testing.T) {
	log := []model.AnnotatedEvent{
		logEvent(10, model.CategoryFixation, nil),
		logEvent(20, model.CategoryWord, model.IntPtr(0)),
		logEvent(30, model.CategoryWord, model.IntPtr(1)),
	}
	device := []model.DeviceEvent{
		{Sample: 10, Code: CodeFixation},
		{Sample: 20, Code: 1},
		{Sample: 30, Code: CodeQuestion}, // mismatch
		{Sample: 80, Code: 1},            // no entry
	}

	result, err := NewValidator(1).Validate(device, nil, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Accepted() != 2 || len(result.Rejected) != 2 {
		t.Fatalf("expected 2/2, got %d/%d", result.Accepted(), len(result.Rejected))
	}
	if result.ValidPercent() != 50 {
		t.Errorf("expected 50%%, got %f", result.ValidPercent())
	}
	if result.Rejected[0].LogCategory != model.CategoryWord {
		t.Errorf("expected mismatch to record log category word, got %q", result.Rejected[0].LogCategory)
	}
	if err := CheckShape(result.DeviceEvents(), result.TokenEvents()); err != nil {
		t.Errorf("unexpected shape error: %v", err)
	}
}

func TestNewValidator_DefaultTolerance(t *testing.T) {
	if v := NewValidator(0); v.tolerance != DefaultTolerance {
		t.Errorf("expected default tolerance %d, got %d", DefaultTolerance, v.tolerance)
	}
}

func TestNewValidator_ClampsTolerance(t *testing.T) {
	v := NewValidator(3)
	if v.tolerance != MaxTolerance {
		t.Fatalf("expected tolerance clamped to %d, got %d", MaxTolerance, v.tolerance)
	}

	// Two samples apart stays out of reach
	log := []model.AnnotatedEvent{logEvent(100, model.CategoryFixation, nil)}
	result, err := v.Validate([]model.DeviceEvent{{Sample: 102, Code: CodeFixation}}, nil, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted() != 0 || len(result.Rejected) != 1 {
		t.Errorf("expected the event to be rejected, got %+v", result)
	}
}
