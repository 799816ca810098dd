package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/stimalign/internal/model"
)

// ErrUnrecognizedRow is returned when a presentation row matches no rule
var ErrUnrecognizedRow = errors.New("unrecognized log row")

// RowError identifies the offending row of a fatal classification failure
type RowError struct {
	Row model.RawLogRow
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d (sample %d): row with type %q and value %q was not matched",
		e.Row.Line, e.Row.Sample, e.Row.Type, e.Row.Value)
}

func (e *RowError) Unwrap() error {
	return ErrUnrecognizedRow
}

// ruleKind enumerates the classification rules in priority order
type ruleKind int

const (
	ruleResponse ruleKind = iota
	ruleIgnorableTag
	ruleBlock
	ruleFixation
	ruleQuestion
	ruleIgnorableValue
	ruleWord
	ruleEmpty
	ruleUnrecognized
	ruleNone // row carries nothing classifiable, keep looking
)

func (k ruleKind) String() string {
	switch k {
	case ruleResponse:
		return "response"
	case ruleIgnorableTag:
		return "ignorable-tag"
	case ruleBlock:
		return "block"
	case ruleFixation:
		return "fixation"
	case ruleQuestion:
		return "question"
	case ruleIgnorableValue:
		return "ignorable-value"
	case ruleWord:
		return "word"
	case ruleEmpty:
		return "empty"
	case ruleUnrecognized:
		return "unrecognized"
	default:
		return "none"
	}
}

// verdict is the outcome of classifying a single row
type verdict struct {
	kind     ruleKind
	category model.Category
	form     string
	reason   string // set when the cluster is discarded
}

// discards reports whether the verdict ends the cluster without an event
func (v verdict) discards() bool {
	return v.category == "" && v.kind != ruleNone && v.kind != ruleUnrecognized
}

var (
	wordPattern  = regexp.MustCompile(`^\d\s?\p{L}+`)
	emptyPattern = regexp.MustCompile(`^\d+\s+\d+`)
	formStrip    = regexp.MustCompile(`[\d\s.]`)
)

var responseCategories = map[string]model.Category{
	"1": model.CategoryResponse1,
	"2": model.CategoryResponse2,
	"3": model.CategoryResponse3,
}

// Rules is the compiled classification rule chain
type Rules struct {
	responseTag    string
	pictureTag     string
	ignoredTags    map[string]bool
	block          *regexp.Regexp
	fixationPrefix string
	questionPrefix string
	ignoredValues  map[string]bool
}

// NewRules compiles classifier markers
func NewRules(cfg model.ClassifierConfig) (*Rules, error) {
	block, err := regexp.Compile(cfg.BlockPattern)
	if err != nil {
		return nil, fmt.Errorf("compile block pattern %q: %w", cfg.BlockPattern, err)
	}

	r := &Rules{
		responseTag:    cfg.ResponseTag,
		pictureTag:     cfg.PictureTag,
		ignoredTags:    make(map[string]bool, len(cfg.IgnoredTags)),
		block:          block,
		fixationPrefix: cfg.FixationPrefix,
		questionPrefix: cfg.QuestionPrefix,
		ignoredValues:  make(map[string]bool, len(cfg.IgnoredValues)),
	}
	for _, tag := range cfg.IgnoredTags {
		r.ignoredTags[tag] = true
	}
	for _, v := range cfg.IgnoredValues {
		r.ignoredValues[v] = true
	}
	return r, nil
}

// DefaultRules returns the rule chain for the default markers
func DefaultRules() *Rules {
	r, err := NewRules(model.DefaultClassifierConfig())
	if err != nil {
		panic(err)
	}
	return r
}

// classify evaluates the rule chain for one row; first match wins
func (r *Rules) classify(row model.RawLogRow) verdict {
	switch {
	case row.Type == r.responseTag:
		if cat, ok := responseCategories[strings.TrimSpace(row.Value)]; ok {
			return verdict{kind: ruleResponse, category: cat}
		}
		return verdict{kind: ruleResponse, reason: fmt.Sprintf("response value %q out of range", row.Value)}

	case r.ignoredTags[row.Type]:
		return verdict{kind: ruleIgnorableTag, reason: "ignored tag " + row.Type}

	case row.Type != r.pictureTag:
		return verdict{kind: ruleNone}
	}

	value := row.Value
	switch {
	case r.block.MatchString(value):
		return verdict{kind: ruleBlock, category: model.CategoryBlock, form: value}
	case r.fixationPrefix != "" && strings.HasPrefix(value, r.fixationPrefix):
		return verdict{kind: ruleFixation, category: model.CategoryFixation}
	case r.questionPrefix != "" && strings.HasPrefix(value, r.questionPrefix):
		return verdict{kind: ruleQuestion, category: model.CategoryQuestion}
	case r.ignoredValues[value]:
		return verdict{kind: ruleIgnorableValue, reason: "ignored value " + value}
	case wordPattern.MatchString(value):
		return verdict{kind: ruleWord, category: model.CategoryWord, form: formStrip.ReplaceAllString(value, "")}
	case emptyPattern.MatchString(value):
		return verdict{kind: ruleEmpty, category: model.CategoryEmpty}
	default:
		return verdict{kind: ruleUnrecognized}
	}
}
