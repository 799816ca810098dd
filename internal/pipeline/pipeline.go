// Package pipeline runs one recording session through normalization,
// sentence matching, token binding and trigger validation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/stimalign/internal/annotate"
	"github.com/ppiankov/stimalign/internal/cache"
	"github.com/ppiankov/stimalign/internal/model"
	"github.com/ppiankov/stimalign/internal/normalize"
	"github.com/ppiankov/stimalign/internal/score"
	"github.com/ppiankov/stimalign/internal/stimuli"
	"github.com/ppiankov/stimalign/internal/validate"
)

// Processing stages reported by SessionError
const (
	StageCorpus    = "corpus"
	StageLog       = "log"
	StageNormalize = "normalize"
	StageTriggers  = "triggers"
	StageValidate  = "validate"
	StageRender    = "render"
)

// SessionError is a fatal failure of one session
type SessionError struct {
	Session string
	Stage   string
	Err     error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s: %v", e.Session, e.Stage, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Pipeline orchestrates the processing of sessions against one corpus
type Pipeline struct {
	config     *model.Config
	loader     *Loader
	normalizer *normalize.Normalizer
	validator  *validate.Validator
	scorer     *score.Scorer
	renderer   *Renderer
	cache      cache.Cache

	mu      sync.Mutex
	corpora map[string]*corpus // Cache key -> built corpus
}

// corpus is a built index with its matcher
type corpus struct {
	index   *stimuli.Index
	matcher *annotate.Matcher
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithCache stores built corpus indices in c
func WithCache(c cache.Cache) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithRenderer replaces the default renderer
func WithRenderer(r *Renderer) Option {
	return func(p *Pipeline) {
		p.renderer = r
	}
}

// New creates a new pipeline with the given configuration
func New(cfg *model.Config, opts ...Option) (*Pipeline, error) {
	rules, err := normalize.NewRules(cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("classifier rules: %w", err)
	}

	p := &Pipeline{
		config:     cfg,
		loader:     NewLoader(cfg.Input.MaxFileSize),
		normalizer: normalize.New(rules),
		validator:  validate.NewValidator(cfg.Validation.Tolerance),
		scorer:     score.NewScorer(cfg.Validation.WarnBelow),
		renderer:   NewRenderer(cfg.Output.Markdown),
		corpora:    make(map[string]*corpus),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// FormatResult is the sentence-tagged, token-bound log of one session
type FormatResult struct {
	Session    model.Session
	RawRows    int
	Normalized *normalize.Result
	Annotation *annotate.Annotation
	Binding    annotate.BindResult
	Index      *stimuli.Index
}

// SessionResult contains the complete result of one session
type SessionResult struct {
	*FormatResult
	Validation *validate.Result      // Nil when the session has no triggers
	Filtered   []model.ValidatedPair // Accepted pairs after Simplify (and Crop)
	Report     *model.Report
}

// Corpus returns the index and matcher for the configured corpus, building
// them at most once per corpus content
func (p *Pipeline) Corpus(ctx context.Context) (*stimuli.Index, *annotate.Matcher, error) {
	data, err := p.loader.ReadCorpus(p.config.Corpus.Path)
	if err != nil {
		return nil, nil, err
	}
	key := cache.CacheKey(data)

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.corpora[key]; ok {
		return c.index, c.matcher, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	idx := p.cachedIndex(key)
	if idx == nil {
		idx, err = stimuli.Parse(string(data))
		if err != nil {
			return nil, nil, err
		}
		p.storeIndex(key, idx)
	}

	c := &corpus{index: idx, matcher: annotate.NewMatcher(idx)}
	p.corpora[key] = c
	slog.Debug("corpus indexed", "path", p.config.Corpus.Path, "tokens", idx.Len(), "sentences", len(idx.Sentences()))
	return c.index, c.matcher, nil
}

func (p *Pipeline) cachedIndex(key string) *stimuli.Index {
	if p.cache == nil {
		return nil
	}
	data, ok := p.cache.Get(key)
	if !ok {
		return nil
	}
	idx, err := stimuli.Decode(data)
	if err != nil {
		slog.Warn("discarding corrupt cached index", "key", key, "error", err)
		_ = p.cache.Delete(key)
		return nil
	}
	return idx
}

func (p *Pipeline) storeIndex(key string, idx *stimuli.Index) {
	if p.cache == nil {
		return
	}
	data, err := idx.MarshalJSON()
	if err != nil {
		slog.Warn("encode index", "error", err)
		return
	}
	if err := p.cache.Set(key, data, 0); err != nil {
		slog.Warn("cache index", "key", key, "error", err)
	}
}

// FormatEvents normalizes the session log, tags sentence runs and binds
// token IDs
func (p *Pipeline) FormatEvents(ctx context.Context, session model.Session) (*FormatResult, error) {
	idx, matcher, err := p.Corpus(ctx)
	if err != nil {
		return nil, &SessionError{Session: session.ID, Stage: StageCorpus, Err: err}
	}

	rows, err := p.loader.LoadLog(session.LogPath)
	if err != nil {
		return nil, &SessionError{Session: session.ID, Stage: StageLog, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalized, err := p.normalizer.Normalize(rows)
	if err != nil {
		return nil, &SessionError{Session: session.ID, Stage: StageNormalize, Err: err}
	}

	ann := matcher.Annotate(normalized.Events)
	binding := annotate.Bind(ann.Events, idx)

	slog.Debug("events formatted",
		"session", session.ID,
		"rows", len(rows),
		"events", len(normalized.Events),
		"ignored", len(normalized.Ignored),
		"matched_runs", ann.Matched,
		"rejected_runs", len(ann.Rejected),
		"bound", binding.Bound)

	return &FormatResult{
		Session:    session,
		RawRows:    len(rows),
		Normalized: normalized,
		Annotation: ann,
		Binding:    binding,
		Index:      idx,
	}, nil
}

// ProcessSession formats the session and, when triggers are present,
// validates them against the annotated log
func (p *Pipeline) ProcessSession(ctx context.Context, session model.Session) (*SessionResult, error) {
	formatted, err := p.FormatEvents(ctx, session)
	if err != nil {
		return nil, err
	}

	res := &SessionResult{FormatResult: formatted}

	if session.HasTriggers() {
		if err := p.validateTriggers(ctx, session, res); err != nil {
			return nil, err
		}
	}

	res.Report = p.buildReport(res)

	slog.Info("session processed",
		"session", session.ID,
		"valid_percent", fmt.Sprintf("%.2f", res.Report.Score.ValidPercent),
		"accepted", res.Report.Counts.Accepted,
		"rejected", res.Report.Counts.Rejected,
		"rejected_sentences", len(res.Report.RejectedSentences))

	return res, nil
}

func (p *Pipeline) validateTriggers(ctx context.Context, session model.Session, res *SessionResult) error {
	original, err := p.loader.LoadTriggers(session.TriggersPath)
	if err != nil {
		return &SessionError{Session: session.ID, Stage: StageTriggers, Err: err}
	}

	var resampled []model.DeviceEvent
	if session.ResampledPath != "" {
		resampled, err = p.loader.LoadTriggers(session.ResampledPath)
		if err != nil {
			return &SessionError{Session: session.ID, Stage: StageTriggers, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	validation, err := p.validator.Validate(original, resampled, res.Annotation.Events)
	if err != nil {
		return &SessionError{Session: session.ID, Stage: StageValidate, Err: err}
	}
	res.Validation = validation

	res.Filtered = validate.Simplify(validation.Pairs)
	if p.config.Validation.CropToWords {
		res.Filtered = validate.Crop(res.Filtered)
	}
	return nil
}

func (p *Pipeline) buildReport(res *SessionResult) *model.Report {
	words := 0
	for _, ev := range res.Normalized.Events {
		if ev.Category == model.CategoryWord {
			words++
		}
	}

	counts := model.Counts{
		RawRows:         res.RawRows,
		Events:          len(res.Normalized.Events),
		IgnoredClusters: len(res.Normalized.Ignored),
		WordEvents:      words,
		BoundTokens:     res.Binding.Bound,
		UnboundTokens:   res.Binding.Unbound,
	}

	report := &model.Report{
		Session:   res.Session.ID,
		CreatedAt: time.Now().UTC(),
		Inputs: model.Inputs{
			Corpus:   p.config.Corpus.Path,
			Log:      res.Session.LogPath,
			Triggers: res.Session.TriggersPath,
		},
		RejectedSentences: res.Annotation.Rejected,
	}

	if v := res.Validation; v != nil {
		counts.DeviceEvents = v.Accepted() + len(v.Rejected) + v.Skipped + v.Dropped
		counts.Accepted = v.Accepted()
		counts.Rejected = len(v.Rejected)
		counts.Skipped = v.Skipped
		counts.Dropped = v.Dropped
		counts.Cropped = len(res.Filtered)
		report.RejectedEvents = v.Rejected
	}

	report.Counts = counts
	report.Score = p.scorer.Calculate(counts, len(res.Annotation.Rejected), res.Validation != nil)
	return report
}

// Run processes a session and writes its artifacts to the output directory
func (p *Pipeline) Run(ctx context.Context, session model.Session) (*model.Report, error) {
	res, err := p.ProcessSession(ctx, session)
	if err != nil {
		return nil, err
	}

	if err := p.Render(res); err != nil {
		return nil, err
	}
	return res.Report, nil
}

// Render writes the artifacts of a processed session to the output directory
func (p *Pipeline) Render(res *SessionResult) error {
	if err := p.renderer.RenderSession(res, p.config.Output.Dir); err != nil {
		return &SessionError{Session: res.Session.ID, Stage: StageRender, Err: err}
	}
	return nil
}
