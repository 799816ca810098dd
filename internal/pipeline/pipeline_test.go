package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/stimalign/internal/cache"
	"github.com/ppiankov/stimalign/internal/model"
	"github.com/ppiankov/stimalign/internal/normalize"
	"github.com/ppiankov/stimalign/internal/stimuli"
)

const testCorpus = "1 hello world\n2 good bye\n"

const testLog = "onset\tduration\tsample\ttype\tvalue\n" +
	"0.01\tn/a\t10\tPicture\tFIX\n" +
	"0.02\tn/a\t20\tPicture\t1hello\n" +
	"0.021\tn/a\t21\tPicture\t2world\n" +
	"0.04\tn/a\t40\tPicture\tFIX\n"

const testTriggers = "10\t0\t20\n20\t0\t1\n21\t0\t2\n40\t0\t20\n99\t0\t255\n"

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

type fixture struct {
	dir     string
	cfg     *model.Config
	session model.Session
}

func newFixture(t *testing.T, log string) fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := model.DefaultConfig()
	cfg.Corpus.Path = writeTemp(t, dir, "stimuli.txt", testCorpus)
	cfg.Output.Dir = filepath.Join(dir, "out")

	return fixture{
		dir: dir,
		cfg: cfg,
		session: model.Session{
			ID:      "sub-V1001",
			LogPath: writeTemp(t, dir, "sub-V1001_task-visual_events.tsv", log),
		},
	}
}

func newPipeline(t *testing.T, cfg *model.Config, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(cfg, opts...)
	require.NoError(t, err)
	return p
}

func TestFormatEvents_EndToEnd(t *testing.T) {
	f := newFixture(t, testLog)
	p := newPipeline(t, f.cfg)

	res, err := p.FormatEvents(context.Background(), f.session)
	require.NoError(t, err)

	events := res.Annotation.Events
	require.Len(t, events, 4)
	assert.Equal(t, model.CategoryFixation, events[0].Category)
	assert.Equal(t, model.CategoryFixation, events[3].Category)

	for i, ev := range events[1:3] {
		require.True(t, ev.Resolved())
		assert.Equal(t, 1, *ev.SentenceID)
		assert.Equal(t, i, *ev.Position)
		assert.Equal(t, i, ev.TokenOr(-1))
	}
	assert.Empty(t, res.Annotation.Rejected)
	assert.Equal(t, 2, res.Binding.Bound)
	assert.Equal(t, 4, res.RawRows)
}

func TestFormatEvents_CleanEventsGolden(t *testing.T) {
	f := newFixture(t, testLog)
	p := newPipeline(t, f.cfg)

	res, err := p.FormatEvents(context.Background(), f.session)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCleanEvents(&buf, res.Annotation.Events))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "clean_events", buf.Bytes())
}

func TestProcessSession_WithTriggers(t *testing.T) {
	f := newFixture(t, testLog)
	f.session.TriggersPath = writeTemp(t, f.dir, "sub-V1001_triggers.tsv", testTriggers)
	p := newPipeline(t, f.cfg)

	res, err := p.ProcessSession(context.Background(), f.session)
	require.NoError(t, err)
	require.NotNil(t, res.Validation)

	c := res.Report.Counts
	assert.Equal(t, 5, c.DeviceEvents)
	assert.Equal(t, 4, c.Accepted)
	assert.Equal(t, 0, c.Rejected)
	assert.Equal(t, 1, c.Skipped)
	assert.Equal(t, 2, c.Cropped)
	assert.Equal(t, 100.0, res.Report.Score.ValidPercent)
	assert.Equal(t, "high", res.Report.Score.Confidence)

	// Word codes collapse to 1; token space carries the token IDs
	require.Len(t, res.Filtered, 2)
	assert.Equal(t, model.DeviceEvent{Sample: 20, Code: 1}, res.Filtered[0].Device)
	assert.Equal(t, model.DeviceEvent{Sample: 21, Code: 1}, res.Filtered[1].Device)
	assert.Equal(t, 0, res.Filtered[0].Token.Code)
	assert.Equal(t, 1, res.Filtered[1].Token.Code)
}

func TestProcessSession_CropDisabled(t *testing.T) {
	f := newFixture(t, testLog)
	f.cfg.Validation.CropToWords = false
	f.session.TriggersPath = writeTemp(t, f.dir, "sub-V1001_triggers.tsv", testTriggers)
	p := newPipeline(t, f.cfg)

	res, err := p.ProcessSession(context.Background(), f.session)
	require.NoError(t, err)
	assert.Len(t, res.Filtered, 4)
}

func TestProcessSession_RejectedTrigger(t *testing.T) {
	f := newFixture(t, testLog)
	f.session.TriggersPath = writeTemp(t, f.dir, "t.tsv", "10\t0\t20\n30\t0\t40\n")
	p := newPipeline(t, f.cfg)

	res, err := p.ProcessSession(context.Background(), f.session)
	require.NoError(t, err)

	require.Len(t, res.Report.RejectedEvents, 1)
	assert.Equal(t, model.RejectNoLogEntry, res.Report.RejectedEvents[0].Reason)
	assert.Equal(t, 50.0, res.Report.Score.ValidPercent)
	assert.Equal(t, "low", res.Report.Score.Confidence)
}

func TestProcessSession_WithoutTriggers(t *testing.T) {
	f := newFixture(t, testLog)
	p := newPipeline(t, f.cfg)

	res, err := p.ProcessSession(context.Background(), f.session)
	require.NoError(t, err)

	assert.Nil(t, res.Validation)
	assert.Zero(t, res.Report.Counts.DeviceEvents)
	require.NotEmpty(t, res.Report.Score.Signals)
	assert.Equal(t, model.SignalNoTriggers, res.Report.Score.Signals[len(res.Report.Score.Signals)-1].Type)
}

func TestProcessSession_UnmatchedSentence(t *testing.T) {
	log := "sample\ttype\tvalue\n" +
		"10\tPicture\tFIX\n" +
		"20\tPicture\t1Zzyx\n" +
		"22\tPicture\t2Qqrp\n" +
		"40\tPicture\tFIX\n"
	f := newFixture(t, log)
	p := newPipeline(t, f.cfg)

	res, err := p.ProcessSession(context.Background(), f.session)
	require.NoError(t, err)

	assert.Equal(t, []string{"Zzyx Qqrp"}, res.Report.RejectedSentences)
	assert.Zero(t, res.Report.Counts.BoundTokens)
	assert.Equal(t, 2, res.Report.Counts.WordEvents)
}

func TestFormatEvents_UnrecognizedRowIsSessionError(t *testing.T) {
	f := newFixture(t, "sample\ttype\tvalue\n10\tPicture\t???\n")
	p := newPipeline(t, f.cfg)

	_, err := p.FormatEvents(context.Background(), f.session)
	require.Error(t, err)

	var serr *SessionError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, StageNormalize, serr.Stage)
	assert.Equal(t, "sub-V1001", serr.Session)
	assert.True(t, errors.Is(err, normalize.ErrUnrecognizedRow))
}

func TestFormatEvents_MalformedCorpus(t *testing.T) {
	f := newFixture(t, testLog)
	f.cfg.Corpus.Path = writeTemp(t, f.dir, "bad.txt", "hello world\n")
	p := newPipeline(t, f.cfg)

	_, err := p.FormatEvents(context.Background(), f.session)

	var serr *SessionError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, StageCorpus, serr.Stage)
	assert.True(t, errors.Is(err, stimuli.ErrCorpusFormat))
}

func TestFormatEvents_MissingLog(t *testing.T) {
	f := newFixture(t, testLog)
	f.session.LogPath = filepath.Join(f.dir, "absent.tsv")
	p := newPipeline(t, f.cfg)

	_, err := p.FormatEvents(context.Background(), f.session)

	var serr *SessionError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, StageLog, serr.Stage)
}

func TestCorpus_StoresIndexInCache(t *testing.T) {
	f := newFixture(t, testLog)
	c := cache.NewMemoryCache(0, 0)
	p := newPipeline(t, f.cfg, WithCache(c))

	idx, _, err := p.Corpus(context.Background())
	require.NoError(t, err)

	data, ok := c.Get(cache.CacheKey([]byte(testCorpus)))
	require.True(t, ok)

	decoded, err := stimuli.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, idx.Tokens(), decoded.Tokens())
}

func TestCorpus_ReadsIndexFromCache(t *testing.T) {
	f := newFixture(t, testLog)

	// Seed the cache under the real corpus key with a different index
	seeded, err := stimuli.Parse("7 other words here\n")
	require.NoError(t, err)
	data, err := seeded.MarshalJSON()
	require.NoError(t, err)

	c := cache.NewMemoryCache(0, 0)
	require.NoError(t, c.Set(cache.CacheKey([]byte(testCorpus)), data, 0))

	p := newPipeline(t, f.cfg, WithCache(c))
	idx, _, err := p.Corpus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, idx.Len())
	id, ok := idx.TokenID(7, 0)
	assert.True(t, ok)
	assert.Equal(t, 0, id)
}

func TestCorpus_BuiltOncePerContent(t *testing.T) {
	f := newFixture(t, testLog)
	p := newPipeline(t, f.cfg)

	a, ma, err := p.Corpus(context.Background())
	require.NoError(t, err)
	b, mb, err := p.Corpus(context.Background())
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Same(t, ma, mb)
}

func TestNew_InvalidClassifier(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Classifier.BlockPattern = "("

	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "classifier rules"))
}

func TestRun_WritesArtifacts(t *testing.T) {
	f := newFixture(t, testLog)
	f.cfg.Output.Markdown = true
	f.session.TriggersPath = writeTemp(t, f.dir, "sub-V1001_triggers.tsv", testTriggers)
	p := newPipeline(t, f.cfg)

	report, err := p.Run(context.Background(), f.session)
	require.NoError(t, err)

	for _, kind := range []string{OutputCleanEvents, OutputDevice, OutputTokens, OutputJSON, OutputMarkdown} {
		path, ok := report.Outputs[kind]
		require.True(t, ok, kind)
		assert.FileExists(t, path)
	}
	assert.NotContains(t, report.Outputs, OutputRejected)

	tokens, err := os.ReadFile(report.Outputs[OutputTokens])
	require.NoError(t, err)
	assert.Equal(t, "sample\tduration\tcode\n20\t0\t0\n21\t0\t1\n", string(tokens))
}
