package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/stimalign/internal/model"
	"github.com/ppiankov/stimalign/internal/stimuli"
)

func mustIndex(t *testing.T, corpus string) *stimuli.Index {
	t.Helper()
	idx, err := stimuli.Parse(corpus)
	require.NoError(t, err)
	return idx
}

func word(sample int, form string) model.NormalizedEvent {
	return model.NormalizedEvent{Sample: sample, Category: model.CategoryWord, Form: form}
}

func fixation(sample int) model.NormalizedEvent {
	return model.NormalizedEvent{Sample: sample, Category: model.CategoryFixation}
}

func TestFindSentence_CaseInsensitive(t *testing.T) {
	m := NewMatcher(mustIndex(t, "1 the cat sat\n"))

	id, ok := m.FindSentence([]string{"The", "Cat"})
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestFindSentence_UnicodeFolding(t *testing.T) {
	m := NewMatcher(mustIndex(t, "3 Één huis\n"))

	id, ok := m.FindSentence([]string{"één", "HUIS"})
	require.True(t, ok)
	assert.Equal(t, 3, id)
}

func TestFindSentence_FirstMatchInFileOrderWins(t *testing.T) {
	m := NewMatcher(mustIndex(t, "8 de man loopt\n2 de man\n"))

	id, ok := m.FindSentence([]string{"de", "man"})
	require.True(t, ok)
	assert.Equal(t, 8, id)
}

func TestFindSentence_PrefixOnlyComparison(t *testing.T) {
	m := NewMatcher(mustIndex(t, "1 de man\n"))

	// Longer run than the sentence still matches on the common prefix
	id, ok := m.FindSentence([]string{"de", "man", "loopt"})
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestFindSentence_NoMatch(t *testing.T) {
	m := NewMatcher(mustIndex(t, "1 de man\n"))

	_, ok := m.FindSentence([]string{"het", "man"})
	assert.False(t, ok)
}

func TestAnnotate_MatchedRun(t *testing.T) {
	m := NewMatcher(mustIndex(t, "1 the cat sat\n"))

	events := []model.NormalizedEvent{
		fixation(10),
		word(20, "The"),
		word(30, "Cat"),
		fixation(40),
	}

	ann := m.Annotate(events)
	require.Len(t, ann.Events, 4)
	assert.Empty(t, ann.Rejected)
	assert.Equal(t, 1, ann.Matched)

	assert.False(t, ann.Events[0].Resolved())
	for i, evIdx := range []int{1, 2} {
		ev := ann.Events[evIdx]
		require.True(t, ev.Resolved())
		assert.Equal(t, 1, *ev.SentenceID)
		assert.Equal(t, i, *ev.Position)
	}
}

func TestAnnotate_UnmatchedRunIsRejected(t *testing.T) {
	idx := mustIndex(t, "1 hello world\n2 good bye\n")
	m := NewMatcher(idx)

	ann := m.Annotate([]model.NormalizedEvent{
		fixation(1),
		word(2, "Zzyx"),
		word(3, "Qqrp"),
	})
	Bind(ann.Events, idx)

	assert.Equal(t, []string{"Zzyx Qqrp"}, ann.Rejected)
	for _, ev := range ann.Events {
		assert.Nil(t, ev.TokenID)
		assert.False(t, ev.Resolved())
	}
}

func TestAnnotate_WordsBeforeFirstFixationFormARun(t *testing.T) {
	m := NewMatcher(mustIndex(t, "4 goede morgen\n"))

	ann := m.Annotate([]model.NormalizedEvent{
		word(5, "goede"),
		word(6, "morgen"),
		fixation(7),
	})

	require.True(t, ann.Events[1].Resolved())
	assert.Equal(t, 4, *ann.Events[1].SentenceID)
	assert.Equal(t, 1, *ann.Events[1].Position)
}

func TestAnnotate_NonWordEventsDoNotBreakRuns(t *testing.T) {
	m := NewMatcher(mustIndex(t, "1 a b c\n"))

	ann := m.Annotate([]model.NormalizedEvent{
		fixation(1),
		word(2, "a"),
		{Sample: 3, Category: model.CategoryEmpty},
		word(4, "b"),
		{Sample: 5, Category: model.CategoryResponse1},
		word(6, "c"),
	})

	assert.Equal(t, 1, ann.Matched)
	assert.Equal(t, 2, *ann.Events[5].Position)
	assert.False(t, ann.Events[2].Resolved())
}

func TestAnnotate_EmptyRunsAreSkipped(t *testing.T) {
	m := NewMatcher(mustIndex(t, "1 a\n"))

	ann := m.Annotate([]model.NormalizedEvent{fixation(1), fixation(2)})
	assert.Empty(t, ann.Rejected)
	assert.Zero(t, ann.Matched)
}

func TestBind_EndToEnd(t *testing.T) {
	idx := mustIndex(t, "1 hello world\n2 good bye\n")
	m := NewMatcher(idx)

	ann := m.Annotate([]model.NormalizedEvent{
		fixation(10),
		word(20, "hello"),
		word(21, "world"),
		fixation(40),
	})
	res := Bind(ann.Events, idx)

	assert.Equal(t, BindResult{Bound: 2}, res)
	assert.Empty(t, ann.Rejected)
	assert.Equal(t, 0, *ann.Events[1].TokenID)
	assert.Equal(t, 1, *ann.Events[2].TokenID)
}

func TestBind_PositionBeyondSentenceStaysUnbound(t *testing.T) {
	idx := mustIndex(t, "1 de man\n")
	m := NewMatcher(idx)

	ann := m.Annotate([]model.NormalizedEvent{
		word(1, "de"),
		word(2, "man"),
		word(3, "loopt"),
	})
	res := Bind(ann.Events, idx)

	assert.Equal(t, 2, res.Bound)
	assert.Equal(t, 1, res.Unbound)
	assert.True(t, ann.Events[2].Resolved())
	assert.Nil(t, ann.Events[2].TokenID)
	assert.Equal(t, model.UnresolvedToken, ann.Events[2].TokenOr(model.UnresolvedToken))
}
