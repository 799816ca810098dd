// Package annotate resolves normalized word events against the stimulus
// corpus: runs of words between fixations are matched to corpus sentences,
// and matched (sentence, position) pairs are bound to token IDs.
package annotate

import (
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/ppiankov/stimalign/internal/model"
	"github.com/ppiankov/stimalign/internal/stimuli"
)

// Annotation is the sentence-tagged log of one session
type Annotation struct {
	Events   []model.AnnotatedEvent
	Rejected []string // Joined text of runs not found in the corpus
	Matched  int      // Runs resolved to a sentence
}

// Matcher finds corpus sentences for runs of word events
type Matcher struct {
	sentences []foldedSentence
}

type foldedSentence struct {
	id    int
	words []string
}

// run is a candidate sentence: word events between two fixations
type run struct {
	indices []int
	forms   []string
}

// NewMatcher prepares the corpus sentences for case-insensitive comparison
func NewMatcher(idx *stimuli.Index) *Matcher {
	fold := cases.Fold()
	sentences := idx.Sentences()

	m := &Matcher{sentences: make([]foldedSentence, len(sentences))}
	for i, s := range sentences {
		words := make([]string, len(s.Words))
		for j, w := range s.Words {
			words[j] = fold.String(norm.NFC.String(w))
		}
		m.sentences[i] = foldedSentence{id: s.ID, words: words}
	}
	return m
}

// FindSentence returns the first corpus sentence, in file order, whose words
// equal forms over the shorter of the two lengths.
//
// Only the common prefix is compared, so a short run can match a longer
// sentence that merely starts the same way.
func (m *Matcher) FindSentence(forms []string) (int, bool) {
	return m.find(foldAll(cases.Fold(), forms))
}

func (m *Matcher) find(folded []string) (int, bool) {
	for _, s := range m.sentences {
		n := len(folded)
		if len(s.words) < n {
			n = len(s.words)
		}

		found := true
		for i := 0; i < n; i++ {
			if s.words[i] != folded[i] {
				found = false
				break
			}
		}
		if found {
			return s.id, true
		}
	}
	return 0, false
}

// Annotate tags every word event of a matched run with its sentence and
// 0-based rank within the run
func (m *Matcher) Annotate(events []model.NormalizedEvent) *Annotation {
	ann := &Annotation{
		Events:   make([]model.AnnotatedEvent, len(events)),
		Rejected: []string{},
	}
	for i, ev := range events {
		ann.Events[i] = model.AnnotatedEvent{NormalizedEvent: ev}
	}

	fold := cases.Fold()
	for _, r := range splitRuns(events) {
		sentenceID, ok := m.find(foldAll(fold, r.forms))
		if !ok {
			rejected := strings.Join(r.forms, " ")
			ann.Rejected = append(ann.Rejected, rejected)
			slog.Debug("sentence rejected", "text", rejected)
			continue
		}

		ann.Matched++
		for pos, evIdx := range r.indices {
			ann.Events[evIdx].SentenceID = model.IntPtr(sentenceID)
			ann.Events[evIdx].Position = model.IntPtr(pos)
		}
	}

	return ann
}

// splitRuns collects word runs; fixations and both stream ends delimit runs
func splitRuns(events []model.NormalizedEvent) []run {
	var runs []run
	cur := run{}

	closeRun := func() {
		if len(cur.forms) > 0 {
			runs = append(runs, cur)
		}
		cur = run{}
	}

	for i, ev := range events {
		switch ev.Category {
		case model.CategoryFixation:
			closeRun()
		case model.CategoryWord:
			cur.indices = append(cur.indices, i)
			cur.forms = append(cur.forms, ev.Form)
		}
	}
	closeRun()

	return runs
}

func foldAll(fold cases.Caser, forms []string) []string {
	out := make([]string, len(forms))
	for i, f := range forms {
		out[i] = fold.String(norm.NFC.String(f))
	}
	return out
}
