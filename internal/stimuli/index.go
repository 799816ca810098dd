// Package stimuli builds the token table and position index of a stimulus
// corpus. Each corpus line reads "<sentence-id> <word> <word> ...".
package stimuli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ppiankov/stimalign/internal/model"
)

// ErrCorpusFormat is returned for any corpus that cannot be indexed
var ErrCorpusFormat = errors.New("corpus format error")

// FormatError identifies the corpus line that aborted indexing
type FormatError struct {
	Line   int
	Text   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("corpus line %d %q: %s", e.Line, e.Text, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return ErrCorpusFormat
}

// Index is the immutable token table of one corpus
type Index struct {
	tokens    []model.StimulusToken
	sentences []model.Sentence
	positions model.PositionIndex
}

// builder owns the token counter while a corpus is indexed
type builder struct {
	next int
	idx  *Index
}

func newBuilder() *builder {
	return &builder{
		idx: &Index{positions: make(model.PositionIndex)},
	}
}

func (b *builder) addSentence(id int, words []string) {
	b.idx.sentences = append(b.idx.sentences, model.Sentence{ID: id, Words: words})

	byPos := make(map[int]int, len(words))
	for pos, word := range words {
		b.idx.tokens = append(b.idx.tokens, model.StimulusToken{
			TokenID:    b.next,
			Form:       word,
			SentenceID: id,
			Position:   pos,
		})
		byPos[pos] = b.next
		b.next++
	}
	b.idx.positions[id] = byPos
}

func (b *builder) build() *Index {
	idx := b.idx
	b.idx = nil
	return idx
}

// Parse indexes corpus text
func Parse(text string) (*Index, error) {
	return Build(strings.NewReader(text))
}

// Build reads a corpus and assigns token IDs in reading order.
// Any malformed line aborts the whole corpus.
func Build(r io.Reader) (*Index, error) {
	b := newBuilder()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, &FormatError{Line: lineNo, Text: line, Reason: "missing leading sentence number"}
		}
		if _, dup := b.idx.positions[id]; dup {
			return nil, &FormatError{Line: lineNo, Text: line, Reason: fmt.Sprintf("duplicate sentence number %d", id)}
		}

		b.addSentence(id, fields[1:])
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	return b.build(), nil
}

// Len returns the number of tokens
func (x *Index) Len() int {
	return len(x.tokens)
}

// Tokens returns a copy of the token table in ID order
func (x *Index) Tokens() []model.StimulusToken {
	out := make([]model.StimulusToken, len(x.tokens))
	copy(out, x.tokens)
	return out
}

// Token returns the token with the given ID
func (x *Index) Token(id int) (model.StimulusToken, bool) {
	if id < 0 || id >= len(x.tokens) {
		return model.StimulusToken{}, false
	}
	return x.tokens[id], true
}

// Form returns the word form of a token
func (x *Index) Form(id int) (string, bool) {
	tok, ok := x.Token(id)
	return tok.Form, ok
}

// TokenID looks up the token at a sentence position
func (x *Index) TokenID(sentenceID, position int) (int, bool) {
	byPos, ok := x.positions[sentenceID]
	if !ok {
		return 0, false
	}
	id, ok := byPos[position]
	return id, ok
}

// Sentences returns the corpus sentences in file order
func (x *Index) Sentences() []model.Sentence {
	out := make([]model.Sentence, len(x.sentences))
	copy(out, x.sentences)
	return out
}

// PositionIndex returns a copy of the sentence/position lookup
func (x *Index) PositionIndex() model.PositionIndex {
	out := make(model.PositionIndex, len(x.positions))
	for sid, byPos := range x.positions {
		cp := make(map[int]int, len(byPos))
		for pos, id := range byPos {
			cp[pos] = id
		}
		out[sid] = cp
	}
	return out
}

type indexJSON struct {
	Sentences []model.Sentence `json:"sentences"`
}

// MarshalJSON encodes the index by its sentences; token IDs are rebuilt on
// decode, so the encoding cannot disagree with the counter.
func (x *Index) MarshalJSON() ([]byte, error) {
	return json.Marshal(indexJSON{Sentences: x.sentences})
}

// Decode rebuilds an index from MarshalJSON output
func Decode(data []byte) (*Index, error) {
	var raw indexJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}

	b := newBuilder()
	for i, s := range raw.Sentences {
		if _, dup := b.idx.positions[s.ID]; dup {
			return nil, &FormatError{Line: i + 1, Text: strconv.Itoa(s.ID), Reason: "duplicate sentence number"}
		}
		b.addSentence(s.ID, s.Words)
	}
	return b.build(), nil
}
