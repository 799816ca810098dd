package annotate

import (
	"github.com/ppiankov/stimalign/internal/model"
	"github.com/ppiankov/stimalign/internal/stimuli"
)

// BindResult reports how many resolved events received a token
type BindResult struct {
	Bound   int
	Unbound int // Sentence/position pairs absent from the position index
}

// Bind attaches token IDs to events carrying a sentence and position.
// Events are updated in place; pairs missing from the index stay unbound.
func Bind(events []model.AnnotatedEvent, idx *stimuli.Index) BindResult {
	var res BindResult
	for i := range events {
		ev := &events[i]
		if !ev.Resolved() {
			continue
		}

		id, ok := idx.TokenID(*ev.SentenceID, *ev.Position)
		if !ok {
			res.Unbound++
			continue
		}
		ev.TokenID = model.IntPtr(id)
		res.Bound++
	}
	return res
}
