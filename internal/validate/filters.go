package validate

import "github.com/ppiankov/stimalign/internal/model"

// Simplify collapses the word sub-codes (every code below the block code)
// into the canonical word code. The input is not modified.
func Simplify(pairs []model.ValidatedPair) []model.ValidatedPair {
	out := make([]model.ValidatedPair, len(pairs))
	for i, p := range pairs {
		if p.Device.Code < CodeBlock {
			p.Device.Code = CodeWord
		}
		out[i] = p
	}
	return out
}

// Crop keeps only word pairs: the device code is a word code and the paired
// log entry, when recorded, is a word too. Word codes accepted against a
// response are dropped.
func Crop(pairs []model.ValidatedPair) []model.ValidatedPair {
	out := make([]model.ValidatedPair, 0, len(pairs))
	for _, p := range pairs {
		cat, ok := CodeCategory(p.Device.Code)
		if !ok || cat != model.CategoryWord {
			continue
		}
		if p.LogCategory != "" && p.LogCategory != model.CategoryWord {
			continue
		}
		out = append(out, p)
	}
	return out
}
