package validate

import "github.com/ppiankov/stimalign/internal/model"

// Trigger codes written by the presentation hardware
const (
	CodeWordFirst = 1
	CodeWordLast  = 8
	CodeBlock     = 10
	CodeOffset    = 15
	CodeFixation  = 20
	CodePause     = 30
	CodeQuestion  = 40
	CodeResponse1 = 50
	CodeResponse2 = 60
	CodeResponse3 = 70

	// CodeWord is the canonical code word sub-codes collapse to
	CodeWord = CodeWordFirst
)

var codeCategories = map[int]model.Category{
	1:             model.CategoryWord,
	2:             model.CategoryWord,
	3:             model.CategoryWord,
	4:             model.CategoryWord,
	5:             model.CategoryWord,
	6:             model.CategoryWord,
	7:             model.CategoryWord,
	8:             model.CategoryWord,
	CodeBlock:     model.CategoryBlock,
	CodeOffset:    model.CategoryOffset,
	CodeFixation:  model.CategoryFixation,
	CodePause:     model.CategoryPause,
	CodeQuestion:  model.CategoryQuestion,
	CodeResponse1: model.CategoryResponse1,
	CodeResponse2: model.CategoryResponse2,
	CodeResponse3: model.CategoryResponse3,
}

// CodeCategory maps a trigger code to its category
func CodeCategory(code int) (model.Category, bool) {
	cat, ok := codeCategories[code]
	return cat, ok
}

// overlap lists the log categories a word code may also stand for.
// Response buttons reuse codes 1-3 on the trigger line, so a word code is
// only read as a response when the log entry at that sample says so.
var overlap = map[int]model.Category{
	1: model.CategoryResponse1,
	2: model.CategoryResponse2,
	3: model.CategoryResponse3,
}

// overlaps reports whether code may pair with a log entry of category cat
func overlaps(code int, cat model.Category) bool {
	alt, ok := overlap[code]
	return ok && alt == cat
}

// silent lists (code category, log category) pairs that are deliberate
// non-events: blank trials still pulse a word code
var silent = map[model.Category]map[model.Category]bool{
	model.CategoryWord: {model.CategoryEmpty: true},
}

func isSilent(codeCat, logCat model.Category) bool {
	return silent[codeCat][logCat]
}
