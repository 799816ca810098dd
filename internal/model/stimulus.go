package model

// StimulusToken is one word occurrence in the stimulus corpus
type StimulusToken struct {
	TokenID    int    `json:"token_id"`    // Dense, assigned in corpus reading order
	Form       string `json:"form"`        // Word as written in the corpus
	SentenceID int    `json:"sentence_id"` // Opaque sentence key from the corpus file
	Position   int    `json:"position"`    // 0-based position within the sentence
}

// Sentence is one corpus line in file order
type Sentence struct {
	ID    int      `json:"id"`
	Words []string `json:"words"`
}

// PositionIndex maps sentence ID -> position -> token ID
type PositionIndex map[int]map[int]int
