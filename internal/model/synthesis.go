package model

// Outcome is the terminal state of one answer synthesis.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeFailed    Outcome = "failed"
)

type RetrievedPassage struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float32        `json:"score"`
}

// Source is a cited passage preview returned with an answer.
type Source struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

type SynthesisResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Outcome Outcome  `json:"-"`
}
