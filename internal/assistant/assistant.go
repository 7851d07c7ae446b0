// Package assistant asks an external model which search hits actually help
// with a stated information need.
package assistant

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no assistant is configured or the circuit
// is open.
var ErrUnavailable = errors.New("relevance assistant unavailable")

// Candidate is one search hit offered to the assistant.
type Candidate struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations"`
}

// Request asks for verdicts on a set of candidates.
type Request struct {
	Query             string
	InformationNeeded string
	Reason            string
	Candidates        []Candidate
}

// Verdict is the assistant's opinion of one candidate. Score is in [0, 1].
type Verdict struct {
	ID     string  `json:"id"`
	Useful bool    `json:"useful"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

// Scorer rates candidates against an information need.
type Scorer interface {
	Score(ctx context.Context, req Request) ([]Verdict, error)
}
