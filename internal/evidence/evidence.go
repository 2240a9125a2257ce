// Package evidence defines the session-search collaborator consumed by the
// validation pipeline, plus an HTTP client for the session search service
// and a fan-out searcher for querying multiple sources concurrently.
package evidence

import (
	"context"
	"errors"
	"time"
)

// Failure reasons the gate distinguishes. "No evidence" and "evidence
// unavailable" are handled the same way by callers that degrade gracefully,
// but the distinction is preserved for logging and diagnostics.
var (
	ErrNotFound     = errors.New("no evidence found")
	ErrIndexMissing = errors.New("evidence index missing")
	ErrTimeout      = errors.New("evidence search timed out")
)

// Query describes one evidence search request.
type Query struct {
	// Text is the search expression (typically joined keywords).
	Text string

	// Limit caps the number of snippets returned.
	Limit int

	// Days bounds the lookback window.
	Days int

	// Agent optionally filters by source agent.
	Agent string

	// Workspace optionally filters by workspace.
	Workspace string
}

// Snippet is one matching excerpt from a historical session.
type Snippet struct {
	// SessionPath identifies the transcript the snippet came from.
	SessionPath string `json:"sessionPath"`

	// Text is the matching excerpt.
	Text string `json:"snippet"`

	// Score is the search engine's relevance score.
	Score float64 `json:"score"`

	// Agent is the agent that produced the session.
	Agent string `json:"agent,omitempty"`

	// Timestamp is when the snippet was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Searcher is the evidence-search collaborator. Implementations must
// return the typed errors above where applicable so callers can tell
// "no evidence" apart from "evidence unavailable".
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Snippet, error)
}
