// Package llm implements the LLM-verdict and LLM-reflector collaborators:
// HTTP clients for Anthropic and OpenAI completion APIs, a retry policy
// with exponential backoff and transient-error classification, and a
// provider fallback chain that tries candidates in order until one
// succeeds.
package llm

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

// Verdict is the LLM's judgement on a proposed rule.
type Verdict string

const (
	VerdictAccept            Verdict = "ACCEPT"
	VerdictReject            Verdict = "REJECT"
	VerdictRefine            Verdict = "REFINE"
	VerdictAcceptWithCaution Verdict = "ACCEPT_WITH_CAUTION"
)

// Common errors for LLM operations.
var (
	ErrNoProviders    = errors.New("no LLM providers with credentials configured")
	ErrEmptyResponse  = errors.New("empty response from LLM")
	ErrInvalidVerdict = errors.New("LLM returned an unrecognized verdict")
)

// VerdictResult is the structured validation judgement.
type VerdictResult struct {
	// Verdict is ACCEPT, REJECT, REFINE or ACCEPT_WITH_CAUTION.
	Verdict Verdict `json:"verdict"`

	// Confidence is the LLM's self-reported certainty in [0,1].
	Confidence float64 `json:"confidence"`

	// Reason is a short justification.
	Reason string `json:"reason"`

	// SupportingEvidence quotes evidence consistent with the rule.
	SupportingEvidence []string `json:"supportingEvidence,omitempty"`

	// ContradictingEvidence quotes evidence against the rule.
	ContradictingEvidence []string `json:"contradictingEvidence,omitempty"`
}

// VerdictClient is the LLM-verdict collaborator.
type VerdictClient interface {
	// Validate judges a proposed rule against formatted evidence text.
	Validate(ctx context.Context, proposedRule, evidenceText string) (VerdictResult, error)
}

// Reflector is the LLM collaborator that turns a session diary into
// proposed playbook deltas.
type Reflector interface {
	// ExtractDeltas proposes at most MaxDeltasPerCall deltas from a diary.
	ExtractDeltas(ctx context.Context, diaryText, existingBulletsText, evidenceText string) ([]playbook.Delta, error)
}

// MaxDeltasPerCall bounds a single reflector extraction.
const MaxDeltasPerCall = 20
