// Package validation gates proposed rules before they enter a playbook.
//
// Only add deltas are validated; every other delta type bypasses the
// pipeline. A proposal passes through up to two stages: a cheap evidence
// gate over historical session search results, and an LLM verdict stage
// reached only when the evidence is ambiguous. Every branch appends to a
// decision log that is returned with the result, giving a full audit trail
// regardless of which stage decided.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/evidence"
	"github.com/fyrsmithlabs/playbookd/internal/llm"
	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

// Phase labels for decision log entries.
const (
	PhaseSkip = "skip"
	PhaseGate = "evidence-gate"
	PhaseLLM  = "llm"
)

// Actions for decision log entries.
const (
	ActionAccepted = "accepted"
	ActionRejected = "rejected"
	ActionSkipped  = "skipped"
)

// previewLength bounds the content preview in log entries.
const previewLength = 80

// refineConfidencePenalty scales confidence when REFINE is normalized to
// ACCEPT_WITH_CAUTION: a refined rule is accepted with reduced trust.
const refineConfidencePenalty = 0.8

// Config holds validation pipeline thresholds.
type Config struct {
	// Enabled gates the whole pipeline; disabled proposals are trivially
	// accepted as drafts.
	Enabled bool `koanf:"enabled"`

	// MinContentLength below which proposals skip validation (accepted
	// as draft).
	MinContentLength int `koanf:"min_content_length"`

	// LookbackDays bounds the evidence search window.
	LookbackDays int `koanf:"lookback_days"`

	// EvidenceLimit caps snippets per gate query.
	EvidenceLimit int `koanf:"evidence_limit"`

	// AutoAcceptSuccessSessions auto-accepts at or above this many
	// success sessions with zero failures.
	AutoAcceptSuccessSessions int `koanf:"auto_accept_success_sessions"`

	// AutoRejectFailureSessions auto-rejects at or above this many
	// failure sessions with zero successes.
	AutoRejectFailureSessions int `koanf:"auto_reject_failure_sessions"`

	// LLMSampleLimit caps the extra evidence snippets shown to the LLM.
	LLMSampleLimit int `koanf:"llm_sample_limit"`
}

// DefaultConfig returns the standard validation thresholds.
func DefaultConfig() Config {
	return Config{
		Enabled:                   true,
		MinContentLength:          10,
		LookbackDays:              90,
		EvidenceLimit:             20,
		AutoAcceptSuccessSessions: 5,
		AutoRejectFailureSessions: 3,
		LLMSampleLimit:            5,
	}
}

// DecisionLogEntry is one audit record from the pipeline. The log is an
// accumulator value threaded through every branch, never a side channel.
type DecisionLogEntry struct {
	Timestamp      time.Time         `json:"timestamp"`
	Phase          string            `json:"phase"`
	Action         string            `json:"action"`
	Reason         string            `json:"reason"`
	ContentPreview string            `json:"contentPreview"`
	Details        map[string]string `json:"details,omitempty"`
}

// GateResult summarizes the evidence gate stage.
type GateResult struct {
	// Keywords extracted from the proposal.
	Keywords []string `json:"keywords"`

	// SuccessSessions and FailureSessions count distinct classified
	// sessions; MixedSessions had both signals.
	SuccessSessions int `json:"successSessions"`
	FailureSessions int `json:"failureSessions"`
	MixedSessions   int `json:"mixedSessions"`

	// Passed is false only on auto-reject.
	Passed bool `json:"passed"`

	// SuggestedState is set when the gate alone decides (draft/active).
	SuggestedState playbook.State `json:"suggestedState,omitempty"`

	// Reason explains the gate decision.
	Reason string `json:"reason"`
}

// Result is the pipeline's structured decision.
type Result struct {
	// Valid is whether the proposal may enter the playbook.
	Valid bool `json:"valid"`

	// SuggestedState is draft or active when Valid.
	SuggestedState playbook.State `json:"suggestedState,omitempty"`

	// Gate is present when the evidence gate ran.
	Gate *GateResult `json:"gate,omitempty"`

	// Verdict is present when the LLM stage ran.
	Verdict *llm.VerdictResult `json:"verdict,omitempty"`

	// DecisionLog is the ordered audit trail across all branches.
	DecisionLog []DecisionLogEntry `json:"decisionLog"`
}

// Pipeline validates proposed add deltas.
type Pipeline struct {
	cfg      Config
	searcher evidence.Searcher
	verdict  llm.VerdictClient
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the pipeline's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a validation pipeline. Searcher and verdict client
// may be nil, in which case the respective stages degrade gracefully
// (missing evidence reads as "no evidence", missing verdict accepts as
// draft).
func NewPipeline(cfg Config, searcher evidence.Searcher, verdict llm.VerdictClient, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:      cfg,
		searcher: searcher,
		verdict:  verdict,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidateDelta decides whether a proposed add delta may enter the
// playbook, and in which state. Non-add deltas bypass validation and are
// trivially valid.
func (p *Pipeline) ValidateDelta(ctx context.Context, delta playbook.Delta) Result {
	add, ok := delta.(playbook.AddDelta)
	if !ok {
		return Result{Valid: true}
	}
	return p.validateAdd(ctx, add)
}

func (p *Pipeline) validateAdd(ctx context.Context, add playbook.AddDelta) Result {
	var log []DecisionLogEntry
	preview := contentPreview(add.Content)

	if !p.cfg.Enabled {
		log = p.append(log, PhaseSkip, ActionSkipped, "validation disabled", preview, nil)
		return Result{Valid: true, SuggestedState: playbook.StateDraft, DecisionLog: log}
	}
	if utf8.RuneCountInString(add.Content) < p.cfg.MinContentLength {
		log = p.append(log, PhaseSkip, ActionSkipped, "content below minimum length", preview, nil)
		return Result{Valid: true, SuggestedState: playbook.StateDraft, DecisionLog: log}
	}

	gate, snippets, log := p.runGate(ctx, add, preview, log)
	if !gate.Passed {
		return Result{Valid: false, Gate: gate, DecisionLog: log}
	}
	if gate.SuggestedState != "" {
		return Result{Valid: true, SuggestedState: gate.SuggestedState, Gate: gate, DecisionLog: log}
	}

	// Ambiguous evidence: consult the LLM with a small sample.
	verdict, log := p.runLLM(ctx, add, snippets, preview, log)
	if verdict == nil {
		// Verdict collaborator unavailable after retries and fallback;
		// degrade to draft rather than losing the proposal.
		return Result{Valid: true, SuggestedState: playbook.StateDraft, Gate: gate, DecisionLog: log}
	}

	valid := verdict.Verdict == llm.VerdictAccept || verdict.Verdict == llm.VerdictAcceptWithCaution
	state := playbook.State("")
	if valid {
		state = playbook.StateDraft
		if verdict.Verdict == llm.VerdictAccept {
			state = playbook.StateActive
		}
	}
	return Result{Valid: valid, SuggestedState: state, Gate: gate, Verdict: verdict, DecisionLog: log}
}

// runGate executes the evidence gate and returns the gate result, the raw
// snippets (for the LLM sample) and the grown decision log.
func (p *Pipeline) runGate(ctx context.Context, add playbook.AddDelta, preview string, log []DecisionLogEntry) (*GateResult, []evidence.Snippet, []DecisionLogEntry) {
	gate := &GateResult{Keywords: extractKeywords(add.Content), Passed: true}

	if len(gate.Keywords) == 0 {
		gate.SuggestedState = playbook.StateDraft
		gate.Reason = "no salient keywords, no evidence either way"
		log = p.append(log, PhaseGate, ActionAccepted, gate.Reason, preview, nil)
		return gate, nil, log
	}

	var snippets []evidence.Snippet
	if p.searcher != nil {
		var err error
		snippets, err = p.searcher.Search(ctx, evidence.Query{
			Text:  strings.Join(gate.Keywords, " "),
			Limit: p.cfg.EvidenceLimit,
			Days:  p.cfg.LookbackDays,
		})
		if errors.Is(err, evidence.ErrNotFound) {
			snippets, err = nil, nil
		}
		if err != nil {
			// Evidence unavailable reads the same as evidence absent:
			// pass as draft rather than failing the proposal.
			p.logger.Debug("evidence search unavailable", zap.Error(err))
			gate.SuggestedState = playbook.StateDraft
			gate.Reason = "evidence unavailable"
			log = p.append(log, PhaseGate, ActionAccepted, gate.Reason, preview,
				map[string]string{"error": err.Error()})
			return gate, nil, log
		}
	}
	if len(snippets) == 0 {
		gate.SuggestedState = playbook.StateDraft
		gate.Reason = "no matching sessions"
		log = p.append(log, PhaseGate, ActionAccepted, gate.Reason, preview, nil)
		return gate, nil, log
	}

	// One vote per session, not per snippet.
	bySession := make(map[string][]string)
	for _, s := range snippets {
		bySession[s.SessionPath] = append(bySession[s.SessionPath], s.Text)
	}
	for _, texts := range bySession {
		switch classifySession(texts) {
		case signalSuccess:
			gate.SuccessSessions++
		case signalFailure:
			gate.FailureSessions++
		case signalMixed:
			gate.MixedSessions++
		}
	}
	details := map[string]string{
		"success_sessions": fmt.Sprintf("%d", gate.SuccessSessions),
		"failure_sessions": fmt.Sprintf("%d", gate.FailureSessions),
		"mixed_sessions":   fmt.Sprintf("%d", gate.MixedSessions),
	}

	// Mixed sessions block both auto decisions: any session pulling in
	// two directions means the evidence needs the LLM's judgement.
	switch {
	case gate.SuccessSessions >= p.cfg.AutoAcceptSuccessSessions && gate.FailureSessions == 0 && gate.MixedSessions == 0:
		gate.SuggestedState = playbook.StateActive
		gate.Reason = fmt.Sprintf("%d success sessions, no failures", gate.SuccessSessions)
		log = p.append(log, PhaseGate, ActionAccepted, gate.Reason, preview, details)
	case gate.FailureSessions >= p.cfg.AutoRejectFailureSessions && gate.SuccessSessions == 0 && gate.MixedSessions == 0:
		gate.Passed = false
		gate.Reason = fmt.Sprintf("%d sessions carry a failure signal, none succeed", gate.FailureSessions)
		log = p.append(log, PhaseGate, ActionRejected, gate.Reason, preview, details)
	default:
		gate.Reason = "evidence ambiguous, deferring to LLM"
		log = p.append(log, PhaseGate, ActionAccepted, gate.Reason, preview, details)
	}
	return gate, snippets, log
}

// runLLM executes the verdict stage. A nil return means the collaborator
// was unavailable and the caller should degrade.
func (p *Pipeline) runLLM(ctx context.Context, add playbook.AddDelta, snippets []evidence.Snippet, preview string, log []DecisionLogEntry) (*llm.VerdictResult, []DecisionLogEntry) {
	if p.verdict == nil {
		log = p.append(log, PhaseLLM, ActionAccepted, "verdict collaborator not configured, accepting as draft", preview, nil)
		return nil, log
	}

	verdict, err := p.verdict.Validate(ctx, add.Content, formatEvidence(snippets, p.cfg.LLMSampleLimit))
	if err != nil {
		p.logger.Warn("LLM validation unavailable", zap.Error(err))
		log = p.append(log, PhaseLLM, ActionAccepted, "verdict collaborator unavailable, accepting as draft", preview,
			map[string]string{"error": err.Error()})
		return nil, log
	}

	// A refined rule is accepted, but with reduced trust.
	if verdict.Verdict == llm.VerdictRefine {
		verdict.Verdict = llm.VerdictAcceptWithCaution
		verdict.Confidence *= refineConfidencePenalty
	}

	action := ActionRejected
	if verdict.Verdict == llm.VerdictAccept || verdict.Verdict == llm.VerdictAcceptWithCaution {
		action = ActionAccepted
	}
	log = p.append(log, PhaseLLM, action, verdict.Reason, preview, map[string]string{
		"verdict":    string(verdict.Verdict),
		"confidence": fmt.Sprintf("%.2f", verdict.Confidence),
	})
	return &verdict, log
}

func (p *Pipeline) append(log []DecisionLogEntry, phase, action, reason, preview string, details map[string]string) []DecisionLogEntry {
	return append(log, DecisionLogEntry{
		Timestamp:      p.now(),
		Phase:          phase,
		Action:         action,
		Reason:         reason,
		ContentPreview: preview,
		Details:        details,
	})
}

// formatEvidence renders up to limit snippets as text for the LLM.
func formatEvidence(snippets []evidence.Snippet, limit int) string {
	if len(snippets) == 0 {
		return ""
	}
	if limit > 0 && len(snippets) > limit {
		snippets = snippets[:limit]
	}
	var b strings.Builder
	for i, s := range snippets {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "[%s] %s", s.SessionPath, s.Text)
	}
	return b.String()
}

// contentPreview truncates content for log entries.
func contentPreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}
