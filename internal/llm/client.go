package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

// completer is the minimal surface a provider client exposes: one
// system+user exchange returning the raw text reply.
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
	Available() bool
	name() string
}

// verdictPrompt asks the model to judge a proposed rule against evidence.
const verdictPrompt = `You are reviewing a proposed behavioral rule for an AI coding agent against evidence from past sessions.

Judge whether the rule is supported, contradicted, or needs refinement.

Respond with a JSON object containing:
- "verdict": one of "ACCEPT", "REJECT", "REFINE", "ACCEPT_WITH_CAUTION"
- "confidence": your certainty in the verdict (0.0 to 1.0)
- "reason": a one-sentence justification
- "supportingEvidence": quotes from the evidence consistent with the rule (array of strings, optional)
- "contradictingEvidence": quotes from the evidence against the rule (array of strings, optional)

Respond ONLY with the JSON object, no additional text.`

// reflectPrompt asks the model to distill deltas from a session diary.
const reflectPrompt = `You are distilling behavioral rules for an AI coding agent from a session diary.

Given the diary, the agent's existing rules, and optional supporting evidence, propose playbook deltas. Each delta is one of:
- {"type":"add","content":"...","category":"...","reason":"..."} for a new rule ("content" may start with "Avoid:" for anti-patterns)
- {"type":"helpful","bulletId":"...","reason":"..."} when the diary shows an existing rule helped
- {"type":"harmful","bulletId":"...","reason":"..."} when the diary shows an existing rule hurt
- {"type":"replace","bulletId":"...","content":"..."} to reword an existing rule
- {"type":"deprecate","bulletId":"...","reason":"..."} when a rule is obsolete
- {"type":"merge","bulletIds":["...","..."],"mergedContent":"..."} to consolidate near-duplicates

Propose at most 20 deltas. Only reference bulletIds that appear in the existing rules. Respond ONLY with a JSON array of delta objects, no additional text.`

// Client composes a provider completer into the VerdictClient and
// Reflector collaborators.
type Client struct {
	provider completer
}

// NewClient wraps a provider. Used by the fallback chain; external callers
// normally construct a Chain via NewChain.
func newClient(provider completer) *Client {
	return &Client{provider: provider}
}

// Validate judges a proposed rule against formatted evidence text.
func (c *Client) Validate(ctx context.Context, proposedRule, evidenceText string) (VerdictResult, error) {
	user := formatVerdictInput(proposedRule, evidenceText)
	text, err := c.provider.complete(ctx, verdictPrompt, user)
	if err != nil {
		return VerdictResult{}, err
	}
	return parseVerdictJSON(text)
}

// ExtractDeltas proposes playbook deltas from a session diary.
func (c *Client) ExtractDeltas(ctx context.Context, diaryText, existingBulletsText, evidenceText string) ([]playbook.Delta, error) {
	var b strings.Builder
	b.WriteString("Session diary:\n")
	b.WriteString(diaryText)
	if existingBulletsText != "" {
		b.WriteString("\n\nExisting rules:\n")
		b.WriteString(existingBulletsText)
	}
	if evidenceText != "" {
		b.WriteString("\n\nEvidence:\n")
		b.WriteString(evidenceText)
	}

	text, err := c.provider.complete(ctx, reflectPrompt, b.String())
	if err != nil {
		return nil, err
	}
	return parseDeltasJSON(text)
}

func formatVerdictInput(proposedRule, evidenceText string) string {
	if evidenceText == "" {
		evidenceText = "(no evidence available)"
	}
	return fmt.Sprintf("Proposed rule:\n%s\n\nEvidence:\n%s", proposedRule, evidenceText)
}

// stripFences removes markdown code fences LLMs sometimes wrap JSON in.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// parseVerdictJSON parses the model reply into a VerdictResult.
func parseVerdictJSON(content string) (VerdictResult, error) {
	var result VerdictResult
	if err := json.Unmarshal([]byte(stripFences(content)), &result); err != nil {
		return VerdictResult{}, fmt.Errorf("failed to parse verdict: %w", err)
	}
	switch result.Verdict {
	case VerdictAccept, VerdictReject, VerdictRefine, VerdictAcceptWithCaution:
	default:
		return VerdictResult{}, fmt.Errorf("%w: %q", ErrInvalidVerdict, result.Verdict)
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return result, nil
}

// rawDelta is the wire shape of one extracted delta.
type rawDelta struct {
	Type          string   `json:"type"`
	Content       string   `json:"content,omitempty"`
	Category      string   `json:"category,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	BulletID      string   `json:"bulletId,omitempty"`
	BulletIDs     []string `json:"bulletIds,omitempty"`
	MergedContent string   `json:"mergedContent,omitempty"`
	ReplacedBy    string   `json:"replacedBy,omitempty"`
}

// parseDeltasJSON parses the model reply into at most MaxDeltasPerCall
// deltas. Unrecognized entries are dropped rather than failing the batch.
func parseDeltasJSON(content string) ([]playbook.Delta, error) {
	var raw []rawDelta
	if err := json.Unmarshal([]byte(stripFences(content)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse deltas: %w", err)
	}

	deltas := make([]playbook.Delta, 0, len(raw))
	for _, r := range raw {
		if len(deltas) >= MaxDeltasPerCall {
			break
		}
		switch r.Type {
		case "add":
			kind := playbook.KindRule
			if strings.HasPrefix(strings.ToLower(r.Content), "avoid:") {
				kind = playbook.KindAntiPattern
			}
			deltas = append(deltas, playbook.AddDelta{
				Content:    r.Content,
				Category:   r.Category,
				BulletKind: kind,
				Reason:     r.Reason,
			})
		case "helpful":
			deltas = append(deltas, playbook.HelpfulDelta{BulletID: r.BulletID, Reason: r.Reason})
		case "harmful":
			deltas = append(deltas, playbook.HarmfulDelta{BulletID: r.BulletID, Reason: r.Reason})
		case "replace":
			deltas = append(deltas, playbook.ReplaceDelta{BulletID: r.BulletID, Content: r.Content})
		case "deprecate":
			deltas = append(deltas, playbook.DeprecateDelta{BulletID: r.BulletID, Reason: r.Reason, ReplacedBy: r.ReplacedBy})
		case "merge":
			deltas = append(deltas, playbook.MergeDelta{BulletIDs: r.BulletIDs, MergedContent: r.MergedContent})
		}
	}
	return deltas, nil
}

var (
	_ VerdictClient = (*Client)(nil)
	_ Reflector     = (*Client)(nil)
)
