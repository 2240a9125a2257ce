package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

// stubCompleter records the prompts it receives and replies with canned
// text.
type stubCompleter struct {
	reply     string
	err       error
	gotSystem string
	gotUser   string
}

func (s *stubCompleter) complete(ctx context.Context, system, user string) (string, error) {
	s.gotSystem = system
	s.gotUser = user
	return s.reply, s.err
}

func (s *stubCompleter) Available() bool { return true }
func (s *stubCompleter) name() string    { return "stub" }

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}

func TestParseVerdictJSON(t *testing.T) {
	result, err := parseVerdictJSON(`{"verdict":"ACCEPT","confidence":0.9,"reason":"evidence supports the rule","supportingEvidence":["session passed"]}`)
	require.NoError(t, err)
	assert.Equal(t, VerdictAccept, result.Verdict)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
	assert.Equal(t, "evidence supports the rule", result.Reason)
	assert.Equal(t, []string{"session passed"}, result.SupportingEvidence)
}

func TestParseVerdictJSONStripsFences(t *testing.T) {
	result, err := parseVerdictJSON("```json\n{\"verdict\":\"REJECT\",\"confidence\":0.8,\"reason\":\"contradicted\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, result.Verdict)
}

func TestParseVerdictJSONRejectsUnknownVerdict(t *testing.T) {
	_, err := parseVerdictJSON(`{"verdict":"MAYBE","confidence":0.5,"reason":"unsure"}`)
	require.ErrorIs(t, err, ErrInvalidVerdict)
}

func TestParseVerdictJSONClampsConfidence(t *testing.T) {
	result, err := parseVerdictJSON(`{"verdict":"ACCEPT","confidence":1.7,"reason":"very sure"}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Confidence)

	result, err = parseVerdictJSON(`{"verdict":"ACCEPT","confidence":-0.3,"reason":"odd"}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestParseVerdictJSONMalformed(t *testing.T) {
	_, err := parseVerdictJSON("the rule looks fine to me")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse verdict")
}

func TestParseDeltasJSONAllKinds(t *testing.T) {
	deltas, err := parseDeltasJSON(`[
		{"type":"add","content":"Run linters before committing","category":"workflow","reason":"caught issues twice"},
		{"type":"add","content":"Avoid: editing generated files by hand","category":"workflow"},
		{"type":"helpful","bulletId":"b1","reason":"saved a rollback"},
		{"type":"harmful","bulletId":"b2","reason":"caused a failed deploy"},
		{"type":"replace","bulletId":"b3","content":"Pin dependency versions in CI"},
		{"type":"deprecate","bulletId":"b4","reason":"tooling changed","replacedBy":"b3"},
		{"type":"merge","bulletIds":["b5","b6"],"mergedContent":"Combined rule"}
	]`)
	require.NoError(t, err)
	require.Len(t, deltas, 7)

	add := deltas[0].(playbook.AddDelta)
	assert.Equal(t, "Run linters before committing", add.Content)
	assert.Equal(t, "workflow", add.Category)
	assert.Equal(t, playbook.KindRule, add.BulletKind)

	anti := deltas[1].(playbook.AddDelta)
	assert.Equal(t, playbook.KindAntiPattern, anti.BulletKind)

	assert.Equal(t, playbook.HelpfulDelta{BulletID: "b1", Reason: "saved a rollback"}, deltas[2])
	assert.Equal(t, playbook.HarmfulDelta{BulletID: "b2", Reason: "caused a failed deploy"}, deltas[3])
	assert.Equal(t, playbook.ReplaceDelta{BulletID: "b3", Content: "Pin dependency versions in CI"}, deltas[4])
	assert.Equal(t, playbook.DeprecateDelta{BulletID: "b4", Reason: "tooling changed", ReplacedBy: "b3"}, deltas[5])
	assert.Equal(t, playbook.MergeDelta{BulletIDs: []string{"b5", "b6"}, MergedContent: "Combined rule"}, deltas[6])
}

func TestParseDeltasJSONDropsUnknownTypes(t *testing.T) {
	deltas, err := parseDeltasJSON(`[
		{"type":"add","content":"Keep commits small","category":"workflow"},
		{"type":"celebrate","content":"nice work"},
		{"type":"helpful","bulletId":"b1"}
	]`)
	require.NoError(t, err)
	require.Len(t, deltas, 2)
}

func TestParseDeltasJSONCapsBatchSize(t *testing.T) {
	var raw []map[string]string
	for i := 0; i < MaxDeltasPerCall+5; i++ {
		raw = append(raw, map[string]string{
			"type":    "add",
			"content": fmt.Sprintf("Rule number %d with enough words", i),
		})
	}
	payload, err := json.Marshal(raw)
	require.NoError(t, err)

	deltas, err := parseDeltasJSON(string(payload))
	require.NoError(t, err)
	assert.Len(t, deltas, MaxDeltasPerCall)
}

func TestParseDeltasJSONMalformed(t *testing.T) {
	_, err := parseDeltasJSON(`{"type":"add"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse deltas")
}

func TestClientValidateBuildsPrompt(t *testing.T) {
	stub := &stubCompleter{reply: `{"verdict":"ACCEPT","confidence":0.85,"reason":"consistent"}`}
	c := newClient(stub)

	result, err := c.Validate(context.Background(), "Run migrations sequentially", "session-1: migration succeeded")
	require.NoError(t, err)
	assert.Equal(t, VerdictAccept, result.Verdict)

	assert.Equal(t, verdictPrompt, stub.gotSystem)
	assert.Contains(t, stub.gotUser, "Run migrations sequentially")
	assert.Contains(t, stub.gotUser, "session-1: migration succeeded")
}

func TestClientValidateNoEvidencePlaceholder(t *testing.T) {
	stub := &stubCompleter{reply: `{"verdict":"ACCEPT_WITH_CAUTION","confidence":0.5,"reason":"no evidence"}`}
	c := newClient(stub)

	_, err := c.Validate(context.Background(), "Run migrations sequentially", "")
	require.NoError(t, err)
	assert.Contains(t, stub.gotUser, "(no evidence available)")
}

func TestClientExtractDeltas(t *testing.T) {
	stub := &stubCompleter{reply: `[{"type":"add","content":"Prefer table-driven tests","category":"testing"}]`}
	c := newClient(stub)

	deltas, err := c.ExtractDeltas(context.Background(), "wrote several near-identical tests", "[b1] (testing/candidate) keep tests fast", "session-2 snippet")
	require.NoError(t, err)
	require.Len(t, deltas, 1)

	assert.Equal(t, reflectPrompt, stub.gotSystem)
	assert.Contains(t, stub.gotUser, "Session diary:")
	assert.Contains(t, stub.gotUser, "Existing rules:")
	assert.Contains(t, stub.gotUser, "keep tests fast")
	assert.Contains(t, stub.gotUser, "Evidence:")
	assert.Contains(t, stub.gotUser, "session-2 snippet")
}

func TestClientExtractDeltasOmitsEmptySections(t *testing.T) {
	stub := &stubCompleter{reply: `[]`}
	c := newClient(stub)

	_, err := c.ExtractDeltas(context.Background(), "diary text", "", "")
	require.NoError(t, err)
	assert.NotContains(t, stub.gotUser, "Existing rules:")
	assert.NotContains(t, stub.gotUser, "Evidence:")
}
