package curation

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(DefaultConfig(), nil, WithClock(func() time.Time { return testNow }))
}

func newTestPlaybook(t *testing.T) *playbook.Playbook {
	t.Helper()
	pb, err := playbook.NewPlaybook("test")
	require.NoError(t, err)
	return pb
}

func addActiveBullet(t *testing.T, pb *playbook.Playbook, content, category string) *playbook.Bullet {
	t.Helper()
	b, err := playbook.NewBullet(content, category, playbook.ScopeGlobal, playbook.KindRule, playbook.Provenance{})
	require.NoError(t, err)
	b.State = playbook.StateActive
	require.NoError(t, pb.AddBullet(b))
	return b
}

func TestCurateAdd(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)

	result := e.Curate(pb, []playbook.Delta{
		playbook.AddDelta{Content: "prefer table-driven tests", Category: "testing", SourceSession: "/sessions/a.md"},
	}, nil)

	assert.Equal(t, 1, result.Applied)
	assert.Zero(t, result.Skipped)
	require.Len(t, pb.Bullets, 1)
	b := pb.Bullets[0]
	assert.Equal(t, playbook.StateDraft, b.State)
	assert.Equal(t, playbook.MaturityCandidate, b.Maturity)
	assert.Equal(t, []string{"/sessions/a.md"}, b.Provenance.SourceSessions)
}

func TestCurateAddSuggestedStateActive(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)

	e.Curate(pb, []playbook.Delta{
		playbook.AddDelta{Content: "prefer table-driven tests", SuggestedState: playbook.StateActive},
	}, nil)

	require.Len(t, pb.Bullets, 1)
	assert.Equal(t, playbook.StateActive, pb.Bullets[0].State)
}

func TestCurateAddShortContentSkipped(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)

	result := e.Curate(pb, []playbook.Delta{playbook.AddDelta{Content: "too short"}}, nil)

	assert.Zero(t, result.Applied)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.SkipReasons, 1)
	assert.Equal(t, playbook.DeltaAdd, result.SkipReasons[0].Kind)
	assert.Empty(t, pb.Bullets)
}

func TestCurateAddDeduplicates(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)
	existing := addActiveBullet(t, pb, "run gofmt before committing changes", "workflow")

	result := e.Curate(pb, []playbook.Delta{
		playbook.AddDelta{Content: "run gofmt before committing changes!", Category: "workflow"},
	}, nil)

	assert.Zero(t, result.Applied)
	require.Len(t, result.SkipReasons, 1)
	assert.Contains(t, result.SkipReasons[0].Reason, existing.ID)
	assert.Len(t, pb.Bullets, 1)
}

func TestCurateAddDedupAcrossContextView(t *testing.T) {
	e := newTestEngine(t)
	global := newTestPlaybook(t)
	project := newTestPlaybook(t)
	addActiveBullet(t, global, "run gofmt before committing changes", "workflow")

	view := playbook.NewContextView(global, project)
	result := e.Curate(project, []playbook.Delta{
		playbook.AddDelta{Content: "run gofmt before committing changes", Category: "workflow"},
	}, view)

	assert.Zero(t, result.Applied, "duplicate of a global bullet is skipped in the project playbook")
	assert.Empty(t, project.Bullets)
}

func TestCurateAddConflictStillAdds(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)
	existing := addActiveBullet(t, pb, "always run gofmt on save for Go code files", "workflow")

	result := e.Curate(pb, []playbook.Delta{
		playbook.AddDelta{Content: "never run gofmt on save for Go code files", Category: "workflow"},
	}, nil)

	assert.Equal(t, 1, result.Applied)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, existing.ID, result.Conflicts[0].ExistingBulletID)
	assert.Len(t, pb.Bullets, 2, "conflicting bullets are surfaced, not suppressed")
}

func TestCurateFeedbackUnknownID(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)

	result := e.Curate(pb, []playbook.Delta{
		playbook.HelpfulDelta{BulletID: "blt-missing"},
		playbook.AddDelta{Content: "prefer table-driven tests"},
	}, nil)

	assert.Equal(t, 1, result.Applied, "a stale id never aborts the batch")
	assert.Equal(t, 1, result.Skipped)
	assert.Contains(t, result.SkipReasons[0].Reason, "blt-missing")
}

func TestCuratePromotion(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)
	b := addActiveBullet(t, pb, "run gofmt before committing changes", "workflow")
	require.NoError(t, b.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHelpful, Timestamp: testNow}))
	require.NoError(t, b.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHelpful, Timestamp: testNow}))

	result := e.Curate(pb, []playbook.Delta{playbook.HelpfulDelta{BulletID: b.ID}}, nil)

	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, playbook.MaturityEstablished, b.Maturity)
	require.Len(t, result.Promotions, 1)
	p := result.Promotions[0]
	assert.Equal(t, b.ID, p.BulletID)
	assert.Equal(t, playbook.MaturityCandidate, p.From)
	assert.Equal(t, playbook.MaturityEstablished, p.To)
	assert.True(t, p.Promotion)
}

func TestCurateHarmfulFeedbackInverts(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)
	b := addActiveBullet(t, pb, "always squash commits before merging", "workflow")
	require.NoError(t, b.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHelpful, Timestamp: testNow}))

	result := e.Curate(pb, []playbook.Delta{
		playbook.HarmfulDelta{BulletID: b.ID, Reason: "lost useful history"},
		playbook.HarmfulDelta{BulletID: b.ID, Reason: "broke bisect"},
	}, nil)

	assert.Equal(t, 2, result.Applied)
	require.Len(t, result.Inversions, 1)
	inv := result.Inversions[0]
	assert.Equal(t, b.ID, inv.OriginalID)

	assert.True(t, b.Deprecated)
	assert.Equal(t, playbook.MaturityDeprecated, b.Maturity)
	require.NotNil(t, b.Deprecation)
	assert.Equal(t, inv.InvertedID, b.Deprecation.ReplacedBy)

	inverted := pb.FindBullet(inv.InvertedID)
	require.NotNil(t, inverted)
	assert.Equal(t, playbook.KindAntiPattern, inverted.Kind)
	assert.Equal(t, playbook.StateActive, inverted.State)
	assert.Equal(t, playbook.MaturityCandidate, inverted.Maturity)
	assert.True(t, strings.HasPrefix(inverted.Content, "Avoid: always squash commits before merging"))
	assert.Contains(t, inverted.Provenance.Reasoning, b.ID)

	// One demotion event, not an inversion plus a separate promotion report.
	assert.Empty(t, result.Promotions)
}

func TestCurateEvenSplitInverts(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)
	b := addActiveBullet(t, pb, "always squash commits before merging", "workflow")
	b.Maturity = playbook.MaturityEstablished
	require.NoError(t, b.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHelpful, Timestamp: testNow}))
	require.NoError(t, b.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHelpful, Timestamp: testNow}))
	require.NoError(t, b.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHarmful, Timestamp: testNow}))

	// One more harmful event brings the ratio to 2/4, enough to demote.
	result := e.Curate(pb, []playbook.Delta{
		playbook.HarmfulDelta{BulletID: b.ID, Reason: "broke bisect"},
	}, nil)

	assert.Equal(t, 1, result.Applied)
	require.Len(t, result.Inversions, 1)
	assert.True(t, b.Deprecated)
	assert.Equal(t, playbook.MaturityDeprecated, b.Maturity)
	require.NotNil(t, b.Deprecation)
	assert.Equal(t, result.Inversions[0].InvertedID, b.Deprecation.ReplacedBy)
	require.NotNil(t, pb.FindBullet(result.Inversions[0].InvertedID))
	require.NoError(t, pb.Validate())
}

func TestCurateHelpfulFeedbackOnDeprecatedBullet(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)
	b := addActiveBullet(t, pb, "always squash commits before merging", "workflow")
	require.NoError(t, b.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHelpful, Timestamp: testNow}))
	require.NoError(t, b.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHelpful, Timestamp: testNow}))
	b.Deprecate("superseded", "")

	result := e.Curate(pb, []playbook.Delta{
		playbook.HelpfulDelta{BulletID: b.ID, Reason: "still useful sometimes"},
	}, nil)

	// The event is recorded but the bullet stays deprecated, so the
	// playbook remains saveable.
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 3, b.HelpfulCount)
	assert.True(t, b.Deprecated)
	assert.Equal(t, playbook.MaturityDeprecated, b.Maturity)
	require.NoError(t, pb.Validate())
}

func TestCurateFeedbackAfterDeprecationDoesNotReinvert(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)
	b := addActiveBullet(t, pb, "always squash commits before merging", "workflow")
	b.Deprecate("already demoted", "")
	require.NoError(t, b.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHarmful, Timestamp: testNow}))
	require.NoError(t, b.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHarmful, Timestamp: testNow}))

	result := e.Curate(pb, []playbook.Delta{playbook.HarmfulDelta{BulletID: b.ID}}, nil)

	assert.Equal(t, 1, result.Applied)
	assert.Empty(t, result.Inversions)
}

func TestCurateReplacePreservesHistory(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)
	b := addActiveBullet(t, pb, "run gofmt before committing changes", "workflow")
	require.NoError(t, b.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHelpful, Timestamp: testNow}))

	result := e.Curate(pb, []playbook.Delta{
		playbook.ReplaceDelta{BulletID: b.ID, Content: "run gofmt and goimports before committing changes"},
	}, nil)

	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, "run gofmt and goimports before committing changes", b.Content)
	assert.Len(t, b.FeedbackEvents, 1, "replace keeps the feedback history")
	assert.Equal(t, 1, b.HelpfulCount)
}

func TestCurateDeprecate(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)
	b := addActiveBullet(t, pb, "run gofmt before committing changes", "workflow")

	result := e.Curate(pb, []playbook.Delta{
		playbook.DeprecateDelta{BulletID: b.ID, Reason: "tooling changed", ReplacedBy: "blt-new"},
	}, nil)

	assert.Equal(t, 1, result.Applied)
	assert.True(t, b.Deprecated)
	assert.Equal(t, "blt-new", b.Deprecation.ReplacedBy)
}

func TestCurateMerge(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)
	a := addActiveBullet(t, pb, "run gofmt before committing changes", "workflow")
	b := addActiveBullet(t, pb, "run goimports before committing changes", "workflow")
	a.Provenance.SourceSessions = []string{"/sessions/a.md"}
	b.Provenance.SourceSessions = []string{"/sessions/b.md"}

	result := e.Curate(pb, []playbook.Delta{
		playbook.MergeDelta{
			BulletIDs:     []string{a.ID, b.ID},
			MergedContent: "run gofmt and goimports before committing changes",
		},
	}, nil)

	assert.Equal(t, 1, result.Applied)
	require.Len(t, pb.Bullets, 3)
	merged := pb.Bullets[2]
	assert.Equal(t, playbook.StateActive, merged.State)
	assert.ElementsMatch(t, []string{"/sessions/a.md", "/sessions/b.md"}, merged.Provenance.SourceSessions)

	assert.True(t, a.Deprecated)
	assert.True(t, b.Deprecated)
	assert.Equal(t, merged.ID, a.Deprecation.ReplacedBy)
	assert.Equal(t, merged.ID, b.Deprecation.ReplacedBy)
}

func TestCurateMergeRequiresAllIDs(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)
	a := addActiveBullet(t, pb, "run gofmt before committing changes", "workflow")

	result := e.Curate(pb, []playbook.Delta{
		playbook.MergeDelta{BulletIDs: []string{a.ID, "blt-missing"}, MergedContent: "merged rule content"},
		playbook.MergeDelta{BulletIDs: []string{a.ID}, MergedContent: "merged rule content"},
	}, nil)

	assert.Zero(t, result.Applied)
	assert.Equal(t, 2, result.Skipped)
	assert.False(t, a.Deprecated, "partial merges leave sources untouched")
}

func TestPrunePassTombstones(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)

	condemned := addActiveBullet(t, pb, "always force-push feature branches", "workflow")
	for i := 0; i < 6; i++ {
		require.NoError(t, condemned.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHarmful, Timestamp: testNow}))
	}
	condemned.Deprecate("harmful", "")

	pinned := addActiveBullet(t, pb, "never commit secrets to the repository", "security")
	pinned.Pinned = true
	for i := 0; i < 6; i++ {
		require.NoError(t, pinned.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHarmful, Timestamp: testNow}))
	}
	pinned.Deprecate("noisy", "")

	survivor := addActiveBullet(t, pb, "run gofmt before committing changes", "workflow")

	result := e.Curate(pb, nil, nil)

	assert.Equal(t, []string{condemned.ID}, result.Pruned)
	assert.Nil(t, pb.FindBullet(condemned.ID))
	assert.NotNil(t, pb.FindBullet(pinned.ID), "pinned bullets survive pruning")
	assert.NotNil(t, pb.FindBullet(survivor.ID))
	assert.Equal(t, []string{"always force-push feature branches"}, pb.DeprecatedPatterns)
}

func TestPrunePassDeleteMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PruneMode = PruneDelete
	e := NewEngine(cfg, nil, WithClock(func() time.Time { return testNow }))
	pb := newTestPlaybook(t)

	condemned := addActiveBullet(t, pb, "always force-push feature branches", "workflow")
	for i := 0; i < 6; i++ {
		require.NoError(t, condemned.AddFeedback(playbook.FeedbackEvent{Type: playbook.FeedbackHarmful, Timestamp: testNow}))
	}
	condemned.Deprecate("harmful", "")

	result := e.Curate(pb, nil, nil)

	assert.Equal(t, []string{condemned.ID}, result.Pruned)
	assert.Empty(t, pb.DeprecatedPatterns, "delete mode leaves no tombstone")
}

func TestCurateMixedBatchIsOrderDependent(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)

	deltas := []playbook.Delta{
		playbook.AddDelta{Content: "prefer table-driven tests in Go packages", Category: "testing", SuggestedState: playbook.StateActive},
		// Identical content later in the same batch dedups against the
		// bullet the first delta just added.
		playbook.AddDelta{Content: "prefer table-driven tests in Go packages", Category: "testing"},
	}
	result := e.Curate(pb, deltas, nil)

	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, pb.Bullets, 1)
}

func TestCurateResultMetadata(t *testing.T) {
	e := newTestEngine(t)
	pb := newTestPlaybook(t)

	result := e.Curate(pb, []playbook.Delta{
		playbook.AddDelta{Content: fmt.Sprintf("rule content number %d", 1)},
	}, nil)

	assert.Equal(t, testNow, result.CompletedAt)
	assert.Equal(t, 1, pb.Metadata.TotalDeltasApplied)
	assert.Same(t, pb, result.Playbook)
}
