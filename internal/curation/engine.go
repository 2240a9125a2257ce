// Package curation applies playbook deltas: deduplicating new rules,
// detecting contradictions, recording feedback, promoting and demoting
// maturity, auto-inverting harmful rules, and pruning.
//
// The engine performs no I/O. Callers load the target (and optional
// context) playbook through the store, run Curate, and persist the result
// under a held lock.
package curation

import (
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/scoring"
)

// PruneMode selects what the pruning pass does with a condemned bullet.
type PruneMode string

const (
	// PruneTombstone moves the bullet's content into DeprecatedPatterns
	// and removes the bullet. Default.
	PruneTombstone PruneMode = "tombstone"

	// PruneDelete removes the bullet outright.
	PruneDelete PruneMode = "delete"
)

// Config holds curation thresholds.
type Config struct {
	// DedupSimilarityThreshold skips adds at or above this Jaccard score.
	DedupSimilarityThreshold float64 `koanf:"dedup_similarity_threshold"`

	// ConflictOverlapThreshold triggers the contradiction heuristic.
	ConflictOverlapThreshold float64 `koanf:"conflict_overlap_threshold"`

	// MinContentLength rejects adds shorter than this many runes.
	MinContentLength int `koanf:"min_content_length"`

	// PruneHarmfulThreshold marks deprecated bullets for pruning above
	// this harmful count.
	PruneHarmfulThreshold int `koanf:"prune_harmful_threshold"`

	// PruneMode is tombstone or delete.
	PruneMode PruneMode `koanf:"prune_mode"`

	// Scoring holds the decay/maturity thresholds.
	Scoring scoring.Config `koanf:"scoring"`
}

// DefaultConfig returns the standard curation thresholds.
func DefaultConfig() Config {
	return Config{
		DedupSimilarityThreshold: 0.85,
		ConflictOverlapThreshold: 0.5,
		MinContentLength:         10,
		PruneHarmfulThreshold:    5,
		PruneMode:                PruneTombstone,
		Scoring:                  scoring.DefaultConfig(),
	}
}

// Engine applies deltas to playbooks.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a curation engine. A nil logger is replaced by a nop.
func NewEngine(cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{cfg: cfg, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Curate applies deltas to the target playbook in input order and returns
// the audit record. The context view is consulted read-only for duplicate
// and conflict lookups across scopes; passing nil restricts lookups to the
// target itself.
//
// Deltas are independent: a skipped delta never aborts the run, and skip
// conditions are counted, never raised as errors.
func (e *Engine) Curate(target *playbook.Playbook, deltas []playbook.Delta, ctxView *playbook.ContextView) *playbook.CurationResult {
	if ctxView == nil {
		ctxView = playbook.NewContextView(target)
	}

	result := &playbook.CurationResult{Playbook: target}
	touched := make(map[string]playbook.Maturity) // id -> maturity before first touch

	for i, delta := range deltas {
		switch d := delta.(type) {
		case playbook.AddDelta:
			e.applyAdd(target, ctxView, d, i, result)
		case playbook.HelpfulDelta:
			e.applyFeedback(target, d.BulletID, playbook.FeedbackEvent{
				Type:        playbook.FeedbackHelpful,
				SessionPath: d.SessionPath,
				Reason:      d.Reason,
				Context:     d.Context,
			}, i, result, touched)
		case playbook.HarmfulDelta:
			e.applyFeedback(target, d.BulletID, playbook.FeedbackEvent{
				Type:        playbook.FeedbackHarmful,
				SessionPath: d.SessionPath,
				Reason:      d.Reason,
				Context:     d.Context,
			}, i, result, touched)
		case playbook.ReplaceDelta:
			e.applyReplace(target, d, i, result)
		case playbook.DeprecateDelta:
			e.applyDeprecate(target, d, i, result)
		case playbook.MergeDelta:
			e.applyMerge(target, d, i, result)
		default:
			e.skip(result, i, delta.Kind(), "unsupported delta type")
		}
	}

	e.promotionPass(target, touched, result)
	e.prunePass(target, result)

	target.Metadata.TotalDeltasApplied += result.Applied
	result.CompletedAt = e.now()

	e.logger.Info("curation completed",
		zap.String("playbook", target.Name),
		zap.Int("applied", result.Applied),
		zap.Int("skipped", result.Skipped),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Int("promotions", len(result.Promotions)),
		zap.Int("inversions", len(result.Inversions)),
		zap.Int("pruned", len(result.Pruned)))

	return result
}

func (e *Engine) skip(result *playbook.CurationResult, index int, kind playbook.DeltaKind, reason string) {
	result.Skipped++
	result.SkipReasons = append(result.SkipReasons, playbook.SkipReason{
		Index:  index,
		Kind:   kind,
		Reason: reason,
	})
	e.logger.Debug("delta skipped",
		zap.Int("index", index),
		zap.String("kind", string(kind)),
		zap.String("reason", reason))
}

// applyAdd creates a new draft/candidate bullet unless the content is too
// short or duplicates an active same-category bullet in the context view.
func (e *Engine) applyAdd(target *playbook.Playbook, ctxView *playbook.ContextView, d playbook.AddDelta, index int, result *playbook.CurationResult) {
	if utf8.RuneCountInString(d.Content) < e.cfg.MinContentLength {
		e.skip(result, index, playbook.DeltaAdd, "content missing or below minimum length")
		return
	}

	// Dedup against active same-category bullets across scopes.
	var bestSim float64
	var bestID string
	for _, existing := range ctxView.ActiveBulletsInCategory(d.Category) {
		sim := TokenSetSimilarity(d.Content, existing.Content)
		if sim > bestSim {
			bestSim = sim
			bestID = existing.ID
		}
	}
	if bestSim >= e.cfg.DedupSimilarityThreshold {
		e.skip(result, index, playbook.DeltaAdd,
			fmt.Sprintf("duplicate of %s (similarity %.2f)", bestID, bestSim))
		return
	}

	scope := d.Scope
	if scope == "" {
		scope = playbook.ScopeGlobal
	}
	kind := d.BulletKind
	if kind == "" {
		kind = playbook.KindRule
	}

	bullet, err := playbook.NewBullet(d.Content, d.Category, scope, kind, playbook.Provenance{
		SourceSessions: nonEmpty(d.SourceSession),
		SourceAgents:   nonEmpty(d.SourceAgent),
		Reasoning:      d.Reason,
	})
	if err == nil && d.WorkspaceKey != "" {
		bullet, err = bullet.WithWorkspaceKey(d.WorkspaceKey)
	}
	if err == nil && d.ScopeKey != "" {
		bullet, err = bullet.WithScopeKey(d.ScopeKey)
	}
	if err != nil {
		e.skip(result, index, playbook.DeltaAdd, fmt.Sprintf("invalid bullet: %v", err))
		return
	}
	if d.SuggestedState == playbook.StateActive {
		bullet.State = playbook.StateActive
	}

	// Contradiction heuristic: overlapping keywords with opposite polarity
	// in the same category. The bullet is still added; the conflict is
	// surfaced to the caller.
	newTokens := tokenSet(d.Content)
	for _, existing := range ctxView.ActiveBulletsInCategory(d.Category) {
		if keywordOverlap(newTokens, tokenSet(existing.Content)) < e.cfg.ConflictOverlapThreshold {
			continue
		}
		if e.contradicts(bullet, existing, newTokens) {
			result.Conflicts = append(result.Conflicts, playbook.ConflictReport{
				NewBulletID:      bullet.ID,
				ExistingBulletID: existing.ID,
				Detail:           "opposite polarity on overlapping keywords",
			})
			break
		}
	}

	if err := target.AddBullet(bullet); err != nil {
		e.skip(result, index, playbook.DeltaAdd, fmt.Sprintf("add rejected: %v", err))
		return
	}
	result.Applied++
	e.logger.Debug("bullet added",
		zap.String("bullet_id", bullet.ID),
		zap.String("category", bullet.Category),
		zap.String("state", string(bullet.State)))
}

// contradicts reports whether two same-category bullets with overlapping
// keywords pull in opposite directions.
func (e *Engine) contradicts(newB, existing *playbook.Bullet, newTokens map[string]bool) bool {
	if newB.Kind != existing.Kind {
		return true
	}
	existingTokens := tokenSet(existing.Content)
	newNegated := hasMarker(newTokens, negationMarkers) && !hasMarker(newTokens, affirmationMarkers)
	existingNegated := hasMarker(existingTokens, negationMarkers) && !hasMarker(existingTokens, affirmationMarkers)
	return newNegated != existingNegated
}

// applyFeedback resolves the bullet and appends the event. Stale ids are
// expected (evidence gathered against the context playbook) and skip
// silently. A harmful event that pushes the ratio over the deprecation
// threshold triggers auto-inversion.
func (e *Engine) applyFeedback(target *playbook.Playbook, bulletID string, ev playbook.FeedbackEvent, index int, result *playbook.CurationResult, touched map[string]playbook.Maturity) {
	kind := playbook.DeltaHelpful
	if ev.Type == playbook.FeedbackHarmful {
		kind = playbook.DeltaHarmful
	}

	bullet := target.FindBullet(bulletID)
	if bullet == nil {
		e.skip(result, index, kind, fmt.Sprintf("unknown bullet id %s", bulletID))
		return
	}

	if _, seen := touched[bullet.ID]; !seen {
		touched[bullet.ID] = bullet.Maturity
	}

	ev.Timestamp = e.now()
	if err := bullet.AddFeedback(ev); err != nil {
		e.skip(result, index, kind, err.Error())
		return
	}
	result.Applied++

	// Deprecated bullets keep the deprecated maturity; the event is still
	// recorded for the audit trail.
	if bullet.Deprecated {
		return
	}

	next := scoring.CalculateMaturity(bullet, e.cfg.Scoring)
	if next == playbook.MaturityDeprecated {
		// Deprecation only happens through inversion, which pairs the
		// maturity change with the Deprecated flag.
		if ev.Type == playbook.FeedbackHarmful {
			e.invert(target, bullet, result)
		}
		return
	}
	bullet.Maturity = next
}

// invert deprecates a harmful bullet and creates a linked anti-pattern
// bullet derived from its content.
func (e *Engine) invert(target *playbook.Playbook, original *playbook.Bullet, result *playbook.CurationResult) {
	invertedContent := fmt.Sprintf("Avoid: %s (demoted after repeated harmful feedback)", original.Content)

	inverted := &playbook.Bullet{
		ID:           playbook.NewBulletID(),
		Content:      invertedContent,
		Category:     original.Category,
		Scope:        original.Scope,
		WorkspaceKey: original.WorkspaceKey,
		ScopeKey:     original.ScopeKey,
		Kind:         playbook.KindAntiPattern,
		IsNegative:   true,
		State:        playbook.StateActive,
		Maturity:     playbook.MaturityCandidate,
		HalfLifeDays: original.HalfLifeDays,
		Provenance: playbook.Provenance{
			SourceSessions: original.Provenance.SourceSessions,
			SourceAgents:   original.Provenance.SourceAgents,
			Reasoning:      fmt.Sprintf("auto-inverted from %s", original.ID),
		},
		CreatedAt: e.now(),
		UpdatedAt: e.now(),
	}

	original.Deprecate("harmful ratio exceeded deprecation threshold", inverted.ID)

	if err := target.AddBullet(inverted); err != nil {
		// Keep the deprecation, drop the inversion. Extremely unlikely
		// since the id is freshly generated.
		e.logger.Warn("inversion bullet rejected",
			zap.String("original_id", original.ID),
			zap.Error(err))
		return
	}

	result.Inversions = append(result.Inversions, playbook.InversionReport{
		OriginalID:      original.ID,
		OriginalContent: original.Content,
		InvertedID:      inverted.ID,
		InvertedContent: inverted.Content,
	})
	e.logger.Info("bullet auto-inverted",
		zap.String("original_id", original.ID),
		zap.String("inverted_id", inverted.ID))
}

func (e *Engine) applyReplace(target *playbook.Playbook, d playbook.ReplaceDelta, index int, result *playbook.CurationResult) {
	bullet := target.FindBullet(d.BulletID)
	if bullet == nil {
		e.skip(result, index, playbook.DeltaReplace, fmt.Sprintf("unknown bullet id %s", d.BulletID))
		return
	}
	if utf8.RuneCountInString(d.Content) < e.cfg.MinContentLength {
		e.skip(result, index, playbook.DeltaReplace, "content missing or below minimum length")
		return
	}
	bullet.Content = d.Content
	bullet.UpdatedAt = e.now()
	result.Applied++
}

func (e *Engine) applyDeprecate(target *playbook.Playbook, d playbook.DeprecateDelta, index int, result *playbook.CurationResult) {
	bullet := target.FindBullet(d.BulletID)
	if bullet == nil {
		e.skip(result, index, playbook.DeltaDeprecate, fmt.Sprintf("unknown bullet id %s", d.BulletID))
		return
	}
	bullet.Deprecate(d.Reason, d.ReplacedBy)
	result.Applied++
}

func (e *Engine) applyMerge(target *playbook.Playbook, d playbook.MergeDelta, index int, result *playbook.CurationResult) {
	if len(d.BulletIDs) < 2 {
		e.skip(result, index, playbook.DeltaMerge, "merge requires at least two bullet ids")
		return
	}
	if utf8.RuneCountInString(d.MergedContent) < e.cfg.MinContentLength {
		e.skip(result, index, playbook.DeltaMerge, "merged content missing or below minimum length")
		return
	}

	var sources []*playbook.Bullet
	for _, id := range d.BulletIDs {
		b := target.FindBullet(id)
		if b == nil {
			e.skip(result, index, playbook.DeltaMerge, fmt.Sprintf("unknown bullet id %s", id))
			return
		}
		sources = append(sources, b)
	}

	first := sources[0]
	merged := &playbook.Bullet{
		ID:           playbook.NewBulletID(),
		Content:      d.MergedContent,
		Category:     first.Category,
		Scope:        first.Scope,
		WorkspaceKey: first.WorkspaceKey,
		ScopeKey:     first.ScopeKey,
		Kind:         first.Kind,
		IsNegative:   first.IsNegative,
		State:        playbook.StateActive,
		Maturity:     playbook.MaturityCandidate,
		HalfLifeDays: first.HalfLifeDays,
		CreatedAt:    e.now(),
		UpdatedAt:    e.now(),
	}
	for _, src := range sources {
		merged.Provenance.SourceSessions = append(merged.Provenance.SourceSessions, src.Provenance.SourceSessions...)
		merged.Provenance.SourceAgents = append(merged.Provenance.SourceAgents, src.Provenance.SourceAgents...)
	}
	merged.Provenance.Reasoning = fmt.Sprintf("merged from %d bullets", len(sources))

	if err := target.AddBullet(merged); err != nil {
		e.skip(result, index, playbook.DeltaMerge, fmt.Sprintf("merge rejected: %v", err))
		return
	}
	for _, src := range sources {
		src.Deprecate("merged into consolidated bullet", merged.ID)
	}
	result.Applied++
	e.logger.Debug("bullets merged",
		zap.Strings("source_ids", d.BulletIDs),
		zap.String("merged_id", merged.ID))
}

// promotionPass re-evaluates every touched bullet's maturity and reports
// changes not already covered by an inversion.
func (e *Engine) promotionPass(target *playbook.Playbook, touched map[string]playbook.Maturity, result *playbook.CurationResult) {
	inverted := make(map[string]bool, len(result.Inversions))
	for _, inv := range result.Inversions {
		inverted[inv.OriginalID] = true
	}

	for id, before := range touched {
		if inverted[id] {
			continue
		}
		bullet := target.FindBullet(id)
		if bullet == nil || bullet.Deprecated {
			continue
		}
		next := scoring.CalculateMaturity(bullet, e.cfg.Scoring)
		if next == playbook.MaturityDeprecated {
			// Deprecation is inversion's job; see applyFeedback.
			continue
		}
		if next == bullet.Maturity && next == before {
			continue
		}
		if next != bullet.Maturity {
			bullet.Maturity = next
			bullet.UpdatedAt = e.now()
		}
		if bullet.Maturity != before {
			result.Promotions = append(result.Promotions, playbook.PromotionReport{
				BulletID:  id,
				From:      before,
				To:        bullet.Maturity,
				Promotion: rankOf(bullet.Maturity) > rankOf(before),
				Reason: fmt.Sprintf("%d helpful / %d harmful feedback",
					bullet.HelpfulCount, bullet.HarmfulCount),
			})
		}
	}
}

// rankOf mirrors the scoring package's maturity ordering for report labels.
func rankOf(m playbook.Maturity) int {
	switch m {
	case playbook.MaturityDeprecated:
		return 0
	case playbook.MaturityCandidate:
		return 1
	case playbook.MaturityEstablished:
		return 2
	case playbook.MaturityProven:
		return 3
	default:
		return 1
	}
}

// prunePass removes non-pinned deprecated bullets whose harmful count
// exceeds the prune threshold.
func (e *Engine) prunePass(target *playbook.Playbook, result *playbook.CurationResult) {
	var keep []*playbook.Bullet
	for _, b := range target.Bullets {
		if !b.Pinned && b.Deprecated && b.HarmfulCount > e.cfg.PruneHarmfulThreshold {
			result.Pruned = append(result.Pruned, b.ID)
			if e.cfg.PruneMode == PruneTombstone {
				target.DeprecatedPatterns = append(target.DeprecatedPatterns, b.Content)
			}
			e.logger.Debug("bullet pruned",
				zap.String("bullet_id", b.ID),
				zap.String("mode", string(e.cfg.PruneMode)))
			continue
		}
		keep = append(keep, b)
	}
	target.Bullets = keep
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
