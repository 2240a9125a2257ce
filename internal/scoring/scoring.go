// Package scoring implements time-decayed confidence scoring and the
// maturity state machine for playbook bullets.
//
// All functions are pure: they take a bullet, a reference time and a
// configuration, and perform no I/O. The curation engine calls them after
// applying feedback deltas to decide promotions, demotions and inversions.
package scoring

import (
	"math"
	"time"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

// Config holds the scoring and maturity thresholds.
//
// The deprecation ratio is deliberately a distinct, higher-severity
// constant than the proven-disqualification ratio: a bullet can lose
// eligibility for "proven" at a 10% harmful ratio long before it is
// demoted outright. The deprecation default sits below an even split so
// a bullet whose feedback has degraded to half harmful is demoted rather
// than kept on the fence.
type Config struct {
	// HalfLifeDays is the default decay half-life for feedback events.
	HalfLifeDays float64 `koanf:"half_life_days"`

	// HarmfulMultiplier weights harmful events against helpful ones.
	HarmfulMultiplier float64 `koanf:"harmful_multiplier"`

	// MinFeedbackForActive is the total feedback needed to leave candidate.
	MinFeedbackForActive int `koanf:"min_feedback_for_active"`

	// MinHelpfulForProven is the helpful count needed to reach proven.
	MinHelpfulForProven int `koanf:"min_helpful_for_proven"`

	// MaxHarmfulRatioForProven disqualifies proven above this ratio.
	MaxHarmfulRatioForProven float64 `koanf:"max_harmful_ratio_for_proven"`

	// DeprecationHarmfulRatio triggers deprecation above this ratio.
	DeprecationHarmfulRatio float64 `koanf:"deprecation_harmful_ratio"`

	// MaturityMultipliers scale effective score per maturity level.
	MaturityMultipliers map[playbook.Maturity]float64 `koanf:"maturity_multipliers"`
}

// DefaultConfig returns the standard scoring thresholds.
func DefaultConfig() Config {
	return Config{
		HalfLifeDays:             playbook.DefaultHalfLifeDays,
		HarmfulMultiplier:        4.0,
		MinFeedbackForActive:     3,
		MinHelpfulForProven:      10,
		MaxHarmfulRatioForProven: 0.1,
		DeprecationHarmfulRatio:  0.4,
		MaturityMultipliers: map[playbook.Maturity]float64{
			playbook.MaturityCandidate:   0.5,
			playbook.MaturityEstablished: 1.0,
			playbook.MaturityProven:      1.5,
			playbook.MaturityDeprecated:  0.0,
		},
	}
}

// MaturityMultiplier returns the configured multiplier for a maturity,
// falling back to 1.0 when the table has no entry.
func (c Config) MaturityMultiplier(m playbook.Maturity) float64 {
	if mult, ok := c.MaturityMultipliers[m]; ok {
		return mult
	}
	return 1.0
}

// DecayedValue returns the weight of a feedback event observed at ts, as
// seen from asOf: 0.5^(ageDays/halfLife). Future-dated events (negative
// age) are clamped to full weight; the exponential needs no lower clamp.
func DecayedValue(ts, asOf time.Time, halfLifeDays float64) float64 {
	ageDays := asOf.Sub(ts).Hours() / 24.0
	v := math.Pow(0.5, ageDays/halfLifeDays)
	if v > 1.0 {
		return 1.0
	}
	return v
}

// EffectiveScore computes the maturity-scaled, time-decayed confidence of
// a bullet. A bullet with no feedback events scores exactly 0.
func EffectiveScore(b *playbook.Bullet, asOf time.Time, cfg Config) float64 {
	if len(b.FeedbackEvents) == 0 {
		return 0
	}
	halfLife := b.HalfLifeDays
	if halfLife <= 0 {
		halfLife = cfg.HalfLifeDays
	}
	var helpful, harmful float64
	for _, ev := range b.FeedbackEvents {
		w := DecayedValue(ev.Timestamp, asOf, halfLife)
		switch ev.Type {
		case playbook.FeedbackHelpful:
			helpful += w
		case playbook.FeedbackHarmful:
			harmful += w
		}
	}
	return cfg.MaturityMultiplier(b.Maturity) * (helpful - cfg.HarmfulMultiplier*harmful)
}

// CalculateMaturity returns the maturity a bullet should hold given its
// feedback counters. It never returns a transition for pinned bullets
// toward deprecated; pinning exempts from auto-deprecation only, the
// positive transitions still apply.
func CalculateMaturity(b *playbook.Bullet, cfg Config) playbook.Maturity {
	total := b.TotalFeedback()
	if total < cfg.MinFeedbackForActive {
		return b.Maturity
	}

	ratio := b.HarmfulRatio()
	if ratio > cfg.DeprecationHarmfulRatio && !b.Pinned {
		return playbook.MaturityDeprecated
	}
	if b.HelpfulCount >= cfg.MinHelpfulForProven && ratio <= cfg.MaxHarmfulRatioForProven {
		return playbook.MaturityProven
	}
	return playbook.MaturityEstablished
}

// maturityRank orders maturities for promotion/demotion direction checks.
// Deprecated ranks below candidate so any transition into it is a demotion.
func maturityRank(m playbook.Maturity) int {
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

// CheckPromotion returns the new maturity and true when the calculated
// maturity is a promotion over the current one.
func CheckPromotion(b *playbook.Bullet, cfg Config) (playbook.Maturity, bool) {
	next := CalculateMaturity(b, cfg)
	if maturityRank(next) > maturityRank(b.Maturity) {
		return next, true
	}
	return b.Maturity, false
}

// CheckDemotion returns the new maturity and true when the calculated
// maturity is a demotion from the current one.
func CheckDemotion(b *playbook.Bullet, cfg Config) (playbook.Maturity, bool) {
	next := CalculateMaturity(b, cfg)
	if maturityRank(next) < maturityRank(b.Maturity) {
		return next, true
	}
	return b.Maturity, false
}
