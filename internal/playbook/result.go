package playbook

import "time"

// ConflictReport records a contradiction detected between a newly added
// bullet and an existing one.
type ConflictReport struct {
	// NewBulletID is the bullet that was added despite the conflict.
	NewBulletID string `json:"newBulletId"`

	// ExistingBulletID is the bullet it appears to contradict.
	ExistingBulletID string `json:"existingBulletId"`

	// Detail describes the overlap that triggered the heuristic.
	Detail string `json:"detail,omitempty"`
}

// PromotionReport records a maturity change during a curation run.
type PromotionReport struct {
	BulletID  string   `json:"bulletId"`
	From      Maturity `json:"from"`
	To        Maturity `json:"to"`
	Promotion bool     `json:"promotion"`
	Reason    string   `json:"reason,omitempty"`
}

// InversionReport records an auto-inversion: a harmful rule demoted and
// replaced by a derived anti-pattern bullet.
type InversionReport struct {
	OriginalID      string `json:"originalId"`
	OriginalContent string `json:"originalContent"`
	InvertedID      string `json:"invertedId"`
	InvertedContent string `json:"invertedContent"`
}

// SkipReason explains one skipped delta.
type SkipReason struct {
	// Index is the position of the delta in the input order.
	Index int `json:"index"`

	// Kind is the delta variant.
	Kind DeltaKind `json:"kind"`

	// Reason is why the delta was skipped.
	Reason string `json:"reason"`
}

// CurationResult is the audit record returned from a curation run. The
// mutated playbook plus counts and reports, in input order.
type CurationResult struct {
	// Playbook is the mutated target playbook.
	Playbook *Playbook `json:"-"`

	// Applied counts deltas that mutated the playbook.
	Applied int `json:"applied"`

	// Skipped counts deltas that were ignored (with reasons below).
	Skipped int `json:"skipped"`

	// SkipReasons explains each skipped delta.
	SkipReasons []SkipReason `json:"skipReasons,omitempty"`

	// Conflicts lists contradictions detected on add.
	Conflicts []ConflictReport `json:"conflicts,omitempty"`

	// Promotions lists maturity changes from the promotion pass.
	Promotions []PromotionReport `json:"promotions,omitempty"`

	// Inversions lists harmful rules inverted into anti-patterns.
	Inversions []InversionReport `json:"inversions,omitempty"`

	// Pruned lists bullet ids removed or tombstoned by the pruning pass.
	Pruned []string `json:"pruned,omitempty"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completedAt"`
}
