package playbook

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors for playbook model operations.
var (
	ErrEmptyContent       = errors.New("bullet content cannot be empty")
	ErrInvalidScope       = errors.New("invalid bullet scope")
	ErrMissingWorkspace   = errors.New("workspace scope requires a workspace key")
	ErrMissingScopeKey    = errors.New("scoped bullet requires a scope key")
	ErrConflictingScope   = errors.New("workspace key and scope key are mutually exclusive")
	ErrInvalidKind        = errors.New("bullet kind must be rule or anti-pattern")
	ErrInvalidState       = errors.New("invalid bullet state")
	ErrInvalidMaturity    = errors.New("invalid bullet maturity")
	ErrCounterMismatch    = errors.New("cached feedback counters do not match event list")
	ErrPolarityMismatch   = errors.New("negative flag does not match bullet kind")
	ErrInvalidFeedback    = errors.New("feedback type must be helpful or harmful")
	ErrNoFeedbackToUndo   = errors.New("bullet has no feedback events to undo")
	ErrDeprecatedMaturity = errors.New("deprecated bullet must have deprecated maturity")
)

// Scope identifies where a bullet applies.
type Scope string

const (
	// ScopeGlobal applies everywhere.
	ScopeGlobal Scope = "global"

	// ScopeWorkspace applies to a single workspace, identified by WorkspaceKey.
	ScopeWorkspace Scope = "workspace"

	// ScopeLanguage applies to a programming language, identified by ScopeKey.
	ScopeLanguage Scope = "language"

	// ScopeFramework applies to a framework, identified by ScopeKey.
	ScopeFramework Scope = "framework"

	// ScopeTask applies to a task type, identified by ScopeKey.
	ScopeTask Scope = "task"
)

// Kind is the polarity of a bullet.
type Kind string

const (
	// KindRule is a positive rule to follow.
	KindRule Kind = "rule"

	// KindAntiPattern is a pattern to avoid.
	KindAntiPattern Kind = "anti-pattern"
)

// State is the lifecycle state of a bullet.
type State string

const (
	// StateDraft is a bullet awaiting enough evidence to be trusted.
	StateDraft State = "draft"

	// StateActive is a bullet in normal use.
	StateActive State = "active"

	// StateRetired is a bullet no longer surfaced.
	StateRetired State = "retired"
)

// Maturity is the confidence stage of a bullet.
type Maturity string

const (
	// MaturityCandidate is the initial stage with insufficient feedback.
	MaturityCandidate Maturity = "candidate"

	// MaturityEstablished has enough feedback with an acceptable harmful ratio.
	MaturityEstablished Maturity = "established"

	// MaturityProven has strong helpful evidence and near-zero harmful ratio.
	MaturityProven Maturity = "proven"

	// MaturityDeprecated has been demoted after harmful feedback.
	MaturityDeprecated Maturity = "deprecated"
)

// FeedbackType classifies a feedback event.
type FeedbackType string

const (
	// FeedbackHelpful records that the bullet helped a session.
	FeedbackHelpful FeedbackType = "helpful"

	// FeedbackHarmful records that the bullet hurt a session.
	FeedbackHarmful FeedbackType = "harmful"
)

// FeedbackEvent is a single helpful/harmful observation against a bullet.
//
// Events are immutable once recorded; the only removal path is
// UndoLastFeedback, an explicit administrative operation.
type FeedbackEvent struct {
	// Type is helpful or harmful.
	Type FeedbackType `json:"type"`

	// Timestamp is when the feedback was observed.
	Timestamp time.Time `json:"timestamp"`

	// SessionPath is the transcript the feedback came from, if known.
	SessionPath string `json:"sessionPath,omitempty"`

	// Reason is a free-text explanation.
	Reason string `json:"reason,omitempty"`

	// Context is a short snippet of the surrounding situation.
	Context string `json:"context,omitempty"`
}

// Provenance tracks where a bullet came from.
type Provenance struct {
	// SourceSessions are the transcript paths that produced this bullet.
	SourceSessions []string `json:"sourceSessions,omitempty"`

	// SourceAgents are the agents whose sessions contributed.
	SourceAgents []string `json:"sourceAgents,omitempty"`

	// Reasoning is free-text justification recorded at creation time.
	Reasoning string `json:"reasoning,omitempty"`
}

// Deprecation holds metadata for a deprecated bullet.
type Deprecation struct {
	// Reason explains why the bullet was deprecated.
	Reason string `json:"reason"`

	// DeprecatedAt is when the deprecation happened.
	DeprecatedAt time.Time `json:"deprecatedAt"`

	// ReplacedBy is the id of a bullet that supersedes this one, if any.
	ReplacedBy string `json:"replacedBy,omitempty"`
}

// Bullet is a single rule or anti-pattern with its feedback history.
type Bullet struct {
	// ID is the stable identifier ("blt-" + UUID).
	ID string `json:"id"`

	// Content is the rule text.
	Content string `json:"content"`

	// Category groups bullets for dedup and conflict detection.
	Category string `json:"category,omitempty"`

	// Scope is where the bullet applies.
	Scope Scope `json:"scope"`

	// WorkspaceKey identifies the workspace for workspace-scoped bullets.
	WorkspaceKey string `json:"workspaceKey,omitempty"`

	// ScopeKey identifies the language/framework/task for specific scopes.
	ScopeKey string `json:"scopeKey,omitempty"`

	// Kind is rule or anti-pattern.
	Kind Kind `json:"kind"`

	// IsNegative mirrors Kind == anti-pattern.
	IsNegative bool `json:"isNegative"`

	// State is the lifecycle state.
	State State `json:"state"`

	// Maturity is the confidence stage.
	Maturity Maturity `json:"maturity"`

	// FeedbackEvents is the ordered feedback history, the single source of
	// truth for the cached counters below.
	FeedbackEvents []FeedbackEvent `json:"feedbackEvents,omitempty"`

	// HelpfulCount caches the number of helpful events.
	HelpfulCount int `json:"helpfulCount"`

	// HarmfulCount caches the number of harmful events.
	HarmfulCount int `json:"harmfulCount"`

	// HalfLifeDays is the decay half-life for this bullet's feedback.
	HalfLifeDays float64 `json:"halfLifeDays"`

	// Pinned exempts the bullet from auto-deprecation and pruning.
	Pinned bool `json:"pinned,omitempty"`

	// Provenance records where the bullet came from.
	Provenance Provenance `json:"provenance"`

	// Deprecated marks the bullet as demoted.
	Deprecated bool `json:"deprecated,omitempty"`

	// Deprecation holds deprecation metadata when Deprecated is true.
	Deprecation *Deprecation `json:"deprecation,omitempty"`

	// CreatedAt is when the bullet was created.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is when the bullet was last modified.
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultHalfLifeDays is the decay half-life applied to new bullets.
const DefaultHalfLifeDays = 90.0

// NewBulletID returns a fresh bullet identifier.
func NewBulletID() string {
	return "blt-" + uuid.New().String()
}

// NewBullet creates a draft candidate bullet with validated scope pairing.
func NewBullet(content string, category string, scope Scope, kind Kind, prov Provenance) (*Bullet, error) {
	now := time.Now().UTC()
	b := &Bullet{
		ID:           NewBulletID(),
		Content:      content,
		Category:     category,
		Scope:        scope,
		Kind:         kind,
		IsNegative:   kind == KindAntiPattern,
		State:        StateDraft,
		Maturity:     MaturityCandidate,
		HalfLifeDays: DefaultHalfLifeDays,
		Provenance:   prov,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// WithWorkspaceKey sets the workspace key and revalidates scope pairing.
func (b *Bullet) WithWorkspaceKey(key string) (*Bullet, error) {
	b.WorkspaceKey = key
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// WithScopeKey sets the scope key and revalidates scope pairing.
func (b *Bullet) WithScopeKey(key string) (*Bullet, error) {
	b.ScopeKey = key
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks all bullet invariants.
func (b *Bullet) Validate() error {
	if b.ID == "" {
		return errors.New("bullet ID cannot be empty")
	}
	if b.Content == "" {
		return ErrEmptyContent
	}
	if err := b.validateScope(); err != nil {
		return err
	}
	switch b.Kind {
	case KindRule, KindAntiPattern:
	default:
		return ErrInvalidKind
	}
	if b.IsNegative != (b.Kind == KindAntiPattern) {
		return ErrPolarityMismatch
	}
	switch b.State {
	case StateDraft, StateActive, StateRetired:
	default:
		return ErrInvalidState
	}
	switch b.Maturity {
	case MaturityCandidate, MaturityEstablished, MaturityProven, MaturityDeprecated:
	default:
		return ErrInvalidMaturity
	}
	if b.Deprecated && b.Maturity != MaturityDeprecated {
		return ErrDeprecatedMaturity
	}
	if b.HalfLifeDays <= 0 {
		return fmt.Errorf("half-life must be positive, got %v", b.HalfLifeDays)
	}
	helpful, harmful := countFeedback(b.FeedbackEvents)
	if b.HelpfulCount != helpful || b.HarmfulCount != harmful {
		return ErrCounterMismatch
	}
	for _, ev := range b.FeedbackEvents {
		if ev.Type != FeedbackHelpful && ev.Type != FeedbackHarmful {
			return ErrInvalidFeedback
		}
	}
	return nil
}

// validateScope enforces the scope/scope-key pairing invariant.
func (b *Bullet) validateScope() error {
	switch b.Scope {
	case ScopeGlobal:
		if b.WorkspaceKey != "" || b.ScopeKey != "" {
			return ErrConflictingScope
		}
	case ScopeWorkspace:
		if b.WorkspaceKey == "" {
			return ErrMissingWorkspace
		}
		if b.ScopeKey != "" {
			return ErrConflictingScope
		}
	case ScopeLanguage, ScopeFramework, ScopeTask:
		if b.ScopeKey == "" {
			return ErrMissingScopeKey
		}
		if b.WorkspaceKey != "" {
			return ErrConflictingScope
		}
	default:
		return ErrInvalidScope
	}
	return nil
}

// AddFeedback appends a feedback event and recomputes the cached counters.
func (b *Bullet) AddFeedback(ev FeedbackEvent) error {
	if ev.Type != FeedbackHelpful && ev.Type != FeedbackHarmful {
		return ErrInvalidFeedback
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b.FeedbackEvents = append(b.FeedbackEvents, ev)
	b.RecountFeedback()
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// UndoLastFeedback removes the most recent feedback event.
func (b *Bullet) UndoLastFeedback() (FeedbackEvent, error) {
	if len(b.FeedbackEvents) == 0 {
		return FeedbackEvent{}, ErrNoFeedbackToUndo
	}
	last := b.FeedbackEvents[len(b.FeedbackEvents)-1]
	b.FeedbackEvents = b.FeedbackEvents[:len(b.FeedbackEvents)-1]
	b.RecountFeedback()
	b.UpdatedAt = time.Now().UTC()
	return last, nil
}

// RecountFeedback recomputes the cached counters from the event list.
func (b *Bullet) RecountFeedback() {
	b.HelpfulCount, b.HarmfulCount = countFeedback(b.FeedbackEvents)
}

// TotalFeedback returns the total number of feedback events.
func (b *Bullet) TotalFeedback() int {
	return b.HelpfulCount + b.HarmfulCount
}

// HarmfulRatio returns harmful/total, or 0 when there is no feedback.
func (b *Bullet) HarmfulRatio() float64 {
	total := b.TotalFeedback()
	if total == 0 {
		return 0
	}
	return float64(b.HarmfulCount) / float64(total)
}

// IsActive reports whether the bullet participates in dedup and retrieval.
func (b *Bullet) IsActive() bool {
	return b.State == StateActive && !b.Deprecated
}

// Deprecate marks the bullet deprecated and aligns maturity.
func (b *Bullet) Deprecate(reason, replacedBy string) {
	now := time.Now().UTC()
	b.Deprecated = true
	b.Maturity = MaturityDeprecated
	b.State = StateRetired
	b.Deprecation = &Deprecation{
		Reason:       reason,
		DeprecatedAt: now,
		ReplacedBy:   replacedBy,
	}
	b.UpdatedAt = now
}

func countFeedback(events []FeedbackEvent) (helpful, harmful int) {
	for _, ev := range events {
		switch ev.Type {
		case FeedbackHelpful:
			helpful++
		case FeedbackHarmful:
			harmful++
		}
	}
	return helpful, harmful
}
