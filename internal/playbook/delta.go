package playbook

// DeltaKind discriminates the delta union.
type DeltaKind string

const (
	DeltaAdd       DeltaKind = "add"
	DeltaHelpful   DeltaKind = "helpful"
	DeltaHarmful   DeltaKind = "harmful"
	DeltaReplace   DeltaKind = "replace"
	DeltaDeprecate DeltaKind = "deprecate"
	DeltaMerge     DeltaKind = "merge"
)

// Delta is one proposed mutation to a playbook. It is a closed union: the
// six variants below are the only implementations, and the curation engine
// switches exhaustively over them.
type Delta interface {
	// Kind returns the variant tag.
	Kind() DeltaKind

	deltaVariant()
}

// AddDelta proposes a new bullet.
type AddDelta struct {
	// Content is the proposed rule text.
	Content string `json:"content"`

	// Category groups the bullet for dedup and conflict detection.
	Category string `json:"category,omitempty"`

	// Scope is where the bullet applies. Defaults to global when empty.
	Scope Scope `json:"scope,omitempty"`

	// WorkspaceKey pairs with ScopeWorkspace.
	WorkspaceKey string `json:"workspaceKey,omitempty"`

	// ScopeKey pairs with language/framework/task scopes.
	ScopeKey string `json:"scopeKey,omitempty"`

	// Kind is rule or anti-pattern. Defaults to rule when empty.
	BulletKind Kind `json:"bulletKind,omitempty"`

	// Reason is why this rule is proposed.
	Reason string `json:"reason,omitempty"`

	// SourceSession is the transcript the rule was distilled from.
	SourceSession string `json:"sourceSession,omitempty"`

	// SourceAgent is the agent whose session produced the rule.
	SourceAgent string `json:"sourceAgent,omitempty"`

	// SuggestedState optionally overrides the default draft state.
	// Set by the validation pipeline (draft or active).
	SuggestedState State `json:"suggestedState,omitempty"`
}

// HelpfulDelta records positive feedback against a bullet.
type HelpfulDelta struct {
	BulletID    string `json:"bulletId"`
	SessionPath string `json:"sessionPath,omitempty"`
	Context     string `json:"context,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// HarmfulDelta records negative feedback against a bullet.
type HarmfulDelta struct {
	BulletID    string `json:"bulletId"`
	SessionPath string `json:"sessionPath,omitempty"`
	Context     string `json:"context,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// ReplaceDelta updates a bullet's content, preserving feedback history.
type ReplaceDelta struct {
	BulletID string `json:"bulletId"`
	Content  string `json:"content"`
}

// DeprecateDelta marks a bullet deprecated.
type DeprecateDelta struct {
	BulletID   string `json:"bulletId"`
	Reason     string `json:"reason"`
	ReplacedBy string `json:"replacedBy,omitempty"`
}

// MergeDelta combines multiple bullets into a new one.
type MergeDelta struct {
	BulletIDs     []string `json:"bulletIds"`
	MergedContent string   `json:"mergedContent"`
}

func (AddDelta) Kind() DeltaKind       { return DeltaAdd }
func (HelpfulDelta) Kind() DeltaKind   { return DeltaHelpful }
func (HarmfulDelta) Kind() DeltaKind   { return DeltaHarmful }
func (ReplaceDelta) Kind() DeltaKind   { return DeltaReplace }
func (DeprecateDelta) Kind() DeltaKind { return DeltaDeprecate }
func (MergeDelta) Kind() DeltaKind     { return DeltaMerge }

func (AddDelta) deltaVariant()       {}
func (HelpfulDelta) deltaVariant()   {}
func (HarmfulDelta) deltaVariant()   {}
func (ReplaceDelta) deltaVariant()   {}
func (DeprecateDelta) deltaVariant() {}
func (MergeDelta) deltaVariant()     {}
