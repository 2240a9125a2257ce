package playbook

import (
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is the current on-disk schema version.
const SchemaVersion = 1

// Common errors for playbook collection operations.
var (
	ErrBulletNotFound  = errors.New("bullet not found")
	ErrDuplicateBullet = errors.New("bullet id already exists in playbook")
	ErrSchemaVersion   = errors.New("unsupported playbook schema version")
	ErrEmptyName       = errors.New("playbook name cannot be empty")
)

// Metadata holds playbook-level bookkeeping.
type Metadata struct {
	// CreatedAt is when the playbook file was first initialized.
	CreatedAt time.Time `json:"createdAt"`

	// LastReflectionAt is when a reflection run last touched this playbook.
	LastReflectionAt time.Time `json:"lastReflectionAt,omitempty"`

	// TotalSessionsProcessed counts sessions reflected into this playbook.
	TotalSessionsProcessed int `json:"totalSessionsProcessed"`

	// TotalDeltasApplied counts deltas ever applied.
	TotalDeltasApplied int `json:"totalDeltasApplied"`
}

// Playbook is a named, versioned collection of bullets.
//
// Two instances may coexist per system: a global (user-level) playbook and
// an optional project-level one. A bullet is owned by exactly one file at a
// time, determined by where its id currently resides.
type Playbook struct {
	// SchemaVersion is the on-disk schema version.
	SchemaVersion int `json:"schemaVersion"`

	// Name identifies the playbook (e.g. "global", project name).
	Name string `json:"name"`

	// Description is optional free text.
	Description string `json:"description,omitempty"`

	// Metadata holds bookkeeping counters.
	Metadata Metadata `json:"metadata"`

	// DeprecatedPatterns are literal tombstones of pruned content.
	DeprecatedPatterns []string `json:"deprecatedPatterns,omitempty"`

	// Bullets is the rule list.
	Bullets []*Bullet `json:"bullets"`
}

// NewPlaybook creates an empty playbook with current schema version.
func NewPlaybook(name string) (*Playbook, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	return &Playbook{
		SchemaVersion: SchemaVersion,
		Name:          name,
		Metadata:      Metadata{CreatedAt: time.Now().UTC()},
		Bullets:       []*Bullet{},
	}, nil
}

// Validate checks schema version, bullet invariants and id uniqueness.
func (p *Playbook) Validate() error {
	if p.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: %d", ErrSchemaVersion, p.SchemaVersion)
	}
	if p.Name == "" {
		return ErrEmptyName
	}
	seen := make(map[string]bool, len(p.Bullets))
	for _, b := range p.Bullets {
		if seen[b.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateBullet, b.ID)
		}
		seen[b.ID] = true
		if err := b.Validate(); err != nil {
			return fmt.Errorf("bullet %s: %w", b.ID, err)
		}
	}
	return nil
}

// FindBullet returns the bullet with the given id, or nil.
func (p *Playbook) FindBullet(id string) *Bullet {
	for _, b := range p.Bullets {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// AddBullet appends a bullet, rejecting duplicate ids.
func (p *Playbook) AddBullet(b *Bullet) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if p.FindBullet(b.ID) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateBullet, b.ID)
	}
	p.Bullets = append(p.Bullets, b)
	return nil
}

// RemoveBullet hard-deletes a bullet by id. This is an administrative
// override outside the delta vocabulary; curation never calls it directly.
func (p *Playbook) RemoveBullet(id string) error {
	for i, b := range p.Bullets {
		if b.ID == id {
			p.Bullets = append(p.Bullets[:i], p.Bullets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrBulletNotFound, id)
}

// ActiveBullets returns bullets that participate in dedup and retrieval.
func (p *Playbook) ActiveBullets() []*Bullet {
	out := make([]*Bullet, 0, len(p.Bullets))
	for _, b := range p.Bullets {
		if b.IsActive() {
			out = append(out, b)
		}
	}
	return out
}

// ContextView is a read-only merged view over one or more playbooks, used
// for duplicate and conflict lookups across scopes. It never mutates the
// underlying playbooks.
type ContextView struct {
	books []*Playbook
}

// NewContextView merges the given playbooks. Nil entries are skipped.
func NewContextView(books ...*Playbook) *ContextView {
	v := &ContextView{}
	for _, b := range books {
		if b != nil {
			v.books = append(v.books, b)
		}
	}
	return v
}

// ActiveBulletsInCategory returns all active bullets matching a category
// across the merged playbooks. An empty category matches bullets with no
// category.
func (v *ContextView) ActiveBulletsInCategory(category string) []*Bullet {
	var out []*Bullet
	for _, book := range v.books {
		for _, b := range book.Bullets {
			if b.IsActive() && b.Category == category {
				out = append(out, b)
			}
		}
	}
	return out
}

// ActiveBullets returns all active bullets across the merged playbooks.
func (v *ContextView) ActiveBullets() []*Bullet {
	var out []*Bullet
	for _, book := range v.books {
		out = append(out, book.ActiveBullets()...)
	}
	return out
}

// FindBullet searches all merged playbooks for a bullet id.
func (v *ContextView) FindBullet(id string) *Bullet {
	for _, book := range v.books {
		if b := book.FindBullet(id); b != nil {
			return b
		}
	}
	return nil
}
