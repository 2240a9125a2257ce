package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/playbookd/internal/curation"
	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

// resetAddFlags restores the flag globals a test mutates.
func resetAddFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		flagGlobal = false
		addScope, addScopeKey, addWorkspace = "", "", ""
		addCategory, addReason = "", ""
		addAntiPattern = false
	})
}

func TestBuildAddDeltaDefaultsWorkspaceToProjectRoot(t *testing.T) {
	resetAddFlags(t)
	addCategory = "workflow"

	delta := buildAddDelta("Run the linter before committing", "/work/repo")
	assert.Equal(t, playbook.ScopeWorkspace, delta.Scope)
	assert.Equal(t, "/work/repo", delta.WorkspaceKey)
	assert.Equal(t, "cli", delta.SourceAgent)

	// The help-text example must produce an applicable delta.
	pb, err := playbook.NewPlaybook("repo")
	require.NoError(t, err)
	engine := curation.NewEngine(curation.DefaultConfig(), nil)
	result := engine.Curate(pb, []playbook.Delta{delta}, nil)
	assert.Equal(t, 1, result.Applied)
	assert.Empty(t, result.SkipReasons)
}

func TestBuildAddDeltaGlobalScope(t *testing.T) {
	resetAddFlags(t)
	flagGlobal = true
	addAntiPattern = true

	delta := buildAddDelta("Avoid: editing generated files", "/work/repo")
	assert.Equal(t, playbook.ScopeGlobal, delta.Scope)
	assert.Empty(t, delta.WorkspaceKey)
	assert.Equal(t, playbook.KindAntiPattern, delta.BulletKind)
}

func TestBuildAddDeltaExplicitWorkspaceWins(t *testing.T) {
	resetAddFlags(t)
	addWorkspace = "/work/other"

	delta := buildAddDelta("Run the linter before committing", "/work/repo")
	assert.Equal(t, "/work/other", delta.WorkspaceKey)
}

func TestBuildAddDeltaScopedKinds(t *testing.T) {
	resetAddFlags(t)
	addScope = "language"
	addScopeKey = "go"

	delta := buildAddDelta("Prefer table-driven tests in Go packages", "/work/repo")
	assert.Equal(t, playbook.ScopeLanguage, delta.Scope)
	assert.Equal(t, "go", delta.ScopeKey)
	assert.Empty(t, delta.WorkspaceKey)
}
