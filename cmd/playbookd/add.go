package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/store"
)

var (
	addCategory    string
	addScope       string
	addScopeKey    string
	addWorkspace   string
	addAntiPattern bool
	addReason      string
	addSkipChecks  bool
)

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Propose a new rule for the playbook",
	Long: `Propose a new rule. The proposal runs through the validation
pipeline (evidence gate, then LLM verdict when ambiguous) unless
--skip-validation is given, and then through curation, which may skip it
as a duplicate of an existing rule.

Examples:
  # Project-scoped rule
  playbookd add "Run the linter before committing" --category workflow

  # Global anti-pattern
  playbookd add "Avoid: editing generated files" --global --anti-pattern`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addCategory, "category", "", "category for dedup and conflict grouping")
	addCmd.Flags().StringVar(&addScope, "scope", "", "bullet scope (global, workspace, language, framework, task)")
	addCmd.Flags().StringVar(&addScopeKey, "scope-key", "", "key for language/framework/task scopes")
	addCmd.Flags().StringVar(&addWorkspace, "workspace", "", "workspace key for workspace scope")
	addCmd.Flags().BoolVar(&addAntiPattern, "anti-pattern", false, "record as an anti-pattern instead of a rule")
	addCmd.Flags().StringVar(&addReason, "reason", "", "why this rule is proposed")
	addCmd.Flags().BoolVar(&addSkipChecks, "skip-validation", false, "bypass the validation pipeline")
}

// buildAddDelta assembles the add delta from the command flags. Workspace
// scope is the default for project rules and keys on the resolved project
// root when no explicit workspace is given.
func buildAddDelta(content, projectRoot string) playbook.AddDelta {
	scope := playbook.Scope(addScope)
	if scope == "" {
		scope = playbook.ScopeWorkspace
		if flagGlobal {
			scope = playbook.ScopeGlobal
		}
	}
	workspaceKey := addWorkspace
	if scope == playbook.ScopeWorkspace && workspaceKey == "" {
		workspaceKey = projectRoot
	}
	kind := playbook.KindRule
	if addAntiPattern {
		kind = playbook.KindAntiPattern
	}
	return playbook.AddDelta{
		Content:      content,
		Category:     addCategory,
		Scope:        scope,
		ScopeKey:     addScopeKey,
		WorkspaceKey: workspaceKey,
		BulletKind:   kind,
		Reason:       addReason,
		SourceAgent:  "cli",
	}
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	delta := buildAddDelta(strings.TrimSpace(args[0]), a.projectRoot)

	if !addSkipChecks {
		pipe, err := a.pipeline()
		if err != nil {
			return err
		}
		res := pipe.ValidateDelta(cmd.Context(), delta)
		if !res.Valid {
			if flagJSON {
				return printJSON(res)
			}
			return fmt.Errorf("rule rejected by validation: %s", lastReason(res.DecisionLog))
		}
		if res.SuggestedState != "" {
			delta.SuggestedState = res.SuggestedState
		}
	}

	path := a.targetPath()
	var result *playbook.CurationResult
	err = store.WithLock(path, func() error {
		pb, err := a.store.Load(path)
		if err != nil {
			return err
		}
		result = a.engine.Curate(pb, []playbook.Delta{delta}, nil)
		return a.store.Save(path, pb)
	})
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(result)
	}
	if result.Applied == 0 {
		fmt.Printf("not added: %s\n", firstSkipReason(result))
		return nil
	}
	fmt.Printf("added rule to %s\n", path)
	return nil
}
