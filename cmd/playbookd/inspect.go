package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/scoring"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <bullet-id>",
	Short: "Show a rule's full state and feedback history",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	global, err := a.store.Load(a.globalPath)
	if err != nil {
		return err
	}
	project, err := a.store.Load(a.projectPath)
	if err != nil {
		return err
	}

	b := playbook.NewContextView(global, project).FindBullet(args[0])
	if b == nil {
		return fmt.Errorf("bullet %s not found", args[0])
	}

	cfg := a.cfg.Curation.Scoring
	asOf := time.Now().UTC()
	if flagJSON {
		return printJSON(struct {
			*playbook.Bullet
			EffectiveScore float64 `json:"effectiveScore"`
		}{b, scoring.EffectiveScore(b, asOf, cfg)})
	}

	fmt.Printf("id:        %s\n", b.ID)
	fmt.Printf("content:   %s\n", b.Content)
	fmt.Printf("category:  %s\n", b.Category)
	fmt.Printf("scope:     %s\n", describeScope(b))
	fmt.Printf("kind:      %s\n", b.Kind)
	fmt.Printf("state:     %s\n", b.State)
	fmt.Printf("maturity:  %s\n", b.Maturity)
	fmt.Printf("score:     %.3f (half-life %.0f days)\n",
		scoring.EffectiveScore(b, asOf, cfg), halfLife(b, cfg))
	fmt.Printf("feedback:  %d helpful, %d harmful\n", b.HelpfulCount, b.HarmfulCount)
	if b.Deprecated && b.Deprecation != nil {
		fmt.Printf("deprecated: %s", b.Deprecation.Reason)
		if b.Deprecation.ReplacedBy != "" {
			fmt.Printf(" (replaced by %s)", b.Deprecation.ReplacedBy)
		}
		fmt.Println()
	}
	if len(b.FeedbackEvents) > 0 {
		fmt.Println("events:")
		for _, ev := range b.FeedbackEvents {
			fmt.Printf("  %s  %-8s %s\n", ev.Timestamp.Format(time.RFC3339), ev.Type, ev.Reason)
		}
	}
	return nil
}

func describeScope(b *playbook.Bullet) string {
	switch b.Scope {
	case playbook.ScopeWorkspace:
		return fmt.Sprintf("%s (%s)", b.Scope, b.WorkspaceKey)
	case playbook.ScopeLanguage, playbook.ScopeFramework, playbook.ScopeTask:
		return fmt.Sprintf("%s (%s)", b.Scope, b.ScopeKey)
	default:
		return string(b.Scope)
	}
}

func halfLife(b *playbook.Bullet, cfg scoring.Config) float64 {
	if b.HalfLifeDays > 0 {
		return b.HalfLifeDays
	}
	return cfg.HalfLifeDays
}
