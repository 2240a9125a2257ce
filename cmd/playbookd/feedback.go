package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/store"
)

var (
	feedbackHelpful bool
	feedbackHarmful bool
	feedbackReason  string
	feedbackSession string
	feedbackContext string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <bullet-id>",
	Short: "Record helpful or harmful feedback against a rule",
	Long: `Record one feedback event against a rule. Feedback drives decay
scoring and the maturity machine: enough harmful feedback demotes and
eventually deprecates a rule, which may then be inverted into an
anti-pattern.

Examples:
  playbookd feedback blt-1234 --helpful --reason "caught a real bug"
  playbookd feedback blt-1234 --harmful --session ~/sessions/2026-08-27.md`,
	Args: cobra.ExactArgs(1),
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().BoolVar(&feedbackHelpful, "helpful", false, "the rule helped")
	feedbackCmd.Flags().BoolVar(&feedbackHarmful, "harmful", false, "the rule hurt")
	feedbackCmd.Flags().StringVar(&feedbackReason, "reason", "", "what happened")
	feedbackCmd.Flags().StringVar(&feedbackSession, "session", "", "session transcript path")
	feedbackCmd.Flags().StringVar(&feedbackContext, "context", "", "surrounding context for the event")
	feedbackCmd.MarkFlagsOneRequired("helpful", "harmful")
	feedbackCmd.MarkFlagsMutuallyExclusive("helpful", "harmful")
}

func runFeedback(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	bulletID := args[0]
	var delta playbook.Delta
	if feedbackHelpful {
		delta = playbook.HelpfulDelta{
			BulletID:    bulletID,
			SessionPath: feedbackSession,
			Context:     feedbackContext,
			Reason:      feedbackReason,
		}
	} else {
		delta = playbook.HarmfulDelta{
			BulletID:    bulletID,
			SessionPath: feedbackSession,
			Context:     feedbackContext,
			Reason:      feedbackReason,
		}
	}

	// Feedback targets the bullet wherever it lives, so try the selected
	// playbook first and fall back to the other one.
	paths := []string{a.targetPath()}
	if other := a.otherPath(); other != "" {
		paths = append(paths, other)
	}

	for _, path := range paths {
		var result *playbook.CurationResult
		var found bool
		err := store.WithLock(path, func() error {
			pb, err := a.store.Load(path)
			if err != nil {
				return err
			}
			if pb.FindBullet(bulletID) == nil {
				return nil
			}
			found = true
			result = a.engine.Curate(pb, []playbook.Delta{delta}, nil)
			return a.store.Save(path, pb)
		})
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if flagJSON {
			return printJSON(result)
		}
		printCurationSummary(result)
		return nil
	}
	return fmt.Errorf("bullet %s not found in %v", bulletID, paths)
}
