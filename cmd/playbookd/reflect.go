package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/playbookd/internal/reflect"
)

var (
	reflectForce   bool
	reflectSessDir string
)

var reflectCmd = &cobra.Command{
	Use:   "reflect [session-files...]",
	Short: "Distill sessions into playbook updates",
	Long: `Run the reflection job: read session diaries, extract proposed
deltas with the configured LLM, validate new rules against historical
evidence, and curate both the global and project playbooks under file
locks.

Sessions already recorded in the processed log are skipped unless
--force is given. Sessions may be listed explicitly or discovered from a
directory of *.md / *.jsonl diaries.`,
	RunE: runReflect,
}

func init() {
	reflectCmd.Flags().BoolVar(&reflectForce, "force", false, "reprocess already-processed sessions")
	reflectCmd.Flags().StringVar(&reflectSessDir, "sessions-dir", "", "directory to scan for session diaries")
}

func runReflect(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sessions := append([]string(nil), args...)
	if reflectSessDir != "" {
		found, err := discoverSessions(reflectSessDir)
		if err != nil {
			return err
		}
		sessions = append(sessions, found...)
	}
	if len(sessions) == 0 {
		return fmt.Errorf("no sessions given: pass diary paths or --sessions-dir")
	}

	pipe, err := a.pipeline()
	if err != nil {
		return err
	}

	runner := reflect.NewRunner(a.store, a.engine, a.reflector(), pipe, a.logger)
	report, err := runner.Run(cmd.Context(), reflect.Options{
		Sessions:    sessions,
		GlobalPath:  a.globalPath,
		ProjectPath: a.projectPath,
		Force:       reflectForce,
	})
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(report)
	}
	for _, s := range report.Sessions {
		switch {
		case s.Err != "":
			fmt.Printf("%s: error: %s\n", s.SessionPath, s.Err)
		case s.Skipped:
			fmt.Printf("%s: skipped (%s)\n", s.SessionPath, s.SkipReason)
		default:
			fmt.Printf("%s: %d extracted, %d rejected, %d applied\n",
				s.SessionPath, s.Extracted, s.Rejected, s.Applied)
		}
	}
	if report.GlobalResult != nil {
		fmt.Println("global playbook:")
		printCurationSummary(report.GlobalResult)
	}
	if report.ProjectResult != nil {
		fmt.Println("project playbook:")
		printCurationSummary(report.ProjectResult)
	}
	return nil
}

// discoverSessions finds diary files directly under dir, newest last so
// processing order follows creation order.
func discoverSessions(dir string) ([]string, error) {
	var out []string
	for _, pattern := range []string{"*.md", "*.jsonl", "*.txt"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}
