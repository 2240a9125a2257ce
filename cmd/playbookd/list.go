package main

import (
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/scoring"
)

var (
	listCategory string
	listAll      bool
	listMerged   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List playbook rules ordered by effective score",
	Long: `List rules from the selected playbook, highest effective score
first. By default only active rules are shown; --all includes drafts,
retired, and deprecated rules. --merged lists the combined global and
project view an agent would see.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listCategory, "category", "", "only rules in this category")
	listCmd.Flags().BoolVar(&listAll, "all", false, "include inactive rules")
	listCmd.Flags().BoolVar(&listMerged, "merged", false, "merge the global and project playbooks")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	var bullets []*playbook.Bullet
	if listMerged {
		global, err := a.store.Load(a.globalPath)
		if err != nil {
			return err
		}
		project, err := a.store.Load(a.projectPath)
		if err != nil {
			return err
		}
		// A merged view is active-only by definition; --all has no
		// meaning here.
		bullets = playbook.NewContextView(global, project).ActiveBullets()
	} else {
		pb, err := a.store.Load(a.targetPath())
		if err != nil {
			return err
		}
		if listAll {
			bullets = pb.Bullets
		} else {
			bullets = pb.ActiveBullets()
		}
	}

	if listCategory != "" {
		filtered := bullets[:0]
		for _, b := range bullets {
			if b.Category == listCategory {
				filtered = append(filtered, b)
			}
		}
		bullets = filtered
	}

	cfg := a.cfg.Curation.Scoring
	asOf := time.Now().UTC()
	sort.SliceStable(bullets, func(i, j int) bool {
		return scoring.EffectiveScore(bullets[i], asOf, cfg) > scoring.EffectiveScore(bullets[j], asOf, cfg)
	})

	if flagJSON {
		return printJSON(bullets)
	}
	printBulletTable(bullets, cfg, asOf)
	return nil
}
