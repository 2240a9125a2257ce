package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/scoring"
	"github.com/fyrsmithlabs/playbookd/internal/validation"
)

// lastReason extracts the final decision log reason for human output.
func lastReason(log []validation.DecisionLogEntry) string {
	if len(log) == 0 {
		return "no decision recorded"
	}
	return log[len(log)-1].Reason
}

// firstSkipReason extracts the first curation skip reason for human
// output.
func firstSkipReason(result *playbook.CurationResult) string {
	if len(result.SkipReasons) == 0 {
		return "skipped"
	}
	return result.SkipReasons[0].Reason
}

// printBulletTable renders bullets in aligned columns.
func printBulletTable(bullets []*playbook.Bullet, cfg scoring.Config, asOf time.Time) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCORE\tMATURITY\tSTATE\tKIND\tCONTENT")
	for _, b := range bullets {
		score := scoring.EffectiveScore(b, asOf, cfg)
		fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\t%s\t%s\n",
			b.ID, score, b.Maturity, b.State, b.Kind, truncate(b.Content, 72))
	}
	w.Flush()
}

// printCurationSummary renders a curation result for humans.
func printCurationSummary(result *playbook.CurationResult) {
	fmt.Printf("applied %d, skipped %d, conflicts %d, promotions %d, inversions %d, pruned %d\n",
		result.Applied, result.Skipped, len(result.Conflicts),
		len(result.Promotions), len(result.Inversions), len(result.Pruned))
	for _, s := range result.SkipReasons {
		fmt.Printf("  skipped delta %d (%s): %s\n", s.Index, s.Kind, s.Reason)
	}
	for _, c := range result.Conflicts {
		fmt.Printf("  conflict: %s vs %s\n", c.NewBulletID, c.ExistingBulletID)
	}
	for _, p := range result.Promotions {
		fmt.Printf("  maturity: %s %s -> %s (%s)\n", p.BulletID, p.From, p.To, p.Reason)
	}
	for _, inv := range result.Inversions {
		fmt.Printf("  inverted: %s -> %s\n", inv.OriginalID, inv.InvertedID)
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
