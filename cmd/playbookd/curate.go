package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/store"
)

var curateValidate bool

var curateCmd = &cobra.Command{
	Use:   "curate [deltas.json]",
	Short: "Apply a batch of deltas to the playbook",
	Long: `Apply a JSON array of tagged deltas to the selected playbook,
read from a file or stdin. This is the batch entry point used by agent
hooks; "playbookd add" and "playbookd feedback" are conveniences over the
same engine.

Example delta file:
  [
    {"type": "add", "content": "Prefer table-driven tests", "category": "testing"},
    {"type": "helpful", "bulletId": "blt-1234"}
  ]`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCurate,
}

func init() {
	curateCmd.Flags().BoolVar(&curateValidate, "validate", false, "run add deltas through the validation pipeline")
}

func runCurate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	var data []byte
	if len(args) == 0 || args[0] == "-" {
		if data, err = io.ReadAll(os.Stdin); err != nil {
			return fmt.Errorf("reading deltas from stdin: %w", err)
		}
	} else {
		if data, err = os.ReadFile(args[0]); err != nil {
			return fmt.Errorf("reading deltas: %w", err)
		}
	}

	deltas, err := playbook.DecodeDeltas(data)
	if err != nil {
		return err
	}

	if curateValidate {
		pipe, err := a.pipeline()
		if err != nil {
			return err
		}
		kept := deltas[:0]
		for _, d := range deltas {
			res := pipe.ValidateDelta(cmd.Context(), d)
			if !res.Valid {
				a.logger.Info("delta rejected by validation")
				continue
			}
			if add, ok := d.(playbook.AddDelta); ok && res.SuggestedState != "" {
				add.SuggestedState = res.SuggestedState
				d = add
			}
			kept = append(kept, d)
		}
		deltas = kept
	}

	path := a.targetPath()
	var result *playbook.CurationResult
	err = store.WithLock(path, func() error {
		pb, err := a.store.Load(path)
		if err != nil {
			return err
		}
		result = a.engine.Curate(pb, deltas, nil)
		return a.store.Save(path, pb)
	})
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(result)
	}
	printCurationSummary(result)
	return nil
}
