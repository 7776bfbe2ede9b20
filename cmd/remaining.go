package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/crossref-cli/internal/checkpoint"
	"github.com/sells-group/crossref-cli/internal/model"
	"github.com/sells-group/crossref-cli/internal/tabular"
)

var remainingCmd = &cobra.Command{
	Use:   "remaining <master-file>",
	Short: "Show which item codes still need querying",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sheet, _ := cmd.Flags().GetString("sheet")
		master, err := tabular.LoadMaster(ctx, args[0], sheet)
		if err != nil {
			return err
		}

		ckpt, err := checkpoint.NewManager(cfg.Checkpoint.Dir, cfg.Checkpoint.Prefix)
		if err != nil {
			return err
		}
		shards, err := ckpt.List()
		if err != nil {
			return err
		}
		ledger, err := checkpoint.Scan(ctx, shards)
		if err != nil {
			return err
		}

		retryErrors, _ := cmd.Flags().GetBool("retry-errors")
		rest := checkpoint.Remaining(master.Items, ledger.Done(retryErrors))
		formatRemaining(os.Stdout, len(master.Items), len(shards), ledger, rest)

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			return nil
		}
		keep := make(map[string]bool, len(rest))
		for _, q := range rest {
			keep[q.Key()] = true
		}
		if err := tabular.Write(out, master.Filter(keep)); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %d pending rows to %s\n", len(rest), out)
		return nil
	},
}

// statusCounts tallies the latest status per code in the ledger.
func statusCounts(l *checkpoint.Ledger) map[model.Status]int {
	counts := make(map[model.Status]int)
	for _, st := range l.Status {
		counts[st]++
	}
	return counts
}

func init() {
	remainingCmd.Flags().String("sheet", "", "master list sheet (XLSX only, default first sheet)")
	remainingCmd.Flags().String("out", "", "write the pending master rows to this CSV or XLSX file")
	remainingCmd.Flags().Bool("retry-errors", false, "count item codes whose latest status is ERROR as pending")
	rootCmd.AddCommand(remainingCmd)
}
