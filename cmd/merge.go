package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crossref-cli/internal/checkpoint"
	"github.com/sells-group/crossref-cli/internal/merge"
	"github.com/sells-group/crossref-cli/internal/tabular"
)

var mergeCmd = &cobra.Command{
	Use:   "merge [files...]",
	Short: "Merge shards and exports into one deduplicated cross-reference table",
	Long: "Reads CSV/XLSX files (default: every shard in checkpoint.dir), maps their headers onto " +
		"item code/owner/number, drops empty and duplicate rows, and optionally joins a validation file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("merge"); err != nil {
			return eris.Wrap(err, "merge config")
		}
		ctx := cmd.Context()

		paths := args
		if len(paths) == 0 {
			ckpt, err := checkpoint.NewManager(cfg.Checkpoint.Dir, cfg.Checkpoint.Prefix)
			if err != nil {
				return err
			}
			if paths, err = ckpt.List(); err != nil {
				return err
			}
			if len(paths) == 0 {
				return eris.Errorf("merge: no shards in %s", cfg.Checkpoint.Dir)
			}
		}

		sheet, _ := cmd.Flags().GetString("sheet")
		if sheet == "" {
			sheet = cfg.Merge.Sheet
		}
		validation, _ := cmd.Flags().GetString("validation")
		columns, _ := cmd.Flags().GetStringSlice("validation-columns")
		if len(columns) == 0 {
			columns = cfg.Merge.ValidationColumns
		}
		sortBy, _ := cmd.Flags().GetString("sort-by")
		out, _ := cmd.Flags().GetString("out")

		engine := merge.New(merge.Options{
			Sheet:             sheet,
			Validation:        validation,
			ValidationColumns: columns,
			SortBy:            sortBy,
		})
		merged, report, err := engine.Merge(ctx, paths)
		if report != nil {
			formatMergeReport(os.Stdout, report)
		}
		if err != nil {
			return err
		}

		if err := tabular.Write(out, merged); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %d rows to %s\n", len(merged.Rows), out)
		return nil
	},
}

func init() {
	mergeCmd.Flags().String("out", "crosses_merged.xlsx", "output file (.csv or .xlsx)")
	mergeCmd.Flags().String("sheet", "", "preferred XLSX sheet (default merge.sheet)")
	mergeCmd.Flags().String("validation", "", "validation file to left-join on item code")
	mergeCmd.Flags().StringSlice("validation-columns", nil, "validation columns to add (default merge.validation_columns)")
	mergeCmd.Flags().String("sort-by", "", "grouping column to sort by, matched by substring (e.g. \"car maker\")")
	rootCmd.AddCommand(mergeCmd)
}
