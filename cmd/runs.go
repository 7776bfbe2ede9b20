package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crossref-cli/internal/model"
	"github.com/sells-group/crossref-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect crawl run history",
	Long:  "Commands for listing runs, showing their shards and listing failed item codes.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List crawl runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		input, _ := cmd.Flags().GetString("input")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Input:  input,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			_, _ = os.Stderr.WriteString("No runs found.\n")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

type runDetail struct {
	*model.Run
	Shards []model.ShardInfo `json:"shards"`
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and the shards it wrote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		shards, err := st.ListShards(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runDetail{Run: run, Shards: shards})
	},
}

// -- runs failures --

var runsFailuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List item codes that ended in ERROR",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runID, _ := cmd.Flags().GetString("run")
		errType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		failures, err := st.ListFailures(ctx, store.FailureFilter{
			RunID:     runID,
			ErrorType: errType,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs failures")
		}

		if len(failures) == 0 {
			_, _ = os.Stderr.WriteString("No failures found.\n")
			return nil
		}

		formatFailures(os.Stdout, failures)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, interrupted, failed)")
	runsListCmd.Flags().String("input", "", "filter by master list path")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsFailuresCmd.Flags().String("run", "", "filter by run ID")
	runsFailuresCmd.Flags().String("type", "", "filter by error type (transient, permanent)")
	runsFailuresCmd.Flags().Int("limit", 200, "max number of failures to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsFailuresCmd)
	rootCmd.AddCommand(runsCmd)
}
