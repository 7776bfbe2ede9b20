package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crossref-cli/internal/catalog"
	"github.com/sells-group/crossref-cli/internal/checkpoint"
	"github.com/sells-group/crossref-cli/internal/config"
	"github.com/sells-group/crossref-cli/internal/crawl"
	"github.com/sells-group/crossref-cli/internal/extract"
	"github.com/sells-group/crossref-cli/internal/monitoring"
	"github.com/sells-group/crossref-cli/internal/resilience"
	"github.com/sells-group/crossref-cli/internal/tabular"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <master-file>",
	Short: "Query the catalog for every pending item code",
	Long: "Loads the master list, skips item codes already present in a shard, and queries the rest one by one. " +
		"Progress is written as a new shard every checkpoint.batch_size items and when interrupted.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		applyCrawlFlags(cmd, cfg)
		if err := cfg.Validate("crawl"); err != nil {
			return eris.Wrap(err, "crawl config")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sheet, _ := cmd.Flags().GetString("sheet")
		master, err := tabular.LoadMaster(ctx, args[0], sheet)
		if err != nil {
			return err
		}

		profile, err := extract.LoadProfile(cfg.Extract.Profile)
		if err != nil {
			return err
		}
		classifier, err := extract.NewClassifier(profile)
		if err != nil {
			return err
		}
		engine, err := extract.NewEngine(profile, cfg.Extract.Strategies, cfg.Extract.FollowLinks)
		if err != nil {
			return err
		}

		ckpt, err := checkpoint.NewManager(cfg.Checkpoint.Dir, cfg.Checkpoint.Prefix)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		retryErrors, _ := cmd.Flags().GetBool("retry-errors")
		withInput, _ := cmd.Flags().GetBool("with-input-columns")

		crawler := crawl.New(newSessionManager(cfg.Catalog), classifier, engine, ckpt, st, crawl.Options{
			Input:            args[0],
			BatchSize:        cfg.Checkpoint.BatchSize,
			Limit:            limit,
			RetryErrors:      retryErrors,
			DebugDir:         cfg.Checkpoint.DebugDir,
			WithInputColumns: withInput,
		})

		summary, err := crawler.Run(ctx, master)
		if summary != nil {
			formatCrawlSummary(os.Stdout, summary)
			checkRunHealth(context.WithoutCancel(ctx), cfg.Monitoring, summary, args[0])
		}
		return err
	},
}

// checkRunHealth raises alerts for an unhealthy run.
func checkRunHealth(ctx context.Context, c config.MonitoringConfig, s *crawl.Summary, input string) {
	alerter := monitoring.NewAlerter(c)
	alerts := alerter.Evaluate(monitoring.Snapshot{RunID: s.RunID, Input: input, Counters: s.Counters})
	for _, a := range alerts {
		zap.L().Warn("crawl: run health", zap.String("alert", string(a.Type)), zap.String("message", a.Message))
	}
	alerter.SendAlerts(ctx, alerts)
}

// applyCrawlFlags lets command-line flags override file and env config.
func applyCrawlFlags(cmd *cobra.Command, c *config.Config) {
	if cmd.Flags().Changed("offline") {
		c.Catalog.FixtureDir, _ = cmd.Flags().GetString("offline")
	}
	if cmd.Flags().Changed("batch-size") {
		c.Checkpoint.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	}
	if cmd.Flags().Changed("debug-dir") {
		c.Checkpoint.DebugDir, _ = cmd.Flags().GetString("debug-dir")
	}
	if cmd.Flags().Changed("strategies") {
		c.Extract.Strategies, _ = cmd.Flags().GetStringSlice("strategies")
	}
}

// newSessionManager builds the catalog session manager. A fixture directory
// replaces the live catalog.
func newSessionManager(c config.CatalogConfig) *catalog.Manager {
	var open catalog.Opener
	if c.FixtureDir != "" {
		zap.L().Info("crawl: serving catalog pages from fixtures", zap.String("dir", c.FixtureDir))
		open = catalog.NewFixtureOpener(c.FixtureDir)
	} else {
		open = catalog.NewHTTPOpener(catalog.HTTPOptions{
			BaseURL:          c.BaseURL,
			SearchPath:       c.SearchPath,
			QueryParam:       c.QueryParam,
			UserAgent:        c.UserAgent,
			Timeout:          time.Duration(c.TimeoutSecs) * time.Second,
			CloudflareBypass: c.CloudflareBypass,
		})
	}
	policy := resilience.CatalogPolicy(c)
	return catalog.NewManager(open, catalog.ManagerOptions{
		Retry:         policy.Retry,
		Breaker:       policy.Breaker,
		Delay:         time.Duration(c.DelayMs) * time.Millisecond,
		RecreateEvery: c.RecreateEvery,
	})
}

func init() {
	crawlCmd.Flags().String("sheet", "", "master list sheet (XLSX only, default first sheet)")
	crawlCmd.Flags().Int("limit", 0, "process at most this many pending items (0 = all)")
	crawlCmd.Flags().Int("batch-size", 0, "items per shard (overrides checkpoint.batch_size)")
	crawlCmd.Flags().Bool("retry-errors", false, "re-query item codes whose latest status is ERROR")
	crawlCmd.Flags().Bool("with-input-columns", false, "copy the master list's other columns into the crosses sheet")
	crawlCmd.Flags().String("offline", "", "serve catalog pages from a directory of saved <code>.html files")
	crawlCmd.Flags().String("debug-dir", "", "save pages of FOUND items without crosses here")
	crawlCmd.Flags().StringSlice("strategies", nil, "extraction strategies in order (table, container, text)")
	rootCmd.AddCommand(crawlCmd)
}
