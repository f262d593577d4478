package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridwatch/collector-cli/internal/model"
	"github.com/gridwatch/collector-cli/internal/pager"
	"github.com/gridwatch/collector-cli/internal/pipeline"
	"github.com/gridwatch/collector-cli/internal/source"
)

var backfillMonths int

var backfillCmd = &cobra.Command{
	Use:   "backfill <source>",
	Short: "Fetch historical month windows for one source",
	Long:  "Walks month windows backwards from the current month. A rate limit aborts the run and persists everything fetched so far, so reruns pick up where the limit hit.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Scrape.Timeout())
		defer cancel()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		reg := source.Build(cfg, source.BuildOptions{
			Policy:     pager.Abort,
			MonthsBack: backfillMonths,
		})
		src, err := reg.Get(args[0])
		if err != nil {
			return err
		}

		report, err := env.Driver.Run(ctx, src)
		if report != nil {
			printReports([]*model.Report{report})
		}
		if err != nil {
			if wait := pipeline.RetryAfterOf(err); wait > 0 {
				zap.L().Warn("back-fill rate limited",
					zap.Duration("retry_after", wait),
					zap.Time("resume_at", time.Now().Add(wait)),
				)
				fmt.Printf("Rate limited. Re-run after %s to continue.\n", wait)
			}
			return err
		}
		return nil
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillMonths, "months", 12, "number of month windows to fetch")
	rootCmd.AddCommand(backfillCmd)
}
