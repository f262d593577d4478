package main

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gridwatch/collector-cli/internal/model"
	"github.com/gridwatch/collector-cli/internal/pipeline"
	"github.com/gridwatch/collector-cli/internal/source"
)

var scrapeAll bool

var scrapeCmd = &cobra.Command{
	Use:   "scrape [source]",
	Short: "Run the collection pipeline for one source or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !scrapeAll && len(args) == 0 {
			return eris.New("scrape: name a source or pass --all")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Scrape.Timeout())
		defer cancel()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		reg := source.Build(cfg, source.BuildOptions{})

		var sources []source.Source
		if scrapeAll {
			sources = reg.All()
		} else {
			src, err := reg.Get(args[0])
			if err != nil {
				return err
			}
			sources = []source.Source{src}
		}

		reports, err := runSources(ctx, env.Driver, sources, cfg.Scrape.MaxConcurrent)
		printReports(reports)
		return err
	},
}

// runSources runs each source through the driver, at most maxConcurrent at a
// time. Every source gets its attempt even when another fails; the first
// failure is returned after all finish.
func runSources(ctx context.Context, driver *pipeline.Driver, sources []source.Source, maxConcurrent int) ([]*model.Report, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	var mu sync.Mutex
	var reports []*model.Report
	var firstErr error

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, src := range sources {
		g.Go(func() error {
			report, err := driver.Run(ctx, src)
			mu.Lock()
			defer mu.Unlock()
			if report != nil {
				reports = append(reports, report)
			}
			if err != nil {
				zap.L().Error("source run failed",
					zap.String("source", src.Name()),
					zap.Error(err),
				)
				if firstErr == nil {
					firstErr = err
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return reports, firstErr
}

func printReports(reports []*model.Report) {
	if len(reports) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Total", "New", "Elapsed", "Partial"})
	for _, r := range reports {
		partial := ""
		if r.Partial {
			partial = "yes"
		}
		t.AppendRow(table.Row{r.Source, r.Total, r.New, r.Elapsed.Round(time.Millisecond), partial})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func init() {
	scrapeCmd.Flags().BoolVar(&scrapeAll, "all", false, "run every registered source")
	rootCmd.AddCommand(scrapeCmd)
}
