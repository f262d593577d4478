package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gridwatch/collector-cli/internal/runlog"
)

var (
	runsSource string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := runlog.Open(cfg.Sink.RunLogPath)
		if err != nil {
			return err
		}
		defer runs.Close() //nolint:errcheck

		entries, err := runs.List(cmd.Context(), runsSource, runsLimit)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Started", "Source", "Status", "Total", "New", "Failure", "Error"})
		for _, e := range entries {
			failure := string(e.FailureKind)
			errMsg := e.Error
			if len(errMsg) > 60 {
				errMsg = errMsg[:57] + "..."
			}
			t.AppendRow(table.Row{
				e.StartedAt.Format("2006-01-02 15:04:05"),
				e.Source,
				string(e.Status),
				e.TotalRows,
				e.NewRows,
				failure,
				errMsg,
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsSource, "source", "", "filter to one source")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 50, "maximum entries to show")
	rootCmd.AddCommand(runsCmd)
}
