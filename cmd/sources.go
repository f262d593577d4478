package main

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gridwatch/collector-cli/internal/source"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the registered data sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := source.Build(cfg, source.BuildOptions{})

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Source", "Collection", "Merge Policy", "Windows"})
		now := time.Now().UTC()
		for _, src := range reg.All() {
			t.AppendRow(table.Row{
				src.Name(),
				src.Collection(),
				src.Policy().String(),
				len(src.Windows(now)),
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
