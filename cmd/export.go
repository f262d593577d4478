package main

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/gridwatch/collector-cli/internal/model"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <source>",
	Short: "Dump a collection to a CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		collection := args[0]
		rows, err := env.Sink.ReadAll(cmd.Context(), collection)
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = collection + "." + exportFormat
		}

		switch exportFormat {
		case "csv":
			err = exportCSV(out, rows)
		case "xlsx":
			err = exportXLSX(out, collection, rows)
		default:
			return eris.Errorf("export: unknown format %q (valid: csv, xlsx)", exportFormat)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Wrote %d rows to %s\n", len(rows), out)
		return nil
	},
}

func exportCSV(path string, rows []model.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create csv")
	}
	defer f.Close() //nolint:errcheck

	header := model.UnionKeys(rows)
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, key := range header {
			record[i] = row[key]
		}
		if err := w.Write(record); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "export: flush csv")
}

func exportXLSX(path, sheetName string, rows []model.Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := model.UnionKeys(rows)
	headerRow := sheet.AddRow()
	for _, key := range header {
		headerRow.AddCell().SetString(key)
	}
	for _, row := range rows {
		r := sheet.AddRow()
		for _, key := range header {
			r.AddCell().SetString(row[key])
		}
	}

	return eris.Wrap(f.Save(path), "export: save xlsx")
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default <source>.<format>)")
	rootCmd.AddCommand(exportCmd)
}
