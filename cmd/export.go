package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/vendmatch/leadgen-cli/internal/model"
)

var leadColumns = []string{
	"business_name", "industry", "address", "city", "state", "zip",
	"phone", "website", "distance_miles", "confidence", "notes", "source_url",
}

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run's leads to CSV or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runID := args[0]
		if _, err := st.GetRun(ctx, runID); err != nil {
			return eris.Wrap(err, "export")
		}
		leads, err := st.ListLeads(ctx, runID)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = fmt.Sprintf("leads-%s.%s", truncateID(runID), format)
		}

		switch format {
		case "csv":
			err = exportCSV(out, leads)
		case "xlsx":
			err = exportXLSX(out, leads)
		default:
			return eris.Errorf("unsupported format: %s", format)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Wrote %d leads to %s\n", len(leads), out)
		return nil
	},
}

func exportCSV(path string, leads []model.Lead) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(leadColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, l := range leads {
		if err := w.Write(leadRecord(l)); err != nil {
			return eris.Wrap(err, "export: write record")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "export: flush")
}

func exportXLSX(path string, leads []model.Lead) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range leadColumns {
		header.AddCell().Value = col
	}
	for _, l := range leads {
		row := sheet.AddRow()
		for _, v := range leadRecord(l) {
			row.AddCell().Value = v
		}
	}

	return eris.Wrap(f.Save(path), "export: save")
}

func leadRecord(l model.Lead) []string {
	distance := ""
	if l.DistanceMiles != nil {
		distance = strconv.FormatFloat(*l.DistanceMiles, 'f', 1, 64)
	}
	return []string{
		l.BusinessName, l.Industry, l.Address, l.City, strings.ToUpper(l.State), l.Zip,
		l.Phone, l.Website, distance,
		strconv.FormatFloat(l.Confidence, 'f', 2, 64),
		l.Notes, l.SourceURL,
	}
}

func init() {
	exportCmd.Flags().String("format", "csv", "output format (csv, xlsx)")
	exportCmd.Flags().String("out", "", "output path (default leads-<run>.<format>)")
	rootCmd.AddCommand(exportCmd)
}
