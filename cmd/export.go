package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ecoopen-extract/internal/export"
	"ecoopen-extract/internal/models"
)

var (
	exportFormat string
	exportOut    string
	exportJobID  string
)

var exportCmd = &cobra.Command{
	Use:   "export [results.json]",
	Short: "Convert analysis results to CSV, XLSX or an HTML report",
	Long: `Reads the JSON written by "analyze" or "batch" (or a stored job with
--job) and writes it in the requested format.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results, err := loadResults(cmd, args)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		switch strings.ToLower(exportFormat) {
		case "csv":
			return export.CSV(w, results)
		case "html":
			return export.HTMLReport(w, results)
		case "xlsx":
			if exportOut == "" {
				return fmt.Errorf("xlsx export needs --out")
			}
			data, err := export.XLSX(results)
			if err != nil {
				return err
			}
			_, err = w.Write(data)
			return err
		default:
			return fmt.Errorf("unknown format %q (csv, xlsx, html)", exportFormat)
		}
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format: csv, xlsx or html")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportJobID, "job", "", "read the results of a stored job")
}

func loadResults(cmd *cobra.Command, args []string) ([]models.AnalysisResult, error) {
	if exportJobID != "" {
		if !cfg.Database.Enabled {
			return nil, fmt.Errorf("--job needs database.enabled")
		}
		store, closeStore, err := openStore(cmd.Context())
		if err != nil {
			return nil, err
		}
		defer closeStore()
		job, err := store.GetJob(cmd.Context(), exportJobID)
		if err != nil {
			return nil, fmt.Errorf("load job %s: %w", exportJobID, err)
		}
		return job.Results, nil
	}

	if len(args) == 0 || args[0] == "-" {
		return export.ReadResults(cmd.InOrStdin())
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return export.ReadResults(f)
}
