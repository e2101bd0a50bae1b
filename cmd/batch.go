package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ecoopen-extract/internal/batch"
	"ecoopen-extract/internal/db"
	"ecoopen-extract/internal/export"
	"ecoopen-extract/internal/helper"
	"ecoopen-extract/internal/models"
)

var (
	batchWorkers int
	batchOut     string
	batchCSV     string
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Analyze every PDF in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := helper.PDFFiles(args[0])
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no PDF files in %s", args[0])
		}

		orch, err := newOrchestrator()
		if err != nil {
			return err
		}

		workers := cfg.Batch.Workers
		if batchWorkers > 0 {
			workers = batchWorkers
		}
		opts := []batch.Option{
			batch.WithWorkers(workers),
			batch.WithProcessTimeout(cfg.Batch.Timeout),
			batch.WithProgress(func(p models.Progress) {
				log.Info().Int("current", p.Current).Int("total", p.Total).Msg("Batch progress")
			}),
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Database.Enabled {
			store, closeStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()
			opts = append(opts, batch.WithStore(store))
		}

		items := make([]batch.Item, len(files))
		for i, f := range files {
			items[i] = batch.FileItem(f)
		}
		job, runErr := batch.NewRunner(orch, opts...).Run(ctx, items)
		if job == nil {
			return runErr
		}

		if err := writeJob(cmd, job); err != nil {
			return err
		}
		if batchCSV != "" {
			if err := writeCSV(batchCSV, job.Results); err != nil {
				return err
			}
			log.Info().Str("path", batchCSV).Msg("CSV written")
		}
		return runErr
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "documents analyzed concurrently (default from config)")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "write the job JSON to this file instead of stdout")
	batchCmd.Flags().StringVar(&batchCSV, "csv", "", "also write the results as CSV to this file")
}

func openStore(ctx context.Context) (*db.Store, func(), error) {
	sqldb, err := db.Connect(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	bunDB := db.NewDB(sqldb, cfg.Database.Debug)
	store := db.NewStore(bunDB)
	if err := store.Init(ctx); err != nil {
		bunDB.Close()
		return nil, nil, fmt.Errorf("init job store: %w", err)
	}
	return store, func() { bunDB.Close() }, nil
}

func writeJob(cmd *cobra.Command, job *models.Job) error {
	if batchOut == "" {
		return helper.PrettyPrint(cmd.OutOrStdout(), job)
	}
	f, err := os.Create(batchOut)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := helper.PrettyPrint(f, job); err != nil {
		return err
	}
	log.Info().Str("path", batchOut).Str("job_id", job.ID).Msg("Job written")
	return nil
}

func writeCSV(path string, results []models.AnalysisResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return export.CSV(f, results)
}
