package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ecoopen-extract/internal/helper"
	"ecoopen-extract/internal/models"
	"ecoopen-extract/internal/parser"
	"ecoopen-extract/internal/pipeline"
)

var (
	textInput     bool
	heuristicOnly bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.pdf>...",
	Short: "Analyze one or more documents and print the results as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := newOrchestrator()
		if err != nil {
			return err
		}

		results := make([]*models.AnalysisResult, 0, len(args))
		failed := 0
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			res, err := orch.Analyze(cmd.Context(), data, filepath.Base(path))
			if errors.Is(err, models.ErrCancelled) {
				return err
			}
			if err != nil {
				failed++
				log.Error().Err(err).Str("file", path).Msg("Analysis failed")
			}
			results = append(results, res)
		}

		var out any = results
		if len(results) == 1 {
			out = results[0]
		}
		if err := helper.PrettyPrint(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		if failed == len(args) {
			return fmt.Errorf("no document could be analyzed")
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the embedding service and the agent answer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		orch, err := pipeline.NewFromConfig(cfg)
		if err != nil {
			return err
		}
		return helper.PrettyPrint(cmd.OutOrStdout(), orch.Health(cmd.Context()))
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&textInput, "text", false, "treat inputs as plain text (pages split by form feeds)")
	analyzeCmd.Flags().BoolVar(&heuristicOnly, "heuristic-only", false, "skip the embedding service and the agent")
	batchCmd.Flags().AddFlagSet(analyzeCmd.Flags())
}

// newOrchestrator builds the pipeline from the loaded config and the
// analyze/batch flags.
func newOrchestrator() (*pipeline.Orchestrator, error) {
	var opts []pipeline.Option
	if textInput {
		opts = append(opts, pipeline.WithLoader(parser.TextLoader{}))
	}
	if heuristicOnly {
		chunker := parser.NewChunker(parser.WithChunkSize(cfg.RAG.ChunkSize), parser.WithOverlap(cfg.RAG.ChunkOverlap))
		return pipeline.New(nil, nil, append(opts, pipeline.WithChunker(chunker))...), nil
	}
	return pipeline.NewFromConfig(cfg, opts...)
}
