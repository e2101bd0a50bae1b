package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ecoopen-extract/internal/config"
)

const configFilePath = "./configs/config.yaml"

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ecoopen",
	Short: "Extract open-science metadata from scientific PDFs",
	Long: `ecoopen reads scientific articles and extracts the title, DOI, data and
code availability statements, their licenses and repository links.

An embedding service and an OpenAI-compatible agent are used when reachable;
otherwise the rule-based extractor runs alone.`,
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		if err := config.LoadDotEnv(".env"); err != nil {
			return err
		}
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		cfg = loaded
		setupLogger(&cfg.Log)
		log.Debug().Interface("config", redacted(cfg)).Msg("Loaded config")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", configFilePath, "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(analyzeCmd, healthCmd, batchCmd, exportCmd)
}

// setupLogger writes logs to stderr so stdout carries only results.
func setupLogger(lc *config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if lc.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
}

func redacted(c *config.Config) config.Config {
	out := *c
	if out.AgentLLM.Key != "" {
		out.AgentLLM.Key = "***"
	}
	if out.EmbedLLM.Key != "" {
		out.EmbedLLM.Key = "***"
	}
	if out.Database.DSN != "" {
		out.Database.DSN = "***"
	}
	return out
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
