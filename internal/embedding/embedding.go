package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"ecoopen-extract/internal/config"
	"ecoopen-extract/internal/models"
)

// NewEmbedder creates the embedding client described by cfg. The provider
// "ollama" talks to the native Ollama API, anything else is treated as an
// OpenAI-compatible endpoint.
func NewEmbedder(cfg *config.LLMConfig) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		)
		if err != nil {
			return nil, fmt.Errorf("init ollama embedder: %w", err)
		}
		client = llm
	default:
		llm, err := openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
			openai.WithEmbeddingModel(cfg.Model),
			openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		)
		if err != nil {
			return nil, fmt.Errorf("init openai embedder: %w", err)
		}
		client = llm
	}

	opts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if cfg.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// Probe embeds a short string to check that the embedding service answers.
func Probe(ctx context.Context, embedder embeddings.Embedder) error {
	if embedder == nil {
		return models.ErrEmbeddingUnavailable
	}
	vec, err := embedder.EmbedQuery(ctx, "data availability")
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", models.ErrEmbeddingUnavailable)
	}
	return nil
}
