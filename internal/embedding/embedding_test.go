package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoopen-extract/internal/config"
	"ecoopen-extract/internal/models"
)

func TestNewEmbedder(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LLMConfig
	}{
		{"ollama", config.LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "nomic-embed-text", Timeout: time.Second}},
		{"openai compatible", config.LLMConfig{Provider: "openai", BaseURL: "http://localhost:8000/v1", Key: "Bearer sk-test", Model: "text-embedding-3-small", BatchSize: 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEmbedder(&tt.cfg)
			require.NoError(t, err)
			assert.NotNil(t, e)
		})
	}
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return [][]float32{s.vec}, s.err
}

func (s stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return s.vec, s.err
}

func TestProbe(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, Probe(ctx, stubEmbedder{vec: []float32{0.1, 0.2}}))
	assert.ErrorIs(t, Probe(ctx, nil), models.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, Probe(ctx, stubEmbedder{err: errors.New("connection refused")}), models.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, Probe(ctx, stubEmbedder{}), models.ErrEmbeddingUnavailable)
}
