package chromemdb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoopen-extract/internal/models"
)

// keywordEmbedder maps text onto counts of a fixed vocabulary so that
// similarity is predictable.
type keywordEmbedder struct {
	vocab []string
	err   error
	calls int
}

func (e *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(e.vocab)+1)
	for i, w := range e.vocab {
		v[i] = float32(strings.Count(lower, w))
	}
	// constant component keeps vectors non-zero
	v[len(e.vocab)] = 0.1
	return v
}

func (e *keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

type zeroEmbedder struct{}

func (zeroEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (zeroEmbedder) EmbedQuery(context.Context, string) ([]float32, error) { return nil, nil }

func testChunks() []models.Chunk {
	texts := []string{
		"Soil samples were collected from forty plots.",
		"Data are available on zenodo and dryad.",
		"Code is available on github.",
		"Results show a decline in diversity.",
		"Raw data deposited in zenodo.",
	}
	chunks := make([]models.Chunk, len(texts))
	off := 0
	for i, t := range texts {
		chunks[i] = models.Chunk{Index: i, Text: t, Span: models.Span{Start: off, End: off + len(t)}}
		off += len(t)
	}
	return chunks
}

func newEmbedder() *keywordEmbedder {
	return &keywordEmbedder{vocab: []string{"data", "zenodo", "dryad", "code", "github", "soil", "results"}}
}

func TestBuildAndQuery(t *testing.T) {
	emb := newEmbedder()
	ix, err := Build(context.Background(), emb, testChunks())
	require.NoError(t, err)
	defer ix.Close()

	assert.Equal(t, 1, emb.calls, "all chunks are embedded in one batch")
	assert.Equal(t, 5, ix.Len())

	hits, err := ix.Query(context.Background(), "github code", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 2, hits[0].Chunk.Index)
	assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)
}

func TestQuery_TiesKeepDocumentOrder(t *testing.T) {
	chunks := []models.Chunk{
		{Index: 0, Text: "zenodo"},
		{Index: 1, Text: "github"},
		{Index: 2, Text: "zenodo"},
		{Index: 3, Text: "zenodo"},
	}
	ix, err := Build(context.Background(), newEmbedder(), chunks)
	require.NoError(t, err)
	defer ix.Close()

	for range 3 {
		hits, err := ix.Query(context.Background(), "zenodo", 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, []int{0, 2, 3}, []int{hits[0].Chunk.Index, hits[1].Chunk.Index, hits[2].Chunk.Index})
	}
}

func TestQuery_KLargerThanIndex(t *testing.T) {
	ix, err := Build(context.Background(), newEmbedder(), testChunks())
	require.NoError(t, err)
	defer ix.Close()

	hits, err := ix.Query(context.Background(), "data", 50)
	require.NoError(t, err)
	assert.Len(t, hits, 5)

	hits, err = ix.Query(context.Background(), "data", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRetrieve_DedupesAndCaps(t *testing.T) {
	ix, err := Build(context.Background(), newEmbedder(), testChunks())
	require.NoError(t, err)
	defer ix.Close()

	got, err := ix.Retrieve(context.Background(), []string{"zenodo data", "zenodo"}, 2, 0)
	require.NoError(t, err)
	indexes := make([]int, len(got))
	for i, c := range got {
		indexes[i] = c.Index
	}
	assert.ElementsMatch(t, []int{1, 4}, indexes)

	capped, err := ix.Retrieve(context.Background(), []string{"zenodo data"}, 5, 45)
	require.NoError(t, err)
	assert.Len(t, capped, 1)
}

func TestBuild_EmbeddingUnavailable(t *testing.T) {
	emb := &keywordEmbedder{err: errors.New("dial tcp: connection refused")}

	_, err := Build(context.Background(), emb, testChunks())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)

	_, err = Build(context.Background(), nil, testChunks())
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
}

func TestBuild_EmptyEmbedding(t *testing.T) {
	_, err := Build(context.Background(), zeroEmbedder{}, testChunks())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
	assert.NotErrorIs(t, err, models.ErrEmbeddingUnavailable)
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	emb := &keywordEmbedder{err: context.Canceled}

	_, err := Build(ctx, emb, testChunks())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose(t *testing.T) {
	ix, err := Build(context.Background(), newEmbedder(), testChunks())
	require.NoError(t, err)

	require.NoError(t, ix.Close())
	assert.NoError(t, ix.Close())
}
