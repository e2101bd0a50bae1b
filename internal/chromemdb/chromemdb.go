package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"ecoopen-extract/internal/helper"
	"ecoopen-extract/internal/models"
)

// ErrEmptyEmbedding is returned when the embedding service answered but gave
// back no usable vectors. It is not an availability problem.
var ErrEmptyEmbedding = errors.New("embedding service returned no vectors")

// ScoredChunk is a chunk ranked against a query.
type ScoredChunk struct {
	Chunk      models.Chunk
	Similarity float32
}

// Index is a throwaway in-memory vector index over the chunks of one
// document. It lives for a single Analyze call.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder
	chunks     []models.Chunk
}

// Build embeds every chunk with one batch call and loads the vectors into a
// fresh chromem collection.
func Build(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", models.ErrEmbeddingUnavailable)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("build index: %w", ErrEmptyEmbedding)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("got %d vectors for %d chunks: %w", len(vectors), len(chunks), ErrEmptyEmbedding)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		if isZero(vectors[i]) {
			return nil, fmt.Errorf("chunk %d: %w", c.Index, ErrEmptyEmbedding)
		}
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   c.Text,
			Metadata:  map[string]string{"chunk_index": strconv.Itoa(c.Index)},
			Embedding: vectors[i],
		}
	}

	name, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	db := chromem.NewDB()
	// vectors are always supplied, so the collection never embeds on its own
	collection, err := db.CreateCollection(name, nil, func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}

	log.Debug().Str("collection", name).Int("chunks", len(chunks)).Msg("Built vector index")
	return &Index{db: db, collection: collection, embedder: embedder, chunks: chunks}, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Query returns up to k chunks ranked by cosine similarity to text. Equal
// scores keep document order.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]ScoredChunk, error) {
	if k <= 0 || len(ix.chunks) == 0 {
		return nil, nil
	}
	vec, err := ix.embedder.EmbedQuery(ctx, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	if isZero(vec) {
		return nil, fmt.Errorf("query %q: %w", text, ErrEmptyEmbedding)
	}

	// rank everything so the tie-break below sees all equal scores
	results, err := ix.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vec,
		NResults:       ix.collection.Count(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	scored := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		i, err := strconv.Atoi(r.ID)
		if err != nil || i < 0 || i >= len(ix.chunks) {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: ix.chunks[i], Similarity: r.Similarity})
	}
	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].Similarity != scored[b].Similarity {
			return scored[a].Similarity > scored[b].Similarity
		}
		return scored[a].Chunk.Index < scored[b].Chunk.Index
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Retrieve runs several queries and returns the union of their top kEach
// chunks in first-seen order, stopping once maxChars of text is collected.
// maxChars <= 0 means no cap.
func (ix *Index) Retrieve(ctx context.Context, queries []string, kEach, maxChars int) ([]models.Chunk, error) {
	var out []models.Chunk
	seen := make(map[int]struct{})
	total := 0
	for _, q := range queries {
		hits, err := ix.Query(ctx, q, kEach)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if _, ok := seen[h.Chunk.Index]; ok {
				continue
			}
			if maxChars > 0 && total+len(h.Chunk.Text) > maxChars && len(out) > 0 {
				return out, nil
			}
			seen[h.Chunk.Index] = struct{}{}
			out = append(out, h.Chunk)
			total += len(h.Chunk.Text)
		}
	}
	return out, nil
}

// Close drops the collection. The index must not be used afterwards.
func (ix *Index) Close() error {
	if ix == nil || ix.collection == nil {
		return nil
	}
	if err := ix.db.DeleteCollection(ix.collection.Name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	ix.collection = nil
	return nil
}
