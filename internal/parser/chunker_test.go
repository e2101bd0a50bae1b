package parser

import (
	"slices"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunker(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewChunker()
		assert.Equal(t, DefaultChunkSize, c.Size())
		assert.Equal(t, DefaultChunkOverlap, c.Overlap())
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		c := NewChunker(WithChunkSize(100), WithOverlap(150))
		assert.Less(t, c.Overlap(), c.Size())
		assert.Equal(t, 25, c.Overlap())
	})

	t.Run("overlap equal to size", func(t *testing.T) {
		c := NewChunker(WithChunkSize(100), WithOverlap(100))
		assert.Less(t, c.Overlap(), c.Size())
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		c := NewChunker(WithChunkSize(0), WithOverlap(-1))
		assert.Equal(t, DefaultChunkSize, c.Size())
		assert.Equal(t, DefaultChunkOverlap, c.Overlap())
	})
}

func TestChunks(t *testing.T) {
	t.Run("empty text yields nothing", func(t *testing.T) {
		assert.Empty(t, slices.Collect(Chunks("", 10, 2)))
	})

	t.Run("short text is one chunk", func(t *testing.T) {
		chunks := slices.Collect(Chunks("hello", 10, 2))
		require.Len(t, chunks, 1)
		assert.Equal(t, "hello", chunks[0].Text)
		assert.Equal(t, 0, chunks[0].Span.Start)
		assert.Equal(t, 5, chunks[0].Span.End)
	})

	t.Run("windows and overlap", func(t *testing.T) {
		chunks := slices.Collect(Chunks("abcdefghij", 4, 1))
		var texts []string
		for _, c := range chunks {
			texts = append(texts, c.Text)
		}
		assert.Equal(t, []string{"abcd", "defg", "ghij"}, texts)
	})

	t.Run("last chunk may be shorter", func(t *testing.T) {
		chunks := slices.Collect(Chunks("abcdefghijk", 4, 1))
		require.Len(t, chunks, 4)
		assert.Equal(t, "jk", chunks[3].Text)
	})

	t.Run("indexes are sequential", func(t *testing.T) {
		for i, c := range slices.Collect(Chunks(strings.Repeat("x", 50), 10, 3)) {
			assert.Equal(t, i, c.Index)
		}
	})

	t.Run("sizes counted in characters", func(t *testing.T) {
		text := strings.Repeat("é", 9)
		for c := range Chunks(text, 4, 1) {
			assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 4)
			assert.True(t, utf8.ValidString(c.Text))
		}
	})

	t.Run("restartable", func(t *testing.T) {
		seq := Chunks("the quick brown fox jumps over the lazy dog", 8, 3)
		first := slices.Collect(seq)
		second := slices.Collect(seq)
		assert.Equal(t, first, second)
	})

	t.Run("early stop", func(t *testing.T) {
		count := 0
		for range Chunks(strings.Repeat("y", 100), 10, 0) {
			count++
			if count == 2 {
				break
			}
		}
		assert.Equal(t, 2, count)
	})
}

func TestReconstruct_RoundTrip(t *testing.T) {
	texts := []string{
		"",
		"short",
		"Data Availability\nData are available at https://zenodo.org/record/1.\n\nCode Availability\nCode is on GitHub.",
		strings.Repeat("lorem ipsum dolor sit amet ", 200),
		strings.Repeat("données ümlaut ", 90),
	}
	params := []struct{ size, overlap int }{
		{10, 0}, {10, 3}, {7, 6}, {100, 25}, {1800, 250},
	}

	for _, text := range texts {
		for _, p := range params {
			chunks := slices.Collect(Chunks(text, p.size, p.overlap))
			assert.Equal(t, text, Reconstruct(chunks), "size=%d overlap=%d", p.size, p.overlap)
			for _, c := range chunks {
				assert.Equal(t, text[c.Span.Start:c.Span.End], c.Text)
			}
		}
	}
}
