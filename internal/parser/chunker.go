package parser

import (
	"iter"
	"strings"
	"unicode/utf8"

	"ecoopen-extract/internal/models"
)

const (
	DefaultChunkSize    = 1800 // characters
	DefaultChunkOverlap = 250  // characters
)

// Chunker splits normalized text into overlapping fixed-size windows.
type Chunker struct {
	size    int
	overlap int
}

type Option func(*Chunker)

func WithChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.size = n
		}
	}
}

func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

func NewChunker(opts ...Option) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, o := range opts {
		o(c)
	}
	// overlap must stay below size or windows stop advancing
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks returns a lazy sequence of windows over text. Each iteration starts
// over from the beginning; the sequence is finite and deterministic. Window
// sizes are counted in characters, spans in bytes.
func (c *Chunker) Chunks(text string) iter.Seq[models.Chunk] {
	size, step := c.size, c.size-c.overlap
	return func(yield func(models.Chunk) bool) {
		if text == "" {
			return
		}
		offsets := runeOffsets(text)
		n := len(offsets) - 1
		for i, start := 0, 0; start < n; i, start = i+1, start+step {
			end := min(start+size, n)
			chunk := models.Chunk{
				Index: i,
				Text:  text[offsets[start]:offsets[end]],
				Span:  models.Span{Start: offsets[start], End: offsets[end]},
			}
			if !yield(chunk) || end == n {
				return
			}
		}
	}
}

// Chunks is a shorthand for NewChunker(WithChunkSize(size), WithOverlap(overlap)).Chunks(text).
func Chunks(text string, size, overlap int) iter.Seq[models.Chunk] {
	return NewChunker(WithChunkSize(size), WithOverlap(overlap)).Chunks(text)
}

// Reconstruct rebuilds the chunked text by appending each chunk minus the
// part that overlaps its predecessor.
func Reconstruct(chunks []models.Chunk) string {
	var content strings.Builder
	covered := 0
	for i, chunk := range chunks {
		if i > 0 && chunk.Span.End <= covered {
			continue
		}
		cut := 0
		if i > 0 && chunk.Span.Start < covered {
			cut = covered - chunk.Span.Start
		}
		content.WriteString(chunk.Text[cut:])
		covered = chunk.Span.End
	}
	return content.String()
}

// runeOffsets returns the byte offset of every rune plus len(text).
func runeOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}
