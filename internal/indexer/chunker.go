// Package indexer provides chunking and ingestion of uploads and case datasets into the vector store.
package indexer

import (
	"strings"
)

// EmptyChunk is the placeholder produced when text yields no words.
const EmptyChunk = "[Empty]"

const (
	defaultChunkSize   = 400
	defaultChunkStride = 350
)

// Chunker splits text into overlapping word windows.
type Chunker struct {
	chunkSize   int
	chunkStride int
}

// NewChunker creates a chunker with the given window size and stride (in words).
// Non-positive values fall back to 400/350; a stride larger than the window is clamped to it.
func NewChunker(chunkSize, chunkStride int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkStride <= 0 {
		chunkStride = defaultChunkStride
	}
	if chunkStride > chunkSize {
		chunkStride = chunkSize
	}
	return &Chunker{
		chunkSize:   chunkSize,
		chunkStride: chunkStride,
	}
}

// Size returns the window size in words.
func (c *Chunker) Size() int { return c.chunkSize }

// Stride returns how far each window advances, in words.
func (c *Chunker) Stride() int { return c.chunkStride }

// Chunk splits text into windows of chunkSize words, starting every chunkStride words
// until the start passes the end of the text. The result is never empty: blank text
// yields a single EmptyChunk.
func (c *Chunker) Chunk(text string) []string {
	words := strings.Fields(text)
	chunks := make([]string, 0, len(words)/c.chunkStride+1)
	for i := 0; i < len(words); i += c.chunkStride {
		end := i + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		return []string{EmptyChunk}
	}
	return chunks
}
