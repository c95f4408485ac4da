package indexer

import (
	"fmt"
	"strings"
	"testing"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func TestChunker_Chunk(t *testing.T) {
	c := NewChunker(3, 2)
	chunks := c.Chunk("one two three four five six seven")
	want := []string{"one two three", "three four five", "five six seven", "seven"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks %q, want %d", len(chunks), chunks, len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c := NewChunker(400, 350)
	for _, in := range []string{"", "   ", "\n\t  "} {
		chunks := c.Chunk(in)
		if len(chunks) != 1 || chunks[0] != EmptyChunk {
			t.Errorf("Chunk(%q) = %q, want [%q]", in, chunks, EmptyChunk)
		}
	}
}

func TestChunker_Defaults(t *testing.T) {
	c := NewChunker(0, 0)
	if c.Size() != 400 || c.Stride() != 350 {
		t.Errorf("defaults: size=%d stride=%d", c.Size(), c.Stride())
	}
	c = NewChunker(10, 50)
	if c.Stride() != 10 {
		t.Errorf("stride should clamp to size, got %d", c.Stride())
	}
}

func TestChunker_Coverage(t *testing.T) {
	c := NewChunker(400, 350)
	for _, n := range []int{1, 399, 400, 401, 750, 751, 1234, 5000} {
		t.Run(fmt.Sprintf("%d_words", n), func(t *testing.T) {
			text := words(n)
			chunks := c.Chunk(text)
			if len(chunks) == 0 {
				t.Fatal("no chunks")
			}
			covered := make([]bool, n)
			for i, ch := range chunks {
				fields := strings.Fields(ch)
				if len(fields) == 0 || len(fields) > 400 {
					t.Fatalf("chunk %d has %d words", i, len(fields))
				}
				start := i * 350
				for j, f := range fields {
					if f != fmt.Sprintf("w%d", start+j) {
						t.Fatalf("chunk %d word %d = %s, want w%d", i, j, f, start+j)
					}
					covered[start+j] = true
				}
			}
			for i, ok := range covered {
				if !ok {
					t.Fatalf("word %d not covered", i)
				}
			}
		})
	}
}

func TestChunker_Overlap(t *testing.T) {
	c := NewChunker(400, 350)
	chunks := c.Chunk(words(800))
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	if strings.Join(first[350:], " ") != strings.Join(second[:50], " ") {
		t.Error("consecutive chunks should share 50 words")
	}
}

func TestPreprocess(t *testing.T) {
	tests := map[string]string{
		"  a  b  ":                      "a b",
		"Patient\n\n\tstable":           "Patient stable",
		"bp\x00 120/80 \ufffd mmHg\x07": "bp 120/80 mmHg",
		"":                              "",
	}
	for in, want := range tests {
		if got := Preprocess(in); got != want {
			t.Errorf("Preprocess(%q) = %q, want %q", in, got, want)
		}
	}
}
