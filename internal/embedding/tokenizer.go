package embedding

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"os"
	"strings"
	"unicode"
)

// BERT special token IDs shared by the bge and MiniLM vocabularies.
const (
	tokenUnk = 100
	tokenCLS = 101
	tokenSEP = 102

	// maxWordChars matches the BERT reference tokenizer: longer words become [UNK].
	maxWordChars = 100
)

// Encoding is the model input for one text, padded to a fixed length.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Tokenizer encodes text for a BERT-style encoder.
type Tokenizer interface {
	Encode(text string, maxTokens int) Encoding
}

// WordPieceTokenizer implements uncased BERT tokenization over a vocab.txt file: lower-casing,
// accent stripping, punctuation splitting and greedy longest-match subwords.
type WordPieceTokenizer struct {
	vocab map[string]int64
}

// LoadWordPiece reads a vocabulary with one token per line; the line number is the token ID.
func LoadWordPiece(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64, 32000)
	sc := bufio.NewScanner(f)
	var id int64
	for sc.Scan() {
		vocab[strings.TrimRight(sc.Text(), "\r")] = id
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	if _, ok := vocab["[UNK]"]; !ok {
		return nil, fmt.Errorf("vocab %s has no [UNK] token", path)
	}
	return &WordPieceTokenizer{vocab: vocab}, nil
}

// NewWordPiece builds a tokenizer from an in-memory token list.
func NewWordPiece(tokens []string) *WordPieceTokenizer {
	vocab := make(map[string]int64, len(tokens))
	for i, t := range tokens {
		vocab[t] = int64(i)
	}
	return &WordPieceTokenizer{vocab: vocab}
}

// Encode tokenizes text into [CLS] pieces [SEP], truncated and zero-padded to maxTokens.
func (t *WordPieceTokenizer) Encode(text string, maxTokens int) Encoding {
	ids := make([]int64, 0, 64)
	for _, word := range basicTokens(text) {
		ids = append(ids, t.pieces(word)...)
	}
	return pack(ids, maxTokens)
}

func (t *WordPieceTokenizer) id(token string) int64 {
	if id, ok := t.vocab[token]; ok {
		return id
	}
	return tokenUnk
}

// pieces splits one word into the longest vocabulary prefixes, marking continuations with ##.
func (t *WordPieceTokenizer) pieces(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordChars {
		return []int64{t.id("[UNK]")}
	}
	var out []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		found := int64(-1)
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				found = id
				break
			}
			end--
		}
		if found < 0 {
			return []int64{t.id("[UNK]")}
		}
		out = append(out, found)
		start = end
	}
	return out
}

// HashTokenizer maps whitespace words to hashed IDs. It is used when no vocabulary is
// configured and keeps the ONNX path usable for smoke tests.
type HashTokenizer struct {
	VocabSize int64
}

// Encode tokenizes text with hashed word IDs.
func (t HashTokenizer) Encode(text string, maxTokens int) Encoding {
	size := t.VocabSize
	if size <= tokenSEP {
		size = 30522
	}
	words := basicTokens(text)
	ids := make([]int64, 0, len(words))
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		ids = append(ids, tokenSEP+1+int64(h.Sum32())%(size-tokenSEP-1))
	}
	return pack(ids, maxTokens)
}

// pack wraps ids in [CLS] and [SEP] and pads to maxTokens. Token type IDs stay zero.
func pack(ids []int64, maxTokens int) Encoding {
	if maxTokens < 2 {
		maxTokens = 256
	}
	if len(ids) > maxTokens-2 {
		ids = ids[:maxTokens-2]
	}
	enc := Encoding{
		InputIDs:      make([]int64, maxTokens),
		AttentionMask: make([]int64, maxTokens),
		TokenTypeIDs:  make([]int64, maxTokens),
	}
	enc.InputIDs[0] = tokenCLS
	copy(enc.InputIDs[1:], ids)
	enc.InputIDs[len(ids)+1] = tokenSEP
	for i := 0; i < len(ids)+2; i++ {
		enc.AttentionMask[i] = 1
	}
	return enc
}

// basicTokens lower-cases text, drops accents and control characters, and splits on
// whitespace and punctuation. Each punctuation rune is its own token.
func basicTokens(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.Is(unicode.Mn, r), unicode.IsControl(r), r == unicode.ReplacementChar:
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(stripAccent(r))
		}
	}
	flush()
	return tokens
}

var accents = map[rune]rune{
	'à': 'a', 'á': 'a', 'â': 'a', 'ä': 'a', 'ã': 'a', 'å': 'a',
	'è': 'e', 'é': 'e', 'ê': 'e', 'ë': 'e',
	'ì': 'i', 'í': 'i', 'î': 'i', 'ï': 'i',
	'ò': 'o', 'ó': 'o', 'ô': 'o', 'ö': 'o', 'õ': 'o',
	'ù': 'u', 'ú': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n', 'ý': 'y',
}

func stripAccent(r rune) rune {
	if base, ok := accents[r]; ok {
		return base
	}
	return r
}
