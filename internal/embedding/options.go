package embedding

import "path/filepath"

// ONNXOptions configures an ONNXEmbedder.
type ONNXOptions struct {
	ModelName   string // reported by Name; defaults to the model file name
	ModelPath   string
	LibraryPath string // onnxruntime shared library; empty uses the platform default
	VocabPath   string // WordPiece vocab.txt; empty uses HashTokenizer
	OutputName  string
	Dimensions  int
	MaxTokens   int
	CacheSize   int
}

func (o *ONNXOptions) applyDefaults() {
	if o.ModelName == "" {
		o.ModelName = filepath.Base(o.ModelPath)
	}
	if o.OutputName == "" {
		o.OutputName = "sentence_embedding"
	}
	if o.Dimensions <= 0 {
		o.Dimensions = 384
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 256
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 10000
	}
}
