//go:build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/medsage/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

var ortInit sync.Once
var ortInitErr error

// ONNXEmbedder runs a sentence-embedding model exported to ONNX with a pooled output of shape
// [1, dimensions]. Requires cgo and the onnxruntime shared library. Inference is serialized
// because the session reuses one set of bound tensors.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	inputs     [3]*ort.Tensor[int64] // input_ids, attention_mask, token_type_ids
	output     *ort.Tensor[float32]
	tokenizer  Tokenizer
	cache      *vectorCache
	name       string
	dimensions int
	maxTokens  int
}

// NewONNXEmbedder loads the model at opts.ModelPath. Without a vocabulary the embedder uses
// HashTokenizer, which only suits smoke tests.
func NewONNXEmbedder(opts ONNXOptions) (*ONNXEmbedder, error) {
	opts.applyDefaults()
	ortInit.Do(func() {
		if opts.LibraryPath != "" {
			ort.SetSharedLibraryPath(opts.LibraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", ortInitErr)
	}

	var tok Tokenizer = HashTokenizer{}
	if opts.VocabPath != "" {
		wp, err := LoadWordPiece(opts.VocabPath)
		if err != nil {
			return nil, err
		}
		tok = wp
	}

	e := &ONNXEmbedder{
		tokenizer:  tok,
		cache:      newVectorCache(opts.CacheSize),
		name:       opts.ModelName,
		dimensions: opts.Dimensions,
		maxTokens:  opts.MaxTokens,
	}
	shape := ort.NewShape(1, int64(opts.MaxTokens))
	for i := range e.inputs {
		t, err := ort.NewEmptyTensor[int64](shape)
		if err != nil {
			e.destroy()
			return nil, fmt.Errorf("allocate input tensor: %w", err)
		}
		e.inputs[i] = t
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(opts.Dimensions)))
	if err != nil {
		e.destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}
	e.output = out

	e.session, err = ort.NewAdvancedSession(opts.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{opts.OutputName},
		[]ort.ArbitraryTensor{e.inputs[0], e.inputs[1], e.inputs[2]},
		[]ort.ArbitraryTensor{e.output},
		nil)
	if err != nil {
		e.destroy()
		return nil, fmt.Errorf("load model %s: %w", opts.ModelPath, err)
	}
	return e, nil
}

// Embed returns the L2-normalized embedding of text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.get(text); ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enc := e.tokenizer.Encode(text, e.maxTokens)

	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil, errors.New("onnx embedder is closed")
	}
	copy(e.inputs[0].GetData(), enc.InputIDs)
	copy(e.inputs[1].GetData(), enc.AttentionMask)
	copy(e.inputs[2].GetData(), enc.TokenTypeIDs)
	err := e.session.Run()
	vec := append([]float32(nil), e.output.GetData()[:e.dimensions]...)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}

	utils.NormalizeL2(vec)
	e.cache.put(text, vec)
	return vec, nil
}

// EmbedBatch embeds texts one at a time, in order.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Dimensions returns the output vector length.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns the configured model name.
func (e *ONNXEmbedder) Name() string {
	return e.name
}

// Close releases the session and its tensors. Embed fails afterwards.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	e.destroy()
	return err
}

func (e *ONNXEmbedder) destroy() {
	for i, t := range e.inputs {
		if t != nil {
			_ = t.Destroy()
			e.inputs[i] = nil
		}
	}
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
}
