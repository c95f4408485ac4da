//go:build !cgo

package embedding

import (
	"context"
	"errors"
)

var errNoCgo = errors.New("onnx embedder needs a cgo build with onnxruntime installed")

// ONNXEmbedder is unavailable without cgo; New falls back to the hash embedder.
type ONNXEmbedder struct{}

// NewONNXEmbedder always fails in builds without cgo.
func NewONNXEmbedder(ONNXOptions) (*ONNXEmbedder, error) { return nil, errNoCgo }

func (*ONNXEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, errNoCgo }

func (*ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errNoCgo
}

func (*ONNXEmbedder) Dimensions() int { return 0 }

func (*ONNXEmbedder) Name() string { return "" }

func (*ONNXEmbedder) Close() error { return nil }
