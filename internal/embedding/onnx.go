//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	onnxInputNames  = []string{"input_ids", "attention_mask", "token_type_ids"}
	onnxOutputNames = []string{"output"}
)

// ONNXEmbedder runs a pooled sentence-embedding model through ONNX Runtime.
// It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer

	// Run() reads and writes these bound tensors, so inference holds mu.
	inputs []*ort.Tensor[int64]
	output *ort.Tensor[float32]
	mu     sync.Mutex
}

// NewONNXEmbedder loads the model at modelPath. InitializeEnvironment is called if not already done.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	e := &ONNXEmbedder{dimensions: dimensions, maxTokens: maxTokens, tokenizer: &SimpleTokenizer{}}
	shape := ort.NewShape(1, int64(maxTokens))
	for _, name := range onnxInputNames {
		t, err := ort.NewEmptyTensor[int64](shape)
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		e.inputs = append(e.inputs, t)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions)))
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	e.output = output

	inputs := make([]ort.ArbitraryTensor, len(e.inputs))
	for i, t := range e.inputs {
		inputs[i] = t
	}
	session, err := ort.NewAdvancedSession(modelPath, onnxInputNames, onnxOutputNames,
		inputs, []ort.ArbitraryTensor{e.output}, nil)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	e.session = session
	return e, nil
}

// Embed runs the model on text and returns the L2-normalized pooled output.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, data := range [][]int64{ids, mask, types} {
		copy(e.inputs[i].GetData(), data)
	}
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, e.output.GetData())
	NormalizeL2Slice(embedding)
	return embedding, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for _, t := range e.inputs {
		_ = t.Destroy()
	}
	e.inputs = nil
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
	return err
}

// NormalizeL2Slice normalizes the slice in place to unit L2 norm.
func NormalizeL2Slice(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range x {
		x[i] *= norm
	}
}
