package ai

import (
	"context"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const defaultMaxSeqLength = 256

// ONNXEmbedder runs a sentence-transformer model locally. The shared library,
// vocabulary and session are loaded on first use; runs are serialised because
// the session binds fixed input and output tensors.
type ONNXEmbedder struct {
	mu sync.Mutex

	modelPath string
	vocabPath string
	libPath   string
	name      string
	dimension int
	maxLen    int

	tokenizer *WordPiece
	session   *ort.AdvancedSession
	inputIDs  *ort.Tensor[int64]
	mask      *ort.Tensor[int64]
	typeIDs   *ort.Tensor[int64]
	output    *ort.Tensor[float32]
	inited    bool
}

func NewONNXEmbedder(modelPath, vocabPath, onnxLibPath, name string, dimension, maxLen int) *ONNXEmbedder {
	if maxLen <= 2 {
		maxLen = defaultMaxSeqLength
	}
	return &ONNXEmbedder{
		modelPath: modelPath,
		vocabPath: vocabPath,
		libPath:   onnxLibPath,
		name:      name,
		dimension: dimension,
		maxLen:    maxLen,
	}
}

func (e *ONNXEmbedder) Dimension() int    { return e.dimension }
func (e *ONNXEmbedder) ModelName() string { return e.name }

// initLocked must be called with e.mu held.
func (e *ONNXEmbedder) initLocked() error {
	if e.inited {
		return nil
	}

	tokenizer, err := LoadWordPiece(e.vocabPath)
	if err != nil {
		return err
	}

	if e.libPath != "" {
		ort.SetSharedLibraryPath(e.libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("onnx init environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(e.modelPath)
	if err != nil {
		return fmt.Errorf("onnx get input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return fmt.Errorf("onnx model has no inputs or outputs")
	}

	seqShape := ort.NewShape(1, int64(e.maxLen))
	tensors := make([]*ort.Tensor[int64], 0, 3)
	destroy := func() {
		for _, t := range tensors {
			t.Destroy()
		}
	}
	newInput := func() (*ort.Tensor[int64], error) {
		t, err := ort.NewEmptyTensor[int64](seqShape)
		if err != nil {
			return nil, fmt.Errorf("onnx new input tensor: %w", err)
		}
		tensors = append(tensors, t)
		return t, nil
	}

	inputNames := make([]string, 0, len(inputs))
	inputValues := make([]ort.Value, 0, len(inputs))
	for _, in := range inputs {
		t, err := newInput()
		if err != nil {
			destroy()
			return err
		}
		switch in.Name {
		case "input_ids":
			e.inputIDs = t
		case "attention_mask":
			e.mask = t
		case "token_type_ids":
			e.typeIDs = t
		default:
			destroy()
			return fmt.Errorf("onnx model has unexpected input %q", in.Name)
		}
		inputNames = append(inputNames, in.Name)
		inputValues = append(inputValues, t)
	}
	if e.inputIDs == nil || e.mask == nil {
		destroy()
		return fmt.Errorf("onnx model needs input_ids and attention_mask inputs")
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.maxLen), int64(e.dimension)))
	if err != nil {
		destroy()
		return fmt.Errorf("onnx new output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(e.modelPath, inputNames, []string{outputs[0].Name},
		inputValues, []ort.Value{output}, nil)
	if err != nil {
		output.Destroy()
		destroy()
		return fmt.Errorf("onnx new session: %w", err)
	}

	e.tokenizer = tokenizer
	e.output = output
	e.session = session
	e.inited = true
	return nil
}

func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.initLocked(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	return e.runLocked(text)
}

func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.initLocked(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
		}
		vec, err := e.runLocked(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *ONNXEmbedder) runLocked(text string) ([]float32, error) {
	ids := e.tokenizer.Encode(text, e.maxLen)

	idData := e.inputIDs.GetData()
	maskData := e.mask.GetData()
	for i := range idData {
		if i < len(ids) {
			idData[i] = ids[i]
			maskData[i] = 1
		} else {
			idData[i] = 0
			maskData[i] = 0
		}
	}
	if e.typeIDs != nil {
		clear(e.typeIDs.GetData())
	}

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: onnx run: %v", ErrEmbedding, err)
	}
	return meanPool(e.output.GetData(), maskData, e.dimension), nil
}

// Close releases the session and tensors. It is safe to call before first use.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return nil
	}
	e.session.Destroy()
	for _, t := range []*ort.Tensor[int64]{e.inputIDs, e.mask, e.typeIDs} {
		if t != nil {
			t.Destroy()
		}
	}
	e.output.Destroy()
	e.inited = false
	return nil
}

// meanPool averages token vectors where mask is 1 and L2-normalises the result.
func meanPool(hidden []float32, mask []int64, dimension int) []float32 {
	sum := make([]float64, dimension)
	var count float64
	for tok, m := range mask {
		if m == 0 {
			continue
		}
		row := hidden[tok*dimension : (tok+1)*dimension]
		for d, v := range row {
			sum[d] += float64(v)
		}
		count++
	}

	out := make([]float32, dimension)
	if count == 0 {
		return out
	}
	var norm float64
	for d := range sum {
		sum[d] /= count
		norm += sum[d] * sum[d]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for d := range sum {
		out[d] = float32(sum[d] / norm)
	}
	return out
}
