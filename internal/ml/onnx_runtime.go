package ml

import (
	"context"
	"math"
	"os"
	"sync"

	onnxruntime "github.com/yalue/onnxruntime_go"

	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

// CrossEncoder scores query/passage relevance with an ONNX BERT-style
// cross-encoder. The model and its vocab file are optional at runtime;
// when either is missing the encoder reports itself unavailable and
// retrieval falls back to fused ordering.
type CrossEncoder struct {
	mu        sync.Mutex
	session   *onnxruntime.DynamicAdvancedSession
	tokenizer *wordPieceTokenizer
	maxTokens int
	log       *logger.Logger
}

// LoadCrossEncoder loads the reranker model from modelPath and its
// vocabulary from vocabPath. A missing file is not an error here; the
// returned encoder is simply unavailable.
func LoadCrossEncoder(modelPath, vocabPath string) (*CrossEncoder, error) {
	log := logger.Get().With("component", "cross_encoder")

	enc := &CrossEncoder{maxTokens: 512, log: log}
	if modelPath == "" || vocabPath == "" {
		log.Warn("Cross-encoder not configured, reranking disabled")
		return enc, nil
	}
	if _, err := os.Stat(modelPath); err != nil {
		log.Warnf("Cross-encoder model not found at %s, reranking disabled", modelPath)
		return enc, nil
	}

	tokenizer, err := loadWordPieceVocab(vocabPath)
	if err != nil {
		return nil, errors.Wrap(err, "load reranker vocab")
	}

	if err := onnxruntime.InitializeEnvironment(); err != nil {
		return nil, errors.Wrap(err, "initialize ONNX runtime")
	}

	options, err := onnxruntime.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	session, err := onnxruntime.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"logits"}, options)
	if err != nil {
		return nil, errors.Wrap(err, "load reranker model")
	}

	enc.session = session
	enc.tokenizer = tokenizer
	log.Infof("Cross-encoder loaded from %s", modelPath)
	return enc, nil
}

// Available reports whether the model was loaded.
func (e *CrossEncoder) Available() bool {
	return e.session != nil
}

// Rerank scores each passage against the query. Scores are sigmoid-squashed
// logits in (0, 1), parallel to passages.
func (e *CrossEncoder) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	if !e.Available() {
		return nil, errors.ErrRerankerUnavailable
	}

	scores := make([]float64, len(passages))
	for i, passage := range passages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		score, err := e.scorePair(query, passage)
		if err != nil {
			return nil, err
		}
		scores[i] = score
	}
	return scores, nil
}

func (e *CrossEncoder) scorePair(query, passage string) (float64, error) {
	inputIDs, typeIDs := e.tokenizer.encodePair(query, passage, e.maxTokens)
	attention := make([]int64, len(inputIDs))
	for i := range attention {
		attention[i] = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	shape := onnxruntime.NewShape(1, int64(len(inputIDs)))
	idsTensor, err := onnxruntime.NewTensor(shape, inputIDs)
	if err != nil {
		return 0, errors.Wrap(err, "create input_ids tensor")
	}
	defer idsTensor.Destroy()

	maskTensor, err := onnxruntime.NewTensor(shape, attention)
	if err != nil {
		return 0, errors.Wrap(err, "create attention_mask tensor")
	}
	defer maskTensor.Destroy()

	typeTensor, err := onnxruntime.NewTensor(shape, typeIDs)
	if err != nil {
		return 0, errors.Wrap(err, "create token_type_ids tensor")
	}
	defer typeTensor.Destroy()

	logits := make([]float32, 1)
	logitsTensor, err := onnxruntime.NewTensor(onnxruntime.NewShape(1, 1), logits)
	if err != nil {
		return 0, errors.Wrap(err, "create logits tensor")
	}
	defer logitsTensor.Destroy()

	inputs := []onnxruntime.Value{idsTensor, maskTensor, typeTensor}
	outputs := []onnxruntime.Value{logitsTensor}
	if err := e.session.Run(inputs, outputs); err != nil {
		return 0, errors.Wrap(err, "reranker inference")
	}

	return sigmoid(float64(logits[0])), nil
}

// Destroy releases the ONNX session.
func (e *CrossEncoder) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
