package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/metrics"
)

type Embedder interface {
	GetEmbedding(ctx context.Context, query string) ([]float32, error)
	// BatchEmbedding returns one vector per text, in input order.
	BatchEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedInBatches sends texts to e in groups of batchSize and stitches the
// results back together. Any failed batch fails the whole call.
func EmbedInBatches(ctx context.Context, e Embedder, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = config.EmbeddingBatchSize
	}
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("embedding", time.Since(start)) }()

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := min(i+batchSize, len(texts))
		batch, err := e.BatchEmbedding(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", i, end, err)
		}
		if len(batch) != end-i {
			return nil, fmt.Errorf("embedding batch %d-%d: got %d vectors for %d texts", i, end, len(batch), end-i)
		}
		for j, v := range batch {
			if len(v) == 0 {
				return nil, fmt.Errorf("embedding for text %d is empty", i+j)
			}
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
