package googleEmbedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/rag/embedding"
	"github.com/akolanti/mirage/pkg/logger_i"
	"google.golang.org/genai"
)

const retryDelay = 5 * time.Second

var dimension int32 = config.EmbeddingOutputDimensionality

type client struct {
	genAi  *genai.Client
	model  string
	logger *logger_i.Logger
	delay  time.Duration
}

// New builds a Gemini embedder. cfg may carry a custom HTTP client or base
// url; the api key is always taken from apiKey.
func New(ctx context.Context, apiKey, model string, cfg *genai.ClientConfig) (embedding.Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is not set")
	}
	if cfg == nil {
		cfg = &genai.ClientConfig{}
	}
	cfg.APIKey = apiKey
	cfg.Backend = genai.BackendGeminiAPI

	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating Google Embedding client: %w", err)
	}
	logger := logger_i.NewLogger("google_embedding")
	logger.Debug("Google Embedding client created", "model", model)
	return &client{genAi: c, model: model, logger: logger, delay: retryDelay}, nil
}

func (c *client) GetEmbedding(ctx context.Context, query string) ([]float32, error) {
	res, err := c.BatchEmbedding(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (c *client) BatchEmbedding(ctx context.Context, chunks []string) ([][]float32, error) {
	log := c.logger.WithTrace(ctx)
	if len(chunks) == 0 {
		return [][]float32{}, nil
	}

	res, err := c.doCall(ctx, getContent(chunks))
	if doRetry(err, log) {
		log.Debug("Retrying", "in", c.delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.delay):
		}
		res, err = c.doCall(ctx, getContent(chunks))
	}
	if err != nil {
		log.Error("Error getting Embeddings from Google", "error", err)
		return nil, err
	}

	vectors := toVectors(res)
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("google returned %d embeddings for %d inputs", len(vectors), len(chunks))
	}
	return vectors, nil
}

func (c *client) doCall(ctx context.Context, content []*genai.Content) (*genai.EmbedContentResponse, error) {
	return c.genAi.Models.EmbedContent(ctx, c.model, content, &genai.EmbedContentConfig{
		OutputDimensionality: &dimension,
		TaskType:             "RETRIEVAL_DOCUMENT",
	})
}
