package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/metrics"
	"github.com/akolanti/mirage/internal/rag/llm"
	"github.com/akolanti/mirage/pkg/logger_i"
	"google.golang.org/genai"
)

type llmClient struct {
	client *genai.Client
	logger *logger_i.Logger
}

func New(ctx context.Context, apiKey string, cfg *genai.ClientConfig) (llm.Provider, error) {
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
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	logger := logger_i.NewLogger("llm_gemini")
	logger.Debug("Gemini client created")
	return &llmClient{client: c, logger: logger}, nil
}

func (c *llmClient) Stream(ctx context.Context, req llm.Request, sink llm.Sink) (string, error) {
	log := c.logger.WithTrace(ctx).With("model", req.Model)
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("completion", time.Since(start)) }()

	system, turns := llm.SplitSystem(req.Messages)
	contentConfig := &genai.GenerateContentConfig{}
	if system != "" {
		contentConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		contentConfig.Temperature = &t
	}

	var reply strings.Builder
	for res, err := range c.client.Models.GenerateContentStream(ctx, req.Model, toContents(turns), contentConfig) {
		if err != nil {
			log.Error("gemini stream failed", "error", err)
			return reply.String(), err
		}
		fragment := res.Text()
		if fragment == "" {
			continue
		}
		reply.WriteString(fragment)
		if sink != nil {
			sink(fragment)
		}
	}
	return reply.String(), nil
}

func toContents(turns []commonModels.ChatTurn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == commonModels.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(t.Content, role))
	}
	return out
}
