package openaiLLM

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/metrics"
	"github.com/akolanti/mirage/internal/rag/llm"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type llmClient struct {
	api    openai.Client
	logger *logger_i.Logger
}

func New(apiKey string, opts ...option.RequestOption) (llm.Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is not set")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &llmClient{api: openai.NewClient(opts...), logger: logger_i.NewLogger("llm_openai")}, nil
}

func (c *llmClient) Stream(ctx context.Context, req llm.Request, sink llm.Sink) (string, error) {
	log := c.logger.WithTrace(ctx).With("model", req.Model)
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("completion", time.Since(start)) }()

	params := openai.ChatCompletionNewParams{
		Messages: toMessages(req.Messages),
		Model:    openai.ChatModel(req.Model),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	stream := c.api.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var reply strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		fragment := chunk.Choices[0].Delta.Content
		if fragment == "" {
			continue
		}
		reply.WriteString(fragment)
		if sink != nil {
			sink(fragment)
		}
	}
	if err := stream.Err(); err != nil {
		log.Error("completion stream failed", "error", err)
		return reply.String(), mapError(err)
	}
	log.Debug("completion done", "chars", reply.Len())
	return reply.String(), nil
}

func toMessages(turns []commonModels.ChatTurn) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case commonModels.RoleSystem:
			out = append(out, openai.SystemMessage(t.Content))
		case commonModels.RoleAssistant:
			out = append(out, openai.AssistantMessage(t.Content))
		default:
			out = append(out, openai.UserMessage(t.Content))
		}
	}
	return out
}

// mapError marks rejected credentials so callers can ask for a new key.
func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
		return fmt.Errorf("openai rejected the api key (%d): %w", apiErr.StatusCode, commonModels.ErrUnauthorized)
	}
	return err
}
