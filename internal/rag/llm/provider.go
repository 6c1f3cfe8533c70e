package llm

import (
	"context"

	"github.com/akolanti/mirage/internal/domain/commonModels"
)

type Request struct {
	Model       string
	Messages    []commonModels.ChatTurn
	Temperature float64
}

// Sink receives streamed text fragments as they arrive.
type Sink func(fragment string)

// Provider streams a chat completion. It returns the full reply once the
// stream ends; on error the partial reply may be non-empty.
type Provider interface {
	Stream(ctx context.Context, req Request, sink Sink) (string, error)
}

// SplitSystem separates leading system turns from the conversation, for
// providers that take the system instruction out of band.
func SplitSystem(turns []commonModels.ChatTurn) (string, []commonModels.ChatTurn) {
	var system string
	rest := make([]commonModels.ChatTurn, 0, len(turns))
	for _, t := range turns {
		if t.Role == commonModels.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += t.Content
			continue
		}
		rest = append(rest, t)
	}
	return system, rest
}

type defaultModel struct {
	next  Provider
	model string
}

// WithDefaultModel fills Request.Model when the caller leaves it empty.
func WithDefaultModel(p Provider, model string) Provider {
	return &defaultModel{next: p, model: model}
}

func (d *defaultModel) Stream(ctx context.Context, req Request, sink Sink) (string, error) {
	if req.Model == "" {
		req.Model = d.model
	}
	return d.next.Stream(ctx, req, sink)
}
