package llm

import (
	"context"
	"testing"

	"github.com/akolanti/mirage/internal/domain/commonModels"
)

func TestSplitSystem(t *testing.T) {
	turns := []commonModels.ChatTurn{
		{Role: commonModels.RoleSystem, Content: "be brief"},
		{Role: commonModels.RoleUser, Content: "q1"},
		{Role: commonModels.RoleAssistant, Content: "a1"},
		{Role: commonModels.RoleSystem, Content: "cite sources"},
	}
	system, rest := SplitSystem(turns)
	if system != "be brief\n\ncite sources" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 2 || rest[0].Content != "q1" || rest[1].Role != commonModels.RoleAssistant {
		t.Errorf("rest = %+v", rest)
	}
}

type recordingProvider struct {
	got []string
}

func (r *recordingProvider) Stream(_ context.Context, req Request, _ Sink) (string, error) {
	r.got = append(r.got, req.Model)
	return "", nil
}

func TestWithDefaultModel(t *testing.T) {
	rec := &recordingProvider{}
	p := WithDefaultModel(rec, "gemini-2.5-flash")

	_, _ = p.Stream(context.Background(), Request{}, nil)
	_, _ = p.Stream(context.Background(), Request{Model: "gpt-4o"}, nil)

	if len(rec.got) != 2 || rec.got[0] != "gemini-2.5-flash" || rec.got[1] != "gpt-4o" {
		t.Errorf("models = %v", rec.got)
	}
}
