package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/rag/llm"
	"github.com/akolanti/mirage/internal/rag/retriever"
	"github.com/akolanti/mirage/pkg/logger_i"
)

func init() {
	logger_i.Discard()
}

type MockRetrieval struct {
	OnRetrieve func(ctx context.Context, q retriever.Query) (*retriever.Result, error)
	calls      int
}

func (m *MockRetrieval) Retrieve(ctx context.Context, q retriever.Query) (*retriever.Result, error) {
	m.calls++
	return m.OnRetrieve(ctx, q)
}

type MockProvider struct {
	OnStream func(ctx context.Context, req llm.Request, sink llm.Sink) (string, error)
	requests []llm.Request
}

func (m *MockProvider) Stream(ctx context.Context, req llm.Request, sink llm.Sink) (string, error) {
	m.requests = append(m.requests, req)
	return m.OnStream(ctx, req, sink)
}

// replies streams the given answer in two fragments.
func replies(answer string) *MockProvider {
	return &MockProvider{OnStream: func(_ context.Context, _ llm.Request, sink llm.Sink) (string, error) {
		half := len(answer) / 2
		sink(answer[:half])
		sink(answer[half:])
		return answer, nil
	}}
}

type recordingRenderer struct {
	out      strings.Builder
	warnings []string
	errors   []error
	infos    []string
	cited    []string
}

func (r *recordingRenderer) Prompt()                  {}
func (r *recordingRenderer) BeginAnswer()             {}
func (r *recordingRenderer) Fragment(s string)        { r.out.WriteString(s) }
func (r *recordingRenderer) EndAnswer(cited []string) { r.cited = cited }
func (r *recordingRenderer) Info(msg string)          { r.infos = append(r.infos, msg) }
func (r *recordingRenderer) Warn(msg string)          { r.warnings = append(r.warnings, msg) }
func (r *recordingRenderer) Error(err error)          { r.errors = append(r.errors, err) }

func hitsFrom(pairs ...string) *retriever.Result {
	res := &retriever.Result{}
	for i := 0; i+1 < len(pairs); i += 2 {
		res.Hits = append(res.Hits, commonModels.SearchHit{
			Score:   float32(len(pairs) - i),
			Payload: commonModels.Payload{Source: pairs[i], Data: pairs[i+1]},
		})
	}
	return res
}

func TestAsk_WithoutSourcesSendsQuestionAsIs(t *testing.T) {
	provider := replies("hello there")
	r := &recordingRenderer{}
	s := New(Config{SystemPrompt: "be nice", Model: "m"}, nil, provider, r)

	if err := s.Ask(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	req := provider.requests[0]
	if len(req.Messages) != 2 || req.Messages[0].Content != "be nice" || req.Messages[1].Content != "hi" {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.Model != "m" {
		t.Errorf("model = %q", req.Model)
	}
	if r.out.String() != "hello there" {
		t.Errorf("rendered = %q", r.out.String())
	}
	h := s.History()
	if len(h) != 3 || h[2].Role != commonModels.RoleAssistant || h[2].Content != "hello there" {
		t.Errorf("history = %+v", h)
	}
}

func TestAsk_RetrievesEveryTurn(t *testing.T) {
	retrieval := &MockRetrieval{OnRetrieve: func(_ context.Context, q retriever.Query) (*retriever.Result, error) {
		if len(q.Sources) != 2 {
			t.Errorf("sources = %v", q.Sources)
		}
		return hitsFrom("local_notes", "cats are mammals", "web_docs", "dogs are mammals"), nil
	}}
	provider := replies("yes")
	r := &recordingRenderer{}
	s := New(Config{TopN: 10}, retrieval, provider, r, WithSelector(func(context.Context) (Selection, error) {
		return Selection{Sources: []string{"local_notes", "web_docs"}}, nil
	}))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := s.Ask(context.Background(), "are cats mammals?"); err != nil {
		t.Fatal(err)
	}
	if err := s.Ask(context.Background(), "and dogs?"); err != nil {
		t.Fatal(err)
	}
	if retrieval.calls != 2 {
		t.Errorf("retrieval calls = %d, want one per turn", retrieval.calls)
	}

	first := provider.requests[0].Messages[1].Content
	if !strings.Contains(first, "local_notes: cats are mammals\n\nweb_docs: dogs are mammals") ||
		!strings.HasSuffix(first, "Question: are cats mammals?") {
		t.Errorf("first prompt = %q", first)
	}
	second := provider.requests[1].Messages
	if len(second) != 4 || !strings.HasSuffix(second[3].Content, "Message: and dogs?") {
		t.Errorf("second request = %+v", second)
	}
	// history keeps the plain question, not the context
	if h := s.History(); h[1].Content != "are cats mammals?" {
		t.Errorf("history user turn = %q", h[1].Content)
	}
	if strings.Join(r.cited, ",") != "local_notes,web_docs" {
		t.Errorf("cited = %v", r.cited)
	}
}

func TestAsk_SourceFailuresAreWarnings(t *testing.T) {
	retrieval := &MockRetrieval{OnRetrieve: func(context.Context, retriever.Query) (*retriever.Result, error) {
		res := hitsFrom("a", "text")
		res.Failures = []retriever.SourceResult{{Source: "old_docs", Err: commonModels.ErrDimensionMismatch}}
		return res, nil
	}}
	r := &recordingRenderer{}
	s := New(Config{}, retrieval, replies("ok"), r)
	s.selection = Selection{Sources: []string{"a", "old_docs"}}

	if err := s.Ask(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	if len(r.warnings) != 1 || !strings.HasPrefix(r.warnings[0], "old_docs skipped") {
		t.Errorf("warnings = %v", r.warnings)
	}
}

func TestAsk_VerbatimTransientGoesFirst(t *testing.T) {
	retrieval := &MockRetrieval{OnRetrieve: func(_ context.Context, q retriever.Query) (*retriever.Result, error) {
		res := hitsFrom("web_docs", "dogs")
		res.Verbatim = q.Transient
		return res, nil
	}}
	provider := replies("ok")
	s := New(Config{}, retrieval, provider, &recordingRenderer{})
	s.selection = Selection{
		Sources:   []string{"web_docs"},
		Transient: []commonModels.Document{{SourceID: "notes.txt", Text: "my cat is Tom"}},
	}

	if err := s.Ask(context.Background(), "cat name?"); err != nil {
		t.Fatal(err)
	}
	prompt := provider.requests[0].Messages[1].Content
	if !strings.Contains(prompt, "Sources: notes.txt, web_docs") || !strings.Contains(prompt, "notes.txt: my cat is Tom\n\nweb_docs: dogs") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestAsk_FailureLeavesHistoryUntouched(t *testing.T) {
	tests := []struct {
		name   string
		stream func(ctx context.Context, req llm.Request, sink llm.Sink) (string, error)
		cancel bool
	}{
		{
			name: "provider error",
			stream: func(_ context.Context, _ llm.Request, sink llm.Sink) (string, error) {
				sink("partial")
				return "partial", errors.New("boom")
			},
		},
		{
			name:   "interrupted",
			cancel: true,
			stream: func(ctx context.Context, _ llm.Request, sink llm.Sink) (string, error) {
				sink("part")
				<-ctx.Done()
				return "part", ctx.Err()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{SystemPrompt: "sys"}, nil, &MockProvider{OnStream: tt.stream}, &recordingRenderer{})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				cancel()
			}
			err := s.Ask(ctx, "question")
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.cancel && !errors.Is(err, context.Canceled) {
				t.Errorf("err = %v, want context.Canceled", err)
			}
			if h := s.History(); len(h) != 1 {
				t.Errorf("history = %+v, want only the system turn", h)
			}
		})
	}
}

func TestAsk_RetrievalErrorAborts(t *testing.T) {
	retrieval := &MockRetrieval{OnRetrieve: func(context.Context, retriever.Query) (*retriever.Result, error) {
		return nil, &commonModels.InvalidSourceError{Unknown: []string{"typo"}}
	}}
	provider := replies("never")
	s := New(Config{}, retrieval, provider, &recordingRenderer{})
	s.selection = Selection{Sources: []string{"typo"}}

	err := s.Ask(context.Background(), "q")
	if !errors.Is(err, commonModels.ErrSourceNotFound) {
		t.Errorf("err = %v", err)
	}
	if len(provider.requests) != 0 {
		t.Error("completion called after a failed retrieval")
	}
}

func TestHandle_Controls(t *testing.T) {
	selections := 0
	var copied string
	r := &recordingRenderer{}
	reply := "Here:\n```go\nfmt.Println(1)\n```\nand\n```\nls -la\n```\n"
	s := New(Config{SystemPrompt: "sys"}, nil, replies(reply), r,
		WithSelector(func(context.Context) (Selection, error) {
			selections++
			return Selection{}, nil
		}),
		WithClipboard(func(text string) error {
			copied = text
			return nil
		}))
	ctx := context.Background()

	if _, err := s.Handle(ctx, "/copy 1"); err == nil {
		t.Error("copy before any answer should fail")
	}
	if exit, err := s.Handle(ctx, "show me"); exit || err != nil {
		t.Fatalf("exit=%v err=%v", exit, err)
	}
	if _, err := s.Handle(ctx, "/copy 2,1"); err != nil {
		t.Fatal(err)
	}
	if copied != "ls -la\n\nfmt.Println(1)" {
		t.Errorf("copied = %q", copied)
	}
	if _, err := s.Handle(ctx, "/copy 9"); err == nil {
		t.Error("out of range copy should fail")
	}

	if _, err := s.Handle(ctx, "RESET"); err != nil {
		t.Fatal(err)
	}
	if selections != 1 || len(s.History()) != 1 {
		t.Errorf("selections = %d, history = %d", selections, len(s.History()))
	}
	if exit, _ := s.Handle(ctx, "  exit "); !exit {
		t.Error("exit not recognised")
	}
}

func TestRun_LoopsUntilExit(t *testing.T) {
	r := &recordingRenderer{}
	provider := replies("answer")
	s := New(Config{}, nil, provider, r)

	if err := s.Run(context.Background(), strings.NewReader("first\n\nsecond\nexit\nnever\n")); err != nil {
		t.Fatal(err)
	}
	if len(provider.requests) != 2 {
		t.Errorf("requests = %d, want 2", len(provider.requests))
	}
	if last := r.infos[len(r.infos)-1]; last != "Ending chat. Goodbye!" {
		t.Errorf("last info = %q", last)
	}
}

func TestRun_ErrorsKeepSessionAliveExceptAuth(t *testing.T) {
	calls := 0
	provider := &MockProvider{OnStream: func(context.Context, llm.Request, llm.Sink) (string, error) {
		calls++
		if calls == 1 {
			return "", commonModels.ErrRemoteUnavailable
		}
		return "", fmt.Errorf("chat: %w", commonModels.ErrUnauthorized)
	}}
	r := &recordingRenderer{}
	s := New(Config{}, nil, provider, r)

	err := s.Run(context.Background(), strings.NewReader("one\ntwo\nthree\n"))
	if !errors.Is(err, commonModels.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if calls != 2 || len(r.errors) != 1 {
		t.Errorf("calls = %d, rendered errors = %v", calls, r.errors)
	}
}

func TestExtractCodeBlocks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"none", "just text", []string{}},
		{"language tag dropped", "```python\nprint(1)\n```", []string{"print(1)"}},
		{"no tag", "```\nx = 1\n```", []string{"x = 1"}},
		{"first line kept when not a word", "```x = 1\ny = 2```", []string{"x = 1\ny = 2"}},
		{"several", "```a```text```sh\nb\n```", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCodeBlocks(tt.in)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseIndices(t *testing.T) {
	got, err := ParseIndices("1, 3 2")
	if err != nil || fmt.Sprint(got) != "[1 3 2]" {
		t.Errorf("got %v, %v", got, err)
	}
	if got, _ := ParseIndices(""); fmt.Sprint(got) != "[1]" {
		t.Errorf("empty = %v", got)
	}
	if _, err := ParseIndices("one"); err == nil {
		t.Error("expected an error for a word")
	}
}
