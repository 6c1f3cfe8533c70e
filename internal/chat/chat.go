// Package chat drives a multi-turn conversation over retrieved context.
package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/metrics"
	"github.com/akolanti/mirage/internal/rag/assembler"
	"github.com/akolanti/mirage/internal/rag/llm"
	"github.com/akolanti/mirage/internal/rag/retriever"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/atotto/clipboard"
	"github.com/google/uuid"
)

// Renderer is where everything the user sees goes.
type Renderer interface {
	Prompt()
	BeginAnswer()
	Fragment(text string)
	EndAnswer(cited []string)
	Info(msg string)
	Warn(msg string)
	Error(err error)
}

type Retrieval interface {
	Retrieve(ctx context.Context, q retriever.Query) (*retriever.Result, error)
}

// Selection is what a session retrieves from on every turn.
type Selection struct {
	Sources   []string
	Transient []commonModels.Document
}

// SourceSelector is asked for a fresh selection at start and on reset.
type SourceSelector func(ctx context.Context) (Selection, error)

type Config struct {
	Model        string
	Temperature  float64
	SystemPrompt string
	TopN         int
}

type Session struct {
	cfg       Config
	retrieval Retrieval
	provider  llm.Provider
	renderer  Renderer
	selector  SourceSelector
	copyText  func(string) error

	selection Selection
	history   []commonModels.ChatTurn
	lastReply string
	lastCited []string
	logger    *logger_i.Logger
}

type Option func(*Session)

// WithClipboard replaces the system clipboard, mostly for tests.
func WithClipboard(fn func(string) error) Option {
	return func(s *Session) { s.copyText = fn }
}

func WithSelector(sel SourceSelector) Option {
	return func(s *Session) { s.selector = sel }
}

func New(cfg Config, retrieval Retrieval, provider llm.Provider, renderer Renderer, opts ...Option) *Session {
	s := &Session{
		cfg:       cfg,
		retrieval: retrieval,
		provider:  provider,
		renderer:  renderer,
		copyText:  clipboard.WriteAll,
		logger:    logger_i.NewLogger("Chat"),
	}
	for _, o := range opts {
		o(s)
	}
	s.resetHistory()
	return s
}

// Start runs source selection. Without a selector the session chats with
// no retrieval.
func (s *Session) Start(ctx context.Context) error {
	s.resetHistory()
	if s.selector == nil {
		s.selection = Selection{}
		return nil
	}
	sel, err := s.selector(ctx)
	if err != nil {
		return err
	}
	s.selection = sel
	return nil
}

func (s *Session) resetHistory() {
	s.history = []commonModels.ChatTurn{{Role: commonModels.RoleSystem, Content: s.cfg.SystemPrompt}}
	s.lastReply = ""
	s.lastCited = nil
}

// History returns a copy of the transcript.
func (s *Session) History() []commonModels.ChatTurn {
	return append([]commonModels.ChatTurn(nil), s.history...)
}

func (s *Session) Selection() Selection { return s.selection }

// Run reads lines from in until exit or EOF. An interrupt while an answer
// streams cancels only that turn.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	s.renderer.Info("Starting chat. Type 'exit' to end the chat, 'reset' to start over.")
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		s.renderer.Prompt()
		if !sc.Scan() {
			return sc.Err()
		}
		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		exit, err := s.Handle(turnCtx, sc.Text())
		interrupted := turnCtx.Err() != nil && ctx.Err() == nil
		stop()

		switch {
		case errors.Is(err, commonModels.ErrUnauthorized):
			return err
		case interrupted:
			s.renderer.Warn("interrupted, the last question was dropped")
		case err != nil:
			s.renderer.Error(err)
		}
		if exit {
			s.renderer.Info("Ending chat. Goodbye!")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Handle processes one line of input and reports whether the session
// should end.
func (s *Session) Handle(ctx context.Context, input string) (bool, error) {
	line := strings.TrimSpace(input)
	switch {
	case line == "":
		return false, nil
	case strings.EqualFold(line, "exit"):
		return true, nil
	case strings.EqualFold(line, "reset"), strings.EqualFold(line, "restart"):
		if err := s.Start(ctx); err != nil {
			return false, err
		}
		s.renderer.Info("Conversation reset.")
		return false, nil
	case strings.HasPrefix(line, "/copy"):
		return false, s.copyBlocks(strings.TrimSpace(strings.TrimPrefix(line, "/copy")))
	case line == "/sources":
		s.showSources()
		return false, nil
	default:
		return false, s.Ask(ctx, line)
	}
}

// Ask runs one turn: retrieve, build the prompt, stream the answer. The
// history only changes when the answer completes.
func (s *Session) Ask(ctx context.Context, question string) error {
	ctx = context.WithValue(ctx, config.TRACE_ID_KEY, uuid.NewString())
	log := s.logger.WithTrace(ctx)
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("chat_turn", time.Since(start)) }()

	prompt, cited, err := s.buildPrompt(ctx, question)
	if err != nil {
		return err
	}

	messages := append(s.History(), commonModels.ChatTurn{Role: commonModels.RoleUser, Content: prompt})
	s.renderer.BeginAnswer()
	reply, err := s.provider.Stream(ctx, llm.Request{
		Model:       s.cfg.Model,
		Messages:    messages,
		Temperature: s.cfg.Temperature,
	}, s.renderer.Fragment)
	if err != nil {
		s.renderer.EndAnswer(nil)
		log.Warn("turn dropped", "error", err, "partial", len(reply))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("completion failed: %w", err)
	}
	s.renderer.EndAnswer(cited)

	s.history = append(s.history,
		commonModels.ChatTurn{Role: commonModels.RoleUser, Content: question},
		commonModels.ChatTurn{Role: commonModels.RoleAssistant, Content: reply},
	)
	s.lastReply = reply
	s.lastCited = cited
	log.Debug("turn complete", "turns", len(s.history), "cited", len(cited))
	return nil
}

func (s *Session) buildPrompt(ctx context.Context, question string) (string, []string, error) {
	sel := s.selection
	if len(sel.Sources) == 0 && len(sel.Transient) == 0 {
		return question, nil, nil
	}
	res, err := s.retrieval.Retrieve(ctx, retriever.Query{Text: question, Sources: sel.Sources, Transient: sel.Transient})
	if err != nil {
		return "", nil, err
	}
	for _, f := range res.Failures {
		s.renderer.Warn(fmt.Sprintf("%s skipped: %v", f.Source, f.Err))
	}

	text, cited := assembler.BuildContext(assembler.Rank(res.Hits, s.cfg.TopN))
	if len(res.Verbatim) > 0 {
		vText, vCited := assembler.Verbatim(res.Verbatim)
		text, cited = assembler.Merge(vText, vCited, text, cited)
	}

	// the first question gets the full template, follow ups the lighter one
	if len(s.history) <= 1 {
		return assembler.RAGPrompt(text, cited, question), cited, nil
	}
	return assembler.ChatPrompt(text, question), cited, nil
}

func (s *Session) copyBlocks(arg string) error {
	if s.lastReply == "" {
		return errors.New("nothing to copy yet")
	}
	blocks := ExtractCodeBlocks(s.lastReply)
	if len(blocks) == 0 {
		return errors.New("the last answer has no code blocks")
	}
	indices, err := ParseIndices(arg)
	if err != nil {
		return err
	}
	selected := SelectBlocks(blocks, indices)
	if selected == "" {
		return fmt.Errorf("no code block matches %q, the last answer has %d", arg, len(blocks))
	}
	if err := s.copyText(selected); err != nil {
		return fmt.Errorf("copying to clipboard: %w", err)
	}
	s.renderer.Info("Selected code blocks copied to clipboard!")
	return nil
}

func (s *Session) showSources() {
	if len(s.lastCited) == 0 {
		s.renderer.Info("The last answer cited no sources.")
		return
	}
	s.renderer.Info("Relevant sources:\n" + strings.Join(s.lastCited, "\n"))
}
