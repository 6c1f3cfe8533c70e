package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/akolanti/mirage/internal/chat"
	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/rag/backend"
	"github.com/akolanti/mirage/internal/rag/chunker"
	"github.com/akolanti/mirage/internal/rag/ingest"
	"github.com/akolanti/mirage/internal/rag/retriever"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type chatFlags struct {
	sources []string
	files   []string
	prompt  string
}

func (a *app) chatCmd() *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat over indexed sources and one-off files",
		Long: `Start an interactive chat. Every question retrieves fresh context from
the selected sources.

  -s name        an indexed source, repeatable
  -f path|url    a file, directory or page used for this session only

Without -s or -f you are asked which sources to use. Inside the chat:
exit, reset, /copy 1,2 and /sources.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd, f)
		},
	}
	cmd.Flags().StringArrayVarP(&f.sources, "source", "s", nil, "indexed source to retrieve from (repeatable)")
	cmd.Flags().StringArrayVarP(&f.files, "file", "f", nil, "file, directory or URL to use for this session only (repeatable)")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "system prompt to use instead of the active one")
	return cmd
}

func (a *app) runChat(cmd *cobra.Command, f chatFlags) error {
	ctx := cmd.Context()
	s, set, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer set.Close()

	systemPrompt := s.SystemPrompt()
	if f.prompt != "" {
		p, ok := s.SystemPrompts[f.prompt]
		if !ok {
			return fmt.Errorf("unknown system prompt %q, have %s", f.prompt, strings.Join(s.PromptNames(), ", "))
		}
		systemPrompt = p
	}

	renderer := a.renderer(cmd)
	in := bufio.NewReader(a.deps.In)
	ret := a.newRetriever(s, set)

	opts := []chat.Option{chat.WithSelector(a.selector(set, f, in, renderer))}
	if a.deps.Clipboard != nil {
		opts = append(opts, chat.WithClipboard(a.deps.Clipboard))
	}
	session := chat.New(chat.Config{
		Model:        s.Model,
		Temperature:  config.ModelTemperature,
		SystemPrompt: systemPrompt,
		TopN:         s.TopN,
	}, ret, set.Active.Provider(), renderer, opts...)

	if err := session.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("chat started", "backend", string(set.Active.Name()),
		"sources", len(session.Selection().Sources), "transient", len(session.Selection().Transient))
	return session.Run(ctx, in)
}

func (a *app) newRetriever(s *config.Settings, set *backend.Set) *retriever.Retriever {
	local, remote := set.Targets()
	return retriever.New(set.Registry, local, remote, set.Active.Embedder(),
		chunker.New(s.MaxChunkTokens, a.deps.Counter),
		retriever.Config{TopK: s.TopK, TransientTokenBudget: s.TransientTokenBudget})
}

// selector resolves the sources a session uses. Flags win; otherwise an
// interactive terminal is asked.
func (a *app) selector(set *backend.Set, f chatFlags, in *bufio.Reader, r chat.Renderer) chat.SourceSelector {
	return func(ctx context.Context) (chat.Selection, error) {
		sources := f.sources
		if len(f.sources) == 0 && len(f.files) == 0 && a.interactive() {
			picked, err := askSources(ctx, set, in, r)
			if err != nil {
				return chat.Selection{}, err
			}
			sources = picked
		}
		if len(sources) > 0 {
			if err := set.Registry.Validate(ctx, sources); err != nil {
				return chat.Selection{}, err
			}
		}

		var transient []commonModels.Document
		for _, target := range f.files {
			docs, err := ingest.ExtractTransient(ctx, target)
			if err != nil {
				return chat.Selection{}, fmt.Errorf("loading %s: %w", target, err)
			}
			transient = append(transient, docs...)
		}
		if len(sources) > 0 || len(transient) > 0 {
			r.Info(fmt.Sprintf("Using %d source(s) and %d one-off document(s).", len(sources), len(transient)))
		}
		return chat.Selection{Sources: sources, Transient: transient}, nil
	}
}

func (a *app) interactive() bool {
	file, ok := a.deps.In.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func askSources(ctx context.Context, set *backend.Set, in *bufio.Reader, r chat.Renderer) ([]string, error) {
	snap, err := set.Registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	known := snap.All()
	if len(known) == 0 {
		r.Info("No indexed sources yet, chatting without retrieval. Add one with 'mirage add source'.")
		return nil, nil
	}
	r.Info("Available sources: " + strings.Join(known, ", "))
	r.Info("Sources to use, comma separated (empty for none):")
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	return splitList(line), nil
}

func splitList(line string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == '\n' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
