// Package cli holds the mirage command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/akolanti/mirage/internal/chat"
	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/rag/backend"
	"github.com/akolanti/mirage/internal/rag/chunker"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Deps is everything the commands take from the outside world. The zero
// value of each field is replaced with the production default.
type Deps struct {
	SettingsPath string
	// Open builds the backends for the loaded settings.
	Open func(ctx context.Context, s *config.Settings) (*backend.Set, error)
	// Counter is the token counter handed to the chunker.
	Counter chunker.TokenCounter
	In      io.Reader
	Out     io.Writer
	Err     io.Writer
	// Styled turns on colours and borders. Nil means "when stdout is a
	// terminal".
	Styled    *bool
	Clipboard func(string) error
}

func (d *Deps) defaults() {
	if d.SettingsPath == "" {
		d.SettingsPath = config.DefaultSettingsPath()
	}
	if d.Open == nil {
		d.Open = backend.New
	}
	if d.In == nil {
		d.In = os.Stdin
	}
	if d.Styled == nil {
		styled := term.IsTerminal(int(os.Stdout.Fd()))
		d.Styled = &styled
	}
}

type app struct {
	deps   Deps
	logger *logger_i.Logger
}

func (a *app) loadRaw() (*config.Settings, error) {
	return config.LoadSettings(a.deps.SettingsPath)
}

func (a *app) loadSettings() (*config.Settings, error) {
	s, err := a.loadRaw()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path(), err)
	}
	return s, nil
}

// open loads settings and backends together; the caller closes the set.
func (a *app) open(ctx context.Context) (*config.Settings, *backend.Set, error) {
	s, err := a.loadSettings()
	if err != nil {
		return nil, nil, err
	}
	set, err := a.deps.Open(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	return s, set, nil
}

func (a *app) styled() bool { return *a.deps.Styled }

func (a *app) renderer(cmd *cobra.Command) *chat.TerminalRenderer {
	return chat.NewTerminalRenderer(cmd.OutOrStdout(), a.styled())
}

// NewRootCmd builds the command tree around deps.
func NewRootCmd(deps Deps) *cobra.Command {
	deps.defaults()
	a := &app{deps: deps, logger: logger_i.NewLogger("CLI")}

	root := &cobra.Command{
		Use:   "mirage",
		Short: "Chat with your documents, sites and mail",
		Long: `mirage indexes local files, web sites, Notion exports and Gmail
takeouts into vector collections, then answers questions over them with
the sources it used.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	add := &cobra.Command{Use: "add", Short: "Add a source or a system prompt"}
	add.AddCommand(a.addSourceCmd(), a.addPromptCmd())

	del := &cobra.Command{Use: "delete", Short: "Delete sources or system prompts"}
	del.AddCommand(a.deleteSourceCmd(), a.deletePromptCmd())

	list := &cobra.Command{Use: "list", Short: "List sources or system prompts"}
	list.AddCommand(a.listSourcesCmd(), a.listPromptsCmd())

	root.AddCommand(a.chatCmd(), add, del, list, a.configCmd(), a.mcpCmd())
	if deps.Out != nil {
		root.SetOut(deps.Out)
	}
	if deps.Err != nil {
		root.SetErr(deps.Err)
	}
	return root
}

// Execute runs the command line and returns the process exit code. Errors
// are printed as a single marked line.
func Execute(ctx context.Context, deps Deps, args []string) int {
	cmd := NewRootCmd(deps)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	styled := deps.Styled != nil && *deps.Styled
	if deps.Styled == nil {
		styled = term.IsTerminal(int(os.Stderr.Fd()))
	}
	fmt.Fprintln(cmd.ErrOrStderr(), chat.ErrorLine(err, styled))
	if errors.Is(err, commonModels.ErrUnauthorized) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Check user_id and api_token with 'mirage config set', or switch to local_mode.")
		return 2
	}
	return 1
}
