package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) addPromptCmd() *cobra.Command {
	var activate bool
	cmd := &cobra.Command{
		Use:   "system-prompt <name> <text>...",
		Short: "Save a named system prompt",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSettings()
			if err != nil {
				return err
			}
			name := strings.TrimSpace(args[0])
			text := strings.TrimSpace(strings.Join(args[1:], " "))
			if name == "" || text == "" {
				return fmt.Errorf("system prompt needs a name and some text")
			}
			s.SystemPrompts[name] = text
			if activate {
				s.ActiveSystemPrompt = name
			}
			if err := s.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved system prompt %s\n", name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&activate, "use", false, "make it the active prompt")
	return cmd
}

func (a *app) deletePromptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "system-prompt <name>",
		Short: "Delete a saved system prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSettings()
			if err != nil {
				return err
			}
			name := strings.TrimSpace(args[0])
			if err := s.DeletePrompt(name); err != nil {
				return err
			}
			if err := s.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted system prompt %s\n", name)
			return nil
		},
	}
}

func (a *app) listPromptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "system-prompts",
		Short: "List saved system prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.loadSettings()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range s.PromptNames() {
				marker := " "
				if name == s.ActiveSystemPrompt {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s: %s\n", marker, name, s.SystemPrompts[name])
			}
			return nil
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the settings with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.loadSettings()
			if err != nil {
				return err
			}
			redacted := s.Redacted()
			data, err := json.MarshalIndent(&redacted, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s\n", s.Path(), data)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long: `Change one setting and save the file. Keys: local_mode, provider, model,
embedding_model, remote_url, user_id, api_token, openai_key, gemini_key,
data_dir, active_system_prompt, top_k, top_n, max_chunk_tokens,
transient_token_budget.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// loaded without validation so a broken file can be repaired
			s, err := a.loadRaw()
			if err != nil {
				return err
			}
			if err := s.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := s.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
			return nil
		},
	})
	return cmd
}
