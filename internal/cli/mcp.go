package cli

import (
	"github.com/akolanti/mirage/internal/mcpserver"
	"github.com/spf13/cobra"
)

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve source search to MCP clients over stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout with two tools:
search_sources and list_sources. Register it in an MCP client as

  {"command": "mirage", "args": ["mcp"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, set, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer set.Close()
			a.logger.Info("mcp server starting", "backend", string(set.Active.Name()))
			return mcpserver.New(a.newRetriever(s, set), set.Registry, s.TopN).Run(ctx)
		},
	}
}
