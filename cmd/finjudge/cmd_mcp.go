package main

import (
	"net/http"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/ahrav/finjudge/internal/judge"
)

func newMCPCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the configured HTTP judges as MCP tools over stdio",
		Long: `Runs an MCP server on stdin/stdout with one tool per judge. Each tool call
is forwarded to the HTTP judge service and the response is schema-validated
before it is returned.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := judge.NewHTTPTransport(g.cfg.Judges.BaseURL,
				&http.Client{Timeout: g.cfg.Judges.HTTPTimeout})
			if err != nil {
				return err
			}
			return judge.NewMCPServer(backend, version).Run(cmd.Context(), &sdkmcp.StdioTransport{})
		},
	}
}
