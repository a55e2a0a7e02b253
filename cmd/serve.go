// File: cmd/serve.go
package cmd

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/internal/mcp"
)

// newServeCmd creates the `serve` command, exposing the agent over the Model
// Context Protocol on stdio.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the perceive/act/remember tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := componentLogger()

			components, err := initializeComponents(ctx, appConfig, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			logger.Info("Serving MCP on stdio", zap.String("version", Version))

			srv := mcp.NewServer(components.Agent, components.KV, logger)
			return srv.Serve(ctx, &sdkmcp.Implementation{
				Name:    "pilot",
				Version: Version,
			})
		},
	}
}
