// File: cmd/act.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/internal/agent"
)

// newActCmd creates and configures the `act` command.
func newActCmd() *cobra.Command {
	actCmd := &cobra.Command{
		Use:   "act <app> <intent...>",
		Short: "Executes a natural-language intent against an application",
		Long: `Executes one logical operation against an application. Intent segments
can be chained with ';' or 'then' and run sequentially with fail-fast
semantics:

  pilot act https://example.org 'click Save then press ctrl+s'

When a target failed to resolve and a retry with another label works,
--corrects teaches the substitution:

  pilot act --corrects Save https://example.org 'click Guardar'`,
		Args: cobra.MinimumNArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so command-line values override config and env.
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := componentLogger()

			appID := args[0]
			intentText := strings.Join(args[1:], " ")

			if viper.GetBool("headed") {
				appConfig.SetBrowserHeadless(false)
			}

			components, err := initializeComponents(ctx, appConfig, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			logger.Info("Executing intent",
				zap.String("app", appID),
				zap.String("intent", intentText))

			result, runErr := components.Agent.ActCorrecting(ctx, appID, intentText, viper.GetString("corrects"))
			if result != nil {
				fmt.Print(agent.RenderResult(result))
			}
			return runErr
		},
	}

	actCmd.Flags().Bool("headed", false, "Run the browser with a visible window. (Overrides config/env)")
	actCmd.Flags().String("corrects", "", "Descriptor a previous attempt failed on; a success records the substitution.")

	return actCmd
}
