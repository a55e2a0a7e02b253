// File: cmd/perceive.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/internal/agent"
)

// newPerceiveCmd creates and configures the `perceive` command.
func newPerceiveCmd() *cobra.Command {
	perceiveCmd := &cobra.Command{
		Use:   "perceive <app>",
		Short: "Captures and prints the current UI state of an application",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := componentLogger()

			appID := args[0]

			if viper.GetBool("vision") {
				appConfig.SetVisionEnabled(true)
			}

			components, err := initializeComponents(ctx, appConfig, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			logger.Debug("Capturing snapshot", zap.String("app", appID))

			snap, err := components.Agent.Perceive(ctx, appID)
			if err != nil {
				return err
			}
			fmt.Print(agent.RenderSnapshot(snap))
			return nil
		},
	}

	perceiveCmd.Flags().Bool("vision", false, "Enable the screenshot fallback for shallow trees. (Overrides config/env)")

	return perceiveCmd
}
