// File: cmd/remember.go
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRememberCmd creates the `remember` command group: raw CRUD on the
// persistent store plus journal access and per-app forgetting.
func newRememberCmd() *cobra.Command {
	rememberCmd := &cobra.Command{
		Use:   "remember",
		Short: "Inspects or edits the persistent memory store",
	}

	rememberCmd.AddCommand(newRememberGetCmd())
	rememberCmd.AddCommand(newRememberSetCmd())
	rememberCmd.AddCommand(newRememberListCmd())
	rememberCmd.AddCommand(newRememberDeleteCmd())
	rememberCmd.AddCommand(newRememberClearCmd())
	rememberCmd.AddCommand(newRecentCmd())
	rememberCmd.AddCommand(newForgetCmd())
	return rememberCmd
}

func newRememberGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Prints the stored value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			components, err := initializeComponents(ctx, appConfig, componentLogger())
			if err != nil {
				return err
			}
			defer components.Shutdown()

			value, ok, err := components.KV.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no value stored for %q", args[0])
			}
			fmt.Println(string(value))
			return nil
		},
	}
}

func newRememberSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <json-value>",
		Short: "Stores a JSON value under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			// Reject malformed payloads before touching the store.
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("value is not valid JSON")
			}

			components, err := initializeComponents(ctx, appConfig, componentLogger())
			if err != nil {
				return err
			}
			defer components.Shutdown()

			if err := components.KV.Set(ctx, args[0], json.RawMessage(args[1])); err != nil {
				return err
			}
			fmt.Printf("stored %s\n", args[0])
			return nil
		},
	}
}

func newRememberListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lists stored keys, optionally filtered by prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prefix, err := cmd.Flags().GetString("prefix")
			if err != nil {
				return err
			}

			components, err := initializeComponents(ctx, appConfig, componentLogger())
			if err != nil {
				return err
			}
			defer components.Shutdown()

			keys, err := components.KV.List(ctx, prefix)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Println("no keys stored")
				return nil
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	}
	listCmd.Flags().StringP("prefix", "p", "", "Only list keys starting with this prefix.")
	return listCmd
}

func newRememberDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Deletes one stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			components, err := initializeComponents(ctx, appConfig, componentLogger())
			if err != nil {
				return err
			}
			defer components.Shutdown()

			if err := components.KV.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

func newRememberClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Deletes every stored key, including the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			components, err := initializeComponents(ctx, appConfig, componentLogger())
			if err != nil {
				return err
			}
			defer components.Shutdown()

			if err := components.KV.Clear(ctx); err != nil {
				return err
			}
			fmt.Println("store cleared")
			return nil
		},
	}
}

func newRecentCmd() *cobra.Command {
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Lists the most recent journaled actions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}

			components, err := initializeComponents(ctx, appConfig, componentLogger())
			if err != nil {
				return err
			}
			defer components.Shutdown()

			entries, err := components.Agent.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("journal is empty")
				return nil
			}
			for _, e := range entries {
				status := "ok"
				if e.Failure != "" {
					status = "failed: " + e.Failure
				}
				fmt.Printf("%s  %-20s %q  %s\n",
					e.At.Format("2006-01-02 15:04:05"), e.AppID, e.Intent, status)
				if e.DiffSummary != "" {
					fmt.Printf("%21s %s\n", "", e.DiffSummary)
				}
			}
			return nil
		},
	}

	recentCmd.Flags().IntP("limit", "n", 20, "Maximum number of entries to list.")
	return recentCmd
}

func newForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <app>",
		Short: "Clears learned translations and shortcuts for one application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := componentLogger()

			appID := args[0]

			components, err := initializeComponents(ctx, appConfig, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			if err := components.Agent.Forget(ctx, appID); err != nil {
				return err
			}
			logger.Info("Cleared learned state", zap.String("app", appID))
			fmt.Printf("cleared learned state for %s\n", appID)
			return nil
		},
	}
}
