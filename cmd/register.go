package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var registerCmd = &cobra.Command{
	Use:   "register <ip> <tag>...",
	Short: "Register tags against an IP address",
	Long: `Register tags against an IP address for dynamic address groups.

Tags are namespaced with the configured prefix before they are sent.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		e, err := connect(ctx)
		if err != nil {
			return err
		}

		if err := e.client.Register(ctx, args[0], args[1:]...); err != nil {
			return err
		}

		e.log.Info("Registered tags",
			zap.String("ip", args[0]),
			zap.Strings("tags", args[1:]))
		return nil
	},
}

var unregisterCmd = &cobra.Command{
	Use:   "unregister <ip> <tag>...",
	Short: "Unregister tags from an IP address",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		e, err := connect(ctx)
		if err != nil {
			return err
		}

		if err := e.client.Unregister(ctx, args[0], args[1:]...); err != nil {
			return err
		}

		e.log.Info("Unregistered tags",
			zap.String("ip", args[0]),
			zap.Strings("tags", args[1:]))
		return nil
	},
}
