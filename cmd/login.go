package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var loginCmd = &cobra.Command{
	Use:   "login <user> <ip>",
	Short: "Map a user to an IP address",
	Args:  exactArgs(2, "login <user> <ip>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		e, err := connect(ctx)
		if err != nil {
			return err
		}

		if err := e.client.Login(ctx, args[0], args[1]); err != nil {
			return err
		}

		e.log.Info("Logged in", zap.String("user", args[0]), zap.String("ip", args[1]))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout <user> <ip>",
	Short: "Remove a user-to-IP mapping",
	Args:  exactArgs(2, "logout <user> <ip>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		e, err := connect(ctx)
		if err != nil {
			return err
		}

		if err := e.client.Logout(ctx, args[0], args[1]); err != nil {
			return err
		}

		e.log.Info("Logged out", zap.String("user", args[0]), zap.String("ip", args[1]))
		return nil
	},
}
