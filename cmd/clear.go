package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arundel/herald/userid"
)

var (
	clearIPs  []string
	clearTags []string
)

func init() {
	flags := clearCmd.Flags()
	flags.StringArrayVar(&clearIPs, "ip", nil, "Only clear these addresses (repeatable)")
	flags.StringArrayVar(&clearTags, "tag", nil, "Only clear these tags, named without the prefix (repeatable)")
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Unregister tagged addresses",
	Long: `Unregister tagged addresses.

Without flags this removes every registration carrying the configured
prefix: one query, then a single batched unregister call.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		e, err := connect(ctx)
		if err != nil {
			return err
		}
		e.negotiate(ctx)

		if err := e.client.ClearRegistered(ctx, userid.Filter{
			IPs:  clearIPs,
			Tags: clearTags,
		}); err != nil {
			return err
		}

		e.log.Info("Cleared registered addresses")
		return nil
	},
}
