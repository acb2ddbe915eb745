package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"github.com/arundel/herald/userid"
)

var (
	showIPs         []string
	showTags        []string
	showAllPrefixes bool
)

func init() {
	flags := showCmd.Flags()
	flags.StringArrayVar(&showIPs, "ip", nil, "Only show these addresses (repeatable)")
	flags.StringArrayVar(&showTags, "tag", nil, "Only show these tags, named without the prefix (repeatable)")
	flags.BoolVar(&showAllPrefixes, "all-prefixes", false, "Show tags regardless of namespace prefix")
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show registered addresses and their tags as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		e, err := connect(ctx)
		if err != nil {
			return err
		}
		e.negotiate(ctx)

		filter := userid.Filter{IPs: showIPs, Tags: showTags}
		if showAllPrefixes {
			all := ""
			filter.Prefix = &all
		}

		addresses, err := e.client.GetRegistered(ctx, filter)
		if err != nil {
			return err
		}

		out := []byte(`{}`)
		for ip, tags := range addresses {
			out, err = sjson.SetBytes(out, escapeJSONPath(ip), tags)
			if err != nil {
				return err
			}
		}

		fmt.Println(string(out))
		return nil
	},
}

// escapeJSONPath protects the dots in an address from being read as sjson
// path separators.
func escapeJSONPath(key string) string {
	key = strings.ReplaceAll(key, "\\", "\\\\")
	return strings.ReplaceAll(key, ".", "\\.")
}
