package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arundel/herald/userid"
)

var syncLogout bool

func init() {
	syncCmd.Flags().BoolVar(&syncLogout, "logout", false, "Send the mappings as logouts instead of logins")
}

var syncCmd = &cobra.Command{
	Use:   "sync <mappings.json>",
	Short: "Send a file of user-to-IP mappings in one batched call",
	Long: `Send a file of user-to-IP mappings in one batched API call.

The file is a JSON array of records:

	[
	  {"user": "jdoe",   "ip": "10.0.1.1"},
	  {"user": "asmith", "ip": "10.0.1.2"}
	]
`,
	Args: exactArgs(1, "sync <mappings.json>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		mappings, err := loadMappings(args[0])
		if err != nil {
			return err
		}

		e, err := connect(ctx)
		if err != nil {
			return err
		}

		if err := e.client.BatchStart(); err != nil {
			return err
		}

		if syncLogout {
			err = e.client.Logouts(ctx, mappings)
		} else {
			err = e.client.Logins(ctx, mappings)
		}
		if err != nil {
			e.client.BatchAbandon()
			return err
		}

		if err := e.client.BatchEnd(ctx); err != nil {
			return err
		}

		e.log.Info("Synced mappings",
			zap.Int("count", len(mappings)),
			zap.Bool("logout", syncLogout))
		return nil
	},
}

// loadMappings parses the mapping file, aggregating every malformed record
// into one error so a bad file is reported in full.
func loadMappings(path string) ([]userid.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}

	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%s must hold a JSON array of mappings", path)
	}

	var (
		mappings []userid.Mapping
		bad      error
	)

	parsed.ForEach(func(index, record gjson.Result) bool {
		user := record.Get("user").String()
		ip := record.Get("ip").String()

		if user == "" || ip == "" {
			bad = multierr.Append(bad,
				fmt.Errorf("record %d is missing user or ip: %s", index.Int(), record.Raw))
			return true
		}

		mappings = append(mappings, userid.Mapping{User: user, IP: ip})
		return true
	})

	if bad != nil {
		return nil, bad
	}

	return mappings, nil
}
