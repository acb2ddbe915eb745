package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arundel/herald/cmd/gen"
	"github.com/arundel/herald/internal/env"
	"github.com/arundel/herald/userid"
	"github.com/arundel/herald/xmlapi"
)

var (
	// Connection settings. Anything left empty falls back to the
	// HERALD_* environment (see internal/env).
	flagHost     string
	flagAPIKey   string
	flagVsys     string
	flagPrefix   string
	flagInsecure bool
	flagDebug    bool
)

var rootCmd = &cobra.Command{
	Use:   "herald",
	Short: "Herald pushes user-to-address mappings and address tags to a firewall",
	Long: `Herald talks to a firewall's User-ID management API: it logs users in
and out of IP addresses and registers/unregisters address tags for
dynamic address groups.

Connection settings come from flags or from HERALD_* environment
variables (a .env.local file is read if present).
`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&flagHost, "firewall", "", "The firewall management hostname or URL")
	flags.StringVar(&flagAPIKey, "api-key", "", "The API key to authenticate with")
	flags.StringVar(&flagVsys, "vsys", "", "The vsys context to operate in")
	flags.StringVar(&flagPrefix, "prefix", "", "The namespace prefix applied to every tag")
	flags.BoolVarP(&flagInsecure, "insecure", "k", false, "Skip TLS verification of the management certificate")
	flags.BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(unregisterCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(mockCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(gen.RootCmd)
}

// clientEnv is everything a connected subcommand needs.
type clientEnv struct {
	client *userid.Client
	api    *xmlapi.Client
	log    *zap.Logger
}

// connect merges the environment config with the command line flags and
// builds the client stack.
func connect(ctx context.Context) (*clientEnv, error) {
	conf, err := env.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}

	if flagHost != "" {
		conf.Host = flagHost
	}
	if flagAPIKey != "" {
		conf.APIKey = flagAPIKey
	}
	if flagVsys != "" {
		conf.Vsys = flagVsys
	}
	if flagPrefix != "" {
		conf.Prefix = flagPrefix
	}
	if flagInsecure {
		conf.SkipVerify = true
	}
	if flagDebug {
		conf.Debug = true
	}

	if conf.Host == "" {
		return nil, errors.New("no firewall configured: pass --firewall or set HERALD_HOST")
	}

	log, err := env.MakeLogger(conf.Debug)
	if err != nil {
		return nil, err
	}

	api := xmlapi.NewClient(xmlapi.Options{
		Host:       conf.Host,
		APIKey:     conf.APIKey,
		SkipVerify: conf.SkipVerify,
		Log:        log,
	})

	client := userid.New(api,
		userid.WithPrefix(conf.Prefix),
		userid.WithVsys(conf.Vsys),
		userid.WithLogger(log))

	return &clientEnv{client: client, api: api, log: log}, nil
}

// negotiate fetches the device version so queries pick the right verb.
// Failure is not fatal; the current verb is used.
func (e *clientEnv) negotiate(ctx context.Context) {
	if _, err := e.api.Negotiate(ctx); err != nil {
		e.log.Warn("Version negotiation failed, assuming a current device",
			zap.Error(err))
	}
}

func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("usage: herald %s", usage)
		}
		return nil
	}
}
