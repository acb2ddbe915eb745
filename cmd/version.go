package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arundel/herald/internal/meta"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		info := meta.GetInfo()

		fmt.Printf("herald %s\n", info.Version)
		fmt.Printf("  build:     %s (%s)\n", info.Build, info.Branch)
		fmt.Printf("  built at:  %s\n", info.BuildTime)
		fmt.Printf("  platform:  %s\n", info.Platform)
		fmt.Printf("  go:        %s\n", info.GoVersion)
	},
}
