package cmd

import (
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "iqp",
	Short: "IoT Query Probe runs read-only SQL against tenant IoT databases",
	Long: `IoT Query Probe serves a browser UI and JSON API that let an authenticated
operator run read-only SQL against their tenant's IoT PostgreSQL database,
inspect the results and export them as xlsx or HTML reports.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	// Wipe enclave keys before exiting.
	memguard.Purge()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
}
