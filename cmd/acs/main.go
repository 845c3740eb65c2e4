package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "acs",
	Short: "ACS - multi-tenant access control system",
	Long: `ACS is a multi-tenant access control system. A single HTTP gateway
routes commands to isolated per-tenant worker processes, each owning one
in-memory authorization graph and one set of envelope-encrypted tenant keys.

The same binary runs both roles: "acs gateway" starts the edge, which
spawns "acs worker" subprocesses on demand.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"ACS version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(tenantCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(statusCmd)
}
