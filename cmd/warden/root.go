package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - agent governance runtime",
	Long: `Warden governs autonomous agent actions with layered safeguards:

  - Policy rules evaluated per action with hot reload
  - Per-execution budget ceilings (time, operations, cost)
  - Signed, single-use human approval tokens for denied actions
  - Outcome-labeled learning with canaried bundle rollout
  - Automatic regression rollback with a full audit trail`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
