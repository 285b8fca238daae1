// Package cli implements the wardgate command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wardgate",
	Short: "Policy gateway between an agent and its persistent store",
	Long: "Validates agent output before it reaches files, memory or downstream\n" +
		"consumers: staged writes with atomic commit, a gate chain for inbound\n" +
		"requests, and a signed hash-chained audit ledger. Enforcement, not\n" +
		"observability.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
