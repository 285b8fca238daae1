package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardgate/wardgate/internal/audit"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show state directory, key and chain health",
	Long: "Prints the state directory, signing key fingerprint, chain head,\n" +
		"record count and a full-chain verification summary.",
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	home, err := stateHome()
	if err != nil {
		return err
	}
	if _, err := os.Stat(home); err != nil {
		return fmt.Errorf("state directory %s does not exist; run 'wardgate init' first", home)
	}

	c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Printf("%-14s %s\n", "State dir:", c.home)
	fmt.Printf("%-14s v%s (pack %s)\n", "Rules:", c.checker.Version(), c.checker.PolicyHash())
	fmt.Printf("%-14s %s\n", "Signing key:", c.keys.Fingerprint())
	fmt.Printf("%-14s %s\n", "Chain head:", c.ledger.Head())
	fmt.Printf("%-14s %d\n", "Records:", c.ledger.Count())

	rep := audit.Verify(c.ledger.Path(), c.keys.Public())
	if rep.Valid {
		fmt.Printf("%-14s OK (%d records verified)\n", "Verification:", rep.RecordsChecked)
		return nil
	}
	fmt.Printf("%-14s FAILED at line %d (%s): %s\n", "Verification:", rep.BrokenAt, rep.Kind, rep.Error)
	return fmt.Errorf("audit chain verification failed")
}
