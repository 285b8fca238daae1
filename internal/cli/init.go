package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wardgate/wardgate/internal/audit"
	"github.com/wardgate/wardgate/internal/rulepack"
)

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Replace an existing rulepack.yaml with the builtin pack")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the wardgate state directory",
	Long: `Creates the state directory, generates the Ed25519 signing keypair,
writes an editable starter rule pack, and opens an empty ledger.

Default location: ~/.wardgate (override with WARDGATE_HOME).`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	home, err := stateHome()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(home, 0700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	var created []string

	// Starter rule pack.
	packPath := rulepack.DefaultPath(home)
	if initForce {
		if err := os.Remove(packPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove old pack: %w", err)
		}
	}
	if _, err := os.Stat(packPath); os.IsNotExist(err) {
		if err := rulepack.WriteDefault(packPath); err != nil {
			return err
		}
		created = append(created, packPath)
	}

	// Signing keypair.
	keysDir := filepath.Join(home, "keys")
	privPath := filepath.Join(keysDir, "private.pem")
	hadKeys := false
	if _, err := os.Stat(privPath); err == nil {
		hadKeys = true
	}
	keys, err := audit.LoadOrCreateKeys(keysDir)
	if err != nil {
		return err
	}
	if !hadKeys {
		created = append(created, privPath, filepath.Join(keysDir, "public.pem"))
	}

	// Ledger files, so status and verify work before the first decision.
	logPath := filepath.Join(home, audit.LogFile)
	hadLog := false
	if _, err := os.Stat(logPath); err == nil {
		hadLog = true
	}
	pack, err := loadPack(home)
	if err != nil {
		return err
	}
	checker := compileChecker(pack)
	ledger, err := audit.Open(home, keys, audit.Provenance{
		PolicyHash:   checker.PolicyHash(),
		RulesVersion: checker.Version(),
		Version:      version,
	})
	if err != nil {
		return err
	}
	defer ledger.Close()
	if !hadLog {
		created = append(created, logPath)
	}

	fmt.Println("wardgate init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, p := range created {
			fmt.Printf("  %s\n", p)
		}
	} else {
		fmt.Println("All files already exist (use --force to reset the rule pack).")
	}
	fmt.Println()
	fmt.Printf("Key fingerprint: %s\n", keys.Fingerprint())
	fmt.Println()
	fmt.Println("Try it:")
	fmt.Println("  echo 'User asked about the project timeline.' | wardgate write notes.md")
	fmt.Println("  wardgate status")

	return nil
}
