package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wardgate/wardgate/internal/audit"
	"github.com/wardgate/wardgate/internal/gates"
	"github.com/wardgate/wardgate/internal/session"
)

var (
	checkContent string
	checkSession string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkContent, "content", "", "Content to check (default: read stdin)")
	checkCmd.Flags().StringVar(&checkSession, "session", "", "Session token (default: generated)")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run content through the full gate chain",
	Long: "Evaluates content against every gate in order: transport, injection,\n" +
		"complexity, intent. Prints a per-gate table and the final verdict.\n" +
		"Exit code 0 when allowed, 1 when blocked.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	content, err := readInput(checkContent, "")
	if err != nil {
		return err
	}

	home, err := stateHome()
	if err != nil {
		return err
	}
	pack, err := loadPack(home)
	if err != nil {
		return err
	}

	chain, warnings := gates.DefaultChain(pack, session.Heuristic{MinLength: pack.Transport.MinTokenLength})
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	token := checkSession
	if token == "" {
		token = "cli-" + audit.NewEventID()
	}

	res := chain.Run(gates.Request{Content: string(content)}, token)

	fmt.Printf("%-18s %-18s %s\n", "GATE", "RESULT", "DETAIL")
	for _, out := range res.Outputs {
		detail := strings.Join(out.Violations, "; ")
		if out.Mode != "" {
			detail = fmt.Sprintf("mode=%s confidence=%.2f", out.Mode, out.Confidence)
		}
		fmt.Printf("%-18s %-18s %s\n", out.Gate, out.Result, detail)
	}
	fmt.Println()

	if !res.Allowed {
		fmt.Printf("BLOCKED by %s\n", res.BlockedBy)
		os.Exit(1)
	}
	fmt.Printf("ALLOWED (mode=%s confidence=%.2f)\n", res.Mode, res.Confidence)
	return nil
}
