package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// defaultActor is recorded in decisions when no --actor flag applies.
const defaultActor = "agent"

var (
	writeContent string
	writeFile    string
	writeActor   string
)

func init() {
	rootCmd.AddCommand(writeCmd)
	writeCmd.Flags().StringVar(&writeContent, "content", "", "Content to write (default: read stdin)")
	writeCmd.Flags().StringVar(&writeFile, "file", "", "Read content from a file")
	writeCmd.Flags().StringVar(&writeActor, "actor", defaultActor, "Actor recorded in the decision")
}

var writeCmd = &cobra.Command{
	Use:   "write <destination>",
	Short: "Write content through the staging gateway",
	Long: "Stages the content, validates it against the content rules, and commits\n" +
		"it to the destination only on ALLOW. A BLOCK leaves the destination\n" +
		"untouched. Either way the decision is appended to the signed ledger.\n" +
		"Exit code 0 on ALLOW, 1 on BLOCK.",
	Args: cobra.ExactArgs(1),
	RunE: runWrite,
}

func runWrite(cmd *cobra.Command, args []string) error {
	content, err := readInput(writeContent, writeFile)
	if err != nil {
		return err
	}

	c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	out, err := c.newGateway(writeActor).Write(content, args[0])
	if err != nil {
		return err
	}

	fmt.Println(out.Message)
	if !out.Allowed {
		fmt.Printf("  %s\n", c.checker.Describe(out.Code))
		fmt.Printf("  event: %s\n", out.Record.EventID)
		os.Exit(1)
	}
	return nil
}

// readInput resolves command input: --content wins, then --file, then stdin.
func readInput(content, file string) ([]byte, error) {
	if content != "" {
		return []byte(content), nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		return data, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}
