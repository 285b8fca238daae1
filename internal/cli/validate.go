package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardgate/wardgate/internal/rules"
)

var (
	validateContent string
	validateFile    string
)

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateContent, "content", "", "Content to validate (default: read stdin)")
	validateCmd.Flags().StringVar(&validateFile, "file", "", "Read content from a file")
}

var validateCmd = &cobra.Command{
	Use:   "validate <destination>",
	Short: "Check content against the rules without writing",
	Long: "Runs the content rule checker on content destined for the given path.\n" +
		"Nothing is written and no decision is recorded.\n" +
		"Exit code 0 on ALLOW, 1 on BLOCK.",
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	content, err := readInput(validateContent, validateFile)
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
	checker := compileChecker(pack)

	v := checker.Check(string(content), args[0])
	if v.Action == rules.Block {
		fmt.Printf("BLOCK: %s\n", v.Code)
		fmt.Printf("  %s\n", checker.Describe(v.Code))
		os.Exit(1)
	}
	if v.Advisory != "" {
		fmt.Printf("ALLOW with advisory: %s\n", v.Advisory)
		fmt.Printf("  %s\n", checker.Describe(v.Advisory))
		return nil
	}
	fmt.Println("ALLOW")
	return nil
}
