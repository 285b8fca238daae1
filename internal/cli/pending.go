package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(clearCmd)
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List files sitting in the staging area",
	Long: "Shows staged writes that were never committed, typically left behind\n" +
		"by a crashed writer. Use 'wardgate clear' to remove them.",
	RunE: runPending,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all staged files",
	Long: "Deletes everything in the staging area. Destinations are never touched;\n" +
		"only never-committed staging copies are removed.",
	RunE: runClear,
}

func runPending(cmd *cobra.Command, args []string) error {
	c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	paths, err := c.newGateway(defaultActor).Pending()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No pending staged files.")
		return nil
	}

	fmt.Printf("%-8s %-20s %s\n", "SIZE", "MODIFIED", "PATH")
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			fmt.Printf("%-8s %-20s %s\n", "?", "?", p)
			continue
		}
		fmt.Printf("%-8d %-20s %s\n", info.Size(), info.ModTime().Format("2006-01-02 15:04:05"), p)
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := c.newGateway(defaultActor).Clear()
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d staged files.\n", n)
	return nil
}
