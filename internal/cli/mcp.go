package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardgate/wardgate/internal/gates"
	wardmcp "github.com/wardgate/wardgate/internal/mcp"
	"github.com/wardgate/wardgate/internal/session"
)

// sessionTTL bounds how long an issued MCP session token stays valid.
const sessionTTL = time.Hour

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP tool server for agent integration",
	Long: "Runs wardgate as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes enforcement tools: gate_check, staged_write, validate_content,\n" +
		"verify_chain, list_pending.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	sessions := session.NewRegistry(sessionTTL)
	chain, warnings := gates.DefaultChain(c.pack, sessions)
	for _, w := range warnings {
		logger.Warn(w)
	}

	srv, err := wardmcp.New(wardmcp.Config{
		Chain:    chain,
		Gateway:  c.newGateway(defaultActor),
		Checker:  c.checker,
		Ledger:   c.ledger,
		Public:   c.keys.Public(),
		Sessions: sessions,
		Version:  version,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "wardgate MCP server running on stdio")

	return srv.Run(ctx)
}
