// Package mcp exposes the gateway over the Model Context Protocol so
// agent runtimes can drive staged writes and gate checks as tools.
package mcp

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wardgate/wardgate/internal/audit"
	"github.com/wardgate/wardgate/internal/gates"
	"github.com/wardgate/wardgate/internal/gateway"
	"github.com/wardgate/wardgate/internal/rules"
	"github.com/wardgate/wardgate/internal/session"
)

// Config wires the enforcement components into the MCP server.
type Config struct {
	Chain    *gates.Chain
	Gateway  *gateway.Gateway
	Checker  *rules.Checker
	Ledger   *audit.Ledger
	Public   ed25519.PublicKey
	Sessions *session.Registry
	Version  string
	Logger   *slog.Logger
}

// Server exposes wardgate enforcement as MCP tools over stdio.
type Server struct {
	mcpServer *mcpsdk.Server
	chain     *gates.Chain
	gateway   *gateway.Gateway
	checker   *rules.Checker
	ledger    *audit.Ledger
	public    ed25519.PublicKey
	sessions  *session.Registry
	log       *slog.Logger

	mu    sync.Mutex
	token string // issued for callers that do not bring their own
}

// New creates the MCP server with all tools registered.
func New(cfg Config) (*Server, error) {
	if cfg.Chain == nil || cfg.Gateway == nil || cfg.Checker == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("mcp: chain, gateway, checker and ledger are required")
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		chain:    cfg.Chain,
		gateway:  cfg.Gateway,
		checker:  cfg.Checker,
		ledger:   cfg.Ledger,
		public:   cfg.Public,
		sessions: cfg.Sessions,
		log:      cfg.Logger.With("component", "mcp"),
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "wardgate",
			Version: cfg.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled or the transport closes.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("serving", "transport", "stdio")
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// sessionToken returns the server's own session token for callers that
// did not supply one, reissuing it when the previous one expired.
func (s *Server) sessionToken() string {
	if s.sessions == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || !s.sessions.Valid(s.token) {
		s.token = s.sessions.Issue()
	}
	return s.token
}

// registerTools adds all wardgate tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gate_check",
		Description: "Run content through the wardgate gate chain (session, replay, rate limit, injection, complexity, intent routing). Blocked content returns an error with per-gate findings.",
	}, s.handleGateCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "staged_write",
		Description: "Write content to a destination through the staging gateway. The content is validated against the content rules and committed only when allowed; either way the decision is recorded in the signed audit ledger.",
	}, s.handleStagedWrite)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "validate_content",
		Description: "Check content against the content rules without writing anything (dry-run).",
	}, s.handleValidate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "verify_chain",
		Description: "Verify the integrity of the signed audit chain: every chain hash and signature from the first record to the head.",
	}, s.handleVerify)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_pending",
		Description: "List files sitting in the staging area awaiting validation.",
	}, s.handlePending)
}
