package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wardgate/wardgate/internal/audit"
	"github.com/wardgate/wardgate/internal/gates"
	"github.com/wardgate/wardgate/internal/rules"
)

// --- Input/Output types ---

// GateCheckInput defines parameters for the gate_check tool.
type GateCheckInput struct {
	Content      string `json:"content" jsonschema:"content to run through the gate chain"`
	SessionToken string `json:"session_token,omitempty" jsonschema:"session token; one is issued when omitted"`
}

// GateStatus is a single gate's verdict within the chain result.
type GateStatus struct {
	Gate       string   `json:"gate"`
	Result     string   `json:"result"`
	Violations []string `json:"violations,omitempty"`
	Severity   string   `json:"severity,omitempty"`
}

// GateCheckOutput contains the full chain verdict.
type GateCheckOutput struct {
	Allowed      bool         `json:"allowed"`
	BlockedBy    string       `json:"blocked_by,omitempty"`
	Mode         string       `json:"mode,omitempty"`
	Confidence   float64      `json:"confidence,omitempty"`
	Gates        []GateStatus `json:"gates"`
	SessionToken string       `json:"session_token,omitempty"`
}

// StagedWriteInput defines parameters for the staged_write tool.
type StagedWriteInput struct {
	Destination string `json:"destination" jsonschema:"destination file path"`
	Content     string `json:"content" jsonschema:"content to write"`
}

// StagedWriteOutput contains the write outcome and its ledger record.
type StagedWriteOutput struct {
	Allowed   bool   `json:"allowed"`
	Code      string `json:"code,omitempty"`
	Advisory  string `json:"advisory,omitempty"`
	Message   string `json:"message"`
	EventID   string `json:"event_id,omitempty"`
	ChainHash string `json:"chain_hash,omitempty"`
}

// ValidateInput defines parameters for the validate_content tool.
type ValidateInput struct {
	Content     string `json:"content" jsonschema:"content to validate"`
	Destination string `json:"destination,omitempty" jsonschema:"destination path the content is meant for"`
}

// ValidateOutput contains the rule checker's verdict.
type ValidateOutput struct {
	Action      string `json:"action"`
	Code        string `json:"code,omitempty"`
	Advisory    string `json:"advisory,omitempty"`
	Description string `json:"description,omitempty"`
}

// VerifyInput is empty, the tool takes no parameters.
type VerifyInput struct{}

// VerifyOutput is the chain verification report.
type VerifyOutput struct {
	Valid           bool   `json:"valid"`
	RecordsChecked  int    `json:"records_checked"`
	UnsignedSkipped int    `json:"unsigned_skipped,omitempty"`
	ErrorKind       string `json:"error_kind,omitempty"`
	Error           string `json:"error,omitempty"`
	BrokenAt        int    `json:"broken_at,omitempty"`
}

// PendingInput is empty, the tool takes no parameters.
type PendingInput struct{}

// PendingOutput lists staged files awaiting validation.
type PendingOutput struct {
	Files []string `json:"files"`
	Count int      `json:"count"`
}

// --- Handlers ---

func (s *Server) handleGateCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input GateCheckInput) (*mcpsdk.CallToolResult, GateCheckOutput, error) {
	token := input.SessionToken
	if token == "" {
		token = s.sessionToken()
	}

	res := s.chain.Run(gates.Request{Content: input.Content}, token)

	out := GateCheckOutput{
		Allowed:      res.Allowed,
		BlockedBy:    res.BlockedBy,
		Mode:         string(res.Mode),
		Confidence:   res.Confidence,
		SessionToken: token,
	}
	for _, g := range res.Outputs {
		out.Gates = append(out.Gates, GateStatus{
			Gate:       g.Gate,
			Result:     string(g.Result),
			Violations: g.Violations,
			Severity:   g.Severity,
		})
	}

	if !res.Allowed {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleStagedWrite(ctx context.Context, req *mcpsdk.CallToolRequest, input StagedWriteInput) (*mcpsdk.CallToolResult, StagedWriteOutput, error) {
	if input.Destination == "" {
		return nil, StagedWriteOutput{}, fmt.Errorf("mcp: destination is required")
	}

	outcome, err := s.gateway.Write([]byte(input.Content), input.Destination)
	if err != nil {
		return nil, StagedWriteOutput{}, err
	}

	out := StagedWriteOutput{
		Allowed:   outcome.Allowed,
		Code:      outcome.Code,
		Advisory:  outcome.Advisory,
		Message:   outcome.Message,
		EventID:   outcome.Record.EventID,
		ChainHash: outcome.Record.ChainHash,
	}
	if !outcome.Allowed {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleValidate(ctx context.Context, req *mcpsdk.CallToolRequest, input ValidateInput) (*mcpsdk.CallToolResult, ValidateOutput, error) {
	verdict := s.checker.Check(input.Content, input.Destination)

	out := ValidateOutput{
		Action:   string(verdict.Action),
		Code:     verdict.Code,
		Advisory: verdict.Advisory,
	}
	if verdict.Code != "" {
		out.Description = s.checker.Describe(verdict.Code)
	}

	if verdict.Action == rules.Block {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input VerifyInput) (*mcpsdk.CallToolResult, VerifyOutput, error) {
	// An invalid chain is a finding, not a tool failure.
	report := audit.Verify(s.ledger.Path(), s.public)
	return nil, VerifyOutput{
		Valid:           report.Valid,
		RecordsChecked:  report.RecordsChecked,
		UnsignedSkipped: report.UnsignedSkipped,
		ErrorKind:       string(report.Kind),
		Error:           report.Error,
		BrokenAt:        report.BrokenAt,
	}, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	files, err := s.gateway.Pending()
	if err != nil {
		return nil, PendingOutput{}, err
	}
	if files == nil {
		files = []string{}
	}
	return nil, PendingOutput{Files: files, Count: len(files)}, nil
}
