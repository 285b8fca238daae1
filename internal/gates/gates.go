// Package gates implements the request gate chain. Every inbound request
// passes through the gates in a fixed order: transport checks (session,
// replay, rate), injection detection, complexity limits, and finally intent
// classification. Blocking gates stop the chain on the first non-pass
// result; the intent gate never blocks and only annotates the result with a
// routing mode. A gate that returns an error fails closed.
package gates

import (
	"time"

	"github.com/wardgate/wardgate/internal/rulepack"
	"github.com/wardgate/wardgate/internal/session"
)

// Result is the outcome of a single gate evaluation.
type Result string

const (
	Pass             Result = "PASS"
	Blocked          Result = "BLOCKED"
	RateLimited      Result = "RATE_LIMITED"
	ReplayRejected   Result = "REPLAY_REJECTED"
	SessionInvalid   Result = "SESSION_INVALID"
	InjectionBlocked Result = "INJECTION_BLOCKED"
	TooLarge         Result = "TOO_LARGE"
	TooComplex       Result = "TOO_COMPLEX"
	Repetitive       Result = "REPETITIVE"
)

// Mode is the processing route assigned by the intent gate.
type Mode string

const (
	ModeTransactional Mode = "TRANSACTIONAL"
	ModeReflective    Mode = "REFLECTIVE"
	ModePlay          Mode = "PLAY"
)

// Request is one inbound request to be gated.
type Request struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Output is the verdict of one gate.
type Output struct {
	Gate       string        `json:"gate"`
	Result     Result        `json:"result"`
	Violations []string      `json:"violations,omitempty"`
	Severity   string        `json:"severity,omitempty"`
	Mode       Mode          `json:"mode,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// ChainResult is the verdict of the full chain. Mode and Confidence are only
// set when the chain ran to completion, since the intent gate runs last.
type ChainResult struct {
	Allowed    bool          `json:"allowed"`
	Outputs    []Output      `json:"outputs"`
	Mode       Mode          `json:"mode,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	BlockedBy  string        `json:"blocked_by,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Gate is one stage of the chain. Evaluate must be safe for concurrent use.
// A returned error means the gate could not decide; the chain treats that as
// a block regardless of Blocking.
type Gate interface {
	Name() string
	Blocking() bool
	Evaluate(req Request, sessionToken string) (Output, error)
}

// Chain runs gates in order.
type Chain struct {
	gates []Gate
}

// NewChain builds a chain from the given gates, evaluated in argument order.
func NewChain(gates ...Gate) *Chain {
	return &Chain{gates: gates}
}

// DefaultChain wires the standard chain from the pack: transport, injection,
// complexity, then intent. Pattern compile warnings from the injection and
// intent gates are returned for the caller to log.
func DefaultChain(p *rulepack.Pack, sessions session.Validator) (*Chain, []string) {
	injection, warnings := NewInjectionGate(p.Injection)
	intent, intentWarnings := NewIntentGate(p.Intent)
	warnings = append(warnings, intentWarnings...)
	return NewChain(
		NewTransportGate(p.Transport, sessions),
		injection,
		NewComplexityGate(p.Limits),
		intent,
	), warnings
}

// Gates returns the gates in evaluation order.
func (c *Chain) Gates() []Gate { return c.gates }

// Run evaluates the request against every gate in order. The first non-pass
// result from a blocking gate stops the chain. Gate errors fail closed: the
// chain stops and the request is not allowed.
func (c *Chain) Run(req Request, sessionToken string) ChainResult {
	start := time.Now()
	res := ChainResult{Outputs: make([]Output, 0, len(c.gates))}

	for _, g := range c.gates {
		gateStart := time.Now()
		out, err := g.Evaluate(req, sessionToken)
		out.Gate = g.Name()
		out.Elapsed = time.Since(gateStart)
		if err != nil {
			out.Result = Blocked
			out.Violations = append(out.Violations, "gate error: "+err.Error())
			res.Outputs = append(res.Outputs, out)
			res.BlockedBy = g.Name()
			res.Elapsed = time.Since(start)
			return res
		}
		res.Outputs = append(res.Outputs, out)

		if out.Result != Pass && g.Blocking() {
			res.BlockedBy = g.Name()
			res.Elapsed = time.Since(start)
			return res
		}
		if out.Mode != "" {
			res.Mode = out.Mode
			res.Confidence = out.Confidence
		}
	}

	res.Allowed = true
	res.Elapsed = time.Since(start)
	return res
}
