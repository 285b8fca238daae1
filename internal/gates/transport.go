package gates

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/wardgate/wardgate/internal/rulepack"
	"github.com/wardgate/wardgate/internal/session"
)

// TransportGate is gate 0: session validation, replay rejection, and rate
// limiting, checked in that order. Replay tracking hashes request content
// and remembers each hash for the configured TTL; an identical request
// inside the window is rejected. Rate limiting is a per-token sliding
// window.
type TransportGate struct {
	sessions   session.Validator
	replayTTL  time.Duration
	rateLimit  int
	rateWindow time.Duration

	mu      sync.Mutex
	seen    map[string]time.Time   // content hash -> first seen
	windows map[string][]time.Time // session token -> request times
	now     func() time.Time
}

// NewTransportGate builds the gate from transport settings in the pack.
func NewTransportGate(cfg rulepack.Transport, sessions session.Validator) *TransportGate {
	return &TransportGate{
		sessions:   sessions,
		replayTTL:  time.Duration(cfg.ReplayTTL) * time.Second,
		rateLimit:  cfg.RateLimit,
		rateWindow: time.Duration(cfg.RateWindow) * time.Second,
		seen:       make(map[string]time.Time),
		windows:    make(map[string][]time.Time),
		now:        time.Now,
	}
}

func (g *TransportGate) Name() string   { return "Gate0_Transport" }
func (g *TransportGate) Blocking() bool { return true }

// Evaluate checks session, replay, and rate in order and stops at the first
// failure. A request that is rejected for replay or session reasons does not
// consume rate budget.
func (g *TransportGate) Evaluate(req Request, sessionToken string) (Output, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweep(now)

	if !g.sessions.Valid(sessionToken) {
		return Output{
			Result:     SessionInvalid,
			Violations: []string{"invalid or expired session token"},
		}, nil
	}

	h := contentHash(req.Content)
	if first, ok := g.seen[h]; ok && now.Sub(first) < g.replayTTL {
		return Output{
			Result: ReplayRejected,
			Violations: []string{
				fmt.Sprintf("duplicate request within %s replay window", g.replayTTL),
			},
		}, nil
	}
	g.seen[h] = now

	window := g.prune(sessionToken, now)
	if len(window) >= g.rateLimit {
		return Output{
			Result: RateLimited,
			Violations: []string{
				fmt.Sprintf("rate limit exceeded: %d requests per %s", g.rateLimit, g.rateWindow),
			},
		}, nil
	}
	g.windows[sessionToken] = append(window, now)

	return Output{Result: Pass}, nil
}

// Remaining reports how many requests the token may still make in the
// current window.
func (g *TransportGate) Remaining(token string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	left := g.rateLimit - len(g.prune(token, g.now()))
	if left < 0 {
		return 0
	}
	return left
}

// prune drops window entries older than the rate window. Caller holds mu.
func (g *TransportGate) prune(token string, now time.Time) []time.Time {
	cutoff := now.Add(-g.rateWindow)
	window := g.windows[token][:0]
	for _, t := range g.windows[token] {
		if t.After(cutoff) {
			window = append(window, t)
		}
	}
	g.windows[token] = window
	return window
}

// sweep drops expired replay hashes and empty rate windows. Caller holds mu.
func (g *TransportGate) sweep(now time.Time) {
	for h, first := range g.seen {
		if now.Sub(first) >= g.replayTTL {
			delete(g.seen, h)
		}
	}
	cutoff := now.Add(-g.rateWindow)
	for token, window := range g.windows {
		live := false
		for _, t := range window {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(g.windows, token)
		}
	}
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:32]
}
