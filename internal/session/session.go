// Package session owns session token issuance and validation for the
// transport gate. Validation is pluggable: the default heuristic accepts any
// plausibly sized token, while the registry only accepts tokens it issued.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Validator decides whether a session token is acceptable.
type Validator interface {
	Valid(token string) bool
}

// MinTokenLength is the shortest token the heuristic validator accepts
// unless overridden.
const MinTokenLength = 8

// Heuristic accepts any token of plausible length. It is the default for
// deployments where tokens are issued out of band.
type Heuristic struct {
	// MinLength overrides the accepted minimum; zero means MinTokenLength.
	MinLength int
}

func (h Heuristic) Valid(token string) bool {
	min := h.MinLength
	if min == 0 {
		min = MinTokenLength
	}
	return len(token) >= min
}

// Registry issues tokens and validates only the ones it issued. Expired
// tokens are rejected and dropped on the next issue or validate call.
type Registry struct {
	mu     sync.Mutex
	ttl    time.Duration
	issued map[string]time.Time
	now    func() time.Time
}

// NewRegistry creates a registry whose tokens expire after ttl.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:    ttl,
		issued: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Issue generates a new session token and records it.
func (r *Registry) Issue() string {
	token := generateToken()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()
	r.issued[token] = r.now().Add(r.ttl)
	return token
}

// Valid reports whether the token was issued here and has not expired.
func (r *Registry) Valid(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.issued[token]
	if !ok {
		return false
	}
	if r.now().After(expiry) {
		delete(r.issued, token)
		return false
	}
	return true
}

// Revoke removes a token immediately.
func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.issued, token)
}

// sweep drops expired tokens. Caller holds the lock.
func (r *Registry) sweep() {
	now := r.now()
	for token, expiry := range r.issued {
		if now.After(expiry) {
			delete(r.issued, token)
		}
	}
}

func generateToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sess-%x", time.Now().UnixNano())
	}
	return "sess-" + hex.EncodeToString(b)
}
