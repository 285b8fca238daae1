package session

import (
	"strings"
	"testing"
	"time"
)

func TestHeuristicLength(t *testing.T) {
	h := Heuristic{}
	if h.Valid("short") {
		t.Error("accepted a token below the minimum length")
	}
	if !h.Valid("12345678") {
		t.Error("rejected a token at the minimum length")
	}
	if !h.Valid("a-much-longer-session-token") {
		t.Error("rejected a long token")
	}
}

func TestRegistryIssueAndValidate(t *testing.T) {
	r := NewRegistry(time.Minute)
	token := r.Issue()
	if !strings.HasPrefix(token, "sess-") {
		t.Errorf("token %q missing sess- prefix", token)
	}
	if !r.Valid(token) {
		t.Error("freshly issued token rejected")
	}
	if r.Valid("sess-never-issued") {
		t.Error("unknown token accepted")
	}
}

func TestRegistryExpiry(t *testing.T) {
	r := NewRegistry(time.Minute)
	current := time.Now()
	r.now = func() time.Time { return current }

	token := r.Issue()
	if !r.Valid(token) {
		t.Fatal("token rejected before expiry")
	}

	current = current.Add(2 * time.Minute)
	if r.Valid(token) {
		t.Error("token accepted after expiry")
	}
	if r.Valid(token) {
		t.Error("expired token accepted on second check")
	}
}

func TestRegistryRevoke(t *testing.T) {
	r := NewRegistry(time.Minute)
	token := r.Issue()
	r.Revoke(token)
	if r.Valid(token) {
		t.Error("revoked token accepted")
	}
}

func TestRegistryTokensUnique(t *testing.T) {
	r := NewRegistry(time.Minute)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := r.Issue()
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
	}
}
