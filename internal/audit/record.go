package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/google/uuid"
)

// Genesis is the chain predecessor of the first record in a new ledger.
const Genesis = "GENESIS"

// Sentinel values recorded in place of a content hash when the file could
// not be hashed.
const (
	HashNotFound = "FILE_NOT_FOUND"
	HashNewFile  = "NEW_FILE"
)

// Actions recorded in the ledger.
const (
	ActionAllow = "ALLOW"
	ActionBlock = "BLOCK"
)

// Record is one ledger entry. The body fields (everything except ChainHash
// and Signature) are hashed in canonical form together with the previous
// record's chain hash; the signature covers the resulting chain hash.
type Record struct {
	EventID        string `json:"event_id"`
	Timestamp      string `json:"timestamp"`
	Actor          string `json:"actor"`
	Action         string `json:"action"`
	Resource       string `json:"resource"`
	ViolationCode  string `json:"violation_code"`
	HashBefore     string `json:"hash_before"`
	HashAfter      string `json:"hash_after"`
	PolicyHash     string `json:"policy_hash"`
	RulesVersion   string `json:"rules_version"`
	GatewayVersion string `json:"wardgate_version"`
	ChainHash      string `json:"chain_hash,omitempty"`
	Signature      string `json:"signature,omitempty"`
}

// Decision is the caller-supplied part of a record. The ledger fills in
// identity, timestamps, policy provenance and chain fields on append.
type Decision struct {
	Actor      string
	Action     string
	Resource   string
	Code       string // violation code, empty when allowed
	HashBefore string
	HashAfter  string
}

// NewEventID returns a time-sortable unique event id.
func NewEventID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// canonicalBody returns the sorted-key JSON encoding of the record's body
// fields. Marshaling a map sorts its keys, so the encoding is stable no
// matter how the record was produced.
func (r Record) canonicalBody() []byte {
	body := map[string]string{
		"event_id":         r.EventID,
		"timestamp":        r.Timestamp,
		"actor":            r.Actor,
		"action":           r.Action,
		"resource":         r.Resource,
		"violation_code":   r.ViolationCode,
		"hash_before":      r.HashBefore,
		"hash_after":       r.HashAfter,
		"policy_hash":      r.PolicyHash,
		"rules_version":    r.RulesVersion,
		"wardgate_version": r.GatewayVersion,
	}
	// A map of strings cannot fail to marshal.
	b, _ := json.Marshal(body)
	return b
}

// chainHash computes the chain hash of the record body linked to prev.
func (r Record) chainHash(prev string) string {
	h := sha256.New()
	h.Write(r.canonicalBody())
	h.Write([]byte(prev))
	return hex.EncodeToString(h.Sum(nil))
}

// HashFile returns the hex SHA-256 of the file's contents, or a sentinel
// when the file is missing or unreadable. Sentinels are recorded in the
// ledger as-is so the condition itself is auditable.
func HashFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return HashNotFound
		}
		msg := err.Error()
		if len(msg) > 20 {
			msg = msg[:20]
		}
		return "ERROR:" + msg
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashContent returns the hex SHA-256 of the given bytes.
func HashContent(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
