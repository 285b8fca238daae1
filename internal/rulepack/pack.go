// Package rulepack loads the rule pack: content rule categories, injection
// signatures, intent signals, and the numeric limits used by the gates.
// A builtin pack is embedded in the binary; an on-disk pack overrides it
// when present. The pack hash identifies which policy produced a decision.
package rulepack

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// MemoryRules names the protected memory/state files and the literal marker
// that authorizes writes to them.
type MemoryRules struct {
	Files          []string `yaml:"files"`
	ApprovalMarker string   `yaml:"approval_marker"`
}

// Category is one ordered content-rule category: a violation code plus the
// patterns that trigger it.
type Category struct {
	Code        string   `yaml:"code"`
	Description string   `yaml:"description"`
	Patterns    []string `yaml:"patterns"`
}

// Signature is one injection signature with its severity tag.
type Signature struct {
	Name        string `yaml:"name"`
	Severity    string `yaml:"severity"`
	Description string `yaml:"description"`
	Pattern     string `yaml:"pattern"`
}

// Signal is one weighted intent-classification signal.
type Signal struct {
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`
}

// IntentSignals groups signals by routing mode.
type IntentSignals struct {
	Transactional []Signal `yaml:"transactional"`
	Reflective    []Signal `yaml:"reflective"`
	Play          []Signal `yaml:"play"`
}

// Limits holds the complexity gate ceilings.
type Limits struct {
	MaxChars      int     `yaml:"max_chars"`
	MaxTokens     int     `yaml:"max_tokens"`
	CharsPerToken float64 `yaml:"chars_per_token"`
	MaxDepth      int     `yaml:"max_depth"`
	MaxRepetition float64 `yaml:"max_repetition"`
	MinUnique     float64 `yaml:"min_unique"`
}

// Transport holds the transport gate settings.
type Transport struct {
	MinTokenLength int `yaml:"min_token_length"`
	ReplayTTL      int `yaml:"replay_ttl_seconds"`
	RateLimit      int `yaml:"rate_limit_per_window"`
	RateWindow     int `yaml:"rate_window_seconds"`
}

// Watcher holds the vault watcher file filters.
type Watcher struct {
	Extensions []string `yaml:"extensions"`
	Ignore     []string `yaml:"ignore"`
}

// Pack is the full parsed rule pack.
type Pack struct {
	Version   string        `yaml:"version"`
	Memory    MemoryRules   `yaml:"memory"`
	Content   []Category    `yaml:"content"`
	Advice    []string      `yaml:"advice"`
	Injection []Signature   `yaml:"injection"`
	Intent    IntentSignals `yaml:"intent"`
	Limits    Limits        `yaml:"limits"`
	Transport Transport     `yaml:"transport"`
	Watcher   Watcher       `yaml:"watcher"`

	raw []byte
}

// Builtin returns the pack embedded in the binary.
func Builtin() (*Pack, error) {
	return parse(defaultsYAML)
}

// Load reads a pack from a YAML file. Falls back to the builtin pack if the
// file doesn't exist.
func Load(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Builtin()
		}
		return nil, fmt.Errorf("rulepack: read %s: %w", path, err)
	}
	p, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("rulepack: parse %s: %w", path, err)
	}
	return p, nil
}

// DefaultPath returns the on-disk pack location under the state directory.
func DefaultPath(home string) string {
	return filepath.Join(home, "rulepack.yaml")
}

// WriteDefault writes the builtin pack to path, for `init` to produce an
// editable starter file. Refuses to overwrite an existing pack.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("rulepack: %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("rulepack: create directory: %w", err)
	}
	return os.WriteFile(path, defaultsYAML, 0644)
}

// Hash returns the first 16 hex chars of the SHA-256 of the raw pack bytes.
// Recorded in every decision record so audits can tell which policy was
// active.
func (p *Pack) Hash() string {
	h := sha256.Sum256(p.raw)
	return hex.EncodeToString(h[:])[:16]
}

func parse(data []byte) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	p.raw = data
	p.normalize()
	return &p, nil
}

// normalize fills zero-valued settings with the builtin defaults so a partial
// override pack cannot silently disable a gate.
func (p *Pack) normalize() {
	if p.Version == "" {
		p.Version = "1.0"
	}
	if p.Memory.ApprovalMarker == "" {
		p.Memory.ApprovalMarker = "<!-- APPROVED_WRITE -->"
	}
	if p.Limits.MaxChars == 0 {
		p.Limits.MaxChars = 32000
	}
	if p.Limits.MaxTokens == 0 {
		p.Limits.MaxTokens = 8000
	}
	if p.Limits.CharsPerToken == 0 {
		p.Limits.CharsPerToken = 4.0
	}
	if p.Limits.MaxDepth == 0 {
		p.Limits.MaxDepth = 10
	}
	if p.Limits.MaxRepetition == 0 {
		p.Limits.MaxRepetition = 0.40
	}
	if p.Limits.MinUnique == 0 {
		p.Limits.MinUnique = 0.20
	}
	if p.Transport.MinTokenLength == 0 {
		p.Transport.MinTokenLength = 8
	}
	if p.Transport.ReplayTTL == 0 {
		p.Transport.ReplayTTL = 300
	}
	if p.Transport.RateLimit == 0 {
		p.Transport.RateLimit = 60
	}
	if p.Transport.RateWindow == 0 {
		p.Transport.RateWindow = 60
	}
	if len(p.Watcher.Extensions) == 0 {
		p.Watcher.Extensions = []string{".md", ".txt", ".json", ".yaml", ".yml"}
	}
	if len(p.Watcher.Ignore) == 0 {
		p.Watcher.Ignore = []string{".git", "node_modules", "__pycache__", ".DS_Store"}
	}
}
