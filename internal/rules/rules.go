// Package rules implements the content rule checker: a deterministic,
// side-effect-free verdict on (content, destination path) pairs. The checker
// blocks unauthorized memory writes, first-person authority claims,
// fabricated facts, ownership assertions, and medical/legal directives.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wardgate/wardgate/internal/rulepack"
)

// Action is the checker's verdict on a piece of content.
type Action string

const (
	Allow Action = "ALLOW"
	Block Action = "BLOCK"
)

// Violation codes not carried by pack categories.
const (
	CodeUnauthorizedMemory = "UNAUTHORIZED_MEMORY_WRITE"
	AdvisorySpeculative    = "SPECULATIVE_ADVICE"
)

// Verdict is the result of a content check. Advisory is set when the content
// matched an advice pattern but was still allowed.
type Verdict struct {
	Action   Action `json:"action"`
	Code     string `json:"code,omitempty"`
	Advisory string `json:"advisory,omitempty"`
}

type category struct {
	code        string
	description string
	patterns    []*regexp.Regexp
}

// Checker holds the compiled rule set. Read-only after construction, safe
// for concurrent use.
type Checker struct {
	memoryFiles []string
	marker      string
	categories  []category
	advice      []*regexp.Regexp
	version     string
	policyHash  string
}

// NewChecker compiles a checker from the pack. Invalid patterns are skipped;
// each skip is reported in the returned warnings so callers can log them.
func NewChecker(p *rulepack.Pack) (*Checker, []string) {
	c := &Checker{
		memoryFiles: p.Memory.Files,
		marker:      p.Memory.ApprovalMarker,
		version:     p.Version,
		policyHash:  p.Hash(),
	}

	var warnings []string
	for _, cat := range p.Content {
		compiled := category{code: cat.Code, description: cat.Description}
		for _, raw := range cat.Patterns {
			re, err := regexp.Compile("(?i)" + raw)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("rules: skipping invalid pattern %q in %s: %v", raw, cat.Code, err))
				continue
			}
			compiled.patterns = append(compiled.patterns, re)
		}
		c.categories = append(c.categories, compiled)
	}

	for _, raw := range p.Advice {
		re, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("rules: skipping invalid advice pattern %q: %v", raw, err))
			continue
		}
		c.advice = append(c.advice, re)
	}

	return c, warnings
}

// Check validates content destined for resourcePath. First match wins:
// memory-file guard, then each pack category in order, then advice patterns.
// Empty or whitespace-only content always allows.
func (c *Checker) Check(content, resourcePath string) Verdict {
	if strings.TrimSpace(content) == "" {
		return Verdict{Action: Allow}
	}

	for _, name := range c.memoryFiles {
		if strings.Contains(resourcePath, name) && !strings.Contains(content, c.marker) {
			return Verdict{Action: Block, Code: CodeUnauthorizedMemory}
		}
	}

	for _, cat := range c.categories {
		for _, re := range cat.patterns {
			if re.MatchString(content) {
				return Verdict{Action: Block, Code: cat.code}
			}
		}
	}

	for _, re := range c.advice {
		if re.MatchString(content) {
			return Verdict{Action: Allow, Advisory: AdvisorySpeculative}
		}
	}

	return Verdict{Action: Allow}
}

// Describe returns the human explanation for a violation code.
func (c *Checker) Describe(code string) string {
	switch code {
	case CodeUnauthorizedMemory:
		return "Memory write without approval marker"
	case AdvisorySpeculative:
		return "Speculative advice, allowed but logged"
	}
	for _, cat := range c.categories {
		if cat.code == code {
			return cat.description
		}
	}
	return "Unknown violation"
}

// Version reports the rules version of the loaded pack.
func (c *Checker) Version() string { return c.version }

// PolicyHash reports the hash of the loaded pack, recorded in every
// decision record.
func (c *Checker) PolicyHash() string { return c.policyHash }
