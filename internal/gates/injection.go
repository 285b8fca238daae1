package gates

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/wardgate/wardgate/internal/rulepack"
	"github.com/wardgate/wardgate/internal/textscan"
)

// Candidate extractors for encoded payloads: base64 runs of 20+ characters,
// hex runs of 40+.
var (
	base64Candidate = regexp.MustCompile(`[A-Za-z0-9+/]{20,}={0,2}`)
	hexCandidate    = regexp.MustCompile(`(?:0x)?([0-9a-fA-F]{40,})`)
)

var severityRank = map[string]int{"medium": 1, "high": 2, "critical": 3}

type compiledSignature struct {
	sig rulepack.Signature
	re  *regexp.Regexp
}

// InjectionGate is gate 3: prompt injection detection. It scans content
// against the signature set, decodes base64 and hex runs and scans the
// plaintext too, and flags invisible Unicode and mixed-script obfuscation.
type InjectionGate struct {
	compiled []compiledSignature
}

// NewInjectionGate compiles the signature set. Signatures that fail to
// compile are skipped and reported in the returned warnings.
func NewInjectionGate(sigs []rulepack.Signature) (*InjectionGate, []string) {
	g := &InjectionGate{}
	var warnings []string
	for _, s := range sigs {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("skipping injection signature %q: %v", s.Name, err))
			continue
		}
		g.compiled = append(g.compiled, compiledSignature{sig: s, re: re})
	}
	return g, warnings
}

func (g *InjectionGate) Name() string   { return "Gate3_Injection" }
func (g *InjectionGate) Blocking() bool { return true }

// Evaluate collects every signature hit rather than stopping at the first,
// so a blocked request reports the full set of detected techniques.
func (g *InjectionGate) Evaluate(req Request, sessionToken string) (Output, error) {
	if req.Content == "" {
		return Output{Result: Pass}, nil
	}

	var violations []string
	maxSeverity := ""

	raise := func(severity string) {
		if severityRank[severity] > severityRank[maxSeverity] {
			maxSeverity = severity
		}
	}

	for _, c := range g.compiled {
		if c.re.MatchString(req.Content) {
			violations = append(violations, c.sig.Name+": "+c.sig.Description)
			raise(c.sig.Severity)
		}
	}

	// A signature hit inside decoded content is always critical.
	for _, candidate := range base64Candidate.FindAllString(req.Content, -1) {
		decoded, ok := decodeBase64(candidate)
		if !ok {
			continue
		}
		if name, desc, hit := g.firstMatch(decoded); hit {
			violations = append(violations, "encoded_"+name+": Base64-encoded injection attempt: "+desc)
			raise("critical")
		}
	}
	for _, m := range hexCandidate.FindAllStringSubmatch(req.Content, -1) {
		raw, err := hex.DecodeString(m[1])
		if err != nil {
			continue
		}
		if name, desc, hit := g.firstMatch(strings.ToValidUTF8(string(raw), "")); hit {
			violations = append(violations, "hex_encoded_"+name+": Hex-encoded injection attempt: "+desc)
			raise("critical")
		}
	}

	if len(textscan.Invisible(req.Content)) > 0 {
		violations = append(violations, "unicode_invisible: Invisible Unicode characters detected (potential obfuscation)")
		raise("high")
	}
	if textscan.MixedScript(req.Content) {
		violations = append(violations, "unicode_homograph: Mixed Latin/Cyrillic characters (potential homograph attack)")
		raise("high")
	}

	if len(violations) > 0 {
		return Output{
			Result:     InjectionBlocked,
			Violations: violations,
			Severity:   maxSeverity,
		}, nil
	}
	return Output{Result: Pass}, nil
}

// firstMatch scans decoded text and returns the first matching signature.
// One hit per decoded candidate is enough to condemn it.
func (g *InjectionGate) firstMatch(decoded string) (name, description string, hit bool) {
	for _, c := range g.compiled {
		if c.re.MatchString(decoded) {
			return c.sig.Name, c.sig.Description, true
		}
	}
	return "", "", false
}

func decodeBase64(s string) (string, bool) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return strings.ToValidUTF8(string(b), ""), true
	}
	if b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err == nil {
		return strings.ToValidUTF8(string(b), ""), true
	}
	return "", false
}
