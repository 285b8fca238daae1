package gates

import (
	"strings"
	"testing"

	"github.com/wardgate/wardgate/internal/rulepack"
)

func defaultLimits(t *testing.T) rulepack.Limits {
	t.Helper()
	p, err := rulepack.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	return p.Limits
}

// structureLimits keeps the size checks out of the way so depth and
// repetition cases can be exercised in isolation.
var structureLimits = rulepack.Limits{
	MaxChars:      1000,
	MaxTokens:     500,
	CharsPerToken: 4.0,
	MaxDepth:      3,
	MaxRepetition: 0.9,
	MinUnique:     0.01,
}

func TestComplexityPassesNormalProse(t *testing.T) {
	g := NewComplexityGate(defaultLimits(t))
	out, err := g.Evaluate(Request{Content: "The quarterly report is ready for review."}, testToken)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Result != Pass {
		t.Fatalf("result = %s, violations = %v", out.Result, out.Violations)
	}
}

func TestComplexityBlocksOversizeContent(t *testing.T) {
	g := NewComplexityGate(rulepack.Limits{
		MaxChars: 100, MaxTokens: 500, CharsPerToken: 4.0,
		MaxDepth: 10, MaxRepetition: 0.9, MinUnique: 0.01,
	})
	out, _ := g.Evaluate(Request{Content: strings.Repeat("a", 101)}, testToken)
	if out.Result != TooLarge {
		t.Fatalf("result = %s, want TOO_LARGE", out.Result)
	}
	if len(out.Violations) == 0 || !strings.Contains(out.Violations[0], "character limit") {
		t.Errorf("violations = %v, want character limit message", out.Violations)
	}
}

func TestComplexityBlocksTokenOverflow(t *testing.T) {
	g := NewComplexityGate(rulepack.Limits{
		MaxChars: 10000, MaxTokens: 10, CharsPerToken: 4.0,
		MaxDepth: 10, MaxRepetition: 0.9, MinUnique: 0.01,
	})
	content := "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu"
	out, _ := g.Evaluate(Request{Content: content}, testToken)
	if out.Result != TooLarge {
		t.Fatalf("result = %s, want TOO_LARGE", out.Result)
	}
	if len(out.Violations) == 0 || !strings.Contains(out.Violations[0], "tokens") {
		t.Errorf("violations = %v, want token message", out.Violations)
	}
}

func TestComplexityBlocksDeepBrackets(t *testing.T) {
	g := NewComplexityGate(structureLimits)
	out, _ := g.Evaluate(Request{Content: "((((deep))))"}, testToken)
	if out.Result != TooComplex {
		t.Fatalf("result = %s, want TOO_COMPLEX", out.Result)
	}
}

func TestComplexityDepthAtLimitPasses(t *testing.T) {
	g := NewComplexityGate(structureLimits)
	out, _ := g.Evaluate(Request{Content: "(((ok)))"}, testToken)
	if out.Result != Pass {
		t.Fatalf("result = %s, violations = %v", out.Result, out.Violations)
	}
}

func TestComplexityBlocksDeepJSON(t *testing.T) {
	g := NewComplexityGate(structureLimits)
	out, _ := g.Evaluate(Request{Content: `{"a":{"b":{"c":{"d":1}}}}`}, testToken)
	if out.Result != TooComplex {
		t.Fatalf("result = %s, want TOO_COMPLEX", out.Result)
	}
}

func TestComplexityBlocksRepetitiveContent(t *testing.T) {
	g := NewComplexityGate(defaultLimits(t))
	out, _ := g.Evaluate(Request{Content: strings.Repeat("the same phrase again ", 30)}, testToken)
	if out.Result != Repetitive {
		t.Fatalf("result = %s, want REPETITIVE", out.Result)
	}
	if len(out.Violations) == 0 || !strings.Contains(out.Violations[0], "repetitive") {
		t.Errorf("violations = %v, want repetition message", out.Violations)
	}
}

func TestComplexityBlocksLowUniqueWords(t *testing.T) {
	// MaxRepetition set high enough that the unique-words check is the one
	// that fires.
	g := NewComplexityGate(rulepack.Limits{
		MaxChars: 1000, MaxTokens: 500, CharsPerToken: 4.0,
		MaxDepth: 10, MaxRepetition: 0.99, MinUnique: 0.5,
	})
	out, _ := g.Evaluate(Request{Content: "spam spam spam spam"}, testToken)
	if out.Result != Repetitive {
		t.Fatalf("result = %s, want REPETITIVE", out.Result)
	}
	if len(out.Violations) == 0 || !strings.Contains(out.Violations[0], "unique words") {
		t.Errorf("violations = %v, want unique words message", out.Violations)
	}
}

func TestBracketDepthIgnoresUnmatchedClosers(t *testing.T) {
	if d := bracketDepth(")))((("); d != 3 {
		t.Errorf("depth = %d, want 3", d)
	}
	if d := bracketDepth("no brackets here"); d != 0 {
		t.Errorf("depth = %d, want 0", d)
	}
}

func TestJSONDepthNonJSON(t *testing.T) {
	if d := jsonDepth("plain text"); d != 0 {
		t.Errorf("depth = %d, want 0 for non-JSON", d)
	}
	if d := jsonDepth(`{"a":[1,2,{"b":3}]}`); d != 3 {
		t.Errorf("depth = %d, want 3", d)
	}
}

func TestRepetitionRatiosEmpty(t *testing.T) {
	repetition, unique := repetitionRatios("")
	if repetition != 0 || unique != 1 {
		t.Errorf("empty content ratios = (%v, %v), want (0, 1)", repetition, unique)
	}
}

func TestRepeatedSubstringRatio(t *testing.T) {
	if r := repeatedSubstringRatio(strings.Repeat("0123456789", 20)); r <= 0.4 {
		t.Errorf("ratio = %v, want > 0.4 for cyclic content", r)
	}
	if r := repeatedSubstringRatio("short"); r != 0 {
		t.Errorf("ratio = %v, want 0 for short content", r)
	}
}

func TestEstimateTokensCharFloor(t *testing.T) {
	g := NewComplexityGate(rulepack.Limits{CharsPerToken: 4.0})
	// One long word: the chars-per-token floor dominates the word count.
	if got := g.estimateTokens(strings.Repeat("a", 100)); got != 25 {
		t.Errorf("estimate = %d, want 25", got)
	}
}
