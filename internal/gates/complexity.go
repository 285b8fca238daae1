package gates

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/wardgate/wardgate/internal/rulepack"
)

var (
	wordRe  = regexp.MustCompile(`\b\w+\b`)
	punctRe = regexp.MustCompile(`[^\w\s]`)
)

// repeatedChunkLen is the substring length used by the repeated-content
// scan; chunks are sampled at half-length steps.
const repeatedChunkLen = 50

// ComplexityGate is gate 4: size and structure limits. It rejects content
// that is too large, nested too deeply, or dominated by repetition before
// any downstream processing sees it.
type ComplexityGate struct {
	limits rulepack.Limits
}

// NewComplexityGate builds the gate from the pack's limits.
func NewComplexityGate(limits rulepack.Limits) *ComplexityGate {
	return &ComplexityGate{limits: limits}
}

func (g *ComplexityGate) Name() string   { return "Gate4_Complexity" }
func (g *ComplexityGate) Blocking() bool { return true }

func (g *ComplexityGate) Evaluate(req Request, sessionToken string) (Output, error) {
	content := req.Content

	if len(content) > g.limits.MaxChars {
		return Output{
			Result:     TooLarge,
			Violations: []string{fmt.Sprintf("Content exceeds character limit: %d > %d", len(content), g.limits.MaxChars)},
		}, nil
	}
	if tokens := g.estimateTokens(content); tokens > g.limits.MaxTokens {
		return Output{
			Result:     TooLarge,
			Violations: []string{fmt.Sprintf("Estimated tokens exceed limit: %d > %d", tokens, g.limits.MaxTokens)},
		}, nil
	}

	depth := bracketDepth(content)
	if jd := jsonDepth(content); jd > depth {
		depth = jd
	}
	if depth > g.limits.MaxDepth {
		return Output{
			Result:     TooComplex,
			Violations: []string{fmt.Sprintf("Nesting depth exceeds limit: %d > %d", depth, g.limits.MaxDepth)},
		}, nil
	}

	repetition, unique := repetitionRatios(content)
	if repetition > g.limits.MaxRepetition {
		return Output{
			Result:     Repetitive,
			Violations: []string{fmt.Sprintf("Content too repetitive: %.1f%% > %.0f%%", repetition*100, g.limits.MaxRepetition*100)},
		}, nil
	}
	if unique < g.limits.MinUnique {
		return Output{
			Result:     Repetitive,
			Violations: []string{fmt.Sprintf("Too few unique words: %.1f%% < %.0f%%", unique*100, g.limits.MinUnique*100)},
		}, nil
	}

	return Output{Result: Pass}, nil
}

// estimateTokens approximates the token count from word, punctuation, and
// whitespace structure, floored by a plain chars-per-token estimate.
func (g *ComplexityGate) estimateTokens(content string) int {
	words := len(wordRe.FindAllString(content, -1))
	punct := len(punctRe.FindAllString(content, -1))
	chunks := 0
	if fields := strings.Fields(content); len(fields) > 0 {
		chunks = len(fields) - 1
	}
	est := float64(words + punct/2 + chunks/4)
	if c := float64(len(content)) / g.limits.CharsPerToken; c > est {
		est = c
	}
	return int(est)
}

// bracketDepth tracks the deepest open run of braces, brackets, and
// parentheses. Unbalanced closers never push the depth negative.
func bracketDepth(content string) int {
	depth, maxDepth := 0, 0
	for _, r := range content {
		switch r {
		case '{', '[', '(':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case '}', ']', ')':
			if depth > 0 {
				depth--
			}
		}
	}
	return maxDepth
}

// jsonDepth measures nesting when the content parses as JSON, 0 otherwise.
func jsonDepth(content string) int {
	var v any
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return 0
	}
	return measureDepth(v, 0)
}

func measureDepth(v any, depth int) int {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return depth + 1
		}
		deepest := 0
		for _, child := range t {
			if d := measureDepth(child, depth+1); d > deepest {
				deepest = d
			}
		}
		return deepest
	case []any:
		if len(t) == 0 {
			return depth + 1
		}
		deepest := 0
		for _, child := range t {
			if d := measureDepth(child, depth+1); d > deepest {
				deepest = d
			}
		}
		return deepest
	default:
		return depth
	}
}

// repetitionRatios returns (repetition, unique) for the content. Repetition
// is the maximum of the repeated 3-gram ratio, the repeated long-substring
// ratio, and the inverse unique-word ratio. Empty content scores (0, 1).
func repetitionRatios(content string) (repetition, unique float64) {
	words := wordRe.FindAllString(strings.ToLower(content), -1)
	if len(words) == 0 {
		return 0, 1
	}

	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	unique = float64(len(counts)) / float64(len(words))

	ngramRatio := 0.0
	if total := len(words) - 2; total > 0 {
		ngrams := make(map[string]int, total)
		for i := 0; i < total; i++ {
			ngrams[words[i]+" "+words[i+1]+" "+words[i+2]]++
		}
		repeated := 0
		for _, c := range ngrams {
			if c > 2 {
				repeated++
			}
		}
		ngramRatio = float64(repeated) / float64(total)
	}

	repetition = ngramRatio
	if s := repeatedSubstringRatio(content); s > repetition {
		repetition = s
	}
	if inv := 1 - unique; inv > repetition {
		repetition = inv
	}
	return repetition, unique
}

// repeatedSubstringRatio samples fixed-length chunks at half-length steps
// and reports the share of chunks already seen.
func repeatedSubstringRatio(content string) float64 {
	if len(content) < repeatedChunkLen*2 {
		return 0
	}
	seen := make(map[string]bool)
	repeats := 0
	for i := 0; i < len(content)-repeatedChunkLen; i += repeatedChunkLen / 2 {
		chunk := content[i : i+repeatedChunkLen]
		if seen[chunk] {
			repeats++
		}
		seen[chunk] = true
	}
	if len(seen) == 0 {
		return 0
	}
	return float64(repeats) / float64(len(seen))
}
