package gates

import (
	"fmt"
	"regexp"

	"github.com/wardgate/wardgate/internal/rulepack"
)

// Inline code or a fenced block is a strong transactional signal even when
// the surrounding prose scores otherwise.
var codeHint = regexp.MustCompile("```|`[^`]+`")

type compiledSignal struct {
	re     *regexp.Regexp
	mode   Mode
	weight float64
}

// IntentGate is gate 5: intent classification. It never blocks; it scores
// weighted signals for each mode and routes the request to the winner.
type IntentGate struct {
	signals []compiledSignal
}

// NewIntentGate compiles the signal set. Signals that fail to compile are
// skipped and reported in the returned warnings.
func NewIntentGate(signals rulepack.IntentSignals) (*IntentGate, []string) {
	g := &IntentGate{}
	var warnings []string
	add := func(mode Mode, sigs []rulepack.Signal) {
		for _, s := range sigs {
			re, err := regexp.Compile(s.Pattern)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("skipping %s intent signal %q: %v", mode, s.Pattern, err))
				continue
			}
			g.signals = append(g.signals, compiledSignal{re: re, mode: mode, weight: s.Weight})
		}
	}
	add(ModeTransactional, signals.Transactional)
	add(ModeReflective, signals.Reflective)
	add(ModePlay, signals.Play)
	return g, warnings
}

func (g *IntentGate) Name() string   { return "Gate5_Intent" }
func (g *IntentGate) Blocking() bool { return false }

func (g *IntentGate) Evaluate(req Request, sessionToken string) (Output, error) {
	if req.Content == "" {
		return Output{Result: Pass, Mode: ModeTransactional, Confidence: 0.5}, nil
	}

	mode, confidence := g.classify(req.Content)
	if codeHint.MatchString(req.Content) && mode != ModeTransactional && confidence < 0.7 {
		mode = ModeTransactional
		confidence = 0.6
	}

	return Output{Result: Pass, Mode: mode, Confidence: confidence}, nil
}

// classify sums the weights of matching signals per mode and picks the
// highest share. Confidence is the winner's share plus half its margin over
// the runner-up, capped at 1. No matching signals defaults to TRANSACTIONAL
// at low confidence.
func (g *IntentGate) classify(content string) (Mode, float64) {
	scores := map[Mode]float64{}
	for _, s := range g.signals {
		if s.re.MatchString(content) {
			scores[s.mode] += s.weight
		}
	}

	total := scores[ModeTransactional] + scores[ModeReflective] + scores[ModePlay]
	if total == 0 {
		return ModeTransactional, 0.3
	}

	// Ties go to the earlier mode in routing order.
	order := [...]Mode{ModeTransactional, ModeReflective, ModePlay}
	winner := order[0]
	for _, m := range order[1:] {
		if scores[m] > scores[winner] {
			winner = m
		}
	}

	top := scores[winner] / total
	second := 0.0
	for _, m := range order {
		if m == winner {
			continue
		}
		if share := scores[m] / total; share > second {
			second = share
		}
	}

	confidence := top + (top-second)*0.5
	if confidence > 1 {
		confidence = 1
	}
	return winner, confidence
}
