package judge

import (
	"context"
	"math"
	"strings"
)

// conciseWordLimit is the word count under which output counts as concise.
const conciseWordLimit = 300

// RuleJudge scores criteria with deterministic text heuristics. No external
// calls, so evaluation works offline and repeats identically.
type RuleJudge struct{}

// NewRuleJudge creates a rule-based judge.
func NewRuleJudge() *RuleJudge {
	return &RuleJudge{}
}

// Name identifies the backend.
func (j *RuleJudge) Name() string { return "rule" }

// Judge applies a heuristic keyed on the criterion description. Boolean
// criteria check formatting rules; score criteria use token F1 against the
// reference when one is set, otherwise a length ratio.
func (j *RuleJudge) Judge(_ context.Context, in Input) (Verdict, error) {
	if in.Boolean {
		passed, reason := j.boolean(in)
		return Verdict{Passed: &passed, Reason: reason}, nil
	}
	score, reason := j.score(in)
	return Verdict{Score: &score, Reason: reason}, nil
}

func (j *RuleJudge) boolean(in Input) (bool, string) {
	desc := strings.ToLower(in.Desc)
	out := in.OutputText
	switch {
	case strings.Contains(desc, "bullet"):
		ok := strings.Contains(out, "- ") || strings.Contains(out, "•") || strings.Contains(out, "1.")
		return ok, "checked for bullet or numbered list markers"
	case strings.Contains(desc, "concise"):
		n := len(strings.Fields(out))
		return n <= conciseWordLimit, "word count within concise limit"
	default:
		return strings.TrimSpace(out) != "", "checked for non-empty output"
	}
}

func (j *RuleJudge) score(in Input) (float64, string) {
	if in.Reference != "" {
		key := strings.ToLower(in.Key + " " + in.Desc)
		if strings.Contains(key, "bleu") {
			return sentenceBLEU(in.OutputText, in.Reference), "BLEU against reference"
		}
		return tokenF1(in.OutputText, in.Reference), "token F1 against reference"
	}
	words := len(strings.Fields(in.OutputText))
	if words == 0 {
		return 0, "empty output"
	}
	score := float64(conciseWordLimit) / float64(words)
	if score > 1 {
		score = 1
	}
	return score, "length ratio"
}

// tokenF1 computes the F1 overlap between the unique lowercased tokens of
// the hypothesis and reference texts.
func tokenF1(hyp, ref string) float64 {
	hypSet := tokenSet(hyp)
	refSet := tokenSet(ref)
	if len(hypSet) == 0 || len(refSet) == 0 {
		return 0
	}
	tp := 0
	for t := range hypSet {
		if _, ok := refSet[t]; ok {
			tp++
		}
	}
	precision := float64(tp) / float64(len(hypSet))
	recall := float64(tp) / float64(len(refSet))
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(s)) {
		set[t] = struct{}{}
	}
	return set
}

// bleuMaxOrder caps the n-gram order used by sentenceBLEU.
const bleuMaxOrder = 4

// sentenceBLEU computes sentence-level BLEU in [0,1]: the geometric mean of
// clipped n-gram precisions up to order 4 (capped by the shorter text),
// multiplied by the brevity penalty. Unlike tokenF1 it is sensitive to word
// order, so it suits references where phrasing matters.
func sentenceBLEU(hyp, ref string) float64 {
	hypTok := strings.Fields(strings.ToLower(hyp))
	refTok := strings.Fields(strings.ToLower(ref))
	if len(hypTok) == 0 || len(refTok) == 0 {
		return 0
	}

	maxOrder := bleuMaxOrder
	if len(hypTok) < maxOrder {
		maxOrder = len(hypTok)
	}
	if len(refTok) < maxOrder {
		maxOrder = len(refTok)
	}

	logSum := 0.0
	for n := 1; n <= maxOrder; n++ {
		refCounts := ngramCounts(refTok, n)
		matched, total := 0, 0
		for gram, count := range ngramCounts(hypTok, n) {
			total += count
			if have := refCounts[gram]; have < count {
				matched += have
			} else {
				matched += count
			}
		}
		if matched == 0 {
			return 0
		}
		logSum += math.Log(float64(matched) / float64(total))
	}
	score := math.Exp(logSum / float64(maxOrder))

	// Brevity penalty: only hypotheses shorter than the reference are penalized.
	if len(hypTok) < len(refTok) {
		score *= math.Exp(1 - float64(len(refTok))/float64(len(hypTok)))
	}
	return score
}

func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], " ")]++
	}
	return counts
}
