package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reprise-ai/reprise/internal/generate"
	"github.com/reprise-ai/reprise/internal/model"
)

// ModelJudge scores criteria by asking a generation backend for a structured
// verdict. Slower and non-deterministic, but handles criteria the rule
// heuristics cannot express.
type ModelJudge struct {
	gen generate.Generator
}

// NewModelJudge creates a judge backed by a generator.
func NewModelJudge(gen generate.Generator) *ModelJudge {
	return &ModelJudge{gen: gen}
}

// Name identifies the backend.
func (j *ModelJudge) Name() string { return "model" }

const judgePrompt = `You are a strict evaluator. Judge the OUTPUT below against one criterion.
Criterion key: %s
Criterion: %s
%s
Respond with ONLY a JSON object: {"passed": true|false, "score": 0.0-1.0, "reason": "..."}.`

type modelVerdict struct {
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Judge asks the backing generator for a verdict and parses its JSON reply.
// Failures wrap model.ErrJudge so the evaluator records a failed evaluation
// rather than dropping it.
func (j *ModelJudge) Judge(ctx context.Context, in Input) (Verdict, error) {
	refLine := ""
	if in.Reference != "" {
		refLine = "Reference answer:\n" + in.Reference + "\n"
	}
	res, err := j.gen.Generate(ctx, generate.Request{
		PromptText: fmt.Sprintf(judgePrompt, in.Key, in.Desc, refLine),
		InputText:  "[INPUT]\n" + in.InputText + "\n\n[OUTPUT]\n" + in.OutputText,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("judge %q: %v: %w", in.Key, err, model.ErrJudge)
	}

	raw := extractJSON(res.OutputText)
	var mv modelVerdict
	if err := json.Unmarshal([]byte(raw), &mv); err != nil {
		return Verdict{}, fmt.Errorf("judge %q: unparseable verdict: %w", in.Key, model.ErrJudge)
	}

	score := model.Clamp01(mv.Score)
	if in.Boolean {
		passed := mv.Passed
		return Verdict{Passed: &passed, Reason: mv.Reason}, nil
	}
	return Verdict{Score: &score, Reason: mv.Reason}, nil
}

// extractJSON pulls the first {...} block out of a reply that may carry
// surrounding prose or code fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
