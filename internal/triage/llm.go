package triage

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/m0nk111/agent-forge-sub002/internal/jsonutil"
	"github.com/m0nk111/agent-forge-sub002/internal/llm"
)

// refinementPrompt asks the model for a bucket, not a score. The rule-based
// score stays authoritative for explainability.
const refinementPrompt = `Classify the complexity of this software issue as exactly one of: simple, uncertain, complex.

simple: a single small change, one file, no design decisions.
uncertain: moderate scope or unclear requirements.
complex: multi-component work, architectural change, or decomposition needed.

Title: %s

Body:
%s

Respond with JSON only: {"complexity": "<bucket>", "reasoning": "<one sentence>"}`

// llmConfidence replaces the rule prior when the model confirms or overrides
// the bucket.
const llmConfidence = 0.95

// LLMAnalyzer refines rule-based triage with an LLM bucket opinion. Any LLM
// failure falls back to the rule-based analysis unchanged.
type LLMAnalyzer struct {
	rules  *Analyzer
	client llm.Client
	logger *log.Logger
}

// NewLLMAnalyzer wraps rules with client. logger may be nil.
func NewLLMAnalyzer(rules *Analyzer, client llm.Client, logger *log.Logger) *LLMAnalyzer {
	return &LLMAnalyzer{rules: rules, client: client, logger: logger}
}

// Analyze runs the rule-based analyzer, then asks the LLM to confirm or
// override the bucket.
func (a *LLMAnalyzer) Analyze(ctx context.Context, title, body string, labels []string) Analysis {
	result := a.rules.Analyze(title, body, labels)
	if a.client == nil {
		return result
	}

	out, err := a.client.Complete(ctx, fmt.Sprintf(refinementPrompt, title, body), llm.Params{Temperature: 0.1})
	if err != nil {
		if a.logger != nil {
			a.logger.Debug("llm refinement skipped", "err", err)
		}
		return result
	}

	var parsed struct {
		Complexity string `json:"complexity"`
		Reasoning  string `json:"reasoning"`
	}
	if err := jsonutil.ExtractInto(out, &parsed); err != nil {
		if a.logger != nil {
			a.logger.Debug("llm refinement unparseable", "err", err)
		}
		return result
	}

	level := Level(parsed.Complexity)
	switch level {
	case LevelSimple, LevelUncertain, LevelComplex:
	default:
		return result
	}

	if level != result.Level && a.logger != nil {
		a.logger.Info("llm overrode complexity bucket",
			"rule_level", result.Level,
			"llm_level", level,
			"score", result.Score,
		)
	}
	result.Level = level
	result.Confidence = llmConfidence
	if parsed.Reasoning != "" {
		result.Reasoning += "; llm: " + parsed.Reasoning
	}
	return result
}
