// Package triage scores issue complexity to decide the coordination route.
//
// The rule-based analyzer is a pure function of the issue text and labels.
// Scores are sums of bounded signal contributions, so the total is stable
// and explainable; the optional LLM refinement may only move the bucket,
// never invent a score.
package triage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/m0nk111/agent-forge-sub002/internal/config"
)

// Level is the complexity bucket of an issue.
type Level string

const (
	LevelSimple    Level = "simple"
	LevelUncertain Level = "uncertain"
	LevelComplex   Level = "complex"
)

// MaxScore is the ceiling of the rule-based score.
const MaxScore = 65

// Signals itemizes the rule-based contributions for explainability.
type Signals struct {
	BodyLength     int      `json:"body_length"`
	Checkboxes     int      `json:"checkboxes"`
	FileMentions   int      `json:"file_mentions"`
	CodeBlocks     int      `json:"code_blocks"`
	DependencyRefs int      `json:"dependency_refs"`
	KeywordHits    []string `json:"keyword_hits,omitempty"`
}

// Analysis is the outcome of complexity triage.
type Analysis struct {
	Level      Level   `json:"level"`
	Score      int     `json:"score"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Signals    Signals `json:"signals"`
}

var (
	reCheckbox = regexp.MustCompile(`(?m)^\s*[-*]\s*\[[ xX]\]`)
	reFile     = regexp.MustCompile(`\b[\w./-]+\.(go|py|js|ts|tsx|jsx|java|rb|rs|c|cpp|h|hpp|cs|php|sh|yaml|yml|toml|json|sql)\b`)
	reDepends  = regexp.MustCompile(`(?i)(depends\s+on|blocked\s+by|requires)\s+#\d+`)
)

// keywordFamilies groups related complexity keywords with a shared weight.
var keywordFamilies = []struct {
	name     string
	weight   int
	keywords []string
}{
	{name: "refactor", weight: 8, keywords: []string{"refactor", "rewrite", "restructure", "redesign"}},
	{name: "architecture", weight: 8, keywords: []string{"architecture", "architectural", "breaking change", "migration", "schema change"}},
	{name: "multi-component", weight: 4, keywords: []string{"multiple components", "cross-cutting", "several modules", "multi-component", "across modules"}},
}

// complexityLabels are issue labels treated as an architecture signal.
var complexityLabels = map[string]bool{
	"epic":  true,
	"major": true,
}

// confidence priors per bucket.
const (
	confidenceSimple    = 0.9
	confidenceUncertain = 0.6
	confidenceComplex   = 0.85
)

// Analyzer is the rule-based complexity analyzer.
type Analyzer struct {
	simpleThreshold  int
	complexThreshold int
}

// NewAnalyzer creates an Analyzer with the configured thresholds. Zero values
// fall back to the defaults (10 and 25).
func NewAnalyzer(cfg config.ComplexityConfig) *Analyzer {
	simple := cfg.SimpleThreshold
	if simple <= 0 {
		simple = 10
	}
	complexT := cfg.ComplexThreshold
	if complexT <= simple {
		complexT = simple + 15
	}
	return &Analyzer{simpleThreshold: simple, complexThreshold: complexT}
}

// Analyze scores the issue and places it in a bucket. Boundary scores fall
// into the lower bucket.
func (a *Analyzer) Analyze(title, body string, labels []string) Analysis {
	text := title + "\n" + body
	// Labels participate in the keyword scan: a "refactor" label is as
	// strong a signal as the word in the body.
	lower := strings.ToLower(text + "\n" + strings.Join(labels, "\n"))

	sig := Signals{
		BodyLength:     len(body),
		Checkboxes:     len(reCheckbox.FindAllString(body, -1)),
		FileMentions:   len(reFile.FindAllString(text, -1)),
		CodeBlocks:     strings.Count(body, "```") / 2,
		DependencyRefs: len(reDepends.FindAllString(text, -1)),
	}

	score := 0
	score += lengthScore(sig.BodyLength)
	score += capped(sig.Checkboxes*2, 10)
	score += capped(sig.FileMentions*2, 10)
	score += capped(sig.CodeBlocks*2, 5)
	score += capped(sig.DependencyRefs*5, 10)

	for _, fam := range keywordFamilies {
		for _, kw := range fam.keywords {
			if strings.Contains(lower, kw) {
				sig.KeywordHits = append(sig.KeywordHits, fam.name)
				score += fam.weight
				break
			}
		}
	}
	for _, l := range labels {
		if complexityLabels[strings.ToLower(l)] {
			sig.KeywordHits = append(sig.KeywordHits, "label:"+strings.ToLower(l))
			score += 8
			break
		}
	}

	if score > MaxScore {
		score = MaxScore
	}

	level, confidence := a.bucket(score)
	return Analysis{
		Level:      level,
		Score:      score,
		Confidence: confidence,
		Reasoning:  reasoning(level, score, sig),
		Signals:    sig,
	}
}

// bucket maps a score to its level and the fixed confidence prior.
func (a *Analyzer) bucket(score int) (Level, float64) {
	switch {
	case score <= a.simpleThreshold:
		return LevelSimple, confidenceSimple
	case score <= a.complexThreshold:
		return LevelUncertain, confidenceUncertain
	default:
		return LevelComplex, confidenceComplex
	}
}

// lengthScore converts body length to a bounded contribution.
func lengthScore(n int) int {
	switch {
	case n > 2000:
		return 10
	case n > 1000:
		return 7
	case n > 500:
		return 4
	case n > 200:
		return 2
	default:
		return 0
	}
}

func capped(n, limit int) int {
	if n > limit {
		return limit
	}
	return n
}

// reasoning renders a one-line explanation of the score.
func reasoning(level Level, score int, sig Signals) string {
	parts := []string{fmt.Sprintf("score %d -> %s", score, level)}
	if sig.Checkboxes > 0 {
		parts = append(parts, fmt.Sprintf("%d checklist item(s)", sig.Checkboxes))
	}
	if sig.FileMentions > 0 {
		parts = append(parts, fmt.Sprintf("%d file mention(s)", sig.FileMentions))
	}
	if sig.DependencyRefs > 0 {
		parts = append(parts, fmt.Sprintf("%d dependency reference(s)", sig.DependencyRefs))
	}
	if len(sig.KeywordHits) > 0 {
		parts = append(parts, "keywords: "+strings.Join(sig.KeywordHits, ", "))
	}
	return strings.Join(parts, "; ")
}
