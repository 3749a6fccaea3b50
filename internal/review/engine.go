// Package review implements the PR review and merge pipeline: a static
// review engine with an optional LLM critique, a pure merge decider, a
// conflict analyzer, and the locking workflow that drives a PR from opened
// to merged, drafted, or parked.
package review

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/m0nk111/agent-forge-sub002/internal/config"
	"github.com/m0nk111/agent-forge-sub002/internal/forge"
	"github.com/m0nk111/agent-forge-sub002/internal/llm"
	"github.com/m0nk111/agent-forge-sub002/internal/sandbox"
)

// Severity classifies a review issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Issue is one finding of the review engine.
type Issue struct {
	Severity Severity `json:"severity"`
	File     string   `json:"file"`
	Message  string   `json:"message"`
}

// TestOutcome records the sandboxed test run attached to a review.
type TestOutcome struct {
	// Ran is false when tests were not executed (no test changes, no
	// runner wired, or no recognizable suite).
	Ran    bool   `json:"ran"`
	Passed bool   `json:"passed"`
	Output string `json:"output,omitempty"`
}

// Result is the outcome of reviewing one pull request.
type Result struct {
	Approved bool        `json:"approved"`
	Issues   []Issue     `json:"issues"`
	Tests    TestOutcome `json:"tests"`

	// LLMUsed records whether the LLM critique pass contributed.
	LLMUsed bool `json:"llm_used"`
}

// CriticalCount returns the number of critical issues.
func (r *Result) CriticalCount() int { return r.countSeverity(SeverityCritical) }

// WarningCount returns the number of warning issues.
func (r *Result) WarningCount() int { return r.countSeverity(SeverityWarning) }

func (r *Result) countSeverity(s Severity) int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == s {
			n++
		}
	}
	return n
}

// TestRunner executes the detected test suite of a workspace directory.
// *sandbox.Runner satisfies it.
type TestRunner interface {
	RunTestSuite(ctx context.Context, dir string) (sandbox.Result, error)
}

// maxReviewFileLines is the size ceiling above which a changed file draws a
// warning.
const maxReviewFileLines = 500

// llmPatchBudget bounds the patch text submitted to the critique model.
const llmPatchBudget = 16000

// Engine reviews the changed files of a pull request.
type Engine struct {
	cfg     config.ReviewConfig
	client  llm.Client
	tests   TestRunner
	workdir string
	logger  *log.Logger
}

// NewEngine wires a review engine. client enables the LLM critique when
// cfg.UseLLM is set; tests and workdir enable sandboxed test execution.
// All of client, tests, and logger may be nil.
func NewEngine(cfg config.ReviewConfig, client llm.Client, tests TestRunner, workdir string, logger *log.Logger) *Engine {
	return &Engine{cfg: cfg, client: client, tests: tests, workdir: workdir, logger: logger}
}

// Review runs the static checks, the optional LLM critique, and the
// optional test suite, then computes approval. Approval requires zero
// critical issues and, when tests ran, a passing run.
func (e *Engine) Review(ctx context.Context, pr *forge.PullRequest, files []forge.PRFile) (Result, error) {
	var res Result

	for i := range files {
		res.Issues = append(res.Issues, staticCheck(&files[i])...)
	}

	if e.cfg.UseLLM && e.client != nil {
		issues, used := e.critique(ctx, pr, files)
		res.Issues = append(res.Issues, issues...)
		res.LLMUsed = used
	}

	if e.tests != nil && e.workdir != "" && testsChanged(files) {
		res.Tests = e.runTests(ctx)
	}

	res.Approved = res.CriticalCount() == 0 && (!res.Tests.Ran || res.Tests.Passed)

	if e.logger != nil {
		e.logger.Info("review complete",
			"pr", pr.Repo.IssueTarget(pr.Number),
			"issues", len(res.Issues),
			"critical", res.CriticalCount(),
			"approved", res.Approved,
		)
	}
	return res, nil
}

// runTests executes the workspace test suite. A missing suite leaves the
// outcome as not-ran; infrastructure errors are reported as a failed run.
func (e *Engine) runTests(ctx context.Context) TestOutcome {
	out, err := e.tests.RunTestSuite(ctx, e.workdir)
	if err != nil {
		if errors.Is(err, sandbox.ErrNoTestSuite) {
			return TestOutcome{}
		}
		return TestOutcome{Ran: true, Passed: false, Output: err.Error()}
	}
	return TestOutcome{
		Ran:    true,
		Passed: out.Status == sandbox.StatusSuccess,
		Output: out.Stdout + out.Stderr,
	}
}

// testsChanged reports whether any changed file looks like a test.
func testsChanged(files []forge.PRFile) bool {
	for _, f := range files {
		name := strings.ToLower(filepath.Base(f.Filename))
		if strings.HasSuffix(name, "_test.go") ||
			strings.HasPrefix(name, "test_") ||
			strings.HasSuffix(name, ".test.js") || strings.HasSuffix(name, ".test.ts") ||
			strings.HasSuffix(name, ".spec.js") || strings.HasSuffix(name, ".spec.ts") {
			return true
		}
	}
	return false
}

// --- static checks ---

type language string

const (
	langGo      language = "go"
	langPython  language = "python"
	langJS      language = "javascript"
	langUnknown language = ""
)

func languageOf(filename string) language {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".go":
		return langGo
	case ".py":
		return langPython
	case ".js", ".jsx", ".ts", ".tsx":
		return langJS
	default:
		return langUnknown
	}
}

var (
	reHunk      = regexp.MustCompile(`@@ -\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)
	reTodo      = regexp.MustCompile(`(?i)\b(TODO|FIXME)\b`)
	rePyExcept  = regexp.MustCompile(`^\s*except\b.*:\s*$`)
	rePyPass    = regexp.MustCompile(`^\s*pass\s*$`)
	reEmptyCatch = regexp.MustCompile(`catch\s*\([^)]*\)\s*\{\s*\}`)
	reGoPubFunc = regexp.MustCompile(`^func\s+(?:\([^)]+\)\s+)?([A-Z]\w*)\s*\(`)
	rePyPubDef  = regexp.MustCompile(`^\s*def\s+([a-zA-Z]\w*)\s*\(`)
)

// debugPrintPatterns are per-language substrings flagged as leftover debug
// output on added lines.
var debugPrintPatterns = map[language][]string{
	langGo:     {"fmt.Println(", "println("},
	langPython: {"print("},
	langJS:     {"console.log(", "console.debug("},
}

// staticCheck runs the rule-based checks on one changed file.
func staticCheck(f *forge.PRFile) []Issue {
	if f.Status == "removed" || f.Patch == "" {
		return nil
	}

	var issues []Issue
	lang := languageOf(f.Filename)

	if n := linesAfterChange(f.Patch); n > maxReviewFileLines {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			File:     f.Filename,
			Message:  fmt.Sprintf("file is %d lines after the change (threshold %d); consider splitting", n, maxReviewFileLines),
		})
	}

	added := addedLines(f.Patch)

	if hits := debugPrints(added, lang); hits > 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			File:     f.Filename,
			Message:  fmt.Sprintf("%d debug print statement(s) added", hits),
		})
	}

	todos := 0
	for _, line := range added {
		if reTodo.MatchString(line) {
			todos++
		}
	}
	if todos > 0 {
		issues = append(issues, Issue{
			Severity: SeverityInfo,
			File:     f.Filename,
			Message:  fmt.Sprintf("%d TODO/FIXME marker(s) added", todos),
		})
	}

	if n := silentHandlers(added, lang); n > 0 {
		issues = append(issues, Issue{
			Severity: SeverityCritical,
			File:     f.Filename,
			Message:  fmt.Sprintf("%d silently swallowed exception handler(s)", n),
		})
	}

	for _, name := range undocumentedPublicFuncs(added, lang) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			File:     f.Filename,
			Message:  fmt.Sprintf("new public function %s has no doc comment", name),
		})
	}

	return issues
}

// linesAfterChange estimates the file's length after the change from the
// last hunk header: new-start plus new-count covers the deepest line the
// patch touches, a lower bound on the real length.
func linesAfterChange(patch string) int {
	matches := reHunk.FindAllStringSubmatch(patch, -1)
	if len(matches) == 0 {
		return 0
	}
	last := matches[len(matches)-1]
	start := atoiSafe(last[1])
	count := 1
	if last[2] != "" {
		count = atoiSafe(last[2])
	}
	return start + count - 1
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// addedLines extracts the added lines of a unified diff, without the '+'.
func addedLines(patch string) []string {
	var lines []string
	for _, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			lines = append(lines, line[1:])
		}
	}
	return lines
}

func debugPrints(added []string, lang language) int {
	pats := debugPrintPatterns[lang]
	if len(pats) == 0 {
		return 0
	}
	hits := 0
	for _, line := range added {
		for _, p := range pats {
			if strings.Contains(line, p) {
				hits++
				break
			}
		}
	}
	return hits
}

// silentHandlers counts exception handlers whose sole body discards the
// error: a bare "pass" under a Python except clause, or an empty JS catch.
func silentHandlers(added []string, lang language) int {
	switch lang {
	case langPython:
		n := 0
		for i := 0; i < len(added)-1; i++ {
			if rePyExcept.MatchString(added[i]) && rePyPass.MatchString(added[i+1]) {
				n++
			}
		}
		return n
	case langJS:
		n := 0
		for _, line := range added {
			n += len(reEmptyCatch.FindAllString(line, -1))
		}
		return n
	default:
		return 0
	}
}

// undocumentedPublicFuncs returns names of newly added public functions
// whose surrounding added lines carry no documentation.
func undocumentedPublicFuncs(added []string, lang language) []string {
	var names []string
	switch lang {
	case langGo:
		for i, line := range added {
			m := reGoPubFunc.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if i > 0 && strings.HasPrefix(strings.TrimSpace(added[i-1]), "//") {
				continue
			}
			names = append(names, m[1])
		}
	case langPython:
		for i, line := range added {
			m := rePyPubDef.FindStringSubmatch(line)
			if m == nil || strings.HasPrefix(m[1], "_") {
				continue
			}
			if i+1 < len(added) && strings.Contains(added[i+1], `"""`) {
				continue
			}
			names = append(names, m[1])
		}
	}
	return names
}

// --- LLM critique ---

const critiqueRubric = `You are reviewing a pull request diff. Assess it for:
- logic errors
- performance problems
- security issues
- maintainability concerns

Report each finding on its own line, prefixed with exactly one of
[CRITICAL], [WARNING], or [INFO], followed by the finding. Report nothing
else.`

// critique submits the truncated patch with the fixed rubric and parses
// severity-prefixed lines. Failures degrade to the static result; output
// with no parseable line is attached as a single INFO note.
func (e *Engine) critique(ctx context.Context, pr *forge.PullRequest, files []forge.PRFile) ([]Issue, bool) {
	patch := combinedPatch(files)
	if patch == "" {
		return nil, false
	}

	prompt := fmt.Sprintf("%s\n\nPR: %s\n\n```diff\n%s\n```", critiqueRubric, pr.Title, patch)
	out, err := e.client.Complete(ctx, prompt, llm.Params{})
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("LLM critique unavailable, static review only", "err", err)
		}
		return nil, false
	}

	issues := parseCritique(out)
	if len(issues) == 0 && strings.TrimSpace(out) != "" {
		issues = []Issue{{
			Severity: SeverityInfo,
			Message:  "model critique (unstructured): " + truncate(strings.TrimSpace(out), 400),
		}}
	}
	return issues, true
}

// combinedPatch concatenates the per-file patches under the budget.
func combinedPatch(files []forge.PRFile) string {
	var b strings.Builder
	for _, f := range files {
		if f.Patch == "" {
			continue
		}
		section := fmt.Sprintf("--- %s\n%s\n", f.Filename, f.Patch)
		if b.Len()+len(section) > llmPatchBudget {
			b.WriteString("\n[diff truncated]\n")
			break
		}
		b.WriteString(section)
	}
	return b.String()
}

var critiquePrefixes = []struct {
	tag string
	sev Severity
}{
	{"[CRITICAL]", SeverityCritical},
	{"[WARNING]", SeverityWarning},
	{"[INFO]", SeverityInfo},
}

// parseCritique extracts severity-prefixed findings from model output.
func parseCritique(out string) []Issue {
	var issues []Issue
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		for _, p := range critiquePrefixes {
			if strings.HasPrefix(line, p.tag) {
				msg := strings.TrimSpace(strings.TrimPrefix(line, p.tag))
				if msg != "" {
					issues = append(issues, Issue{Severity: p.sev, Message: msg})
				}
				break
			}
		}
	}
	return issues
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
