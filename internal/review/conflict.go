package review

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/m0nk111/agent-forge-sub002/internal/forge"
)

// ConflictStrategy is the recommended way to deal with a conflicted PR.
type ConflictStrategy string

const (
	// StrategyAutoResolve means the conflict is small enough to rebase and
	// resolve mechanically.
	StrategyAutoResolve ConflictStrategy = "auto_resolve"

	// StrategyManualFix means a human or worker should resolve in place.
	StrategyManualFix ConflictStrategy = "manual_fix"

	// StrategyCloseAndRecreate means the branch has drifted too far; close
	// the PR and redo the work on a fresh branch.
	StrategyCloseAndRecreate ConflictStrategy = "close_and_recreate"
)

// Strategy thresholds on the 0-55 complexity score.
const (
	autoResolveCeiling = 8
	manualFixCeiling   = 15
)

// MaxConflictScore is the ceiling of the conflict complexity score.
const MaxConflictScore = 55

// ConflictInfo is the input to conflict analysis.
type ConflictInfo struct {
	// ConflictedFiles are the files the merge cannot reconcile.
	ConflictedFiles []string

	// ConflictMarkers is the estimated number of conflict hunks.
	ConflictMarkers int

	// ChangedLines is the PR's total additions plus deletions.
	ChangedLines int

	// OverlappingFiles counts files modified on both branches.
	OverlappingFiles int

	// AgeDays is how long the PR has been open.
	AgeDays int

	// CommitsBehind is how far the branch trails its base.
	CommitsBehind int

	// CoreFileTouched is set when build manifests or entry points conflict.
	CoreFileTouched bool
}

// ConflictAssessment is the analyzer's verdict.
type ConflictAssessment struct {
	Score    int              `json:"score"`
	Strategy ConflictStrategy `json:"strategy"`
	Reasons  []string         `json:"reasons"`
}

// ConflictAnalyzer scores merge-conflict complexity. The zero value is ready
// to use.
type ConflictAnalyzer struct{}

// Analyze computes the 0-55 complexity score and picks a strategy. Each
// signal contributes a bounded amount, so no single dimension can dominate.
func (ConflictAnalyzer) Analyze(info ConflictInfo) ConflictAssessment {
	var a ConflictAssessment

	add := func(points int, reason string) {
		if points <= 0 {
			return
		}
		a.Score += points
		a.Reasons = append(a.Reasons, fmt.Sprintf("%s (+%d)", reason, points))
	}

	add(bounded(len(info.ConflictedFiles)*3, 12),
		fmt.Sprintf("%d conflicted file(s)", len(info.ConflictedFiles)))
	add(bounded(info.ConflictMarkers, 8),
		fmt.Sprintf("~%d conflict hunk(s)", info.ConflictMarkers))
	add(changedLinesScore(info.ChangedLines),
		fmt.Sprintf("%d changed line(s)", info.ChangedLines))
	add(bounded(info.OverlappingFiles*2, 6),
		fmt.Sprintf("%d overlapping file(s)", info.OverlappingFiles))
	add(ageScore(info.AgeDays),
		fmt.Sprintf("open for %d day(s)", info.AgeDays))
	add(behindScore(info.CommitsBehind),
		fmt.Sprintf("%d commit(s) behind base", info.CommitsBehind))
	if info.CoreFileTouched {
		add(7, "core file in conflict")
	}

	if a.Score > MaxConflictScore {
		a.Score = MaxConflictScore
	}

	switch {
	case a.Score <= autoResolveCeiling:
		a.Strategy = StrategyAutoResolve
	case a.Score <= manualFixCeiling:
		a.Strategy = StrategyManualFix
	default:
		a.Strategy = StrategyCloseAndRecreate
	}
	return a
}

func bounded(n, limit int) int {
	if n > limit {
		return limit
	}
	return n
}

func changedLinesScore(n int) int {
	switch {
	case n > 500:
		return 8
	case n > 200:
		return 5
	case n > 50:
		return 2
	default:
		return 0
	}
}

func ageScore(days int) int {
	switch {
	case days > 14:
		return 6
	case days > 7:
		return 4
	case days > 2:
		return 2
	default:
		return 0
	}
}

func behindScore(n int) int {
	switch {
	case n > 50:
		return 8
	case n > 20:
		return 5
	case n > 5:
		return 2
	default:
		return 0
	}
}

// coreFileNames are files whose conflicts tend to poison everything built
// on top of them.
var coreFileNames = map[string]bool{
	"go.mod":           true,
	"go.sum":           true,
	"package.json":     true,
	"package-lock.json": true,
	"cargo.toml":       true,
	"pyproject.toml":   true,
	"setup.py":         true,
	"makefile":         true,
	"dockerfile":       true,
	"main.go":          true,
}

// InfoFromPR derives ConflictInfo from a PR snapshot and its changed files.
// The forge does not expose per-file conflict detail, so conflicted files
// are estimated as the changed set when the PR is unmergeable.
func InfoFromPR(pr *forge.PullRequest, files []forge.PRFile) ConflictInfo {
	info := ConflictInfo{
		AgeDays:       int(time.Since(pr.CreatedAt).Hours() / 24),
		CommitsBehind: pr.CommitsBehind,
	}
	for _, f := range files {
		info.ChangedLines += f.Additions + f.Deletions
		if pr.HasConflicts() {
			info.ConflictedFiles = append(info.ConflictedFiles, f.Filename)
		}
		if coreFileNames[strings.ToLower(filepath.Base(f.Filename))] {
			info.CoreFileTouched = true
		}
	}
	// One hunk per conflicted file is the floor estimate.
	info.ConflictMarkers = len(info.ConflictedFiles)
	return info
}
