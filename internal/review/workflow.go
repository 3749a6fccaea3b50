package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/m0nk111/agent-forge-sub002/internal/config"
	"github.com/m0nk111/agent-forge-sub002/internal/forge"
)

// State is where a workflow run ended.
type State string

const (
	StateIdle              State = "idle"
	StateLocked            State = "locked"
	StateReviewed          State = "reviewed"
	StateLabeled           State = "labeled"
	StateAssignedReviewers State = "assigned_reviewers"
	StateDecided           State = "decided"
	StateMerged            State = "merged"
	StateDrafted           State = "drafted"
	StateParked            State = "parked"
	StateReleased          State = "released"
)

// Skip reasons reported in Outcome.Reason.
const (
	SkipConcurrent = "concurrent"
	SkipSelfReview = "self_review"
)

// Review-outcome labels.
const (
	LabelApproved            = "approved"
	LabelApprovedSuggestions = "approved-with-suggestions"
	LabelChangesRequested    = "changes-requested"
	LabelNeedsWork           = "needs-work"
	LabelReadyForMerge       = "ready-for-merge"
	LabelCriticalIssues      = "critical-issues"
	LabelAIReviewed          = "ai-reviewed"
	LabelStaticReviewed      = "static-reviewed"
	LabelConflictManualFix   = "conflicts-manual-fix"
)

// Outcome reports how a workflow run ended. Skipped outcomes are not
// errors; the PR simply was not processed this round.
type Outcome struct {
	State    State    `json:"state"`
	Skipped  bool     `json:"skipped"`
	Reason   string   `json:"reason,omitempty"`
	Decision Decision `json:"decision,omitempty"`
	Review   Result   `json:"review,omitempty"`
}

// workflowForge is the slice of the forge client the workflow needs.
type workflowForge interface {
	GetPR(ctx context.Context, repo forge.Repo, number int) (*forge.PullRequest, error)
	ListPRFiles(ctx context.Context, repo forge.Repo, number int) ([]forge.PRFile, error)
	AddComment(ctx context.Context, repo forge.Repo, number int, body string) error
	AddLabels(ctx context.Context, repo forge.Repo, number int, labels []string) error
	RequestReviewers(ctx context.Context, repo forge.Repo, number int, reviewers []string) error
	MergePR(ctx context.Context, repo forge.Repo, number int, opts forge.MergeOpts) error
	ConvertPRToDraft(ctx context.Context, repo forge.Repo, number int) error
	ClosePR(ctx context.Context, repo forge.Repo, number int) error
}

// Workflow drives one PR through review, labeling, reviewer assignment, and
// the conditional merge. A run holds the PR's review lock from start to
// finish and releases it on every exit path.
type Workflow struct {
	forgeCfg  config.ForgeConfig
	reviewCfg config.ReviewConfig
	forge     workflowForge
	engine    *Engine
	conflicts ConflictAnalyzer
	locks     *LockSet
	logger    *log.Logger
}

// NewWorkflow wires a PR workflow. locks must be shared across all runners
// that may touch the same PRs; logger may be nil.
func NewWorkflow(forgeCfg config.ForgeConfig, reviewCfg config.ReviewConfig, f workflowForge, engine *Engine, locks *LockSet, logger *log.Logger) *Workflow {
	return &Workflow{
		forgeCfg:  forgeCfg,
		reviewCfg: reviewCfg,
		forge:     f,
		engine:    engine,
		locks:     locks,
		logger:    logger,
	}
}

// Run processes one PR. Contention on the lock or a self-review yields a
// skipped outcome, never an error.
func (w *Workflow) Run(ctx context.Context, repo forge.Repo, number int) (Outcome, error) {
	holder, ok := w.locks.Acquire(repo, number)
	if !ok {
		return Outcome{State: StateIdle, Skipped: true, Reason: SkipConcurrent}, nil
	}
	defer w.locks.Release(repo, number, holder)

	pr, err := w.forge.GetPR(ctx, repo, number)
	if err != nil {
		return Outcome{State: StateLocked}, fmt.Errorf("review: loading PR %s: %w", repo.IssueTarget(number), err)
	}

	if w.forgeCfg.BotUser != "" && pr.Author == w.forgeCfg.BotUser {
		return Outcome{State: StateReleased, Skipped: true, Reason: SkipSelfReview}, nil
	}

	files, err := w.forge.ListPRFiles(ctx, repo, number)
	if err != nil {
		return Outcome{State: StateLocked}, fmt.Errorf("review: listing files of PR %s: %w", repo.IssueTarget(number), err)
	}

	if pr.HasConflicts() {
		if out, done, err := w.preemptOnConflict(ctx, pr, files); done {
			return out, err
		}
	}

	result, err := w.engine.Review(ctx, pr, files)
	if err != nil {
		return Outcome{State: StateLocked}, fmt.Errorf("review: reviewing PR %s: %w", repo.IssueTarget(number), err)
	}

	if err := w.postComment(ctx, repo, number, reviewComment(pr, result)); err != nil {
		return Outcome{State: StateReviewed, Review: result}, err
	}

	if w.reviewCfg.AutoLabel {
		if err := w.forge.AddLabels(ctx, repo, number, reviewLabels(result)); err != nil && !errors.Is(err, forge.ErrRateLimited) {
			return Outcome{State: StateReviewed, Review: result}, fmt.Errorf("review: labeling PR %s: %w", repo.IssueTarget(number), err)
		}
	}

	if w.reviewCfg.AutoAssignReviewers {
		w.assignReviewers(ctx, pr)
	}

	decision := Decide(result)
	out := Outcome{State: StateDecided, Decision: decision, Review: result}

	switch {
	case decision.Recommendation == DoNotMerge && decision.CriticalCount > 0:
		if err := w.forge.ConvertPRToDraft(ctx, repo, number); err != nil {
			return out, fmt.Errorf("review: drafting PR %s: %w", repo.IssueTarget(number), err)
		}
		if err := w.postComment(ctx, repo, number, criticalComment(result)); err != nil {
			return out, err
		}
		out.State = StateDrafted

	case decision.Recommendation == AutoMerge && w.reviewCfg.AutoMergeIfApproved:
		if err := w.merge(ctx, pr); err != nil {
			return out, err
		}
		out.State = StateMerged

	case decision.Recommendation == MergeWithConsideration && w.reviewCfg.MergeWithSuggestions:
		if err := w.merge(ctx, pr); err != nil {
			return out, err
		}
		out.State = StateMerged

	default:
		out.State = StateParked
		out.Reason = decision.Reason
	}

	if w.logger != nil {
		w.logger.Info("PR workflow finished",
			"pr", repo.IssueTarget(number),
			"state", out.State,
			"recommendation", decision.Recommendation,
		)
	}
	return out, nil
}

// preemptOnConflict consults the conflict analyzer before the review. A
// close_and_recreate verdict closes the PR; manual_fix labels and parks it.
// auto_resolve lets the review proceed.
func (w *Workflow) preemptOnConflict(ctx context.Context, pr *forge.PullRequest, files []forge.PRFile) (Outcome, bool, error) {
	assessment := w.conflicts.Analyze(InfoFromPR(pr, files))
	repo, number := pr.Repo, pr.Number

	switch assessment.Strategy {
	case StrategyCloseAndRecreate:
		if err := w.postComment(ctx, repo, number, conflictComment(assessment)); err != nil {
			return Outcome{State: StateLocked}, true, err
		}
		if err := w.forge.ClosePR(ctx, repo, number); err != nil {
			return Outcome{State: StateLocked}, true, fmt.Errorf("review: closing conflicted PR %s: %w", repo.IssueTarget(number), err)
		}
		return Outcome{State: StateParked, Reason: string(StrategyCloseAndRecreate)}, true, nil

	case StrategyManualFix:
		if err := w.forge.AddLabels(ctx, repo, number, []string{LabelConflictManualFix}); err != nil && !errors.Is(err, forge.ErrRateLimited) {
			return Outcome{State: StateLocked}, true, fmt.Errorf("review: labeling conflicted PR %s: %w", repo.IssueTarget(number), err)
		}
		return Outcome{State: StateParked, Reason: string(StrategyManualFix)}, true, nil

	default:
		return Outcome{}, false, nil
	}
}

// assignReviewers requests the configured reviewers, skipping the PR
// author. Failures are logged, never fatal; the forge rejects some
// combinations (author as reviewer, missing collaborator) with a 422.
func (w *Workflow) assignReviewers(ctx context.Context, pr *forge.PullRequest) {
	var reviewers []string
	for _, r := range w.reviewCfg.Reviewers {
		if r != pr.Author {
			reviewers = append(reviewers, r)
		}
	}
	if len(reviewers) == 0 {
		return
	}
	if err := w.forge.RequestReviewers(ctx, pr.Repo, pr.Number, reviewers); err != nil && !errors.Is(err, forge.ErrRateLimited) {
		if w.logger != nil {
			w.logger.Warn("reviewer assignment failed",
				"pr", pr.Repo.IssueTarget(pr.Number), "err", err)
		}
	}
}

// merge performs the configured merge. Merging is the last irreversible
// step; it is attempted exactly once.
func (w *Workflow) merge(ctx context.Context, pr *forge.PullRequest) error {
	opts := forge.MergeOpts{
		Method:      forge.MergeMethod(w.reviewCfg.MergeMethod),
		CommitTitle: fmt.Sprintf("%s (#%d)", pr.Title, pr.Number),
	}
	if err := w.forge.MergePR(ctx, pr.Repo, pr.Number, opts); err != nil {
		return fmt.Errorf("review: merging PR %s: %w", pr.Repo.IssueTarget(pr.Number), err)
	}
	return nil
}

// postComment posts a deterministic comment body. A rate-limit denial means
// the identical comment already exists; that is success.
func (w *Workflow) postComment(ctx context.Context, repo forge.Repo, number int, body string) error {
	err := w.forge.AddComment(ctx, repo, number, body)
	if err != nil && !errors.Is(err, forge.ErrRateLimited) {
		return fmt.Errorf("review: commenting on PR %s: %w", repo.IssueTarget(number), err)
	}
	return nil
}

// reviewLabels derives the outcome labels from a review result.
func reviewLabels(r Result) []string {
	var labels []string
	switch {
	case r.Approved && len(r.Issues) == 0:
		labels = append(labels, LabelApproved)
	case r.Approved:
		labels = append(labels, LabelApprovedSuggestions)
	case r.CriticalCount() > 0:
		labels = append(labels, LabelChangesRequested)
	default:
		labels = append(labels, LabelNeedsWork)
	}

	if r.Approved {
		labels = append(labels, LabelReadyForMerge)
	}
	if r.CriticalCount() > 0 {
		labels = append(labels, LabelCriticalIssues)
	}
	if r.LLMUsed {
		labels = append(labels, LabelAIReviewed)
	} else {
		labels = append(labels, LabelStaticReviewed)
	}
	return labels
}

// reviewComment renders the single review comment. The body is a pure
// function of the result so duplicate suppression recognizes reruns.
func reviewComment(pr *forge.PullRequest, r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Automated review of #%d\n\n", pr.Number)

	if len(r.Issues) == 0 {
		b.WriteString("No issues found.\n")
	} else {
		for _, is := range r.Issues {
			if is.File != "" {
				fmt.Fprintf(&b, "- **%s** `%s`: %s\n", is.Severity, is.File, is.Message)
			} else {
				fmt.Fprintf(&b, "- **%s**: %s\n", is.Severity, is.Message)
			}
		}
	}

	if r.Tests.Ran {
		verdict := "passed"
		if !r.Tests.Passed {
			verdict = "FAILED"
		}
		fmt.Fprintf(&b, "\nTest suite: %s\n", verdict)
	}

	status := "not approved"
	if r.Approved {
		status = "approved"
	}
	fmt.Fprintf(&b, "\nVerdict: %s (%d critical, %d warning)\n",
		status, r.CriticalCount(), r.WarningCount())
	return b.String()
}

// criticalComment renders the structured comment posted when critical
// issues convert the PR to a draft.
func criticalComment(r Result) string {
	var b strings.Builder
	b.WriteString("## Critical issues: converted to draft\n\n")
	b.WriteString("This PR has been converted to a draft until the following are resolved:\n\n")
	for _, is := range r.Issues {
		if is.Severity != SeverityCritical {
			continue
		}
		if is.File != "" {
			fmt.Fprintf(&b, "- `%s`: %s\n", is.File, is.Message)
		} else {
			fmt.Fprintf(&b, "- %s\n", is.Message)
		}
	}
	b.WriteString("\nMark the PR ready for review after addressing them.\n")
	return b.String()
}

// conflictComment renders the close_and_recreate explanation.
func conflictComment(a ConflictAssessment) string {
	var b strings.Builder
	b.WriteString("## Closing: merge conflicts too complex\n\n")
	fmt.Fprintf(&b, "Conflict complexity score %d (max %d). Resolving in place is "+
		"riskier than redoing the change on a fresh branch.\n\n", a.Score, MaxConflictScore)
	for _, reason := range a.Reasons {
		fmt.Fprintf(&b, "- %s\n", reason)
	}
	b.WriteString("\nPlease recreate this change from the current base branch.\n")
	return b.String()
}
