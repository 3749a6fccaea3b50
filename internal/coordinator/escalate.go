package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/m0nk111/agent-forge-sub002/internal/forge"
)

// Escalation thresholds. Any single trigger escalates.
const (
	maxFilesBeforeEscalation      = 5
	maxComponentsBeforeEscalation = 3
	maxFailedAttempts             = 2
	maxMinutesBeforeEscalation    = 30
)

// EscalationContext is what a working agent knows when it asks whether to
// hand the issue back.
type EscalationContext struct {
	FilesAffected      int
	ComponentsTouched  int
	FailedAttempts     int
	MinutesSpent       int
	Stuck              bool
	Blocker            string
	ArchitectureChange bool
}

// EscalationResult tells the worker what to do next.
type EscalationResult string

const (
	// ResultWaitForCoordinator means the coordinator took the issue back.
	ResultWaitForCoordinator EscalationResult = "wait_for_coordinator"

	// ResultContinue means the worker keeps going.
	ResultContinue EscalationResult = "continue"

	// ResultAbort means the worker stops; the issue is left for humans.
	ResultAbort EscalationResult = "abort"
)

// escalationForge is the slice of the forge client the escalator needs.
type escalationForge interface {
	CommentIssue(ctx context.Context, repo forge.Repo, number int, body string) error
	AddLabels(ctx context.Context, repo forge.Repo, number int, labels []string) error
}

// Escalator decides when an in-progress issue goes back to the coordinator.
type Escalator struct {
	forge   escalationForge
	gateway *Gateway
	logger  *log.Logger
}

// NewEscalator wires an escalator. gateway may be nil when no coordinator is
// available; escalations then label the issue and abort. logger may be nil.
func NewEscalator(f escalationForge, gateway *Gateway, logger *log.Logger) *Escalator {
	return &Escalator{forge: f, gateway: gateway, logger: logger}
}

// ShouldEscalate evaluates the thresholds and returns the triggered reasons.
func (e *Escalator) ShouldEscalate(ec EscalationContext) (bool, []string) {
	var reasons []string
	if ec.FilesAffected > maxFilesBeforeEscalation {
		reasons = append(reasons, fmt.Sprintf("%d files affected (max %d)", ec.FilesAffected, maxFilesBeforeEscalation))
	}
	if ec.ComponentsTouched > maxComponentsBeforeEscalation {
		reasons = append(reasons, fmt.Sprintf("%d components touched (max %d)", ec.ComponentsTouched, maxComponentsBeforeEscalation))
	}
	if ec.FailedAttempts >= maxFailedAttempts {
		reasons = append(reasons, fmt.Sprintf("%d failed attempts", ec.FailedAttempts))
	}
	if ec.MinutesSpent > maxMinutesBeforeEscalation {
		reasons = append(reasons, fmt.Sprintf("%d minutes spent (max %d)", ec.MinutesSpent, maxMinutesBeforeEscalation))
	}
	if ec.ArchitectureChange {
		reasons = append(reasons, "architecture change needed")
	}
	if ec.Stuck {
		reason := "worker is stuck"
		if ec.Blocker != "" {
			reason += ": " + ec.Blocker
		}
		reasons = append(reasons, reason)
	}
	return len(reasons) > 0, reasons
}

// Escalate posts an explanatory comment and transfers the issue back to the
// coordinator. The comment body is deterministic for a given context, so
// repeated escalations of the same state are deduplicated.
func (e *Escalator) Escalate(ctx context.Context, issue *forge.Issue, ec EscalationContext) (EscalationResult, error) {
	triggered, reasons := e.ShouldEscalate(ec)
	if !triggered {
		return ResultContinue, nil
	}

	if err := e.forge.CommentIssue(ctx, issue.Repo, issue.Number, escalationComment(reasons)); err != nil && !errors.Is(err, forge.ErrRateLimited) {
		return ResultAbort, fmt.Errorf("coordinator: posting escalation on %s: %w", issue.Repo.IssueTarget(issue.Number), err)
	}

	if e.gateway == nil {
		if err := e.forge.AddLabels(ctx, issue.Repo, issue.Number, []string{LabelNeedsCoordination}); err != nil && !errors.Is(err, forge.ErrRateLimited) {
			return ResultAbort, fmt.Errorf("coordinator: labeling %s: %w", issue.Repo.IssueTarget(issue.Number), err)
		}
		return ResultAbort, nil
	}

	if _, err := e.gateway.Handle(ctx, issue); err != nil {
		return ResultAbort, fmt.Errorf("coordinator: re-handling escalated issue %s: %w", issue.Repo.IssueTarget(issue.Number), err)
	}
	if e.logger != nil {
		e.logger.Info("issue escalated back to coordinator",
			"issue", issue.Repo.IssueTarget(issue.Number), "reasons", strings.Join(reasons, "; "))
	}
	return ResultWaitForCoordinator, nil
}

// escalationComment renders the worker's hand-back explanation.
func escalationComment(reasons []string) string {
	var b strings.Builder
	b.WriteString("## Escalation\n\nThis issue is being handed back to the coordinator:\n\n")
	for _, r := range reasons {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	return b.String()
}
