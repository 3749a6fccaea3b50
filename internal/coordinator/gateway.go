// Package coordinator is the mandatory entry point for issue handling: it
// triages every eligible issue, routes it (direct delegation or full
// orchestration), and posts exactly one decision comment per issue. The
// comment body is deterministic, so the rate limiter's fingerprint dedup
// makes re-handling an issue idempotent across restarts.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/m0nk111/agent-forge-sub002/internal/forge"
	"github.com/m0nk111/agent-forge-sub002/internal/plan"
	"github.com/m0nk111/agent-forge-sub002/internal/schedule"
	"github.com/m0nk111/agent-forge-sub002/internal/triage"
)

// Route is the gateway's decision for one issue.
type Route string

const (
	// RouteDelegateSimple hands the issue to a worker without escalation
	// capability.
	RouteDelegateSimple Route = "DELEGATE_SIMPLE"

	// RouteDelegateWithEscalation hands the issue to a worker that may
	// escalate back to the coordinator.
	RouteDelegateWithEscalation Route = "DELEGATE_WITH_ESCALATION"

	// RouteOrchestrate decomposes the issue into an execution plan with
	// child issues.
	RouteOrchestrate Route = "ORCHESTRATE"

	// RouteDelegateFailed means no worker matched; the issue is labeled for
	// human triage.
	RouteDelegateFailed Route = "delegate_failed"
)

// LabelNeedsCoordination marks issues no worker could take.
const LabelNeedsCoordination = "needs-coordination"

// Decision records what the gateway did with one issue.
type Decision struct {
	Route    Route
	Analysis triage.Analysis

	// AssignedAgent is set for delegation routes.
	AssignedAgent string

	// PlanID is set for the orchestration route.
	PlanID string
}

// Triager produces a complexity analysis for an issue.
type Triager interface {
	Analyze(ctx context.Context, title, body string, labels []string) triage.Analysis
}

// RuleTriager adapts the rule-based analyzer to the Triager interface.
type RuleTriager struct {
	Rules *triage.Analyzer
}

func (r RuleTriager) Analyze(_ context.Context, title, body string, labels []string) triage.Analysis {
	return r.Rules.Analyze(title, body, labels)
}

// gatewayForge is the slice of the forge client the gateway needs.
type gatewayForge interface {
	CommentIssue(ctx context.Context, repo forge.Repo, number int, body string) error
	AddLabels(ctx context.Context, repo forge.Repo, number int, labels []string) error
	SetAssignees(ctx context.Context, repo forge.Repo, number int, assignees []string) error
	CreateIssue(ctx context.Context, repo forge.Repo, issue forge.NewIssue) (*forge.Issue, error)
}

// Gateway routes issues. All fields are required except logger.
type Gateway struct {
	forge     gatewayForge
	triager   Triager
	planner   *plan.Planner
	scheduler *schedule.Scheduler
	store     *plan.Store
	logger    *log.Logger
}

// NewGateway wires the gateway. store may be nil to skip plan persistence;
// logger may be nil.
func NewGateway(f gatewayForge, t Triager, p *plan.Planner, s *schedule.Scheduler, store *plan.Store, logger *log.Logger) *Gateway {
	return &Gateway{forge: f, triager: t, planner: p, scheduler: s, store: store, logger: logger}
}

// Handle triages one issue, routes it, and posts the decision comment.
// Re-handling the same issue is idempotent: the identical comment body is
// suppressed by duplicate detection and treated as already posted.
func (g *Gateway) Handle(ctx context.Context, issue *forge.Issue) (Decision, error) {
	analysis := g.triager.Analyze(ctx, issue.Title, issue.Body, issue.Labels)
	decision := Decision{Analysis: analysis}

	switch analysis.Level {
	case triage.LevelSimple:
		decision.Route = RouteDelegateSimple
	case triage.LevelUncertain:
		decision.Route = RouteDelegateWithEscalation
	default:
		decision.Route = RouteOrchestrate
	}

	var routeErr error
	switch decision.Route {
	case RouteOrchestrate:
		routeErr = g.orchestrate(ctx, issue, &decision)
	default:
		routeErr = g.delegate(ctx, issue, &decision)
	}
	if routeErr != nil {
		return decision, routeErr
	}

	if err := g.postDecision(ctx, issue, decision); err != nil {
		return decision, err
	}

	if g.logger != nil {
		g.logger.Info("issue routed",
			"issue", issue.Repo.IssueTarget(issue.Number),
			"route", decision.Route,
			"score", analysis.Score,
		)
	}
	return decision, nil
}

// delegate assigns the issue to the best available developer. With no worker
// available the route becomes delegate_failed and the issue is labeled.
func (g *Gateway) delegate(ctx context.Context, issue *forge.Issue, decision *Decision) error {
	workers := g.scheduler.ListAvailable(schedule.RoleDeveloper, "")
	if len(workers) == 0 {
		decision.Route = RouteDelegateFailed
		if err := g.forge.AddLabels(ctx, issue.Repo, issue.Number, []string{LabelNeedsCoordination}); err != nil && !errors.Is(err, forge.ErrRateLimited) {
			return fmt.Errorf("coordinator: labeling %s for human triage: %w", issue.Repo.IssueTarget(issue.Number), err)
		}
		return nil
	}

	decision.AssignedAgent = workers[0].AgentID
	if err := g.forge.SetAssignees(ctx, issue.Repo, issue.Number, []string{decision.AssignedAgent}); err != nil && !errors.Is(err, forge.ErrRateLimited) {
		return fmt.Errorf("coordinator: assigning %s: %w", issue.Repo.IssueTarget(issue.Number), err)
	}
	return nil
}

// orchestrate builds an execution plan, persists it, creates one child issue
// per sub-task, and activates the plan in the scheduler.
func (g *Gateway) orchestrate(ctx context.Context, issue *forge.Issue, decision *Decision) error {
	// An active plan for this issue means a previous handling already did
	// the work; re-handling must not duplicate it.
	if existing, ok := g.scheduler.PlanForIssue(issue.Repo.String(), issue.Number); ok {
		decision.PlanID = existing
		return nil
	}

	p, err := g.planner.Plan(ctx, issue)
	if err != nil {
		return fmt.Errorf("coordinator: planning %s: %w", issue.Repo.IssueTarget(issue.Number), err)
	}
	decision.PlanID = p.PlanID

	if g.store != nil {
		if err := g.store.Save(p); err != nil {
			return fmt.Errorf("coordinator: persisting plan %s: %w", p.PlanID, err)
		}
	}

	for _, t := range p.Tasks {
		child := forge.NewIssue{
			Title:  t.Title,
			Body:   childIssueBody(issue, p, t),
			Labels: []string{"sub-task"},
		}
		if _, err := g.forge.CreateIssue(ctx, issue.Repo, child); err != nil {
			// Rate-limit denials on child creation leave the plan usable;
			// the scheduler does not depend on forge issues existing.
			if errors.Is(err, forge.ErrRateLimited) {
				if g.logger != nil {
					g.logger.Warn("child issue suppressed by rate limiter", "task", t.ID)
				}
				continue
			}
			return fmt.Errorf("coordinator: creating child issue for task %s: %w", t.ID, err)
		}
	}

	if err := g.scheduler.AddPlan(p); err != nil {
		return fmt.Errorf("coordinator: activating plan %s: %w", p.PlanID, err)
	}
	return nil
}

// postDecision posts the single coordinator-decision comment. A rate-limit
// denial means an identical comment already went out; that is success.
func (g *Gateway) postDecision(ctx context.Context, issue *forge.Issue, d Decision) error {
	err := g.forge.CommentIssue(ctx, issue.Repo, issue.Number, decisionComment(d))
	if err != nil && !errors.Is(err, forge.ErrRateLimited) {
		return fmt.Errorf("coordinator: posting decision on %s: %w", issue.Repo.IssueTarget(issue.Number), err)
	}
	return nil
}

// decisionComment renders the operator-visible decision. The body is a pure
// function of the decision so duplicate suppression can recognize retries.
func decisionComment(d Decision) string {
	var b strings.Builder
	b.WriteString("## Coordinator decision\n\n")
	fmt.Fprintf(&b, "- **Route**: %s\n", d.Route)
	fmt.Fprintf(&b, "- **Complexity**: %s (score %d, confidence %.2f)\n",
		d.Analysis.Level, d.Analysis.Score, d.Analysis.Confidence)
	if d.AssignedAgent != "" {
		fmt.Fprintf(&b, "- **Assigned to**: %s\n", d.AssignedAgent)
	}
	if d.PlanID != "" {
		fmt.Fprintf(&b, "- **Plan**: %s\n", d.PlanID)
	}
	fmt.Fprintf(&b, "\n%s\n", d.Analysis.Reasoning)
	return b.String()
}

// childIssueBody renders the body of a sub-task issue.
func childIssueBody(parent *forge.Issue, p *plan.ExecutionPlan, t *plan.SubTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Part of #%d (plan %s, task %s).\n\n", parent.Number, p.PlanID, t.ID)
	if t.Description != "" {
		b.WriteString(t.Description + "\n\n")
	}
	fmt.Fprintf(&b, "Priority %d, estimated %d min.", t.Priority, t.EstimatedEffort)
	if len(t.DependsOn) > 0 {
		fmt.Fprintf(&b, " Depends on %s.", strings.Join(t.DependsOn, ", "))
	}
	return b.String()
}
