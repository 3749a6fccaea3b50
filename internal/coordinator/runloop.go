package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/m0nk111/agent-forge-sub002/internal/forge"
	"github.com/m0nk111/agent-forge-sub002/internal/schedule"
)

// TaskRunner executes one scheduled task assignment. Implementations are the
// worker agents registered with the scheduler.
type TaskRunner interface {
	RunTask(ctx context.Context, a schedule.TaskAssignment) error
}

// loopForge is the slice of the forge client the loop needs.
type loopForge interface {
	ListIssues(ctx context.Context, repo forge.Repo, filter forge.IssueFilter) ([]forge.Issue, error)
}

// LoopConfig configures the poll loop.
type LoopConfig struct {
	// Repo is the repository being watched.
	Repo forge.Repo

	// BotUser scopes polling to issues assigned to this identity.
	BotUser string

	// Interval between polls. Zero means 60 seconds.
	Interval time.Duration

	// MaxConcurrent caps simultaneous issue handling and task executions.
	// Zero means 4.
	MaxConcurrent int
}

// Loop polls for eligible issues, routes them through the gateway, and
// dispatches scheduler assignments to the task runner.
type Loop struct {
	cfg       LoopConfig
	forge     loopForge
	gateway   *Gateway
	scheduler *schedule.Scheduler
	runner    TaskRunner
	logger    *log.Logger
}

// NewLoop wires a poll loop. runner may be nil to disable task dispatch;
// logger may be nil.
func NewLoop(cfg LoopConfig, f loopForge, g *Gateway, s *schedule.Scheduler, runner TaskRunner, logger *log.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Loop{cfg: cfg, forge: f, gateway: g, scheduler: s, runner: runner, logger: logger}
}

// Run polls until ctx is cancelled. Cancellation is a clean exit, not an
// error. Poll failures are logged and the loop keeps going.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := l.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			if l.logger != nil {
				l.logger.Error("poll failed", "err", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs one pass: handle every eligible issue, then dispatch ready task
// assignments. Per-issue failures are collected, never aborting the pass.
func (l *Loop) Poll(ctx context.Context) error {
	issues, err := l.forge.ListIssues(ctx, l.cfg.Repo, forge.IssueFilter{
		State:    "open",
		Assignee: l.cfg.BotUser,
	})
	if err != nil {
		return fmt.Errorf("coordinator: listing eligible issues: %w", err)
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.MaxConcurrent)

	for i := range issues {
		issue := issues[i]
		if issue.HasLabel(LabelNeedsCoordination) {
			continue
		}
		g.Go(func() error {
			if _, err := l.gateway.Handle(gctx, &issue); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Errorf("issue #%d: %w", issue.Number, err))
				mu.Unlock()
			}
			// Handling errors never cancel the sibling handlers.
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck

	l.dispatch(ctx)

	if len(failures) > 0 {
		return fmt.Errorf("coordinator: %d issue(s) failed, first: %w", len(failures), failures[0])
	}
	return nil
}

// dispatch drains the scheduler and runs each assignment through the task
// runner, reporting terminal state back to the scheduler.
func (l *Loop) dispatch(ctx context.Context) {
	if l.runner == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.MaxConcurrent)

	for {
		a, ok := l.scheduler.NextAssignment()
		if !ok {
			break
		}
		g.Go(func() error {
			if err := l.runner.RunTask(gctx, a); err != nil {
				if l.logger != nil {
					l.logger.Error("task execution failed",
						"plan", a.PlanID, "task", a.TaskID, "agent", a.AgentID, "err", err)
				}
				if ferr := l.scheduler.FailTask(a.PlanID, a.TaskID, err.Error()); ferr != nil && l.logger != nil {
					l.logger.Error("recording task failure", "err", ferr)
				}
				return nil
			}
			if cerr := l.scheduler.CompleteTask(a.PlanID, a.TaskID); cerr != nil && l.logger != nil {
				l.logger.Error("recording task completion", "err", cerr)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck
}
