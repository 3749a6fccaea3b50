// Package worker provides task runners that execute scheduled assignments.
// The core never sees concrete agent logic, only the TaskRunner contract;
// CommandRunner bridges that contract to an external agent command executed
// through the sandbox.
package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/m0nk111/agent-forge-sub002/internal/sandbox"
	"github.com/m0nk111/agent-forge-sub002/internal/schedule"
)

// Func adapts a plain function to the task-runner contract.
type Func func(ctx context.Context, a schedule.TaskAssignment) error

// RunTask calls the wrapped function.
func (f Func) RunTask(ctx context.Context, a schedule.TaskAssignment) error {
	return f(ctx, a)
}

// CommandRunner executes one external agent command per assignment. The
// assignment is passed through the environment so any executable can act as
// an agent without a wire protocol.
type CommandRunner struct {
	sandbox *sandbox.Runner
	command string
	dir     string
	logger  *log.Logger
}

// NewCommandRunner wires a command runner. dir must resolve under one of
// the sandbox's allowed base directories; logger may be nil.
func NewCommandRunner(sb *sandbox.Runner, command, dir string, logger *log.Logger) *CommandRunner {
	return &CommandRunner{sandbox: sb, command: command, dir: dir, logger: logger}
}

// RunTask runs the agent command with the assignment in its environment.
// Policy denials and non-zero exits are reported as errors so the scheduler
// marks the task failed with the reason.
func (r *CommandRunner) RunTask(ctx context.Context, a schedule.TaskAssignment) error {
	env := []string{
		"AGENT_FORGE_PLAN=" + a.PlanID,
		"AGENT_FORGE_TASK=" + a.TaskID,
		"AGENT_FORGE_AGENT=" + a.AgentID,
		fmt.Sprintf("AGENT_FORGE_PRIORITY=%d", a.Priority),
	}

	res, err := r.sandbox.Run(ctx, r.command, sandbox.Opts{Dir: r.dir, Env: env})
	if err != nil {
		return fmt.Errorf("worker: running task %s: %w", a.TaskID, err)
	}

	if r.logger != nil {
		r.logger.Info("agent command finished",
			"task", a.TaskID, "agent", a.AgentID, "status", res.Status, "elapsed", res.Elapsed)
	}

	switch res.Status {
	case sandbox.StatusSuccess:
		return nil
	case sandbox.StatusBlocked:
		return fmt.Errorf("worker: task %s: command blocked: %s", a.TaskID, res.Reason)
	case sandbox.StatusTimeout:
		return fmt.Errorf("worker: task %s timed out", a.TaskID)
	default:
		return fmt.Errorf("worker: task %s failed (exit %d): %s", a.TaskID, res.ExitCode, tail(res.Stderr, 400))
	}
}

// tail returns the last n bytes of s; failure detail lives at the end of
// agent output.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
