// Package sandbox executes agent-requested shell commands under policy:
// working-directory allowlist, command denylist, timeouts with process-group
// kill, and bounded output capture.
//
// Policy denials are results, not errors. A caller gets a Result with
// StatusBlocked and a reason; errors are reserved for infrastructure
// failures (shutdown, cancelled context).
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	"github.com/m0nk111/agent-forge-sub002/internal/config"
)

// Status classifies the outcome of a sandboxed command.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusTimeout Status = "timeout"
	StatusBlocked Status = "blocked"
	StatusError   Status = "error"
)

// ErrShuttingDown is returned by Run once Shutdown has been called.
var ErrShuttingDown = errors.New("sandbox: shutting down")

// ErrNoTestSuite is returned by RunTestSuite when no known build manifest is
// found in the directory.
var ErrNoTestSuite = errors.New("sandbox: no test suite detected")

// Result is the outcome of one command execution.
type Result struct {
	Status   Status
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration

	// Truncated is set when stdout or stderr exceeded the output budget.
	Truncated bool

	// Reason explains a StatusBlocked or StatusError result.
	Reason string
}

// Opts configures a single Run call.
type Opts struct {
	// Dir is the working directory. It must resolve under one of the
	// configured allowed base dirs.
	Dir string

	// Timeout bounds the command. Zero means the configured default; values
	// above the configured maximum are clamped.
	Timeout time.Duration

	// Env entries are appended to the inherited environment.
	Env []string
}

// truncationNote is appended to output that hit the byte budget.
const truncationNote = "\n[output truncated]"

// Runner executes commands under the sandbox policy. It is safe for
// concurrent use.
type Runner struct {
	cfg    config.SandboxConfig
	logger *log.Logger

	// sem caps concurrent commands. Nil means unlimited.
	sem chan struct{}

	mu     sync.Mutex
	active map[*exec.Cmd]struct{}
	closed bool
}

// NewRunner creates a Runner enforcing cfg. logger may be nil.
func NewRunner(cfg config.SandboxConfig, logger *log.Logger) *Runner {
	var sem chan struct{}
	if cfg.MaxConcurrentCommands > 0 {
		sem = make(chan struct{}, cfg.MaxConcurrentCommands)
	}
	return &Runner{
		cfg:    cfg,
		logger: logger,
		sem:    sem,
		active: make(map[*exec.Cmd]struct{}),
	}
}

// Run executes command through the shell after policy checks. Denials and
// command failures are reported in the Result; the error is non-nil only for
// infrastructure failures.
func (r *Runner) Run(ctx context.Context, command string, opts Opts) (Result, error) {
	if reason, blocked := r.checkPolicy(command, opts.Dir); blocked {
		if r.logger != nil {
			r.logger.Warn("command blocked", "command", command, "reason", reason)
		}
		return Result{Status: StatusBlocked, ExitCode: -1, Reason: reason}, nil
	}

	if r.sem != nil {
		select {
		case r.sem <- struct{}{}:
			defer func() { <-r.sem }()
		case <-ctx.Done():
			return Result{}, fmt.Errorf("sandbox: waiting for slot: %w", ctx.Err())
		}
	}

	timeout := r.timeoutFor(opts.Timeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.Env...)
	setProcGroup(cmd)

	budget := r.cfg.MaxOutputBytes
	if budget <= 0 {
		budget = 64 * 1024
	}
	stdout := newBoundedBuffer(budget)
	stderr := newBoundedBuffer(budget)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := r.track(cmd); err != nil {
		return Result{}, err
	}
	defer r.untrack(cmd)

	if r.logger != nil {
		r.logger.Debug("running command", "command", command, "dir", opts.Dir, "timeout", timeout)
	}

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	res := Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Elapsed:   elapsed,
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}

	switch {
	case runErr == nil:
		res.Status = StatusSuccess

	case runCtx.Err() == context.DeadlineExceeded:
		res.Status = StatusTimeout
		res.ExitCode = -1
		res.Reason = fmt.Sprintf("timed out after %s", timeout)

	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.Status = StatusFailure
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.Status = StatusError
			res.ExitCode = -1
			res.Reason = runErr.Error()
		}
	}

	return res, nil
}

// RunTestSuite detects the build system in dir and runs its canonical test
// command. ErrNoTestSuite is returned when no known manifest is present.
func (r *Runner) RunTestSuite(ctx context.Context, dir string) (Result, error) {
	command, ok := DetectTestCommand(dir)
	if !ok {
		return Result{}, ErrNoTestSuite
	}
	return r.Run(ctx, command, Opts{Dir: dir})
}

// manifestCommands maps build-system manifest files to their canonical test
// commands, in detection order.
var manifestCommands = []struct {
	manifest string
	command  string
}{
	{"go.mod", "go test ./..."},
	{"package.json", "npm test"},
	{"Cargo.toml", "cargo test"},
	{"pyproject.toml", "python -m pytest"},
	{"setup.py", "python -m pytest"},
	{"Makefile", "make test"},
}

// DetectTestCommand sniffs well-known manifest files in dir and returns the
// matching test command.
func DetectTestCommand(dir string) (string, bool) {
	for _, m := range manifestCommands {
		if _, err := os.Stat(filepath.Join(dir, m.manifest)); err == nil {
			return m.command, true
		}
	}
	return "", false
}

// Shutdown force-kills all active commands and rejects subsequent Run calls.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for cmd := range r.active {
		killProcGroup(cmd)
	}
	if r.logger != nil && len(r.active) > 0 {
		r.logger.Warn("killed active commands on shutdown", "count", len(r.active))
	}
}

// track registers a command as active. Fails once Shutdown has run.
func (r *Runner) track(cmd *exec.Cmd) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrShuttingDown
	}
	r.active[cmd] = struct{}{}
	return nil
}

func (r *Runner) untrack(cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, cmd)
}

// timeoutFor resolves the effective timeout: requested, defaulted, clamped.
func (r *Runner) timeoutFor(requested time.Duration) time.Duration {
	timeout := requested
	if timeout <= 0 {
		timeout = time.Duration(r.cfg.DefaultTimeoutSeconds) * time.Second
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxT := time.Duration(r.cfg.MaxTimeoutSeconds) * time.Second; maxT > 0 && timeout > maxT {
		timeout = maxT
	}
	return timeout
}

// checkPolicy validates the command and working directory against the
// configured policy. It returns a denial reason and true when blocked.
func (r *Runner) checkPolicy(command, dir string) (string, bool) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "empty command", true
	}

	first := strings.Fields(trimmed)[0]
	if first == "sudo" {
		return "sudo is never allowed", true
	}

	if len(r.cfg.AllowedCommands) > 0 {
		allowed := false
		for _, a := range r.cfg.AllowedCommands {
			if first == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Sprintf("command %q not in the allowlist", first), true
		}
	}

	for _, blocked := range r.cfg.BlockedCommands {
		if blocked != "" && strings.Contains(trimmed, blocked) {
			return fmt.Sprintf("matches blocked command %q", blocked), true
		}
	}

	for _, pattern := range r.cfg.BlockedPatterns {
		if matchesPattern(pattern, trimmed) {
			return fmt.Sprintf("matches blocked pattern %q", pattern), true
		}
	}

	if reason, ok := r.checkDir(dir); !ok {
		return reason, true
	}
	return "", false
}

// checkDir verifies dir resolves under one of the allowed base dirs.
func (r *Runner) checkDir(dir string) (string, bool) {
	if dir == "" {
		return "working directory is required", false
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Sprintf("resolving working directory: %v", err), false
	}
	abs = filepath.Clean(abs)

	for _, base := range r.cfg.AllowedBaseDirs {
		baseAbs, err := filepath.Abs(base)
		if err != nil {
			continue
		}
		baseAbs = filepath.Clean(baseAbs)
		if abs == baseAbs || strings.HasPrefix(abs, baseAbs+string(filepath.Separator)) {
			return "", true
		}
	}
	return fmt.Sprintf("working directory %q is outside the allowed base dirs", abs), false
}

// matchesPattern tests a denylist pattern against the command, first as a
// doublestar glob and then as a regular expression.
func matchesPattern(pattern, command string) bool {
	if pattern == "" {
		return false
	}
	if doublestar.ValidatePattern(pattern) {
		if ok, err := doublestar.Match(pattern, command); err == nil && ok {
			return true
		}
	}
	if re, err := regexp.Compile(pattern); err == nil && re.MatchString(command) {
		return true
	}
	return false
}

// boundedBuffer captures at most limit bytes and records whether anything was
// discarded.
type boundedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

// Write satisfies io.Writer. Bytes beyond the limit are dropped; the command
// keeps running with its output discarded.
func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *boundedBuffer) Truncated() bool { return b.truncated }

// String returns the captured output, annotated when truncated.
func (b *boundedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + truncationNote
	}
	return b.buf.String()
}
