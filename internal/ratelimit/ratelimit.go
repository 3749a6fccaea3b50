// Package ratelimit gates every mutating forge operation behind per-type
// caps, cooldowns, duplicate suppression, and burst detection.
//
// A denial is a first-class result, not an error: callers receive a Decision
// explaining which policy fired and, where known, how long to wait. The
// limiter is the single choke point that keeps an unattended bot from
// spamming a repository, so Check is deliberately pure (no history mutation)
// and Record is a separate call made after the operation actually ran.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Operation identifies the type of a forge mutation for rate-limit grouping.
type Operation string

const (
	OpIssueComment Operation = "issue_comment"
	OpPRComment    Operation = "pr_comment"
	OpIssueCreate  Operation = "issue_create"
	OpPRCreate     Operation = "pr_create"
	OpIssueUpdate  Operation = "issue_update"
	OpPRUpdate     Operation = "pr_update"
	OpLabelUpdate  Operation = "label_update"
	OpAssignment   Operation = "assignment"
	OpAPIRead      Operation = "api_read"
	OpAPIWrite     Operation = "api_write"
)

// Config holds the limiter's policy knobs. All windows and cooldowns are
// expressed as durations; zero values mean "no limit" for caps and "no
// cooldown" for cooldowns.
type Config struct {
	CommentsPerMinute int
	CommentsPerHour   int
	CommentsPerDay    int
	IssuesPerHour     int
	PRsPerHour        int
	UpdatesPerMinute  int
	UpdatesPerHour    int

	CommentCooldown time.Duration
	IssueCooldown   time.Duration
	PRCooldown      time.Duration

	DuplicateWindow time.Duration
	MaxDuplicates   int
	BurstWindow     time.Duration
	MaxBurst        int

	// PlatformHeadroomFloor denies mutations when the forge reports fewer
	// remaining API calls than this value.
	PlatformHeadroomFloor int
}

// DefaultConfig returns the conservative production defaults.
func DefaultConfig() Config {
	return Config{
		CommentsPerMinute:     3,
		CommentsPerHour:       30,
		CommentsPerDay:        200,
		IssuesPerHour:         10,
		PRsPerHour:            5,
		UpdatesPerMinute:      10,
		UpdatesPerHour:        100,
		CommentCooldown:       20 * time.Second,
		IssueCooldown:         60 * time.Second,
		PRCooldown:            120 * time.Second,
		DuplicateWindow:       time.Hour,
		MaxDuplicates:         2,
		BurstWindow:           60 * time.Second,
		MaxBurst:              10,
		PlatformHeadroomFloor: 100,
	}
}

// Record is one entry in the operation history.
type Record struct {
	Op          Operation
	Target      string
	Fingerprint string
	Timestamp   time.Time
	Success     bool
}

// Decision is the outcome of a Check call.
type Decision struct {
	// Allowed is true when the operation may proceed.
	Allowed bool

	// Reason explains the denial. Empty when Allowed.
	Reason string

	// RetryAfter is the remaining wait when a cooldown fired. Zero otherwise.
	RetryAfter time.Duration
}

// allow is the zero-reason allowed decision.
var allow = Decision{Allowed: true}

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Limiter tracks operation history and enforces the policy in Config.
// It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	history map[Operation][]Record
	lastOp  map[Operation]time.Time

	// Platform-global headroom reported by the forge. remaining < 0 means
	// the forge has not reported yet.
	platformRemaining int
	platformReset     time.Time

	// now is injectable for tests.
	now func() time.Time
}

// NewLimiter creates a Limiter with the given config.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		cfg:               cfg,
		history:           make(map[Operation][]Record),
		lastOp:            make(map[Operation]time.Time),
		platformRemaining: -1,
		now:               time.Now,
	}
}

// Fingerprint returns the short stable hash used for duplicate detection:
// the first 16 hex characters of the SHA-256 of content.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// Check evaluates whether an operation may proceed. It never mutates history.
// content may be empty; duplicate detection is skipped in that case.
//
// Policy order: platform headroom, per-op cooldown, per-op caps, duplicate
// fingerprint, global burst. Reads (OpAPIRead) skip cooldown enforcement.
func (l *Limiter) Check(op Operation, target, content string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// 1. Platform-global headroom.
	if l.platformRemaining >= 0 && l.platformRemaining < l.cfg.PlatformHeadroomFloor {
		return deny("platform headroom low: %d remaining (floor %d, resets %s)",
			l.platformRemaining, l.cfg.PlatformHeadroomFloor, l.platformReset.Format(time.RFC3339))
	}

	// 2. Per-op cooldown. Reads are exempt.
	if op != OpAPIRead {
		if cd := l.cooldownFor(op); cd > 0 {
			if last, ok := l.lastOp[op]; ok {
				if elapsed := now.Sub(last); elapsed < cd {
					remaining := cd - elapsed
					return Decision{
						Reason:     fmt.Sprintf("cooldown active for %s: %s remaining", op, remaining.Round(time.Second)),
						RetryAfter: remaining,
					}
				}
			}
		}
	}

	// 3. Per-op caps over sliding windows.
	for _, w := range l.capsFor(op) {
		if w.max <= 0 {
			continue
		}
		if n := l.countSince(op, now.Add(-w.window)); n >= w.max {
			return deny("%s cap reached: %d per %s", op, w.max, w.window)
		}
	}

	// 4. Duplicate content suppression.
	if content != "" && l.cfg.MaxDuplicates > 0 {
		fp := Fingerprint(content)
		if n := l.countFingerprintSince(fp, now.Add(-l.cfg.DuplicateWindow)); n >= l.cfg.MaxDuplicates {
			return deny("duplicate content: fingerprint %s seen %d time(s) within %s", fp, n, l.cfg.DuplicateWindow)
		}
	}

	// 5. Global burst detection across all operation types.
	if l.cfg.MaxBurst > 0 {
		if n := l.countAllSince(now.Add(-l.cfg.BurstWindow)); n > l.cfg.MaxBurst {
			return deny("burst detected: %d operations within %s", n, l.cfg.BurstWindow)
		}
	}

	return allow
}

// Record appends an operation to the history. content may be empty. Old
// records outside the longest enforcement window are pruned on every call so
// the history stays bounded.
func (l *Limiter) Record(op Operation, target, content string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec := Record{
		Op:        op,
		Target:    target,
		Timestamp: now,
		Success:   success,
	}
	if content != "" {
		rec.Fingerprint = Fingerprint(content)
	}

	l.history[op] = append(l.history[op], rec)
	if success {
		l.lastOp[op] = now
	}

	l.prune(now)
}

// ObservePlatformLimits feeds rate-limit telemetry from forge response
// headers. Best effort: callers pass whatever the platform reported.
func (l *Limiter) ObservePlatformLimits(remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.platformRemaining = remaining
	l.platformReset = resetAt
}

// HistorySize returns the total number of retained records. Used by tests
// and the status surface.
func (l *Limiter) HistorySize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, recs := range l.history {
		n += len(recs)
	}
	return n
}

// capWindow pairs a cap with its sliding window.
type capWindow struct {
	max    int
	window time.Duration
}

// capsFor returns the cap set that applies to an operation type.
func (l *Limiter) capsFor(op Operation) []capWindow {
	switch op {
	case OpIssueComment, OpPRComment:
		return []capWindow{
			{l.cfg.CommentsPerMinute, time.Minute},
			{l.cfg.CommentsPerHour, time.Hour},
			{l.cfg.CommentsPerDay, 24 * time.Hour},
		}
	case OpIssueCreate:
		return []capWindow{{l.cfg.IssuesPerHour, time.Hour}}
	case OpPRCreate:
		return []capWindow{{l.cfg.PRsPerHour, time.Hour}}
	case OpIssueUpdate, OpPRUpdate, OpLabelUpdate, OpAssignment, OpAPIWrite:
		return []capWindow{
			{l.cfg.UpdatesPerMinute, time.Minute},
			{l.cfg.UpdatesPerHour, time.Hour},
		}
	default:
		return nil
	}
}

// cooldownFor returns the minimum spacing between operations of a type.
func (l *Limiter) cooldownFor(op Operation) time.Duration {
	switch op {
	case OpIssueComment, OpPRComment:
		return l.cfg.CommentCooldown
	case OpIssueCreate:
		return l.cfg.IssueCooldown
	case OpPRCreate:
		return l.cfg.PRCooldown
	default:
		return 0
	}
}

// countSince counts successful records of one type at or after cutoff.
// Callers must hold l.mu.
func (l *Limiter) countSince(op Operation, cutoff time.Time) int {
	n := 0
	for _, r := range l.history[op] {
		if r.Success && !r.Timestamp.Before(cutoff) {
			n++
		}
	}
	return n
}

// countFingerprintSince counts records with the given fingerprint across all
// operation types at or after cutoff. Denied attempts count too: retrying the
// same content after a denial is exactly the behavior duplicate suppression
// exists to stop. Callers must hold l.mu.
func (l *Limiter) countFingerprintSince(fp string, cutoff time.Time) int {
	n := 0
	for _, recs := range l.history {
		for _, r := range recs {
			if r.Fingerprint == fp && !r.Timestamp.Before(cutoff) {
				n++
			}
		}
	}
	return n
}

// countAllSince counts records of every type at or after cutoff.
// Callers must hold l.mu.
func (l *Limiter) countAllSince(cutoff time.Time) int {
	n := 0
	for _, recs := range l.history {
		for _, r := range recs {
			if !r.Timestamp.Before(cutoff) {
				n++
			}
		}
	}
	return n
}

// prune drops records older than the longest window any policy can inspect.
// Callers must hold l.mu.
func (l *Limiter) prune(now time.Time) {
	longest := 24 * time.Hour
	if l.cfg.DuplicateWindow > longest {
		longest = l.cfg.DuplicateWindow
	}
	if l.cfg.BurstWindow > longest {
		longest = l.cfg.BurstWindow
	}
	cutoff := now.Add(-longest)

	for op, recs := range l.history {
		keep := recs[:0]
		for _, r := range recs {
			if !r.Timestamp.Before(cutoff) {
				keep = append(keep, r)
			}
		}
		if len(keep) == 0 {
			delete(l.history, op)
			continue
		}
		l.history[op] = keep
	}
}
