package review

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m0nk111/agent-forge-sub002/internal/forge"
)

// lockEntry records who holds a PR lock and since when.
type lockEntry struct {
	holder     string
	acquiredAt time.Time
}

// LockSet is the advisory per-PR review lock. Acquire is a try-acquire;
// contention yields false rather than a wait, so a second workflow run on
// the same PR skips instead of blocking.
type LockSet struct {
	mu   sync.Mutex
	held map[string]lockEntry
}

// NewLockSet creates an empty lock set.
func NewLockSet() *LockSet {
	return &LockSet{held: make(map[string]lockEntry)}
}

// Acquire tries to take the lock for one PR. On success it returns a
// holder token that must be passed to Release.
func (l *LockSet) Acquire(repo forge.Repo, number int) (string, bool) {
	key := repo.IssueTarget(number)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return "", false
	}
	holder := uuid.NewString()
	l.held[key] = lockEntry{holder: holder, acquiredAt: time.Now()}
	return holder, true
}

// Release frees the lock if the token matches the current holder. Releasing
// with a stale token is a no-op, so a late release cannot free a lock that
// was re-acquired.
func (l *LockSet) Release(repo forge.Repo, number int, holder string) {
	key := repo.IssueTarget(number)

	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.held[key]; ok && entry.holder == holder {
		delete(l.held, key)
	}
}

// Held reports whether the PR lock is currently taken.
func (l *LockSet) Held(repo forge.Repo, number int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[repo.IssueTarget(number)]
	return ok
}
