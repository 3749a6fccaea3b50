package review

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m0nk111/agent-forge-sub002/internal/forge"
)

func TestLockSet_AcquireRelease(t *testing.T) {
	t.Parallel()

	locks := NewLockSet()
	repo := forge.Repo{Owner: "o", Name: "r"}

	holder, ok := locks.Acquire(repo, 1)
	require.True(t, ok)
	require.NotEmpty(t, holder)
	assert.True(t, locks.Held(repo, 1))

	// Second acquire on the same PR fails without blocking.
	_, ok = locks.Acquire(repo, 1)
	assert.False(t, ok)

	// A different PR is independent.
	_, ok = locks.Acquire(repo, 2)
	assert.True(t, ok)

	locks.Release(repo, 1, holder)
	assert.False(t, locks.Held(repo, 1))

	_, ok = locks.Acquire(repo, 1)
	assert.True(t, ok)
}

func TestLockSet_StaleReleaseIsNoop(t *testing.T) {
	t.Parallel()

	locks := NewLockSet()
	repo := forge.Repo{Owner: "o", Name: "r"}

	first, ok := locks.Acquire(repo, 5)
	require.True(t, ok)
	locks.Release(repo, 5, first)

	second, ok := locks.Acquire(repo, 5)
	require.True(t, ok)

	// The stale token from the first hold must not free the second hold.
	locks.Release(repo, 5, first)
	assert.True(t, locks.Held(repo, 5))

	locks.Release(repo, 5, second)
	assert.False(t, locks.Held(repo, 5))
}

func TestLockSet_ConcurrentAcquireGrantsOnce(t *testing.T) {
	t.Parallel()

	locks := NewLockSet()
	repo := forge.Repo{Owner: "o", Name: "r"}

	const goroutines = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := locks.Acquire(repo, 9); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
}
