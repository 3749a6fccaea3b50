package review

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m0nk111/agent-forge-sub002/internal/config"
	"github.com/m0nk111/agent-forge-sub002/internal/forge"
)

// fakeWorkflowForge records workflow side effects. AddComment suppresses
// duplicate bodies the way the real client's limiter does.
type fakeWorkflowForge struct {
	mu sync.Mutex

	pr    *forge.PullRequest
	files []forge.PRFile

	comments  []string
	seen      map[string]bool
	labels    []string
	reviewers []string
	merged    bool
	mergeOpts forge.MergeOpts
	drafted   bool
	closed    bool
}

func newFakeWorkflowForge(pr *forge.PullRequest, files []forge.PRFile) *fakeWorkflowForge {
	return &fakeWorkflowForge{pr: pr, files: files, seen: make(map[string]bool)}
}

func (f *fakeWorkflowForge) GetPR(context.Context, forge.Repo, int) (*forge.PullRequest, error) {
	snapshot := *f.pr
	return &snapshot, nil
}

func (f *fakeWorkflowForge) ListPRFiles(context.Context, forge.Repo, int) ([]forge.PRFile, error) {
	return f.files, nil
}

func (f *fakeWorkflowForge) AddComment(_ context.Context, _ forge.Repo, _ int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[body] {
		return &forge.RateLimitedError{Op: "pr_comment", Reason: "duplicate content"}
	}
	f.seen[body] = true
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeWorkflowForge) AddLabels(_ context.Context, _ forge.Repo, _ int, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels = append(f.labels, labels...)
	return nil
}

func (f *fakeWorkflowForge) RequestReviewers(_ context.Context, _ forge.Repo, _ int, reviewers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviewers = append(f.reviewers, reviewers...)
	return nil
}

func (f *fakeWorkflowForge) MergePR(_ context.Context, _ forge.Repo, _ int, opts forge.MergeOpts) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merged = true
	f.mergeOpts = opts
	return nil
}

func (f *fakeWorkflowForge) ConvertPRToDraft(context.Context, forge.Repo, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafted = true
	return nil
}

func (f *fakeWorkflowForge) ClosePR(context.Context, forge.Repo, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func workflowPR() *forge.PullRequest {
	return &forge.PullRequest{
		Repo:      forge.Repo{Owner: "o", Name: "r"},
		Number:    12,
		Title:     "Add request retries",
		Author:    "dev-agent",
		State:     "open",
		CreatedAt: time.Now().Add(-time.Hour),
	}
}

func newTestWorkflow(f *fakeWorkflowForge, reviewCfg config.ReviewConfig) *Workflow {
	engine := NewEngine(reviewCfg, nil, nil, "", nil)
	return NewWorkflow(
		config.ForgeConfig{BotUser: "forge-bot"},
		reviewCfg,
		f, engine, NewLockSet(), nil,
	)
}

func TestWorkflow_CleanPRAutoMerges(t *testing.T) {
	t.Parallel()

	files := []forge.PRFile{{
		Filename: "retry.go",
		Patch:    "@@ -1,1 +1,4 @@\n+// Retry wraps fn with backoff.\n+func Retry(fn func() error) error {\n+\treturn fn()\n+}\n",
	}}
	f := newFakeWorkflowForge(workflowPR(), files)
	w := newTestWorkflow(f, config.ReviewConfig{
		AutoMergeIfApproved: true,
		AutoLabel:           true,
		MergeMethod:         "squash",
	})

	out, err := w.Run(context.Background(), f.pr.Repo, f.pr.Number)
	require.NoError(t, err)

	assert.Equal(t, StateMerged, out.State)
	assert.Equal(t, AutoMerge, out.Decision.Recommendation)
	assert.True(t, f.merged)
	assert.Equal(t, forge.MergeMethodSquash, f.mergeOpts.Method)
	assert.ElementsMatch(t, []string{LabelApproved, LabelReadyForMerge, LabelStaticReviewed}, f.labels)
	require.Len(t, f.comments, 1)
	assert.Contains(t, f.comments[0], "approved")
	assert.False(t, f.drafted)
	assert.False(t, f.closed)
}

func TestWorkflow_CriticalIssuesDraftThePR(t *testing.T) {
	t.Parallel()

	files := []forge.PRFile{{
		Filename: "handler.py",
		Patch:    "@@ -1,1 +1,3 @@\n+except ValueError:\n+    pass\n",
	}}
	f := newFakeWorkflowForge(workflowPR(), files)
	w := newTestWorkflow(f, config.ReviewConfig{AutoMergeIfApproved: true, AutoLabel: true})

	out, err := w.Run(context.Background(), f.pr.Repo, f.pr.Number)
	require.NoError(t, err)

	assert.Equal(t, StateDrafted, out.State)
	assert.Equal(t, DoNotMerge, out.Decision.Recommendation)
	assert.True(t, f.drafted)
	assert.False(t, f.merged)
	assert.Contains(t, f.labels, LabelChangesRequested)
	assert.Contains(t, f.labels, LabelCriticalIssues)

	// Review comment plus the structured critical-issues comment.
	require.Len(t, f.comments, 2)
	assert.Contains(t, f.comments[1], "converted to a draft")
	assert.Contains(t, f.comments[1], "handler.py")
}

func TestWorkflow_ConcurrentRunSkips(t *testing.T) {
	t.Parallel()

	f := newFakeWorkflowForge(workflowPR(), nil)
	w := newTestWorkflow(f, config.ReviewConfig{})

	// Simulate another runner holding the lock.
	_, ok := w.locks.Acquire(f.pr.Repo, f.pr.Number)
	require.True(t, ok)

	out, err := w.Run(context.Background(), f.pr.Repo, f.pr.Number)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, SkipConcurrent, out.Reason)
	assert.Empty(t, f.comments)
}

func TestWorkflow_SelfReviewSkipsAndReleasesLock(t *testing.T) {
	t.Parallel()

	pr := workflowPR()
	pr.Author = "forge-bot"
	f := newFakeWorkflowForge(pr, nil)
	w := newTestWorkflow(f, config.ReviewConfig{})

	out, err := w.Run(context.Background(), pr.Repo, pr.Number)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, SkipSelfReview, out.Reason)

	// The lock must be free for the next runner.
	assert.False(t, w.locks.Held(pr.Repo, pr.Number))
}

func TestWorkflow_RerunIsIdempotent(t *testing.T) {
	t.Parallel()

	files := []forge.PRFile{{
		Filename: "retry.go",
		Patch:    "@@ -1,1 +1,2 @@\n+// tweak\n",
	}}
	f := newFakeWorkflowForge(workflowPR(), files)
	w := newTestWorkflow(f, config.ReviewConfig{})

	first, err := w.Run(context.Background(), f.pr.Repo, f.pr.Number)
	require.NoError(t, err)
	second, err := w.Run(context.Background(), f.pr.Repo, f.pr.Number)
	require.NoError(t, err)

	assert.Equal(t, first.State, second.State)
	// The identical review comment is suppressed the second time.
	assert.Len(t, f.comments, 1)
}

func TestWorkflow_WarningsParkWithoutMergeFlag(t *testing.T) {
	t.Parallel()

	files := []forge.PRFile{{
		Filename: "main.go",
		Patch:    "@@ -1,1 +1,2 @@\n+fmt.Println(\"debug\")\n",
	}}
	f := newFakeWorkflowForge(workflowPR(), files)
	w := newTestWorkflow(f, config.ReviewConfig{AutoMergeIfApproved: true})

	out, err := w.Run(context.Background(), f.pr.Repo, f.pr.Number)
	require.NoError(t, err)

	assert.Equal(t, MergeWithConsideration, out.Decision.Recommendation)
	assert.Equal(t, StateParked, out.State)
	assert.False(t, f.merged)
}

func TestWorkflow_MergeWithSuggestionsEnabled(t *testing.T) {
	t.Parallel()

	files := []forge.PRFile{{
		Filename: "main.go",
		Patch:    "@@ -1,1 +1,2 @@\n+fmt.Println(\"debug\")\n",
	}}
	f := newFakeWorkflowForge(workflowPR(), files)
	w := newTestWorkflow(f, config.ReviewConfig{MergeWithSuggestions: true})

	out, err := w.Run(context.Background(), f.pr.Repo, f.pr.Number)
	require.NoError(t, err)
	assert.Equal(t, StateMerged, out.State)
	assert.True(t, f.merged)
}

func TestWorkflow_ReviewerAssignmentSkipsAuthor(t *testing.T) {
	t.Parallel()

	f := newFakeWorkflowForge(workflowPR(), nil)
	w := newTestWorkflow(f, config.ReviewConfig{
		AutoAssignReviewers: true,
		Reviewers:           []string{"dev-agent", "alice"},
	})

	_, err := w.Run(context.Background(), f.pr.Repo, f.pr.Number)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, f.reviewers)
}

func TestWorkflow_ComplexConflictClosesPR(t *testing.T) {
	t.Parallel()

	unmergeable := false
	pr := workflowPR()
	pr.Mergeable = &unmergeable
	pr.CommitsBehind = 60
	pr.CreatedAt = time.Now().Add(-30 * 24 * time.Hour)

	files := make([]forge.PRFile, 6)
	for i := range files {
		files[i] = forge.PRFile{Filename: "pkg/file" + strings.Repeat("x", i) + ".go", Additions: 150}
	}
	f := newFakeWorkflowForge(pr, files)
	w := newTestWorkflow(f, config.ReviewConfig{AutoMergeIfApproved: true})

	out, err := w.Run(context.Background(), pr.Repo, pr.Number)
	require.NoError(t, err)

	assert.Equal(t, StateParked, out.State)
	assert.Equal(t, string(StrategyCloseAndRecreate), out.Reason)
	assert.True(t, f.closed)
	assert.False(t, f.merged)
	require.Len(t, f.comments, 1)
	assert.Contains(t, f.comments[0], "merge conflicts too complex")
}

func TestWorkflow_SmallConflictProceedsToReview(t *testing.T) {
	t.Parallel()

	unmergeable := false
	pr := workflowPR()
	pr.Mergeable = &unmergeable

	files := []forge.PRFile{{
		Filename: "readme.md",
		Additions: 3,
		Patch:    "@@ -1,1 +1,2 @@\n+Updated.\n",
	}}
	f := newFakeWorkflowForge(pr, files)
	w := newTestWorkflow(f, config.ReviewConfig{AutoMergeIfApproved: true})

	out, err := w.Run(context.Background(), pr.Repo, pr.Number)
	require.NoError(t, err)

	assert.False(t, f.closed)
	assert.Equal(t, StateMerged, out.State)
}
