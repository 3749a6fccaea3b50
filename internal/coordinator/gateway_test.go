package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m0nk111/agent-forge-sub002/internal/config"
	"github.com/m0nk111/agent-forge-sub002/internal/forge"
	"github.com/m0nk111/agent-forge-sub002/internal/plan"
	"github.com/m0nk111/agent-forge-sub002/internal/ratelimit"
	"github.com/m0nk111/agent-forge-sub002/internal/schedule"
	"github.com/m0nk111/agent-forge-sub002/internal/triage"
)

// fakeForge records mutations and suppresses duplicate comment bodies the
// way the real client's limiter does.
type fakeForge struct {
	mu        sync.Mutex
	comments  []string
	labels    []string
	assignees []string
	created   []forge.NewIssue
	issues    []forge.Issue
	seen      map[string]bool
}

func newFakeForge() *fakeForge {
	return &fakeForge{seen: make(map[string]bool)}
}

func (f *fakeForge) CommentIssue(_ context.Context, _ forge.Repo, _ int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fp := ratelimit.Fingerprint(body)
	if f.seen[fp] {
		return &forge.RateLimitedError{Op: "issue_comment", Reason: "duplicate content"}
	}
	f.seen[fp] = true
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeForge) AddLabels(_ context.Context, _ forge.Repo, _ int, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels = append(f.labels, labels...)
	return nil
}

func (f *fakeForge) SetAssignees(_ context.Context, _ forge.Repo, _ int, assignees []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignees = append(f.assignees, assignees...)
	return nil
}

func (f *fakeForge) CreateIssue(_ context.Context, repo forge.Repo, issue forge.NewIssue) (*forge.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, issue)
	return &forge.Issue{Repo: repo, Number: 1000 + len(f.created), Title: issue.Title}, nil
}

func (f *fakeForge) ListIssues(_ context.Context, _ forge.Repo, _ forge.IssueFilter) ([]forge.Issue, error) {
	return f.issues, nil
}

func newTestGateway(f *fakeForge, s *schedule.Scheduler, store *plan.Store) *Gateway {
	triager := RuleTriager{Rules: triage.NewAnalyzer(config.ComplexityConfig{SimpleThreshold: 10, ComplexThreshold: 25})}
	planner := plan.NewPlanner(config.PlannerConfig{DefaultTaskEffortMinutes: 60}, nil, nil)
	return NewGateway(f, triager, planner, s, store, nil)
}

func simpleIssue() *forge.Issue {
	return &forge.Issue{
		Repo:   forge.Repo{Owner: "o", Name: "r"},
		Number: 7,
		Title:  "Fix typo in README",
		Body:   "Change 'teh' to 'the'",
	}
}

func complexIssue() *forge.Issue {
	body := `This refactor spans the whole backend.

- [ ] untangle session handling in auth.py
- [ ] split query helpers out of db.py
- [ ] extract validation from api.py
- [ ] update call sites in auth.py
- [ ] update call sites in db.py
- [ ] adjust api.py routes
- [ ] update integration fixtures
`
	return &forge.Issue{
		Repo:   forge.Repo{Owner: "o", Name: "r"},
		Number: 8,
		Title:  "Restructure backend modules",
		Body:   body,
		Labels: []string{"refactor"},
	}
}

func TestHandle_SimpleDelegation(t *testing.T) {
	t.Parallel()

	f := newFakeForge()
	s := schedule.NewScheduler(nil)
	require.NoError(t, s.RegisterAgent(schedule.Capability{
		AgentID: "dev-1", Role: schedule.RoleDeveloper, MaxConcurrent: 2, Available: true,
	}))
	g := newTestGateway(f, s, nil)

	d, err := g.Handle(context.Background(), simpleIssue())
	require.NoError(t, err)

	assert.Equal(t, RouteDelegateSimple, d.Route)
	assert.Equal(t, triage.LevelSimple, d.Analysis.Level)
	assert.Equal(t, 0, d.Analysis.Score)
	assert.Equal(t, "dev-1", d.AssignedAgent)
	assert.Equal(t, []string{"dev-1"}, f.assignees)

	require.Len(t, f.comments, 1)
	assert.Contains(t, f.comments[0], "DELEGATE_SIMPLE")
	assert.Empty(t, f.created, "no sub-tasks for simple issues")
}

// Handling the same issue twice posts at most one decision comment.
func TestHandle_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFakeForge()
	s := schedule.NewScheduler(nil)
	require.NoError(t, s.RegisterAgent(schedule.Capability{
		AgentID: "dev-1", Role: schedule.RoleDeveloper, MaxConcurrent: 2, Available: true,
	}))
	g := newTestGateway(f, s, nil)

	_, err := g.Handle(context.Background(), simpleIssue())
	require.NoError(t, err)
	_, err = g.Handle(context.Background(), simpleIssue())
	require.NoError(t, err, "duplicate suppression is not a failure")

	assert.Len(t, f.comments, 1)
}

func TestHandle_UncertainGetsEscalationCapability(t *testing.T) {
	t.Parallel()

	f := newFakeForge()
	s := schedule.NewScheduler(nil)
	require.NoError(t, s.RegisterAgent(schedule.Capability{
		AgentID: "dev-1", Role: schedule.RoleDeveloper, MaxConcurrent: 2, Available: true,
	}))
	g := newTestGateway(f, s, nil)

	issue := simpleIssue()
	issue.Title = "Investigate flaky checkout flow"
	issue.Body = "Sometimes the cart empties itself.\n\n- [ ] reproduce\n- [ ] bisect\n\nSee checkout.go and cart.go plus session.go."

	d, err := g.Handle(context.Background(), issue)
	require.NoError(t, err)
	assert.Equal(t, RouteDelegateWithEscalation, d.Route)
	assert.Equal(t, triage.LevelUncertain, d.Analysis.Level)
}

func TestHandle_NoWorkerLabelsForHumans(t *testing.T) {
	t.Parallel()

	f := newFakeForge()
	g := newTestGateway(f, schedule.NewScheduler(nil), nil)

	d, err := g.Handle(context.Background(), simpleIssue())
	require.NoError(t, err)

	assert.Equal(t, RouteDelegateFailed, d.Route)
	assert.Empty(t, d.AssignedAgent)
	assert.Contains(t, f.labels, LabelNeedsCoordination)
	require.Len(t, f.comments, 1)
	assert.Contains(t, f.comments[0], "delegate_failed")
}

func TestHandle_ComplexOrchestration(t *testing.T) {
	t.Parallel()

	f := newFakeForge()
	s := schedule.NewScheduler(nil)
	store := plan.NewStore(t.TempDir())
	g := newTestGateway(f, s, store)

	d, err := g.Handle(context.Background(), complexIssue())
	require.NoError(t, err)

	assert.Equal(t, RouteOrchestrate, d.Route)
	assert.Equal(t, triage.LevelComplex, d.Analysis.Level)
	assert.GreaterOrEqual(t, d.Analysis.Score, 26)
	require.NotEmpty(t, d.PlanID)

	// The plan is persisted and activated.
	saved, err := store.Load(d.PlanID)
	require.NoError(t, err)
	require.Len(t, saved.Tasks, 3)
	assert.Equal(t, 3, saved.PlanPriority, "refactor label maps to priority 3")
	assert.Subset(t, saved.RequiredRoles, []string{"coordinator", "developer"})

	hasEdge := false
	for _, task := range saved.Tasks {
		if len(task.DependsOn) > 0 {
			hasEdge = true
		}
	}
	assert.True(t, hasEdge, "dependency graph has at least one edge")

	assert.Len(t, f.created, 3, "one child issue per sub-task")
	for _, child := range f.created {
		assert.Contains(t, child.Body, d.PlanID)
		assert.Contains(t, child.Labels, "sub-task")
	}

	prog, err := s.Progress(d.PlanID)
	require.NoError(t, err)
	assert.Equal(t, 3, prog.Counts[plan.StatusPending])
}

func TestShouldEscalate(t *testing.T) {
	t.Parallel()
	e := NewEscalator(newFakeForge(), nil, nil)

	tests := []struct {
		name string
		ec   EscalationContext
		want bool
	}{
		{name: "under all thresholds", ec: EscalationContext{FilesAffected: 5, ComponentsTouched: 3, FailedAttempts: 1, MinutesSpent: 30}, want: false},
		{name: "too many files", ec: EscalationContext{FilesAffected: 6}, want: true},
		{name: "too many components", ec: EscalationContext{ComponentsTouched: 4}, want: true},
		{name: "repeated failures", ec: EscalationContext{FailedAttempts: 2}, want: true},
		{name: "too long", ec: EscalationContext{MinutesSpent: 31}, want: true},
		{name: "architecture change", ec: EscalationContext{ArchitectureChange: true}, want: true},
		{name: "stuck", ec: EscalationContext{Stuck: true, Blocker: "schema undecided"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, reasons := e.ShouldEscalate(tt.ec)
			assert.Equal(t, tt.want, got)
			if tt.want {
				assert.NotEmpty(t, reasons)
			}
		})
	}
}

func TestEscalate_WithGateway(t *testing.T) {
	t.Parallel()

	f := newFakeForge()
	s := schedule.NewScheduler(nil)
	require.NoError(t, s.RegisterAgent(schedule.Capability{
		AgentID: "dev-1", Role: schedule.RoleDeveloper, MaxConcurrent: 2, Available: true,
	}))
	e := NewEscalator(f, newTestGateway(f, s, nil), nil)

	res, err := e.Escalate(context.Background(), simpleIssue(), EscalationContext{Stuck: true})
	require.NoError(t, err)
	assert.Equal(t, ResultWaitForCoordinator, res)

	// Escalation comment plus the gateway's decision comment.
	require.Len(t, f.comments, 2)
	assert.Contains(t, f.comments[0], "Escalation")
}

func TestEscalate_WithoutGatewayAborts(t *testing.T) {
	t.Parallel()

	f := newFakeForge()
	e := NewEscalator(f, nil, nil)

	res, err := e.Escalate(context.Background(), simpleIssue(), EscalationContext{FailedAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, ResultAbort, res)
	assert.Contains(t, f.labels, LabelNeedsCoordination)
}

func TestEscalate_NoTriggerContinues(t *testing.T) {
	t.Parallel()

	f := newFakeForge()
	e := NewEscalator(f, nil, nil)

	res, err := e.Escalate(context.Background(), simpleIssue(), EscalationContext{FilesAffected: 1})
	require.NoError(t, err)
	assert.Equal(t, ResultContinue, res)
	assert.Empty(t, f.comments)
}

// runnerFunc adapts a func to TaskRunner.
type runnerFunc func(ctx context.Context, a schedule.TaskAssignment) error

func (fn runnerFunc) RunTask(ctx context.Context, a schedule.TaskAssignment) error {
	return fn(ctx, a)
}

func TestPoll_OrchestratesAndDispatches(t *testing.T) {
	t.Parallel()

	f := newFakeForge()
	f.issues = []forge.Issue{*complexIssue()}

	s := schedule.NewScheduler(nil)
	require.NoError(t, s.RegisterAgent(schedule.Capability{
		AgentID: "dev-1", Role: schedule.RoleDeveloper, MaxConcurrent: 4, Available: true,
	}))
	g := newTestGateway(f, s, nil)

	var (
		mu  sync.Mutex
		ran []string
	)
	runner := runnerFunc(func(_ context.Context, a schedule.TaskAssignment) error {
		mu.Lock()
		ran = append(ran, a.TaskID)
		mu.Unlock()
		return nil
	})

	loop := NewLoop(LoopConfig{Repo: forge.Repo{Owner: "o", Name: "r"}, BotUser: "bot"}, f, g, s, runner, nil)

	require.NoError(t, loop.Poll(context.Background()))

	// One pass dispatches the ready frontier; implement has no deps, test
	// and document wait for it.
	mu.Lock()
	assert.Equal(t, []string{"task-1"}, ran)
	mu.Unlock()

	// The next pass picks up the now-unblocked tasks.
	require.NoError(t, loop.Poll(context.Background()))
	mu.Lock()
	assert.ElementsMatch(t, []string{"task-1", "task-2", "task-3"}, ran)
	mu.Unlock()
}

func TestPoll_SkipsNeedsCoordination(t *testing.T) {
	t.Parallel()

	f := newFakeForge()
	issue := *simpleIssue()
	issue.Labels = []string{LabelNeedsCoordination}
	f.issues = []forge.Issue{issue}

	s := schedule.NewScheduler(nil)
	g := newTestGateway(f, s, nil)
	loop := NewLoop(LoopConfig{Repo: forge.Repo{Owner: "o", Name: "r"}}, f, g, s, nil, nil)

	require.NoError(t, loop.Poll(context.Background()))
	assert.Empty(t, f.comments)
}

func TestDecisionCommentDeterministic(t *testing.T) {
	t.Parallel()

	d := Decision{
		Route: RouteDelegateSimple,
		Analysis: triage.Analysis{
			Level: triage.LevelSimple, Score: 0, Confidence: 0.9, Reasoning: "score 0 -> simple",
		},
		AssignedAgent: "dev-1",
	}
	assert.Equal(t, decisionComment(d), decisionComment(d))
	assert.Contains(t, decisionComment(d), fmt.Sprintf("**Route**: %s", RouteDelegateSimple))
}
