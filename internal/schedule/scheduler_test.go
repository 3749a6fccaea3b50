package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m0nk111/agent-forge-sub002/internal/plan"
)

func newTask(id, title string, priority int, deps ...string) *plan.SubTask {
	return &plan.SubTask{
		ID:        id,
		Title:     title,
		Priority:  priority,
		Status:    plan.StatusPending,
		DependsOn: deps,
		CreatedAt: time.Now().UTC(),
	}
}

func newScheduledPlan(id string, priority int, tasks ...*plan.SubTask) *plan.ExecutionPlan {
	return &plan.ExecutionPlan{
		PlanID:       id,
		Status:       plan.PlanPlanning,
		PlanPriority: priority,
		Tasks:        tasks,
		CreatedAt:    time.Now().UTC(),
	}
}

func developer(id string, capacity int) Capability {
	return Capability{AgentID: id, Role: RoleDeveloper, MaxConcurrent: capacity, Available: true}
}

func TestRegisterAgent(t *testing.T) {
	t.Parallel()
	s := NewScheduler(nil)

	require.NoError(t, s.RegisterAgent(developer("dev-1", 2)))
	assert.Error(t, s.RegisterAgent(developer("dev-1", 2)), "duplicate registration rejected")
	assert.Error(t, s.RegisterAgent(Capability{}), "empty ID rejected")

	got, ok := s.Agent("dev-1")
	require.True(t, ok)
	assert.Equal(t, RoleDeveloper, got.Role)

	s.DeregisterAgent("dev-1")
	_, ok = s.Agent("dev-1")
	assert.False(t, ok)
}

func TestListAvailable(t *testing.T) {
	t.Parallel()
	s := NewScheduler(nil)

	require.NoError(t, s.RegisterAgent(Capability{AgentID: "dev-1", Role: RoleDeveloper, Skills: []string{"go"}, MaxConcurrent: 1, Available: true}))
	require.NoError(t, s.RegisterAgent(Capability{AgentID: "test-1", Role: RoleTester, MaxConcurrent: 1, Available: true}))
	require.NoError(t, s.RegisterAgent(Capability{AgentID: "off-1", Role: RoleDeveloper, MaxConcurrent: 1, Available: false}))

	all := s.ListAvailable("", "")
	assert.Len(t, all, 2, "unavailable agents are excluded")

	devs := s.ListAvailable(RoleDeveloper, "")
	require.Len(t, devs, 1)
	assert.Equal(t, "dev-1", devs[0].AgentID)

	goDevs := s.ListAvailable(RoleDeveloper, "go")
	assert.Len(t, goDevs, 1)
	assert.Empty(t, s.ListAvailable(RoleTester, "go"))
}

// Topological assignment: A first, then B (priority 5) before C (priority 4),
// each only after its dependency completed.
func TestNextAssignment_TopologicalOrder(t *testing.T) {
	t.Parallel()
	s := NewScheduler(nil)
	require.NoError(t, s.RegisterAgent(developer("dev-1", 1)))

	p := newScheduledPlan("p1", 3,
		newTask("A", "Implement the base", 3),
		newTask("B", "Implement feature B", 5, "A"),
		newTask("C", "Implement feature C", 4, "A"),
	)
	require.NoError(t, s.AddPlan(p))

	first, ok := s.NextAssignment()
	require.True(t, ok)
	assert.Equal(t, "A", first.TaskID)
	assert.Equal(t, "dev-1", first.AgentID)

	// Agent at capacity and B/C not ready: nothing to assign.
	_, ok = s.NextAssignment()
	assert.False(t, ok)

	require.NoError(t, s.CompleteTask("p1", "A"))

	second, ok := s.NextAssignment()
	require.True(t, ok)
	assert.Equal(t, "B", second.TaskID, "higher priority wins among ready tasks")

	require.NoError(t, s.CompleteTask("p1", "B"))

	third, ok := s.NextAssignment()
	require.True(t, ok)
	assert.Equal(t, "C", third.TaskID)

	require.NoError(t, s.CompleteTask("p1", "C"))

	prog, err := s.Progress("p1")
	require.NoError(t, err)
	assert.Equal(t, plan.PlanCompleted, prog.Status)
	assert.Equal(t, 100.0, prog.CompletionPercentage)
}

func TestNextAssignment_PlanPriorityOrdersPlans(t *testing.T) {
	t.Parallel()
	s := NewScheduler(nil)
	require.NoError(t, s.RegisterAgent(developer("dev-1", 5)))

	low := newScheduledPlan("low", 2, newTask("L1", "Implement low", 3))
	high := newScheduledPlan("high", 5, newTask("H1", "Implement high", 3))
	require.NoError(t, s.AddPlan(low))
	require.NoError(t, s.AddPlan(high))

	a, ok := s.NextAssignment()
	require.True(t, ok)
	assert.Equal(t, "high", a.PlanID)

	b, ok := s.NextAssignment()
	require.True(t, ok)
	assert.Equal(t, "low", b.PlanID)
}

func TestNextAssignment_RoleScoring(t *testing.T) {
	t.Parallel()
	s := NewScheduler(nil)
	// The tester is registered first: a "test" task scores tester and
	// developer equally, and registration order breaks the tie.
	require.NoError(t, s.RegisterAgent(Capability{AgentID: "test-1", Role: RoleTester, MaxConcurrent: 1, Available: true}))
	require.NoError(t, s.RegisterAgent(Capability{AgentID: "res-1", Role: RoleResearcher, MaxConcurrent: 1, Available: true}))
	require.NoError(t, s.RegisterAgent(developer("dev-1", 1)))

	p := newScheduledPlan("p1", 3,
		newTask("t1", "Test the login flow", 4),
		newTask("t2", "Research caching options", 3),
		newTask("t3", "Implement the cache", 2),
	)
	require.NoError(t, s.AddPlan(p))

	byTask := map[string]string{}
	for i := 0; i < 3; i++ {
		a, ok := s.NextAssignment()
		require.True(t, ok)
		byTask[a.TaskID] = a.AgentID
	}

	assert.Equal(t, "test-1", byTask["t1"])
	assert.Equal(t, "res-1", byTask["t2"])
	assert.Equal(t, "dev-1", byTask["t3"])
}

func TestNextAssignment_LoadBalances(t *testing.T) {
	t.Parallel()
	s := NewScheduler(nil)
	require.NoError(t, s.RegisterAgent(developer("dev-1", 2)))
	require.NoError(t, s.RegisterAgent(developer("dev-2", 2)))

	p := newScheduledPlan("p1", 3,
		newTask("a", "Implement a", 3),
		newTask("b", "Implement b", 3),
	)
	require.NoError(t, s.AddPlan(p))

	first, ok := s.NextAssignment()
	require.True(t, ok)
	second, ok := s.NextAssignment()
	require.True(t, ok)
	assert.NotEqual(t, first.AgentID, second.AgentID, "load bonus spreads work")
}

// Invariant: current_task_count always equals the number of in-progress
// tasks assigned to the agent.
func TestAgentCountTracksInProgressTasks(t *testing.T) {
	t.Parallel()
	s := NewScheduler(nil)
	require.NoError(t, s.RegisterAgent(developer("dev-1", 3)))

	p := newScheduledPlan("p1", 3,
		newTask("a", "Implement a", 3),
		newTask("b", "Implement b", 3),
		newTask("c", "Implement c", 3),
	)
	require.NoError(t, s.AddPlan(p))

	for i := 0; i < 3; i++ {
		_, ok := s.NextAssignment()
		require.True(t, ok)
	}
	got, _ := s.Agent("dev-1")
	assert.Equal(t, 3, got.CurrentTasks)

	require.NoError(t, s.CompleteTask("p1", "a"))
	require.NoError(t, s.FailTask("p1", "b", "compile error"))
	got, _ = s.Agent("dev-1")
	assert.Equal(t, 1, got.CurrentTasks)

	require.NoError(t, s.BlockTask("p1", "c", "needs credentials"))
	got, _ = s.Agent("dev-1")
	assert.Equal(t, 0, got.CurrentTasks)
}

func TestFailTask_FailsPlan(t *testing.T) {
	t.Parallel()
	s := NewScheduler(nil)
	require.NoError(t, s.RegisterAgent(developer("dev-1", 1)))

	p := newScheduledPlan("p1", 3, newTask("a", "Implement a", 3))
	require.NoError(t, s.AddPlan(p))

	_, ok := s.NextAssignment()
	require.True(t, ok)
	require.NoError(t, s.FailTask("p1", "a", "boom"))

	prog, err := s.Progress("p1")
	require.NoError(t, err)
	assert.Equal(t, plan.PlanFailed, prog.Status)
	assert.Equal(t, 1, prog.Counts[plan.StatusFailed])
}

func TestBlockTask_AdaptsPlan(t *testing.T) {
	t.Parallel()
	s := NewScheduler(nil)
	require.NoError(t, s.RegisterAgent(developer("dev-1", 1)))

	p := newScheduledPlan("p1", 3, newTask("a", "Implement a", 3))
	require.NoError(t, s.AddPlan(p))

	_, ok := s.NextAssignment()
	require.True(t, ok)
	require.NoError(t, s.BlockTask("p1", "a", "waiting on schema decision"))

	prog, err := s.Progress("p1")
	require.NoError(t, err)
	require.Len(t, prog.Blockers, 1)
	assert.Contains(t, prog.Blockers[0], "waiting on schema decision")

	// The resolver task is scheduled before the formerly blocked one.
	next, ok := s.NextAssignment()
	require.True(t, ok)
	assert.Equal(t, "a-blocker", next.TaskID)

	require.NoError(t, s.CompleteTask("p1", "a-blocker"))

	again, ok := s.NextAssignment()
	require.True(t, ok)
	assert.Equal(t, "a", again.TaskID)
}

func TestProgress_UnknownPlan(t *testing.T) {
	t.Parallel()
	s := NewScheduler(nil)
	_, err := s.Progress("nope")
	assert.Error(t, err)
}

func TestNextAssignment_NoAgents(t *testing.T) {
	t.Parallel()
	s := NewScheduler(nil)
	p := newScheduledPlan("p1", 3, newTask("a", "Implement a", 3))
	require.NoError(t, s.AddPlan(p))

	_, ok := s.NextAssignment()
	assert.False(t, ok)
}
