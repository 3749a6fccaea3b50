package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPlan builds a plan from (id, deps...) tuples for validation tests.
func newPlan(tasks ...*SubTask) *ExecutionPlan {
	return &ExecutionPlan{
		PlanID: "p1",
		Status: PlanPlanning,
		Tasks:  tasks,
	}
}

func task(id string, deps ...string) *SubTask {
	return &SubTask{
		ID:        id,
		Title:     "Task " + id,
		Priority:  3,
		Status:    StatusPending,
		DependsOn: deps,
		CreatedAt: time.Now().UTC(),
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		plan    *ExecutionPlan
		wantErr string
	}{
		{
			name: "valid dag",
			plan: newPlan(task("a"), task("b", "a"), task("c", "a", "b")),
		},
		{
			name:    "self edge",
			plan:    newPlan(task("a", "a")),
			wantErr: "depends on itself",
		},
		{
			name:    "unknown dependency",
			plan:    newPlan(task("a", "ghost")),
			wantErr: "unknown task",
		},
		{
			name:    "duplicate id",
			plan:    newPlan(task("a"), task("a")),
			wantErr: "duplicate task ID",
		},
		{
			name:    "two task cycle",
			plan:    newPlan(task("a", "b"), task("b", "a")),
			wantErr: "cycle",
		},
		{
			name:    "long cycle",
			plan:    newPlan(task("a", "c"), task("b", "a"), task("c", "b")),
			wantErr: "cycle",
		},
		{
			name:    "empty id",
			plan:    newPlan(task("")),
			wantErr: "empty ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.plan.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestCompletionPercentage(t *testing.T) {
	t.Parallel()

	p := newPlan(task("a"), task("b"), task("c"), task("d"))
	assert.Equal(t, 0.0, p.CompletionPercentage())

	p.Tasks[0].Status = StatusCompleted
	assert.Equal(t, 25.0, p.CompletionPercentage())

	for _, tk := range p.Tasks {
		tk.Status = StatusCompleted
	}
	assert.Equal(t, 100.0, p.CompletionPercentage())
	assert.True(t, p.AllCompleted())
}

func TestTotalEstimatedEffort(t *testing.T) {
	t.Parallel()

	p := newPlan(task("a"), task("b"))
	p.Tasks[0].EstimatedEffort = 60
	p.Tasks[1].EstimatedEffort = 30
	assert.Equal(t, 90, p.TotalEstimatedEffort())
}

func TestAdaptForBlocker(t *testing.T) {
	t.Parallel()

	p := newPlan(task("a"), task("b", "a"))
	p.Tasks[1].Status = StatusBlocked
	p.Tasks[1].AssignedTo = "agent-1"

	resolver, err := p.AdaptForBlocker("b", "waiting on credentials")
	require.NoError(t, err)

	assert.Equal(t, "b-blocker", resolver.ID)
	assert.Equal(t, 5, resolver.Priority)
	assert.Equal(t, StatusPending, resolver.Status)

	blocked := p.Task("b")
	assert.Equal(t, StatusPending, blocked.Status)
	assert.Empty(t, blocked.AssignedTo)
	assert.Equal(t, "waiting on credentials", blocked.Blocker)
	assert.Contains(t, blocked.DependsOn, "b-blocker")

	require.NoError(t, p.Validate(), "adapted plan stays a valid DAG")

	// A second adaptation for the same task is rejected.
	_, err = p.AdaptForBlocker("b", "again")
	assert.ErrorContains(t, err, "already has a blocker task")

	_, err = p.AdaptForBlocker("ghost", "nope")
	assert.ErrorContains(t, err, "no task")
}
