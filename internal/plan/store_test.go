package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir())

	created := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	started := created.Add(5 * time.Minute)
	p := &ExecutionPlan{
		PlanID:       "plan-123",
		Repo:         "o/r",
		IssueNumber:  7,
		IssueTitle:   "Add export endpoint",
		Status:       PlanExecuting,
		PlanPriority: 4,
		RequiredRoles: []string{
			"developer", "tester",
		},
		Labels:    []string{"bug"},
		CreatedAt: created,
		Tasks: []*SubTask{
			{
				ID:              "task-1",
				Title:           "Implement it",
				Priority:        3,
				EstimatedEffort: 60,
				Status:          StatusInProgress,
				AssignedTo:      "agent-1",
				CreatedAt:       created,
				StartedAt:       &started,
			},
			{
				ID:        "task-2",
				Title:     "Test it",
				Priority:  3,
				DependsOn: []string{"task-1"},
				Status:    StatusPending,
				CreatedAt: created,
			},
		},
	}

	require.NoError(t, s.Save(p))

	got, err := s.Load("plan-123")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestStore_SaveRequiresPlanID(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir())
	err := s.Save(&ExecutionPlan{})
	assert.ErrorContains(t, err, "empty plan ID")
}

func TestStore_LoadMissing(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir())
	_, err := s.Load("nope")
	assert.Error(t, err)
}

func TestStore_ListAndDelete(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir())

	require.NoError(t, s.Save(&ExecutionPlan{PlanID: "a"}))
	require.NoError(t, s.Save(&ExecutionPlan{PlanID: "b"}))

	ids, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	require.NoError(t, s.Delete("a"))
	require.NoError(t, s.Delete("a"), "deleting a missing plan is not an error")

	ids, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestStore_ListMissingDirIsEmpty(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir() + "/never-created")
	ids, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}
