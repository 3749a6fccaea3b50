// Package plan holds the execution-plan data model: sub-tasks with a
// dependency DAG, plan lifecycle status, and persistence.
package plan

import (
	"fmt"
	"time"
)

// TaskStatus represents the current state of a sub-task.
type TaskStatus string

const (
	// StatusPending indicates the task has not been assigned yet.
	StatusPending TaskStatus = "pending"

	// StatusInProgress indicates an agent is working on the task.
	StatusInProgress TaskStatus = "in_progress"

	// StatusCompleted indicates the task finished successfully.
	StatusCompleted TaskStatus = "completed"

	// StatusBlocked indicates the task cannot proceed; Blocker says why.
	StatusBlocked TaskStatus = "blocked"

	// StatusFailed indicates the task terminally failed.
	StatusFailed TaskStatus = "failed"
)

// PlanStatus represents the lifecycle state of an execution plan.
type PlanStatus string

const (
	PlanPlanning  PlanStatus = "planning"
	PlanExecuting PlanStatus = "executing"
	PlanPaused    PlanStatus = "paused"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
)

// Effort bounds for sanitized task estimates, in minutes.
const (
	MinEffortMinutes = 1
	MaxEffortMinutes = 480
)

// SubTask is one unit of work inside an execution plan.
type SubTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// Priority ranges 1 (lowest) to 5 (highest).
	Priority int `json:"priority"`

	// EstimatedEffort is in minutes, clamped to [MinEffortMinutes, MaxEffortMinutes].
	EstimatedEffort int `json:"estimated_effort_min"`

	// DependsOn lists sibling task IDs that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`

	Status     TaskStatus `json:"status"`
	AssignedTo string     `json:"assigned_to,omitempty"`

	// Blocker describes why the task is blocked. Set when Status was ever
	// StatusBlocked.
	Blocker string `json:"blocker,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ExecutionPlan is a DAG of sub-tasks derived from one issue.
type ExecutionPlan struct {
	PlanID string `json:"plan_id"`

	// Repo and IssueNumber identify the source issue.
	Repo        string `json:"repo"`
	IssueNumber int    `json:"issue_number"`
	IssueTitle  string `json:"issue_title"`

	Tasks []*SubTask `json:"tasks"`

	Status PlanStatus `json:"status"`

	// PlanPriority ranges 1 to 5, derived from issue labels.
	PlanPriority int `json:"plan_priority"`

	// RequiredRoles is inferred from task titles.
	RequiredRoles []string `json:"required_roles,omitempty"`

	Labels    []string  `json:"labels,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Task returns the sub-task with the given ID, or nil.
func (p *ExecutionPlan) Task(id string) *SubTask {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Validate checks the structural invariants: unique IDs, no self-edges,
// sibling-only dependencies, and an acyclic dependency graph.
func (p *ExecutionPlan) Validate() error {
	ids := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if t.ID == "" {
			return fmt.Errorf("plan %s: task with empty ID", p.PlanID)
		}
		if ids[t.ID] {
			return fmt.Errorf("plan %s: duplicate task ID %q", p.PlanID, t.ID)
		}
		ids[t.ID] = true
	}

	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return fmt.Errorf("plan %s: task %q depends on itself", p.PlanID, t.ID)
			}
			if !ids[dep] {
				return fmt.Errorf("plan %s: task %q depends on unknown task %q", p.PlanID, t.ID, dep)
			}
		}
	}

	if cycle := p.findCycle(); cycle != "" {
		return fmt.Errorf("plan %s: dependency cycle involving task %q", p.PlanID, cycle)
	}
	return nil
}

// findCycle runs a colored DFS over the dependency graph and returns the ID
// of a task on a cycle, or "".
func (p *ExecutionPlan) findCycle() string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // finished
	)
	color := make(map[string]int, len(p.Tasks))

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		if t := p.Task(id); t != nil {
			for _, dep := range t.DependsOn {
				switch color[dep] {
				case gray:
					return true
				case white:
					if visit(dep) {
						return true
					}
				}
			}
		}
		color[id] = black
		return false
	}

	for _, t := range p.Tasks {
		if color[t.ID] == white && visit(t.ID) {
			return t.ID
		}
	}
	return ""
}

// CompletionPercentage returns the share of completed tasks in [0,100].
// An empty plan counts as 100% complete.
func (p *ExecutionPlan) CompletionPercentage() float64 {
	if len(p.Tasks) == 0 {
		return 100
	}
	done := 0
	for _, t := range p.Tasks {
		if t.Status == StatusCompleted {
			done++
		}
	}
	return float64(done) / float64(len(p.Tasks)) * 100
}

// TotalEstimatedEffort sums the task estimates in minutes.
func (p *ExecutionPlan) TotalEstimatedEffort() int {
	total := 0
	for _, t := range p.Tasks {
		total += t.EstimatedEffort
	}
	return total
}

// AllCompleted reports whether every task reached StatusCompleted.
func (p *ExecutionPlan) AllCompleted() bool {
	for _, t := range p.Tasks {
		if t.Status != StatusCompleted {
			return false
		}
	}
	return len(p.Tasks) > 0
}

// AdaptForBlocker inserts a high-priority "resolve blocker" task in front of
// a blocked task: the blocked task gains a dependency on the new task,
// records its blocker, and goes back to pending. The new task is returned.
func (p *ExecutionPlan) AdaptForBlocker(taskID, blocker string) (*SubTask, error) {
	blocked := p.Task(taskID)
	if blocked == nil {
		return nil, fmt.Errorf("plan %s: no task %q to adapt", p.PlanID, taskID)
	}

	resolver := &SubTask{
		ID:              taskID + "-blocker",
		Title:           fmt.Sprintf("Resolve blocker for %q", blocked.Title),
		Description:     blocker,
		Priority:        5,
		EstimatedEffort: 30,
		Status:          StatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	if p.Task(resolver.ID) != nil {
		return nil, fmt.Errorf("plan %s: task %q already has a blocker task", p.PlanID, taskID)
	}

	blocked.Blocker = blocker
	blocked.Status = StatusPending
	blocked.AssignedTo = ""
	blocked.DependsOn = append(blocked.DependsOn, resolver.ID)

	p.Tasks = append(p.Tasks, resolver)
	return resolver, nil
}
