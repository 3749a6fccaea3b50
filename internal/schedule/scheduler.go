package schedule

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/m0nk111/agent-forge-sub002/internal/plan"
)

// TaskAssignment is the scheduler's decision to hand one task to one agent.
type TaskAssignment struct {
	PlanID     string
	TaskID     string
	AgentID    string
	Priority   int
	AssignedAt time.Time
}

// Progress is a snapshot of one plan's execution state.
type Progress struct {
	Counts               map[plan.TaskStatus]int
	Blockers             []string
	CompletionPercentage float64
	Status               plan.PlanStatus
}

// taskRoles maps title verbs to the roles that score +10 for them. Order
// matters: the first matching verb decides.
var taskRoles = []struct {
	verbs []string
	roles []Role
}{
	{verbs: []string{"test", "verify", "validate"}, roles: []Role{RoleTester, RoleDeveloper}},
	{verbs: []string{"review"}, roles: []Role{RoleReviewer}},
	{verbs: []string{"doc", "document", "readme"}, roles: []Role{RoleDocumenter}},
	{verbs: []string{"research", "investigate", "evaluate"}, roles: []Role{RoleResearcher}},
	{verbs: []string{"implement", "create", "add", "build", "fix", "resolve"}, roles: []Role{RoleDeveloper}},
}

// Scheduler owns the agent registry and the active plans. Every read and
// write of plan or counter state happens under its single mutex.
type Scheduler struct {
	mu     sync.Mutex
	reg    *registry
	plans  map[string]*plan.ExecutionPlan
	logger *log.Logger
}

// NewScheduler creates an empty scheduler. logger may be nil.
func NewScheduler(logger *log.Logger) *Scheduler {
	return &Scheduler{
		reg:    newRegistry(),
		plans:  make(map[string]*plan.ExecutionPlan),
		logger: logger,
	}
}

// RegisterAgent adds an agent to the registry.
func (s *Scheduler) RegisterAgent(cap Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.register(cap)
}

// DeregisterAgent removes an agent. Tasks it holds keep their assignment.
func (s *Scheduler) DeregisterAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg.deregister(agentID)
}

// Agent returns a snapshot of one agent's capability record.
func (s *Scheduler) Agent(agentID string) (Capability, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.reg.get(agentID)
	if !ok {
		return Capability{}, false
	}
	return *c, true
}

// ListAvailable returns snapshots of agents with capacity matching role and
// skill, in registration order.
func (s *Scheduler) ListAvailable(role Role, skill string) []Capability {
	s.mu.Lock()
	defer s.mu.Unlock()
	agents := s.reg.listAvailable(role, skill)
	out := make([]Capability, 0, len(agents))
	for _, a := range agents {
		out = append(out, *a)
	}
	return out
}

// AddPlan registers a validated plan for scheduling. The scheduler owns the
// plan from here on; callers must not mutate it concurrently.
func (s *Scheduler) AddPlan(p *plan.ExecutionPlan) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("schedule: adding plan: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plans[p.PlanID]; exists {
		return fmt.Errorf("schedule: plan %q already active", p.PlanID)
	}
	s.plans[p.PlanID] = p
	if s.logger != nil {
		s.logger.Info("plan activated", "plan", p.PlanID, "tasks", len(p.Tasks), "priority", p.PlanPriority)
	}
	return nil
}

// PlanForIssue returns the ID of the active plan derived from an issue, if
// one exists. Used by the coordinator to keep re-handling idempotent.
func (s *Scheduler) PlanForIssue(repo string, issueNumber int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.plans {
		if p.Repo == repo && p.IssueNumber == issueNumber {
			return id, true
		}
	}
	return "", false
}

// RemovePlan drops a plan from scheduling.
func (s *Scheduler) RemovePlan(planID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, planID)
}

// NextAssignment picks the next ready task across all active plans and
// atomically assigns it to the best-scoring agent. It returns false when no
// plan yields an assignment.
func (s *Scheduler) NextAssignment() (TaskAssignment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.plansByPriority() {
		task := firstReadyTask(p)
		if task == nil {
			continue
		}
		agent := s.pickAgent(task)
		if agent == nil {
			continue
		}

		now := time.Now().UTC()
		agent.CurrentTasks++
		task.AssignedTo = agent.AgentID
		task.Status = plan.StatusInProgress
		task.StartedAt = &now
		p.Status = plan.PlanExecuting

		if s.logger != nil {
			s.logger.Info("task assigned",
				"plan", p.PlanID, "task", task.ID, "agent", agent.AgentID)
		}
		return TaskAssignment{
			PlanID:     p.PlanID,
			TaskID:     task.ID,
			AgentID:    agent.AgentID,
			Priority:   task.Priority,
			AssignedAt: now,
		}, true
	}
	return TaskAssignment{}, false
}

// CompleteTask marks a task completed and releases its agent slot. The plan
// transitions to completed when every task has.
func (s *Scheduler) CompleteTask(planID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, task, err := s.lookupTask(planID, taskID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	s.releaseAgent(task)
	task.Status = plan.StatusCompleted
	task.CompletedAt = &now

	if p.AllCompleted() {
		p.Status = plan.PlanCompleted
		if s.logger != nil {
			s.logger.Info("plan completed", "plan", p.PlanID)
		}
	}
	return nil
}

// FailTask marks a task failed with a reason and fails the owning plan.
func (s *Scheduler) FailTask(planID, taskID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, task, err := s.lookupTask(planID, taskID)
	if err != nil {
		return err
	}

	s.releaseAgent(task)
	task.Status = plan.StatusFailed
	task.Blocker = reason
	p.Status = plan.PlanFailed

	if s.logger != nil {
		s.logger.Error("task failed", "plan", planID, "task", taskID, "reason", reason)
	}
	return nil
}

// BlockTask records a blocker and adapts the plan: a high-priority resolver
// task is inserted ahead of the blocked one, which goes back to pending.
func (s *Scheduler) BlockTask(planID, taskID, blocker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, task, err := s.lookupTask(planID, taskID)
	if err != nil {
		return err
	}

	s.releaseAgent(task)
	task.Status = plan.StatusBlocked
	if _, err := p.AdaptForBlocker(taskID, blocker); err != nil {
		return fmt.Errorf("schedule: blocking task %s/%s: %w", planID, taskID, err)
	}
	if s.logger != nil {
		s.logger.Warn("task blocked, plan adapted", "plan", planID, "task", taskID, "blocker", blocker)
	}
	return nil
}

// Progress reports one plan's status counts, blockers, and completion.
func (s *Scheduler) Progress(planID string) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[planID]
	if !ok {
		return Progress{}, fmt.Errorf("schedule: unknown plan %q", planID)
	}

	prog := Progress{
		Counts:               make(map[plan.TaskStatus]int),
		CompletionPercentage: p.CompletionPercentage(),
		Status:               p.Status,
	}
	for _, t := range p.Tasks {
		prog.Counts[t.Status]++
		if t.Blocker != "" && t.Status != plan.StatusCompleted {
			prog.Blockers = append(prog.Blockers, fmt.Sprintf("%s: %s", t.ID, t.Blocker))
		}
	}
	return prog, nil
}

// --- internals; callers hold s.mu ---

// plansByPriority returns active plans sorted by (-priority, createdAt, id).
func (s *Scheduler) plansByPriority() []*plan.ExecutionPlan {
	out := make([]*plan.ExecutionPlan, 0, len(s.plans))
	for _, p := range s.plans {
		if p.Status == plan.PlanPlanning || p.Status == plan.PlanExecuting {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlanPriority != out[j].PlanPriority {
			return out[i].PlanPriority > out[j].PlanPriority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].PlanID < out[j].PlanID
	})
	return out
}

// firstReadyTask returns the first pending, unassigned task in topological
// order whose dependencies have all completed.
func firstReadyTask(p *plan.ExecutionPlan) *plan.SubTask {
	for _, t := range topoOrder(p) {
		if t.Status != plan.StatusPending || t.AssignedTo != "" {
			continue
		}
		if depsCompleted(p, t) {
			return t
		}
	}
	return nil
}

// topoOrder runs Kahn's algorithm over the plan's dependency graph. Among
// tasks with zero remaining in-degree, higher priority goes first, then
// lexical ID order for stability.
func topoOrder(p *plan.ExecutionPlan) []*plan.SubTask {
	indegree := make(map[string]int, len(p.Tasks))
	dependents := make(map[string][]string, len(p.Tasks))
	for _, t := range p.Tasks {
		indegree[t.ID] += 0
		for _, dep := range t.DependsOn {
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var frontier []*plan.SubTask
	for _, t := range p.Tasks {
		if indegree[t.ID] == 0 {
			frontier = append(frontier, t)
		}
	}

	order := make([]*plan.SubTask, 0, len(p.Tasks))
	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool {
			if frontier[i].Priority != frontier[j].Priority {
				return frontier[i].Priority > frontier[j].Priority
			}
			return frontier[i].ID < frontier[j].ID
		})
		next := frontier[0]
		frontier = frontier[1:]
		order = append(order, next)

		for _, depID := range dependents[next.ID] {
			indegree[depID]--
			if indegree[depID] == 0 {
				frontier = append(frontier, p.Task(depID))
			}
		}
	}
	return order
}

func depsCompleted(p *plan.ExecutionPlan, t *plan.SubTask) bool {
	for _, dep := range t.DependsOn {
		d := p.Task(dep)
		if d == nil || d.Status != plan.StatusCompleted {
			return false
		}
	}
	return true
}

// pickAgent scores the available agents for a task: +10 for a role matching
// the task's verb, plus up to +5 for lower load. Ties go to the less loaded
// agent, then to registration order.
func (s *Scheduler) pickAgent(t *plan.SubTask) *Capability {
	roles := rolesForTask(t.Title)

	var best *Capability
	bestScore := -1.0
	for _, c := range s.reg.listAvailable("", "") {
		score := 0.0
		for _, r := range roles {
			if c.Role == r {
				score += 10
				break
			}
		}
		max := c.MaxConcurrent
		if max < 1 {
			max = 1
		}
		score += float64(max-c.CurrentTasks) / float64(max) * 5

		switch {
		case score > bestScore:
			best, bestScore = c, score
		case score == bestScore && best != nil && c.CurrentTasks < best.CurrentTasks:
			best = c
		}
	}
	return best
}

// rolesForTask derives the preferred roles from the task title.
func rolesForTask(title string) []Role {
	lower := strings.ToLower(title)
	for _, tr := range taskRoles {
		for _, verb := range tr.verbs {
			if strings.Contains(lower, verb) {
				return tr.roles
			}
		}
	}
	return []Role{RoleDeveloper}
}

// lookupTask resolves a plan and task pair.
func (s *Scheduler) lookupTask(planID, taskID string) (*plan.ExecutionPlan, *plan.SubTask, error) {
	p, ok := s.plans[planID]
	if !ok {
		return nil, nil, fmt.Errorf("schedule: unknown plan %q", planID)
	}
	t := p.Task(taskID)
	if t == nil {
		return nil, nil, fmt.Errorf("schedule: plan %q has no task %q", planID, taskID)
	}
	return p, t, nil
}

// releaseAgent decrements the assigned agent's task count, never below zero.
func (s *Scheduler) releaseAgent(t *plan.SubTask) {
	if t.AssignedTo == "" || t.Status != plan.StatusInProgress {
		return
	}
	if c, ok := s.reg.get(t.AssignedTo); ok && c.CurrentTasks > 0 {
		c.CurrentTasks--
	}
}
