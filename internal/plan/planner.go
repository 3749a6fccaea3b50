package plan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/m0nk111/agent-forge-sub002/internal/config"
	"github.com/m0nk111/agent-forge-sub002/internal/forge"
	"github.com/m0nk111/agent-forge-sub002/internal/jsonutil"
	"github.com/m0nk111/agent-forge-sub002/internal/llm"
)

// decompositionPrompt asks the model for a task breakdown in strict JSON.
const decompositionPrompt = `Decompose this software issue into at most %d concrete sub-tasks.

Title: %s

Body:
%s

Respond with JSON only, an array of objects:
[{"title": "...", "description": "...", "priority": 1-5, "effort_minutes": 15-480, "depends_on": [0-based indices of earlier tasks]}]`

// labelPriorities maps issue labels to plan priority, highest match wins.
var labelPriorities = []struct {
	priority int
	labels   []string
}{
	{5, []string{"critical", "security", "p0", "high-priority"}},
	{4, []string{"bug", "p1", "urgent"}},
	{3, []string{"enhancement", "feature", "refactor"}},
	{2, []string{"documentation", "chore"}},
}

// roleTokens maps task-title tokens to the role that handles them.
var roleTokens = []struct {
	role   string
	tokens []string
}{
	{"developer", []string{"implement", "create", "add", "fix", "build"}},
	{"tester", []string{"test", "verify", "validate"}},
	{"reviewer", []string{"review"}},
	{"documenter", []string{"document", "doc", "readme"}},
	{"researcher", []string{"research", "investigate", "evaluate"}},
}

// Planner decomposes issues into execution plans. The canonical
// implement/test/document skeleton is always available; an LLM proposal
// replaces it when one parses.
type Planner struct {
	cfg    config.PlannerConfig
	client llm.Client
	logger *log.Logger
}

// NewPlanner creates a Planner. client and logger may be nil.
func NewPlanner(cfg config.PlannerConfig, client llm.Client, logger *log.Logger) *Planner {
	return &Planner{cfg: cfg, client: client, logger: logger}
}

// Plan builds a validated execution plan for the issue.
func (p *Planner) Plan(ctx context.Context, issue *forge.Issue) (*ExecutionPlan, error) {
	now := time.Now().UTC()
	ep := &ExecutionPlan{
		PlanID:       uuid.NewString(),
		Repo:         issue.Repo.String(),
		IssueNumber:  issue.Number,
		IssueTitle:   issue.Title,
		Status:       PlanPlanning,
		PlanPriority: PriorityFromLabels(issue.Labels),
		Labels:       issue.Labels,
		CreatedAt:    now,
	}

	ep.Tasks = p.skeleton(issue, now)
	if llmTasks := p.proposeTasks(ctx, issue, now); len(llmTasks) > 0 {
		ep.Tasks = llmTasks
	}

	ep.RequiredRoles = requiredRoles(ep.Tasks)

	if err := ep.Validate(); err != nil {
		return nil, fmt.Errorf("plan: building plan for %s#%d: %w", ep.Repo, ep.IssueNumber, err)
	}
	return ep, nil
}

// skeleton is the rule-based baseline decomposition.
func (p *Planner) skeleton(issue *forge.Issue, now time.Time) []*SubTask {
	effort := p.cfg.DefaultTaskEffortMinutes
	if effort <= 0 {
		effort = 60
	}
	return []*SubTask{
		{
			ID:              "task-1",
			Title:           "Implement: " + issue.Title,
			Priority:        3,
			EstimatedEffort: effort,
			Status:          StatusPending,
			CreatedAt:       now,
		},
		{
			ID:              "task-2",
			Title:           "Test: " + issue.Title,
			Priority:        3,
			EstimatedEffort: clampEffort(effort / 2),
			DependsOn:       []string{"task-1"},
			Status:          StatusPending,
			CreatedAt:       now,
		},
		{
			ID:              "task-3",
			Title:           "Document: " + issue.Title,
			Priority:        2,
			EstimatedEffort: clampEffort(effort / 4),
			DependsOn:       []string{"task-1"},
			Status:          StatusPending,
			CreatedAt:       now,
		},
	}
}

// proposedTask is the LLM wire format for one sub-task.
type proposedTask struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Priority      int    `json:"priority"`
	EffortMinutes int    `json:"effort_minutes"`
	DependsOn     []int  `json:"depends_on"`
}

// proposeTasks asks the LLM for a decomposition and sanitizes it. Any failure
// returns nil so the caller keeps the skeleton.
func (p *Planner) proposeTasks(ctx context.Context, issue *forge.Issue, now time.Time) []*SubTask {
	if p.client == nil {
		return nil
	}

	maxTasks := p.cfg.MaxSubTasks
	if maxTasks <= 0 {
		maxTasks = 20
	}

	prompt := fmt.Sprintf(decompositionPrompt, maxTasks, issue.Title, issue.Body)
	out, err := p.client.Complete(ctx, prompt, llm.Params{Temperature: 0.2})
	if err != nil {
		if p.logger != nil {
			p.logger.Debug("llm decomposition skipped", "err", err)
		}
		return nil
	}

	var proposed []proposedTask
	if err := jsonutil.ExtractInto(out, &proposed); err != nil {
		if p.logger != nil {
			p.logger.Debug("llm decomposition unparseable", "err", err)
		}
		return nil
	}
	if len(proposed) == 0 {
		return nil
	}
	if len(proposed) > maxTasks {
		proposed = proposed[:maxTasks]
	}

	tasks := make([]*SubTask, 0, len(proposed))
	for i, pt := range proposed {
		if strings.TrimSpace(pt.Title) == "" {
			continue
		}
		task := &SubTask{
			ID:              fmt.Sprintf("task-%d", i+1),
			Title:           strings.TrimSpace(pt.Title),
			Description:     pt.Description,
			Priority:        clampPriority(pt.Priority),
			EstimatedEffort: clampEffort(pt.EffortMinutes),
			Status:          StatusPending,
			CreatedAt:       now,
		}
		// Only earlier siblings are legal dependencies, which also keeps the
		// graph acyclic by construction.
		for _, dep := range pt.DependsOn {
			if dep >= 0 && dep < i {
				task.DependsOn = append(task.DependsOn, fmt.Sprintf("task-%d", dep+1))
			}
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// PriorityFromLabels maps issue labels to a plan priority in [1,5].
func PriorityFromLabels(labels []string) int {
	best := 1
	for _, l := range labels {
		lower := strings.ToLower(l)
		for _, lp := range labelPriorities {
			for _, known := range lp.labels {
				if lower == known && lp.priority > best {
					best = lp.priority
				}
			}
		}
	}
	return best
}

// requiredRoles scans task titles for role verbs and returns the sorted set.
// Every plan needs a coordinator to drive it.
func requiredRoles(tasks []*SubTask) []string {
	seen := map[string]bool{"coordinator": true}
	for _, t := range tasks {
		lower := strings.ToLower(t.Title)
		for _, rt := range roleTokens {
			for _, token := range rt.tokens {
				if strings.Contains(lower, token) {
					seen[rt.role] = true
					break
				}
			}
		}
	}

	roles := make([]string, 0, len(seen))
	for r := range seen {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

func clampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 5 {
		return 5
	}
	return p
}

func clampEffort(m int) int {
	if m < MinEffortMinutes {
		return MinEffortMinutes
	}
	if m > MaxEffortMinutes {
		return MaxEffortMinutes
	}
	return m
}
