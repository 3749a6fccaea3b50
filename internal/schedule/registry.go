// Package schedule assigns plan tasks to registered agents. The agent
// registry and all plan mutations live under one scheduler mutex; task
// execution itself happens outside the lock.
package schedule

import (
	"fmt"
)

// Role classifies what kind of work an agent handles.
type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleDeveloper   Role = "developer"
	RoleReviewer    Role = "reviewer"
	RoleTester      Role = "tester"
	RoleDocumenter  Role = "documenter"
	RoleBot         Role = "bot"
	RoleResearcher  Role = "researcher"
)

// Capability describes one registered agent. CurrentTasks is the only piece
// of execution state the registry holds.
type Capability struct {
	AgentID string
	Role    Role
	Skills  []string

	// MaxConcurrent caps simultaneous assignments. Values below 1 mean 1.
	MaxConcurrent int

	// CurrentTasks is incremented on assignment and decremented when the
	// assigned task reaches a terminal state.
	CurrentTasks int

	// Available gates the agent out of scheduling without deregistering it.
	Available bool
}

// HasSkill reports whether the agent lists the skill. An empty skill matches.
func (c *Capability) HasSkill(skill string) bool {
	if skill == "" {
		return true
	}
	for _, s := range c.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// hasCapacity reports whether the agent can take one more task.
func (c *Capability) hasCapacity() bool {
	max := c.MaxConcurrent
	if max < 1 {
		max = 1
	}
	return c.Available && c.CurrentTasks < max
}

// registry is the agent map plus registration order for deterministic ties.
// Not safe for concurrent use on its own; the scheduler serializes access.
type registry struct {
	agents map[string]*Capability
	order  []string
}

func newRegistry() *registry {
	return &registry{agents: make(map[string]*Capability)}
}

func (r *registry) register(cap Capability) error {
	if cap.AgentID == "" {
		return fmt.Errorf("schedule: registering agent: empty agent ID")
	}
	if _, exists := r.agents[cap.AgentID]; exists {
		return fmt.Errorf("schedule: agent %q already registered", cap.AgentID)
	}
	if cap.MaxConcurrent < 1 {
		cap.MaxConcurrent = 1
	}
	c := cap
	r.agents[c.AgentID] = &c
	r.order = append(r.order, c.AgentID)
	return nil
}

func (r *registry) deregister(agentID string) {
	if _, exists := r.agents[agentID]; !exists {
		return
	}
	delete(r.agents, agentID)
	for i, id := range r.order {
		if id == agentID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *registry) get(agentID string) (*Capability, bool) {
	c, ok := r.agents[agentID]
	return c, ok
}

// listAvailable returns agents with capacity matching role and skill, in
// registration order. A zero role matches any.
func (r *registry) listAvailable(role Role, skill string) []*Capability {
	var out []*Capability
	for _, id := range r.order {
		c := r.agents[id]
		if !c.hasCapacity() {
			continue
		}
		if role != "" && c.Role != role {
			continue
		}
		if !c.HasSkill(skill) {
			continue
		}
		out = append(out, c)
	}
	return out
}
