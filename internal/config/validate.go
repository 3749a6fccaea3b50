package config

import "fmt"

// validMergeMethods is the set of merge methods the forge accepts.
var validMergeMethods = map[string]bool{
	"merge":  true,
	"squash": true,
	"rebase": true,
}

// Validate checks the configuration for structural errors and returns all
// detected problems so callers receive a complete picture.
func (c *Config) Validate() []error {
	var errs []error

	if c.Forge.BaseURL == "" {
		errs = append(errs, fmt.Errorf("forge.base_url must not be empty"))
	}
	if c.Forge.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("forge.timeout_s must be positive, got %d", c.Forge.TimeoutSeconds))
	}

	if c.LLM.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout_s must be positive, got %d", c.LLM.TimeoutSeconds))
	}

	rl := c.RateLimit
	for _, cap := range []struct {
		name  string
		value int
	}{
		{"rate_limits.comments_per_minute", rl.CommentsPerMinute},
		{"rate_limits.comments_per_hour", rl.CommentsPerHour},
		{"rate_limits.comments_per_day", rl.CommentsPerDay},
		{"rate_limits.issues_per_hour", rl.IssuesPerHour},
		{"rate_limits.prs_per_hour", rl.PRsPerHour},
		{"rate_limits.max_duplicates", rl.MaxDuplicates},
		{"rate_limits.max_burst", rl.MaxBurst},
	} {
		if cap.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", cap.name, cap.value))
		}
	}
	if rl.CommentsPerMinute > rl.CommentsPerHour {
		errs = append(errs, fmt.Errorf("rate_limits.comments_per_minute (%d) exceeds comments_per_hour (%d)", rl.CommentsPerMinute, rl.CommentsPerHour))
	}

	if c.Planner.MaxSubTasks <= 0 {
		errs = append(errs, fmt.Errorf("planner.max_sub_tasks must be positive, got %d", c.Planner.MaxSubTasks))
	}
	if c.Planner.DefaultTaskEffortMinutes <= 0 {
		errs = append(errs, fmt.Errorf("planner.default_task_effort_min must be positive, got %d", c.Planner.DefaultTaskEffortMinutes))
	}

	if c.Sandbox.DefaultTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.default_timeout_s must be positive, got %d", c.Sandbox.DefaultTimeoutSeconds))
	}
	if c.Sandbox.MaxTimeoutSeconds < c.Sandbox.DefaultTimeoutSeconds {
		errs = append(errs, fmt.Errorf("sandbox.max_timeout_s (%d) is below default_timeout_s (%d)", c.Sandbox.MaxTimeoutSeconds, c.Sandbox.DefaultTimeoutSeconds))
	}

	if !validMergeMethods[c.Review.MergeMethod] {
		errs = append(errs, fmt.Errorf("review.merge_method %q: must be one of merge, squash, rebase", c.Review.MergeMethod))
	}
	if c.Review.UseLLM && c.LLM.Endpoint == "" {
		errs = append(errs, fmt.Errorf("review.use_llm requires llm.endpoint to be set"))
	}

	if c.Complexity.SimpleThreshold < 0 {
		errs = append(errs, fmt.Errorf("complexity.simple_threshold must not be negative, got %d", c.Complexity.SimpleThreshold))
	}
	if c.Complexity.ComplexThreshold <= c.Complexity.SimpleThreshold {
		errs = append(errs, fmt.Errorf("complexity.complex_threshold (%d) must exceed simple_threshold (%d)", c.Complexity.ComplexThreshold, c.Complexity.SimpleThreshold))
	}

	return errs
}
