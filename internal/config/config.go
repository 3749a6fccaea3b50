// Package config loads and validates the agent-forge.toml configuration file.
package config

// Config is the top-level configuration structure mapping to agent-forge.toml.
type Config struct {
	Forge      ForgeConfig      `toml:"forge"`
	LLM        LLMConfig        `toml:"llm"`
	RateLimit  RateLimitConfig  `toml:"rate_limits"`
	Planner    PlannerConfig    `toml:"planner"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Sandbox    SandboxConfig    `toml:"sandbox"`
	Review     ReviewConfig     `toml:"review"`
	Complexity ComplexityConfig `toml:"complexity"`
}

// ForgeConfig maps to the [forge] section. It describes the external
// code-hosting platform the fabric operates against.
type ForgeConfig struct {
	// BaseURL is the root of the forge REST API (e.g. "https://api.github.com").
	BaseURL string `toml:"base_url"`

	// Token is the bearer token used for authentication. Usually supplied via
	// the AGENT_FORGE_TOKEN environment variable rather than the file.
	Token string `toml:"token"`

	// BotUser is the identity the fabric acts as. Used for self-review guards.
	BotUser string `toml:"bot_user"`

	// TimeoutSeconds bounds every forge HTTP call. Default 30.
	TimeoutSeconds int `toml:"timeout_s"`
}

// LLMConfig maps to the [llm] section.
type LLMConfig struct {
	// Endpoint is the chat-completions URL of the provider. Empty disables
	// all LLM-assisted behavior; components fall back to rule-based logic.
	Endpoint string `toml:"endpoint"`

	// Model is the model identifier sent with each request.
	Model string `toml:"model"`

	// APIKey is the provider credential.
	APIKey string `toml:"api_key"`

	// TimeoutSeconds bounds a single generation. Default 300.
	TimeoutSeconds int `toml:"timeout_s"`
}

// RateLimitConfig maps to the [rate_limits] section. Zero values are replaced
// by defaults at load time.
type RateLimitConfig struct {
	CommentsPerMinute int `toml:"comments_per_minute"`
	CommentsPerHour   int `toml:"comments_per_hour"`
	CommentsPerDay    int `toml:"comments_per_day"`
	IssuesPerHour     int `toml:"issues_per_hour"`
	PRsPerHour        int `toml:"prs_per_hour"`
	UpdatesPerMinute  int `toml:"updates_per_minute"`
	UpdatesPerHour    int `toml:"updates_per_hour"`

	CommentCooldownSeconds int `toml:"comment_cooldown_s"`
	IssueCooldownSeconds   int `toml:"issue_cooldown_s"`
	PRCooldownSeconds      int `toml:"pr_cooldown_s"`

	DuplicateWindowSeconds int `toml:"duplicate_window_s"`
	MaxDuplicates          int `toml:"max_duplicates"`
	BurstWindowSeconds     int `toml:"burst_window_s"`
	MaxBurst               int `toml:"max_burst"`

	// PlatformHeadroomFloor denies all mutations when the forge reports fewer
	// remaining API calls than this floor. Default 100.
	PlatformHeadroomFloor int `toml:"platform_headroom_floor"`
}

// PlannerConfig maps to the [planner] section.
type PlannerConfig struct {
	// MaxSubTasks caps the number of sub-tasks in one execution plan. Default 20.
	MaxSubTasks int `toml:"max_sub_tasks"`

	// DefaultTaskEffortMinutes is the effort estimate assigned to tasks the
	// planner cannot estimate. Default 60.
	DefaultTaskEffortMinutes int `toml:"default_task_effort_min"`

	// MaxConcurrentTasks caps in-flight task executions across all plans.
	MaxConcurrentTasks int `toml:"max_concurrent_tasks"`
}

// MonitorConfig maps to the [monitor] section.
type MonitorConfig struct {
	// CheckIntervalSeconds is the poll interval of the coordinator run loop.
	CheckIntervalSeconds int `toml:"check_interval_s"`

	// BlockerThresholdSeconds is how long a task may sit in_progress without
	// progress before it is considered blocked.
	BlockerThresholdSeconds int `toml:"blocker_threshold_s"`
}

// SandboxConfig maps to the [sandbox] section.
type SandboxConfig struct {
	// AllowedBaseDirs is the allowlist of workspace roots. A command's working
	// directory must resolve under one of these.
	AllowedBaseDirs []string `toml:"allowed_base_dirs"`

	// BlockedCommands is a list of literal substrings that reject a command.
	BlockedCommands []string `toml:"blocked_commands"`

	// BlockedPatterns is a list of doublestar glob or regex patterns that
	// reject a command.
	BlockedPatterns []string `toml:"blocked_patterns"`

	// AllowedCommands, when non-empty, restricts execution to commands whose
	// first token matches an entry.
	AllowedCommands []string `toml:"allowed_commands"`

	DefaultTimeoutSeconds int `toml:"default_timeout_s"`
	MaxTimeoutSeconds     int `toml:"max_timeout_s"`

	// MaxOutputBytes truncates captured stdout/stderr. Default 64 KiB.
	MaxOutputBytes int `toml:"max_output_bytes"`

	// MaxConcurrentCommands caps simultaneously running sandbox commands.
	MaxConcurrentCommands int `toml:"max_concurrent_commands"`
}

// ReviewConfig maps to the [review] section and controls the PR review and
// merge workflow.
type ReviewConfig struct {
	// UseLLM enables the LLM critique pass in addition to static checks.
	UseLLM bool `toml:"use_llm"`

	// AutoMergeIfApproved merges a PR automatically when the decision is
	// AUTO_MERGE.
	AutoMergeIfApproved bool `toml:"auto_merge_if_approved"`

	// MergeWithSuggestions also merges on MERGE_WITH_CONSIDERATION.
	MergeWithSuggestions bool `toml:"merge_with_suggestions"`

	// MergeMethod is one of "merge", "squash", "rebase".
	MergeMethod string `toml:"merge_method"`

	// AutoAssignReviewers requests reviews from Reviewers after posting the
	// review comment.
	AutoAssignReviewers bool `toml:"auto_assign_reviewers"`

	// AutoLabel applies review-outcome labels to the PR.
	AutoLabel bool `toml:"auto_label"`

	// Reviewers is the list of usernames to request reviews from.
	Reviewers []string `toml:"reviewers"`
}

// ComplexityConfig maps to the [complexity] section.
type ComplexityConfig struct {
	// SimpleThreshold is the inclusive score ceiling of the "simple" bucket.
	SimpleThreshold int `toml:"simple_threshold"`

	// ComplexThreshold is the inclusive score ceiling of the "uncertain"
	// bucket; scores above it are "complex".
	ComplexThreshold int `toml:"complex_threshold"`
}
