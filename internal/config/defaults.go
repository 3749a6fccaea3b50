package config

// NewDefaults returns a Config populated with all default values. The
// rate-limit defaults are deliberately conservative: the fabric operates
// unattended and a runaway loop must never be able to spam a repository.
func NewDefaults() *Config {
	return &Config{
		Forge: ForgeConfig{
			BaseURL:        "https://api.github.com",
			TimeoutSeconds: 30,
		},
		LLM: LLMConfig{
			TimeoutSeconds: 300,
		},
		RateLimit: RateLimitConfig{
			CommentsPerMinute:      3,
			CommentsPerHour:        30,
			CommentsPerDay:         200,
			IssuesPerHour:          10,
			PRsPerHour:             5,
			UpdatesPerMinute:       10,
			UpdatesPerHour:         100,
			CommentCooldownSeconds: 20,
			IssueCooldownSeconds:   60,
			PRCooldownSeconds:      120,
			DuplicateWindowSeconds: 3600,
			MaxDuplicates:          2,
			BurstWindowSeconds:     60,
			MaxBurst:               10,
			PlatformHeadroomFloor:  100,
		},
		Planner: PlannerConfig{
			MaxSubTasks:              20,
			DefaultTaskEffortMinutes: 60,
			MaxConcurrentTasks:       4,
		},
		Monitor: MonitorConfig{
			CheckIntervalSeconds:    60,
			BlockerThresholdSeconds: 1800,
		},
		Sandbox: SandboxConfig{
			BlockedCommands: []string{
				"sudo",
				"rm -rf /",
				"rm -rf /*",
				"mkfs",
				"dd if=",
			},
			BlockedPatterns: []string{
				`curl\s.*\|\s*(ba|z)?sh`,
				`wget\s.*\|\s*(ba|z)?sh`,
				`eval\s*\(`,
				`exec\s*\(`,
			},
			DefaultTimeoutSeconds: 60,
			MaxTimeoutSeconds:     600,
			MaxOutputBytes:        64 * 1024,
			MaxConcurrentCommands: 4,
		},
		Review: ReviewConfig{
			AutoMergeIfApproved: false,
			MergeMethod:         "squash",
			AutoAssignReviewers: true,
			AutoLabel:           true,
		},
		Complexity: ComplexityConfig{
			SimpleThreshold:  10,
			ComplexThreshold: 25,
		},
	}
}
