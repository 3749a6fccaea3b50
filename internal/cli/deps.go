package cli

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/m0nk111/agent-forge-sub002/internal/config"
	"github.com/m0nk111/agent-forge-sub002/internal/forge"
	"github.com/m0nk111/agent-forge-sub002/internal/llm"
	"github.com/m0nk111/agent-forge-sub002/internal/ratelimit"
)

// loadConfig resolves configuration from --config or by walking up from the
// working directory.
func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		cfg, _, err := config.LoadFromFile(flagConfig)
		if err != nil {
			return nil, err
		}
		if tok := os.Getenv(config.EnvToken); tok != "" {
			cfg.Forge.Token = tok
		}
		if key := os.Getenv(config.EnvLLMKey); key != "" {
			cfg.LLM.APIKey = key
		}
		return cfg, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	return config.Load(wd)
}

// limiterConfig converts the TOML shape to the limiter's duration-based one.
func limiterConfig(rl config.RateLimitConfig) ratelimit.Config {
	sec := func(s int) time.Duration { return time.Duration(s) * time.Second }
	return ratelimit.Config{
		CommentsPerMinute:     rl.CommentsPerMinute,
		CommentsPerHour:       rl.CommentsPerHour,
		CommentsPerDay:        rl.CommentsPerDay,
		IssuesPerHour:         rl.IssuesPerHour,
		PRsPerHour:            rl.PRsPerHour,
		UpdatesPerMinute:      rl.UpdatesPerMinute,
		UpdatesPerHour:        rl.UpdatesPerHour,
		CommentCooldown:       sec(rl.CommentCooldownSeconds),
		IssueCooldown:         sec(rl.IssueCooldownSeconds),
		PRCooldown:            sec(rl.PRCooldownSeconds),
		DuplicateWindow:       sec(rl.DuplicateWindowSeconds),
		MaxDuplicates:         rl.MaxDuplicates,
		BurstWindow:           sec(rl.BurstWindowSeconds),
		MaxBurst:              rl.MaxBurst,
		PlatformHeadroomFloor: rl.PlatformHeadroomFloor,
	}
}

// newForgeClient builds the rate-limited forge client from config.
func newForgeClient(cfg *config.Config, logger *log.Logger) *forge.Client {
	limiter := ratelimit.NewLimiter(limiterConfig(cfg.RateLimit))
	return forge.NewClient(forge.ClientConfig{
		BaseURL: cfg.Forge.BaseURL,
		Token:   cfg.Forge.Token,
		Timeout: time.Duration(cfg.Forge.TimeoutSeconds) * time.Second,
	}, limiter, logger)
}

// newLLMClient returns the configured LLM client, or nil when no endpoint is
// set. Callers treat nil as "rule-based only".
func newLLMClient(cfg *config.Config, logger *log.Logger) llm.Client {
	if cfg.LLM.Endpoint == "" {
		return nil
	}
	return llm.NewHTTPClient(llm.Config{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}, logger)
}

var reIssueRef = regexp.MustCompile(`^([\w.-]+)/([\w.-]+)#(\d+)$`)
var reRepoRef = regexp.MustCompile(`^([\w.-]+)/([\w.-]+)$`)

// parseIssueRef parses "owner/repo#123".
func parseIssueRef(s string) (forge.Repo, int, error) {
	m := reIssueRef.FindStringSubmatch(s)
	if m == nil {
		return forge.Repo{}, 0, fmt.Errorf("invalid issue reference %q, expected owner/repo#number", s)
	}
	n, err := strconv.Atoi(m[3])
	if err != nil || n <= 0 {
		return forge.Repo{}, 0, fmt.Errorf("invalid issue number in %q", s)
	}
	return forge.Repo{Owner: m[1], Name: m[2]}, n, nil
}

// parseRepoRef parses "owner/repo".
func parseRepoRef(s string) (forge.Repo, error) {
	m := reRepoRef.FindStringSubmatch(s)
	if m == nil {
		return forge.Repo{}, fmt.Errorf("invalid repository %q, expected owner/repo", s)
	}
	return forge.Repo{Owner: m[1], Name: m[2]}, nil
}
