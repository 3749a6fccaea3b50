package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	cfg := NewDefaults()

	assert.Equal(t, 3, cfg.RateLimit.CommentsPerMinute)
	assert.Equal(t, 30, cfg.RateLimit.CommentsPerHour)
	assert.Equal(t, 200, cfg.RateLimit.CommentsPerDay)
	assert.Equal(t, 20, cfg.RateLimit.CommentCooldownSeconds)
	assert.Equal(t, 60, cfg.RateLimit.IssueCooldownSeconds)
	assert.Equal(t, 120, cfg.RateLimit.PRCooldownSeconds)
	assert.Equal(t, 3600, cfg.RateLimit.DuplicateWindowSeconds)
	assert.Equal(t, 2, cfg.RateLimit.MaxDuplicates)
	assert.Equal(t, 60, cfg.RateLimit.BurstWindowSeconds)
	assert.Equal(t, 10, cfg.RateLimit.MaxBurst)
	assert.Equal(t, 100, cfg.RateLimit.PlatformHeadroomFloor)

	assert.Equal(t, 20, cfg.Planner.MaxSubTasks)
	assert.Equal(t, 10, cfg.Complexity.SimpleThreshold)
	assert.Equal(t, 25, cfg.Complexity.ComplexThreshold)
	assert.Equal(t, "squash", cfg.Review.MergeMethod)

	assert.Empty(t, cfg.Validate(), "defaults must validate cleanly")
}

func TestFindConfigFile_WalksUp(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfgPath := filepath.Join(root, ConfigFileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte(""), 0o644))

	found, err := FindConfigFile(nested)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, found)
}

func TestFindConfigFile_NotFound(t *testing.T) {
	t.Parallel()

	found, err := FindConfigFile(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestLoadFromFile_OverridesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	content := `
[rate_limits]
comments_per_minute = 5
comments_per_hour = 50

[review]
merge_method = "rebase"
reviewers = ["alice", "bob"]

[complexity]
simple_threshold = 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, md, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RateLimit.CommentsPerMinute)
	assert.Equal(t, 50, cfg.RateLimit.CommentsPerHour)
	assert.Equal(t, "rebase", cfg.Review.MergeMethod)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Review.Reviewers)
	assert.Equal(t, 8, cfg.Complexity.SimpleThreshold)

	// Untouched sections retain defaults.
	assert.Equal(t, 200, cfg.RateLimit.CommentsPerDay)
	assert.Equal(t, 20, cfg.Planner.MaxSubTasks)

	assert.Empty(t, md.Undecoded(), "no unknown keys expected")
}

func TestLoad_EnvTokenOverride(t *testing.T) {
	t.Setenv(EnvToken, "env-token")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Forge.Token)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "empty base url",
			mutate:  func(c *Config) { c.Forge.BaseURL = "" },
			wantErr: "forge.base_url",
		},
		{
			name:    "zero comment cap",
			mutate:  func(c *Config) { c.RateLimit.CommentsPerMinute = 0 },
			wantErr: "comments_per_minute",
		},
		{
			name:    "minute cap exceeds hour cap",
			mutate:  func(c *Config) { c.RateLimit.CommentsPerMinute = 100 },
			wantErr: "exceeds comments_per_hour",
		},
		{
			name:    "bad merge method",
			mutate:  func(c *Config) { c.Review.MergeMethod = "fast-forward" },
			wantErr: "merge_method",
		},
		{
			name:    "llm review without endpoint",
			mutate:  func(c *Config) { c.Review.UseLLM = true },
			wantErr: "use_llm requires llm.endpoint",
		},
		{
			name: "inverted complexity thresholds",
			mutate: func(c *Config) {
				c.Complexity.SimpleThreshold = 30
				c.Complexity.ComplexThreshold = 25
			},
			wantErr: "complex_threshold",
		},
		{
			name:    "sandbox max below default timeout",
			mutate:  func(c *Config) { c.Sandbox.MaxTimeoutSeconds = 1 },
			wantErr: "max_timeout_s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewDefaults()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			found := false
			for _, err := range errs {
				if strings.Contains(err.Error(), tt.wantErr) {
					found = true
				}
			}
			assert.True(t, found, "expected an error containing %q, got %v", tt.wantErr, errs)
		})
	}
}
