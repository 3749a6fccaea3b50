package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m0nk111/agent-forge-sub002/internal/config"
	"github.com/m0nk111/agent-forge-sub002/internal/forge"
)

func TestParseIssueRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		wantRepo forge.Repo
		wantNum  int
		wantErr  bool
	}{
		{in: "m0nk111/agent-forge#42", wantRepo: forge.Repo{Owner: "m0nk111", Name: "agent-forge"}, wantNum: 42},
		{in: "a.b/c-d#1", wantRepo: forge.Repo{Owner: "a.b", Name: "c-d"}, wantNum: 1},
		{in: "missing-number", wantErr: true},
		{in: "owner/repo", wantErr: true},
		{in: "owner/repo#0", wantErr: true},
		{in: "owner/repo#-3", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			repo, num, err := parseIssueRef(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRepo, repo)
			assert.Equal(t, tt.wantNum, num)
		})
	}
}

func TestParseRepoRef(t *testing.T) {
	t.Parallel()

	repo, err := parseRepoRef("m0nk111/agent-forge")
	require.NoError(t, err)
	assert.Equal(t, forge.Repo{Owner: "m0nk111", Name: "agent-forge"}, repo)

	_, err = parseRepoRef("not-a-repo")
	require.Error(t, err)

	_, err = parseRepoRef("owner/repo#3")
	require.Error(t, err)
}

func TestLimiterConfigConversion(t *testing.T) {
	t.Parallel()

	rl := config.RateLimitConfig{
		CommentsPerMinute:      3,
		CommentCooldownSeconds: 20,
		DuplicateWindowSeconds: 3600,
		MaxDuplicates:          2,
		PlatformHeadroomFloor:  100,
	}
	got := limiterConfig(rl)
	assert.Equal(t, 3, got.CommentsPerMinute)
	assert.Equal(t, 20*time.Second, got.CommentCooldown)
	assert.Equal(t, time.Hour, got.DuplicateWindow)
	assert.Equal(t, 2, got.MaxDuplicates)
	assert.Equal(t, 100, got.PlatformHeadroomFloor)
}

func TestRouteForMirrorsGateway(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "DELEGATE_SIMPLE", routeFor("simple"))
	assert.Equal(t, "DELEGATE_WITH_ESCALATION", routeFor("uncertain"))
	assert.Equal(t, "ORCHESTRATE", routeFor("complex"))
}
