package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/m0nk111/agent-forge-sub002/internal/forge"
)

func TestConflictAnalyzer_Strategies(t *testing.T) {
	t.Parallel()

	var analyzer ConflictAnalyzer

	tests := []struct {
		name string
		info ConflictInfo
		want ConflictStrategy
	}{
		{
			name: "single small conflict resolves automatically",
			info: ConflictInfo{
				ConflictedFiles: []string{"readme.md"},
				ConflictMarkers: 1,
				ChangedLines:    10,
			},
			want: StrategyAutoResolve,
		},
		{
			name: "no conflicts at all",
			info: ConflictInfo{},
			want: StrategyAutoResolve,
		},
		{
			name: "moderate conflict needs a human",
			info: ConflictInfo{
				ConflictedFiles: []string{"a.go", "b.go"},
				ConflictMarkers: 4,
				ChangedLines:    120,
				AgeDays:         3,
			},
			want: StrategyManualFix,
		},
		{
			name: "drifted branch gets recreated",
			info: ConflictInfo{
				ConflictedFiles:  []string{"a.go", "b.go", "c.go", "d.go", "e.go"},
				ConflictMarkers:  12,
				ChangedLines:     800,
				OverlappingFiles: 4,
				AgeDays:          21,
				CommitsBehind:    60,
				CoreFileTouched:  true,
			},
			want: StrategyCloseAndRecreate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := analyzer.Analyze(tt.info)
			assert.Equal(t, tt.want, a.Strategy, "score was %d: %v", a.Score, a.Reasons)
		})
	}
}

func TestConflictAnalyzer_ScoreClamped(t *testing.T) {
	t.Parallel()

	var analyzer ConflictAnalyzer
	a := analyzer.Analyze(ConflictInfo{
		ConflictedFiles:  make([]string, 100),
		ConflictMarkers:  1000,
		ChangedLines:     100000,
		OverlappingFiles: 100,
		AgeDays:          365,
		CommitsBehind:    1000,
		CoreFileTouched:  true,
	})
	assert.Equal(t, MaxConflictScore, a.Score)
	assert.Equal(t, StrategyCloseAndRecreate, a.Strategy)
}

func TestConflictAnalyzer_BoundariesFavorLowerStrategy(t *testing.T) {
	t.Parallel()

	var analyzer ConflictAnalyzer

	// Exactly 8: 2 conflicted files (6) + 2 hunks (2).
	atAuto := analyzer.Analyze(ConflictInfo{
		ConflictedFiles: []string{"a.go", "b.go"},
		ConflictMarkers: 2,
	})
	assert.Equal(t, 8, atAuto.Score)
	assert.Equal(t, StrategyAutoResolve, atAuto.Strategy)

	// Exactly 15: 4 conflicted files (12) + 3 hunks (3).
	atManual := analyzer.Analyze(ConflictInfo{
		ConflictedFiles: []string{"a.go", "b.go", "c.go", "d.go"},
		ConflictMarkers: 3,
	})
	assert.Equal(t, 15, atManual.Score)
	assert.Equal(t, StrategyManualFix, atManual.Strategy)
}

func TestInfoFromPR(t *testing.T) {
	t.Parallel()

	unmergeable := false
	pr := &forge.PullRequest{
		Repo:          forge.Repo{Owner: "o", Name: "r"},
		Number:        3,
		Mergeable:     &unmergeable,
		CommitsBehind: 12,
		CreatedAt:     time.Now().Add(-5 * 24 * time.Hour),
	}
	files := []forge.PRFile{
		{Filename: "internal/store/store.go", Additions: 40, Deletions: 10},
		{Filename: "go.mod", Additions: 2, Deletions: 1},
	}

	info := InfoFromPR(pr, files)
	assert.Equal(t, []string{"internal/store/store.go", "go.mod"}, info.ConflictedFiles)
	assert.Equal(t, 2, info.ConflictMarkers)
	assert.Equal(t, 53, info.ChangedLines)
	assert.Equal(t, 5, info.AgeDays)
	assert.Equal(t, 12, info.CommitsBehind)
	assert.True(t, info.CoreFileTouched)
}

func TestInfoFromPR_MergeableHasNoConflictedFiles(t *testing.T) {
	t.Parallel()

	mergeable := true
	pr := &forge.PullRequest{Mergeable: &mergeable, CreatedAt: time.Now()}
	info := InfoFromPR(pr, []forge.PRFile{{Filename: "a.go", Additions: 5}})
	assert.Empty(t, info.ConflictedFiles)
	assert.Zero(t, info.ConflictMarkers)
}
