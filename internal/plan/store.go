package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists execution plans as one JSON file per plan ID.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. The directory is created lazily on
// the first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// path returns the file path for a plan ID.
func (s *Store) path(planID string) string {
	return filepath.Join(s.dir, planID+".json")
}

// Save writes the plan atomically (temp file then rename).
func (s *Store) Save(p *ExecutionPlan) error {
	if p.PlanID == "" {
		return fmt.Errorf("plan: saving plan: empty plan ID")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("plan: creating plan directory %q: %w", s.dir, err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("plan: encoding plan %s: %w", p.PlanID, err)
	}

	target := s.path(p.PlanID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("plan: writing temp plan file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("plan: renaming temp plan file to %q: %w", target, err)
	}
	return nil
}

// Load reads one plan by ID.
func (s *Store) Load(planID string) (*ExecutionPlan, error) {
	data, err := os.ReadFile(s.path(planID))
	if err != nil {
		return nil, fmt.Errorf("plan: reading plan %s: %w", planID, err)
	}

	var p ExecutionPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("plan: decoding plan %s: %w", planID, err)
	}
	return &p, nil
}

// List returns the IDs of all persisted plans. A missing directory is an
// empty store, not an error.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("plan: listing plans in %q: %w", s.dir, err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// Delete removes a persisted plan. Deleting a missing plan is not an error.
func (s *Store) Delete(planID string) error {
	if err := os.Remove(s.path(planID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("plan: deleting plan %s: %w", planID, err)
	}
	return nil
}
