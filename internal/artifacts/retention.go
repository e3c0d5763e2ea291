package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// RetentionPlan lists which run directories a prune keeps and removes.
// Paths are relative to the output root.
type RetentionPlan struct {
	CreatedAt    time.Time           `json:"created_at"`
	Keep         int                 `json:"keep"`
	TotalRuns    int                 `json:"total_runs"`
	ToDelete     []string            `json:"to_delete"`
	ToKeep       []string            `json:"to_keep"`
	ReasonToKeep map[string][]string `json:"reason_to_keep"`
}

type runEntry struct {
	dir     string
	started time.Time
}

// PlanRetention keeps the newest keep runs plus the run latest.json points at.
// Runs are ordered by the started_at recorded in run_params.json, falling back
// to the directory modification time.
func PlanRetention(root string, keep int) (*RetentionPlan, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be >= 1")
	}
	runs, err := scanRuns(root)
	if err != nil {
		return nil, err
	}

	lastRun := ""
	if l, err := NewReader(root).Latest(); err == nil {
		lastRun = filepath.Clean(l.Dir)
	}

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].started.Equal(runs[j].started) {
			return runs[i].started.After(runs[j].started)
		}
		return runs[i].dir > runs[j].dir
	})

	plan := &RetentionPlan{
		CreatedAt:    time.Now().UTC(),
		Keep:         keep,
		TotalRuns:    len(runs),
		ToDelete:     []string{},
		ToKeep:       []string{},
		ReasonToKeep: make(map[string][]string),
	}
	for i, r := range runs {
		var reasons []string
		if r.dir == lastRun {
			reasons = append(reasons, "last_run")
		}
		if i < keep {
			reasons = append(reasons, fmt.Sprintf("within_keep_count_%d", keep))
		}
		if len(reasons) > 0 {
			plan.ToKeep = append(plan.ToKeep, r.dir)
			plan.ReasonToKeep[r.dir] = reasons
			continue
		}
		plan.ToDelete = append(plan.ToDelete, r.dir)
	}
	return plan, nil
}

// ApplyRetention removes the planned run directories and any date directory
// left empty.
func ApplyRetention(root string, plan *RetentionPlan) error {
	for _, dir := range plan.ToDelete {
		full := filepath.Join(root, dir)
		if err := os.RemoveAll(full); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		log.Debug().Str("run", dir).Msg("Removed run directory")
		parent := filepath.Dir(full)
		if entries, err := os.ReadDir(parent); err == nil && len(entries) == 0 {
			if err := os.Remove(parent); err != nil {
				log.Warn().Err(err).Str("dir", parent).Msg("Failed to remove empty date directory")
			}
		}
	}
	if len(plan.ToDelete) > 0 {
		log.Info().Int("removed", len(plan.ToDelete)).Int("kept", len(plan.ToKeep)).Msg("Run retention applied")
	}
	return nil
}

// scanRuns finds <root>/<YYYY-MM-DD>/<run_id> directories
func scanRuns(root string) ([]runEntry, error) {
	days, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []runEntry
	for _, day := range days {
		if !day.IsDir() {
			continue
		}
		if _, err := time.Parse("2006-01-02", day.Name()); err != nil {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(root, day.Name()))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			rel := filepath.Join(day.Name(), e.Name())
			runs = append(runs, runEntry{dir: rel, started: startedAt(filepath.Join(root, rel), e)})
		}
	}
	return runs, nil
}

func startedAt(dir string, e os.DirEntry) time.Time {
	if data, err := os.ReadFile(filepath.Join(dir, RunParamsFile)); err == nil {
		var rp struct {
			StartedAt time.Time `json:"started_at"`
		}
		if json.Unmarshal(data, &rp) == nil && !rp.StartedAt.IsZero() {
			return rp.StartedAt
		}
	}
	if info, err := e.Info(); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}
