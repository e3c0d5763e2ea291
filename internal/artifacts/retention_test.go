package artifacts

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRun(t *testing.T, root, runID string, started time.Time) *Writer {
	t.Helper()
	w := NewWriter(root, runID, started)
	require.NoError(t, w.WriteRunParams(map[string]any{"run_id": runID, "started_at": started}))
	return w
}

func TestRetention_KeepsNewestAndLatest(t *testing.T) {
	root := t.TempDir()
	day1 := time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	oldest := writeRun(t, root, "r1", day1)
	writeRun(t, root, "r2", day1.Add(time.Hour))
	writeRun(t, root, "r3", day2)
	writeRun(t, root, "r4", day2.Add(time.Hour))
	// latest pointer at the oldest run, e.g. later runs were backtest-only
	require.NoError(t, oldest.MarkLatest(day1))

	plan, err := PlanRetention(root, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, plan.TotalRuns)
	assert.Equal(t, []string{filepath.Join("2024-05-02", "r4"), filepath.Join("2024-05-02", "r3"), filepath.Join("2024-05-01", "r1")}, plan.ToKeep)
	assert.Equal(t, []string{filepath.Join("2024-05-01", "r2")}, plan.ToDelete)
	assert.Equal(t, []string{"last_run"}, plan.ReasonToKeep[filepath.Join("2024-05-01", "r1")])

	require.NoError(t, ApplyRetention(root, plan))
	_, err = os.Stat(filepath.Join(root, "2024-05-01", "r2"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(oldest.Dir())
	assert.NoError(t, err)
}

func TestRetention_RemovesEmptyDateDirs(t *testing.T) {
	root := t.TempDir()
	day1 := time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC)
	writeRun(t, root, "r1", day1)
	writeRun(t, root, "r2", day1.AddDate(0, 0, 1))

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.InfoLevel)
	t.Cleanup(func() { log.Logger = prev })

	plan, err := PlanRetention(root, 1)
	require.NoError(t, err)
	require.NoError(t, ApplyRetention(root, plan))

	_, err = os.Stat(filepath.Join(root, "2024-05-01"))
	assert.True(t, os.IsNotExist(err))
	assert.Contains(t, buf.String(), `"removed":1`)
	assert.Contains(t, buf.String(), "Run retention applied")
	assert.NotContains(t, buf.String(), "Removed run directory")
}

func TestRetention_EmptyRoot(t *testing.T) {
	plan, err := PlanRetention(filepath.Join(t.TempDir(), "missing"), 3)
	require.NoError(t, err)
	assert.Zero(t, plan.TotalRuns)

	_, err = PlanRetention(t.TempDir(), 0)
	assert.Error(t, err)
}
