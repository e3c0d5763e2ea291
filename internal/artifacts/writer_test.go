package artifacts

import (
	"bufio"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pairsarb/internal/backtest"
	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/scoring"
	"github.com/sawpanic/pairsarb/internal/stationarity"
)

var started = time.Date(2024, 5, 6, 22, 30, 0, 0, time.UTC)

func TestWriter_LayoutAndTables(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, "run-123", started)
	assert.Equal(t, filepath.Join(root, "2024-05-06", "run-123"), w.Dir())

	pair := domain.NewPairID("SPY", "IVV")
	ok := scoring.PairScore{Pair: pair, Correlation: 0.99, PValue: 0.01, Method: stationarity.MethodADF, HalfLife: 3.2, Score: 5}
	failed := scoring.Failed(domain.NewPairID("SPY", "GLD"), &domain.InsufficientDataError{Stage: "align", Have: 10, Need: 60})

	require.NoError(t, w.WriteScored([]scoring.PairScore{ok, failed}))
	require.NoError(t, w.WriteSelected(nil))
	require.NoError(t, w.MarkLatest(started.Add(time.Minute)))

	r := NewReader(root)
	latest, scored, err := r.Scored()
	require.NoError(t, err)
	assert.Equal(t, "run-123", latest.RunID)
	require.Len(t, scored, 2)
	assert.Equal(t, pair, scored[0].Pair)
	assert.True(t, math.IsInf(scored[1].Score, -1))
	assert.Equal(t, domain.ReasonInsufficientData, scored[1].Reason)

	_, selected, err := r.Selected()
	require.NoError(t, err)
	assert.NotNil(t, selected)
	assert.Empty(t, selected)

	raw, err := os.ReadFile(filepath.Join(w.Dir(), SelectedFile))
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(raw)))

	_, err = os.Stat(filepath.Join(w.Dir(), ScoredFile+".tmp"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "temp file must be renamed away")
}

func TestWriter_JournalAndPnL(t *testing.T) {
	w := NewWriter(t.TempDir(), "r", started)
	pair := domain.NewPairID("IVV", "SPY")
	exitZ := 0.3

	trades := []backtest.TradeRecord{
		{Pair: pair, EntryTime: started, ExitTime: started.Add(48 * time.Hour), Direction: backtest.LongSpread,
			EntryZ: -2.1, ExitZ: &exitZ, Reason: backtest.ReasonExit, NetPnL: 12.5},
		{Pair: pair, EntryTime: started.Add(72 * time.Hour), ExitTime: started.Add(96 * time.Hour), Direction: backtest.ShortSpread,
			EntryZ: 2.4, Reason: backtest.ReasonExit, Forced: true},
	}
	require.NoError(t, w.WriteJournal(pair, trades))
	assert.True(t, strings.HasSuffix(w.JournalPath(pair), "journal_IVV_SPY.jsonl"))

	f, err := os.Open(w.JournalPath(pair))
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "LONG_SPREAD", lines[0]["direction"])
	assert.Nil(t, lines[1]["exit_z"])
	assert.Equal(t, true, lines[1]["forced"])

	pnl := []backtest.PnLPoint{
		{Timestamp: started, Cumulative: 0, State: backtest.Flat},
		{Timestamp: started.Add(24 * time.Hour), Cumulative: -12.5, State: backtest.LongSpread},
	}
	require.NoError(t, w.WritePnL(pair, pnl))
	raw, err := os.ReadFile(w.PnLPath(pair))
	require.NoError(t, err)
	assert.Equal(t,
		"ts,cumulative_pnl,state\n2024-05-06T22:30:00Z,0,FLAT\n2024-05-07T22:30:00Z,-12.5,LONG_SPREAD\n",
		string(raw))
}

func TestReader_NoRunYet(t *testing.T) {
	_, _, err := NewReader(t.TempDir()).Scored()
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteJSONAtomic_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "x.json")
	require.NoError(t, WriteJSONAtomic(path, map[string]int{"a": 1}))
	require.NoError(t, WriteJSONAtomic(path, map[string]int{"a": 2}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(raw))
}
