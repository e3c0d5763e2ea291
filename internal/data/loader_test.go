package data

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spyCSV = `date,open,high,low,close,adj_close,volume
2024-01-02,470.1,472.0,468.5,471.0,469.2,1000
2024-01-03,471.0,473.5,470.0,472.5,,1200
2024-01-04,472.5,474.0,471.1,473.0,471.4,900
`

func TestRead_ParsesBars(t *testing.T) {
	s, err := NewLoader("").Read(strings.NewReader(spyCSV), "SPY")
	require.NoError(t, err)
	require.Len(t, s.Bars, 3)

	assert.Equal(t, "SPY", s.Symbol)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), s.Bars[0].Timestamp)
	assert.Equal(t, 469.2, s.Bars[0].AdjustedClose)
	assert.Equal(t, 0.0, s.Bars[1].AdjustedClose, "missing adj_close falls back to close")
	assert.Equal(t, 472.5, s.Bars[1].Close)
}

func TestRead_NormalizesTimezoneToUTC(t *testing.T) {
	in := "Date,Close,Adj Close\n2024-01-02T16:00:00-05:00,10,10\n2024-01-03T16:00:00-05:00,11,11\n"
	s, err := NewLoader("").Read(strings.NewReader(in), "X")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC), s.Bars[0].Timestamp)
	assert.Equal(t, time.UTC, s.Bars[0].Timestamp.Location())
}

func TestRead_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		errMsg string
	}{
		{"missing close column", "date,open\n2024-01-02,1\n", `"close"`},
		{"duplicate timestamp", "date,close\n2024-01-02,1\n2024-01-02,2\n", "duplicate timestamp"},
		{"out of order", "date,close\n2024-01-03,1\n2024-01-02,2\n", "not increasing"},
		{"bad date", "date,close\nyesterday,1\n", "unable to parse timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader("").Read(strings.NewReader(tt.in), "X")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRead_UnparseableCloseIsNaN(t *testing.T) {
	s, err := NewLoader("").Read(strings.NewReader("date,close\n2024-01-02,n/a\n"), "X")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(s.Bars[0].Close))
}

func TestRead_WarnsOnceForUnparseableCells(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	in := "date,close,volume\n2024-01-02,471.0,\n2024-01-03,n/a,100\n2024-01-04,472.0,x\n"
	s, err := NewLoader("").Read(strings.NewReader(in), "X")
	require.NoError(t, err)
	require.Len(t, s.Bars, 3)
	assert.True(t, math.IsNaN(s.Bars[1].Close))
	assert.Equal(t, 0.0, s.Bars[2].Volume)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "X", entry["symbol"])
	assert.Equal(t, 2.0, entry["cells"])
	assert.Equal(t, 3.0, entry["first_row"])

	buf.Reset()
	_, err = NewLoader("").Read(strings.NewReader(spyCSV), "SPY")
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestUniverse_DedupesPreservingOrder(t *testing.T) {
	assert.Equal(t, []string{"SPY", "IVV", "QQQ"}, Universe([]string{"SPY", "IVV", "SPY", " ", "QQQ", "IVV"}))
}

func TestLoadUniverse(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SPY.csv"), []byte(spyCSV), 0o644))

	series, failed, err := NewLoader(dir).LoadUniverse(context.Background(), []string{"SPY", "NOPE", "SPY"})
	require.NoError(t, err)
	assert.Len(t, series, 1)
	assert.Len(t, series["SPY"].Bars, 3)
	require.Contains(t, failed, "NOPE")
	assert.Contains(t, failed["NOPE"].Error(), "failed to open CSV file")
}

func TestLoadUniverse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewLoader(t.TempDir()).LoadUniverse(ctx, []string{"SPY"})
	assert.ErrorIs(t, err, context.Canceled)
}
