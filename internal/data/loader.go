// Package data loads daily price history from per-ticker CSV files.
package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pairsarb/internal/domain"
)

// Loader reads <Dir>/<TICKER>.csv files with a
// date,open,high,low,close,adj_close,volume header.
type Loader struct {
	Dir         string
	dateFormats []string
}

// NewLoader creates a loader rooted at dir
func NewLoader(dir string) *Loader {
	return &Loader{
		Dir: dir,
		dateFormats: []string{
			"2006-01-02",
			time.RFC3339,
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05",
		},
	}
}

// Path returns the CSV path for a ticker
func (l *Loader) Path(symbol string) string {
	return filepath.Join(l.Dir, symbol+".csv")
}

// Load reads one ticker
func (l *Loader) Load(symbol string) (domain.PriceSeries, error) {
	return l.LoadFile(l.Path(symbol), symbol)
}

// LoadFile reads a CSV file into a validated series. Timestamps are UTC.
func (l *Loader) LoadFile(path, symbol string) (domain.PriceSeries, error) {
	file, err := os.Open(path)
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	return l.Read(file, symbol)
}

// Read parses CSV from r
func (l *Loader) Read(r io.Reader, symbol string) (domain.PriceSeries, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := mapColumns(header)
	for _, required := range []string{"date", "close"} {
		if _, ok := cols[required]; !ok {
			return domain.PriceSeries{}, fmt.Errorf("%s: CSV missing required %q column", symbol, required)
		}
	}

	series := domain.PriceSeries{Symbol: symbol}
	line := 1
	unparsed, firstRow := 0, 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return domain.PriceSeries{}, fmt.Errorf("failed to read CSV row %d: %w", line, err)
		}

		bar, bad, err := l.parseRecord(record, cols)
		if err != nil {
			return domain.PriceSeries{}, fmt.Errorf("%s row %d: %w", symbol, line, err)
		}
		if bad > 0 && unparsed == 0 {
			firstRow = line
		}
		unparsed += bad
		series.Bars = append(series.Bars, bar)
	}
	if unparsed > 0 {
		log.Warn().
			Str("symbol", symbol).
			Int("cells", unparsed).
			Int("first_row", firstRow).
			Msg("Unparseable CSV cells treated as missing")
	}

	if err := series.Validate(); err != nil {
		return domain.PriceSeries{}, err
	}
	return series, nil
}

// parseRecord also returns the number of non-empty numeric cells that did not parse.
func (l *Loader) parseRecord(record []string, cols map[string]int) (domain.Bar, int, error) {
	ts, err := l.parseTime(field(record, cols, "date"))
	if err != nil {
		return domain.Bar{}, 0, err
	}

	bad := 0
	num := func(name string, missing float64) float64 {
		v, ok := parseFloat(field(record, cols, name), missing)
		if !ok {
			bad++
		}
		return v
	}
	bar := domain.Bar{
		Timestamp:     ts,
		Open:          num("open", math.NaN()),
		High:          num("high", math.NaN()),
		Low:           num("low", math.NaN()),
		Close:         num("close", math.NaN()),
		AdjustedClose: num("adj_close", 0), // 0 falls back to close
		Volume:        num("volume", 0),
	}
	return bar, bad, nil
}

func (l *Loader) parseTime(s string) (time.Time, error) {
	for _, format := range l.dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", s)
}

// mapColumns maps normalized column names to indices
func mapColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, column := range header {
		cols[normalizeColumnName(column)] = i
	}
	return cols
}

func normalizeColumnName(column string) string {
	c := strings.ToLower(strings.TrimSpace(column))
	switch c {
	case "ts", "time", "timestamp", "datetime":
		return "date"
	case "adj close", "adjclose", "adj_close", "adjusted_close":
		return "adj_close"
	default:
		return c
	}
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// parseFloat returns missing for empty or unparseable cells. The bool is false
// only for a non-empty cell that did not parse.
func parseFloat(s string, missing float64) (float64, bool) {
	if s == "" {
		return missing, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return missing, false
	}
	return v, true
}

// Universe de-duplicates tickers, keeping the first occurrence
func Universe(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// LoadUniverse reads every ticker. Tickers that fail to load are reported in
// the error map and absent from the series map; the caller decides whether
// that is fatal.
func (l *Loader) LoadUniverse(ctx context.Context, tickers []string) (map[string]domain.PriceSeries, map[string]error, error) {
	series := make(map[string]domain.PriceSeries, len(tickers))
	failed := make(map[string]error)
	for _, t := range Universe(tickers) {
		if err := ctx.Err(); err != nil {
			return series, failed, err
		}
		s, err := l.Load(t)
		if err != nil {
			failed[t] = err
			continue
		}
		series[t] = s
	}
	return series, failed, nil
}
