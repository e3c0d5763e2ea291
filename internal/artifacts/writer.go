// Package artifacts writes run outputs under <dir>/<YYYY-MM-DD>/<run_id>/.
package artifacts

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sawpanic/pairsarb/internal/backtest"
	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/scoring"
)

// File names inside a run directory
const (
	ScoredFile    = "pairs_scored.json"
	SelectedFile  = "pairs_selected.json"
	SummaryFile   = "backtest_summary.json"
	RunParamsFile = "run_params.json"
	LatestFile    = "latest.json"
)

// Writer handles writing run artifacts to disk
type Writer struct {
	root   string
	runID  string
	runDir string
}

// NewWriter creates a writer for one run. The date directory comes from
// startedAt in UTC.
func NewWriter(outputDir, runID string, startedAt time.Time) *Writer {
	return &Writer{
		root:   outputDir,
		runID:  runID,
		runDir: filepath.Join(outputDir, startedAt.UTC().Format("2006-01-02"), runID),
	}
}

// Dir returns the run directory
func (w *Writer) Dir() string { return w.runDir }

// RunID returns the run identifier
func (w *Writer) RunID() string { return w.runID }

// WriteScored writes the full audit table, failures included
func (w *Writer) WriteScored(rows []scoring.PairScore) error {
	return WriteJSONAtomic(filepath.Join(w.runDir, ScoredFile), nonNil(rows))
}

// WriteSelected writes the ranked selection
func (w *Writer) WriteSelected(rows []scoring.PairScore) error {
	return WriteJSONAtomic(filepath.Join(w.runDir, SelectedFile), nonNil(rows))
}

// JournalPath returns the trade journal path for a pair
func (w *Writer) JournalPath(pair domain.PairID) string {
	return filepath.Join(w.runDir, fmt.Sprintf("journal_%s_%s.jsonl", pair.A, pair.B))
}

// PnLPath returns the PnL series path for a pair
func (w *Writer) PnLPath(pair domain.PairID) string {
	return filepath.Join(w.runDir, fmt.Sprintf("pnl_%s_%s.csv", pair.A, pair.B))
}

// WriteJournal writes one JSON line per closed trade
func (w *Writer) WriteJournal(pair domain.PairID, trades []backtest.TradeRecord) error {
	lines := make([][]byte, 0, len(trades))
	for _, t := range trades {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal trade: %w", err)
		}
		lines = append(lines, b)
	}
	return WriteLinesAtomic(w.JournalPath(pair), lines)
}

// WritePnL writes ts,cumulative_pnl,state rows
func (w *Writer) WritePnL(pair domain.PairID, pnl []backtest.PnLPoint) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write([]string{"ts", "cumulative_pnl", "state"}); err != nil {
		return err
	}
	for _, p := range pnl {
		row := []string{
			p.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(p.Cumulative, 'f', -1, 64),
			string(p.State),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to encode pnl csv: %w", err)
	}
	return WriteFileAtomic(w.PnLPath(pair), buf.Bytes())
}

// WriteSummary writes backtest_summary.json
func (w *Writer) WriteSummary(v any) error {
	return WriteJSONAtomic(filepath.Join(w.runDir, SummaryFile), v)
}

// WriteRunParams writes run_params.json
func (w *Writer) WriteRunParams(v any) error {
	return WriteJSONAtomic(filepath.Join(w.runDir, RunParamsFile), v)
}

// Latest points at the most recently completed run
type Latest struct {
	RunID     string    `json:"run_id"`
	Dir       string    `json:"dir"`
	Completed time.Time `json:"completed_at"`
}

// MarkLatest records this run as the latest under the output root
func (w *Writer) MarkLatest(completed time.Time) error {
	rel, err := filepath.Rel(w.root, w.runDir)
	if err != nil {
		rel = w.runDir
	}
	return WriteJSONAtomic(filepath.Join(w.root, LatestFile), Latest{RunID: w.runID, Dir: rel, Completed: completed.UTC()})
}

// Reader loads artifacts of the latest run
type Reader struct {
	root string
}

// NewReader creates a reader over an output root
func NewReader(outputDir string) *Reader {
	return &Reader{root: outputDir}
}

// Latest returns the latest run pointer, or os.ErrNotExist when no run completed
func (r *Reader) Latest() (Latest, error) {
	var l Latest
	data, err := os.ReadFile(filepath.Join(r.root, LatestFile))
	if err != nil {
		return l, err
	}
	if err := json.Unmarshal(data, &l); err != nil {
		return l, fmt.Errorf("failed to parse %s: %w", LatestFile, err)
	}
	return l, nil
}

// Scored returns the latest run's audit table
func (r *Reader) Scored() (Latest, []scoring.PairScore, error) {
	return r.table(ScoredFile)
}

// Selected returns the latest run's selection
func (r *Reader) Selected() (Latest, []scoring.PairScore, error) {
	return r.table(SelectedFile)
}

func (r *Reader) table(name string) (Latest, []scoring.PairScore, error) {
	l, err := r.Latest()
	if err != nil {
		return l, nil, err
	}
	data, err := os.ReadFile(filepath.Join(r.root, l.Dir, name))
	if err != nil {
		return l, nil, err
	}
	var rows []scoring.PairScore
	if err := json.Unmarshal(data, &rows); err != nil {
		return l, nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return l, rows, nil
}

func nonNil(rows []scoring.PairScore) []scoring.PairScore {
	if rows == nil {
		return []scoring.PairScore{}
	}
	return rows
}
