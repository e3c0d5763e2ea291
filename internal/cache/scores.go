package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"math"
	"time"

	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/scoring"
)

const keyPrefix = "pairsarb:score:v1:"

// Scores caches PairScore rows. Scoring is a pure function of the two series
// and the scorer, so the key is a digest of exactly those.
type Scores struct {
	c   Cache
	ttl time.Duration
}

// NewScores wraps a cache. A nil cache disables caching.
func NewScores(c Cache, ttl time.Duration) *Scores {
	return &Scores{c: c, ttl: ttl}
}

// Enabled reports whether a backend is configured
func (s *Scores) Enabled() bool { return s != nil && s.c != nil }

// Key returns the cache key for scoring x against y. Argument order does not matter.
func Key(s scoring.Scorer, x, y domain.PriceSeries) string {
	if y.Symbol < x.Symbol {
		x, y = y, x
	}
	h := sha256.New()
	fmt.Fprintf(h, "%+v\n", s)
	writeSeries(h, x)
	writeSeries(h, y)
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

func writeSeries(h hash.Hash, s domain.PriceSeries) {
	fmt.Fprintf(h, "%s:%d\n", s.Symbol, len(s.Bars))
	var buf [8]byte
	put := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	for _, b := range s.Bars {
		binary.LittleEndian.PutUint64(buf[:], uint64(b.Timestamp.UnixNano()))
		h.Write(buf[:])
		put(b.Close)
		put(b.AdjustedClose)
	}
}

// Get returns a cached row
func (s *Scores) Get(ctx context.Context, key string) (scoring.PairScore, bool) {
	if !s.Enabled() {
		return scoring.PairScore{}, false
	}
	b, ok := s.c.Get(ctx, key)
	if !ok {
		return scoring.PairScore{}, false
	}
	var row scoring.PairScore
	if err := json.Unmarshal(b, &row); err != nil {
		return scoring.PairScore{}, false
	}
	return row, true
}

// Put stores a row
func (s *Scores) Put(ctx context.Context, key string, row scoring.PairScore) {
	if !s.Enabled() {
		return
	}
	b, err := json.Marshal(row)
	if err != nil {
		return
	}
	s.c.Set(ctx, key, b, s.ttl)
}
