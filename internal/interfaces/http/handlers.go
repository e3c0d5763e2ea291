package http

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/sawpanic/pairsarb/internal/artifacts"
	"github.com/sawpanic/pairsarb/internal/persistence"
	"github.com/sawpanic/pairsarb/internal/scoring"
)

type handlers struct {
	reader    *artifacts.Reader
	db        persistence.RepositoryHealth
	startTime time.Time
}

// HealthResponse is the /health body
type HealthResponse struct {
	Status    string                   `json:"status"` // healthy, degraded, unhealthy
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	LatestRun *artifacts.Latest        `json:"latest_run,omitempty"`
	Database  *persistence.HealthCheck `json:"database,omitempty"`
	Errors    []string                 `json:"errors,omitempty"`
}

// PairsResponse is the body of the pair table endpoints
type PairsResponse struct {
	RunID     string              `json:"run_id"`
	Completed time.Time           `json:"completed_at"`
	Count     int                 `json:"count"`
	Pairs     []scoring.PairScore `json:"pairs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	if h.reader != nil {
		latest, err := h.reader.Latest()
		switch {
		case err == nil:
			resp.LatestRun = &latest
		case errors.Is(err, fs.ErrNotExist):
			resp.Status = "degraded"
			resp.Errors = append(resp.Errors, "no completed run")
		default:
			resp.Status = "degraded"
			resp.Errors = append(resp.Errors, err.Error())
		}
	}

	if h.db != nil {
		check := h.db.Health(r.Context())
		resp.Database = &check
		if !check.Healthy {
			resp.Status = "unhealthy"
		}
	}

	code := http.StatusOK
	if resp.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, code, resp)
}

func (h *handlers) scored(w http.ResponseWriter, r *http.Request) {
	h.table(w, r, h.reader.Scored)
}

func (h *handlers) selected(w http.ResponseWriter, r *http.Request) {
	h.table(w, r, h.reader.Selected)
}

func (h *handlers) table(w http.ResponseWriter, r *http.Request, read func() (artifacts.Latest, []scoring.PairScore, error)) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	latest, rows, err := read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "no completed run")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []scoring.PairScore{}
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}

	writeJSON(w, http.StatusOK, PairsResponse{
		RunID:     latest.RunID,
		Completed: latest.Completed,
		Count:     len(rows),
		Pairs:     rows,
	})
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeError(w, http.StatusNotFound, "not found")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
