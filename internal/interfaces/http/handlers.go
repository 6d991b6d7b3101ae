package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/jefflab/macroscope/internal/persistence"
	"github.com/jefflab/macroscope/internal/pipeline"
)

// errorEnvelope is the uniform failure body for every endpoint.
type errorEnvelope struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	requestID, _ := r.Context().Value(requestIDKey).(string)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, status, errorEnvelope{Error: msg, RequestID: requestID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"policy": s.engine.Policy().Name,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.engine.Scan(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	if ticker == "" {
		writeError(w, r, http.StatusBadRequest, "ticker is required")
		return
	}
	points, err := s.engine.SignalSeries(r.Context(), ticker)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	if len(points) == 0 {
		writeError(w, r, http.StatusNotFound, "no signal history for "+ticker)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticker":  ticker,
		"points":  points,
		"updated": time.Now().UTC().Format(time.RFC3339),
	})
}

// backtestRequest is the POST body for /api/v1/backtest.
type backtestRequest struct {
	Ticker string `json:"ticker"`
	From   string `json:"from"` // YYYY-MM-DD, optional
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Ticker == "" {
		writeError(w, r, http.StatusBadRequest, "ticker is required")
		return
	}

	var from time.Time
	if req.From != "" {
		parsed, err := time.Parse("2006-01-02", req.From)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = parsed
	}

	result, err := s.engine.Backtest(r.Context(), pipeline.BacktestRequest{
		Ticker: req.Ticker,
		From:   from,
	})
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleArchive reports how many bars the price archive holds per ticker.
// Operators use it to judge whether offline replay is viable before pulling
// the network cable. Optional from/to query params bound the window.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	tr := persistence.TimeRange{From: now.AddDate(-5, 0, 0), To: now}

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		tr.From = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		tr.To = parsed
	}

	coverage, err := s.engine.ArchiveCoverage(r.Context(), tr)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":     tr.From.Format("2006-01-02"),
		"to":       tr.To.Format("2006-01-02"),
		"coverage": coverage,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "not found: "+r.URL.Path)
}
