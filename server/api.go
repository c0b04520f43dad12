package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"tamperdetect/database"
	"tamperdetect/logging"
	"tamperdetect/report"
	"tamperdetect/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.DebugLog("Failed to write JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleAPICompare(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	rep, err := s.det.Check(ctx, name, data)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := report.NewJSONWriter(w).Write(rep); err != nil {
		logging.DebugLog("Failed to write report: %v", err)
	}
}

func (s *Server) handleAPIGetReference(w http.ResponseWriter, r *http.Request) {
	info, err := s.det.CurrentReference(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAPIPutReference(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	info, err := s.det.SetReference(r.Context(), name, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type historyResponse struct {
	Comparisons []types.ComparisonRecord  `json:"comparisons"`
	Stats       *database.ComparisonStats `json:"stats"`
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "history is disabled"})
		return
	}

	limit := historyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := database.RecentComparisons(s.db, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := database.GetComparisonStats(s.db, r.URL.Query().Get("reference"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{Comparisons: records, Stats: stats})
}
