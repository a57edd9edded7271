package httpapi

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultResultsLimit = 50
	maxResultsLimit     = 500
)

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.results == nil {
		// without a store only the queue's recent results are known
		writeJSON(w, http.StatusOK, s.queue.Snapshot().Recent)
		return
	}

	query := r.URL.Query()
	limit := parsePositiveIntWithDefault(query.Get("limit"), defaultResultsLimit)
	if limit == 0 || limit > maxResultsLimit {
		limit = maxResultsLimit
	}

	results, err := s.results.ListResults(r.Context(), strings.TrimSpace(query.Get("run_id")), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func parsePositiveIntWithDefault(raw string, def int) int {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
