package api

import (
	"fmt"
	"net/http"
)

// StatsHandler serves GET /stats.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler wraps a stats provider.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats writes the service snapshot. ?section=gateway narrows it to the
// gateway counters and ?section=sessions to the live session count.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.statsProvider.GetStats(r.Context())
	switch section := r.URL.Query().Get("section"); section {
	case "":
		writeJSON(w, http.StatusOK, stats)
	case "gateway":
		writeJSON(w, http.StatusOK, stats.Gateway)
	case "sessions":
		writeJSON(w, http.StatusOK, map[string]int{"sessions": stats.Sessions})
	default:
		writeServiceError(w, fmt.Errorf("%w: unknown stats section %q", ErrBadRequest, section))
	}
}
