package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

// DailyHandler serves the daily category and its scheduled selection task.
type DailyHandler struct {
	deps       DailyDependencies
	cronSecret string
	now        func() time.Time
}

// NewDailyHandler creates a new daily handler.
func NewDailyHandler(deps DailyDependencies) *DailyHandler {
	return &DailyHandler{deps: deps, now: time.Now}
}

type dailyResponse struct {
	Slug string `json:"slug"`
}

type selectTaskResponse struct {
	Success   bool   `json:"success"`
	Slug      string `json:"slug"`
	Timestamp string `json:"timestamp"`
}

// HandleDaily handles GET /api/daily.
func (h *DailyHandler) HandleDaily(w http.ResponseWriter, r *http.Request) {
	slug, err := h.deps.Daily(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dailyResponse{Slug: slug})
}

// HandleSelectTask handles GET /api/tasks/select-daily-category. It needs
// Authorization: Bearer <cron secret>; with no secret configured it always refuses.
func (h *DailyHandler) HandleSelectTask(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
		return
	}
	slug, err := h.deps.SelectDaily(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectTaskResponse{
		Success:   true,
		Slug:      slug,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *DailyHandler) authorized(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
}
