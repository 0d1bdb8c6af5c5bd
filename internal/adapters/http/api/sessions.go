package api

import (
	"net/http"
	"strconv"
)

// SessionHandler serves game sessions and guesses.
type SessionHandler struct {
	deps SessionDependencies
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps SessionDependencies) *SessionHandler {
	return &SessionHandler{deps: deps}
}

type sessionRequest struct {
	Slug string `json:"slug" validate:"required"`
}

type guessRequest struct {
	Guess string `json:"guess" validate:"required,max=200"`
}

// HandleCreate handles POST /api/sessions.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	start, err := h.deps.StartSession(r.Context(), req.Slug)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, start)
}

// HandleGet handles GET /api/sessions/{id}.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleGuess handles POST /api/sessions/{id}/guesses. A rate limited live
// lookup is still a 200 so the client can show progress; it carries Retry-After.
func (h *SessionHandler) HandleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessRequest
	if err := decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	res, err := h.deps.Guess(r.Context(), r.PathValue("id"), req.Guess)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if res.RateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(float64(res.RetryAfterS))))
	}
	writeJSON(w, http.StatusOK, res)
}
