package api

import (
	"net/http"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
)

// QueryHandler proxies raw queries through the shared gateway.
type QueryHandler struct {
	deps QueryDependencies
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(deps QueryDependencies) *QueryHandler {
	return &QueryHandler{deps: deps}
}

type queryRequest struct {
	Query string `json:"query" validate:"required,max=20000"`
}

type queryResponse struct {
	Rows []model.Row `json:"rows"`
}

// HandleQuery handles POST /api/query.
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	rows, err := h.deps.Query(r.Context(), req.Query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rows == nil {
		rows = []model.Row{}
	}
	writeJSON(w, http.StatusOK, queryResponse{Rows: rows})
}
