package api

import (
	"net/http"

	"github.com/bpbrianpark/enigma-game/internal/domain/types"
)

// CategoryHandler serves category reads, aliases, refresh and tally.
type CategoryHandler struct {
	deps CategoryDependencies
}

// NewCategoryHandler creates a new category handler.
func NewCategoryHandler(deps CategoryDependencies) *CategoryHandler {
	return &CategoryHandler{deps: deps}
}

type categoriesResponse struct {
	Categories []types.Category `json:"categories"`
}

type entriesResponse struct {
	OK      bool          `json:"ok"`
	Entries []types.Entry `json:"entries"`
}

type aliasRequest struct {
	EntryID string `json:"entry_id" validate:"required"`
	Label   string `json:"label" validate:"required,max=200"`
}

type aliasResponse struct {
	Alias types.Alias `json:"alias"`
}

type refreshRequest struct {
	Slug string `json:"slug" validate:"required"`
}

type tallyRequest struct {
	Slug    string            `json:"slug" validate:"required"`
	Entries []types.TallyItem `json:"entries" validate:"required,max=1000"`
}

// HandleList handles GET /api/categories.
func (h *CategoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	cats, err := h.deps.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: cats})
}

// HandleGet handles GET /api/categories/{slug}.
func (h *CategoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	cat, err := h.deps.Category(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

// HandleEntries handles GET /api/categories/{slug}/entries.
func (h *CategoryHandler) HandleEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Entries(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entriesResponse{OK: true, Entries: entries})
}

// HandleCreateAlias handles POST /api/categories/{slug}/aliases.
func (h *CategoryHandler) HandleCreateAlias(w http.ResponseWriter, r *http.Request) {
	var req aliasRequest
	if err := decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	alias, err := h.deps.CreateAlias(r.Context(), r.PathValue("slug"), req.EntryID, req.Label)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, aliasResponse{Alias: alias})
}

// HandleRefresh handles POST /api/categories/refresh.
func (h *CategoryHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	res, err := h.deps.Refresh(r.Context(), req.Slug)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleTally handles POST /api/entries/tally.
func (h *CategoryHandler) HandleTally(w http.ResponseWriter, r *http.Request) {
	var req tallyRequest
	if err := decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	res, err := h.deps.Tally(r.Context(), req.Slug, req.Entries)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
