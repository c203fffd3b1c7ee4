package handler

import (
	"net/http"

	"contest_judge/internal/app/judge"
	"contest_judge/internal/common"

	"github.com/go-chi/chi/v5"
)

// LanguageHandler lists the languages submissions may use.
type LanguageHandler struct {
	catalog *judge.Catalog
}

func NewLanguageHandler(catalog *judge.Catalog) *LanguageHandler {
	return &LanguageHandler{catalog: catalog}
}

func (h *LanguageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listLanguages) // GET /api/v1/languages
}

func (h *LanguageHandler) listLanguages(w http.ResponseWriter, r *http.Request) {
	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"languages": h.catalog.Active(),
	})
}
