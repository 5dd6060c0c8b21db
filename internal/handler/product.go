package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetProduct handles GET /products/{id}. Stock is the value at read time.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeProduct(p))
}
