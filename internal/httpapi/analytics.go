package httpapi

import (
	"net/http"

	"github.com/bookstore/services/rental/internal/analytics"
)

type inventoryResponse struct {
	Consistent bool              `json:"consistent"`
	Drift      []analytics.Drift `json:"drift"`
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "as_of must be YYYY-MM-DD")
		return
	}

	dashboard, err := h.Analytics.Dashboard(r.Context(), asOf)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (h *Handler) handleInventory(w http.ResponseWriter, r *http.Request) {
	drift, err := h.Analytics.CheckInventory(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inventoryResponse{Consistent: len(drift) == 0, Drift: drift})
}
