package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/onboarding/internal/domain"
)

// Diagnostics returns a fresh account-health report (admin only)
func (h *Handlers) Diagnostics(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid identity ID", "INVALID_INPUT")
		return
	}

	sessionToken := r.URL.Query().Get("session_token")

	report, err := h.diagnostics.Diagnose(r.Context(), id, sessionToken)
	if err != nil {
		writeOutcome(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Repair re-derives a missing business account record (admin only)
func (h *Handlers) Repair(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid identity ID", "INVALID_INPUT")
		return
	}

	var fallback domain.SignupMetadata
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&fallback); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
			return
		}
	}

	created, err := h.diagnostics.Repair(r.Context(), id, fallback)
	if err != nil {
		writeOutcome(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"created": created,
	})
}
