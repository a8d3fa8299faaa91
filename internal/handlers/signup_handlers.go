package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/diagnosis/onboarding/internal/domain"
)

// Signup handles new business account registration
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	resp, err := h.signupService.Signup(r.Context(), &req)
	if err != nil {
		writeOutcome(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ResendOTP reissues a verification code for a pending signup
func (h *Handlers) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	resp, err := h.signupService.Resend(r.Context(), &req)
	if err != nil {
		writeOutcome(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// VerifyOTP consumes a code, confirms the identity and establishes a session
func (h *Handlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	resp, err := h.verifyService.Verify(r.Context(), &req)
	if err != nil {
		writeOutcome(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
