package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/diagnosis/onboarding/internal/domain"
	"github.com/diagnosis/onboarding/internal/repository"
	"github.com/diagnosis/onboarding/internal/service"
	"github.com/diagnosis/onboarding/pkg/auth"
	"github.com/diagnosis/onboarding/pkg/config"
	"github.com/diagnosis/onboarding/pkg/logger"
)

type Handlers struct {
	signupService service.SignupService
	verifyService service.VerifyService
	diagnostics   service.DiagnosticsService
	rateLimitRepo repository.RateLimitRepository
	config        *config.Config
}

func New(
	signupService service.SignupService,
	verifyService service.VerifyService,
	diagnostics service.DiagnosticsService,
	rateLimitRepo repository.RateLimitRepository,
	config *config.Config,
) *Handlers {
	return &Handlers{
		signupService: signupService,
		verifyService: verifyService,
		diagnostics:   diagnostics,
		rateLimitRepo: rateLimitRepo,
		config:        config,
	}
}

// RequireAdminJWT guards the operator surface
func (h *Handlers) RequireAdminJWT() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header", "UNAUTHORIZED")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := auth.Parse(token, h.config.Auth.JWTSecret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token", "INVALID_TOKEN")
				return
			}

			if claims.Role != domain.AccountTypeAdmin {
				writeError(w, http.StatusForbidden, "Insufficient permissions", "FORBIDDEN")
				return
			}

			ctx := context.WithValue(r.Context(), logger.IdentityIDKey, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SignupRateLimit caps signup-flow requests per client IP
func (h *Handlers) SignupRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			key := "signup_flow:" + clientIP

			allowed, err := h.rateLimitRepo.CheckRateLimit(r.Context(), key, 10, time.Minute)
			if err != nil {
				logger.ErrorContext(r.Context(), "Rate limit check failed", "error", err)
				// Allow request on error (fail open)
			} else if !allowed {
				writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.", "RATE_LIMIT_EXCEEDED")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	response := map[string]string{
		"error": message,
		"code":  code,
	}
	writeJSON(w, statusCode, response)
}

// writeOutcome maps a pipeline failure onto the wire contract: malformed
// input is 400, internal faults are 500, and every handled business
// outcome is 200 with the error field disambiguating.
func writeOutcome(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindValidation:
		writeError(w, http.StatusBadRequest, domain.MessageOf(err), string(kind))
	case domain.KindInternal:
		logger.ErrorContext(r.Context(), "Unhandled pipeline error", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error", string(kind))
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   domain.MessageOf(err),
			"code":    string(kind),
		})
	}
}
