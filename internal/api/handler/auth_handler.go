package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"algoverse/internal/api/middleware"
	"algoverse/internal/app/service"
	"algoverse/internal/common"
)

type AuthHandler struct {
	authService *service.AuthService
	requireAuth func(http.Handler) http.Handler
}

func NewAuthHandler(authService *service.AuthService, requireAuth func(http.Handler) http.Handler) *AuthHandler {
	return &AuthHandler{authService: authService, requireAuth: requireAuth}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.With(h.requireAuth).Get("/auth/me", h.me)
}

// me returns the caller's profile, provisioning it on first use.
func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	profile, err := h.authService.Me(r.Context(), identity)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, profile)
}
