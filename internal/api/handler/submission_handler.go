package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"algoverse/internal/api/middleware"
	"algoverse/internal/app/service"
	"algoverse/internal/common"
)

type SubmissionHandler struct {
	submissionService *service.SubmissionService
	requireAuth       func(http.Handler) http.Handler
	runLimit          func(http.Handler) http.Handler
	submitLimit       func(http.Handler) http.Handler
}

func NewSubmissionHandler(ss *service.SubmissionService, requireAuth, runLimit, submitLimit func(http.Handler) http.Handler) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService: ss,
		requireAuth:       requireAuth,
		runLimit:          runLimit,
		submitLimit:       submitLimit,
	}
}

func (h *SubmissionHandler) RegisterRoutes(r chi.Router) {
	r.With(h.runLimit).Post("/run/{problemID}", h.runCode)

	r.Group(func(authed chi.Router) {
		authed.Use(h.requireAuth)
		authed.With(h.submitLimit).Post("/submit/{problemID}", h.submitCode)
		authed.Get("/submissions", h.listSubmissions) // ?problem_id= narrows
		authed.Get("/submissions/{submissionID}", h.getSubmission)
	})
}

func (h *SubmissionHandler) runCode(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}

	result, err := h.submissionService.RunSample(r.Context(), chi.URLParam(r, "problemID"), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, result)
}

func (h *SubmissionHandler) submitCode(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	var req service.SubmitCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}

	report, err := h.submissionService.Submit(r.Context(), identity.ID, chi.URLParam(r, "problemID"), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, report)
}

func (h *SubmissionHandler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	subs, err := h.submissionService.ListSubmissions(r.Context(), identity.ID, r.URL.Query().Get("problem_id"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

func (h *SubmissionHandler) getSubmission(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	detail, err := h.submissionService.GetSubmission(r.Context(), identity.ID, chi.URLParam(r, "submissionID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, detail)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request payload: %v: %w", err, common.ErrBadRequest)
	}
	return nil
}
