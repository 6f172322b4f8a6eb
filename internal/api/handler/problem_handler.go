package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"algoverse/internal/app/service"
	"algoverse/internal/common"
)

type ProblemHandler struct {
	problemService *service.ProblemService
}

func NewProblemHandler(ps *service.ProblemService) *ProblemHandler {
	return &ProblemHandler{problemService: ps}
}

func (h *ProblemHandler) RegisterRoutes(r chi.Router) {
	r.Get("/problems", h.listProblems) // ?user_id= adds progress
	r.Get("/problems/{problemID}", h.getProblem)
	r.Get("/languages", h.listLanguages)
}

func (h *ProblemHandler) listProblems(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	problems, err := h.problemService.ListProblems(r.Context(), userID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{"problems": problems})
}

func (h *ProblemHandler) getProblem(w http.ResponseWriter, r *http.Request) {
	problemID := chi.URLParam(r, "problemID")

	detail, err := h.problemService.GetProblem(r.Context(), problemID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, detail)
}

func (h *ProblemHandler) listLanguages(w http.ResponseWriter, r *http.Request) {
	langs, err := h.problemService.ListLanguages(r.Context())
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	slugs := make([]string, 0, len(langs))
	for _, l := range langs {
		slugs = append(slugs, l.Slug)
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{"languages": slugs})
}
