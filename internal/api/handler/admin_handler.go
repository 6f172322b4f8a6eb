package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"algoverse/internal/app/service"
	"algoverse/internal/common"
)

type AdminHandler struct {
	problemService *service.ProblemService
	adminService   *service.AdminService
	requireAuth    func(http.Handler) http.Handler
	adminOnly      func(http.Handler) http.Handler
}

func NewAdminHandler(ps *service.ProblemService, as *service.AdminService, requireAuth, adminOnly func(http.Handler) http.Handler) *AdminHandler {
	return &AdminHandler{
		problemService: ps,
		adminService:   as,
		requireAuth:    requireAuth,
		adminOnly:      adminOnly,
	}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(h.requireAuth)
		admin.Use(h.adminOnly)

		admin.Get("/stats", h.stats)
		admin.Get("/users", h.listUsers)
		admin.Post("/problems", h.createProblem)
		admin.Put("/problems/{problemID}", h.updateProblem)
		admin.Delete("/problems/{problemID}", h.deleteProblem)
		admin.Get("/problems/{problemID}/testcases", h.listTestCases)
		admin.Post("/testcases", h.addTestCase)
	})
}

func (h *AdminHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.adminService.Stats(r.Context())
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.adminService.ListUsers(r.Context())
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *AdminHandler) createProblem(w http.ResponseWriter, r *http.Request) {
	var req service.ProblemRequest
	if err := decodeJSON(r, &req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}

	problem, err := h.problemService.CreateProblem(r.Context(), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, map[string]any{
		"problem": problem,
		"message": "Problem created successfully",
	})
}

func (h *AdminHandler) updateProblem(w http.ResponseWriter, r *http.Request) {
	var req service.ProblemRequest
	if err := decodeJSON(r, &req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}

	problem, err := h.problemService.UpdateProblem(r.Context(), chi.URLParam(r, "problemID"), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{
		"problem": problem,
		"message": "Problem updated successfully",
	})
}

func (h *AdminHandler) deleteProblem(w http.ResponseWriter, r *http.Request) {
	if err := h.problemService.DeleteProblem(r.Context(), chi.URLParam(r, "problemID")); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Problem deleted successfully"})
}

func (h *AdminHandler) listTestCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.problemService.ListTestCases(r.Context(), chi.URLParam(r, "problemID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{"testcases": cases})
}

func (h *AdminHandler) addTestCase(w http.ResponseWriter, r *http.Request) {
	var req service.TestCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}

	tc, err := h.problemService.AddTestCase(r.Context(), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, map[string]any{
		"testcase": tc,
		"message":  "Test case added successfully",
	})
}
