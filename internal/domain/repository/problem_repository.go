package repository

import (
	"context"
	"fmt"

	"algoverse/internal/common"
	"algoverse/internal/domain/model"
	"algoverse/internal/platform/store"
)

const (
	problemsTable  = "problems"
	testCasesTable = "testcases"
	languagesTable = "languages"
)

var problemListFields = []string{"id", "title", "slug", "difficulty", "tags"}

type ProblemRepository interface {
	ListProblems(ctx context.Context) ([]model.Problem, error)
	FindProblemByID(ctx context.Context, id string) (*model.Problem, error)
	CreateProblem(ctx context.Context, problem *model.Problem) error
	UpdateProblem(ctx context.Context, problem *model.Problem) (*model.Problem, error)
	DeleteProblem(ctx context.Context, id string) error
	CountProblems(ctx context.Context) (int, error)

	GetTestCasesByProblemID(ctx context.Context, problemID string) ([]model.TestCase, error)
	GetSampleTestCases(ctx context.Context, problemID string) ([]model.TestCase, error)
	AddTestCase(ctx context.Context, tc *model.TestCase) error

	GetLanguageBySlug(ctx context.Context, slug string) (*model.Language, error)
	ListLanguages(ctx context.Context) ([]model.Language, error)
}

type problemRepository struct {
	gw store.Gateway
}

func NewProblemRepository(gw store.Gateway) ProblemRepository {
	return &problemRepository{gw: gw}
}

func (r *problemRepository) ListProblems(ctx context.Context) ([]model.Problem, error) {
	rows, err := r.gw.Fetch(ctx, problemsTable, store.Query{Select: problemListFields})
	if err != nil {
		return nil, fmt.Errorf("problemRepository.ListProblems: %w", err)
	}
	problems := []model.Problem{}
	if err := store.Decode(rows, &problems); err != nil {
		return nil, fmt.Errorf("problemRepository.ListProblems: %w", err)
	}
	return problems, nil
}

func (r *problemRepository) FindProblemByID(ctx context.Context, id string) (*model.Problem, error) {
	rows, err := r.gw.Fetch(ctx, problemsTable, store.Query{Filter: store.Where(store.Eq("id", id)), Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("problemRepository.FindProblemByID: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("problem not found: %w", common.ErrNotFound)
	}
	problem := &model.Problem{}
	if err := store.Decode(rows[0], problem); err != nil {
		return nil, fmt.Errorf("problemRepository.FindProblemByID: %w", err)
	}
	return problem, nil
}

func (r *problemRepository) CreateProblem(ctx context.Context, p *model.Problem) error {
	rec := store.Record{
		"id":          p.ID,
		"title":       p.Title,
		"slug":        p.Slug,
		"description": p.Description,
		"difficulty":  p.Difficulty,
		"tags":        tagsOrEmpty(p.Tags),
	}
	if p.CreatedAt != nil {
		rec["created_at"] = *p.CreatedAt
	}
	if _, err := r.gw.Insert(ctx, problemsTable, rec); err != nil {
		return fmt.Errorf("problemRepository.CreateProblem: %w", err)
	}
	return nil
}

func (r *problemRepository) UpdateProblem(ctx context.Context, p *model.Problem) (*model.Problem, error) {
	rows, err := r.gw.Update(ctx, problemsTable, store.Where(store.Eq("id", p.ID)), store.Record{
		"title":       p.Title,
		"slug":        p.Slug,
		"description": p.Description,
		"difficulty":  p.Difficulty,
		"tags":        tagsOrEmpty(p.Tags),
	})
	if err != nil {
		return nil, fmt.Errorf("problemRepository.UpdateProblem: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("problem not found: %w", common.ErrNotFound)
	}
	updated := &model.Problem{}
	if err := store.Decode(rows[0], updated); err != nil {
		return nil, fmt.Errorf("problemRepository.UpdateProblem: %w", err)
	}
	return updated, nil
}

func (r *problemRepository) DeleteProblem(ctx context.Context, id string) error {
	rows, err := r.gw.Delete(ctx, problemsTable, store.Where(store.Eq("id", id)))
	if err != nil {
		return fmt.Errorf("problemRepository.DeleteProblem: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("problem not found: %w", common.ErrNotFound)
	}
	return nil
}

func (r *problemRepository) CountProblems(ctx context.Context) (int, error) {
	rows, err := r.gw.Fetch(ctx, problemsTable, store.Query{Select: []string{"id"}})
	if err != nil {
		return 0, fmt.Errorf("problemRepository.CountProblems: %w", err)
	}
	return len(rows), nil
}

func (r *problemRepository) GetTestCasesByProblemID(ctx context.Context, problemID string) ([]model.TestCase, error) {
	return r.testCases(ctx, store.Where(store.Eq("problem_id", problemID)))
}

func (r *problemRepository) GetSampleTestCases(ctx context.Context, problemID string) ([]model.TestCase, error) {
	return r.testCases(ctx, store.Where(store.Eq("problem_id", problemID), store.Eq("is_sample", true)))
}

func (r *problemRepository) testCases(ctx context.Context, filter store.Filter) ([]model.TestCase, error) {
	rows, err := r.gw.Fetch(ctx, testCasesTable, store.Query{Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("problemRepository.testCases: %w", err)
	}
	cases := []model.TestCase{}
	if err := store.Decode(rows, &cases); err != nil {
		return nil, fmt.Errorf("problemRepository.testCases: %w", err)
	}
	return cases, nil
}

func (r *problemRepository) AddTestCase(ctx context.Context, tc *model.TestCase) error {
	_, err := r.gw.Insert(ctx, testCasesTable, store.Record{
		"id":              tc.ID,
		"problem_id":      tc.ProblemID,
		"input":           tc.Input,
		"expected_output": tc.ExpectedOutput,
		"is_sample":       tc.IsSample,
		"points":          tc.Points,
	})
	if err != nil {
		return fmt.Errorf("problemRepository.AddTestCase: %w", err)
	}
	return nil
}

// Language methods
func (r *problemRepository) GetLanguageBySlug(ctx context.Context, slug string) (*model.Language, error) {
	rows, err := r.gw.Fetch(ctx, languagesTable, store.Query{Filter: store.Where(store.Eq("slug", slug)), Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("problemRepository.GetLanguageBySlug: %w", err)
	}
	if len(rows) == 0 {
		return nil, common.ErrNotFound
	}
	lang := &model.Language{}
	if err := store.Decode(rows[0], lang); err != nil {
		return nil, fmt.Errorf("problemRepository.GetLanguageBySlug: %w", err)
	}
	return lang, nil
}

func (r *problemRepository) ListLanguages(ctx context.Context) ([]model.Language, error) {
	rows, err := r.gw.Fetch(ctx, languagesTable, store.Query{Order: []store.Order{{Field: "slug"}}})
	if err != nil {
		return nil, fmt.Errorf("problemRepository.ListLanguages: %w", err)
	}
	langs := []model.Language{}
	if err := store.Decode(rows, &langs); err != nil {
		return nil, fmt.Errorf("problemRepository.ListLanguages: %w", err)
	}
	return langs, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
