package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug" // For slug generation
	"golang.org/x/sync/errgroup"

	"algoverse/internal/common"
	"algoverse/internal/domain/model"
	"algoverse/internal/domain/repository"
)

const defaultTestCasePoints = 10

type ProblemService struct {
	problemRepo  repository.ProblemRepository
	progressRepo repository.ProgressRepository
	now          func() time.Time
}

func NewProblemService(problemRepo repository.ProblemRepository, progressRepo repository.ProgressRepository) *ProblemService {
	return &ProblemService{
		problemRepo:  problemRepo,
		progressRepo: progressRepo,
		now:          time.Now,
	}
}

// ProblemRequest is the admin payload for creating or replacing a problem.
// An empty slug is derived from the title.
type ProblemRequest struct {
	Title       string                  `json:"title"`
	Slug        string                  `json:"slug"`
	Description string                  `json:"description"`
	Difficulty  model.ProblemDifficulty `json:"difficulty"`
	Tags        []string                `json:"tags"`
}

type TestCaseRequest struct {
	ProblemID      string `json:"problem_id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	IsSample       bool   `json:"is_sample"`
	Points         *int   `json:"points,omitempty"` // defaults to 10
}

type ProblemDetail struct {
	Problem         *model.Problem   `json:"problem"`
	SampleTestCases []model.TestCase `json:"sample_testcases"`
}

// ListProblems returns every problem. With a userID each entry also carries
// that user's progress, zero-valued where there is none.
func (s *ProblemService) ListProblems(ctx context.Context, userID string) ([]model.ProblemSummary, error) {
	var (
		problems []model.Problem
		progress []model.UserProgress
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		problems, err = s.problemRepo.ListProblems(gctx)
		return err
	})
	if userID != "" {
		g.Go(func() error {
			var err error
			progress, err = s.progressRepo.ListProgressForUser(gctx, userID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to list problems: %w", err)
	}

	byProblem := make(map[string]model.UserProgress, len(progress))
	for _, p := range progress {
		byProblem[p.ProblemID] = p
	}

	out := make([]model.ProblemSummary, 0, len(problems))
	for _, p := range problems {
		summary := model.ProblemSummary{
			ID:         p.ID,
			Title:      p.Title,
			Slug:       p.Slug,
			Difficulty: p.Difficulty,
			Tags:       p.Tags,
		}
		if userID != "" {
			prog := byProblem[p.ID]
			solved, best, attempts := prog.Solved, prog.BestScore, prog.Attempts
			summary.Solved, summary.BestScore, summary.Attempts = &solved, &best, &attempts
		}
		out = append(out, summary)
	}
	return out, nil
}

// GetProblem returns a problem with its sample test cases.
func (s *ProblemService) GetProblem(ctx context.Context, id string) (*ProblemDetail, error) {
	detail := &ProblemDetail{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.problemRepo.FindProblemByID(gctx, id)
		detail.Problem = p
		return err
	})
	g.Go(func() error {
		samples, err := s.problemRepo.GetSampleTestCases(gctx, id)
		detail.SampleTestCases = samples
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detail, nil
}

// ListLanguages returns the language reference set without executor keys.
func (s *ProblemService) ListLanguages(ctx context.Context) ([]model.Language, error) {
	langs, err := s.problemRepo.ListLanguages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list languages: %w", err)
	}
	for i := range langs {
		langs[i].ExecutorKey = ""
	}
	return langs, nil
}

func (s *ProblemService) CreateProblem(ctx context.Context, req ProblemRequest) (*model.Problem, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	created := s.now().UTC()
	problem := &model.Problem{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
		Difficulty:  req.Difficulty,
		Tags:        req.Tags,
		CreatedAt:   &created,
	}
	if err := s.problemRepo.CreateProblem(ctx, problem); err != nil {
		return nil, fmt.Errorf("failed to create problem: %w", err)
	}
	return problem, nil
}

// UpdateProblem replaces every editable field of the problem.
func (s *ProblemService) UpdateProblem(ctx context.Context, id string, req ProblemRequest) (*model.Problem, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	updated, err := s.problemRepo.UpdateProblem(ctx, &model.Problem{
		ID:          id,
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
		Difficulty:  req.Difficulty,
		Tags:        req.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update problem: %w", err)
	}
	return updated, nil
}

func (s *ProblemService) DeleteProblem(ctx context.Context, id string) error {
	if err := s.problemRepo.DeleteProblem(ctx, id); err != nil {
		return fmt.Errorf("failed to delete problem: %w", err)
	}
	return nil
}

func (s *ProblemService) AddTestCase(ctx context.Context, req TestCaseRequest) (*model.TestCase, error) {
	if strings.TrimSpace(req.ProblemID) == "" {
		return nil, fmt.Errorf("problem_id is required: %w", common.ErrValidation)
	}
	points := defaultTestCasePoints
	if req.Points != nil {
		points = *req.Points
	}
	if points < 0 {
		return nil, fmt.Errorf("points must not be negative: %w", common.ErrValidation)
	}
	if _, err := s.problemRepo.FindProblemByID(ctx, req.ProblemID); err != nil {
		return nil, err
	}

	tc := &model.TestCase{
		ID:             uuid.NewString(),
		ProblemID:      req.ProblemID,
		Input:          req.Input,
		ExpectedOutput: req.ExpectedOutput,
		IsSample:       req.IsSample,
		Points:         points,
	}
	if err := s.problemRepo.AddTestCase(ctx, tc); err != nil {
		return nil, fmt.Errorf("failed to add test case: %w", err)
	}
	return tc, nil
}

// ListTestCases returns every case of the problem, hidden ones included.
func (s *ProblemService) ListTestCases(ctx context.Context, problemID string) ([]model.TestCase, error) {
	cases, err := s.problemRepo.GetTestCasesByProblemID(ctx, problemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list test cases: %w", err)
	}
	return cases, nil
}

func (r *ProblemRequest) normalize() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" || r.Difficulty == "" {
		return fmt.Errorf("title and difficulty are required: %w", common.ErrValidation)
	}
	r.Slug = strings.TrimSpace(r.Slug)
	if r.Slug == "" {
		r.Slug = slug.Make(r.Title)
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return nil
}
