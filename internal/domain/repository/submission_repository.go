package repository

import (
	"context"
	"fmt"

	"algoverse/internal/common"
	"algoverse/internal/domain/model"
	"algoverse/internal/platform/store"
)

const (
	submissionsTable       = "submissions"
	submissionResultsTable = "submission_results"
)

type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error)
	CreateSubmissionResults(ctx context.Context, results []model.SubmissionResult) error
	GetSubmissionResults(ctx context.Context, submissionID string) ([]model.SubmissionResult, error)

	// For code history; problemID may be empty.
	GetSubmissionsForUser(ctx context.Context, userID, problemID string, limit int) ([]model.Submission, error)

	// For the admin dashboard
	CountSubmissions(ctx context.Context) (total, passed int, err error)
}

type submissionRepository struct {
	gw store.Gateway
}

func NewSubmissionRepository(gw store.Gateway) SubmissionRepository {
	return &submissionRepository{gw: gw}
}

// CreateSubmission returns an error wrapping common.ErrConflict when the id is taken.
func (r *submissionRepository) CreateSubmission(ctx context.Context, s *model.Submission) error {
	_, err := r.gw.Insert(ctx, submissionsTable, store.Record{
		"id":            s.ID,
		"user_id":       s.UserID,
		"problem_id":    s.ProblemID,
		"language_slug": s.LanguageSlug,
		"code":          s.Code,
		"passed":        s.Passed,
		"score":         s.Score,
		"output":        s.Output,
		"created_at":    s.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("submissionRepository.CreateSubmission: %w", err)
	}
	return nil
}

func (r *submissionRepository) GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error) {
	rows, err := r.gw.Fetch(ctx, submissionsTable, store.Query{Filter: store.Where(store.Eq("id", id)), Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("submissionRepository.GetSubmissionByID: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("submission not found: %w", common.ErrNotFound)
	}
	sub := &model.Submission{}
	if err := store.Decode(rows[0], sub); err != nil {
		return nil, fmt.Errorf("submissionRepository.GetSubmissionByID: %w", err)
	}
	return sub, nil
}

// CreateSubmissionResults inserts the whole batch in one call.
func (r *submissionRepository) CreateSubmissionResults(ctx context.Context, results []model.SubmissionResult) error {
	if len(results) == 0 {
		return nil
	}
	records := make([]store.Record, 0, len(results))
	for _, res := range results {
		records = append(records, store.Record{
			"id":            res.ID,
			"submission_id": res.SubmissionID,
			"testcase_id":   res.TestCaseID,
			"passed":        res.Passed,
			"actual_output": res.ActualOutput,
			"runtime_ms":    res.RuntimeMs,
			"created_at":    res.CreatedAt,
		})
	}
	if _, err := r.gw.Insert(ctx, submissionResultsTable, records...); err != nil {
		return fmt.Errorf("submissionRepository.CreateSubmissionResults: %w", err)
	}
	return nil
}

func (r *submissionRepository) GetSubmissionResults(ctx context.Context, submissionID string) ([]model.SubmissionResult, error) {
	rows, err := r.gw.Fetch(ctx, submissionResultsTable, store.Query{
		Filter: store.Where(store.Eq("submission_id", submissionID)),
	})
	if err != nil {
		return nil, fmt.Errorf("submissionRepository.GetSubmissionResults: %w", err)
	}
	results := []model.SubmissionResult{}
	if err := store.Decode(rows, &results); err != nil {
		return nil, fmt.Errorf("submissionRepository.GetSubmissionResults: %w", err)
	}
	return results, nil
}

func (r *submissionRepository) GetSubmissionsForUser(ctx context.Context, userID, problemID string, limit int) ([]model.Submission, error) {
	filter := store.Where(store.Eq("user_id", userID))
	if problemID != "" {
		filter = append(filter, store.Eq("problem_id", problemID))
	}
	rows, err := r.gw.Fetch(ctx, submissionsTable, store.Query{
		Filter: filter,
		Order:  []store.Order{{Field: "created_at", Desc: true}},
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("submissionRepository.GetSubmissionsForUser: %w", err)
	}
	subs := []model.Submission{}
	if err := store.Decode(rows, &subs); err != nil {
		return nil, fmt.Errorf("submissionRepository.GetSubmissionsForUser: %w", err)
	}
	return subs, nil
}

func (r *submissionRepository) CountSubmissions(ctx context.Context) (int, int, error) {
	rows, err := r.gw.Fetch(ctx, submissionsTable, store.Query{Select: []string{"id", "passed"}})
	if err != nil {
		return 0, 0, fmt.Errorf("submissionRepository.CountSubmissions: %w", err)
	}
	passed := 0
	for _, row := range rows {
		if ok, _ := row["passed"].(bool); ok {
			passed++
		}
	}
	return len(rows), passed, nil
}
