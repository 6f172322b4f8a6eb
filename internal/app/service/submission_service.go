package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"algoverse/internal/app/judge"
	"algoverse/internal/common"
	"algoverse/internal/domain/model"
	"algoverse/internal/domain/repository"
	"algoverse/internal/platform/logger"
)

const defaultHistoryLimit = 50

// DeferredWriter takes persistence steps that failed inline for later replay.
type DeferredWriter interface {
	Enqueue(ctx context.Context, job model.DeferredWrite) error
}

type SubmissionService struct {
	submissionRepo repository.SubmissionRepository
	problemRepo    repository.ProblemRepository
	progress       *ProgressService
	grader         *judge.Grader
	deferred       DeferredWriter // nil when no retry queue is configured
	log            *zap.Logger
	now            func() time.Time
}

func NewSubmissionService(
	subRepo repository.SubmissionRepository,
	probRepo repository.ProblemRepository,
	progress *ProgressService,
	runner judge.Runner,
	deferred DeferredWriter,
	log *zap.Logger,
) *SubmissionService {
	return &SubmissionService{
		submissionRepo: subRepo,
		problemRepo:    probRepo,
		progress:       progress,
		grader:         judge.NewGrader(runner, log),
		deferred:       deferred,
		log:            log,
		now:            time.Now,
	}
}

type SubmitCodeRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type RunResult struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Output   string `json:"output"`
	Passed   bool   `json:"passed"`
	IsError  bool   `json:"is_error"`
}

type CaseReport struct {
	TestCaseID   string `json:"testcase_id"`
	Passed       bool   `json:"passed"`
	ActualOutput string `json:"actual_output"`
	RuntimeMs    int64  `json:"runtime_ms"`
}

type SubmissionReport struct {
	Passed       bool         `json:"passed"`
	Score        int          `json:"score"`
	SubmissionID string       `json:"submission_id"`
	TotalTests   int          `json:"total_tests"`
	PassedTests  int          `json:"passed_tests"`
	Results      []CaseReport `json:"results"`
}

// PersistOutcome records which bookkeeping steps of a submit call landed.
// Deferred lists the steps handed to the retry queue.
type PersistOutcome struct {
	SubmissionStored bool
	ResultsStored    bool
	ProgressUpdated  bool
	Deferred         []string
}

// RunSample executes code against the problem's first sample case. Nothing
// is persisted.
func (s *SubmissionService) RunSample(ctx context.Context, problemID string, req SubmitCodeRequest) (*RunResult, error) {
	ctx = context.WithoutCancel(ctx)
	lang, err := s.resolveLanguage(ctx, req)
	if err != nil {
		return nil, err
	}

	samples, err := s.problemRepo.GetSampleTestCases(ctx, problemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sample test cases: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no sample test cases found: %w", common.ErrNotFound)
	}

	tc := samples[0]
	report := s.grader.Grade(ctx, lang.ExecutorKey, req.Code, samples[:1], 0)
	res := report.Results[0]
	return &RunResult{
		Input:    tc.Input,
		Expected: tc.ExpectedOutput,
		Output:   res.ActualOutput,
		Passed:   res.Passed,
		IsError:  res.IsError(),
	}, nil
}

// Submit grades code against every test case of the problem and records the
// submission. Only a failure to store the submission itself fails the call;
// results and progress are best effort. The caller cannot cancel a submit once
// it has started; each executor and store call carries its own timeout.
func (s *SubmissionService) Submit(ctx context.Context, userID, problemID string, req SubmitCodeRequest) (*SubmissionReport, error) {
	ctx = context.WithoutCancel(ctx)
	log := logger.WithContext(ctx, s.log).With(zap.String("user_id", userID), zap.String("problem_id", problemID))

	lang, err := s.resolveLanguage(ctx, req)
	if err != nil {
		return nil, err
	}

	cases, err := s.problemRepo.GetTestCasesByProblemID(ctx, problemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test cases: %w", err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("no test cases found: %w", common.ErrNotFound)
	}

	report := s.grader.Grade(ctx, lang.ExecutorKey, req.Code, cases, model.ResultActualOutputLimit)
	log.Info("submission graded",
		zap.String("language", lang.Slug),
		zap.Int("passed_tests", report.PassedTests),
		zap.Int("total_tests", report.TotalTests),
		zap.Int("score", report.Score),
	)

	sub := &model.Submission{
		UserID:       userID,
		ProblemID:    problemID,
		LanguageSlug: lang.Slug,
		Code:         req.Code,
		Passed:       report.Passed,
		Score:        report.Score,
		Output:       model.Truncate(report.Summary, model.SubmissionOutputLimit),
	}
	outcome, err := s.persist(ctx, log, sub, report)
	log.Info("submission persisted",
		zap.String("submission_id", sub.ID),
		zap.Bool("submission_stored", outcome.SubmissionStored),
		zap.Bool("results_stored", outcome.ResultsStored),
		zap.Bool("progress_updated", outcome.ProgressUpdated),
		zap.Strings("deferred", outcome.Deferred),
	)
	if err != nil {
		return nil, err
	}

	results := make([]CaseReport, 0, len(report.Results))
	for _, r := range report.Results {
		results = append(results, CaseReport{
			TestCaseID:   r.TestCaseID,
			Passed:       r.Passed,
			ActualOutput: r.ActualOutput,
			RuntimeMs:    r.RuntimeMs,
		})
	}
	return &SubmissionReport{
		Passed:       report.Passed,
		Score:        report.Score,
		SubmissionID: sub.ID,
		TotalTests:   report.TotalTests,
		PassedTests:  report.PassedTests,
		Results:      results,
	}, nil
}

// persist runs the three bookkeeping steps in order, each behind its own
// failure boundary.
func (s *SubmissionService) persist(ctx context.Context, log *zap.Logger, sub *model.Submission, report judge.Report) (PersistOutcome, error) {
	var outcome PersistOutcome

	if err := s.storeSubmission(ctx, log, sub); err != nil {
		return outcome, err
	}
	outcome.SubmissionStored = true

	results := make([]model.SubmissionResult, 0, len(report.Results))
	for _, r := range report.Results {
		results = append(results, model.SubmissionResult{
			ID:           uuid.NewString(),
			SubmissionID: sub.ID,
			TestCaseID:   r.TestCaseID,
			Passed:       r.Passed,
			ActualOutput: r.ActualOutput,
			RuntimeMs:    r.RuntimeMs,
			CreatedAt:    s.now().UTC(),
		})
	}
	if err := s.submissionRepo.CreateSubmissionResults(ctx, results); err != nil {
		log.Warn("failed to store submission results", zap.String("submission_id", sub.ID), zap.Error(err))
		if s.enqueueDeferred(ctx, log, model.DeferredWrite{Kind: model.DeferredSubmissionResults, Results: results, LastError: err.Error()}) {
			outcome.Deferred = append(outcome.Deferred, model.DeferredSubmissionResults)
		}
	} else {
		outcome.ResultsStored = true
	}

	progress := model.ProgressOutcome{
		UserID:    sub.UserID,
		ProblemID: sub.ProblemID,
		Score:     sub.Score,
		Passed:    sub.Passed,
		At:        sub.CreatedAt,
	}
	if err := s.progress.Record(ctx, progress); err != nil {
		log.Warn("failed to update user progress", zap.String("submission_id", sub.ID), zap.Error(err))
		if s.enqueueDeferred(ctx, log, model.DeferredWrite{Kind: model.DeferredUserProgress, Progress: &progress, LastError: err.Error()}) {
			outcome.Deferred = append(outcome.Deferred, model.DeferredUserProgress)
		}
	} else {
		outcome.ProgressUpdated = true
	}

	return outcome, nil
}

// storeSubmission inserts sub, retrying once under a fresh id on conflict.
func (s *SubmissionService) storeSubmission(ctx context.Context, log *zap.Logger, sub *model.Submission) error {
	sub.ID = uuid.NewString()
	sub.CreatedAt = s.now().UTC()
	err := s.submissionRepo.CreateSubmission(ctx, sub)
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrConflict) {
		log.Error("failed to store submission", zap.Error(err))
		return fmt.Errorf("submission failed: %v: %w", err, common.ErrUpstream)
	}

	log.Warn("submission id collided, retrying with a new id", zap.String("submission_id", sub.ID))
	sub.ID = uuid.NewString()
	sub.CreatedAt = s.now().UTC()
	if err := s.submissionRepo.CreateSubmission(ctx, sub); err != nil {
		log.Error("failed to store submission on retry", zap.Error(err))
		return fmt.Errorf("submission failed: %v: %w", err, common.ErrUpstream)
	}
	return nil
}

func (s *SubmissionService) enqueueDeferred(ctx context.Context, log *zap.Logger, job model.DeferredWrite) bool {
	if s.deferred == nil {
		return false
	}
	job.ID = uuid.NewString()
	job.CreatedAt = s.now().UTC()
	if err := s.deferred.Enqueue(ctx, job); err != nil {
		log.Error("failed to defer persistence step", zap.String("kind", job.Kind), zap.Error(err))
		return false
	}
	return true
}

func (s *SubmissionService) resolveLanguage(ctx context.Context, req SubmitCodeRequest) (*model.Language, error) {
	if strings.TrimSpace(req.Language) == "" {
		return nil, fmt.Errorf("language is required: %w", common.ErrValidation)
	}
	lang, err := s.problemRepo.GetLanguageBySlug(ctx, req.Language)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("invalid language selected: %w", common.ErrValidation)
		}
		return nil, fmt.Errorf("failed to look up language: %w", err)
	}
	return lang, nil
}

// ListSubmissions returns the caller's submissions, newest first.
func (s *SubmissionService) ListSubmissions(ctx context.Context, userID, problemID string) ([]model.Submission, error) {
	subs, err := s.submissionRepo.GetSubmissionsForUser(ctx, userID, problemID, defaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, nil
}

// GetSubmission returns one of the caller's submissions with its results.
// Submissions of other users are reported as not found.
func (s *SubmissionService) GetSubmission(ctx context.Context, userID, submissionID string) (*model.SubmissionDetail, error) {
	sub, err := s.submissionRepo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, fmt.Errorf("submission not found: %w", common.ErrNotFound)
	}
	results, err := s.submissionRepo.GetSubmissionResults(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission results: %w", err)
	}
	return &model.SubmissionDetail{Submission: *sub, Results: results}, nil
}
