package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"algoverse/internal/domain/model"
	"algoverse/internal/domain/repository"
)

// userStatsConcurrency bounds the per-user progress reads of ListUsers.
const userStatsConcurrency = 8

type AdminService struct {
	userRepo       repository.UserRepository
	problemRepo    repository.ProblemRepository
	submissionRepo repository.SubmissionRepository
	progressRepo   repository.ProgressRepository
}

func NewAdminService(
	userRepo repository.UserRepository,
	problemRepo repository.ProblemRepository,
	submissionRepo repository.SubmissionRepository,
	progressRepo repository.ProgressRepository,
) *AdminService {
	return &AdminService{
		userRepo:       userRepo,
		problemRepo:    problemRepo,
		submissionRepo: submissionRepo,
		progressRepo:   progressRepo,
	}
}

func (s *AdminService) Stats(ctx context.Context) (*model.AdminStats, error) {
	stats := &model.AdminStats{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		coders, err := s.userRepo.ListByRole(gctx, model.RoleCoder)
		stats.TotalUsers = len(coders)
		return err
	})
	g.Go(func() error {
		n, err := s.problemRepo.CountProblems(gctx)
		stats.TotalProblems = n
		return err
	})
	g.Go(func() error {
		total, passed, err := s.submissionRepo.CountSubmissions(gctx)
		stats.TotalSubmissions, stats.SuccessfulSubmissions = total, passed
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	return stats, nil
}

// ListUsers returns every coder with their solved count and total attempts.
func (s *AdminService) ListUsers(ctx context.Context) ([]model.UserSummary, error) {
	coders, err := s.userRepo.ListByRole(ctx, model.RoleCoder)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	out := make([]model.UserSummary, len(coders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(userStatsConcurrency)
	for i, u := range coders {
		out[i] = model.UserSummary{
			ID:          u.ID,
			Username:    u.Username,
			DisplayName: u.DisplayName,
			CreatedAt:   u.CreatedAt,
		}
		g.Go(func() error {
			progress, err := s.progressRepo.ListProgressForUser(gctx, u.ID)
			if err != nil {
				return err
			}
			for _, p := range progress {
				if p.Solved {
					out[i].ProblemsSolved++
				}
				out[i].TotalAttempts += p.Attempts
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return out, nil
}
