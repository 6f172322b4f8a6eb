package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"algoverse/internal/common"
	"algoverse/internal/domain/model"
	"algoverse/internal/domain/repository"
)

// ProgressService folds graded submissions into the per-(user, problem)
// progress record. The read and the write are separate store calls; two
// concurrent folds for the same pair can lose an attempt.
type ProgressService struct {
	progressRepo repository.ProgressRepository
}

func NewProgressService(progressRepo repository.ProgressRepository) *ProgressService {
	return &ProgressService{progressRepo: progressRepo}
}

func (s *ProgressService) Record(ctx context.Context, o model.ProgressOutcome) error {
	existing, err := s.progressRepo.FindProgress(ctx, o.UserID, o.ProblemID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("failed to read progress: %w", err)
	}

	if existing != nil {
		_, change := existing.FoldSubmission(o.Score, o.Passed, o.At)
		if err := s.progressRepo.ApplyChange(ctx, existing.ID, change); err != nil {
			return fmt.Errorf("failed to update progress: %w", err)
		}
		return nil
	}

	first := model.FirstProgress(uuid.NewString(), o.UserID, o.ProblemID, o.Score, o.Passed, o.At)
	if err := s.progressRepo.CreateProgress(ctx, &first); err != nil {
		return fmt.Errorf("failed to create progress: %w", err)
	}
	return nil
}
