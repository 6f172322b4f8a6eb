package repository

import (
	"context"
	"fmt"

	"algoverse/internal/common"
	"algoverse/internal/domain/model"
	"algoverse/internal/platform/store"
)

const progressTable = "user_progress"

type ProgressRepository interface {
	FindProgress(ctx context.Context, userID, problemID string) (*model.UserProgress, error)
	CreateProgress(ctx context.Context, p *model.UserProgress) error
	ApplyChange(ctx context.Context, id string, change model.ProgressChange) error
	ListProgressForUser(ctx context.Context, userID string) ([]model.UserProgress, error)
}

type progressRepository struct {
	gw store.Gateway
}

func NewProgressRepository(gw store.Gateway) ProgressRepository {
	return &progressRepository{gw: gw}
}

func (r *progressRepository) FindProgress(ctx context.Context, userID, problemID string) (*model.UserProgress, error) {
	rows, err := r.gw.Fetch(ctx, progressTable, store.Query{
		Filter: store.Where(store.Eq("user_id", userID), store.Eq("problem_id", problemID)),
		Limit:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("progressRepository.FindProgress: %w", err)
	}
	if len(rows) == 0 {
		return nil, common.ErrNotFound
	}
	p := &model.UserProgress{}
	if err := store.Decode(rows[0], p); err != nil {
		return nil, fmt.Errorf("progressRepository.FindProgress: %w", err)
	}
	return p, nil
}

// CreateProgress returns an error wrapping common.ErrConflict when a record
// for the (user, problem) pair already exists.
func (r *progressRepository) CreateProgress(ctx context.Context, p *model.UserProgress) error {
	rec := store.Record{
		"id":         p.ID,
		"user_id":    p.UserID,
		"problem_id": p.ProblemID,
		"solved":     p.Solved,
		"best_score": p.BestScore,
		"attempts":   p.Attempts,
	}
	if p.LastSubmissionAt != nil {
		rec["last_submission_at"] = *p.LastSubmissionAt
	}
	if p.CreatedAt != nil {
		rec["created_at"] = *p.CreatedAt
	}
	if _, err := r.gw.Insert(ctx, progressTable, rec); err != nil {
		return fmt.Errorf("progressRepository.CreateProgress: %w", err)
	}
	return nil
}

// ApplyChange patches only the fields the change carries.
func (r *progressRepository) ApplyChange(ctx context.Context, id string, change model.ProgressChange) error {
	patch := store.Record{
		"attempts":           change.Attempts,
		"last_submission_at": change.LastSubmissionAt,
	}
	if change.Solved != nil {
		patch["solved"] = *change.Solved
	}
	if change.BestScore != nil {
		patch["best_score"] = *change.BestScore
	}
	rows, err := r.gw.Update(ctx, progressTable, store.Where(store.Eq("id", id)), patch)
	if err != nil {
		return fmt.Errorf("progressRepository.ApplyChange: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("progress %s vanished: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *progressRepository) ListProgressForUser(ctx context.Context, userID string) ([]model.UserProgress, error) {
	rows, err := r.gw.Fetch(ctx, progressTable, store.Query{Filter: store.Where(store.Eq("user_id", userID))})
	if err != nil {
		return nil, fmt.Errorf("progressRepository.ListProgressForUser: %w", err)
	}
	progress := []model.UserProgress{}
	if err := store.Decode(rows, &progress); err != nil {
		return nil, fmt.Errorf("progressRepository.ListProgressForUser: %w", err)
	}
	return progress, nil
}
