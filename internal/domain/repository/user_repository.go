package repository

import (
	"context"
	"fmt"

	"algoverse/internal/common"
	"algoverse/internal/domain/model"
	"algoverse/internal/platform/store"
)

const profilesTable = "profiles"

// UserRepository stores user profiles. Credentials live with the auth
// provider; a profile is keyed by the provider's user id.
type UserRepository interface {
	Create(ctx context.Context, profile *model.Profile) error
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	ListByRole(ctx context.Context, role string) ([]model.Profile, error)
}

type userRepository struct {
	gw store.Gateway
}

func NewUserRepository(gw store.Gateway) UserRepository {
	return &userRepository{gw: gw}
}

func (r *userRepository) Create(ctx context.Context, p *model.Profile) error {
	rec := store.Record{
		"id":           p.ID,
		"username":     p.Username,
		"display_name": p.DisplayName,
		"avatar_url":   p.AvatarURL,
		"bio":          p.Bio,
		"role":         p.Role,
	}
	if p.CreatedAt != nil {
		rec["created_at"] = *p.CreatedAt
	}
	if _, err := r.gw.Insert(ctx, profilesTable, rec); err != nil {
		return fmt.Errorf("userRepository.Create: %w", err)
	}
	return nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	rows, err := r.gw.Fetch(ctx, profilesTable, store.Query{Filter: store.Where(store.Eq("id", id)), Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("userRepository.FindByID: %w", err)
	}
	if len(rows) == 0 {
		return nil, common.ErrNotFound
	}
	profile := &model.Profile{}
	if err := store.Decode(rows[0], profile); err != nil {
		return nil, fmt.Errorf("userRepository.FindByID: %w", err)
	}
	return profile, nil
}

func (r *userRepository) ListByRole(ctx context.Context, role string) ([]model.Profile, error) {
	rows, err := r.gw.Fetch(ctx, profilesTable, store.Query{
		Filter: store.Where(store.Eq("role", role)),
		Select: []string{"id", "username", "display_name", "created_at"},
	})
	if err != nil {
		return nil, fmt.Errorf("userRepository.ListByRole: %w", err)
	}
	profiles := []model.Profile{}
	if err := store.Decode(rows, &profiles); err != nil {
		return nil, fmt.Errorf("userRepository.ListByRole: %w", err)
	}
	return profiles, nil
}
