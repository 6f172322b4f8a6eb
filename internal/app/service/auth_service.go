package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"algoverse/internal/common"
	"algoverse/internal/domain/model"
	"algoverse/internal/domain/repository"
)

const avatarURLTemplate = "https://api.dicebear.com/7.x/avataaars/svg?seed=%s"

// IdentityResolver exchanges a bearer token for the identity the auth
// provider vouches for.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*model.Identity, error)
}

type AuthService struct {
	identity        IdentityResolver
	userRepo        repository.UserRepository
	bootstrapAdmins func(email string) bool
	log             *zap.Logger
	now             func() time.Time
}

// NewAuthService wires profile lookups. isBootstrapAdmin decides which
// first-time users are provisioned with the admin role.
func NewAuthService(identity IdentityResolver, userRepo repository.UserRepository, isBootstrapAdmin func(email string) bool, log *zap.Logger) *AuthService {
	if isBootstrapAdmin == nil {
		isBootstrapAdmin = func(string) bool { return false }
	}
	return &AuthService{
		identity:        identity,
		userRepo:        userRepo,
		bootstrapAdmins: isBootstrapAdmin,
		log:             log,
		now:             time.Now,
	}
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("authorization token required: %w", common.ErrUnauthorized)
	}
	return s.identity.Resolve(ctx, token)
}

// Me returns the caller's profile, creating it on first use.
func (s *AuthService) Me(ctx context.Context, id *model.Identity) (*model.Profile, error) {
	profile, err := s.userRepo.FindByID(ctx, id.ID)
	if err == nil {
		profile.Email = id.Email
		return profile, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("error fetching profile: %w", err)
	}

	profile = s.newProfile(id)
	if err := s.userRepo.Create(ctx, profile); err != nil {
		if !errors.Is(err, common.ErrConflict) {
			return nil, fmt.Errorf("error creating profile: %w", err)
		}
		// a concurrent first call created it
		existing, findErr := s.userRepo.FindByID(ctx, id.ID)
		if findErr != nil {
			return nil, fmt.Errorf("error fetching profile: %w", findErr)
		}
		profile = existing
	} else {
		s.log.Info("profile provisioned", zap.String("user_id", id.ID), zap.String("role", profile.Role))
	}
	profile.Email = id.Email
	return profile, nil
}

// RequireAdmin resolves the caller's stored profile and checks its role. No
// profile is provisioned here.
func (s *AuthService) RequireAdmin(ctx context.Context, id *model.Identity) (*model.Profile, error) {
	profile, err := s.userRepo.FindByID(ctx, id.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("profile not found: %w", common.ErrForbidden)
		}
		return nil, fmt.Errorf("error fetching profile: %w", err)
	}
	if !profile.IsAdmin() {
		return nil, fmt.Errorf("admin access required: %w", common.ErrForbidden)
	}
	return profile, nil
}

func (s *AuthService) newProfile(id *model.Identity) *model.Profile {
	username := usernameFor(id)
	role := model.RoleCoder
	if s.bootstrapAdmins(id.Email) {
		role = model.RoleAdmin
	}
	created := s.now().UTC()
	return &model.Profile{
		ID:          id.ID,
		Username:    username,
		DisplayName: capitalize(username),
		AvatarURL:   fmt.Sprintf(avatarURLTemplate, id.ID),
		Role:        role,
		CreatedAt:   &created,
	}
}

func usernameFor(id *model.Identity) string {
	if id.Email != "" {
		local, _, _ := strings.Cut(id.Email, "@")
		return local
	}
	short := id.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return "user" + short
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
