package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"

	"algoverse/internal/common"
	"algoverse/internal/domain/model"
)

// JWTResolver verifies access tokens issued by the auth provider locally,
// using the project's shared HS256 secret, instead of calling the provider.
type JWTResolver struct {
	auth *jwtauth.JWTAuth
}

func NewJWTResolver(secret []byte) *JWTResolver {
	return &JWTResolver{auth: jwtauth.New("HS256", secret, nil)}
}

func (r *JWTResolver) Resolve(ctx context.Context, token string) (*model.Identity, error) {
	t, err := jwtauth.VerifyToken(r.auth, token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %v: %w", err, common.ErrUnauthorized)
	}
	raw, err := t.AsMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("invalid token claims: %v: %w", err, common.ErrUnauthorized)
	}
	claims := jwt.MapClaims(raw)

	userID, err := GetUserIDFromClaims(claims)
	if err != nil {
		return nil, fmt.Errorf("invalid token claims: %v: %w", err, common.ErrUnauthorized)
	}
	return &model.Identity{ID: userID, Email: GetEmailFromClaims(claims)}, nil
}

// GenerateToken mints a token in the provider's shape (sub + email). Used by
// tests and local tooling.
func (r *JWTResolver) GenerateToken(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"role":  "authenticated",
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
	}
	_, tokenString, err := r.auth.Encode(claims)
	return tokenString, err
}

// Helper functions to extract claims
func GetUserIDFromClaims(claims jwt.MapClaims) (string, error) {
	id, err := claims.GetSubject()
	if err != nil || id == "" {
		return "", errors.New("sub claim is missing or not a string")
	}
	return id, nil
}

func GetEmailFromClaims(claims jwt.MapClaims) string {
	email, _ := claims["email"].(string)
	return email
}
