// Package identity resolves bearer tokens against the hosted auth provider.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"algoverse/internal/common"
	"algoverse/internal/domain/model"
)

type Resolver struct {
	userURL    string
	anonKey    string
	httpClient *http.Client
}

func NewResolver(projectURL, anonKey string, timeout time.Duration) *Resolver {
	return &Resolver{
		userURL:    strings.TrimRight(projectURL, "/") + "/auth/v1/user",
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Resolve forwards token to the provider. Any non-200 answer is treated as
// an invalid credential.
func (r *Resolver) Resolve(ctx context.Context, token string) (*model.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", r.anonKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth provider: %v: %w", err, common.ErrUpstream)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("invalid token: %w", common.ErrUnauthorized)
	}

	var id model.Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("decode auth user: %v: %w", err, common.ErrUpstream)
	}
	if id.ID == "" {
		return nil, fmt.Errorf("invalid token: %w", common.ErrUnauthorized)
	}
	return &id, nil
}
