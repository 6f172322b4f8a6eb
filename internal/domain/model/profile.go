package model

import "time"

const (
	RoleCoder = "coder"
	RoleAdmin = "admin"
)

// Identity is what the auth provider vouches for.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Profile struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	AvatarURL   string     `json:"avatar_url"`
	Bio         *string    `json:"bio"`
	Role        string     `json:"role"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	Email       string     `json:"email,omitempty"` // from the auth provider, not stored
}

func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
