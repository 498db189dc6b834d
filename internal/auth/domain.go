package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/atelier-ops/atelier-ops/internal/shared"
)

// Member is the slice of a team member the auth layer needs.
type Member struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	AuthRole shared.Role `json:"auth_role"`
	PINHash  string      `json:"-"`
	IsActive bool        `json:"is_active"`
}

// LoginRequest carries PIN credentials.
type LoginRequest struct {
	MemberID int64  `json:"member_id" validate:"required,gt=0"`
	PIN      string `json:"pin" validate:"required,min=4"`
}

// LoginResponse is returned on successful authentication.
type LoginResponse struct {
	Token  string `json:"token"`
	Member Member `json:"member"`
}

// HashPIN hashes a PIN for storage.
func HashPIN(pin string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
