package profiles

import (
	"errors"
	"time"
)

var (
	ErrValidation = errors.New("validation error")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("profile not found")
)

type Profile struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	Department string     `json:"department"`
	Position   string     `json:"position"`
	LeaderName string     `json:"leaderName"`
	JoinDate   *time.Time `json:"joinDate"`
	Balance    int        `json:"balance"`
	HasProject bool       `json:"hasProject"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// UpdateInput is a partial update. Nil fields are left untouched; an empty
// ID targets the caller.
type UpdateInput struct {
	ID         string  `json:"id"`
	Name       *string `json:"name"`
	Department *string `json:"department"`
	Position   *string `json:"position"`
	LeaderName *string `json:"leaderName"`
	JoinDate   *string `json:"joinDate"`
	Balance    *int    `json:"balance"`
	Role       *string `json:"role"`
	HasProject *bool   `json:"hasProject"`
}

// Change is one column assignment produced from an UpdateInput.
type Change struct {
	Column string
	Value  any
}
