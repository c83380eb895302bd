package users

import "time"

// Type distinguishes personal accounts from organisational ones. Organs own
// shared catalog aggregates; their members gain organisational visibility.
type Type string

const (
	// TypeMember is a personal account.
	TypeMember Type = "MEMBER"
	// TypeOrgan is an organisational account.
	TypeOrgan Type = "ORGAN"
)

// User represents an account that can own catalog aggregates and hold a
// balance.
type User struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Type      Type       `json:"type"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
