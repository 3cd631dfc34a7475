package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole defines what a user may do.
type UserRole string

const (
	UserRoleAdmin       UserRole = "ADMIN"
	UserRoleParticipant UserRole = "PARTICIPANT"
)

// UserStatus defines whether a user may take part in auctions.
type UserStatus string

const (
	UserStatusActive  UserStatus = "ACTIVE"
	UserStatusBlocked UserStatus = "BLOCKED"
)

// User represents a user in the system
type User struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      UserRole   `json:"role"`
	Status    UserStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

func (u *User) IsAdmin() bool   { return u.Role == UserRoleAdmin }
func (u *User) IsBlocked() bool { return u.Status == UserStatusBlocked }
