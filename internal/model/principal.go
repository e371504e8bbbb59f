package model

import (
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}

type PrincipalStatus string

const (
	PrincipalStatusActive    PrincipalStatus = "active"
	PrincipalStatusInactive  PrincipalStatus = "inactive"
	PrincipalStatusSuspended PrincipalStatus = "suspended"
)

func (s PrincipalStatus) Valid() bool {
	switch s {
	case PrincipalStatusActive, PrincipalStatusInactive, PrincipalStatusSuspended:
		return true
	}
	return false
}

// Principal is an account that can hold a session.
type Principal struct {
	Base         `bson:",inline"`
	Email        string          `json:"email" db:"email" bson:"email"`
	Name         string          `json:"name" db:"name" bson:"name"`
	Phone        string          `json:"phone,omitempty" db:"phone" bson:"phone"`
	PasswordHash string          `json:"-" db:"password_hash" bson:"password_hash"`
	Role         Role            `json:"role" db:"role" bson:"role"`
	Status       PrincipalStatus `json:"status" db:"status" bson:"status"`
	// RefreshToken is the single currently valid refresh token, nil after logout.
	RefreshToken *string `json:"-" db:"refresh_token" bson:"refresh_token"`
}

func (p *Principal) IsActive() bool {
	return p.Status == PrincipalStatusActive
}

// NormalizeEmail is applied on every write and lookup so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type PrincipalFilter struct {
	Role   Role
	Status PrincipalStatus
}

type CreatePrincipalRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone"`
	Role     Role   `json:"role" binding:"omitempty,role"`
}

type UpdateRoleRequest struct {
	Role Role `json:"role" binding:"required,role"`
}

type UpdateStatusRequest struct {
	Status PrincipalStatus `json:"status" binding:"required,oneof=active inactive suspended"`
}

// PrincipalRef is the short form embedded in responses.
type PrincipalRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  Role      `json:"role"`
}
