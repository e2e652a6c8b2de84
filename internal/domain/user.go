package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of access levels. It is parsed exactly once at the
// HTTP boundary; everything downstream assumes a valid, lowercase value.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }

type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Email         string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash  string     `gorm:"size:128;not null" json:"-"`
	DisplayName   string     `gorm:"size:255" json:"display_name"`
	Role          Role       `gorm:"size:16;not null;default:user" json:"role"`
	EmailVerified bool       `gorm:"not null;default:false" json:"email_verified"`
	IsSystem      bool       `gorm:"not null;default:false" json:"-"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Profile *Profile `gorm:"constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}

// Profile carries the contact details an admin supplies when provisioning an
// account. It lives and dies with its user row.
type Profile struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	ContactNumber string    `gorm:"size:32" json:"contact_number"`
	Department    string    `gorm:"size:128" json:"department"`
	Designation   string    `gorm:"size:128" json:"designation"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
