// Package users holds the per-tenant user accounts that own sessions and
// connected social accounts. User rows live inside the tenant namespace.
package users

import (
	"context"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/postloop/postloop/tenants"
)

var (
	// ErrNotFound is returned when a user lookup yields nothing.
	ErrNotFound = errors.New("user not found")
	// ErrWeakPassword wraps every password strength rejection.
	ErrWeakPassword = errors.New("password does not meet requirements")
)

// RoleType represents a user's role within their tenant
type RoleType string

const (
	RoleAdmin RoleType = "admin" // Can manage users and connected accounts within a tenant
	RoleUser  RoleType = "user"  // Regular user within a tenant
)

type User struct {
	ID           string    `json:"id,omitempty"`    // Unique identifier for the user
	Email        string    `json:"email,omitempty"` // User's email address
	PasswordHash string    `json:"-"`               // Hashed password - never serialize
	Role         RoleType  `json:"role,omitempty"`
	TOTPEnabled  bool      `json:"totp_enabled,omitempty"` // Whether login requires a TOTP code
	CreatedAt    time.Time `json:"created_at,omitempty"`
	LastLogin    time.Time `json:"last_login,omitempty"`
}

// Repo persists users inside a tenant namespace.
type Repo interface {
	Create(ctx context.Context, tc tenants.Context, user *User) error
	GetByEmail(ctx context.Context, tc tenants.Context, email string) (*User, error)
	GetByID(ctx context.Context, tc tenants.Context, userID string) (*User, error)
	UpdatePassword(ctx context.Context, tc tenants.Context, userID, passwordHash string) error
	TouchLastLogin(ctx context.Context, tc tenants.Context, userID string, at time.Time) error
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return errors.Wrap(ErrWeakPassword, "password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return errors.Wrap(ErrWeakPassword, "password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.Wrap(ErrWeakPassword, "password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.Wrap(ErrWeakPassword, "password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
