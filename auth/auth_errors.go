package auth

import "github.com/pkg/errors"

var (
	// ErrInvalidCredentials covers wrong password and unknown email alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMFARequired means the user has TOTP enabled and no valid code was
	// supplied; no session is issued.
	ErrMFARequired = errors.New("mfa code required")
	// ErrSubdomainTaken is returned when a registration requests a
	// subdomain that already belongs to a tenant.
	ErrSubdomainTaken = errors.New("subdomain already taken")
)
