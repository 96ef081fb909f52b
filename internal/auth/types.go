package auth

import (
	"errors"
	"regexp"
	"slices"
)

// Role represents an authorisation tier.
type Role string

const (
	// RoleClient is an audio client controlling its own effect handles.
	RoleClient Role = "client"

	// RoleAdmin can manage patches and any client's handles.
	RoleAdmin Role = "admin"
)

// ValidRoles lists the roles a token may carry.
var ValidRoles = []Role{RoleClient, RoleAdmin}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// clientIDPattern is the accepted client identity format.
var clientIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:@-]{1,128}$`)

// IsValidClientID reports whether id is usable as a token subject.
func IsValidClientID(id string) bool {
	return clientIDPattern.MatchString(id)
}

// Identity is the verified caller of a request.
type Identity struct {
	ClientID string `json:"client_id"`
	Role     Role   `json:"role"`
	PID      int    `json:"pid,omitempty"`
	UID      int    `json:"uid,omitempty"`
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid    = errors.New("invalid token")
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidClientID = errors.New("invalid client id")
	ErrMissingSecret   = errors.New("signing secret not configured")
	ErrForbidden       = errors.New("insufficient permissions")
)
