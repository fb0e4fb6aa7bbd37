package auth

import (
	"fmt"
	"strings"

	"stayhub/internal/domain/shared/apperr"
)

var (
	ErrAuthRequired      = fmt.Errorf("%w: authentication required", apperr.ErrAccessDenied)
	ErrInsufficientRoles = fmt.Errorf("%w: insufficient permissions", apperr.ErrAccessDenied)
	ErrNotOwner          = fmt.Errorf("%w: caller is not a party to this booking", apperr.ErrAccessDenied)
)

type Role string

const (
	RoleGuest Role = "GUEST"
	RoleHost  Role = "HOST"
	RoleAdmin Role = "ADMIN"
)

// ParseRole maps the legacy USER role onto GUEST.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "GUEST", "USER":
		return RoleGuest, true
	case "HOST":
		return RoleHost, true
	case "ADMIN":
		return RoleAdmin, true
	}
	return "", false
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID string
	Roles  []Role
}

func (p Principal) Authenticated() bool {
	return strings.TrimSpace(p.UserID) != ""
}

func (p Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

// Require fails unless the principal is authenticated and holds one of roles.
// An empty roles list only checks authentication.
func Require(p Principal, roles ...Role) error {
	if !p.Authenticated() {
		return ErrAuthRequired
	}
	if len(roles) == 0 {
		return nil
	}
	for _, r := range roles {
		if p.HasRole(r) {
			return nil
		}
	}
	return ErrInsufficientRoles
}
