// Package authz decides whether a session may invoke an operation. It performs no I/O.
package authz

import (
	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type Decision int

const (
	Allow Decision = iota
	DenyUnauthenticated
	DenyForbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "unauthenticated"
	case DenyForbidden:
		return "forbidden"
	}
	return "unknown"
}

// Authorize checks session presence first, then role membership.
// An empty roles list admits any authenticated session.
func Authorize(session *model.Session, roles ...model.Role) Decision {
	if session == nil {
		return DenyUnauthenticated
	}
	if len(roles) == 0 {
		return Allow
	}
	for _, r := range roles {
		if session.Role == r {
			return Allow
		}
	}
	return DenyForbidden
}

// Err converts a deny decision into the matching AppError, nil for Allow.
func (d Decision) Err() error {
	switch d {
	case Allow:
		return nil
	case DenyUnauthenticated:
		return apperrors.Unauthenticated()
	default:
		return apperrors.Forbidden("")
	}
}

// Require is Authorize followed by Err.
func Require(session *model.Session, roles ...model.Role) error {
	return Authorize(session, roles...).Err()
}
