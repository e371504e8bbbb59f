package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

func session(role model.Role) *model.Session {
	return &model.Session{PrincipalID: uuid.New(), Email: "x@clinic.test", Role: role}
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name    string
		session *model.Session
		roles   []model.Role
		want    Decision
	}{
		{name: "no session, no roles", session: nil, want: DenyUnauthenticated},
		{name: "no session, roles required", session: nil, roles: []model.Role{model.RoleAdmin}, want: DenyUnauthenticated},
		{name: "any session", session: session(model.RolePatient), want: Allow},
		{name: "matching role", session: session(model.RoleDoctor), roles: []model.Role{model.RoleDoctor, model.RoleAdmin}, want: Allow},
		{name: "wrong role", session: session(model.RolePatient), roles: []model.Role{model.RoleDoctor, model.RoleAdmin}, want: DenyForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.session, tt.roles...))
		})
	}
}

func TestUnauthenticatedBeforeForbidden(t *testing.T) {
	for _, roles := range [][]model.Role{nil, {model.RoleAdmin}, {model.RoleDoctor, model.RolePatient}} {
		err := Require(nil, roles...)
		assert.True(t, apperrors.HasReason(err, apperrors.ReasonUnauthenticated))
	}
}

func TestDecisionErr(t *testing.T) {
	assert.NoError(t, Allow.Err())
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(DenyUnauthenticated.Err()))
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(DenyForbidden.Err()))
}
