package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing field", MissingField("reason"), http.StatusBadRequest},
		{"invalid transition", InvalidTransition("completed", "cancelled"), http.StatusBadRequest},
		{"expired", AuthExpired(nil), http.StatusUnauthorized},
		{"unauthenticated", Unauthenticated(), http.StatusUnauthorized},
		{"forbidden", Forbidden(""), http.StatusForbidden},
		{"not found", NotFound("appointment", nil), http.StatusNotFound},
		{"dependency", Dependency("persist appointment", stderrors.New("conn reset")), http.StatusInternalServerError},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestAuthErrorsShareMessage(t *testing.T) {
	for _, err := range []*AppError{AuthExpired(nil), AuthMalformed(nil), AuthRevoked(nil)} {
		assert.Equal(t, MsgInvalidToken, err.Message)
		assert.Equal(t, MsgInvalidToken, PublicMessage(err))
	}
}

func TestReasonSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("rotate: %w", AuthRevoked(nil))

	assert.True(t, HasReason(err, ReasonRevoked))
	assert.Equal(t, ErrUnauthorized, CodeOf(err))
}

func TestInvalidTransitionNamesBothStates(t *testing.T) {
	err := InvalidTransition("completed", "cancelled")

	assert.Contains(t, err.Error(), "completed")
	assert.Contains(t, err.Error(), "cancelled")
}

func TestPublicMessageHidesDependencyDetail(t *testing.T) {
	err := Dependency("persist notification", stderrors.New("pq: password authentication failed"))

	assert.Equal(t, "internal server error", PublicMessage(err))
	assert.Contains(t, err.Error(), "pq:")
}
