package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/authz"
	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

const ContextSession = "session"

type SessionValidator interface {
	ValidateAccess(ctx context.Context, token string) (*model.Session, error)
}

type AuthMiddleware struct {
	sessions SessionValidator
}

func NewAuthMiddleware(sessions SessionValidator) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// Authenticate validates the bearer token and stores the session in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			httputil.RespondWithError(c, apperrors.Unauthenticated())
			return
		}

		session, err := m.sessions.ValidateAccess(c.Request.Context(), token)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		c.Set(ContextSession, session)
		c.Next()
	}
}

// Protect runs after Authenticate and admits only the listed roles; no roles admits any session.
func Protect(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authz.Require(SessionFrom(c), roles...); err != nil {
			httputil.RespondWithError(c, err)
			return
		}
		c.Next()
	}
}

// SessionFrom returns the authenticated session, or nil.
func SessionFrom(c *gin.Context) *model.Session {
	v, ok := c.Get(ContextSession)
	if !ok {
		return nil
	}
	session, _ := v.(*model.Session)
	return session
}

func BearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
