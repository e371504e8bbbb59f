package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService(c *clock) JWTService {
	return NewJWTService(Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "clinic-api",
		Now:           c.now,
	})
}

func testPrincipal() *model.Principal {
	return &model.Principal{
		Base:  model.Base{ID: uuid.New()},
		Email: "doc@clinic.test",
		Role:  model.RoleDoctor,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	c := &clock{t: time.Now()}
	svc := newTestService(c)
	p := testPrincipal()

	token, err := svc.GenerateAccessToken(p)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, claims.PrincipalID)
	assert.Equal(t, p.Email, claims.Email)
	assert.Equal(t, model.RoleDoctor, claims.Role)
}

func TestAccessTokenExpires(t *testing.T) {
	c := &clock{t: time.Now()}
	svc := newTestService(c)

	token, err := svc.GenerateAccessToken(testPrincipal())
	require.NoError(t, err)

	c.t = c.t.Add(16 * time.Minute)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	svc := newTestService(&clock{t: time.Now()})
	p := testPrincipal()

	refresh, err := svc.GenerateRefreshToken(p)
	require.NoError(t, err)
	access, err := svc.GenerateAccessToken(p)
	require.NoError(t, err)

	_, err = svc.ValidateToken(refresh)
	assert.ErrorIs(t, err, ErrTokenMalformed)
	_, err = svc.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	claims, err := svc.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, p.ID, claims.PrincipalID)
	assert.Empty(t, claims.Email)
}

func TestMalformedToken(t *testing.T) {
	svc := newTestService(&clock{t: time.Now()})

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenMalformed, token)
	}
}

func TestTokenSignedWithOtherSecret(t *testing.T) {
	p := testPrincipal()
	other := NewJWTService(Config{AccessSecret: "other", RefreshSecret: "x", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	token, err := other.GenerateAccessToken(p)
	require.NoError(t, err)

	_, err = newTestService(&clock{t: time.Now()}).ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestRefreshTokensAreUniqueWithinOneSecond(t *testing.T) {
	svc := newTestService(&clock{t: time.Now()})
	p := testPrincipal()

	first, err := svc.GenerateRefreshToken(p)
	require.NoError(t, err)
	second, err := svc.GenerateRefreshToken(p)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
