package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims carries the principal identity. Refresh tokens only populate PrincipalID.
type Claims struct {
	PrincipalID uuid.UUID  `json:"id"`
	Email       string     `json:"email,omitempty"`
	Role        model.Role `json:"role,omitempty"`
	TokenType   string     `json:"type"`
	jwt.RegisteredClaims
}

type JWTService interface {
	GenerateAccessToken(p *model.Principal) (string, error)
	GenerateRefreshToken(p *model.Principal) (string, error)
	ValidateToken(token string) (*Claims, error)
	ValidateRefreshToken(token string) (*Claims, error)
}

type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// Now overrides the clock, used by tests.
	Now func() time.Time
}

type jwtService struct {
	cfg Config
}

func NewJWTService(cfg Config) JWTService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &jwtService{cfg: cfg}
}

func (s *jwtService) GenerateAccessToken(p *model.Principal) (string, error) {
	claims := Claims{
		PrincipalID: p.ID,
		Email:       p.Email,
		Role:        p.Role,
		TokenType:   TokenTypeAccess,
	}
	return s.sign(claims, s.cfg.AccessSecret, s.cfg.AccessTTL)
}

func (s *jwtService) GenerateRefreshToken(p *model.Principal) (string, error) {
	claims := Claims{
		PrincipalID: p.ID,
		TokenType:   TokenTypeRefresh,
	}
	return s.sign(claims, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
}

func (s *jwtService) sign(claims Claims, secret string, ttl time.Duration) (string, error) {
	now := s.cfg.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		// jti keeps two tokens minted in the same second distinct.
		ID:        uuid.NewString(),
		Subject:   claims.PrincipalID.String(),
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *jwtService) ValidateToken(token string) (*Claims, error) {
	return s.parse(token, s.cfg.AccessSecret, TokenTypeAccess)
}

func (s *jwtService) ValidateRefreshToken(token string) (*Claims, error) {
	return s.parse(token, s.cfg.RefreshSecret, TokenTypeRefresh)
}

func (s *jwtService) parse(tokenStr, secret, tokenType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.cfg.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !token.Valid || claims.TokenType != tokenType || claims.PrincipalID == uuid.Nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
