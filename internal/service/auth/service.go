package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

var ErrRefreshTokenSuperseded = errors.New("refresh token superseded")

// Service is the session manager. The principal's stored refresh token is the only session state.
type Service struct {
	principals repository.PrincipalRepository
	tokens     auth.JWTService
	hasher     security.PasswordHasher
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

func NewService(principals repository.PrincipalRepository, tokens auth.JWTService, hasher security.PasswordHasher,
	logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		principals: principals,
		tokens:     tokens,
		hasher:     hasher,
		logger:     logger.With().Str("component", "session").Logger(),
		metrics:    m,
	}
}

// Register creates a patient account.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.Principal, error) {
	return s.CreatePrincipal(ctx, &model.CreatePrincipalRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     model.RolePatient,
	})
}

// CreatePrincipal creates an account of any role; an empty role means patient.
func (s *Service) CreatePrincipal(ctx context.Context, req *model.CreatePrincipalRequest) (*model.Principal, error) {
	role := req.Role
	if role == "" {
		role = model.RolePatient
	}
	if !role.Valid() {
		return nil, apperrors.BadRequest("invalid role", nil)
	}
	if err := security.CheckPasswordLength(req.Password); err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	p := &model.Principal{
		Email:        req.Email,
		Name:         req.Name,
		Phone:        req.Phone,
		PasswordHash: hash,
		Role:         role,
		Status:       model.PrincipalStatusActive,
	}
	if err := s.principals.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.BadRequest("email already registered", err)
		}
		return nil, apperrors.Dependency("create principal", err)
	}

	s.logger.Info().Str("principal_id", p.ID.String()).Str("role", string(p.Role)).Msg("Principal created")
	return p, nil
}

// Login checks credentials and issues a session. Unknown email and wrong password fail identically.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.LoginResponse, error) {
	p, err := s.principals.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.record("login", "rejected")
			return nil, apperrors.InvalidCredentials()
		}
		return nil, apperrors.Dependency("load principal", err)
	}

	if err := s.hasher.Compare(p.PasswordHash, req.Password); err != nil {
		s.record("login", "rejected")
		return nil, apperrors.InvalidCredentials()
	}

	if !p.IsActive() {
		s.record("login", "inactive")
		return nil, apperrors.Forbidden("account is not active")
	}

	tokens, err := s.IssueSession(ctx, p)
	if err != nil {
		return nil, err
	}
	s.record("login", "ok")

	return &model.LoginResponse{TokenResponse: *tokens, Principal: p}, nil
}

// IssueSession creates a fresh token pair and overwrites the stored refresh token,
// so any earlier refresh token for p stops working immediately.
func (s *Service) IssueSession(ctx context.Context, p *model.Principal) (*model.TokenResponse, error) {
	access, err := s.tokens.GenerateAccessToken(p)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(p)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.principals.SetRefreshToken(ctx, p.ID, &refresh); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("principal", err)
		}
		return nil, apperrors.Dependency("store refresh token", err)
	}
	p.RefreshToken = &refresh
	s.record("issue", "ok")

	return &model.TokenResponse{AccessToken: access, RefreshToken: refresh}, nil
}

// ValidateAccess verifies an access token and returns the session it carries.
func (s *Service) ValidateAccess(_ context.Context, token string) (*model.Session, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, tokenError(err)
	}
	session := &model.Session{
		PrincipalID: claims.PrincipalID,
		Email:       claims.Email,
		Role:        claims.Role,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// RotateAccess exchanges a refresh token for a new access token. The stored token is re-read
// on every call, so a login that replaced it makes this fail with Revoked.
func (s *Service) RotateAccess(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		s.record("rotate", string(apperrors.ReasonOf(tokenError(err))))
		return nil, tokenError(err)
	}

	p, err := s.principals.Get(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.record("rotate", string(apperrors.ReasonRevoked))
			return nil, apperrors.AuthRevoked(err)
		}
		return nil, apperrors.Dependency("load principal", err)
	}

	if p.RefreshToken == nil || *p.RefreshToken != refreshToken {
		s.record("rotate", string(apperrors.ReasonRevoked))
		return nil, apperrors.AuthRevoked(ErrRefreshTokenSuperseded)
	}
	if !p.IsActive() {
		s.record("rotate", string(apperrors.ReasonRevoked))
		return nil, apperrors.AuthRevoked(errors.New("principal not active"))
	}

	access, err := s.tokens.GenerateAccessToken(p)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	s.record("rotate", "ok")

	return &model.TokenResponse{AccessToken: access}, nil
}

// Invalidate clears the stored refresh token (logout).
func (s *Service) Invalidate(ctx context.Context, principalID uuid.UUID) error {
	if err := s.principals.SetRefreshToken(ctx, principalID, nil); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("principal", err)
		}
		return apperrors.Dependency("clear refresh token", err)
	}
	s.record("invalidate", "ok")
	return nil
}

func (s *Service) Me(ctx context.Context, principalID uuid.UUID) (*model.Principal, error) {
	return s.get(ctx, principalID)
}

func (s *Service) ListPrincipals(ctx context.Context, filter model.PrincipalFilter) ([]*model.Principal, error) {
	list, err := s.principals.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Dependency("list principals", err)
	}
	return list, nil
}

// ChangeRole updates the role and drops the stored refresh token; the new role
// reaches tokens after the principal logs in again.
func (s *Service) ChangeRole(ctx context.Context, principalID uuid.UUID, role model.Role) (*model.Principal, error) {
	if !role.Valid() {
		return nil, apperrors.BadRequest("invalid role", nil)
	}
	if err := s.principals.UpdateRole(ctx, principalID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("principal", err)
		}
		return nil, apperrors.Dependency("update role", err)
	}
	if err := s.Invalidate(ctx, principalID); err != nil {
		return nil, err
	}
	return s.get(ctx, principalID)
}

// ChangeStatus updates the account status and drops the stored refresh token.
func (s *Service) ChangeStatus(ctx context.Context, principalID uuid.UUID, status model.PrincipalStatus) (*model.Principal, error) {
	if !status.Valid() {
		return nil, apperrors.BadRequest("invalid status", nil)
	}
	if err := s.principals.UpdateStatus(ctx, principalID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("principal", err)
		}
		return nil, apperrors.Dependency("update status", err)
	}
	if err := s.Invalidate(ctx, principalID); err != nil {
		return nil, err
	}
	return s.get(ctx, principalID)
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*model.Principal, error) {
	p, err := s.principals.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("principal", err)
		}
		return nil, apperrors.Dependency("load principal", err)
	}
	return p, nil
}

func (s *Service) record(operation, result string) {
	s.metrics.SessionOperations.WithLabelValues(operation, result).Inc()
}

func tokenError(err error) error {
	if errors.Is(err, auth.ErrTokenExpired) {
		return apperrors.AuthExpired(err)
	}
	return apperrors.AuthMalformed(err)
}
