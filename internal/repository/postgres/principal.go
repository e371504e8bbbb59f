package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type principalRepository struct {
	BaseRepository
}

func NewPrincipalRepository(base BaseRepository) repository.PrincipalRepository {
	return &principalRepository{base}
}

const principalColumns = `id, email, name, phone, password_hash, role, status, refresh_token, created_at, updated_at`

func (r *principalRepository) Create(ctx context.Context, p *model.Principal) error {
	query := `
		INSERT INTO principals (` + principalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if p.ID == uuid.Nil {
		p.Base = model.NewBase(time.Now().UTC())
	}
	p.Email = model.NormalizeEmail(p.Email)

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Email,
		p.Name,
		p.Phone,
		p.PasswordHash,
		p.Role,
		p.Status,
		p.RefreshToken,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return duplicate(err, "create principal")
	}
	return nil
}

func (r *principalRepository) Get(ctx context.Context, id uuid.UUID) (*model.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`

	var p model.Principal
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound(err, "get principal")
	}
	return &p, nil
}

func (r *principalRepository) GetByEmail(ctx context.Context, email string) (*model.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE email = $1`

	var p model.Principal
	if err := r.db.GetContext(ctx, &p, query, model.NormalizeEmail(email)); err != nil {
		return nil, notFound(err, "get principal by email")
	}
	return &p, nil
}

func (r *principalRepository) List(ctx context.Context, filter model.PrincipalFilter) ([]*model.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filter.Role != "" {
		query += fmt.Sprintf(" AND role = $%d", argCount)
		args = append(args, filter.Role)
		argCount++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filter.Status)
	}
	query += " ORDER BY created_at ASC"

	principals := []*model.Principal{}
	if err := r.db.SelectContext(ctx, &principals, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	return principals, nil
}

func (r *principalRepository) SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error {
	query := `UPDATE principals SET refresh_token = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, token, id)
	if err != nil {
		return fmt.Errorf("failed to set refresh token: %w", err)
	}
	return expectOne(result, "set refresh token")
}

func (r *principalRepository) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	query := `UPDATE principals SET role = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, role, id)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return expectOne(result, "update role")
}

func (r *principalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.PrincipalStatus) error {
	query := `UPDATE principals SET status = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return expectOne(result, "update status")
}
