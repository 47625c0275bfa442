package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/database"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
)

// ScopeRepository provides data access for scopes of work. The structured
// document fields are stored as jsonb.
type ScopeRepository interface {
	Create(ctx context.Context, scope *models.ScopeOfWork) error
	GetByProjectID(ctx context.Context, projectID uuid.UUID) (*models.ScopeOfWork, error)

	// Update persists approval state with an optimistic version check.
	// A stale version fails with ErrConflict.
	Update(ctx context.Context, scope *models.ScopeOfWork) error
}

type scopeRepository struct {
	db database.Querier
}

// NewScopeRepository creates a new ScopeRepository backed by pool.
func NewScopeRepository(pool database.Querier) ScopeRepository {
	return &scopeRepository{db: pool}
}

var _ ScopeRepository = (*scopeRepository)(nil)

func (r *scopeRepository) conn(ctx context.Context) database.Querier {
	return database.QuerierFromContext(ctx, r.db)
}

func (r *scopeRepository) Create(ctx context.Context, scope *models.ScopeOfWork) error {
	now := time.Now()
	if scope.ID == uuid.Nil {
		scope.ID = uuid.New()
	}
	scope.Version = 1
	scope.CreatedAt = now
	scope.UpdatedAt = now

	sql := `
		INSERT INTO scopes_of_work (
			id, project_id, work_breakdown, materials, requirements, exclusions,
			approved_by_owner, approved_by_contractor,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.conn(ctx).Exec(ctx, sql,
		scope.ID, scope.ProjectID,
		scope.WorkBreakdown, scope.Materials, scope.Requirements, scope.Exclusions,
		scope.ApprovedByOwner, scope.ApprovedByContractor,
		scope.Version, scope.CreatedAt, scope.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create scope: %w", err)
	}

	return nil
}

func (r *scopeRepository) GetByProjectID(ctx context.Context, projectID uuid.UUID) (*models.ScopeOfWork, error) {
	sql := `
		SELECT id, project_id, work_breakdown, materials, requirements, exclusions,
		       approved_by_owner, approved_by_contractor,
		       version, created_at, updated_at
		FROM scopes_of_work
		WHERE project_id = $1`

	var s models.ScopeOfWork
	err := r.conn(ctx).QueryRow(ctx, sql, projectID).Scan(
		&s.ID, &s.ProjectID,
		&s.WorkBreakdown, &s.Materials, &s.Requirements, &s.Exclusions,
		&s.ApprovedByOwner, &s.ApprovedByContractor,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: scope for project %s", apperrors.ErrNotFound, projectID)
		}
		return nil, fmt.Errorf("failed to get scope: %w", err)
	}

	return &s, nil
}

func (r *scopeRepository) Update(ctx context.Context, scope *models.ScopeOfWork) error {
	scope.UpdatedAt = time.Now()

	sql := `
		UPDATE scopes_of_work
		SET approved_by_owner = $3,
		    approved_by_contractor = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $1 AND version = $2`

	result, err := r.conn(ctx).Exec(ctx, sql,
		scope.ID, scope.Version,
		scope.ApprovedByOwner, scope.ApprovedByContractor, scope.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update scope: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists int
		err := r.conn(ctx).QueryRow(ctx, `SELECT 1 FROM scopes_of_work WHERE id = $1`, scope.ID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: scope %s", apperrors.ErrNotFound, scope.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to check scope: %w", err)
		}
		return fmt.Errorf("%w: scope %s was modified concurrently", apperrors.ErrConflict, scope.ID)
	}

	scope.Version++
	return nil
}
