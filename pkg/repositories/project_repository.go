// Package repositories provides data access for the workflow engine's
// Postgres schema. Every method resolves its connection through
// database.QuerierFromContext, so calls made inside database.DB.InTx join
// the surrounding transaction automatically.
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

// ProjectRepository provides data access for projects and their ledger.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
	ListByParty(ctx context.Context, actorID uuid.UUID) ([]*models.Project, error)
	List(ctx context.Context, status models.ProjectStatus) ([]*models.Project, error)

	// Update persists all mutable fields with an optimistic version check.
	// A stale version fails with ErrConflict.
	Update(ctx context.Context, project *models.Project) error

	// SetPaymentHold flips the payment-hold flag outside the version
	// protocol. Used by the reconciliation path, which must be able to
	// freeze a project even when concurrent writers are racing.
	SetPaymentHold(ctx context.Context, projectID uuid.UUID, hold bool) error
}

type projectRepository struct {
	db database.Querier
}

// NewProjectRepository creates a new ProjectRepository backed by pool.
func NewProjectRepository(pool database.Querier) ProjectRepository {
	return &projectRepository{db: pool}
}

var _ ProjectRepository = (*projectRepository)(nil)

func (r *projectRepository) conn(ctx context.Context) database.Querier {
	return database.QuerierFromContext(ctx, r.db)
}

const projectColumns = `id, bid_id, job_id, owner_id, contractor_id, title, description, status,
	       total_amount, paid_amount, escrow_balance, payment_hold,
	       version, created_at, updated_at, archived_at`

func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	now := time.Now()
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	project.Version = 1
	project.CreatedAt = now
	project.UpdatedAt = now

	sql := `
		INSERT INTO projects (
			id, bid_id, job_id, owner_id, contractor_id, title, description, status,
			total_amount, paid_amount, escrow_balance, payment_hold,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.conn(ctx).Exec(ctx, sql,
		project.ID, project.BidID, project.JobID, project.OwnerID, project.ContractorID,
		project.Title, project.Description, project.Status,
		project.TotalAmount, project.PaidAmount, project.EscrowBalance, project.PaymentHold,
		project.Version, project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

func (r *projectRepository) GetByID(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	sql := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE id = $1`

	row := r.conn(ctx).QueryRow(ctx, sql, projectID)
	p, err := scanProjectRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: project %s", apperrors.ErrNotFound, projectID)
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return p, nil
}

func (r *projectRepository) ListByParty(ctx context.Context, actorID uuid.UUID) ([]*models.Project, error) {
	sql := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE (owner_id = $1 OR contractor_id = $1) AND archived_at IS NULL
		ORDER BY created_at DESC`

	return r.list(ctx, sql, actorID)
}

func (r *projectRepository) List(ctx context.Context, status models.ProjectStatus) ([]*models.Project, error) {
	if status == "" {
		sql := `
			SELECT ` + projectColumns + `
			FROM projects
			WHERE archived_at IS NULL
			ORDER BY created_at DESC`
		return r.list(ctx, sql)
	}

	sql := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE status = $1 AND archived_at IS NULL
		ORDER BY created_at DESC`
	return r.list(ctx, sql, status)
}

func (r *projectRepository) list(ctx context.Context, sql string, args ...any) ([]*models.Project, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*models.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

func (r *projectRepository) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now()

	sql := `
		UPDATE projects
		SET status = $3,
		    paid_amount = $4,
		    escrow_balance = $5,
		    payment_hold = $6,
		    archived_at = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $1 AND version = $2`

	result, err := r.conn(ctx).Exec(ctx, sql,
		project.ID, project.Version,
		project.Status, project.PaidAmount, project.EscrowBalance,
		project.PaymentHold, project.ArchivedAt, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, project.ID)
	}

	project.Version++
	return nil
}

func (r *projectRepository) SetPaymentHold(ctx context.Context, projectID uuid.UUID, hold bool) error {
	sql := `
		UPDATE projects
		SET payment_hold = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.conn(ctx).Exec(ctx, sql, projectID, hold)
	if err != nil {
		return fmt.Errorf("failed to set payment hold: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: project %s", apperrors.ErrNotFound, projectID)
	}

	return nil
}

// staleOrMissing distinguishes a version conflict from a deleted row after
// a zero-row UPDATE.
func (r *projectRepository) staleOrMissing(ctx context.Context, projectID uuid.UUID) error {
	var exists int
	err := r.conn(ctx).QueryRow(ctx, `SELECT 1 FROM projects WHERE id = $1`, projectID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: project %s", apperrors.ErrNotFound, projectID)
	}
	if err != nil {
		return fmt.Errorf("failed to check project: %w", err)
	}
	return fmt.Errorf("%w: project %s was modified concurrently", apperrors.ErrConflict, projectID)
}

func scanProject(rows pgx.Rows) (*models.Project, error) {
	p, err := scanProjectFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return p, nil
}

func scanProjectRow(row pgx.Row) (*models.Project, error) {
	return scanProjectFrom(row)
}

func scanProjectFrom(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(
		&p.ID, &p.BidID, &p.JobID, &p.OwnerID, &p.ContractorID,
		&p.Title, &p.Description, &p.Status,
		&p.TotalAmount, &p.PaidAmount, &p.EscrowBalance, &p.PaymentHold,
		&p.Version, &p.CreatedAt, &p.UpdatedAt, &p.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
