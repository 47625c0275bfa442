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

// MilestoneRepository provides data access for milestones.
type MilestoneRepository interface {
	Create(ctx context.Context, milestone *models.Milestone) error
	GetByID(ctx context.Context, projectID, milestoneID uuid.UUID) (*models.Milestone, error)
	// ListByProject returns the project's milestones ordered by order_number.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Milestone, error)

	// Update persists all mutable fields with an optimistic version check.
	// A stale version fails with ErrConflict.
	Update(ctx context.Context, milestone *models.Milestone) error
}

type milestoneRepository struct {
	db database.Querier
}

// NewMilestoneRepository creates a new MilestoneRepository backed by pool.
func NewMilestoneRepository(pool database.Querier) MilestoneRepository {
	return &milestoneRepository{db: pool}
}

var _ MilestoneRepository = (*milestoneRepository)(nil)

func (r *milestoneRepository) conn(ctx context.Context) database.Querier {
	return database.QuerierFromContext(ctx, r.db)
}

const milestoneColumns = `id, project_id, order_number, title, description, due_date,
	       payment_amount, deliverables, acceptance_criteria,
	       proof_url, rejection_reason, status, submitted_at, approved_at,
	       version, created_at, updated_at`

func (r *milestoneRepository) Create(ctx context.Context, milestone *models.Milestone) error {
	now := time.Now()
	if milestone.ID == uuid.Nil {
		milestone.ID = uuid.New()
	}
	milestone.Version = 1
	milestone.CreatedAt = now
	milestone.UpdatedAt = now

	sql := `
		INSERT INTO milestones (
			id, project_id, order_number, title, description, due_date,
			payment_amount, deliverables, acceptance_criteria,
			proof_url, rejection_reason, status, submitted_at, approved_at,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.conn(ctx).Exec(ctx, sql,
		milestone.ID, milestone.ProjectID, milestone.OrderNumber,
		milestone.Title, milestone.Description, milestone.DueDate,
		milestone.PaymentAmount, milestone.Deliverables, milestone.AcceptanceCriteria,
		milestone.ProofURL, milestone.RejectionReason, milestone.Status,
		milestone.SubmittedAt, milestone.ApprovedAt,
		milestone.Version, milestone.CreatedAt, milestone.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create milestone: %w", err)
	}

	return nil
}

func (r *milestoneRepository) GetByID(ctx context.Context, projectID, milestoneID uuid.UUID) (*models.Milestone, error) {
	sql := `
		SELECT ` + milestoneColumns + `
		FROM milestones
		WHERE project_id = $1 AND id = $2`

	row := r.conn(ctx).QueryRow(ctx, sql, projectID, milestoneID)
	m, err := scanMilestoneFrom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: milestone %s", apperrors.ErrNotFound, milestoneID)
		}
		return nil, fmt.Errorf("failed to get milestone: %w", err)
	}

	return m, nil
}

func (r *milestoneRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Milestone, error) {
	sql := `
		SELECT ` + milestoneColumns + `
		FROM milestones
		WHERE project_id = $1
		ORDER BY order_number ASC`

	rows, err := r.conn(ctx).Query(ctx, sql, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	milestones := make([]*models.Milestone, 0)
	for rows.Next() {
		m, err := scanMilestoneFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating milestones: %w", err)
	}

	return milestones, nil
}

func (r *milestoneRepository) Update(ctx context.Context, milestone *models.Milestone) error {
	milestone.UpdatedAt = time.Now()

	sql := `
		UPDATE milestones
		SET proof_url = $3,
		    rejection_reason = $4,
		    status = $5,
		    submitted_at = $6,
		    approved_at = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $1 AND version = $2`

	result, err := r.conn(ctx).Exec(ctx, sql,
		milestone.ID, milestone.Version,
		milestone.ProofURL, milestone.RejectionReason, milestone.Status,
		milestone.SubmittedAt, milestone.ApprovedAt, milestone.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update milestone: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists int
		err := r.conn(ctx).QueryRow(ctx, `SELECT 1 FROM milestones WHERE id = $1`, milestone.ID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: milestone %s", apperrors.ErrNotFound, milestone.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to check milestone: %w", err)
		}
		return fmt.Errorf("%w: milestone %s was modified concurrently", apperrors.ErrConflict, milestone.ID)
	}

	milestone.Version++
	return nil
}

func scanMilestoneFrom(row pgx.Row) (*models.Milestone, error) {
	var m models.Milestone
	err := row.Scan(
		&m.ID, &m.ProjectID, &m.OrderNumber, &m.Title, &m.Description, &m.DueDate,
		&m.PaymentAmount, &m.Deliverables, &m.AcceptanceCriteria,
		&m.ProofURL, &m.RejectionReason, &m.Status, &m.SubmittedAt, &m.ApprovedAt,
		&m.Version, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
