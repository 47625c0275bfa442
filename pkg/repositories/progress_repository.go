package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/database"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
)

// ProgressRepository provides data access for progress updates. Updates are
// append-only; there is no Update or Delete.
type ProgressRepository interface {
	Create(ctx context.Context, update *models.ProgressUpdate) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.ProgressUpdate, error)
}

type progressRepository struct {
	db database.Querier
}

// NewProgressRepository creates a new ProgressRepository backed by pool.
func NewProgressRepository(pool database.Querier) ProgressRepository {
	return &progressRepository{db: pool}
}

var _ ProgressRepository = (*progressRepository)(nil)

func (r *progressRepository) conn(ctx context.Context) database.Querier {
	return database.QuerierFromContext(ctx, r.db)
}

func (r *progressRepository) Create(ctx context.Context, update *models.ProgressUpdate) error {
	if update.ID == uuid.Nil {
		update.ID = uuid.New()
	}
	update.CreatedAt = time.Now()

	sql := `
		INSERT INTO progress_updates (
			id, project_id, milestone_id, author_id, update_type,
			work_completed, work_planned, issues, photos, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.conn(ctx).Exec(ctx, sql,
		update.ID, update.ProjectID, update.MilestoneID, update.AuthorID, update.UpdateType,
		update.WorkCompleted, update.WorkPlanned, update.Issues, update.Photos, update.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create progress update: %w", err)
	}

	return nil
}

func (r *progressRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.ProgressUpdate, error) {
	sql := `
		SELECT id, project_id, milestone_id, author_id, update_type,
		       work_completed, work_planned, issues, photos, created_at
		FROM progress_updates
		WHERE project_id = $1
		ORDER BY created_at DESC`

	rows, err := r.conn(ctx).Query(ctx, sql, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress updates: %w", err)
	}
	defer rows.Close()

	updates := make([]*models.ProgressUpdate, 0)
	for rows.Next() {
		var u models.ProgressUpdate
		err := rows.Scan(
			&u.ID, &u.ProjectID, &u.MilestoneID, &u.AuthorID, &u.UpdateType,
			&u.WorkCompleted, &u.WorkPlanned, &u.Issues, &u.Photos, &u.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress update: %w", err)
		}
		updates = append(updates, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating progress updates: %w", err)
	}

	return updates, nil
}
