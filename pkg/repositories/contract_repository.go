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

// ContractRepository provides data access for contracts. Terms are stored
// as jsonb; pgx handles the (un)marshaling.
type ContractRepository interface {
	Create(ctx context.Context, contract *models.Contract) error
	GetByProjectID(ctx context.Context, projectID uuid.UUID) (*models.Contract, error)

	// Update persists signature state with an optimistic version check.
	// A stale version fails with ErrConflict.
	Update(ctx context.Context, contract *models.Contract) error
}

type contractRepository struct {
	db database.Querier
}

// NewContractRepository creates a new ContractRepository backed by pool.
func NewContractRepository(pool database.Querier) ContractRepository {
	return &contractRepository{db: pool}
}

var _ ContractRepository = (*contractRepository)(nil)

func (r *contractRepository) conn(ctx context.Context) database.Querier {
	return database.QuerierFromContext(ctx, r.db)
}

func (r *contractRepository) Create(ctx context.Context, contract *models.Contract) error {
	now := time.Now()
	if contract.ID == uuid.Nil {
		contract.ID = uuid.New()
	}
	contract.Version = 1
	contract.CreatedAt = now
	contract.UpdatedAt = now

	sql := `
		INSERT INTO contracts (
			id, project_id, contract_type, terms,
			warranty_terms, insurance_requirements,
			owner_signed, contractor_signed,
			owner_signed_at, contractor_signed_at, fully_executed_at,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.conn(ctx).Exec(ctx, sql,
		contract.ID, contract.ProjectID, contract.ContractType, contract.Terms,
		contract.WarrantyTerms, contract.InsuranceRequirements,
		contract.OwnerSigned, contract.ContractorSigned,
		contract.OwnerSignedAt, contract.ContractorSignedAt, contract.FullyExecutedAt,
		contract.Version, contract.CreatedAt, contract.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}

	return nil
}

func (r *contractRepository) GetByProjectID(ctx context.Context, projectID uuid.UUID) (*models.Contract, error) {
	sql := `
		SELECT id, project_id, contract_type, terms,
		       warranty_terms, insurance_requirements,
		       owner_signed, contractor_signed,
		       owner_signed_at, contractor_signed_at, fully_executed_at,
		       version, created_at, updated_at
		FROM contracts
		WHERE project_id = $1`

	var c models.Contract
	err := r.conn(ctx).QueryRow(ctx, sql, projectID).Scan(
		&c.ID, &c.ProjectID, &c.ContractType, &c.Terms,
		&c.WarrantyTerms, &c.InsuranceRequirements,
		&c.OwnerSigned, &c.ContractorSigned,
		&c.OwnerSignedAt, &c.ContractorSignedAt, &c.FullyExecutedAt,
		&c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: contract for project %s", apperrors.ErrNotFound, projectID)
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	return &c, nil
}

func (r *contractRepository) Update(ctx context.Context, contract *models.Contract) error {
	contract.UpdatedAt = time.Now()

	sql := `
		UPDATE contracts
		SET owner_signed = $3,
		    contractor_signed = $4,
		    owner_signed_at = $5,
		    contractor_signed_at = $6,
		    fully_executed_at = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $1 AND version = $2`

	result, err := r.conn(ctx).Exec(ctx, sql,
		contract.ID, contract.Version,
		contract.OwnerSigned, contract.ContractorSigned,
		contract.OwnerSignedAt, contract.ContractorSignedAt, contract.FullyExecutedAt,
		contract.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists int
		err := r.conn(ctx).QueryRow(ctx, `SELECT 1 FROM contracts WHERE id = $1`, contract.ID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: contract %s", apperrors.ErrNotFound, contract.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to check contract: %w", err)
		}
		return fmt.Errorf("%w: contract %s was modified concurrently", apperrors.ErrConflict, contract.ID)
	}

	contract.Version++
	return nil
}
