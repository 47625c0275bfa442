package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
)

// ProgressUpdate is an append-only informational record on a project. It is
// not part of the payment state machine and carries no money invariants.
type ProgressUpdate struct {
	ID            uuid.UUID  `json:"id"`
	ProjectID     uuid.UUID  `json:"project_id"`
	MilestoneID   *uuid.UUID `json:"milestone_id,omitempty"`
	AuthorID      uuid.UUID  `json:"author_id"`
	UpdateType    string     `json:"update_type"`
	WorkCompleted string     `json:"work_completed"`
	WorkPlanned   string     `json:"work_planned,omitempty"`
	Issues        string     `json:"issues,omitempty"`
	Photos        []string   `json:"photos,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ValidateNew checks the minimal structure of a new progress update.
func (u *ProgressUpdate) ValidateNew() error {
	if u.ProjectID == uuid.Nil {
		return fmt.Errorf("%w: project_id is required", apperrors.ErrValidation)
	}
	if u.WorkCompleted == "" {
		return fmt.Errorf("%w: work_completed is required", apperrors.ErrValidation)
	}
	return nil
}
