package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
)

// ProjectStatus is the closed set of project lifecycle states.
type ProjectStatus string

const (
	ProjectSetup     ProjectStatus = "setup"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

// projectTransitions is the legal transition table. Anything not listed
// fails with ErrInvalidTransition.
var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectSetup:     {ProjectActive, ProjectCancelled},
	ProjectActive:    {ProjectOnHold, ProjectCompleted, ProjectCancelled},
	ProjectOnHold:    {ProjectActive, ProjectCancelled},
	ProjectCompleted: {},
	ProjectCancelled: {},
}

// Project is the aggregate record for a contracted job. It owns the escrow
// ledger: PaidAmount + EscrowBalance == TotalAmount at every observable
// instant, and PaidAmount only ever grows.
type Project struct {
	ID           uuid.UUID     `json:"id"`
	BidID        *uuid.UUID    `json:"bid_id,omitempty"`
	JobID        *uuid.UUID    `json:"job_id,omitempty"`
	OwnerID      uuid.UUID     `json:"owner_id"`
	ContractorID uuid.UUID     `json:"contractor_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Status       ProjectStatus `json:"status"`

	TotalAmount   Money `json:"total_amount"`
	PaidAmount    Money `json:"paid_amount"`
	EscrowBalance Money `json:"escrow_balance"`

	// PaymentHold freezes all payment releases after a ledger integrity
	// failure. Cleared only by operator intervention.
	PaymentHold bool `json:"payment_hold"`

	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// CanTransitionTo reports whether moving to target is legal from the
// current status.
func (p *Project) CanTransitionTo(target ProjectStatus) bool {
	for _, s := range projectTransitions[p.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// Transition moves the project to target or fails with ErrInvalidTransition.
func (p *Project) Transition(target ProjectStatus) error {
	if !p.CanTransitionTo(target) {
		return fmt.Errorf("%w: project %s -> %s", apperrors.ErrInvalidTransition, p.Status, target)
	}
	p.Status = target
	return nil
}

// CheckLedger verifies money conservation on the stored balances.
func (p *Project) CheckLedger() error {
	if p.PaidAmount < 0 || p.EscrowBalance < 0 {
		return fmt.Errorf("%w: negative balance on project %s (paid=%s escrow=%s)",
			apperrors.ErrLedgerIntegrity, p.ID, p.PaidAmount, p.EscrowBalance)
	}
	if p.PaidAmount+p.EscrowBalance != p.TotalAmount {
		return fmt.Errorf("%w: project %s paid=%s + escrow=%s != total=%s",
			apperrors.ErrLedgerIntegrity, p.ID, p.PaidAmount, p.EscrowBalance, p.TotalAmount)
	}
	return nil
}

// ReleaseFromEscrow moves amount from escrow to paid, preserving the
// conservation invariant. The caller persists the result atomically with
// the milestone approval.
func (p *Project) ReleaseFromEscrow(amount Money) error {
	if amount < 0 {
		return fmt.Errorf("%w: release amount must be non-negative", apperrors.ErrValidation)
	}
	if amount > p.EscrowBalance {
		return fmt.Errorf("%w: release of %s exceeds escrow balance %s on project %s",
			apperrors.ErrLedgerIntegrity, amount, p.EscrowBalance, p.ID)
	}
	p.EscrowBalance -= amount
	p.PaidAmount += amount
	return p.CheckLedger()
}

// IsParty reports whether the actor is the owner or contractor on record.
func (p *Project) IsParty(actorID uuid.UUID) bool {
	return actorID == p.OwnerID || actorID == p.ContractorID
}

// ValidateNew checks the structural invariants of a project being created
// from an awarded bid or accepted job application.
func (p *Project) ValidateNew() error {
	if (p.BidID == nil) == (p.JobID == nil) {
		return fmt.Errorf("%w: exactly one of bid_id or job_id must be set", apperrors.ErrValidation)
	}
	if p.OwnerID == uuid.Nil || p.ContractorID == uuid.Nil {
		return fmt.Errorf("%w: owner and contractor are required", apperrors.ErrValidation)
	}
	if p.OwnerID == p.ContractorID {
		return fmt.Errorf("%w: owner and contractor must be distinct parties", apperrors.ErrValidation)
	}
	if p.Title == "" {
		return fmt.Errorf("%w: title is required", apperrors.ErrValidation)
	}
	if p.TotalAmount <= 0 {
		return fmt.Errorf("%w: total amount must be positive", apperrors.ErrValidation)
	}
	return nil
}
