package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
)

// PaymentScheduleEntry is one payable line of the agreed contract terms.
// Each entry materializes exactly one milestone at project creation.
type PaymentScheduleEntry struct {
	MilestoneRef string    `json:"milestone"`
	Percentage   float64   `json:"percentage"`
	Amount       Money     `json:"amount"`
	DueDate      time.Time `json:"due_date"`
}

// ContractTerms holds the agreed payment schedule and narrative terms.
type ContractTerms struct {
	PaymentSchedule []PaymentScheduleEntry `json:"payment_schedule"`
	Timeline        string                 `json:"timeline,omitempty"`
	Warranty        string                 `json:"warranty,omitempty"`
	Liability       string                 `json:"liability,omitempty"`
	Insurance       string                 `json:"insurance,omitempty"`
}

// Contract is the immutable-once-signed record of the agreed terms.
type Contract struct {
	ID                    uuid.UUID     `json:"id"`
	ProjectID             uuid.UUID     `json:"project_id"`
	ContractType          string        `json:"contract_type"`
	Terms                 ContractTerms `json:"terms"`
	WarrantyTerms         string        `json:"warranty_terms,omitempty"`
	InsuranceRequirements string        `json:"insurance_requirements,omitempty"`
	OwnerSigned           bool          `json:"owner_signed"`
	ContractorSigned      bool          `json:"contractor_signed"`
	OwnerSignedAt         *time.Time    `json:"owner_signed_at,omitempty"`
	ContractorSignedAt    *time.Time    `json:"contractor_signed_at,omitempty"`
	FullyExecutedAt       *time.Time    `json:"fully_executed_at,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFullyExecuted reports whether both signatures are present. A fully
// executed contract is immutable.
func (c *Contract) IsFullyExecuted() bool {
	return c.OwnerSigned && c.ContractorSigned
}

// Sign records a party's signature. Signing an already fully executed
// contract fails with ErrImmutableRecord; re-signing by the same party is
// an invalid transition rather than a silent no-op.
func (c *Contract) Sign(party Party, now time.Time) error {
	if c.IsFullyExecuted() {
		return fmt.Errorf("%w: contract %s is fully executed", apperrors.ErrImmutableRecord, c.ID)
	}
	switch party {
	case PartyOwner:
		if c.OwnerSigned {
			return fmt.Errorf("%w: owner has already signed contract %s", apperrors.ErrInvalidTransition, c.ID)
		}
		c.OwnerSigned = true
		c.OwnerSignedAt = &now
	case PartyContractor:
		if c.ContractorSigned {
			return fmt.Errorf("%w: contractor has already signed contract %s", apperrors.ErrInvalidTransition, c.ID)
		}
		c.ContractorSigned = true
		c.ContractorSignedAt = &now
	default:
		return fmt.Errorf("%w: unknown signing party %q", apperrors.ErrValidation, party)
	}
	if c.IsFullyExecuted() {
		c.FullyExecutedAt = &now
	}
	return nil
}

// ValidateAgainstTotal checks the creation-time structural invariants:
// the schedule amounts must sum exactly to the project total, and the
// percentages must sum to 100 within toleranceBasisPoints (hundredths of
// a percent: tolerance 1 permits 99.99 to 100.01).
func (c *Contract) ValidateAgainstTotal(total Money, toleranceBasisPoints int64) error {
	if len(c.Terms.PaymentSchedule) == 0 {
		return fmt.Errorf("%w: payment schedule must have at least one entry", apperrors.ErrValidation)
	}
	var amountSum Money
	var pctSum float64
	var prevDue time.Time
	for i, entry := range c.Terms.PaymentSchedule {
		if entry.Amount <= 0 {
			return fmt.Errorf("%w: payment schedule entry %d must have a positive amount", apperrors.ErrValidation, i)
		}
		if entry.MilestoneRef == "" {
			return fmt.Errorf("%w: payment schedule entry %d missing milestone reference", apperrors.ErrValidation, i)
		}
		if entry.DueDate.IsZero() {
			return fmt.Errorf("%w: payment schedule entry %d missing due date", apperrors.ErrValidation, i)
		}
		if i > 0 && entry.DueDate.Before(prevDue) {
			return fmt.Errorf("%w: payment schedule due dates must be non-decreasing (entry %d)", apperrors.ErrValidation, i)
		}
		prevDue = entry.DueDate
		amountSum += entry.Amount
		pctSum += entry.Percentage
	}
	if amountSum != total {
		return fmt.Errorf("%w: payment schedule sums to %s but project total is %s",
			apperrors.ErrValidation, amountSum, total)
	}
	// Percentages are advisory display values derived from the amounts, so
	// they get a small explicit rounding tolerance in basis points. The
	// deviation itself is rounded to whole basis points; truncation would
	// quietly widen the tolerance by up to one more.
	deviation := int64(math.Round((pctSum - 100) * 100))
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation > toleranceBasisPoints {
		return fmt.Errorf("%w: payment schedule percentages sum to %.2f, want 100 within %d basis points",
			apperrors.ErrValidation, pctSum, toleranceBasisPoints)
	}
	return nil
}
