package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
)

// MilestoneStatus is the closed set of milestone lifecycle states.
type MilestoneStatus string

const (
	MilestoneNotStarted MilestoneStatus = "not_started"
	MilestonePending    MilestoneStatus = "pending"
	MilestoneSubmitted  MilestoneStatus = "submitted"
	MilestoneApproved   MilestoneStatus = "approved"
	MilestoneRejected   MilestoneStatus = "rejected"
)

// Milestone is a discrete, separately payable unit of contracted work.
// One is materialized per contract payment-schedule entry at project
// creation and never added or removed afterward in the normal path.
type Milestone struct {
	ID                 uuid.UUID       `json:"id"`
	ProjectID          uuid.UUID       `json:"project_id"`
	OrderNumber        int             `json:"order_number"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	DueDate            time.Time       `json:"due_date"`
	PaymentAmount      Money           `json:"payment_amount"`
	Deliverables       []string        `json:"deliverables"`
	AcceptanceCriteria []string        `json:"acceptance_criteria"`
	ProofURL           string          `json:"proof_url,omitempty"`
	RejectionReason    string          `json:"rejection_reason,omitempty"`
	Status             MilestoneStatus `json:"status"`
	SubmittedAt        *time.Time      `json:"submitted_at,omitempty"`
	ApprovedAt         *time.Time      `json:"approved_at,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether no further transition is legal.
func (m *Milestone) IsTerminal() bool {
	return m.Status == MilestoneApproved
}

func (m *Milestone) invalidTransition(action string) error {
	return fmt.Errorf("%w: cannot %s milestone in status %s", apperrors.ErrInvalidTransition, action, m.Status)
}

// Activate moves not_started -> pending. Called for every milestone when
// the project leaves setup.
func (m *Milestone) Activate() error {
	if m.Status != MilestoneNotStarted {
		return m.invalidTransition("activate")
	}
	m.Status = MilestonePending
	return nil
}

// Submit moves pending -> submitted, or rejected -> submitted on
// resubmission. A non-empty proof reference is required either way.
func (m *Milestone) Submit(proofURL string, now time.Time) error {
	if proofURL == "" {
		return fmt.Errorf("%w: proof_url is required to submit a milestone", apperrors.ErrValidation)
	}
	if m.Status != MilestonePending && m.Status != MilestoneRejected {
		return m.invalidTransition("submit")
	}
	m.Status = MilestoneSubmitted
	m.ProofURL = proofURL
	m.RejectionReason = ""
	m.SubmittedAt = &now
	return nil
}

// Approve moves submitted -> approved. Approved is terminal: a repeated
// approve fails with ErrInvalidTransition rather than silently succeeding,
// so clients can detect double-submission bugs. The fund release that
// accompanies approval is the caller's responsibility and must commit in
// the same transaction.
func (m *Milestone) Approve(now time.Time) error {
	if m.Status != MilestoneSubmitted {
		return m.invalidTransition("approve")
	}
	m.Status = MilestoneApproved
	m.ApprovedAt = &now
	return nil
}

// Reject moves submitted -> rejected. A non-empty reason is required; the
// engine never guesses intent on ambiguous input.
func (m *Milestone) Reject(reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: rejection_reason is required to reject a milestone", apperrors.ErrValidation)
	}
	if m.Status != MilestoneSubmitted {
		return m.invalidTransition("reject")
	}
	m.Status = MilestoneRejected
	m.RejectionReason = reason
	return nil
}

// SumMilestoneAmounts totals payment amounts across milestones.
func SumMilestoneAmounts(milestones []*Milestone) Money {
	var sum Money
	for _, m := range milestones {
		sum += m.PaymentAmount
	}
	return sum
}

// SumApprovedAmounts totals payment amounts of approved milestones. Used by
// the reconciliation check: the result must always equal the project's
// stored paid amount.
func SumApprovedAmounts(milestones []*Milestone) Money {
	var sum Money
	for _, m := range milestones {
		if m.Status == MilestoneApproved {
			sum += m.PaymentAmount
		}
	}
	return sum
}
