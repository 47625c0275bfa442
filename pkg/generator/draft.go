// Package generator drafts contract terms, scopes of work, and milestone
// schedules from a plain-language job description using an OpenAI-compatible
// endpoint. Drafts are suggestions only: nothing the generator produces is
// persisted until a user creates a project from it.
package generator

import (
	"fmt"
	"strings"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
)

// DraftRequest describes the job the caller wants drafted.
type DraftRequest struct {
	JobTitle       string       `json:"job_title"`
	JobDescription string       `json:"job_description"`
	TotalAmount    models.Money `json:"total_amount"`
	DurationWeeks  int          `json:"duration_weeks,omitempty"`
}

// Validate checks the request before any model call is made.
func (r *DraftRequest) Validate() error {
	if strings.TrimSpace(r.JobTitle) == "" {
		return fmt.Errorf("job_title is required")
	}
	if strings.TrimSpace(r.JobDescription) == "" {
		return fmt.Errorf("job_description is required")
	}
	if r.TotalAmount <= 0 {
		return fmt.Errorf("total_amount must be positive")
	}
	return nil
}

// MilestoneDraft is one proposed milestone with its payment share. The
// model produces the percentage; PaymentAmount is derived locally from the
// requested budget, never trusted from model output.
type MilestoneDraft struct {
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	OrderNumber        int          `json:"order_number"`
	PaymentPercentage  float64      `json:"payment_percentage"`
	PaymentAmount      models.Money `json:"payment_amount,omitempty"`
	Deliverables       []string     `json:"deliverables"`
	AcceptanceCriteria []string     `json:"acceptance_criteria"`
	DurationDays       int          `json:"duration_days"`
}

// Draft is the full generated proposal.
type Draft struct {
	ContractTerms models.ContractTerms `json:"contract_terms"`
	Scope         ScopeDraft           `json:"scope"`
	Milestones    []MilestoneDraft     `json:"milestones"`
}

// ScopeDraft mirrors the scope-of-work document structure.
type ScopeDraft struct {
	WorkBreakdown models.WorkBreakdown `json:"work_breakdown"`
	Materials     models.Materials     `json:"materials"`
	Requirements  models.Requirements  `json:"requirements"`
	Exclusions    []string             `json:"exclusions"`
}

// Validate checks that a parsed draft is structurally usable. Model output
// is untrusted, so every field the workflow depends on is verified here.
func (d *Draft) Validate() error {
	if len(d.Milestones) == 0 {
		return fmt.Errorf("draft has no milestones")
	}
	if len(d.Scope.WorkBreakdown.Phases) == 0 {
		return fmt.Errorf("draft has no work phases")
	}

	var pctSum float64
	for i, m := range d.Milestones {
		if strings.TrimSpace(m.Title) == "" {
			return fmt.Errorf("milestone %d has no title", i+1)
		}
		if m.OrderNumber != i+1 {
			return fmt.Errorf("milestone %d has order_number %d", i+1, m.OrderNumber)
		}
		if m.PaymentPercentage <= 0 {
			return fmt.Errorf("milestone %d has non-positive payment percentage", i+1)
		}
		pctSum += m.PaymentPercentage
	}
	if pctSum < 99.5 || pctSum > 100.5 {
		return fmt.Errorf("milestone percentages sum to %.2f, want 100", pctSum)
	}
	return nil
}

// Materialize converts percentage shares into exact cent amounts that sum to
// total. The final milestone absorbs any rounding remainder.
func (d *Draft) Materialize(total models.Money) []models.Money {
	amounts := make([]models.Money, len(d.Milestones))
	var allocated models.Money
	for i, m := range d.Milestones {
		if i == len(d.Milestones)-1 {
			amounts[i] = total - allocated
			break
		}
		amt := models.Money(float64(total) * m.PaymentPercentage / 100)
		amounts[i] = amt
		allocated += amt
	}
	return amounts
}

// PriceMilestones fixes each milestone's PaymentAmount from its percentage
// share so the draft can be handed straight to project creation, where
// amounts must sum exactly to the total.
func (d *Draft) PriceMilestones(total models.Money) {
	for i, amt := range d.Materialize(total) {
		d.Milestones[i].PaymentAmount = amt
	}
}
