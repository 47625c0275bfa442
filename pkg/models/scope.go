package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
)

// Party identifies which side of the contract is acting.
type Party string

const (
	PartyOwner      Party = "owner"
	PartyContractor Party = "contractor"
)

// WorkPhase is one ordered phase of the work breakdown.
type WorkPhase struct {
	Name         string   `json:"name"`
	Tasks        []string `json:"tasks"`
	Timeline     string   `json:"timeline"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// WorkBreakdown is the ordered list of phases backing the scope.
type WorkBreakdown struct {
	Phases []WorkPhase `json:"phases"`
}

// MaterialItem is one line of the materials list.
type MaterialItem struct {
	Name           string `json:"name"`
	Specifications string `json:"specifications"`
	Quantity       string `json:"quantity"`
	Supplier       string `json:"supplier,omitempty"`
}

// Materials groups the material line items.
type Materials struct {
	Items []MaterialItem `json:"items"`
}

// Requirements lists the regulatory and quality constraints on the work.
type Requirements struct {
	Codes            []string `json:"codes,omitempty"`
	Permits          []string `json:"permits,omitempty"`
	Inspections      []string `json:"inspections,omitempty"`
	QualityStandards []string `json:"quality_standards,omitempty"`
}

// ScopeOfWork is the agreed structured description of the work backing a
// contract. Both parties must approve it before the project leaves setup,
// and it becomes immutable once doubly approved.
type ScopeOfWork struct {
	ID                   uuid.UUID     `json:"id"`
	ProjectID            uuid.UUID     `json:"project_id"`
	WorkBreakdown        WorkBreakdown `json:"work_breakdown"`
	Materials            Materials     `json:"materials"`
	Requirements         Requirements  `json:"requirements"`
	Exclusions           []string      `json:"exclusions,omitempty"`
	ApprovedByOwner      bool          `json:"approved_by_owner"`
	ApprovedByContractor bool          `json:"approved_by_contractor"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFullyApproved reports whether both parties have approved the scope.
func (s *ScopeOfWork) IsFullyApproved() bool {
	return s.ApprovedByOwner && s.ApprovedByContractor
}

// Approve records a party's approval. Approving an already fully approved
// scope fails with ErrImmutableRecord; a repeated approval by the same
// party is an invalid transition.
func (s *ScopeOfWork) Approve(party Party) error {
	if s.IsFullyApproved() {
		return fmt.Errorf("%w: scope %s is fully approved", apperrors.ErrImmutableRecord, s.ID)
	}
	switch party {
	case PartyOwner:
		if s.ApprovedByOwner {
			return fmt.Errorf("%w: owner has already approved scope %s", apperrors.ErrInvalidTransition, s.ID)
		}
		s.ApprovedByOwner = true
	case PartyContractor:
		if s.ApprovedByContractor {
			return fmt.Errorf("%w: contractor has already approved scope %s", apperrors.ErrInvalidTransition, s.ID)
		}
		s.ApprovedByContractor = true
	default:
		return fmt.Errorf("%w: unknown approving party %q", apperrors.ErrValidation, party)
	}
	return nil
}

// ValidateNew checks the creation-time structure of a scope draft. The
// content comes from an untrusted generator, so only the shape is checked.
func (s *ScopeOfWork) ValidateNew() error {
	if len(s.WorkBreakdown.Phases) == 0 {
		return fmt.Errorf("%w: scope must have at least one work phase", apperrors.ErrValidation)
	}
	for i, phase := range s.WorkBreakdown.Phases {
		if phase.Name == "" {
			return fmt.Errorf("%w: work phase %d missing name", apperrors.ErrValidation, i)
		}
		if len(phase.Tasks) == 0 {
			return fmt.Errorf("%w: work phase %q has no tasks", apperrors.ErrValidation, phase.Name)
		}
	}
	return nil
}
