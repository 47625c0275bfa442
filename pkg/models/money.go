package models

import (
	"fmt"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
)

// Money is a fixed-point amount in cents. All ledger arithmetic happens in
// integer cents; floating point never touches money.
type Money int64

// Validate rejects negative amounts.
func (m Money) Validate() error {
	if m < 0 {
		return fmt.Errorf("%w: amount must be non-negative, got %d", apperrors.ErrValidation, m)
	}
	return nil
}

// String formats the amount as dollars for logs and error messages.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}
