package stages

import (
	"github.com/shopspring/decimal"

	"github.com/loomline/erp-backend/pkg/enums"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
)

// WarningManualReview marks a quality check that approved nothing.
const WarningManualReview = "manual_review"

// Quantities are the counts reported when a stage completes.
type Quantities struct {
	Processed    int
	Approved     int
	Rejected     int
	MaterialUsed decimal.Decimal
}

// Warning is a non-blocking finding attached to a successful reconciliation.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Reconciliation is the outcome of ValidateCompletion.
type Reconciliation struct {
	Warnings []Warning `json:"warnings,omitempty"`
}

// HasWarning reports whether the reconciliation carries the given code.
func (r Reconciliation) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

type quantityDetails struct {
	Processed int `json:"processed"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
}

// Validate enforces non-negative counts and approved + rejected <= processed.
func Validate(processed, approved, rejected int) error {
	details := quantityDetails{Processed: processed, Approved: approved, Rejected: rejected}
	if processed < 0 || approved < 0 || rejected < 0 {
		return pkgerrors.New(pkgerrors.CodeQuantityNegative, "quantities must not be negative").WithDetails(details)
	}
	if approved+rejected > processed {
		return pkgerrors.Newf(pkgerrors.CodeQuantityOverAllocated,
			"approved (%d) + rejected (%d) exceeds processed (%d)", approved, rejected, processed).
			WithDetails(details)
	}
	return nil
}

// ValidateCompletion checks the quantities reported for a stage completion.
// A quality check that approves nothing passes with a manual review warning.
func ValidateCompletion(stage enums.StageName, q Quantities) (Reconciliation, error) {
	if q.MaterialUsed.IsNegative() {
		return Reconciliation{}, pkgerrors.New(pkgerrors.CodeQuantityNegative, "material used must not be negative").
			WithDetails(map[string]string{"material_used": q.MaterialUsed.String()})
	}
	if err := Validate(q.Processed, q.Approved, q.Rejected); err != nil {
		return Reconciliation{}, err
	}

	var result Reconciliation
	if stage == enums.StageQualityCheck && q.Approved == 0 {
		result.Warnings = append(result.Warnings, Warning{
			Code:    WarningManualReview,
			Message: "quality check approved no units; order flagged for manual review",
		})
	}
	return result, nil
}
