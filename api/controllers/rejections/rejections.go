package rejections

import (
	"net/http"

	"github.com/loomline/erp-backend/api/controllers/dto"
	"github.com/loomline/erp-backend/api/responses"
	"github.com/loomline/erp-backend/api/validators"
	rejectionsvc "github.com/loomline/erp-backend/internal/rejections"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
	"github.com/loomline/erp-backend/pkg/logger"
)

const (
	maxReasonLength = 200
	maxNotesLength  = 2000

	defaultListLimit = 100
	maxListLimit     = 1000
)

var lineLimit = validators.PageLimit{Default: defaultListLimit, Max: maxListLimit}

// AddLineRequest attributes part of a stage's rejected quantity to a cause.
// Reason and quantity rules are enforced by the service.
type AddLineRequest struct {
	Reason   string  `json:"reason"`
	Quantity int     `json:"quantity"`
	Notes    *string `json:"notes,omitempty"`
}

// LineList is the paged ledger view.
type LineList struct {
	Lines     []dto.RejectionLine `json:"lines"`
	Truncated bool                `json:"truncated"`
}

// AddLine appends one line to the stage's rejection ledger.
func AddLine(svc rejectionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rejection service unavailable"))
			return
		}

		stageID, err := validators.ParseUUIDParam(r, "stageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload AddLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		line, err := svc.AddLine(r.Context(), rejectionsvc.AddLineInput{
			StageID:  stageID,
			Reason:   validators.SanitizeString(payload.Reason, maxReasonLength),
			Quantity: payload.Quantity,
			Notes:    validators.SanitizeOptional(payload.Notes, maxNotesLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewRejectionLine(line))
	}
}

// ListLines returns the ledger in line order, capped by ?limit.
func ListLines(svc rejectionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rejection service unavailable"))
			return
		}

		stageID, err := validators.ParseUUIDParam(r, "stageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := lineLimit.Parse(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := LineList{Lines: []dto.RejectionLine{}}
		for line, err := range svc.Lines(r.Context(), stageID) {
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if len(out.Lines) == limit {
				out.Truncated = true
				break
			}
			out.Lines = append(out.Lines, dto.NewRejectionLine(&line))
		}

		responses.WriteSuccess(w, out)
	}
}

// Accounting compares the declared rejected quantity with the ledger.
func Accounting(svc rejectionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rejection service unavailable"))
			return
		}

		stageID, err := validators.ParseUUIDParam(r, "stageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		accounting, err := svc.Accounting(r.Context(), stageID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, accounting)
	}
}
