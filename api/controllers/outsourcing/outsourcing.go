package outsourcing

import (
	"net/http"

	"github.com/loomline/erp-backend/api/controllers/dto"
	"github.com/loomline/erp-backend/api/responses"
	"github.com/loomline/erp-backend/api/validators"
	outsourcingsvc "github.com/loomline/erp-backend/internal/outsourcing"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
	"github.com/loomline/erp-backend/pkg/logger"
)

const maxVendorRefLength = 120

// SetOutsourcedRequest toggles vendor handling for a pending stage.
type SetOutsourcedRequest struct {
	Outsourced *bool   `json:"outsourced" validate:"required"`
	VendorRef  *string `json:"vendorRef,omitempty"`
}

// Dispatch hands goods to the vendor and records the outward document.
func Dispatch(svc outsourcingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "outsourcing service unavailable"))
			return
		}

		stageID, err := validators.ParseUUIDParam(r, "stageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stage, err := svc.DispatchToVendor(r.Context(), stageID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto.NewStage(stage))
	}
}

// Receive records goods back from the vendor with the inward document.
func Receive(svc outsourcingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "outsourcing service unavailable"))
			return
		}

		stageID, err := validators.ParseUUIDParam(r, "stageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stage, err := svc.ReceiveFromVendor(r.Context(), stageID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto.NewStage(stage))
	}
}

// SetOutsourced updates the outsourcing flag and vendor of a pending stage.
func SetOutsourced(svc outsourcingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "outsourcing service unavailable"))
			return
		}

		stageID, err := validators.ParseUUIDParam(r, "stageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload SetOutsourcedRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stage, err := svc.SetOutsourced(r.Context(), outsourcingsvc.SetOutsourcedInput{
			StageID:    stageID,
			Outsourced: *payload.Outsourced,
			VendorRef:  validators.SanitizeOptional(payload.VendorRef, maxVendorRefLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto.NewStage(stage))
	}
}
