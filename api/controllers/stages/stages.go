package stages

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/loomline/erp-backend/api/controllers/dto"
	"github.com/loomline/erp-backend/api/responses"
	"github.com/loomline/erp-backend/api/validators"
	stagesvc "github.com/loomline/erp-backend/internal/stages"
	"github.com/loomline/erp-backend/pkg/db/models"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
	"github.com/loomline/erp-backend/pkg/logger"
)

const maxNotesLength = 2000

// CompleteStageRequest is the body of the completion endpoint. Quantity
// checks live in the service so clients get the workflow error codes.
type CompleteStageRequest struct {
	Processed    int             `json:"processed"`
	Approved     int             `json:"approved"`
	Rejected     int             `json:"rejected"`
	MaterialUsed decimal.Decimal `json:"materialUsed"`
	Notes        *string         `json:"notes,omitempty"`
	EndTime      *time.Time      `json:"endTime,omitempty"`
}

type transitionFunc func(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error)

// Get returns a single stage.
func Get(svc stagesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(s stagesvc.Service) transitionFunc { return s.GetStage })
}

// Start moves a pending stage to in_progress.
func Start(svc stagesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(s stagesvc.Service) transitionFunc { return s.StartStage })
}

// Hold pauses an in-progress stage.
func Hold(svc stagesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(s stagesvc.Service) transitionFunc { return s.HoldStage })
}

// Resume restarts a held stage.
func Resume(svc stagesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(s stagesvc.Service) transitionFunc { return s.ResumeStage })
}

// Skip closes a pending stage without work.
func Skip(svc stagesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(s stagesvc.Service) transitionFunc { return s.SkipStage })
}

// Complete records quantities and closes the stage.
func Complete(svc stagesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stage service unavailable"))
			return
		}

		stageID, err := validators.ParseUUIDParam(r, "stageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload CompleteStageRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CompleteStage(r.Context(), stageID, stagesvc.CompleteInput{
			Processed:    payload.Processed,
			Approved:     payload.Approved,
			Rejected:     payload.Rejected,
			MaterialUsed: payload.MaterialUsed,
			Notes:        validators.SanitizeOptional(payload.Notes, maxNotesLength),
			EndTime:      payload.EndTime,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto.NewStageCompletion(result))
	}
}

func transition(svc stagesvc.Service, logg *logger.Logger, pick func(stagesvc.Service) transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stage service unavailable"))
			return
		}

		stageID, err := validators.ParseUUIDParam(r, "stageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stage, err := pick(svc)(r.Context(), stageID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto.NewStage(stage))
	}
}
