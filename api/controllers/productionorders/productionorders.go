package productionorders

import (
	"net/http"

	"github.com/loomline/erp-backend/api/controllers/dto"
	"github.com/loomline/erp-backend/api/responses"
	"github.com/loomline/erp-backend/api/validators"
	ordersvc "github.com/loomline/erp-backend/internal/productionorders"
	"github.com/loomline/erp-backend/internal/progress"
	"github.com/loomline/erp-backend/pkg/enums"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
	"github.com/loomline/erp-backend/pkg/logger"
)

const (
	maxOrderNumberLength = 64
	maxProductRefLength  = 120
	maxVendorRefLength   = 120
)

// CreateOrderRequest is the payload for entering an order into production.
type CreateOrderRequest struct {
	OrderNumber      string                   `json:"orderNumber" validate:"required"`
	ProductRef       string                   `json:"productRef" validate:"required"`
	TargetQuantity   int                      `json:"targetQuantity" validate:"gt=0"`
	Decoration       enums.Decoration         `json:"decoration,omitempty" validate:"omitempty,enum"`
	OutsourcedStages []OutsourcedStageRequest `json:"outsourcedStages,omitempty" validate:"dive"`
}

type OutsourcedStageRequest struct {
	Stage     enums.StageName `json:"stage" validate:"required,enum"`
	VendorRef *string         `json:"vendorRef,omitempty"`
}

// Create builds the order and its stage pipeline.
func Create(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "production order service unavailable"))
			return
		}

		var payload CreateOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateOrder(r.Context(), toCreateOrderInput(payload))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewProductionOrder(order))
	}
}

// Get returns an order with its stages in pipeline order.
func Get(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "production order service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto.NewProductionOrder(order))
	}
}

// Progress reports completion percent and the current stage of an order.
func Progress(svc progress.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "progress service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.GetOrderProgress(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, summary)
	}
}

func toCreateOrderInput(payload CreateOrderRequest) ordersvc.CreateOrderInput {
	input := ordersvc.CreateOrderInput{
		OrderNumber:    validators.SanitizeString(payload.OrderNumber, maxOrderNumberLength),
		ProductRef:     validators.SanitizeString(payload.ProductRef, maxProductRefLength),
		TargetQuantity: payload.TargetQuantity,
		Decoration:     payload.Decoration,
	}
	for _, stage := range payload.OutsourcedStages {
		input.OutsourcedStages = append(input.OutsourcedStages, ordersvc.OutsourcedStage{
			Stage:     stage.Stage,
			VendorRef: validators.SanitizeOptional(stage.VendorRef, maxVendorRefLength),
		})
	}
	return input
}
