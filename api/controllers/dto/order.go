package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
)

// ProductionOrder is the API view of an order with its ordered pipeline.
type ProductionOrder struct {
	ID                uuid.UUID        `json:"id"`
	OrderNumber       string           `json:"orderNumber"`
	ProductRef        string           `json:"productRef"`
	TargetQuantity    int              `json:"targetQuantity"`
	Decoration        enums.Decoration `json:"decoration"`
	NeedsManualReview bool             `json:"needsManualReview"`
	Stages            []Stage          `json:"stages"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

func NewProductionOrder(order *models.ProductionOrder) ProductionOrder {
	if order == nil {
		return ProductionOrder{Stages: []Stage{}}
	}
	return ProductionOrder{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		ProductRef:        order.ProductRef,
		TargetQuantity:    order.TargetQuantity,
		Decoration:        order.Decoration,
		NeedsManualReview: order.NeedsManualReview,
		Stages:            NewStages(order.Stages),
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}
