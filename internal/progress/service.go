package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
)

// Reader loads an order and its stages. internal/stages.Repository satisfies it.
type Reader interface {
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.ProductionOrder, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ProductionStage, error)
}

// OrderProgress summarizes how far an order has moved through its pipeline.
type OrderProgress struct {
	OrderID           uuid.UUID        `json:"orderId"`
	Percent           int              `json:"percent"`
	CurrentStageID    *uuid.UUID       `json:"currentStageId,omitempty"`
	CurrentStageName  *enums.StageName `json:"currentStageName"`
	Completed         int              `json:"completed"`
	Skipped           int              `json:"skipped"`
	Total             int              `json:"total"`
	NeedsManualReview bool             `json:"needsManualReview"`
}

// Service answers read-only progress queries.
type Service interface {
	GetOrderProgress(ctx context.Context, orderID uuid.UUID) (*OrderProgress, error)
}

type service struct {
	reader Reader
}

func NewService(reader Reader) (Service, error) {
	if reader == nil {
		return nil, fmt.Errorf("progress reader required")
	}
	return &service{reader: reader}, nil
}

func (s *service) GetOrderProgress(ctx context.Context, orderID uuid.UUID) (*OrderProgress, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.reader.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "production order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load production order")
	}
	stages, err := s.reader.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list production stages")
	}
	return Summarize(order, stages), nil
}

// Summarize builds the progress view from already loaded records.
func Summarize(order *models.ProductionOrder, stages []models.ProductionStage) *OrderProgress {
	out := &OrderProgress{
		OrderID:           order.ID,
		Percent:           OverallProgress(stages),
		Total:             len(stages),
		NeedsManualReview: order.NeedsManualReview,
	}
	for _, stage := range stages {
		switch stage.Status {
		case enums.StageStatusCompleted:
			out.Completed++
		case enums.StageStatusSkipped:
			out.Skipped++
		}
	}
	if current := CurrentStage(stages); current != nil {
		id := current.ID
		name := current.StageName
		out.CurrentStageID = &id
		out.CurrentStageName = &name
	}
	return out
}
