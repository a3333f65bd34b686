package productionorders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/loomline/erp-backend/pkg/db"
	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
	"github.com/loomline/erp-backend/pkg/logger"
	"github.com/loomline/erp-backend/pkg/outbox"
	"github.com/loomline/erp-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service creates production orders together with their stage pipeline.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.ProductionOrder, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.ProductionOrder, error)
}

// CreateOrderInput describes a confirmed order entering production.
// OutsourcedStages marks pipeline stages handed to a vendor from the start.
type CreateOrderInput struct {
	OrderNumber      string
	ProductRef       string
	TargetQuantity   int
	Decoration       enums.Decoration
	OutsourcedStages []OutsourcedStage
}

// OutsourcedStage names a stage and the vendor expected to do it.
type OutsourcedStage struct {
	Stage     enums.StageName
	VendorRef *string
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

func NewService(repo Repository, tx txRunner, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("production orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, outbox: publisher, logg: logg}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.ProductionOrder, error) {
	orderNumber := strings.TrimSpace(input.OrderNumber)
	productRef := strings.TrimSpace(input.ProductRef)
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	if productRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product reference is required")
	}
	if input.TargetQuantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target quantity must be positive")
	}
	decoration := input.Decoration
	if decoration == "" {
		decoration = enums.DecorationNone
	}
	if !decoration.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown decoration %q", decoration)
	}

	names := Pipeline(decoration)
	outsourced, err := outsourcingPlan(names, input.OutsourcedStages)
	if err != nil {
		return nil, err
	}

	order := &models.ProductionOrder{
		ID:             uuid.New(),
		OrderNumber:    orderNumber,
		ProductRef:     productRef,
		TargetQuantity: input.TargetQuantity,
		Decoration:     decoration,
	}
	stages := make([]models.ProductionStage, len(names))
	for i, name := range names {
		stages[i] = models.ProductionStage{
			ID:            uuid.New(),
			OrderID:       order.ID,
			StageName:     name,
			SequenceIndex: i,
			Status:        enums.StageStatusPending,
			MaterialUsed:  decimal.Zero,
		}
		if plan, ok := outsourced[name]; ok {
			stages[i].Outsourced = true
			stages[i].VendorRef = plan.VendorRef
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "order number %s already exists", orderNumber)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert production order")
		}
		if err := repo.CreateStages(ctx, stages); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert production stages")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductionOrderCreated,
			AggregateType: enums.AggregateProductionOrder,
			AggregateID:   order.ID,
			Data: payloads.ProductionOrderCreatedEvent{
				OrderID:        order.ID,
				OrderNumber:    order.OrderNumber,
				ProductRef:     order.ProductRef,
				TargetQuantity: order.TargetQuantity,
				Stages:         names,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order.Stages = stages
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"stages":       len(stages),
	}), "production order created")
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.ProductionOrder, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindOrderWithStages(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "production order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load production order")
	}
	return order, nil
}

func outsourcingPlan(pipeline []enums.StageName, requested []OutsourcedStage) (map[enums.StageName]OutsourcedStage, error) {
	inPipeline := make(map[enums.StageName]bool, len(pipeline))
	for _, name := range pipeline {
		inPipeline[name] = true
	}
	plan := make(map[enums.StageName]OutsourcedStage, len(requested))
	for _, req := range requested {
		if !inPipeline[req.Stage] {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "stage %q is not part of this order's pipeline", req.Stage)
		}
		if req.VendorRef != nil {
			trimmed := strings.TrimSpace(*req.VendorRef)
			req.VendorRef = &trimmed
			if trimmed == "" {
				req.VendorRef = nil
			}
		}
		plan[req.Stage] = req
	}
	return plan, nil
}
