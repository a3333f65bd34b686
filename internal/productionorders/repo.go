package productionorders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/loomline/erp-backend/internal/repo"
	"github.com/loomline/erp-backend/pkg/db/models"
)

// Repository defines persistence operations for production orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.ProductionOrder) error
	CreateStages(ctx context.Context, stages []models.ProductionStage) error
	FindOrderWithStages(ctx context.Context, orderID uuid.UUID) (*models.ProductionOrder, error)
}

type repository struct {
	base repo.Base
}

// NewRepository builds a production orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.ProductionOrder) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return r.base.DB(ctx).Omit("Stages").Create(order).Error
}

func (r *repository) CreateStages(ctx context.Context, stages []models.ProductionStage) error {
	if len(stages) == 0 {
		return nil
	}
	for i := range stages {
		if stages[i].ID == uuid.Nil {
			stages[i].ID = uuid.New()
		}
	}
	return r.base.DB(ctx).Create(&stages).Error
}

func (r *repository) FindOrderWithStages(ctx context.Context, orderID uuid.UUID) (*models.ProductionOrder, error) {
	var order models.ProductionOrder
	err := r.base.DB(ctx).
		Preload("Stages", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_index ASC")
		}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}
