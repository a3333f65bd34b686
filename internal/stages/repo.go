package stages

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/loomline/erp-backend/internal/repo"
	"github.com/loomline/erp-backend/pkg/db/models"
)

// ErrVersionConflict is returned by SaveStage when the row changed since it
// was read.
var ErrVersionConflict = errors.New("stage version conflict")

// Repository defines persistence operations for production stages.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error)
	LockStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error)
	SaveStage(ctx context.Context, stage *models.ProductionStage) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ProductionStage, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.ProductionOrder, error)
	FlagManualReview(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type repository struct {
	base repo.Base
}

// NewRepository builds a stages repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) FindStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error) {
	return repo.FindByID[models.ProductionStage](ctx, r.base, stageID)
}

// LockStage reads the stage with SELECT ... FOR UPDATE. It must run inside a
// transaction for the lock to hold.
func (r *repository) LockStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error) {
	return repo.LockByID[models.ProductionStage](ctx, r.base, stageID)
}

// SaveStage writes the mutable columns when the stored version still matches
// stage.Version, then bumps the version on the passed record.
func (r *repository) SaveStage(ctx context.Context, stage *models.ProductionStage) error {
	now := time.Now().UTC()
	res := r.base.DB(ctx).
		Model(&models.ProductionStage{}).
		Where("id = ? AND version = ?", stage.ID, stage.Version).
		Updates(map[string]any{
			"status":               stage.Status,
			"actual_start_time":    stage.ActualStartTime,
			"actual_end_time":      stage.ActualEndTime,
			"quantity_processed":   stage.QuantityProcessed,
			"quantity_approved":    stage.QuantityApproved,
			"quantity_rejected":    stage.QuantityRejected,
			"material_used":        stage.MaterialUsed,
			"outsourced":           stage.Outsourced,
			"vendor_ref":           stage.VendorRef,
			"outward_document_ref": stage.OutwardDocumentRef,
			"inward_document_ref":  stage.InwardDocumentRef,
			"dispatched_at":        stage.DispatchedAt,
			"received_at":          stage.ReceivedAt,
			"notes":                stage.Notes,
			"version":              stage.Version + 1,
			"updated_at":           now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	stage.Version++
	stage.UpdatedAt = now
	return nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ProductionStage, error) {
	var stages []models.ProductionStage
	err := r.base.DB(ctx).
		Where("order_id = ?", orderID).
		Order("sequence_index ASC").
		Find(&stages).Error
	if err != nil {
		return nil, err
	}
	return stages, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.ProductionOrder, error) {
	return repo.FindByID[models.ProductionOrder](ctx, r.base, orderID)
}

// FlagManualReview sets needs_manual_review and reports whether the flag was
// newly raised.
func (r *repository) FlagManualReview(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.base.DB(ctx).
		Model(&models.ProductionOrder{}).
		Where("id = ? AND needs_manual_review = ?", orderID, false).
		Updates(map[string]any{
			"needs_manual_review": true,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
