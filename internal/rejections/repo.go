package rejections

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/loomline/erp-backend/internal/repo"
	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
)

// Repository defines persistence operations for the rejection ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error)
	LockStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error)
	Totals(ctx context.Context, stageID uuid.UUID) (count int, logged int, err error)
	CreateLine(ctx context.Context, line *models.RejectionLine) error
	ListPage(ctx context.Context, stageID uuid.UUID, afterLine, limit int) ([]models.RejectionLine, error)
	ListCompletedWithRejections(ctx context.Context, completedBefore time.Time, afterID uuid.UUID, limit int) ([]models.ProductionStage, error)
	LoggedByStage(ctx context.Context, stageIDs []uuid.UUID) (map[uuid.UUID]int, error)
	MarkRejectionsReported(ctx context.Context, stageID uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	base repo.Base
}

// NewRepository builds a rejection ledger repository bound to the provided DB.
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

func (r *repository) LockStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error) {
	return repo.LockByID[models.ProductionStage](ctx, r.base, stageID)
}

func (r *repository) Totals(ctx context.Context, stageID uuid.UUID) (int, int, error) {
	var row struct {
		Count  int
		Logged int
	}
	err := r.base.DB(ctx).
		Model(&models.RejectionLine{}).
		Select("COUNT(*) AS count, COALESCE(SUM(quantity), 0) AS logged").
		Where("stage_id = ?", stageID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Count, row.Logged, nil
}

func (r *repository) CreateLine(ctx context.Context, line *models.RejectionLine) error {
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	return r.base.DB(ctx).Create(line).Error
}

// ListPage returns up to limit lines with line_number > afterLine.
func (r *repository) ListPage(ctx context.Context, stageID uuid.UUID, afterLine, limit int) ([]models.RejectionLine, error) {
	var lines []models.RejectionLine
	err := r.base.DB(ctx).
		Where("stage_id = ? AND line_number > ?", stageID, afterLine).
		Order("line_number ASC").
		Limit(limit).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// ListCompletedWithRejections pages completed stages that declared rejected
// units, finished before the cutoff and were never reported, ordered by id.
func (r *repository) ListCompletedWithRejections(ctx context.Context, completedBefore time.Time, afterID uuid.UUID, limit int) ([]models.ProductionStage, error) {
	query := r.base.DB(ctx).
		Where("status = ?", enums.StageStatusCompleted).
		Where("quantity_rejected > 0").
		Where("actual_end_time < ?", completedBefore.UTC()).
		Where("rejections_reported_at IS NULL")
	if afterID != uuid.Nil {
		query = query.Where("id > ?", afterID)
	}
	var stages []models.ProductionStage
	if err := query.Order("id ASC").Limit(limit).Find(&stages).Error; err != nil {
		return nil, err
	}
	return stages, nil
}

func (r *repository) LoggedByStage(ctx context.Context, stageIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(stageIDs))
	if len(stageIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		StageID uuid.UUID
		Logged  int
	}
	err := r.base.DB(ctx).
		Model(&models.RejectionLine{}).
		Select("stage_id, COALESCE(SUM(quantity), 0) AS logged").
		Where("stage_id IN ?", stageIDs).
		Group("stage_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.StageID] = row.Logged
	}
	return out, nil
}

// MarkRejectionsReported stamps the stage as reported. It returns false when
// another run already stamped it.
func (r *repository) MarkRejectionsReported(ctx context.Context, stageID uuid.UUID, at time.Time) (bool, error) {
	res := r.base.DB(ctx).
		Model(&models.ProductionStage{}).
		Where("id = ? AND rejections_reported_at IS NULL", stageID).
		UpdateColumn("rejections_reported_at", at.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
