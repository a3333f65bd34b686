package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/loomline/erp-backend/internal/rejections"
	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
	"github.com/loomline/erp-backend/pkg/logger"
	"github.com/loomline/erp-backend/pkg/metrics"
	"github.com/loomline/erp-backend/pkg/outbox"
	"github.com/loomline/erp-backend/pkg/outbox/payloads"
)

const (
	rejectionAuditJobName     = "rejection-accounting-audit"
	defaultRejectionGrace     = 24 * time.Hour
	defaultRejectionAuditPage = 200
)

type rejectionLedger interface {
	ListCompletedWithRejections(ctx context.Context, completedBefore time.Time, afterID uuid.UUID, limit int) ([]models.ProductionStage, error)
	LoggedByStage(ctx context.Context, stageIDs []uuid.UUID) (map[uuid.UUID]int, error)
	WithTx(tx *gorm.DB) rejections.Repository
}

type RejectionAuditJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Ledger      rejectionLedger
	Outbox      eventEmitter
	Metrics     *metrics.CronJobMetrics
	GracePeriod time.Duration
	PageSize    int
}

// NewRejectionAuditJob reports completed stages whose rejection ledger still
// trails the declared rejected quantity once the grace period has passed.
// Each stage is reported at most once: the report stamps
// rejections_reported_at in the same transaction as the event, so pruning the
// outbox does not make a stage eligible again.
func NewRejectionAuditJob(params RejectionAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("rejection ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	grace := params.GracePeriod
	if grace <= 0 {
		grace = defaultRejectionGrace
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultRejectionAuditPage
	}
	return &rejectionAuditJob{
		logg:     params.Logger,
		db:       params.DB,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		grace:    grace,
		pageSize: pageSize,
		now:      time.Now,
	}, nil
}

type rejectionAuditJob struct {
	logg     *logger.Logger
	db       txRunner
	ledger   rejectionLedger
	outbox   eventEmitter
	metrics  *metrics.CronJobMetrics
	grace    time.Duration
	pageSize int
	now      func() time.Time
}

func (j *rejectionAuditJob) Name() string { return rejectionAuditJobName }

func (j *rejectionAuditJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)

	var (
		errs     []error
		scanned  int
		reported int
		after    uuid.UUID
	)
	for {
		page, err := j.ledger.ListCompletedWithRejections(ctx, cutoff, after, j.pageSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("list completed stages: %w", err))
			break
		}
		if len(page) == 0 {
			break
		}
		ids := make([]uuid.UUID, len(page))
		for i, stage := range page {
			ids[i] = stage.ID
		}
		logged, err := j.ledger.LoggedByStage(ctx, ids)
		if err != nil {
			errs = append(errs, fmt.Errorf("sum rejection lines: %w", err))
			break
		}

		for _, stage := range page {
			scanned++
			acct := rejections.NewAccounting(stage.ID, stage.QuantityRejected, logged[stage.ID])
			if acct.Reconciled || acct.Unaccounted == 0 {
				continue
			}
			emitted, err := j.report(ctx, stage, acct)
			if err != nil {
				errs = append(errs, fmt.Errorf("stage %s: %w", stage.ID, err))
				continue
			}
			if emitted {
				reported++
			}
		}

		after = page[len(page)-1].ID
		if len(page) < j.pageSize {
			break
		}
	}

	j.metrics.AddFindings(rejectionAuditJobName, reported)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"scanned":  scanned,
		"reported": reported,
	}), "rejection accounting audit complete")
	return multierr.Combine(errs...)
}

func (j *rejectionAuditJob) report(ctx context.Context, stage models.ProductionStage, acct rejections.Accounting) (bool, error) {
	completedAt := stage.UpdatedAt
	if stage.ActualEndTime != nil {
		completedAt = *stage.ActualEndTime
	}
	var emitted bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		marked, err := j.ledger.WithTx(tx).MarkRejectionsReported(ctx, stage.ID, j.now())
		if err != nil || !marked {
			return err
		}
		emitted, err = j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStageRejectionsUnaccounted,
			AggregateType: enums.AggregateProductionStage,
			AggregateID:   stage.ID,
			Data: payloads.StageRejectionsUnaccountedEvent{
				StageID:     stage.ID,
				OrderID:     stage.OrderID,
				StageName:   stage.StageName,
				Declared:    acct.Declared,
				Logged:      acct.Logged,
				Unaccounted: acct.Unaccounted,
				CompletedAt: completedAt,
			},
		})
		return err
	})
	return emitted, err
}
