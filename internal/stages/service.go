package stages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
	"github.com/loomline/erp-backend/pkg/logger"
	"github.com/loomline/erp-backend/pkg/metrics"
	"github.com/loomline/erp-backend/pkg/outbox"
	"github.com/loomline/erp-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service applies workflow actions to production stages. Every call locks
// the stage row, re-validates against the fresh state and commits the new
// status together with its outbox events.
type Service interface {
	GetStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error)
	StartStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error)
	HoldStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error)
	ResumeStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error)
	SkipStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error)
	CompleteStage(ctx context.Context, stageID uuid.UUID, input CompleteInput) (*CompletionResult, error)
}

// Transitioner runs a Command under the stage lock. Vendor handoffs use it
// to issue their documents inside the transition.
type Transitioner interface {
	Apply(ctx context.Context, cmd Command) (*models.ProductionStage, error)
}

// Handoff returns the Transitioner behind svc, which must come from
// NewService.
func Handoff(svc Service) (Transitioner, error) {
	impl, ok := svc.(*service)
	if !ok || impl == nil {
		return nil, fmt.Errorf("stages: %T does not support vendor handoffs", svc)
	}
	return impl, nil
}

// sideEffectActions carry work of their own: completion reconciles
// quantities and vendor moves issue a document. A Command for one of them
// without a Mutate step is refused.
var sideEffectActions = map[enums.StageAction]bool{
	enums.StageActionComplete:          true,
	enums.StageActionSendToVendor:      true,
	enums.StageActionReceiveFromVendor: true,
}

// Hook runs inside the stage transaction with the locked record.
type Hook func(ctx context.Context, tx *gorm.DB, stage *models.ProductionStage) error

// Command describes one locked state change. Guard sees the record before
// the transition table is consulted; Mutate runs after the status moved and
// before the row is written; After runs once the row and the transition
// event are stored. Any hook error rolls the whole change back.
type Command struct {
	StageID uuid.UUID
	Action  enums.StageAction
	Guard   func(stage *models.ProductionStage) error
	Mutate  Hook
	After   Hook
}

// CompleteInput carries the quantities reported when a stage finishes.
// EndTime defaults to now.
type CompleteInput struct {
	Processed    int
	Approved     int
	Rejected     int
	MaterialUsed decimal.Decimal
	Notes        *string
	EndTime      *time.Time
}

// CompletionResult is the completed stage plus any reconciliation warnings.
type CompletionResult struct {
	Stage          *models.ProductionStage
	Reconciliation Reconciliation
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics *metrics.WorkflowMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires the stage workflow. metrics may be nil.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, workflowMetrics *metrics.WorkflowMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stages repository required")
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
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  publisher,
		metrics: workflowMetrics,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) GetStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error) {
	if stageID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stage id is required")
	}
	stage, err := s.repo.FindStage(ctx, stageID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return stage, nil
}

func (s *service) StartStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error) {
	return s.Apply(ctx, Command{StageID: stageID, Action: enums.StageActionStart})
}

// HoldStage parks a pending stage or pauses one that is underway.
func (s *service) HoldStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error) {
	return s.Apply(ctx, Command{StageID: stageID, Action: enums.StageActionHold})
}

func (s *service) ResumeStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error) {
	return s.Apply(ctx, Command{StageID: stageID, Action: enums.StageActionResume})
}

func (s *service) SkipStage(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error) {
	return s.Apply(ctx, Command{StageID: stageID, Action: enums.StageActionSkip})
}

func (s *service) CompleteStage(ctx context.Context, stageID uuid.UUID, input CompleteInput) (*CompletionResult, error) {
	var reconciliation Reconciliation
	var completedAt time.Time

	cmd := Command{
		StageID: stageID,
		Action:  enums.StageActionComplete,
		Mutate: func(ctx context.Context, tx *gorm.DB, stage *models.ProductionStage) error {
			result, err := ValidateCompletion(stage.StageName, Quantities{
				Processed:    input.Processed,
				Approved:     input.Approved,
				Rejected:     input.Rejected,
				MaterialUsed: input.MaterialUsed,
			})
			if err != nil {
				return err
			}

			end := s.now()
			if input.EndTime != nil {
				end = input.EndTime.UTC()
			}
			if stage.ActualStartTime != nil && end.Before(*stage.ActualStartTime) {
				return pkgerrors.New(pkgerrors.CodeValidation, "end time precedes stage start time").
					WithDetails(map[string]time.Time{"start": *stage.ActualStartTime, "end": end})
			}

			stage.ActualEndTime = &end
			stage.QuantityProcessed = input.Processed
			stage.QuantityApproved = input.Approved
			stage.QuantityRejected = input.Rejected
			stage.MaterialUsed = input.MaterialUsed
			if input.Notes != nil {
				stage.Notes = input.Notes
			}
			reconciliation = result
			completedAt = end
			return nil
		},
		After: func(ctx context.Context, tx *gorm.DB, stage *models.ProductionStage) error {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventStageCompleted,
				AggregateType: enums.AggregateProductionStage,
				AggregateID:   stage.ID,
				Data: payloads.StageCompletedEvent{
					StageID:           stage.ID,
					OrderID:           stage.OrderID,
					StageName:         stage.StageName,
					QuantityProcessed: stage.QuantityProcessed,
					QuantityApproved:  stage.QuantityApproved,
					QuantityRejected:  stage.QuantityRejected,
					MaterialUsed:      stage.MaterialUsed.String(),
					CompletedAt:       completedAt,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit stage completed event")
			}
			if reconciliation.HasWarning(WarningManualReview) {
				return s.flagManualReview(ctx, tx, stage)
			}
			return nil
		},
	}

	stage, err := s.Apply(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if reconciliation.HasWarning(WarningManualReview) {
		s.logg.Warn(s.logg.WithField(ctx, "order_id", stage.OrderID.String()), "quality check approved no units; order flagged for manual review")
	}
	return &CompletionResult{Stage: stage, Reconciliation: reconciliation}, nil
}

func (s *service) flagManualReview(ctx context.Context, tx *gorm.DB, stage *models.ProductionStage) error {
	repo := s.repo.WithTx(tx)
	flagged, err := repo.FlagManualReview(ctx, stage.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag order for manual review")
	}
	if !flagged {
		return nil
	}
	order, err := repo.FindOrder(ctx, stage.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderManualReviewFlagged,
		AggregateType: enums.AggregateProductionOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderManualReviewFlaggedEvent{
			OrderID:     order.ID,
			StageID:     stage.ID,
			OrderNumber: order.OrderNumber,
			Reason:      WarningManualReview,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit manual review event")
	}
	return nil
}

// Apply runs cmd against the locked stage and commits the result.
func (s *service) Apply(ctx context.Context, cmd Command) (*models.ProductionStage, error) {
	if cmd.StageID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stage id is required")
	}
	if !cmd.Action.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown stage action %q", cmd.Action)
	}
	if sideEffectActions[cmd.Action] && cmd.Mutate == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s cannot run as a bare transition", cmd.Action)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"stage_id": cmd.StageID.String(),
		"action":   cmd.Action.String(),
	})

	var (
		saved  *models.ProductionStage
		action = cmd.Action
		from   enums.StageStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stage, err := repo.LockStage(ctx, cmd.StageID)
		if err != nil {
			return mapLoadError(err)
		}
		from = stage.Status
		if action == enums.StageActionHold {
			action = HoldAction(stage.Status)
		}

		if stage.Status.IsTerminal() {
			_, err := Transition(stage.Status, stage.Outsourced, action)
			return err
		}
		if cmd.Guard != nil {
			if err := cmd.Guard(stage); err != nil {
				return err
			}
		}

		next, err := Transition(stage.Status, stage.Outsourced, action)
		if err != nil {
			return err
		}

		now := s.now()
		stage.Status = next
		if next.IsActive() && stage.ActualStartTime == nil {
			stage.ActualStartTime = &now
		}
		if cmd.Mutate != nil {
			if err := cmd.Mutate(ctx, tx, stage); err != nil {
				return err
			}
		}

		if err := repo.SaveStage(ctx, stage); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "stage was modified concurrently").
					WithDetails(TransitionError{Status: from, Action: action})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save stage")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStageTransitioned,
			AggregateType: enums.AggregateProductionStage,
			AggregateID:   stage.ID,
			Data: payloads.StageTransitionedEvent{
				StageID:   stage.ID,
				OrderID:   stage.OrderID,
				StageName: stage.StageName,
				Action:    action,
				From:      from,
				To:        next,
				At:        now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit stage transition event")
		}

		if cmd.After != nil {
			if err := cmd.After(ctx, tx, stage); err != nil {
				return err
			}
		}
		saved = stage
		return nil
	})
	if err != nil {
		s.metrics.ObserveRefusal(action.String(), string(pkgerrors.CodeOf(err)))
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"from":  from.String(),
			"code":  string(pkgerrors.CodeOf(err)),
			"error": err.Error(),
		}), "stage action refused")
		return nil, err
	}

	s.metrics.ObserveTransition(action.String(), from.String(), saved.Status.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"from": from.String(),
		"to":   saved.Status.String(),
	}), "stage transitioned")
	return saved, nil
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stage not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stage")
}
