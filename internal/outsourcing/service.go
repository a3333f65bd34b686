package outsourcing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/loomline/erp-backend/internal/stages"
	"github.com/loomline/erp-backend/pkg/challan"
	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
	"github.com/loomline/erp-backend/pkg/logger"
	"github.com/loomline/erp-backend/pkg/metrics"
	"github.com/loomline/erp-backend/pkg/outbox"
	"github.com/loomline/erp-backend/pkg/outbox/payloads"
)

const defaultHandoffTimeout = 10 * time.Second

// DocumentIssuer issues the delivery documents that accompany goods leaving
// for and returning from a vendor.
type DocumentIssuer interface {
	IssueOutwardDocument(ctx context.Context, req challan.DocumentRequest) (*challan.Document, error)
	IssueInwardDocument(ctx context.Context, req challan.DocumentRequest) (*challan.Document, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service moves outsourced stages to and from external vendors.
type Service interface {
	DispatchToVendor(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error)
	ReceiveFromVendor(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error)
	Complete(ctx context.Context, stageID uuid.UUID, input stages.CompleteInput) (*stages.CompletionResult, error)
	SetOutsourced(ctx context.Context, input SetOutsourcedInput) (*models.ProductionStage, error)
}

// SetOutsourcedInput toggles the outsourcing flag of a pending stage.
type SetOutsourcedInput struct {
	StageID    uuid.UUID
	Outsourced bool
	VendorRef  *string
}

// ServiceParams configure the outsourcing service.
type ServiceParams struct {
	Stages         stages.Service
	Repo           stages.Repository
	Tx             txRunner
	Outbox         outboxPublisher
	Documents      DocumentIssuer
	Metrics        *metrics.WorkflowMetrics
	Logger         *logger.Logger
	HandoffTimeout time.Duration
}

type service struct {
	stages    stages.Service
	handoff   stages.Transitioner
	repo      stages.Repository
	tx        txRunner
	outbox    outboxPublisher
	documents DocumentIssuer
	metrics   *metrics.WorkflowMetrics
	logg      *logger.Logger
	timeout   time.Duration
	now       func() time.Time
}

// NewService builds the outsourcing handoff service.
func NewService(params ServiceParams) (Service, error) {
	if params.Stages == nil {
		return nil, fmt.Errorf("stages service required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("stages repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Documents == nil {
		return nil, fmt.Errorf("document issuer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	handoff, err := stages.Handoff(params.Stages)
	if err != nil {
		return nil, err
	}
	timeout := params.HandoffTimeout
	if timeout <= 0 {
		timeout = defaultHandoffTimeout
	}
	return &service{
		stages:    params.Stages,
		handoff:   handoff,
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		documents: params.Documents,
		metrics:   params.Metrics,
		logg:      params.Logger,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// DispatchToVendor issues the outward document and moves the stage to
// outsourced_pending in one transaction. A failed or slow issuance leaves the
// stage pending.
func (s *service) DispatchToVendor(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error) {
	var doc *challan.Document
	return s.handoff.Apply(ctx, stages.Command{
		StageID: stageID,
		Action:  enums.StageActionSendToVendor,
		Guard: func(stage *models.ProductionStage) error {
			if stage.Status.IsOutsourcedFlow() {
				return pkgerrors.New(pkgerrors.CodeAlreadyDispatched, "stage already handed to vendor").
					WithDetails(map[string]any{
						"status":             stage.Status,
						"outwardDocumentRef": stage.OutwardDocumentRef,
					})
			}
			return nil
		},
		Mutate: func(ctx context.Context, _ *gorm.DB, stage *models.ProductionStage) error {
			var err error
			doc, err = s.issue(ctx, challan.DirectionOutward, stage, s.documents.IssueOutwardDocument)
			if err != nil {
				return err
			}
			at := s.now()
			stage.OutwardDocumentRef = &doc.Reference
			stage.DispatchedAt = &at
			return nil
		},
		After: func(ctx context.Context, tx *gorm.DB, stage *models.ProductionStage) error {
			return s.emitHandoff(ctx, tx, enums.EventStageDispatched, stage, doc.Reference, *stage.DispatchedAt)
		},
	})
}

// ReceiveFromVendor issues the inward document and moves the stage to
// outsourced_in_progress.
func (s *service) ReceiveFromVendor(ctx context.Context, stageID uuid.UUID) (*models.ProductionStage, error) {
	var doc *challan.Document
	return s.handoff.Apply(ctx, stages.Command{
		StageID: stageID,
		Action:  enums.StageActionReceiveFromVendor,
		Mutate: func(ctx context.Context, _ *gorm.DB, stage *models.ProductionStage) error {
			var err error
			doc, err = s.issue(ctx, challan.DirectionInward, stage, s.documents.IssueInwardDocument)
			if err != nil {
				return err
			}
			at := s.now()
			stage.InwardDocumentRef = &doc.Reference
			stage.ReceivedAt = &at
			return nil
		},
		After: func(ctx context.Context, tx *gorm.DB, stage *models.ProductionStage) error {
			return s.emitHandoff(ctx, tx, enums.EventStageReceived, stage, doc.Reference, *stage.ReceivedAt)
		},
	})
}

// Complete closes an outsourced stage through the regular completion path.
func (s *service) Complete(ctx context.Context, stageID uuid.UUID, input stages.CompleteInput) (*stages.CompletionResult, error) {
	return s.stages.CompleteStage(ctx, stageID, input)
}

func (s *service) SetOutsourced(ctx context.Context, input SetOutsourcedInput) (*models.ProductionStage, error) {
	if input.StageID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stage id is required")
	}
	var vendorRef *string
	if input.VendorRef != nil {
		if trimmed := strings.TrimSpace(*input.VendorRef); trimmed != "" {
			vendorRef = &trimmed
		}
	}

	ctx = s.logg.WithStageID(ctx, input.StageID.String())

	var saved *models.ProductionStage
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stage, err := repo.LockStage(ctx, input.StageID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "stage not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stage")
		}
		if stage.Status != enums.StageStatusPending {
			code := pkgerrors.CodeInvalidTransition
			if stage.Status.IsTerminal() {
				code = pkgerrors.CodeStageTerminal
			}
			return pkgerrors.Newf(code, "outsourcing can only change while the stage is pending, not %s", stage.Status).
				WithDetails(stages.TransitionError{Status: stage.Status, Reason: "outsourcing flag is fixed once work begins"})
		}

		stage.Outsourced = input.Outsourced
		stage.VendorRef = nil
		if input.Outsourced {
			stage.VendorRef = vendorRef
		}
		if err := repo.SaveStage(ctx, stage); err != nil {
			if errors.Is(err, stages.ErrVersionConflict) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "stage was modified concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save stage")
		}
		saved = stage
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "outsourced", saved.Outsourced), "stage outsourcing updated")
	return saved, nil
}

type issueFunc func(ctx context.Context, req challan.DocumentRequest) (*challan.Document, error)

func (s *service) issue(ctx context.Context, direction challan.Direction, stage *models.ProductionStage, fn issueFunc) (*challan.Document, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := challan.DocumentRequest{
		StageID:   stage.ID,
		OrderID:   stage.OrderID,
		StageName: stage.StageName.String(),
	}
	if stage.VendorRef != nil {
		req.VendorRef = *stage.VendorRef
	}

	start := time.Now()
	doc, err := fn(callCtx, req)
	if err == nil && (doc == nil || strings.TrimSpace(doc.Reference) == "") {
		err = errors.New("document service returned no reference")
	}
	s.metrics.ObserveHandoff(string(direction), time.Since(start), err)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "direction", string(direction)), "document issuance failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalHandoff, err, string(direction)+" document issuance failed").
			WithDetails(map[string]string{"direction": string(direction)})
	}
	return doc, nil
}

func (s *service) emitHandoff(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, stage *models.ProductionStage, ref string, at time.Time) error {
	data := payloads.StageHandoffEvent{
		StageID:     stage.ID,
		OrderID:     stage.OrderID,
		StageName:   stage.StageName,
		DocumentRef: ref,
		At:          at,
	}
	if stage.VendorRef != nil {
		data.VendorRef = *stage.VendorRef
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateProductionStage,
		AggregateID:   stage.ID,
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit handoff event")
	}
	return nil
}
