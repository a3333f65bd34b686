package rejections

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
	"github.com/loomline/erp-backend/pkg/logger"
	"github.com/loomline/erp-backend/pkg/metrics"
	"github.com/loomline/erp-backend/pkg/outbox"
	"github.com/loomline/erp-backend/pkg/outbox/payloads"
)

const defaultPageSize = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service records the cause breakdown of a stage's rejected units.
type Service interface {
	AddLine(ctx context.Context, input AddLineInput) (*models.RejectionLine, error)
	Lines(ctx context.Context, stageID uuid.UUID) iter.Seq2[models.RejectionLine, error]
	Accounting(ctx context.Context, stageID uuid.UUID) (*Accounting, error)
}

// AddLineInput describes one ledger append.
type AddLineInput struct {
	StageID  uuid.UUID
	Reason   string
	Quantity int
	Notes    *string
}

// Accounting compares the declared rejected quantity with the ledger total.
type Accounting struct {
	StageID     uuid.UUID `json:"stageId"`
	Declared    int       `json:"declared"`
	Logged      int       `json:"logged"`
	Unaccounted int       `json:"unaccounted"`
	Reconciled  bool      `json:"reconciled"`
}

// NewAccounting derives the unaccounted count for a stage.
func NewAccounting(stageID uuid.UUID, declared, logged int) Accounting {
	unaccounted := declared - logged
	if unaccounted < 0 {
		unaccounted = 0
	}
	return Accounting{
		StageID:     stageID,
		Declared:    declared,
		Logged:      logged,
		Unaccounted: unaccounted,
		Reconciled:  logged == declared,
	}
}

type overflowDetails struct {
	Declared  int `json:"declared"`
	Logged    int `json:"logged"`
	Requested int `json:"requested"`
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	metrics  *metrics.WorkflowMetrics
	logg     *logger.Logger
	pageSize int
}

// NewService wires the rejection ledger. pageSize <= 0 uses the default.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, workflowMetrics *metrics.WorkflowMetrics, logg *logger.Logger, pageSize int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("rejections repository required")
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
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   publisher,
		metrics:  workflowMetrics,
		logg:     logg,
		pageSize: pageSize,
	}, nil
}

// AddLine appends a line under the stage row lock so concurrent appends to
// the same stage cannot jointly exceed the declared rejected quantity.
func (s *service) AddLine(ctx context.Context, input AddLineInput) (*models.RejectionLine, error) {
	if input.StageID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stage id is required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyReason, "rejection reason must not be blank")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection quantity must be positive").
			WithDetails(map[string]int{"quantity": input.Quantity})
	}
	notes := input.Notes
	if notes != nil {
		trimmed := strings.TrimSpace(*notes)
		notes = &trimmed
		if trimmed == "" {
			notes = nil
		}
	}

	ctx = s.logg.WithStageID(ctx, input.StageID.String())

	var (
		line  *models.RejectionLine
		stage *models.ProductionStage
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		stage, err = repo.LockStage(ctx, input.StageID)
		if err != nil {
			return mapStageError(err)
		}

		count, logged, err := repo.Totals(ctx, stage.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum rejection lines")
		}
		if logged+input.Quantity > stage.QuantityRejected {
			return pkgerrors.Newf(pkgerrors.CodeRejectionOverflow,
				"line of %d would bring logged rejections to %d, above the declared %d",
				input.Quantity, logged+input.Quantity, stage.QuantityRejected).
				WithDetails(overflowDetails{Declared: stage.QuantityRejected, Logged: logged, Requested: input.Quantity})
		}

		line = &models.RejectionLine{
			ID:         uuid.New(),
			StageID:    stage.ID,
			LineNumber: count + 1,
			Reason:     reason,
			Quantity:   input.Quantity,
			Notes:      notes,
			CreatedAt:  time.Now().UTC(),
		}
		if err := repo.CreateLine(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert rejection line")
		}

		total := logged + input.Quantity
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRejectionLineAdded,
			AggregateType: enums.AggregateProductionStage,
			AggregateID:   stage.ID,
			Data: payloads.RejectionLineAddedEvent{
				StageID:    stage.ID,
				OrderID:    stage.OrderID,
				LineNumber: line.LineNumber,
				Reason:     line.Reason,
				Quantity:   line.Quantity,
				Logged:     total,
				Declared:   stage.QuantityRejected,
				Reconciled: total == stage.QuantityRejected,
				RecordedAt: line.CreatedAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit rejection line event")
		}
		return nil
	})
	if err != nil {
		s.metrics.ObserveRefusal("add_rejection_line", string(pkgerrors.CodeOf(err)))
		return nil, err
	}

	s.metrics.AddRejectedUnits(stage.StageName.String(), line.Quantity)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"line_number": line.LineNumber,
		"quantity":    line.Quantity,
	}), "rejection line recorded")
	return line, nil
}

// Lines yields the stage's ledger in line order, fetching one page at a
// time. Each range over the sequence starts again from the first line.
func (s *service) Lines(ctx context.Context, stageID uuid.UUID) iter.Seq2[models.RejectionLine, error] {
	return func(yield func(models.RejectionLine, error) bool) {
		after := 0
		for {
			page, err := s.repo.ListPage(ctx, stageID, after, s.pageSize)
			if err != nil {
				yield(models.RejectionLine{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list rejection lines"))
				return
			}
			for _, line := range page {
				if !yield(line, nil) {
					return
				}
				after = line.LineNumber
			}
			if len(page) < s.pageSize {
				return
			}
		}
	}
}

func (s *service) Accounting(ctx context.Context, stageID uuid.UUID) (*Accounting, error) {
	if stageID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stage id is required")
	}
	stage, err := s.repo.FindStage(ctx, stageID)
	if err != nil {
		return nil, mapStageError(err)
	}
	_, logged, err := s.repo.Totals(ctx, stageID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum rejection lines")
	}
	acct := NewAccounting(stageID, stage.QuantityRejected, logged)
	return &acct, nil
}

// Collect drains a ledger sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[models.RejectionLine, error]) ([]models.RejectionLine, error) {
	var out []models.RejectionLine
	for line, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

func mapStageError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stage not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stage")
}
