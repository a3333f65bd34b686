package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/loomline/erp-backend/internal/stages"
	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
)

// Stage is the API view of one production stage.
type Stage struct {
	ID                 uuid.UUID         `json:"id"`
	OrderID            uuid.UUID         `json:"orderId"`
	StageName          enums.StageName   `json:"stageName"`
	SequenceIndex      int               `json:"sequenceIndex"`
	Status             enums.StageStatus `json:"status"`
	ActualStartTime    *time.Time        `json:"actualStartTime,omitempty"`
	ActualEndTime      *time.Time        `json:"actualEndTime,omitempty"`
	QuantityProcessed  int               `json:"quantityProcessed"`
	QuantityApproved   int               `json:"quantityApproved"`
	QuantityRejected   int               `json:"quantityRejected"`
	MaterialUsed       decimal.Decimal   `json:"materialUsed"`
	Outsourced         bool              `json:"outsourced"`
	VendorRef          *string           `json:"vendorRef,omitempty"`
	OutwardDocumentRef *string           `json:"outwardDocumentRef,omitempty"`
	InwardDocumentRef  *string           `json:"inwardDocumentRef,omitempty"`
	DispatchedAt       *time.Time        `json:"dispatchedAt,omitempty"`
	ReceivedAt         *time.Time        `json:"receivedAt,omitempty"`
	Notes              *string           `json:"notes,omitempty"`
	Version            int               `json:"version"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// StageCompletion pairs the completed stage with reconciliation warnings.
type StageCompletion struct {
	Stage    Stage            `json:"stage"`
	Warnings []stages.Warning `json:"warnings"`
}

func NewStage(stage *models.ProductionStage) Stage {
	if stage == nil {
		return Stage{}
	}
	return Stage{
		ID:                 stage.ID,
		OrderID:            stage.OrderID,
		StageName:          stage.StageName,
		SequenceIndex:      stage.SequenceIndex,
		Status:             stage.Status,
		ActualStartTime:    stage.ActualStartTime,
		ActualEndTime:      stage.ActualEndTime,
		QuantityProcessed:  stage.QuantityProcessed,
		QuantityApproved:   stage.QuantityApproved,
		QuantityRejected:   stage.QuantityRejected,
		MaterialUsed:       stage.MaterialUsed,
		Outsourced:         stage.Outsourced,
		VendorRef:          stage.VendorRef,
		OutwardDocumentRef: stage.OutwardDocumentRef,
		InwardDocumentRef:  stage.InwardDocumentRef,
		DispatchedAt:       stage.DispatchedAt,
		ReceivedAt:         stage.ReceivedAt,
		Notes:              stage.Notes,
		Version:            stage.Version,
		CreatedAt:          stage.CreatedAt,
		UpdatedAt:          stage.UpdatedAt,
	}
}

func NewStages(records []models.ProductionStage) []Stage {
	out := make([]Stage, 0, len(records))
	for i := range records {
		out = append(out, NewStage(&records[i]))
	}
	return out
}

// NewStageCompletion never returns a nil warnings slice so clients can
// iterate without a null check.
func NewStageCompletion(result *stages.CompletionResult) StageCompletion {
	if result == nil {
		return StageCompletion{Warnings: []stages.Warning{}}
	}
	warnings := result.Reconciliation.Warnings
	if warnings == nil {
		warnings = []stages.Warning{}
	}
	return StageCompletion{
		Stage:    NewStage(result.Stage),
		Warnings: warnings,
	}
}
