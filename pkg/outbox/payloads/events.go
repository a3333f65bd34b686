package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/loomline/erp-backend/pkg/enums"
)

// ProductionOrderCreatedEvent announces a new order and its pipeline.
type ProductionOrderCreatedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	OrderNumber    string            `json:"order_number"`
	ProductRef     string            `json:"product_ref"`
	TargetQuantity int               `json:"target_quantity"`
	Stages         []enums.StageName `json:"stages"`
}

// StageTransitionedEvent is emitted for every committed status change.
type StageTransitionedEvent struct {
	StageID   uuid.UUID         `json:"stage_id"`
	OrderID   uuid.UUID         `json:"order_id"`
	StageName enums.StageName   `json:"stage_name"`
	Action    enums.StageAction `json:"action"`
	From      enums.StageStatus `json:"from"`
	To        enums.StageStatus `json:"to"`
	At        time.Time         `json:"at"`
}

// StageCompletedEvent carries the reconciled quantities of a finished stage.
type StageCompletedEvent struct {
	StageID           uuid.UUID       `json:"stage_id"`
	OrderID           uuid.UUID       `json:"order_id"`
	StageName         enums.StageName `json:"stage_name"`
	QuantityProcessed int             `json:"quantity_processed"`
	QuantityApproved  int             `json:"quantity_approved"`
	QuantityRejected  int             `json:"quantity_rejected"`
	MaterialUsed      string          `json:"material_used"`
	CompletedAt       time.Time       `json:"completed_at"`
}

// StageHandoffEvent reports a document issued for an outsourced stage.
type StageHandoffEvent struct {
	StageID     uuid.UUID       `json:"stage_id"`
	OrderID     uuid.UUID       `json:"order_id"`
	StageName   enums.StageName `json:"stage_name"`
	VendorRef   string          `json:"vendor_ref,omitempty"`
	DocumentRef string          `json:"document_ref"`
	At          time.Time       `json:"at"`
}

// RejectionLineAddedEvent reports a ledger append and the running totals.
type RejectionLineAddedEvent struct {
	StageID    uuid.UUID `json:"stage_id"`
	OrderID    uuid.UUID `json:"order_id"`
	LineNumber int       `json:"line_number"`
	Reason     string    `json:"reason"`
	Quantity   int       `json:"quantity"`
	Logged     int       `json:"logged"`
	Declared   int       `json:"declared"`
	Reconciled bool      `json:"reconciled"`
	RecordedAt time.Time `json:"recorded_at"`
}

// OrderManualReviewFlaggedEvent is raised when quality check approves nothing.
type OrderManualReviewFlaggedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	StageID     uuid.UUID `json:"stage_id"`
	OrderNumber string    `json:"order_number"`
	Reason      string    `json:"reason"`
}

// StageRejectionsUnaccountedEvent is raised by the audit job for completed
// stages whose ledger still trails the declared rejected quantity.
type StageRejectionsUnaccountedEvent struct {
	StageID     uuid.UUID       `json:"stage_id"`
	OrderID     uuid.UUID       `json:"order_id"`
	StageName   enums.StageName `json:"stage_name"`
	Declared    int             `json:"declared"`
	Logged      int             `json:"logged"`
	Unaccounted int             `json:"unaccounted"`
	CompletedAt time.Time       `json:"completed_at"`
}
