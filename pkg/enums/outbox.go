package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateProductionOrder OutboxAggregateType = "production_order"
	AggregateProductionStage OutboxAggregateType = "production_stage"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateProductionOrder,
	AggregateProductionStage,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return known(a, validAggregateTypes)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, validAggregateTypes)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventProductionOrderCreated     OutboxEventType = "production_order_created"
	EventStageTransitioned          OutboxEventType = "stage_transitioned"
	EventStageCompleted             OutboxEventType = "stage_completed"
	EventStageDispatched            OutboxEventType = "stage_dispatched"
	EventStageReceived              OutboxEventType = "stage_received"
	EventRejectionLineAdded         OutboxEventType = "rejection_line_added"
	EventOrderManualReviewFlagged   OutboxEventType = "order_manual_review_flagged"
	EventStageRejectionsUnaccounted OutboxEventType = "stage_rejections_unaccounted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventProductionOrderCreated,
	EventStageTransitioned,
	EventStageCompleted,
	EventStageDispatched,
	EventStageReceived,
	EventRejectionLineAdded,
	EventOrderManualReviewFlagged,
	EventStageRejectionsUnaccounted,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return known(e, validOutboxEventTypes)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, validOutboxEventTypes)
}
