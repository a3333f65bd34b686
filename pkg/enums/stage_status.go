package enums

// StageStatus tracks where a production stage sits in its lifecycle.
type StageStatus string

const (
	StageStatusPending              StageStatus = "pending"
	StageStatusInProgress           StageStatus = "in_progress"
	StageStatusOnHold               StageStatus = "on_hold"
	StageStatusOutsourcedPending    StageStatus = "outsourced_pending"
	StageStatusOutsourcedInProgress StageStatus = "outsourced_in_progress"
	StageStatusCompleted            StageStatus = "completed"
	StageStatusSkipped              StageStatus = "skipped"
)

var validStageStatuses = []StageStatus{
	StageStatusPending,
	StageStatusInProgress,
	StageStatusOnHold,
	StageStatusOutsourcedPending,
	StageStatusOutsourcedInProgress,
	StageStatusCompleted,
	StageStatusSkipped,
}

// AllStageStatuses returns every status in declaration order.
func AllStageStatuses() []StageStatus {
	out := make([]StageStatus, len(validStageStatuses))
	copy(out, validStageStatuses)
	return out
}

// String implements fmt.Stringer.
func (s StageStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StageStatus.
func (s StageStatus) IsValid() bool {
	return known(s, validStageStatuses)
}

// IsTerminal reports whether the stage can no longer be mutated.
func (s StageStatus) IsTerminal() bool {
	return s == StageStatusCompleted || s == StageStatusSkipped
}

// IsActive reports whether work on the stage is underway.
func (s StageStatus) IsActive() bool {
	return s == StageStatusInProgress || s == StageStatusOutsourcedInProgress
}

// IsOutsourcedFlow reports whether the stage is with an external vendor.
func (s StageStatus) IsOutsourcedFlow() bool {
	return s == StageStatusOutsourcedPending || s == StageStatusOutsourcedInProgress
}

// ParseStageStatus converts raw input into a StageStatus.
func ParseStageStatus(value string) (StageStatus, error) {
	return parse("stage status", value, validStageStatuses)
}
