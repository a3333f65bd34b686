package enums

// StageAction is a command applied to a stage by the workflow engine.
type StageAction string

const (
	StageActionStart             StageAction = "start"
	StageActionHold              StageAction = "hold"
	StageActionPause             StageAction = "pause"
	StageActionResume            StageAction = "resume"
	StageActionSkip              StageAction = "skip"
	StageActionComplete          StageAction = "complete"
	StageActionSendToVendor      StageAction = "send_to_vendor"
	StageActionReceiveFromVendor StageAction = "receive_from_vendor"
)

var validStageActions = []StageAction{
	StageActionStart,
	StageActionHold,
	StageActionPause,
	StageActionResume,
	StageActionSkip,
	StageActionComplete,
	StageActionSendToVendor,
	StageActionReceiveFromVendor,
}

// AllStageActions returns every action in declaration order.
func AllStageActions() []StageAction {
	out := make([]StageAction, len(validStageActions))
	copy(out, validStageActions)
	return out
}

// String implements fmt.Stringer.
func (a StageAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known StageAction.
func (a StageAction) IsValid() bool {
	return known(a, validStageActions)
}

// ParseStageAction converts raw input into a StageAction.
func ParseStageAction(value string) (StageAction, error) {
	return parse("stage action", value, validStageActions)
}
