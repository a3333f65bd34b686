package stages

import (
	"github.com/loomline/erp-backend/pkg/enums"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
)

type edge struct {
	from   enums.StageStatus
	action enums.StageAction
}

// transitions is the complete legality table. Pairs missing from it are
// refused with INVALID_TRANSITION.
var transitions = map[edge]enums.StageStatus{
	{enums.StageStatusPending, enums.StageActionStart}:                       enums.StageStatusInProgress,
	{enums.StageStatusPending, enums.StageActionSendToVendor}:                enums.StageStatusOutsourcedPending,
	{enums.StageStatusPending, enums.StageActionHold}:                        enums.StageStatusOnHold,
	{enums.StageStatusPending, enums.StageActionSkip}:                        enums.StageStatusSkipped,
	{enums.StageStatusInProgress, enums.StageActionPause}:                    enums.StageStatusOnHold,
	{enums.StageStatusInProgress, enums.StageActionComplete}:                 enums.StageStatusCompleted,
	{enums.StageStatusOnHold, enums.StageActionResume}:                       enums.StageStatusInProgress,
	{enums.StageStatusOnHold, enums.StageActionSkip}:                         enums.StageStatusSkipped,
	{enums.StageStatusOutsourcedPending, enums.StageActionReceiveFromVendor}: enums.StageStatusOutsourcedInProgress,
	{enums.StageStatusOutsourcedInProgress, enums.StageActionPause}:          enums.StageStatusOnHold,
	{enums.StageStatusOutsourcedInProgress, enums.StageActionComplete}:       enums.StageStatusCompleted,
}

// TransitionError details are attached to every refusal so callers can
// refresh and pick a legal action.
type TransitionError struct {
	Status enums.StageStatus `json:"status"`
	Action enums.StageAction `json:"action"`
	Reason string            `json:"reason,omitempty"`
}

// Transition resolves the next status for action applied to a stage in
// status. The outsourced flag gates start and send_to_vendor from pending.
func Transition(status enums.StageStatus, outsourced bool, action enums.StageAction) (enums.StageStatus, error) {
	if status.IsTerminal() {
		return "", pkgerrors.Newf(pkgerrors.CodeStageTerminal, "stage is %s; %s not allowed", status, action).
			WithDetails(TransitionError{Status: status, Action: action})
	}

	next, ok := transitions[edge{status, action}]
	if !ok {
		return "", invalidTransition(status, action, "")
	}

	switch action {
	case enums.StageActionStart:
		if outsourced {
			return "", invalidTransition(status, action, "stage is outsourced; dispatch it to the vendor instead")
		}
	case enums.StageActionSendToVendor:
		if !outsourced {
			return "", invalidTransition(status, action, "stage is not flagged as outsourced")
		}
	}
	return next, nil
}

// HoldAction maps the caller-facing "hold" command to the table action for
// the current status: hold while pending, pause once work has begun.
func HoldAction(status enums.StageStatus) enums.StageAction {
	if status.IsActive() {
		return enums.StageActionPause
	}
	return enums.StageActionHold
}

// Allowed lists the actions that would succeed from status.
func Allowed(status enums.StageStatus, outsourced bool) []enums.StageAction {
	var out []enums.StageAction
	for _, action := range enums.AllStageActions() {
		if _, err := Transition(status, outsourced, action); err == nil {
			out = append(out, action)
		}
	}
	return out
}

func invalidTransition(status enums.StageStatus, action enums.StageAction, reason string) error {
	msg := "cannot " + string(action) + " a stage that is " + string(status)
	if reason != "" {
		msg += ": " + reason
	}
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, msg).
		WithDetails(TransitionError{Status: status, Action: action, Reason: reason})
}
