package booking

import (
	"math"
	"slices"

	"salonbook/internal/pkg/apperr"
	"salonbook/internal/pkg/identity"
)

type Action string

const (
	ActionConfirm      Action = "confirm"
	ActionReject       Action = "reject"
	ActionStartTrip    Action = "start_trip"
	ActionStartService Action = "start_service"
	ActionComplete     Action = "complete"
	ActionCancel       Action = "cancel"
	// ActionExpire is only taken by the system actor.
	ActionExpire Action = "expire"
)

func (a Action) valid() bool {
	switch a {
	case ActionConfirm, ActionReject, ActionStartTrip, ActionStartService, ActionComplete, ActionCancel, ActionExpire:
		return true
	}
	return false
}

type edge struct {
	from   Status
	action Action
}

type transition struct {
	to    Status
	roles []identity.Role
}

// StateMachine is the table of legal lifecycle moves and who may make them.
type StateMachine struct {
	edges map[edge]transition
}

// NewStateMachine builds the table. providerMayCancel lets providers cancel
// PENDING and CONFIRMED bookings alongside customers; a provider can always
// abort a trip that is already under way.
func NewStateMachine(providerMayCancel bool) *StateMachine {
	providerOnly := []identity.Role{identity.RoleProvider}
	cancellers := []identity.Role{identity.RoleCustomer}
	if providerMayCancel {
		cancellers = append(cancellers, identity.RoleProvider)
	}

	return &StateMachine{edges: map[edge]transition{
		{StatusPending, ActionConfirm}:       {StatusConfirmed, providerOnly},
		{StatusPending, ActionReject}:        {StatusRejected, providerOnly},
		{StatusPending, ActionCancel}:        {StatusCancelled, cancellers},
		{StatusPending, ActionExpire}:        {StatusRejected, []identity.Role{identity.RoleSystem}},
		{StatusConfirmed, ActionStartTrip}:   {StatusOnTheWay, providerOnly},
		{StatusConfirmed, ActionCancel}:      {StatusCancelled, cancellers},
		{StatusOnTheWay, ActionStartService}: {StatusStarted, providerOnly},
		{StatusOnTheWay, ActionCancel}:       {StatusCancelled, providerOnly},
		{StatusStarted, ActionComplete}:      {StatusCompleted, providerOnly},
	}}
}

// Next returns the status reached by taking action from from as role.
func (m *StateMachine) Next(from Status, action Action, role identity.Role) (Status, error) {
	if !action.valid() {
		return "", apperr.Withf(ErrUnknownAction, "unknown action %q", action)
	}
	t, ok := m.edges[edge{from, action}]
	if !ok {
		return "", apperr.Withf(ErrInvalidTransition, "cannot %s a %s booking", action, from)
	}
	if !slices.Contains(t.roles, role) {
		return "", apperr.Withf(ErrForbidden, "%s may not %s this booking", role, action)
	}
	return t.to, nil
}

// windowed reports whether a cancellation from this status is subject to
// the minimum notice period.
func windowed(from Status) bool {
	return from == StatusPending || from == StatusConfirmed
}

// Payout is the provider share of total after commission, rounded to the
// nearest minor unit.
func Payout(total int64, commissionPercent float64) int64 {
	return int64(math.Round(float64(total) * (1 - commissionPercent/100)))
}
