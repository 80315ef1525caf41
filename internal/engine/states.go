package engine

import (
	"main/internal/errors"
	"main/pkg/exception"
)

// OrderState tracks one order through its lifecycle.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStateConstructed
	OrderStateSent
	OrderStateAccepted
	OrderStateRejected
	OrderStateWatching
	OrderStateFilled
	OrderStateProtectiveApplied
)

func (s OrderState) String() string {
	switch s {
	case OrderStateConstructed:
		return "CONSTRUCTED"
	case OrderStateSent:
		return "SENT"
	case OrderStateAccepted:
		return "ACCEPTED"
	case OrderStateRejected:
		return "REJECTED"
	case OrderStateWatching:
		return "WATCHING"
	case OrderStateFilled:
		return "FILLED"
	case OrderStateProtectiveApplied:
		return "PROTECTIVE_APPLIED"
	default:
		return "UNKNOWN"
	}
}

var orderStateNext = map[OrderState][]OrderState{
	OrderStateConstructed: {OrderStateSent},
	OrderStateSent:        {OrderStateAccepted, OrderStateRejected},
	OrderStateAccepted:    {OrderStateWatching, OrderStateFilled},
	OrderStateWatching:    {OrderStateFilled},
	OrderStateFilled:      {OrderStateProtectiveApplied},
}

// flow is the per-order state machine. Rejected transitions double as
// duplicate-event suppression: a second fill for an already-filled order
// fails to advance and is skipped by the caller.
type flow struct {
	state OrderState
}

func newFlow() *flow {
	return &flow{state: OrderStateConstructed}
}

func (f *flow) advance(next OrderState) error {
	for _, allowed := range orderStateNext[f.state] {
		if allowed == next {
			f.state = next
			return nil
		}
	}
	return errors.Wrapf(exception.ErrOrderBadTransition, "%s -> %s", f.state, next)
}
