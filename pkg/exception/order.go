package exception

import "github.com/yanun0323/errors"

// Order errors
var (
	ErrOrderRejected         = errors.New("order: rejected by venue")
	ErrOrderNoExecutionEvent = errors.New("order: no execution event observed")
	ErrOrderMissingPrice     = errors.New("order: pending order requires an entry price")
	ErrOrderWrongInstrument  = errors.New("order: executed on a different instrument than requested")
	ErrOrderZeroVolume       = errors.New("order: computed volume is zero")
	ErrOrderDuplicate        = errors.New("order: instruction already processed")
	ErrOrderBadTransition    = errors.New("order: invalid state transition")
	ErrProtectiveRejected    = errors.New("order: protective levels rejected")
)
