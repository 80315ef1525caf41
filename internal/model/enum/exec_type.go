package enum

// ExecType classifies execution events pushed by the venue. Close
// detection matches on the type NAME, not the value, because venue schema
// versions name position-closing events inconsistently.
type ExecType uint32

const (
	ExecTypeUnknown ExecType = iota
	ExecTypeOrderAccepted
	ExecTypeOrderFilled
	ExecTypeOrderPartialFill
	ExecTypeOrderRejected
	ExecTypeOrderCancelled
	ExecTypeOrderExpired
	ExecTypePositionClosed
	ExecTypeStopLossTriggered
	ExecTypeTakeProfitTriggered
	_exec_type_end
)

func (t ExecType) IsAvailable() bool {
	return t > ExecTypeUnknown && t < _exec_type_end
}

// IsFill reports whether the event confirms an execution producing an
// open position. Only filled and partial-fill count; accepted does not.
func (t ExecType) IsFill() bool {
	return t == ExecTypeOrderFilled || t == ExecTypeOrderPartialFill
}

func (t ExecType) String() string {
	switch t {
	case ExecTypeOrderAccepted:
		return "ORDER_ACCEPTED"
	case ExecTypeOrderFilled:
		return "ORDER_FILLED"
	case ExecTypeOrderPartialFill:
		return "ORDER_PARTIAL_FILL"
	case ExecTypeOrderRejected:
		return "ORDER_REJECTED"
	case ExecTypeOrderCancelled:
		return "ORDER_CANCELLED"
	case ExecTypeOrderExpired:
		return "ORDER_EXPIRED"
	case ExecTypePositionClosed:
		return "POSITION_CLOSED"
	case ExecTypeStopLossTriggered:
		return "POSITION_CLOSED_STOP_LOSS_TRIGGERED"
	case ExecTypeTakeProfitTriggered:
		return "POSITION_CLOSED_TAKE_PROFIT_TRIGGERED"
	default:
		return "UNKNOWN"
	}
}
