package enum

// OrderSide is the venue's side enum. Wire values are fixed by the
// protocol: buy = 1, sell = 2.
type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

// Opposite flips buy to sell and back. Used for opposite-leg orders.
func (s OrderSide) Opposite() OrderSide {
	switch s {
	case OrderSideBuy:
		return OrderSideSell
	case OrderSideSell:
		return OrderSideBuy
	default:
		return s
	}
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "BUY"
	case OrderSideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// OrderKind market, limit, stop. Wire values are fixed by the protocol:
// market = 1, limit = 2, stop = 3.
type OrderKind uint8

const (
	_order_kind_beg OrderKind = iota
	OrderKindMarket
	OrderKindLimit
	OrderKindStop
	_order_kind_end
)

func (k OrderKind) IsAvailable() bool {
	return k > _order_kind_beg && k < _order_kind_end
}

// IsPending reports whether the kind rests on the book awaiting a fill.
func (k OrderKind) IsPending() bool {
	return k == OrderKindLimit || k == OrderKindStop
}

// Complement maps limit to stop and stop to limit. Used when the opposite
// leg inherits an asymmetric order-type hint from the source text.
func (k OrderKind) Complement() OrderKind {
	switch k {
	case OrderKindLimit:
		return OrderKindStop
	case OrderKindStop:
		return OrderKindLimit
	default:
		return k
	}
}

func (k OrderKind) String() string {
	switch k {
	case OrderKindMarket:
		return "MARKET"
	case OrderKindLimit:
		return "LIMIT"
	case OrderKindStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}
