package wire

import (
	"main/internal/model/enum"
)

// AppAuthReq authenticates the application.
type AppAuthReq struct {
	ClientID     string
	ClientSecret string
}

func (m AppAuthReq) Encode(dst []byte) []byte {
	dst = appendStringField(dst, 1, m.ClientID)
	return appendStringField(dst, 2, m.ClientSecret)
}

// DecodeAppAuthReq exists for the test harness side of the protocol.
func DecodeAppAuthReq(payload []byte) (AppAuthReq, error) {
	var m AppAuthReq
	err := walkFields(payload, func(f field) bool {
		switch f.num {
		case 1:
			m.ClientID = string(f.bytes)
		case 2:
			m.ClientSecret = string(f.bytes)
		}
		return true
	})
	return m, err
}

// AccountAuthReq authenticates one trading account on an authenticated
// application session.
type AccountAuthReq struct {
	AccountID   int64
	AccessToken string
}

func (m AccountAuthReq) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.AccountID))
	return appendStringField(dst, 2, m.AccessToken)
}

// DecodeAccountAuthReq exists for the test harness side of the protocol.
func DecodeAccountAuthReq(payload []byte) (AccountAuthReq, error) {
	var m AccountAuthReq
	err := walkFields(payload, func(f field) bool {
		switch f.num {
		case 1:
			if f.wire == wireVarint {
				m.AccountID = int64(f.varint)
			}
		case 2:
			m.AccessToken = string(f.bytes)
		}
		return true
	})
	return m, err
}

// AccountAuthRes acknowledges account authentication.
type AccountAuthRes struct {
	AccountID int64
}

func (m AccountAuthRes) Encode(dst []byte) []byte {
	return appendVarintField(dst, 1, uint64(m.AccountID))
}

func DecodeAccountAuthRes(payload []byte) (AccountAuthRes, error) {
	var m AccountAuthRes
	err := walkFields(payload, func(f field) bool {
		if f.num == 1 && f.wire == wireVarint {
			m.AccountID = int64(f.varint)
		}
		return true
	})
	return m, err
}

// SymbolsListReq asks for the account's instrument catalog.
type SymbolsListReq struct {
	AccountID int64
}

func (m SymbolsListReq) Encode(dst []byte) []byte {
	return appendVarintField(dst, 1, uint64(m.AccountID))
}

// LightSymbol is the catalog entry: just enough to resolve names to ids.
type LightSymbol struct {
	ID     int64
	Name   string
	Digits int32
}

func (m LightSymbol) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.ID))
	dst = appendStringField(dst, 2, m.Name)
	return appendVarintField(dst, 3, uint64(m.Digits))
}

// SymbolsListRes carries the full instrument catalog.
type SymbolsListRes struct {
	AccountID int64
	Symbols   []LightSymbol
}

func (m SymbolsListRes) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.AccountID))
	for _, sym := range m.Symbols {
		dst = appendBytesField(dst, 2, sym.Encode(nil))
	}
	return dst
}

func DecodeSymbolsListRes(payload []byte) (SymbolsListRes, error) {
	var m SymbolsListRes
	var nested error
	err := walkFields(payload, func(f field) bool {
		switch f.num {
		case 1:
			if f.wire == wireVarint {
				m.AccountID = int64(f.varint)
			}
		case 2:
			if f.wire != wireBytes {
				return true
			}
			var sym LightSymbol
			nested = walkFields(f.bytes, func(sf field) bool {
				switch sf.num {
				case 1:
					sym.ID = int64(sf.varint)
				case 2:
					sym.Name = string(sf.bytes)
				case 3:
					sym.Digits = int32(sf.varint)
				}
				return true
			})
			if nested != nil {
				return false
			}
			m.Symbols = append(m.Symbols, sym)
		}
		return true
	})
	if err != nil {
		return SymbolsListRes{}, err
	}
	if nested != nil {
		return SymbolsListRes{}, nested
	}
	return m, nil
}

// SymbolByIDReq asks for per-instrument trading constraints.
type SymbolByIDReq struct {
	AccountID int64
	SymbolID  int64
}

func (m SymbolByIDReq) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.AccountID))
	return appendVarintField(dst, 2, uint64(m.SymbolID))
}

// DecodeSymbolByIDReq exists for the test harness side of the protocol.
func DecodeSymbolByIDReq(payload []byte) (SymbolByIDReq, error) {
	var m SymbolByIDReq
	err := walkFields(payload, func(f field) bool {
		switch f.num {
		case 1:
			m.AccountID = int64(f.varint)
		case 2:
			m.SymbolID = int64(f.varint)
		}
		return true
	})
	return m, err
}

// SymbolDetail carries the per-instrument trading constraints. Volumes are
// in wire units (hundredths of a unit), prices scaled by Digits.
type SymbolDetail struct {
	ID            int64
	Digits        int32
	MinVolume     int64
	MaxVolume     int64
	StepVolume    int64
	TickValue     float64
	ContractSize  int64
	InitialMargin float64
}

func (m SymbolDetail) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.ID))
	dst = appendVarintField(dst, 2, uint64(m.Digits))
	dst = appendVarintField(dst, 3, uint64(m.MinVolume))
	dst = appendVarintField(dst, 4, uint64(m.MaxVolume))
	dst = appendVarintField(dst, 5, uint64(m.StepVolume))
	if m.TickValue != 0 {
		dst = appendDoubleField(dst, 6, m.TickValue)
	}
	dst = appendVarintField(dst, 7, uint64(m.ContractSize))
	if m.InitialMargin != 0 {
		dst = appendDoubleField(dst, 8, m.InitialMargin)
	}
	return dst
}

func decodeSymbolDetail(payload []byte) (SymbolDetail, error) {
	var m SymbolDetail
	err := walkFields(payload, func(f field) bool {
		switch f.num {
		case 1:
			m.ID = int64(f.varint)
		case 2:
			m.Digits = int32(f.varint)
		case 3:
			m.MinVolume = int64(f.varint)
		case 4:
			m.MaxVolume = int64(f.varint)
		case 5:
			m.StepVolume = int64(f.varint)
		case 6:
			m.TickValue = f.double()
		case 7:
			m.ContractSize = int64(f.varint)
		case 8:
			m.InitialMargin = f.double()
		}
		return true
	})
	return m, err
}

// SymbolByIDRes answers a SymbolByIDReq.
type SymbolByIDRes struct {
	AccountID int64
	Symbol    SymbolDetail
}

func (m SymbolByIDRes) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.AccountID))
	return appendBytesField(dst, 2, m.Symbol.Encode(nil))
}

func DecodeSymbolByIDRes(payload []byte) (SymbolByIDRes, error) {
	var m SymbolByIDRes
	var nested error
	err := walkFields(payload, func(f field) bool {
		switch f.num {
		case 1:
			if f.wire == wireVarint {
				m.AccountID = int64(f.varint)
			}
		case 2:
			if f.wire == wireBytes {
				m.Symbol, nested = decodeSymbolDetail(f.bytes)
				if nested != nil {
					return false
				}
			}
		}
		return true
	})
	if err != nil {
		return SymbolByIDRes{}, err
	}
	if nested != nil {
		return SymbolByIDRes{}, nested
	}
	return m, nil
}

// NewOrderReq places an order. Protective levels are attached at creation
// only for pending kinds; the venue rejects absolute stop/target values on
// immediate-execution orders.
type NewOrderReq struct {
	AccountID  int64
	SymbolID   int64
	OrderKind  enum.OrderKind
	Side       enum.OrderSide
	Volume     int64
	LimitPrice float64
	StopPrice  float64
	StopLoss   float64
	TakeProfit float64
	Label      string
}

func (m NewOrderReq) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.AccountID))
	dst = appendVarintField(dst, 2, uint64(m.SymbolID))
	dst = appendVarintField(dst, 3, uint64(m.OrderKind))
	dst = appendVarintField(dst, 4, uint64(m.Side))
	dst = appendVarintField(dst, 5, uint64(m.Volume))
	if m.LimitPrice != 0 {
		dst = appendDoubleField(dst, 6, m.LimitPrice)
	}
	if m.StopPrice != 0 {
		dst = appendDoubleField(dst, 7, m.StopPrice)
	}
	if m.StopLoss != 0 {
		dst = appendDoubleField(dst, 8, m.StopLoss)
	}
	if m.TakeProfit != 0 {
		dst = appendDoubleField(dst, 9, m.TakeProfit)
	}
	if m.Label != "" {
		dst = appendStringField(dst, 10, m.Label)
	}
	return dst
}

// DecodeNewOrderReq exists for the test harness side of the protocol.
func DecodeNewOrderReq(payload []byte) (NewOrderReq, error) {
	var m NewOrderReq
	err := walkFields(payload, func(f field) bool {
		switch f.num {
		case 1:
			m.AccountID = int64(f.varint)
		case 2:
			m.SymbolID = int64(f.varint)
		case 3:
			m.OrderKind = enum.OrderKind(f.varint)
		case 4:
			m.Side = enum.OrderSide(f.varint)
		case 5:
			m.Volume = int64(f.varint)
		case 6:
			m.LimitPrice = f.double()
		case 7:
			m.StopPrice = f.double()
		case 8:
			m.StopLoss = f.double()
		case 9:
			m.TakeProfit = f.double()
		case 10:
			m.Label = string(f.bytes)
		}
		return true
	})
	return m, err
}

// OrderInfo is the order half of an execution event. The engine matches
// events to in-flight orders on (symbol id, side, order kind).
type OrderInfo struct {
	OrderID   int64
	SymbolID  int64
	Side      enum.OrderSide
	OrderKind enum.OrderKind
	Volume    int64
}

func (m OrderInfo) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.OrderID))
	dst = appendVarintField(dst, 2, uint64(m.SymbolID))
	dst = appendVarintField(dst, 3, uint64(m.Side))
	dst = appendVarintField(dst, 4, uint64(m.OrderKind))
	return appendVarintField(dst, 5, uint64(m.Volume))
}

func decodeOrderInfo(payload []byte) (OrderInfo, error) {
	var m OrderInfo
	err := walkFields(payload, func(f field) bool {
		switch f.num {
		case 1:
			m.OrderID = int64(f.varint)
		case 2:
			m.SymbolID = int64(f.varint)
		case 3:
			m.Side = enum.OrderSide(f.varint)
		case 4:
			m.OrderKind = enum.OrderKind(f.varint)
		case 5:
			m.Volume = int64(f.varint)
		}
		return true
	})
	return m, err
}

// PositionInfo is the position half of an execution event.
type PositionInfo struct {
	PositionID int64
	SymbolID   int64
	Price      float64
	Volume     int64
	Profit     float64
}

func (m PositionInfo) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.PositionID))
	dst = appendVarintField(dst, 2, uint64(m.SymbolID))
	if m.Price != 0 {
		dst = appendDoubleField(dst, 3, m.Price)
	}
	dst = appendVarintField(dst, 4, uint64(m.Volume))
	if m.Profit != 0 {
		dst = appendDoubleField(dst, 5, m.Profit)
	}
	return dst
}

func decodePositionInfo(payload []byte) (PositionInfo, error) {
	var m PositionInfo
	err := walkFields(payload, func(f field) bool {
		switch f.num {
		case 1:
			m.PositionID = int64(f.varint)
		case 2:
			m.SymbolID = int64(f.varint)
		case 3:
			m.Price = f.double()
		case 4:
			m.Volume = int64(f.varint)
		case 5:
			m.Profit = f.double()
		}
		return true
	})
	return m, err
}

// ExecutionEvent is the venue's unsolicited order/position update.
type ExecutionEvent struct {
	AccountID        int64
	ExecType         enum.ExecType
	Order            OrderInfo
	Position         PositionInfo
	ErrorCode        string
	ErrorDescription string
}

func (m ExecutionEvent) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.AccountID))
	dst = appendVarintField(dst, 2, uint64(m.ExecType))
	if m.Order != (OrderInfo{}) {
		dst = appendBytesField(dst, 3, m.Order.Encode(nil))
	}
	if m.Position != (PositionInfo{}) {
		dst = appendBytesField(dst, 4, m.Position.Encode(nil))
	}
	if m.ErrorCode != "" {
		dst = appendStringField(dst, 5, m.ErrorCode)
	}
	if m.ErrorDescription != "" {
		dst = appendStringField(dst, 6, m.ErrorDescription)
	}
	return dst
}

func DecodeExecutionEvent(payload []byte) (ExecutionEvent, error) {
	var m ExecutionEvent
	var nested error
	err := walkFields(payload, func(f field) bool {
		switch f.num {
		case 1:
			if f.wire == wireVarint {
				m.AccountID = int64(f.varint)
			}
		case 2:
			if f.wire == wireVarint {
				m.ExecType = enum.ExecType(f.varint)
			}
		case 3:
			if f.wire == wireBytes {
				m.Order, nested = decodeOrderInfo(f.bytes)
				if nested != nil {
					return false
				}
			}
		case 4:
			if f.wire == wireBytes {
				m.Position, nested = decodePositionInfo(f.bytes)
				if nested != nil {
					return false
				}
			}
		case 5:
			if f.wire == wireBytes {
				m.ErrorCode = string(f.bytes)
			}
		case 6:
			if f.wire == wireBytes {
				m.ErrorDescription = string(f.bytes)
			}
		}
		return true
	})
	if err != nil {
		return ExecutionEvent{}, err
	}
	if nested != nil {
		return ExecutionEvent{}, nested
	}
	return m, nil
}

// AmendSLTPReq applies protective stop/target levels to an open position.
type AmendSLTPReq struct {
	AccountID  int64
	PositionID int64
	StopLoss   float64
	TakeProfit float64
}

func (m AmendSLTPReq) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.AccountID))
	dst = appendVarintField(dst, 2, uint64(m.PositionID))
	if m.StopLoss != 0 {
		dst = appendDoubleField(dst, 3, m.StopLoss)
	}
	if m.TakeProfit != 0 {
		dst = appendDoubleField(dst, 4, m.TakeProfit)
	}
	return dst
}

func DecodeAmendSLTPReq(payload []byte) (AmendSLTPReq, error) {
	var m AmendSLTPReq
	err := walkFields(payload, func(f field) bool {
		switch f.num {
		case 1:
			m.AccountID = int64(f.varint)
		case 2:
			m.PositionID = int64(f.varint)
		case 3:
			m.StopLoss = f.double()
		case 4:
			m.TakeProfit = f.double()
		}
		return true
	})
	return m, err
}

// SubscribeSpotsReq subscribes to spot prices for one instrument.
type SubscribeSpotsReq struct {
	AccountID int64
	SymbolID  int64
}

func (m SubscribeSpotsReq) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.AccountID))
	return appendVarintField(dst, 2, uint64(m.SymbolID))
}

// SubscribeSpotsRes acknowledges a spot subscription. Carries varints
// only; see session.reconcilePayloadType.
type SubscribeSpotsRes struct {
	AccountID      int64
	SubscriptionID int64
}

func (m SubscribeSpotsRes) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.AccountID))
	return appendVarintField(dst, 2, uint64(m.SubscriptionID))
}

// SpotEvent is one price tick.
type SpotEvent struct {
	SymbolID int64
	Bid      float64
	Ask      float64
}

func (m SpotEvent) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.SymbolID))
	if m.Bid != 0 {
		dst = appendDoubleField(dst, 2, m.Bid)
	}
	if m.Ask != 0 {
		dst = appendDoubleField(dst, 3, m.Ask)
	}
	return dst
}

func DecodeSpotEvent(payload []byte) (SpotEvent, error) {
	var m SpotEvent
	err := walkFields(payload, func(f field) bool {
		switch f.num {
		case 1:
			m.SymbolID = int64(f.varint)
		case 2:
			m.Bid = f.double()
		case 3:
			m.Ask = f.double()
		}
		return true
	})
	return m, err
}

// ReconcileReq asks for the account's open positions and pending orders.
type ReconcileReq struct {
	AccountID int64
}

func (m ReconcileReq) Encode(dst []byte) []byte {
	return appendVarintField(dst, 1, uint64(m.AccountID))
}

// ReconcileRes lists open positions.
type ReconcileRes struct {
	AccountID int64
	Positions []PositionInfo
}

func (m ReconcileRes) Encode(dst []byte) []byte {
	dst = appendVarintField(dst, 1, uint64(m.AccountID))
	for _, pos := range m.Positions {
		dst = appendBytesField(dst, 2, pos.Encode(nil))
	}
	return dst
}

func DecodeReconcileRes(payload []byte) (ReconcileRes, error) {
	var m ReconcileRes
	var nested error
	err := walkFields(payload, func(f field) bool {
		switch f.num {
		case 1:
			if f.wire == wireVarint {
				m.AccountID = int64(f.varint)
			}
		case 2:
			if f.wire == wireBytes {
				var pos PositionInfo
				pos, nested = decodePositionInfo(f.bytes)
				if nested != nil {
					return false
				}
				m.Positions = append(m.Positions, pos)
			}
		}
		return true
	})
	if err != nil {
		return ReconcileRes{}, err
	}
	if nested != nil {
		return ReconcileRes{}, nested
	}
	return m, nil
}

// HasFixed64Field reports whether payload carries any 64-bit field. Spot
// events always carry at least one price double; subscribe responses never
// do. The session layer uses this to reconcile the payload type of
// subscribe responses the venue emits under the spot-event code.
func HasFixed64Field(payload []byte) bool {
	found := false
	if err := walkFields(payload, func(f field) bool {
		if f.wire == wireFixed64 {
			found = true
			return false
		}
		return true
	}); err != nil {
		return false
	}
	return found
}
