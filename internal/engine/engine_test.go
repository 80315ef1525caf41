package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/session"
	"main/internal/symbols"
	"main/internal/wire"
	"main/pkg/exception"
)

// fakeVenue records sends and broadcasts scripted responses to every
// subscriber, mirroring the session's fan-out.
type fakeVenue struct {
	mu     sync.Mutex
	sent   []sentMsg
	subs   []chan session.Inbound
	onSend func(payloadType uint32, payload []byte)
}

type sentMsg struct {
	payloadType uint32
	payload     []byte
}

func (f *fakeVenue) Send(payloadType uint32, payload []byte) error {
	f.mu.Lock()
	cp := append([]byte(nil), payload...)
	f.sent = append(f.sent, sentMsg{payloadType: payloadType, payload: cp})
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(payloadType, cp)
	}
	return nil
}

func (f *fakeVenue) Subscribe() (<-chan session.Inbound, func()) {
	ch := make(chan session.Inbound, 16)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeVenue) broadcast(in session.Inbound) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- in:
		default:
		}
	}
}

func (f *fakeVenue) sentOfType(payloadType uint32) []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMsg
	for _, msg := range f.sent {
		if msg.payloadType == payloadType {
			out = append(out, msg)
		}
	}
	return out
}

// fakeSymbols is a fixed two-instrument directory.
type fakeSymbols struct {
	insts map[string]symbols.Instrument
	cons  symbols.Constraints
}

func (f *fakeSymbols) Resolve(_ context.Context, name string) (symbols.Instrument, error) {
	if inst, ok := f.insts[name]; ok {
		return inst, nil
	}
	return symbols.Instrument{}, exception.ErrUnknownSymbol
}

func (f *fakeSymbols) ByID(_ context.Context, id int64) (symbols.Instrument, error) {
	for _, inst := range f.insts {
		if inst.ID == id {
			return inst, nil
		}
	}
	return symbols.Instrument{}, exception.ErrUnknownSymbolID
}

func (f *fakeSymbols) Constraints(_ context.Context, _ int64) (symbols.Constraints, error) {
	return f.cons, nil
}

func newTestEngine(opt Option) (*Engine, *fakeVenue) {
	venue := &fakeVenue{}
	sym := &fakeSymbols{
		insts: map[string]symbols.Instrument{
			"EURUSD":              {ID: 1, Name: "EURUSD", Digits: 5},
			"GBPUSD":              {ID: 2, Name: "GBPUSD", Digits: 5},
			"Volatility 25 Index": {ID: 100, Name: "Volatility 25 Index", Digits: 3, Synthetic: true},
		},
		cons: symbols.Constraints{
			Digits:       5,
			MinVolume:    1000,
			MaxVolume:    10_000_000,
			StepVolume:   1000,
			ContractSize: 100000,
			TickValue:    1,
		},
	}
	if opt.AccountID == 0 {
		opt.AccountID = 77
	}
	if opt.DefaultLots == 0 {
		opt.DefaultLots = 0.2
	}
	if opt.FillWait == 0 {
		opt.FillWait = time.Second
	}
	if opt.AmendWait == 0 {
		opt.AmendWait = 30 * time.Millisecond
	}
	return New(venue, sym, opt), venue
}

func fillEvent(req wire.NewOrderReq, orderID, positionID int64, price float64) session.Inbound {
	ev := wire.ExecutionEvent{
		AccountID: req.AccountID,
		ExecType:  enum.ExecTypeOrderFilled,
		Order: wire.OrderInfo{
			OrderID:   orderID,
			SymbolID:  req.SymbolID,
			Side:      req.Side,
			OrderKind: req.OrderKind,
			Volume:    req.Volume,
		},
		Position: wire.PositionInfo{
			PositionID: positionID,
			SymbolID:   req.SymbolID,
			Price:      price,
			Volume:     req.Volume,
		},
	}
	return session.Inbound{PayloadType: wire.PTExecutionEvent, Payload: ev.Encode(nil)}
}

func TestMarketBuyFillWithoutProtective(t *testing.T) {
	e, venue := newTestEngine(Option{})
	venue.onSend = func(payloadType uint32, payload []byte) {
		if payloadType != wire.PTNewOrderReq {
			return
		}
		req, err := wire.DecodeNewOrderReq(payload)
		require.NoError(t, err)
		venue.broadcast(fillEvent(req, 9, 555, 1.2345))
	}

	in := model.Instruction{ID: "sig-1", Asset: "EURUSD", Side: enum.OrderSideBuy}
	res, err := e.Place(context.Background(), in, enum.OrderKindMarket, 0)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, int64(555), res.PositionID)
	assert.Equal(t, 1.2345, res.ExecPrice)
	assert.False(t, res.ProtectiveApplied)
	assert.Empty(t, venue.sentOfType(wire.PTAmendSLTPReq), "no protective levels requested, no amend")
}

func TestOppositeLegInvertsSide(t *testing.T) {
	e, venue := newTestEngine(Option{})
	venue.onSend = func(payloadType uint32, payload []byte) {
		if payloadType != wire.PTNewOrderReq {
			return
		}
		req, err := wire.DecodeNewOrderReq(payload)
		require.NoError(t, err)
		venue.broadcast(fillEvent(req, 10, 556, 1.1))
	}

	in := model.Instruction{ID: "sig-2", Asset: "EURUSD", Side: enum.OrderSideBuy, OppositeLeg: true}
	_, err := e.Place(context.Background(), in, enum.OrderKindMarket, 0)
	require.NoError(t, err)

	sent := venue.sentOfType(wire.PTNewOrderReq)
	require.Len(t, sent, 1)
	req, err := wire.DecodeNewOrderReq(sent[0].payload)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderSideSell, req.Side)
}

func TestMismatchedEventsIgnored(t *testing.T) {
	e, venue := newTestEngine(Option{})
	venue.onSend = func(payloadType uint32, payload []byte) {
		if payloadType != wire.PTNewOrderReq {
			return
		}
		req, err := wire.DecodeNewOrderReq(payload)
		require.NoError(t, err)

		// A near-simultaneous opposite-direction order fills first.
		other := req
		other.Side = req.Side.Opposite()
		venue.broadcast(fillEvent(other, 98, 998, 2.0))
		venue.broadcast(fillEvent(req, 99, 999, 1.5))
	}

	in := model.Instruction{ID: "sig-3", Asset: "EURUSD", Side: enum.OrderSideBuy}
	res, err := e.Place(context.Background(), in, enum.OrderKindMarket, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(999), res.PositionID)
	assert.Equal(t, 1.5, res.ExecPrice)
}

func TestBadVolumeRetryOnce(t *testing.T) {
	e, venue := newTestEngine(Option{})

	var orderCount int
	venue.onSend = func(payloadType uint32, payload []byte) {
		if payloadType != wire.PTNewOrderReq {
			return
		}
		orderCount++
		req, err := wire.DecodeNewOrderReq(payload)
		require.NoError(t, err)

		if orderCount == 1 {
			assert.Equal(t, int64(20000), req.Volume)
			res := wire.ErrorRes{
				Code:        wire.ErrCodeBadVolume,
				Description: "order rejected, maximum allowed volume = 330.00.",
			}
			venue.broadcast(session.Inbound{PayloadType: wire.PTErrorRes, Payload: res.Encode(nil)})
			return
		}
		assert.Equal(t, int64(33000), req.Volume)
		venue.broadcast(fillEvent(req, 11, 557, 1.2))
	}

	in := model.Instruction{ID: "sig-4", Asset: "EURUSD", Side: enum.OrderSideBuy}
	res, err := e.Place(context.Background(), in, enum.OrderKindMarket, 0)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, orderCount, "retry must happen exactly once")
}

func TestBadVolumeRetryFailsHard(t *testing.T) {
	e, venue := newTestEngine(Option{})

	var orderCount int
	venue.onSend = func(payloadType uint32, payload []byte) {
		if payloadType != wire.PTNewOrderReq {
			return
		}
		orderCount++
		res := wire.ErrorRes{
			Code:        wire.ErrCodeBadVolume,
			Description: "order rejected, maximum allowed volume = 330.00.",
		}
		venue.broadcast(session.Inbound{PayloadType: wire.PTErrorRes, Payload: res.Encode(nil)})
	}

	in := model.Instruction{ID: "sig-5", Asset: "EURUSD", Side: enum.OrderSideBuy}
	res, err := e.Place(context.Background(), in, enum.OrderKindMarket, 0)
	assert.ErrorIs(t, err, exception.ErrVenueError)
	assert.False(t, res.Success)
	assert.Equal(t, 2, orderCount)
}

func TestPendingOrderAcceptedReturnsWatching(t *testing.T) {
	e, venue := newTestEngine(Option{})
	venue.onSend = func(payloadType uint32, payload []byte) {
		if payloadType != wire.PTNewOrderReq {
			return
		}
		req, err := wire.DecodeNewOrderReq(payload)
		require.NoError(t, err)
		ev := wire.ExecutionEvent{
			ExecType: enum.ExecTypeOrderAccepted,
			Order: wire.OrderInfo{
				OrderID:   42,
				SymbolID:  req.SymbolID,
				Side:      req.Side,
				OrderKind: req.OrderKind,
				Volume:    req.Volume,
			},
		}
		venue.broadcast(session.Inbound{PayloadType: wire.PTExecutionEvent, Payload: ev.Encode(nil)})
	}

	in := model.Instruction{
		ID:         "sig-6",
		Asset:      "EURUSD",
		Side:       enum.OrderSideBuy,
		EntryPrice: 1.3000,
		StopLoss:   1.2900,
		TakeProfit: 1.3200,
	}
	res, err := e.Place(context.Background(), in, enum.OrderKindLimit, 1.3050)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Pending)
	assert.Equal(t, int64(42), res.OrderID)
	assert.True(t, res.ProtectiveApplied, "pending orders carry protective levels at creation")

	sent := venue.sentOfType(wire.PTNewOrderReq)
	require.Len(t, sent, 1)
	req, err := wire.DecodeNewOrderReq(sent[0].payload)
	require.NoError(t, err)
	assert.Equal(t, 1.3000, req.LimitPrice)
	assert.Equal(t, 1.2900, req.StopLoss)
	assert.Equal(t, 1.3200, req.TakeProfit)
}

func TestPendingOrderRequiresEntryPrice(t *testing.T) {
	e, _ := newTestEngine(Option{})

	in := model.Instruction{ID: "sig-7", Asset: "EURUSD", Side: enum.OrderSideBuy}
	_, err := e.Place(context.Background(), in, enum.OrderKindLimit, 0)
	assert.ErrorIs(t, err, exception.ErrOrderMissingPrice)
}

func TestWrongInstrumentFillIsFatal(t *testing.T) {
	e, venue := newTestEngine(Option{})
	venue.onSend = func(payloadType uint32, payload []byte) {
		if payloadType != wire.PTNewOrderReq {
			return
		}
		req, err := wire.DecodeNewOrderReq(payload)
		require.NoError(t, err)
		ev := fillEvent(req, 12, 558, 1.4)
		decoded, err := wire.DecodeExecutionEvent(ev.Payload)
		require.NoError(t, err)
		decoded.Position.SymbolID = 2 // GBPUSD, not what we asked for
		venue.broadcast(session.Inbound{PayloadType: wire.PTExecutionEvent, Payload: decoded.Encode(nil)})
	}

	in := model.Instruction{ID: "sig-8", Asset: "EURUSD", Side: enum.OrderSideBuy}
	_, err := e.Place(context.Background(), in, enum.OrderKindMarket, 0)
	assert.ErrorIs(t, err, exception.ErrOrderWrongInstrument)
}

func TestMarketFillAppliesProtectiveAfterward(t *testing.T) {
	e, venue := newTestEngine(Option{})
	venue.onSend = func(payloadType uint32, payload []byte) {
		if payloadType != wire.PTNewOrderReq {
			return
		}
		req, err := wire.DecodeNewOrderReq(payload)
		require.NoError(t, err)
		assert.Zero(t, req.StopLoss, "market orders must not carry protective levels at creation")
		assert.Zero(t, req.TakeProfit)
		venue.broadcast(fillEvent(req, 13, 559, 1.25))
	}

	in := model.Instruction{
		ID:         "sig-9",
		Asset:      "EURUSD",
		Side:       enum.OrderSideBuy,
		StopLoss:   1.2400,
		TakeProfit: 1.2600,
	}
	res, err := e.Place(context.Background(), in, enum.OrderKindMarket, 0)
	require.NoError(t, err)
	assert.True(t, res.ProtectiveApplied)

	amends := venue.sentOfType(wire.PTAmendSLTPReq)
	require.Len(t, amends, 1)
	amend, err := wire.DecodeAmendSLTPReq(amends[0].payload)
	require.NoError(t, err)
	assert.Equal(t, int64(559), amend.PositionID)
	assert.Equal(t, 1.2400, amend.StopLoss)
	assert.Equal(t, 1.2600, amend.TakeProfit)
}

func TestBadStopsFallsBackToPartialAmend(t *testing.T) {
	e, venue := newTestEngine(Option{AmendWait: 20 * time.Millisecond})

	var amendCount int
	venue.onSend = func(payloadType uint32, payload []byte) {
		if payloadType != wire.PTAmendSLTPReq {
			return
		}
		amendCount++
		if amendCount <= 2 {
			res := wire.ErrorRes{Code: wire.ErrCodeBadStops, Description: "invalid stops"}
			venue.broadcast(session.Inbound{PayloadType: wire.PTErrorRes, Payload: res.Encode(nil)})
		}
		// Third amend: silence within the window is success.
	}

	applied, err := e.ApplyProtective(context.Background(), 600, 1.24, 1.26)
	require.NoError(t, err)
	assert.True(t, applied)

	amends := venue.sentOfType(wire.PTAmendSLTPReq)
	require.Len(t, amends, 3)

	first, err := wire.DecodeAmendSLTPReq(amends[0].payload)
	require.NoError(t, err)
	assert.Equal(t, 1.24, first.StopLoss)
	assert.Equal(t, 1.26, first.TakeProfit)

	second, err := wire.DecodeAmendSLTPReq(amends[1].payload)
	require.NoError(t, err)
	assert.Equal(t, 1.24, second.StopLoss)
	assert.Zero(t, second.TakeProfit)

	third, err := wire.DecodeAmendSLTPReq(amends[2].payload)
	require.NoError(t, err)
	assert.Zero(t, third.StopLoss)
	assert.Equal(t, 1.26, third.TakeProfit)
}

func TestBadVolumeRejectionEventRetriesOnce(t *testing.T) {
	e, venue := newTestEngine(Option{})

	var orderCount int
	venue.onSend = func(payloadType uint32, payload []byte) {
		if payloadType != wire.PTNewOrderReq {
			return
		}
		orderCount++
		req, err := wire.DecodeNewOrderReq(payload)
		require.NoError(t, err)

		// Some venues report volume rejections through the execution
		// stream instead of an error response; the description still
		// carries the allowed maximum.
		if orderCount == 1 {
			ev := wire.ExecutionEvent{
				ExecType: enum.ExecTypeOrderRejected,
				Order: wire.OrderInfo{
					SymbolID:  req.SymbolID,
					Side:      req.Side,
					OrderKind: req.OrderKind,
					Volume:    req.Volume,
				},
				ErrorCode:        wire.ErrCodeBadVolume,
				ErrorDescription: "order rejected, maximum allowed volume = 330.00.",
			}
			venue.broadcast(session.Inbound{PayloadType: wire.PTExecutionEvent, Payload: ev.Encode(nil)})
			return
		}
		assert.Equal(t, int64(33000), req.Volume)
		venue.broadcast(fillEvent(req, 15, 561, 1.2))
	}

	in := model.Instruction{ID: "sig-11", Asset: "EURUSD", Side: enum.OrderSideBuy}
	res, err := e.Place(context.Background(), in, enum.OrderKindMarket, 0)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, orderCount, "event-delivered volume rejection must retry exactly once")
}

func TestAmendInterruptedIsNotSuccess(t *testing.T) {
	e, _ := newTestEngine(Option{AmendWait: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	applied, err := e.ApplyProtective(ctx, 601, 1.24, 1.26)
	assert.ErrorIs(t, err, exception.ErrProtectiveRejected)
	assert.False(t, applied, "a cut-short amend window must not count as applied")
}

func TestDuplicateFillSettlesOnce(t *testing.T) {
	e, venue := newTestEngine(Option{})
	venue.onSend = func(payloadType uint32, payload []byte) {
		if payloadType != wire.PTNewOrderReq {
			return
		}
		req, err := wire.DecodeNewOrderReq(payload)
		require.NoError(t, err)
		venue.broadcast(fillEvent(req, 14, 560, 1.3))
		venue.broadcast(fillEvent(req, 14, 560, 1.3))
	}

	in := model.Instruction{ID: "sig-10", Asset: "EURUSD", Side: enum.OrderSideBuy}
	res, err := e.Place(context.Background(), in, enum.OrderKindMarket, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(560), res.PositionID)
}
