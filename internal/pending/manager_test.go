package pending

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
	"main/internal/store"
	"main/internal/symbols"
	"main/internal/wire"
	"main/pkg/exception"
)

type placedCall struct {
	in       model.Instruction
	kind     enum.OrderKind
	refPrice float64
}

type fakePlacer struct {
	mu         sync.Mutex
	placed     []placedCall
	result     model.OrderResult
	err        error
	amends     []int64
	amendErr   error
	amendFails int
	// onPlace runs after the call is recorded and before Place returns,
	// simulating venue activity during the placement round trip.
	onPlace func()
}

func (f *fakePlacer) Place(_ context.Context, in model.Instruction, kind enum.OrderKind, refPrice float64) (model.OrderResult, error) {
	f.mu.Lock()
	f.placed = append(f.placed, placedCall{in: in, kind: kind, refPrice: refPrice})
	res, err, hook := f.result, f.err, f.onPlace
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return res, err
}

func (f *fakePlacer) ApplyProtective(_ context.Context, positionID int64, _, _ float64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amends = append(f.amends, positionID)
	if f.amendFails > 0 {
		f.amendFails--
		return false, f.amendErr
	}
	return true, nil
}

func (f *fakePlacer) placedCalls() []placedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]placedCall(nil), f.placed...)
}

func (f *fakePlacer) amendCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.amends...)
}

type fakeVenue struct {
	mu        sync.Mutex
	subs      []chan session.Inbound
	reconcile wire.ReconcileRes
	requests  []uint32
}

func (f *fakeVenue) Subscribe() (<-chan session.Inbound, func()) {
	ch := make(chan session.Inbound, 16)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeVenue) Request(_ context.Context, reqType uint32, _ []byte, _ uint32) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, reqType)
	f.mu.Unlock()
	if reqType == wire.PTReconcileReq {
		return f.reconcile.Encode(nil), nil
	}
	if reqType == wire.PTSubscribeSpotsReq {
		return wire.SubscribeSpotsRes{SubscriptionID: 1}.Encode(nil), nil
	}
	return nil, exception.ErrNoResponse
}

func (f *fakeVenue) requestCount(reqType uint32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rt := range f.requests {
		if rt == reqType {
			n++
		}
	}
	return n
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

type fakeSymbols struct{}

func (fakeSymbols) Resolve(_ context.Context, name string) (symbols.Instrument, error) {
	if name == "EURUSD" {
		return symbols.Instrument{ID: 1, Name: "EURUSD", Digits: 5}, nil
	}
	return symbols.Instrument{}, exception.ErrUnknownSymbol
}

type fakeStore struct {
	mu        sync.Mutex
	processed map[string]bool
	trades    map[int64]*store.TradeRecord
	closes    map[int64]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		processed: make(map[string]bool),
		trades:    make(map[int64]*store.TradeRecord),
		closes:    make(map[int64]string),
	}
}

func (f *fakeStore) IsProcessed(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[id], nil
}

func (f *fakeStore) MarkProcessed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[id] = true
	return nil
}

func (f *fakeStore) InsertTrade(_ context.Context, rec *store.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.trades[rec.PositionID]; ok {
		return nil // idempotent on position id
	}
	cp := *rec
	f.trades[rec.PositionID] = &cp
	return nil
}

func (f *fakeStore) TradeByPositionID(_ context.Context, positionID int64) (*store.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.trades[positionID]
	if !ok {
		return nil, exception.ErrTradeNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) CloseTrade(_ context.Context, positionID int64, exitPrice, _ float64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.trades[positionID]
	if !ok {
		return exception.ErrTradeNotFound
	}
	rec.Status = store.TradeStatusClosed
	rec.ExitPrice = exitPrice
	rec.CloseReason = reason
	f.closes[positionID] = reason
	return nil
}

func (f *fakeStore) tradeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trades)
}

type fakeQueue struct {
	mu    sync.Mutex
	fills []model.Fill
}

func (f *fakeQueue) TryPublish(fill model.Fill) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fills = append(f.fills, fill)
	return nil
}

func (f *fakeQueue) published() []model.Fill {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Fill(nil), f.fills...)
}

type managerFixture struct {
	m      *Manager
	placer *fakePlacer
	venue  *fakeVenue
	store  *fakeStore
	queue  *fakeQueue
}

func newFixture() *managerFixture {
	placer := &fakePlacer{}
	venue := &fakeVenue{}
	st := newFakeStore()
	queue := &fakeQueue{}
	m := NewManager(venue, placer, fakeSymbols{}, st, nil, queue, Option{
		AccountID:  77,
		RetryDelay: 5 * time.Millisecond,
	})
	return &managerFixture{m: m, placer: placer, venue: venue, store: st, queue: queue}
}

func TestHandleImmediateFill(t *testing.T) {
	fx := newFixture()
	fx.placer.result = model.OrderResult{
		Success: true, OrderID: 9, PositionID: 555, ExecPrice: 1.2345, Volume: 20000,
	}

	in := model.Instruction{ID: "sig-1", Asset: "EURUSD", Side: enum.OrderSideBuy}
	res, err := fx.m.Handle(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(555), res.PositionID)

	rec, err := fx.store.TradeByPositionID(context.Background(), 555)
	require.NoError(t, err)
	assert.Equal(t, "sig-1", rec.InstructionID)
	assert.Equal(t, "BUY", rec.Side)
	assert.Equal(t, 1.2345, rec.EntryPrice)

	processed, _ := fx.store.IsProcessed(context.Background(), "sig-1")
	assert.True(t, processed)

	fills := fx.queue.published()
	require.Len(t, fills, 1)
	assert.Equal(t, int64(555), fills[0].PositionID)
}

func TestHandleDuplicateLegSuppressed(t *testing.T) {
	fx := newFixture()
	fx.placer.result = model.OrderResult{Success: true, PositionID: 1}

	in := model.Instruction{ID: "sig-2", Asset: "EURUSD", Side: enum.OrderSideBuy}
	_, err := fx.m.Handle(context.Background(), in)
	require.NoError(t, err)

	_, err = fx.m.Handle(context.Background(), in)
	assert.ErrorIs(t, err, exception.ErrOrderDuplicate)

	// The opposite leg of the same instruction is tracked independently.
	opposite := in
	opposite.OppositeLeg = true
	fx.placer.result = model.OrderResult{Success: true, PositionID: 2}
	_, err = fx.m.Handle(context.Background(), opposite)
	require.NoError(t, err)

	assert.Len(t, fx.placer.placedCalls(), 2)
}

func TestHandleDurableSuppressionOriginalLegOnly(t *testing.T) {
	fx := newFixture()
	require.NoError(t, fx.store.MarkProcessed(context.Background(), "sig-3"))
	fx.placer.result = model.OrderResult{Success: true, PositionID: 3}

	in := model.Instruction{ID: "sig-3", Asset: "EURUSD", Side: enum.OrderSideBuy}
	_, err := fx.m.Handle(context.Background(), in)
	assert.ErrorIs(t, err, exception.ErrOrderDuplicate)

	opposite := in
	opposite.OppositeLeg = true
	_, err = fx.m.Handle(context.Background(), opposite)
	require.NoError(t, err, "durable suppression only applies to the original leg")
}

func TestHandleFailedPlacementAllowsRetry(t *testing.T) {
	fx := newFixture()
	fx.placer.err = exception.ErrOrderNoExecutionEvent

	in := model.Instruction{ID: "sig-4", Asset: "EURUSD", Side: enum.OrderSideBuy}
	_, err := fx.m.Handle(context.Background(), in)
	require.Error(t, err)

	fx.placer.err = nil
	fx.placer.result = model.OrderResult{Success: true, PositionID: 4}
	_, err = fx.m.Handle(context.Background(), in)
	require.NoError(t, err, "a failed leg must not stay suppressed")
}

func TestHandlePassesReconcileReferencePrice(t *testing.T) {
	fx := newFixture()
	fx.venue.reconcile = wire.ReconcileRes{
		AccountID: 77,
		Positions: []wire.PositionInfo{{PositionID: 1, SymbolID: 1, Price: 1.3050, Volume: 1000}},
	}
	fx.placer.result = model.OrderResult{Success: true, PositionID: 5}

	in := model.Instruction{ID: "sig-5", Asset: "EURUSD", Side: enum.OrderSideBuy, EntryPrice: 1.3000}
	_, err := fx.m.Handle(context.Background(), in)
	require.NoError(t, err)

	calls := fx.placer.placedCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, 1.3050, calls[0].refPrice)
	assert.Equal(t, enum.OrderKindLimit, calls[0].kind, "buy entry below reference infers limit")
}

func TestSpotTickBecomesReferencePrice(t *testing.T) {
	fx := newFixture()
	fx.placer.result = model.OrderResult{Success: true, PositionID: 6}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fx.m.Run(ctx)

	require.Eventually(t, func() bool {
		spot := wire.SpotEvent{SymbolID: 1, Bid: 1.3040, Ask: 1.3060}
		fx.venue.broadcast(session.Inbound{PayloadType: wire.PTSpotEvent, Payload: spot.Encode(nil)})

		fx.m.mu.Lock()
		_, ok := fx.m.spots[1]
		fx.m.mu.Unlock()
		return ok
	}, time.Second, 5*time.Millisecond)

	in := model.Instruction{ID: "sig-6", Asset: "EURUSD", Side: enum.OrderSideBuy, EntryPrice: 1.3000}
	_, err := fx.m.Handle(context.Background(), in)
	require.NoError(t, err)

	calls := fx.placer.placedCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, 1.3050, calls[0].refPrice, "mid of bid/ask")
}

func TestSpotSubscriptionRequestedOncePerSymbol(t *testing.T) {
	fx := newFixture()
	fx.placer.result = model.OrderResult{Success: true, PositionID: 10}

	first := model.Instruction{ID: "sig-a", Asset: "EURUSD", Side: enum.OrderSideBuy}
	second := model.Instruction{ID: "sig-b", Asset: "EURUSD", Side: enum.OrderSideSell}

	_, err := fx.m.Handle(context.Background(), first)
	require.NoError(t, err)
	fx.placer.result = model.OrderResult{Success: true, PositionID: 11}
	_, err = fx.m.Handle(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, 1, fx.venue.requestCount(wire.PTSubscribeSpotsReq))
}

func TestWatchedOrderFillPath(t *testing.T) {
	fx := newFixture()
	fx.placer.result = model.OrderResult{Success: true, Pending: true, OrderID: 42}

	in := model.Instruction{
		ID:         "sig-7",
		Asset:      "EURUSD",
		Side:       enum.OrderSideBuy,
		EntryPrice: 1.3000,
		StopLoss:   1.2900,
		RawText:    "buy limit EURUSD",
	}
	res, err := fx.m.Handle(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.Equal(t, 1, fx.m.WatchedCount())
	assert.Zero(t, fx.store.tradeCount(), "nothing persisted before the fill")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fx.m.Run(ctx)

	ev := wire.ExecutionEvent{
		ExecType: enum.ExecTypeOrderFilled,
		Order:    wire.OrderInfo{OrderID: 42, SymbolID: 1, Side: enum.OrderSideBuy, OrderKind: enum.OrderKindLimit, Volume: 10000},
		Position: wire.PositionInfo{PositionID: 700, SymbolID: 1, Price: 1.3000},
	}
	payload := ev.Encode(nil)

	require.Eventually(t, func() bool {
		fx.venue.broadcast(session.Inbound{PayloadType: wire.PTExecutionEvent, Payload: payload})
		return fx.m.WatchedCount() == 0 && fx.store.tradeCount() == 1
	}, time.Second, 5*time.Millisecond)

	// Duplicate fill events for the same order id are no-ops.
	fx.venue.broadcast(session.Inbound{PayloadType: wire.PTExecutionEvent, Payload: payload})
	fx.venue.broadcast(session.Inbound{PayloadType: wire.PTExecutionEvent, Payload: payload})
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, fx.store.tradeCount(), "exactly one trade row per position id")
	assert.Len(t, fx.queue.published(), 1)

	// Pending orders without creation-time protective flags get the amend
	// on the fill path.
	amends := fx.placer.amendCalls()
	require.NotEmpty(t, amends)
	assert.Equal(t, int64(700), amends[0])
}

func TestFillBeforeWatchRegistrationStillSettles(t *testing.T) {
	fx := newFixture()
	fx.placer.result = model.OrderResult{Success: true, Pending: true, OrderID: 42}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fx.m.Run(ctx)

	ev := wire.ExecutionEvent{
		ExecType: enum.ExecTypeOrderFilled,
		Order:    wire.OrderInfo{OrderID: 42, SymbolID: 1, Side: enum.OrderSideBuy, OrderKind: enum.OrderKindLimit, Volume: 10000},
		Position: wire.PositionInfo{PositionID: 700, SymbolID: 1, Price: 1.3000},
	}
	payload := ev.Encode(nil)

	// The venue fills the order during the placement round trip, so the
	// event stream delivers the fill before Handle can register a watch.
	fx.placer.onPlace = func() {
		require.Eventually(t, func() bool {
			fx.venue.broadcast(session.Inbound{PayloadType: wire.PTExecutionEvent, Payload: payload})
			fx.m.mu.Lock()
			_, stashed := fx.m.earlyFills[42]
			fx.m.mu.Unlock()
			return stashed
		}, time.Second, 5*time.Millisecond)
	}

	in := model.Instruction{
		ID:         "sig-9",
		Asset:      "EURUSD",
		Side:       enum.OrderSideBuy,
		EntryPrice: 1.3000,
		StopLoss:   1.2900,
		RawText:    "buy limit EURUSD",
	}
	res, err := fx.m.Handle(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Pending)

	assert.Equal(t, 0, fx.m.WatchedCount(), "early fill must not leave a watch behind")
	assert.Equal(t, 1, fx.store.tradeCount())

	rec, err := fx.store.TradeByPositionID(context.Background(), 700)
	require.NoError(t, err)
	assert.Equal(t, "sig-9", rec.InstructionID)

	amends := fx.placer.amendCalls()
	require.NotEmpty(t, amends, "protective levels still apply on the early-fill path")
	assert.Equal(t, int64(700), amends[0])
	assert.Len(t, fx.queue.published(), 1)
}

func TestWatchedFillRetriesProtectiveOnce(t *testing.T) {
	fx := newFixture()
	fx.placer.result = model.OrderResult{Success: true, Pending: true, OrderID: 43}
	fx.placer.amendErr = exception.ErrProtectiveRejected
	fx.placer.amendFails = 1

	in := model.Instruction{
		ID:         "sig-8",
		Asset:      "EURUSD",
		Side:       enum.OrderSideBuy,
		EntryPrice: 1.3000,
		StopLoss:   1.2900,
		RawText:    "buy limit EURUSD",
	}
	_, err := fx.m.Handle(context.Background(), in)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fx.m.Run(ctx)

	ev := wire.ExecutionEvent{
		ExecType: enum.ExecTypeOrderFilled,
		Order:    wire.OrderInfo{OrderID: 43, SymbolID: 1, Side: enum.OrderSideBuy, OrderKind: enum.OrderKindLimit, Volume: 10000},
		Position: wire.PositionInfo{PositionID: 701, SymbolID: 1, Price: 1.3000},
	}
	require.Eventually(t, func() bool {
		fx.venue.broadcast(session.Inbound{PayloadType: wire.PTExecutionEvent, Payload: ev.Encode(nil)})
		return len(fx.placer.amendCalls()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestCloseEventUpdatesTrade(t *testing.T) {
	fx := newFixture()
	require.NoError(t, fx.store.InsertTrade(context.Background(), &store.TradeRecord{
		PositionID: 800,
		Symbol:     "EURUSD",
		Side:       "BUY",
		EntryPrice: 1.2500,
		Volume:     10000,
		Status:     store.TradeStatusOpen,
		Notes:      "sl=1.2400 tp=1.2600",
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fx.m.Run(ctx)

	ev := wire.ExecutionEvent{
		ExecType: enum.ExecTypePositionClosed,
		Position: wire.PositionInfo{PositionID: 800, SymbolID: 1, Price: 1.2600, Profit: 10},
	}
	require.Eventually(t, func() bool {
		fx.venue.broadcast(session.Inbound{PayloadType: wire.PTExecutionEvent, Payload: ev.Encode(nil)})
		fx.store.mu.Lock()
		reason, ok := fx.store.closes[800]
		fx.store.mu.Unlock()
		return ok && reason == store.CloseReasonTarget
	}, time.Second, 5*time.Millisecond)
}

func TestCloseEventForUnknownPositionIgnored(t *testing.T) {
	fx := newFixture()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fx.m.Run(ctx)

	ev := wire.ExecutionEvent{
		ExecType: enum.ExecTypeStopLossTriggered,
		Position: wire.PositionInfo{PositionID: 999, Price: 1.1},
	}
	fx.venue.broadcast(session.Inbound{PayloadType: wire.PTExecutionEvent, Payload: ev.Encode(nil)})
	time.Sleep(30 * time.Millisecond)

	fx.store.mu.Lock()
	defer fx.store.mu.Unlock()
	assert.Empty(t, fx.store.closes)
}
