package pending

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/notify"
	"main/internal/session"
	"main/internal/store"
	"main/internal/symbols"
	"main/internal/wire"
	"main/pkg/exception"
)

const (
	defaultRetryDelay = 2 * time.Second

	// earlyFillTTL bounds how long a fill may wait for its watched-order
	// registration before it is discarded as noise.
	earlyFillTTL = time.Minute
)

// Placer is the execution-engine surface the manager drives.
type Placer interface {
	Place(ctx context.Context, in model.Instruction, kind enum.OrderKind, refPrice float64) (model.OrderResult, error)
	ApplyProtective(ctx context.Context, positionID int64, stopLoss, takeProfit float64) (bool, error)
}

// Venue is the slice of the session layer the manager observes.
type Venue interface {
	Subscribe() (<-chan session.Inbound, func())
	Request(ctx context.Context, reqType uint32, payload []byte, wantType uint32) ([]byte, error)
}

// SymbolSource resolves asset names.
type SymbolSource interface {
	Resolve(ctx context.Context, name string) (symbols.Instrument, error)
}

// Storer is the durable-store surface the manager writes through.
type Storer interface {
	IsProcessed(ctx context.Context, instructionID string) (bool, error)
	MarkProcessed(ctx context.Context, instructionID string) error
	InsertTrade(ctx context.Context, rec *store.TradeRecord) error
	TradeByPositionID(ctx context.Context, positionID int64) (*store.TradeRecord, error)
	CloseTrade(ctx context.Context, positionID int64, exitPrice, venueProfit float64, reason string) error
}

// Publisher hands completed fills to downstream collaborators.
type Publisher interface {
	TryPublish(fill model.Fill) error
}

// Option configures the manager.
type Option struct {
	AccountID int64
	// RetryDelay is the pause before the one protective-amend retry on
	// the watched-fill path.
	RetryDelay time.Duration
}

// earlyFill is a fill event observed before Handle registered the watched
// order it belongs to. The venue can fill a pending order between order
// acceptance and the placement call returning.
type earlyFill struct {
	ev     wire.ExecutionEvent
	seenAt time.Time
}

// watchedOrder is one order accepted by the venue but not yet filled.
type watchedOrder struct {
	instruction        model.Instruction
	side               enum.OrderSide
	kind               enum.OrderKind
	symbolID           int64
	asset              string
	protectiveAtCreate bool
	createdAt          time.Time
}

// Manager accepts trading instructions, decides order type, delegates
// placement, and tracks pending orders to completion through the
// unsolicited-event stream.
type Manager struct {
	venue    Venue
	placer   Placer
	symbols  SymbolSource
	store    Storer
	notifier notify.Notifier
	queue    Publisher
	opt      Option

	mu         sync.Mutex
	seen       map[model.LegKey]struct{}
	watched    map[int64]watchedOrder
	earlyFills map[int64]earlyFill
	spots      map[int64]float64
	subscribed map[int64]struct{}
}

// NewManager wires the manager.
func NewManager(venue Venue, placer Placer, sym SymbolSource, st Storer, notifier notify.Notifier, queue Publisher, opt Option) *Manager {
	if opt.RetryDelay <= 0 {
		opt.RetryDelay = defaultRetryDelay
	}
	return &Manager{
		venue:      venue,
		placer:     placer,
		symbols:    sym,
		store:      st,
		notifier:   notifier,
		queue:      queue,
		opt:        opt,
		seen:       make(map[model.LegKey]struct{}),
		watched:    make(map[int64]watchedOrder),
		earlyFills: make(map[int64]earlyFill),
		spots:      make(map[int64]float64),
		subscribed: make(map[int64]struct{}),
	}
}

// Handle runs one instruction leg to an order result. Duplicate legs are
// rejected; the original and opposite leg of the same instruction are
// tracked independently.
func (m *Manager) Handle(ctx context.Context, in model.Instruction) (model.OrderResult, error) {
	leg := in.Leg()

	m.mu.Lock()
	if _, ok := m.seen[leg]; ok {
		m.mu.Unlock()
		return failed(exception.ErrOrderDuplicate), exception.ErrOrderDuplicate
	}
	m.seen[leg] = struct{}{}
	m.mu.Unlock()

	if !in.OppositeLeg {
		processed, err := m.store.IsProcessed(ctx, in.ID)
		if err != nil {
			m.forget(leg)
			err = errors.Wrap(err, "check processed instruction")
			return failed(err), err
		}
		if processed {
			return failed(exception.ErrOrderDuplicate), exception.ErrOrderDuplicate
		}
	}

	inst, err := m.symbols.Resolve(ctx, in.Asset)
	if err != nil {
		m.forget(leg)
		return failed(err), err
	}

	m.ensureSpotSubscription(ctx, inst.ID)
	ref := m.referencePrice(ctx, inst.ID)
	kind := inferKind(in, ref)

	res, err := m.placer.Place(ctx, in, kind, ref)
	if err != nil {
		m.forget(leg)
		m.notify(ctx, fmt.Sprintf("order failed: %s %s, %v", in.Asset, in.Side, err))
		return res, err
	}

	side := in.Side
	if in.OppositeLeg {
		side = side.Opposite()
	}

	if res.Pending {
		w := watchedOrder{
			instruction:        in,
			side:               side,
			kind:               kind,
			symbolID:           inst.ID,
			asset:              inst.Name,
			protectiveAtCreate: res.ProtectiveApplied,
			createdAt:          time.Now(),
		}

		// The fill can race the placement response: register under the
		// same lock that stashes early fills, and replay a stashed one
		// instead of watching.
		m.mu.Lock()
		ev, filled := m.takeEarlyFillLocked(res.OrderID)
		if !filled {
			m.watched[res.OrderID] = w
		}
		m.mu.Unlock()

		if filled {
			m.settleFill(ctx, w, ev)
			return res, nil
		}
		m.notify(ctx, fmt.Sprintf("%s %s %s accepted, awaiting fill", inst.Name, side, kind))
		return res, nil
	}

	m.completeFill(ctx, in, side, inst.Name, res.PositionID, res.ExecPrice, res.Volume)
	m.notify(ctx, fmt.Sprintf("%s %s filled @ %g", inst.Name, side, res.ExecPrice))
	return res, nil
}

// Run observes the unsolicited-event stream: price ticks for reference
// prices, fills for watched orders, and position closes.
func (m *Manager) Run(ctx context.Context) {
	events, cancel := m.venue.Subscribe()
	defer cancel()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case in, ok := <-events:
			if !ok {
				return
			}
			m.handleInbound(ctx, in)
		}
	}
}

// WatchedCount reports how many orders still await a fill.
func (m *Manager) WatchedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watched)
}

func (m *Manager) handleInbound(ctx context.Context, in session.Inbound) {
	switch in.PayloadType {
	case wire.PTSpotEvent:
		spot, err := wire.DecodeSpotEvent(in.Payload)
		if err != nil {
			return
		}
		m.mu.Lock()
		m.spots[spot.SymbolID] = midPrice(spot)
		m.mu.Unlock()

	case wire.PTExecutionEvent:
		ev, err := wire.DecodeExecutionEvent(in.Payload)
		if err != nil {
			logs.Warnf("drop malformed execution event, err: %+v", err)
			return
		}
		switch {
		case ev.ExecType.IsFill():
			m.onFillEvent(ctx, ev)
		case isCloseEventName(ev.ExecType.String()):
			m.onCloseEvent(ctx, ev)
		}
	}
}

// onFillEvent settles a watched order. Removal and callback are atomic
// with respect to duplicate events: the second fill for the same order id
// finds nothing and is a no-op. A fill with no watched entry yet is
// stashed so Handle can replay it once the registration lands.
func (m *Manager) onFillEvent(ctx context.Context, ev wire.ExecutionEvent) {
	m.mu.Lock()
	w, ok := m.watched[ev.Order.OrderID]
	if ok {
		delete(m.watched, ev.Order.OrderID)
	} else if ev.Order.OrderID != 0 {
		m.stashEarlyFillLocked(ev)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.settleFill(ctx, w, ev)
}

// settleFill applies protective levels and persists one fill for an order
// that was accepted as pending.
func (m *Manager) settleFill(ctx context.Context, w watchedOrder, ev wire.ExecutionEvent) {
	positionID := ev.Position.PositionID
	price := ev.Position.Price
	in := w.instruction

	applied := w.protectiveAtCreate
	if !applied && (in.StopLoss != 0 || in.TakeProfit != 0) {
		var err error
		applied, err = m.placer.ApplyProtective(ctx, positionID, in.StopLoss, in.TakeProfit)
		if err != nil {
			time.Sleep(m.opt.RetryDelay)
			applied, err = m.placer.ApplyProtective(ctx, positionID, in.StopLoss, in.TakeProfit)
			if err != nil {
				logs.Errorf("protective levels for position %d, err: %+v", positionID, err)
			}
		}
	}

	m.completeFill(ctx, in, w.side, w.asset, positionID, price, ev.Order.Volume)
	m.notify(ctx, fmt.Sprintf("%s %s %s filled @ %g (protective=%t)", w.asset, w.side, w.kind, price, applied))
}

func (m *Manager) onCloseEvent(ctx context.Context, ev wire.ExecutionEvent) {
	positionID := ev.Position.PositionID
	if positionID == 0 {
		return
	}

	rec, err := m.store.TradeByPositionID(ctx, positionID)
	if err != nil {
		if errors.Is(err, exception.ErrTradeNotFound) {
			return
		}
		logs.Errorf("look up trade for position %d, err: %+v", positionID, err)
		return
	}
	if rec.Status == store.TradeStatusClosed {
		return
	}

	reason := classifyClose(ev.ExecType.String(), rec.Notes, ev.Position.Price)
	if err := m.store.CloseTrade(ctx, positionID, ev.Position.Price, ev.Position.Profit, reason); err != nil {
		logs.Errorf("close trade for position %d, err: %+v", positionID, err)
		return
	}
	m.notify(ctx, fmt.Sprintf("position %d closed (%s) @ %g", positionID, reason, ev.Position.Price))
}

// completeFill persists the trade, marks the source instruction processed
// on the original leg, and hands the fill downstream.
func (m *Manager) completeFill(ctx context.Context, in model.Instruction, side enum.OrderSide, asset string, positionID int64, price float64, volume int64) {
	rec := &store.TradeRecord{
		PositionID:    positionID,
		InstructionID: in.ID,
		Symbol:        asset,
		Side:          side.String(),
		EntryPrice:    price,
		Volume:        volume,
		Status:        store.TradeStatusOpen,
		Notes:         buildNotes(in),
		OpenedAt:      time.Now(),
	}
	if err := m.store.InsertTrade(ctx, rec); err != nil {
		logs.Errorf("persist trade for position %d, err: %+v", positionID, err)
	}

	if !in.OppositeLeg {
		if err := m.store.MarkProcessed(ctx, in.ID); err != nil {
			logs.Errorf("mark instruction %s processed, err: %+v", in.ID, err)
		}
	}

	fill := model.Fill{
		InstructionID: in.ID,
		PositionID:    positionID,
		Asset:         asset,
		Side:          side,
		Price:         price,
		Volume:        volume,
		FilledAt:      time.Now(),
	}
	if err := m.queue.TryPublish(fill); err != nil {
		logs.Warnf("downstream queue rejected fill for position %d, err: %+v", positionID, err)
	}
}

// referencePrice returns the latest known price for the instrument: the
// cached spot tick when one has been seen, otherwise the price of an open
// position on the instrument from a reconcile round trip. Zero when
// neither exists.
func (m *Manager) referencePrice(ctx context.Context, symbolID int64) float64 {
	m.mu.Lock()
	price, ok := m.spots[symbolID]
	m.mu.Unlock()
	if ok {
		return price
	}

	req := wire.ReconcileReq{AccountID: m.opt.AccountID}
	payload, err := m.venue.Request(ctx, wire.PTReconcileReq, req.Encode(nil), wire.PTReconcileRes)
	if err != nil {
		logs.Warnf("reconcile for reference price, err: %+v", err)
		return 0
	}
	res, err := wire.DecodeReconcileRes(payload)
	if err != nil {
		logs.Warnf("decode reconcile response, err: %+v", err)
		return 0
	}
	for _, pos := range res.Positions {
		if pos.SymbolID == symbolID && pos.Price != 0 {
			return pos.Price
		}
	}
	return 0
}

// ensureSpotSubscription requests price ticks for the instrument once.
// Best effort: inference falls back to reconcile prices without ticks.
func (m *Manager) ensureSpotSubscription(ctx context.Context, symbolID int64) {
	m.mu.Lock()
	_, done := m.subscribed[symbolID]
	if !done {
		m.subscribed[symbolID] = struct{}{}
	}
	m.mu.Unlock()
	if done {
		return
	}

	req := wire.SubscribeSpotsReq{AccountID: m.opt.AccountID, SymbolID: symbolID}
	if _, err := m.venue.Request(ctx, wire.PTSubscribeSpotsReq, req.Encode(nil), wire.PTSubscribeSpotsRes); err != nil {
		logs.Warnf("spot subscription for symbol %d, err: %+v", symbolID, err)
	}
}

// stashEarlyFillLocked keeps a fill whose watched-order registration has
// not happened yet. Stale entries are pruned on every insert; fills for
// orders this process never placed age out the same way.
func (m *Manager) stashEarlyFillLocked(ev wire.ExecutionEvent) {
	now := time.Now()
	for id, ef := range m.earlyFills {
		if now.Sub(ef.seenAt) > earlyFillTTL {
			delete(m.earlyFills, id)
		}
	}
	m.earlyFills[ev.Order.OrderID] = earlyFill{ev: ev, seenAt: now}
}

func (m *Manager) takeEarlyFillLocked(orderID int64) (wire.ExecutionEvent, bool) {
	ef, ok := m.earlyFills[orderID]
	if !ok {
		return wire.ExecutionEvent{}, false
	}
	delete(m.earlyFills, orderID)
	if time.Since(ef.seenAt) > earlyFillTTL {
		return wire.ExecutionEvent{}, false
	}
	return ef.ev, true
}

func (m *Manager) forget(leg model.LegKey) {
	m.mu.Lock()
	delete(m.seen, leg)
	m.mu.Unlock()
}

func (m *Manager) notify(ctx context.Context, text string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, text); err != nil {
		logs.Warnf("notification failed, err: %+v", err)
	}
}

func midPrice(spot wire.SpotEvent) float64 {
	switch {
	case spot.Bid != 0 && spot.Ask != 0:
		return (spot.Bid + spot.Ask) / 2
	case spot.Bid != 0:
		return spot.Bid
	default:
		return spot.Ask
	}
}

func buildNotes(in model.Instruction) string {
	parts := make([]string, 0, 3)
	if in.StopLoss != 0 {
		parts = append(parts, fmt.Sprintf("sl=%g", in.StopLoss))
	}
	if in.TakeProfit != 0 {
		parts = append(parts, fmt.Sprintf("tp=%g", in.TakeProfit))
	}
	if in.OppositeLeg {
		parts = append(parts, "leg=opposite")
	}
	return strings.Join(parts, " ")
}

func failed(err error) model.OrderResult {
	return model.OrderResult{Reason: err.Error()}
}
