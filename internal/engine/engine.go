package engine

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/session"
	"main/internal/symbols"
	"main/internal/wire"
	"main/pkg/exception"
	"main/pkg/scanner"
)

const (
	defaultFillWait  = 10 * time.Second
	defaultAmendWait = 3 * time.Second
)

// Venue is the slice of the session layer the engine drives. Order
// outcomes arrive as unsolicited events, not correlated responses, so the
// engine sends fire-and-forget and watches the broadcast stream.
type Venue interface {
	Send(payloadType uint32, payload []byte) error
	Subscribe() (<-chan session.Inbound, func())
}

// SymbolSource is the directory surface the engine reads through.
type SymbolSource interface {
	Resolve(ctx context.Context, name string) (symbols.Instrument, error)
	ByID(ctx context.Context, id int64) (symbols.Instrument, error)
	Constraints(ctx context.Context, id int64) (symbols.Constraints, error)
}

// Option configures the engine.
type Option struct {
	AccountID   int64
	DefaultLots float64
	RiskAmount  float64
	// FillWait bounds the wait for the execution event after sending an
	// order.
	FillWait time.Duration
	// AmendWait bounds the error watch after a protective amend; some
	// venue configurations never acknowledge amends, so silence within
	// the window counts as success.
	AmendWait time.Duration
	Metrics   *obs.Metrics
}

// Engine constructs, sends, and settles orders against the venue.
type Engine struct {
	venue   Venue
	symbols SymbolSource
	opt     Option
}

// New creates an engine.
func New(venue Venue, sym SymbolSource, opt Option) *Engine {
	if opt.FillWait <= 0 {
		opt.FillWait = defaultFillWait
	}
	if opt.AmendWait <= 0 {
		opt.AmendWait = defaultAmendWait
	}
	return &Engine{venue: venue, symbols: sym, opt: opt}
}

// outcome is the settled result of one submission.
type outcome struct {
	filled     bool
	accepted   bool
	orderID    int64
	positionID int64
	symbolID   int64
	price      float64
	volume     int64
}

// Place runs one order through construction, submission, and settlement.
// refPrice is the latest known market price for the instrument, zero when
// no tick has been seen; synthetic risk sizing falls back to it when the
// instruction carries no entry price.
func (e *Engine) Place(ctx context.Context, in model.Instruction, kind enum.OrderKind, refPrice float64) (model.OrderResult, error) {
	started := time.Now()

	inst, err := e.symbols.Resolve(ctx, in.Asset)
	if err != nil {
		return failed(err), err
	}

	side := in.Side
	if in.OppositeLeg {
		side = side.Opposite()
	}

	if kind.IsPending() && in.EntryPrice == 0 {
		return failed(exception.ErrOrderMissingPrice), exception.ErrOrderMissingPrice
	}

	cons, err := e.symbols.Constraints(ctx, inst.ID)
	if err != nil {
		err = errors.Wrap(err, "fetch constraints")
		return failed(err), err
	}

	volume, err := SizeVolume(cons, inst.Synthetic, e.opt.RiskAmount, stopDistanceTicks(in, refPrice, cons), e.opt.DefaultLots)
	if err != nil {
		return failed(err), err
	}

	req := wire.NewOrderReq{
		AccountID: e.opt.AccountID,
		SymbolID:  inst.ID,
		OrderKind: kind,
		Side:      side,
		Volume:    volume,
		Label:     in.ID,
	}
	switch kind {
	case enum.OrderKindLimit:
		req.LimitPrice = in.EntryPrice
	case enum.OrderKindStop:
		req.StopPrice = in.EntryPrice
	}

	// The venue rejects absolute stop/target values on immediate-execution
	// orders; market orders get them through an amend after the fill.
	protectiveAtCreation := false
	if kind.IsPending() {
		req.StopLoss = in.StopLoss
		req.TakeProfit = in.TakeProfit
		protectiveAtCreation = in.StopLoss != 0 || in.TakeProfit != 0
	}

	logs.Infof("placing %s %s %s volume=%d", inst.Name, side, kind, req.Volume)

	out, err := e.submit(ctx, req)
	if err != nil {
		if retryVolume, ok := badVolumeRetry(err, cons); ok {
			logs.Warnf("volume %d rejected, retrying once with venue maximum %d", req.Volume, retryVolume)
			req.Volume = retryVolume
			out, err = e.submit(ctx, req)
		}
	}
	if err != nil {
		return failed(err), err
	}

	if out.accepted && !out.filled {
		return model.OrderResult{
			Success:           true,
			Pending:           true,
			OrderID:           out.orderID,
			Volume:            req.Volume,
			ProtectiveApplied: protectiveAtCreation,
		}, nil
	}

	if err := e.crossCheck(ctx, inst, out.symbolID); err != nil {
		return failed(err), err
	}

	applied := protectiveAtCreation
	if !applied && (in.StopLoss != 0 || in.TakeProfit != 0) {
		applied, err = e.ApplyProtective(ctx, out.positionID, in.StopLoss, in.TakeProfit)
		if err != nil {
			logs.Errorf("protective levels for position %d, err: %+v", out.positionID, err)
		}
	}

	e.opt.Metrics.ObserveOrderFlow(time.Since(started))
	return model.OrderResult{
		Success:           true,
		OrderID:           out.orderID,
		PositionID:        out.positionID,
		ExecPrice:         out.price,
		Volume:            out.volume,
		ProtectiveApplied: applied,
	}, nil
}

// submit sends one order and waits for its settled outcome. Matching runs
// on (symbol id, side, order kind) so a near-simultaneous opposite order
// never claims this order's event.
func (e *Engine) submit(ctx context.Context, req wire.NewOrderReq) (outcome, error) {
	events, cancel := e.venue.Subscribe()
	defer cancel()

	fl := newFlow()
	if err := fl.advance(OrderStateSent); err != nil {
		return outcome{}, err
	}
	if err := e.venue.Send(wire.PTNewOrderReq, req.Encode(nil)); err != nil {
		return outcome{}, errors.Wrap(err, "send order")
	}

	timer := time.NewTimer(e.opt.FillWait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logs.Infof("order wait canceled by caller")
			return outcome{}, exception.ErrOrderNoExecutionEvent
		case <-timer.C:
			logs.Warnf("no execution event within %s", e.opt.FillWait)
			return outcome{}, exception.ErrOrderNoExecutionEvent
		case in, ok := <-events:
			if !ok {
				return outcome{}, exception.ErrOrderNoExecutionEvent
			}
			out, settled, err := e.settle(fl, req, in)
			if !settled {
				continue
			}
			return out, err
		}
	}
}

// settle applies one inbound message to the order flow. settled reports
// whether the order reached a terminal outcome for the caller.
func (e *Engine) settle(fl *flow, req wire.NewOrderReq, in session.Inbound) (outcome, bool, error) {
	switch in.PayloadType {
	case wire.PTErrorRes:
		res := wire.ScanErrorFields(in.Payload)
		return outcome{}, true, &session.VenueError{Code: res.Code, Description: res.Description}

	case wire.PTExecutionEvent:
		ev, err := wire.DecodeExecutionEvent(in.Payload)
		if err != nil {
			logs.Warnf("drop malformed execution event, err: %+v", err)
			return outcome{}, false, nil
		}
		if ev.Order.SymbolID != req.SymbolID || ev.Order.Side != req.Side || ev.Order.OrderKind != req.OrderKind {
			return outcome{}, false, nil
		}

		switch {
		case ev.ExecType.IsFill():
			if fl.state == OrderStateSent {
				if err := fl.advance(OrderStateAccepted); err != nil {
					return outcome{}, false, nil
				}
			}
			if err := fl.advance(OrderStateFilled); err != nil {
				return outcome{}, false, nil
			}
			symbolID := ev.Order.SymbolID
			if ev.Position.SymbolID != 0 {
				symbolID = ev.Position.SymbolID
			}
			return outcome{
				filled:     true,
				accepted:   true,
				orderID:    ev.Order.OrderID,
				positionID: ev.Position.PositionID,
				symbolID:   symbolID,
				price:      ev.Position.Price,
				volume:     ev.Order.Volume,
			}, true, nil

		case ev.ExecType == enum.ExecTypeOrderAccepted:
			if err := fl.advance(OrderStateAccepted); err != nil {
				return outcome{}, false, nil
			}
			if !req.OrderKind.IsPending() {
				// Market order, fill still to come.
				return outcome{}, false, nil
			}
			if err := fl.advance(OrderStateWatching); err != nil {
				return outcome{}, false, nil
			}
			return outcome{
				accepted: true,
				orderID:  ev.Order.OrderID,
				symbolID: ev.Order.SymbolID,
				volume:   ev.Order.Volume,
			}, true, nil

		case ev.ExecType == enum.ExecTypeOrderRejected:
			if err := fl.advance(OrderStateRejected); err != nil {
				return outcome{}, false, nil
			}
			if ev.ErrorCode != "" {
				// The description rides along so rejection reasons carried
				// inside it (venue volume limits) stay actionable.
				return outcome{}, true, &session.VenueError{Code: ev.ErrorCode, Description: ev.ErrorDescription}
			}
			return outcome{}, true, exception.ErrOrderRejected
		}
		return outcome{}, false, nil

	default:
		return outcome{}, false, nil
	}
}

// crossCheck resolves the executed instrument id back to a name and
// compares it against the requested one. A mismatch means the venue filled
// us on the wrong instrument, a safety violation, never retried.
func (e *Engine) crossCheck(ctx context.Context, requested symbols.Instrument, executedID int64) error {
	if executedID == 0 {
		return nil
	}
	executed, err := e.symbols.ByID(ctx, executedID)
	if err != nil {
		return errors.Wrap(exception.ErrOrderWrongInstrument, err.Error())
	}
	if !strings.EqualFold(executed.Name, requested.Name) {
		return errors.Wrapf(exception.ErrOrderWrongInstrument, "requested %s, executed %s", requested.Name, executed.Name)
	}
	return nil
}

// ApplyProtective amends stop/target levels onto an open position. When
// the venue rejects both levels for bad stops (price already crossed one),
// it retries stop-only, then target-only, accepting whichever lands.
func (e *Engine) ApplyProtective(ctx context.Context, positionID int64, stopLoss, takeProfit float64) (bool, error) {
	if stopLoss == 0 && takeProfit == 0 {
		return false, nil
	}

	err := e.amendOnce(ctx, positionID, stopLoss, takeProfit)
	if err == nil {
		return true, nil
	}

	var verr *session.VenueError
	if !errors.As(err, &verr) || verr.Code != wire.ErrCodeBadStops || stopLoss == 0 || takeProfit == 0 {
		return false, errors.Wrap(exception.ErrProtectiveRejected, err.Error())
	}

	if err := e.amendOnce(ctx, positionID, stopLoss, 0); err == nil {
		logs.Warnf("position %d accepted stop only", positionID)
		return true, nil
	}
	if err := e.amendOnce(ctx, positionID, 0, takeProfit); err == nil {
		logs.Warnf("position %d accepted target only", positionID)
		return true, nil
	}
	return false, exception.ErrProtectiveRejected
}

// amendOnce sends one amend and watches for an error response within the
// amend window. No error within the window is success.
func (e *Engine) amendOnce(ctx context.Context, positionID int64, stopLoss, takeProfit float64) error {
	events, cancel := e.venue.Subscribe()
	defer cancel()

	req := wire.AmendSLTPReq{
		AccountID:  e.opt.AccountID,
		PositionID: positionID,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}
	if err := e.venue.Send(wire.PTAmendSLTPReq, req.Encode(nil)); err != nil {
		return errors.Wrap(err, "send amend")
	}

	timer := time.NewTimer(e.opt.AmendWait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// A cut-short window proves nothing; only a full quiet window
			// counts as success.
			return errors.Wrap(ctx.Err(), "amend window interrupted")
		case <-timer.C:
			return nil
		case in, ok := <-events:
			if !ok {
				return errors.Wrap(exception.ErrNoResponse, "event stream closed during amend window")
			}
			if in.PayloadType != wire.PTErrorRes {
				continue
			}
			res := wire.ScanErrorFields(in.Payload)
			return &session.VenueError{Code: res.Code, Description: res.Description}
		}
	}
}

// badVolumeRetry extracts the venue's maximum allowed volume from a
// bad-volume rejection. The description carries it inside free-form text
// as "maximum allowed volume = N".
func badVolumeRetry(err error, cons symbols.Constraints) (int64, bool) {
	var verr *session.VenueError
	if !errors.As(err, &verr) || verr.Code != wire.ErrCodeBadVolume {
		return 0, false
	}
	raw, ok := scanner.ScanDecimalAfter([]byte(verr.Description), []byte("maximum allowed volume"), '=')
	if !ok {
		return 0, false
	}
	maxLots, derr := decimal.NewFromString(string(raw))
	if derr != nil {
		return 0, false
	}
	volume := maxLots.Mul(wireUnitsPerContract).IntPart()
	if volume <= 0 {
		return 0, false
	}
	return clampVolume(volume, cons), true
}

// stopDistanceTicks converts the instruction's stop distance into ticks
// for risk-based sizing. Market instructions without an entry price size
// from the reference price.
func stopDistanceTicks(in model.Instruction, refPrice float64, cons symbols.Constraints) float64 {
	if in.StopLoss == 0 {
		return 0
	}
	basis := in.EntryPrice
	if basis == 0 {
		basis = refPrice
	}
	if basis == 0 {
		return 0
	}
	dist := basis - in.StopLoss
	if dist < 0 {
		dist = -dist
	}
	tick := cons.TickSize()
	if tick <= 0 {
		return 0
	}
	return dist / tick
}

func failed(err error) model.OrderResult {
	return model.OrderResult{Reason: err.Error()}
}
