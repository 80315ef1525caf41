package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"main/internal/errors"
	"main/internal/obs"
	"main/internal/wire"
	"main/pkg/exception"
)

const (
	defaultHeartbeatInterval = 25 * time.Second
	defaultRequestTimeout    = 10 * time.Second
	defaultSubscriberBuffer  = 64
)

// Transport is the framing layer the session drives. pkg/frame satisfies
// it; tests inject their own.
type Transport interface {
	Send(message []byte) error
	ReadFrame() ([]byte, error)
	Close() error
}

// Inbound is one decoded envelope delivered to waiters and subscribers.
type Inbound struct {
	PayloadType uint32
	Payload     []byte
	Token       string
	// ReconciledFrom is the raw payload type when the reconciliation
	// table rewrote it, zero otherwise.
	ReconciledFrom uint32
}

// Option configures the session.
type Option struct {
	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration
	SubscriberBuffer  int
	Metrics           *obs.Metrics
}

type waiterKey struct {
	payloadType uint32
	token       string
}

// Session multiplexes concurrent request/response pairs and unsolicited
// events over one transport. One receive loop, one heartbeat loop, any
// number of concurrent callers.
type Session struct {
	tr   Transport
	opt  Option
	conn *Connection

	mu          sync.Mutex
	waiters     map[waiterKey]chan Inbound
	typeWaiters map[uint32]chan Inbound

	subMu   sync.Mutex
	subs    map[uint64]chan Inbound
	nextSub uint64
}

// New wraps an established transport.
func New(tr Transport, opt Option) *Session {
	if opt.HeartbeatInterval <= 0 {
		opt.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opt.RequestTimeout <= 0 {
		opt.RequestTimeout = defaultRequestTimeout
	}
	if opt.SubscriberBuffer <= 0 {
		opt.SubscriberBuffer = defaultSubscriberBuffer
	}
	return &Session{
		tr:          tr,
		opt:         opt,
		conn:        NewConnection(),
		waiters:     make(map[waiterKey]chan Inbound),
		typeWaiters: make(map[uint32]chan Inbound),
		subs:        make(map[uint64]chan Inbound),
	}
}

// Connection exposes the session's connection state.
func (s *Session) Connection() *Connection {
	return s.conn
}

// Run drives the receive loop until the transport fails or ctx is done.
// It returns the terminal error; a peer disconnect returns
// exception.ErrConnectionClosed.
func (s *Session) Run(ctx context.Context) error {
	s.conn.transition(StateConnected, nil)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go s.heartbeatLoop(hbCtx)

	for {
		if ctx.Err() != nil {
			s.conn.transition(StateDisconnected, ctx.Err())
			return ctx.Err()
		}

		frame, err := s.tr.ReadFrame()
		if err != nil {
			s.conn.transition(StateDisconnected, err)
			s.failAllWaiters()
			return err
		}

		env, err := wire.DecodeEnvelope(frame)
		if err != nil {
			logs.Warnf("drop malformed envelope, err: %+v", err)
			continue
		}

		in := Inbound{
			PayloadType: env.PayloadType,
			Payload:     env.Payload,
			Token:       env.Token,
		}
		if reconciled, ok := reconcilePayloadType(env); ok {
			in.ReconciledFrom = in.PayloadType
			in.PayloadType = reconciled
			s.opt.Metrics.IncReconciled()
			logs.Warnf("reconciled payload type %d -> %d", in.ReconciledFrom, reconciled)
		}
		s.opt.Metrics.IncInbound(in.PayloadType)

		if in.PayloadType == wire.PTErrorRes {
			res := wire.ScanErrorFields(in.Payload)
			logs.Warnf("venue error response: code=%s description=%q account=%d",
				res.Code, res.Description, res.AccountID)
		}

		s.dispatch(in)
	}
}

// Close shuts the transport down.
func (s *Session) Close() error {
	s.conn.transition(StateDisconnected, nil)
	return s.tr.Close()
}

// dispatch resolves at most one waiter, then always broadcasts. Exact
// (type, token) matching runs first; the type-only path is a venue-observed
// reliability workaround for responses arriving without our token.
func (s *Session) dispatch(in Inbound) {
	s.mu.Lock()
	var waiter chan Inbound
	if in.Token != "" {
		key := waiterKey{payloadType: in.PayloadType, token: in.Token}
		if ch, ok := s.waiters[key]; ok {
			waiter = ch
			delete(s.waiters, key)
		}
	}
	if waiter == nil {
		if ch, ok := s.typeWaiters[in.PayloadType]; ok {
			waiter = ch
			delete(s.typeWaiters, in.PayloadType)
		}
	}
	s.mu.Unlock()

	if waiter != nil {
		select {
		case waiter <- in:
		default:
		}
	}

	s.subMu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- in:
		default:
			s.opt.Metrics.IncSubscriberDrop()
		}
	}
	s.subMu.Unlock()
}

// Subscribe returns a channel observing every inbound message. The cancel
// function must run on every exit path of the observing operation.
func (s *Session) Subscribe() (<-chan Inbound, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Inbound, s.opt.SubscriberBuffer)
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

// Request sends payload under reqType with a fresh correlation token and
// waits for the response of wantType carrying the same token, or a venue
// error response for the token. Timeouts and caller cancellation both
// resolve to ErrNoResponse; only the log line differs.
func (s *Session) Request(ctx context.Context, reqType uint32, payload []byte, wantType uint32) ([]byte, error) {
	token := uuid.NewString()

	ch, err := s.registerToken(wantType, token)
	if err != nil {
		return nil, err
	}
	defer s.deregisterToken(wantType, token)

	started := time.Now()
	if err := s.send(reqType, payload, token); err != nil {
		return nil, errors.Wrap(err, "send request")
	}

	timer := time.NewTimer(s.opt.RequestTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		logs.Infof("request %s canceled by caller", wire.PayloadTypeName(reqType))
		return nil, exception.ErrNoResponse
	case <-timer.C:
		logs.Warnf("request %s timed out after %s", wire.PayloadTypeName(reqType), s.opt.RequestTimeout)
		return nil, exception.ErrNoResponse
	case in, ok := <-ch:
		if !ok {
			return nil, exception.ErrNoResponse
		}
		s.opt.Metrics.ObserveRequest(time.Since(started))
		if in.PayloadType == wire.PTErrorRes {
			res := wire.ScanErrorFields(in.Payload)
			return nil, &VenueError{Code: res.Code, Description: res.Description}
		}
		return in.Payload, nil
	}
}

// RequestLegacy is the type-only correlation path: at most one outstanding
// waiter per payload type. Authentication exchanges use it because the
// venue does not echo tokens on auth responses.
func (s *Session) RequestLegacy(ctx context.Context, reqType uint32, payload []byte, wantType uint32) ([]byte, error) {
	ch, claimedErrSlot, err := s.registerType(wantType)
	if err != nil {
		return nil, err
	}
	defer s.deregisterType(wantType, claimedErrSlot)

	started := time.Now()
	if err := s.send(reqType, payload, ""); err != nil {
		return nil, errors.Wrap(err, "send request")
	}

	timer := time.NewTimer(s.opt.RequestTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		logs.Infof("request %s canceled by caller", wire.PayloadTypeName(reqType))
		return nil, exception.ErrNoResponse
	case <-timer.C:
		logs.Warnf("request %s timed out after %s", wire.PayloadTypeName(reqType), s.opt.RequestTimeout)
		return nil, exception.ErrNoResponse
	case in, ok := <-ch:
		if !ok {
			return nil, exception.ErrNoResponse
		}
		s.opt.Metrics.ObserveRequest(time.Since(started))
		if in.PayloadType == wire.PTErrorRes {
			res := wire.ScanErrorFields(in.Payload)
			return nil, &VenueError{Code: res.Code, Description: res.Description}
		}
		return in.Payload, nil
	}
}

// Send writes one fire-and-forget message; execution outcomes for it
// arrive as unsolicited events.
func (s *Session) Send(payloadType uint32, payload []byte) error {
	return s.send(payloadType, payload, "")
}

func (s *Session) send(payloadType uint32, payload []byte, token string) error {
	encoded := wire.EncodeEnvelope(nil, wire.Envelope{
		PayloadType: payloadType,
		Payload:     payload,
		Token:       token,
	})
	return s.tr.Send(encoded)
}

// registerToken registers the waiter under (wantType, token) and under
// (error-response, token) so a venue rejection resolves the same wait.
func (s *Session) registerToken(wantType uint32, token string) (chan Inbound, error) {
	ch := make(chan Inbound, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiters[waiterKey{payloadType: wantType, token: token}] = ch
	s.waiters[waiterKey{payloadType: wire.PTErrorRes, token: token}] = ch
	return ch, nil
}

func (s *Session) deregisterToken(wantType uint32, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.waiters, waiterKey{payloadType: wantType, token: token})
	delete(s.waiters, waiterKey{payloadType: wire.PTErrorRes, token: token})
}

// registerType claims the type-only slot for wantType. Two waiters must
// never silently overwrite one another.
func (s *Session) registerType(wantType uint32) (chan Inbound, bool, error) {
	ch := make(chan Inbound, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.typeWaiters[wantType]; ok {
		return nil, false, exception.ErrWaiterExists
	}
	s.typeWaiters[wantType] = ch

	claimedErrSlot := false
	if _, ok := s.typeWaiters[wire.PTErrorRes]; !ok && wantType != wire.PTErrorRes {
		s.typeWaiters[wire.PTErrorRes] = ch
		claimedErrSlot = true
	}
	return ch, claimedErrSlot, nil
}

func (s *Session) deregisterType(wantType uint32, claimedErrSlot bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.typeWaiters, wantType)
	if claimedErrSlot {
		delete(s.typeWaiters, wire.PTErrorRes)
	}
}

// failAllWaiters closes every pending waiter after a transport fault so
// callers fail fast instead of riding out their timeouts.
func (s *Session) failAllWaiters() {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := make(map[chan Inbound]struct{})
	for key, ch := range s.waiters {
		delete(s.waiters, key)
		if _, done := closed[ch]; !done {
			close(ch)
			closed[ch] = struct{}{}
		}
	}
	for pt, ch := range s.typeWaiters {
		delete(s.typeWaiters, pt)
		if _, done := closed[ch]; !done {
			close(ch)
			closed[ch] = struct{}{}
		}
	}
}

// heartbeatLoop sends a no-op keep-alive on a fixed schedule while the
// connection is open. Send failures are logged, never fatal; the receive
// loop owns connection teardown.
func (s *Session) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opt.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.conn.State() != StateConnected {
				continue
			}
			if err := s.send(wire.PTHeartbeat, nil, ""); err != nil {
				logs.Warnf("heartbeat send failed, err: %+v", err)
			}
		}
	}
}
