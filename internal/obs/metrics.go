package obs

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects lightweight counters and latency stats for the venue
// session. All methods are safe on a nil receiver so call sites never need
// to guard.
type Metrics struct {
	inboundMu     sync.Mutex
	inboundCounts map[uint32]uint64

	subscriberDrops uint64
	queueDrops      uint64
	reconciled      uint64

	requestLatency   LatencyStats
	orderFlowLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	InboundCounts    map[uint32]uint64
	SubscriberDrops  uint64
	QueueDrops       uint64
	Reconciled       uint64
	RequestLatency   LatencySnapshot
	OrderFlowLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{inboundCounts: make(map[uint32]uint64)}
}

// IncInbound counts one inbound envelope by payload type.
func (m *Metrics) IncInbound(payloadType uint32) {
	if m == nil {
		return
	}
	m.inboundMu.Lock()
	m.inboundCounts[payloadType]++
	m.inboundMu.Unlock()
}

// IncSubscriberDrop records a broadcast message dropped by a slow subscriber.
func (m *Metrics) IncSubscriberDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.subscriberDrops, 1)
}

// IncQueueDrop records a downstream queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncReconciled records one payload-type reconciliation.
func (m *Metrics) IncReconciled() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reconciled, 1)
}

// ObserveRequest measures one request/response round trip.
func (m *Metrics) ObserveRequest(d time.Duration) {
	if m == nil {
		return
	}
	m.requestLatency.Observe(d)
}

// ObserveOrderFlow measures one full order placement flow.
func (m *Metrics) ObserveOrderFlow(d time.Duration) {
	if m == nil {
		return
	}
	m.orderFlowLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	inbound := make(map[uint32]uint64)
	m.inboundMu.Lock()
	for pt, v := range m.inboundCounts {
		inbound[pt] = v
	}
	m.inboundMu.Unlock()
	return Snapshot{
		InboundCounts:    inbound,
		SubscriberDrops:  atomic.LoadUint64(&m.subscriberDrops),
		QueueDrops:       atomic.LoadUint64(&m.queueDrops),
		Reconciled:       atomic.LoadUint64(&m.reconciled),
		RequestLatency:   m.requestLatency.Snapshot(),
		OrderFlowLatency: m.orderFlowLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
