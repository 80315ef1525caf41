package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"main/internal/model"
	"main/internal/obs"
)

var (
	ErrQueueFull   = errors.New("fill queue full")
	ErrQueueClosed = errors.New("fill queue closed")
)

// Queue is the bounded, non-blocking hand-off of completed fills to
// downstream collaborators. A full queue drops with an error rather than
// stalling the order flow.
type Queue struct {
	ch      chan model.Fill
	closed  uint32
	metrics *obs.Metrics
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int, metrics *obs.Metrics) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan model.Fill, capacity), metrics: metrics}
}

// TryPublish enqueues a fill without blocking.
func (q *Queue) TryPublish(fill model.Fill) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- fill:
		return nil
	default:
		q.metrics.IncQueueDrop()
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new fills.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes fills until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(model.Fill)) {
	for {
		select {
		case <-ctx.Done():
			return
		case fill, ok := <-q.ch:
			if !ok {
				return
			}
			handler(fill)
		}
	}
}
