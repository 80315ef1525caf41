package session

import (
	"sync"
)

// State is the socket state of the one venue connection.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// StateEvent is published on every connection state transition.
type StateEvent struct {
	State State
	Err   error
}

// Connection tracks the socket state and the two authentication levels of
// the single venue session. Components observe transitions through
// SubscribeState rather than polling a flag.
type Connection struct {
	mu            sync.Mutex
	state         State
	appAuthed     bool
	accountAuthed bool
	accountID     int64

	subs    map[uint64]chan StateEvent
	nextSub uint64
}

// NewConnection starts in the Disconnected state.
func NewConnection() *Connection {
	return &Connection{subs: make(map[uint64]chan StateEvent)}
}

// State returns the current socket state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AccountID returns the authenticated account id, zero before account auth.
func (c *Connection) AccountID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountID
}

// Ready reports whether both authentication levels completed on an open
// socket.
func (c *Connection) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected && c.appAuthed && c.accountAuthed
}

// SubscribeState registers an observer for state transitions. The cancel
// function must be called on every exit path of the observing operation.
func (c *Connection) SubscribeState() (<-chan StateEvent, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan StateEvent, 4)
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

func (c *Connection) transition(state State, err error) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	if state != StateConnected {
		c.appAuthed = false
		c.accountAuthed = false
	}
	subs := make([]chan StateEvent, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	ev := StateEvent{State: state, Err: err}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (c *Connection) setAppAuthed() {
	c.mu.Lock()
	c.appAuthed = true
	c.mu.Unlock()
}

func (c *Connection) setAccountAuthed(accountID int64) {
	c.mu.Lock()
	c.accountAuthed = true
	c.accountID = accountID
	c.mu.Unlock()
}
