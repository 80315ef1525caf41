package exception

import "github.com/yanun0323/errors"

// Session errors
var (
	ErrNoResponse        = errors.New("session: no response")
	ErrWaiterExists      = errors.New("session: waiter already registered for payload type")
	ErrSessionClosed     = errors.New("session: closed")
	ErrNotAuthenticated  = errors.New("session: account not authenticated")
	ErrVenueError        = errors.New("session: venue returned error response")
	ErrEnvelopeMalformed = errors.New("session: malformed envelope")
)
