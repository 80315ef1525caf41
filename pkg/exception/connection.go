package exception

import "github.com/yanun0323/errors"

// Transport errors
var (
	ErrConnectionClosed = errors.New("transport: connection closed by peer")
	ErrFrameTooLarge    = errors.New("transport: frame exceeds maximum size")
	ErrFrameEmpty       = errors.New("transport: frame declares zero length")
	ErrNotConnected     = errors.New("transport: not connected")
)
