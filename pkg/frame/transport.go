package frame

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"main/pkg/exception"
)

// MaxFrameSize is the hard ceiling for a single inbound frame.
// Anything larger is a protocol violation, not a big message.
const MaxFrameSize = 1 << 20

const lenPrefixSize = 4

// Option configures the venue connection.
type Option struct {
	Host               string
	Port               int
	InsecureSkipVerify bool
	DialTimeout        time.Duration
}

// Transport owns one TLS-wrapped TCP connection and frames messages as
// [4-byte big-endian length][message]. Writes are serialized; reads are
// expected from a single receive loop.
type Transport struct {
	conn    net.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Dial establishes a TLS connection to the configured host/port.
func Dial(ctx context.Context, opt Option) (*Transport, error) {
	timeout := opt.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config: &tls.Config{
			ServerName:         opt.Host,
			InsecureSkipVerify: opt.InsecureSkipVerify,
		},
	}

	addr := net.JoinHostPort(opt.Host, strconv.Itoa(opt.Port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	return NewTransport(conn), nil
}

// NewTransport wraps an established connection. Exposed so tests and
// non-TLS environments can inject their own conn.
func NewTransport(conn net.Conn) *Transport {
	return &Transport{conn: conn}
}

// Send frames and writes one message. Concurrent senders are serialized;
// an interleaved partial write would corrupt framing for every reader.
func (t *Transport) Send(message []byte) error {
	if t == nil || t.conn == nil {
		return exception.ErrNotConnected
	}
	if len(message) > MaxFrameSize {
		return exception.ErrFrameTooLarge
	}

	var prefix [lenPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(message)))

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.conn.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := t.conn.Write(message); err != nil {
		return err
	}
	return nil
}

// ReadFrame blocks until one fully-assembled frame arrives and returns its
// message bytes. A zero-byte read means the peer closed the connection and
// is reported as ErrConnectionClosed, not as a generic failure.
func (t *Transport) ReadFrame() ([]byte, error) {
	if t == nil || t.conn == nil {
		return nil, exception.ErrNotConnected
	}

	var prefix [lenPrefixSize]byte
	if _, err := io.ReadFull(t.conn, prefix[:]); err != nil {
		return nil, mapReadErr(err)
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 {
		return nil, exception.ErrFrameEmpty
	}
	if length > MaxFrameSize {
		return nil, exception.ErrFrameTooLarge
	}

	// The stream may deliver fewer bytes than requested; ReadFull
	// accumulates partial reads until the declared length is satisfied.
	message := make([]byte, length)
	if _, err := io.ReadFull(t.conn, message); err != nil {
		return nil, mapReadErr(err)
	}
	return message, nil
}

// Close shuts the connection down. Safe to call more than once.
func (t *Transport) Close() error {
	if t == nil || t.conn == nil {
		return nil
	}
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func mapReadErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return exception.ErrConnectionClosed
	}
	if ne, ok := err.(net.Error); ok && !ne.Timeout() {
		return exception.ErrConnectionClosed
	}
	return err
}
