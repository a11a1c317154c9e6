package network

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
)

var (
	// ErrConnect wraps bind, accept and dial failures.
	ErrConnect = errors.New("network: connect failed")
	// ErrSend wraps write failures. A failed send leaves the connection open.
	ErrSend = errors.New("network: send failed")
	// ErrRead wraps read-side failures, including an orderly remote close.
	ErrRead = errors.New("network: read failed")
	// ErrClosed indicates the connection was already closed locally.
	ErrClosed = errors.New("network: connection closed")
	// ErrReadLoopRunning indicates a second ReadLoop was started on one connection.
	ErrReadLoopRunning = errors.New("network: read loop already running")
)

// Role selects how a peer establishes its connection.
type Role string

const (
	// RoleServer waits for exactly one inbound connection.
	RoleServer Role = "server"
	// RoleClient dials out to the server.
	RoleClient Role = "client"
)

// ParseRole converts a config or flag value to a Role.
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleServer:
		return RoleServer, nil
	case RoleClient:
		return RoleClient, nil
	default:
		return "", fmt.Errorf("unknown role %q", value)
	}
}

// FrameHandler receives decoded inbound frames in arrival order.
type FrameHandler func(Frame)

// CloseHandler receives the error that ended a read loop.
type CloseHandler func(error)

// Connection owns one TCP socket for the lifetime of a session. Writes are
// serialized; reads happen on a single read loop.
type Connection struct {
	conn   net.Conn
	reader *bufio.Reader
	logger *log.Logger

	sendMu sync.Mutex

	reading atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}

	errMu   sync.RWMutex
	lastErr error
}

func newConnection(conn net.Conn, logger *log.Logger) *Connection {
	if logger == nil {
		logger = log.Default()
	}
	return &Connection{
		conn:   conn,
		reader: bufio.NewReader(conn),
		logger: logger,
		closed: make(chan struct{}),
	}
}

// LocalAddr returns the local socket address.
func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the peer socket address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Done is closed once the connection has been torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// LastError returns the read error that ended the connection, if any.
func (c *Connection) LastError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.lastErr
}

// SendFrame writes one frame. Concurrent callers never interleave bytes on
// the wire. A failed write is returned to the caller and does not tear the
// connection down.
func (c *Connection) SendFrame(f Frame) error {
	select {
	case <-c.closed:
		return fmt.Errorf("%w: %w", ErrSend, ErrClosed)
	default:
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := WriteFrame(c.conn, f); err != nil {
		c.logger.Printf("network: send failed kind=%s remote=%s err=%v", f.Kind, c.conn.RemoteAddr(), err)
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	return nil
}

// ReadLoop decodes frames until the first read failure and hands each one to
// onFrame on the calling goroutine. onClosed is invoked exactly once with an
// error wrapping ErrRead before ReadLoop returns. The connection is closed
// when the loop exits.
func (c *Connection) ReadLoop(onFrame FrameHandler, onClosed CloseHandler) error {
	if !c.reading.CompareAndSwap(false, true) {
		return ErrReadLoopRunning
	}

	for {
		frame, err := ReadFrame(c.reader)
		if err != nil {
			readErr := fmt.Errorf("%w: %w", ErrRead, err)
			c.setLastError(readErr)
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				c.logger.Printf("network: connection ended remote=%s", c.conn.RemoteAddr())
			} else {
				c.logger.Printf("network: read failed remote=%s err=%v", c.conn.RemoteAddr(), err)
			}
			_ = c.Close()
			if onClosed != nil {
				onClosed(readErr)
			}
			return readErr
		}

		if onFrame != nil {
			onFrame(frame)
		}
	}
}

// Close releases the read half, the write half and the socket. Each release
// is attempted even when another one fails. Calling Close again is a no-op.
func (c *Connection) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		var errs []error
		if tcp, ok := c.conn.(*net.TCPConn); ok {
			if err := tcp.CloseRead(); err != nil && !isReleased(err) {
				errs = append(errs, fmt.Errorf("close read half: %w", err))
			}
			if err := tcp.CloseWrite(); err != nil && !isReleased(err) {
				errs = append(errs, fmt.Errorf("close write half: %w", err))
			}
		}
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close socket: %w", err))
		}
		close(c.closed)

		closeErr = errors.Join(errs...)
		if closeErr != nil {
			c.logger.Printf("network: teardown incomplete remote=%s err=%v", c.conn.RemoteAddr(), closeErr)
		}
	})
	return closeErr
}

// isReleased reports whether a shutdown error only means the half was
// already gone, either closed locally or reset by the peer.
func isReleased(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.ENOTCONN)
}

func (c *Connection) setLastError(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.lastErr == nil {
		c.lastErr = err
	}
}
