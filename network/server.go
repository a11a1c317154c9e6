package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
)

// Listener binds the server port and hands out exactly one connection.
type Listener struct {
	listener net.Listener
	logger   *log.Logger

	closeOnce sync.Once
}

// Listen binds a TCP listener on address. An empty address binds an
// ephemeral port on all interfaces.
func Listen(address string, logger *log.Logger) (*Listener, error) {
	if logger == nil {
		logger = log.Default()
	}
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: listen on %q: %w", ErrConnect, address, err)
	}
	logger.Printf("network: listening addr=%s", listener.Addr())

	return &Listener{listener: listener, logger: logger}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Accept blocks until the first inbound connection arrives, then stops
// listening so every later connection attempt is refused. Cancelling ctx
// aborts the wait.
func (l *Listener) Accept(ctx context.Context) (*Connection, error) {
	defer func() {
		_ = l.Close()
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = l.Close()
	})
	defer stop()

	conn, err := l.listener.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, net.ErrClosed) {
			return nil, fmt.Errorf("%w: accept: %w", ErrConnect, ctxErr)
		}
		return nil, fmt.Errorf("%w: accept: %w", ErrConnect, err)
	}

	l.logger.Printf("network: accepted remote=%s", conn.RemoteAddr())
	return newConnection(conn, l.logger), nil
}

// Close stops listening. It is safe to call more than once.
func (l *Listener) Close() error {
	var closeErr error
	l.closeOnce.Do(func() {
		closeErr = l.listener.Close()
	})
	return closeErr
}
