package network

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
)

// Dial connects to a server. There is no built-in timeout; bound the wait
// through ctx.
func Dial(ctx context.Context, address string, logger *log.Logger) (*Connection, error) {
	if logger == nil {
		logger = log.Default()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %q: %w", ErrConnect, address, err)
	}

	logger.Printf("network: connected remote=%s", conn.RemoteAddr())
	return newConnection(conn, logger), nil
}

// EstablishOptions tunes Establish.
type EstablishOptions struct {
	Logger *log.Logger
	// OnListening is called once a server has bound its port, before it
	// starts waiting for the client.
	OnListening func(net.Addr)
}

// Establish performs the role-dependent handshake: a server listens on port
// and accepts one connection, a client dials address:port.
func Establish(ctx context.Context, role Role, address string, port int, options EstablishOptions) (*Connection, error) {
	switch role {
	case RoleServer:
		listener, err := Listen(JoinHostPort("", port), options.Logger)
		if err != nil {
			return nil, err
		}
		if options.OnListening != nil {
			options.OnListening(listener.Addr())
		}
		return listener.Accept(ctx)
	case RoleClient:
		return Dial(ctx, JoinHostPort(address, port), options.Logger)
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrConnect, role)
	}
}

// JoinHostPort formats host and port as a dialable address.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
