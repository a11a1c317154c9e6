package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"duochat/models"
	"duochat/network"
)

var (
	// ErrNotConnected indicates a send was attempted without a live connection.
	ErrNotConnected = errors.New("session: not connected")
	// ErrAlreadyRunning indicates Run was called twice.
	ErrAlreadyRunning = errors.New("session: already running")
	// ErrEmptyFileName indicates a file send without a usable name.
	ErrEmptyFileName = errors.New("session: file name is required")
)

// State is the lifecycle state of a session.
type State string

const (
	StateIdle       State = "IDLE"
	StateConnecting State = "CONNECTING"
	StateConnected  State = "CONNECTED"
	StateClosed     State = "CLOSED"
)

// Options configures a Controller.
type Options struct {
	Role    network.Role
	Address string
	Port    int

	Store  FileStore
	Shell  Shell
	Logger *log.Logger

	// OnListening is called with the bound address each time a server
	// starts waiting for its client.
	OnListening func(net.Addr)
}

func (o Options) validate() error {
	if o.Role != network.RoleServer && o.Role != network.RoleClient {
		return fmt.Errorf("unknown role %q", o.Role)
	}
	if o.Role == network.RoleClient && strings.TrimSpace(o.Address) == "" {
		return errors.New("server address is required for the client role")
	}
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("port %d out of range", o.Port)
	}
	if o.Store == nil {
		return errors.New("file store is required")
	}
	if o.Shell == nil {
		return errors.New("shell is required")
	}
	return nil
}

// Controller binds one connection's events to the Shell and exposes the
// user actions. Run drives the lifecycle:
//
//	IDLE -> CONNECTING -> CONNECTED -> CLOSED
//
// A closed server session ends. A closed client session asks the Shell
// whether to reconnect and, if so, goes back to CONNECTING.
type Controller struct {
	options Options
	logger  *log.Logger

	stateMu sync.RWMutex
	state   State

	connMu    sync.RWMutex
	conn      *network.Connection
	sessionID string

	running   atomic.Bool
	stopping  atomic.Bool
	cancelMu  sync.Mutex
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewController validates options and returns an idle controller.
func NewController(options Options) (*Controller, error) {
	if err := options.validate(); err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Controller{
		options: options,
		logger:  logger,
		state:   StateIdle,
	}, nil
}

// Role returns the configured role.
func (c *Controller) Role() network.Role {
	return c.options.Role
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// SessionID identifies the current or most recent connection in logs.
func (c *Controller) SessionID() string {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.sessionID
}

// Run establishes the connection and runs its read loop on the calling
// goroutine until the session ends. It returns nil when the session ended
// through Close, ctx cancellation or the peer leaving, and the connect
// error when the user declined to retry a failed connect.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelMu.Lock()
	c.cancel = cancel
	c.cancelMu.Unlock()
	if c.stopping.Load() {
		return nil
	}

	for {
		c.setState(StateConnecting)
		conn, err := network.Establish(ctx, c.options.Role, c.options.Address, c.options.Port, network.EstablishOptions{
			Logger:      c.logger,
			OnListening: c.options.OnListening,
		})
		if err != nil {
			c.setState(StateClosed)
			if c.isStopping(ctx) {
				return nil
			}
			c.logger.Printf("session: connect failed role=%s err=%v", c.options.Role, err)
			c.options.Shell.OnError(err)
			if c.offerReconnect() {
				continue
			}
			c.options.Shell.OnShutdown()
			return err
		}

		c.attach(conn)
		stop := context.AfterFunc(ctx, func() {
			_ = conn.Close()
		})
		readErr := conn.ReadLoop(c.handleFrame, nil)
		stop()
		c.detach(conn)
		c.setState(StateClosed)

		if c.isStopping(ctx) {
			return nil
		}
		c.logger.Printf("session: peer left session_id=%s role=%s err=%v", c.SessionID(), c.options.Role, readErr)
		c.options.Shell.OnConnectionClosed(c.options.Role)
		if c.offerReconnect() {
			continue
		}
		c.options.Shell.OnShutdown()
		return nil
	}
}

// Close ends the session without notifying the Shell. It is safe to call
// more than once and from any goroutine.
func (c *Controller) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.stopping.Store(true)

		c.cancelMu.Lock()
		if c.cancel != nil {
			c.cancel()
		}
		c.cancelMu.Unlock()

		if conn := c.connection(); conn != nil {
			closeErr = conn.Close()
		}
		c.setState(StateClosed)
	})
	return closeErr
}

// SendText sends trimmed text to the peer. Blank text is ignored. The text
// is echoed to the Shell whether or not the write succeeded.
func (c *Controller) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	err := c.send(network.TextFrame(text))
	c.options.Shell.OnMessage(models.Message{
		IsReceived: false,
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
	})
	return err
}

// SendFile sends a file to the peer. The file name is echoed to the Shell
// whether or not the write succeeded.
func (c *Controller) SendFile(name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyFileName
	}

	err := c.send(network.FileFrame(name, data))
	c.options.Shell.OnMessage(models.Message{
		IsReceived: false,
		Text:       name,
		IsFile:     true,
		Timestamp:  time.Now().UnixMilli(),
	})
	return err
}

// SendFileFromPath reads a file from disk, asks the Shell to confirm and
// sends it. It reports whether the file was sent.
func (c *Controller) SendFileFromPath(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read file %q: %w", path, err)
	}

	name := filepath.Base(path)
	if !c.options.Shell.RequestSendConfirmation(name) {
		c.logger.Printf("session: file send declined name=%q", name)
		return false, nil
	}

	if err := c.SendFile(name, data); err != nil {
		return false, err
	}
	return true, nil
}

// Lookup returns a received file by id.
func (c *Controller) Lookup(fileRef int) (models.ReceivedFile, error) {
	return c.options.Store.Lookup(fileRef)
}

// Download asks the Shell whether to save a received file and, if so, hands
// the content to it. It returns the saved path, or "" when declined.
func (c *Controller) Download(fileRef int) (string, error) {
	if !c.options.Shell.RequestDownloadDecision(fileRef) {
		return "", nil
	}

	file, err := c.Lookup(fileRef)
	if err != nil {
		c.logger.Printf("session: download failed file_id=%d err=%v", fileRef, err)
		return "", fmt.Errorf("download file %d: %w", fileRef, err)
	}

	path, err := c.options.Shell.SaveDownloadedFile(file.Name, file.Data)
	if err != nil {
		c.logger.Printf("session: save failed file_id=%d name=%q err=%v", fileRef, file.Name, err)
		return "", fmt.Errorf("save file %d: %w", fileRef, err)
	}

	c.logger.Printf("session: file saved file_id=%d path=%q checksum=%s", fileRef, path, file.Checksum)
	return path, nil
}

func (c *Controller) handleFrame(frame network.Frame) {
	if frame.IsEmpty() {
		c.logger.Printf("session: ignored empty %s frame session_id=%s", frame.Kind, c.SessionID())
		return
	}

	msg := models.Message{
		IsReceived: true,
		Text:       frame.Text(),
		IsFile:     frame.IsFile(),
		Timestamp:  time.Now().UnixMilli(),
	}

	if frame.IsFile() {
		var fileRef int
		if len(frame.Secondary) > 0 {
			id, err := c.options.Store.Record(frame.Text(), frame.Secondary)
			if err != nil {
				c.logger.Printf("session: record file failed file_id=%d name=%q err=%v", id, frame.Text(), err)
				c.options.Shell.OnError(err)
			}
			fileRef = id
		} else {
			fileRef = c.options.Store.Skip()
			c.logger.Printf("session: file without content file_id=%d name=%q", fileRef, frame.Text())
		}
		msg.FileRef = &fileRef
	}

	c.options.Shell.OnMessage(msg)
}

func (c *Controller) send(frame network.Frame) error {
	conn := c.connection()
	if conn == nil {
		return fmt.Errorf("%w: %w", network.ErrSend, ErrNotConnected)
	}
	return conn.SendFrame(frame)
}

func (c *Controller) offerReconnect() bool {
	if c.options.Role != network.RoleClient {
		return false
	}
	return c.options.Shell.RequestReconnectDecision()
}

func (c *Controller) attach(conn *network.Connection) {
	sessionID := uuid.NewString()

	c.connMu.Lock()
	c.conn = conn
	c.sessionID = sessionID
	c.connMu.Unlock()

	c.setState(StateConnected)
	c.logger.Printf("session: connected session_id=%s role=%s remote=%s", sessionID, c.options.Role, conn.RemoteAddr())
}

func (c *Controller) detach(conn *network.Connection) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

func (c *Controller) connection() *network.Connection {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *Controller) setState(state State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = state
}

func (c *Controller) isStopping(ctx context.Context) bool {
	return c.stopping.Load() || ctx.Err() != nil
}
