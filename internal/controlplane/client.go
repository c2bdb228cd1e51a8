package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tools.zach/dev/statuscord/internal/logger"
)

// ErrNotOpen is returned by [Client.Send] while the socket is not open.
var ErrNotOpen = errors.New("control plane connection not open")

// Client defaults.
const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultDialTimeout    = 5 * time.Second
)

// ConnStatus is the client connection state shown by status indicators.
type ConnStatus int

const (
	Disconnected ConnStatus = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("ConnStatus(%d)", int(s))
	}
}

// ClientOptions configures a [Client].
type ClientOptions struct {
	// URL is the daemon's control-plane address.
	URL string
	// Source is the plugin name sent in the handshake.
	Source string
	// Domain names the config section exchanged as "<domain>_config".
	Domain string
	// ConfigFunc returns the current config sent after the handshake. A nil
	// func or a nil result skips the config frame.
	ConfigFunc func() (json.RawMessage, error)
	// OnMessage receives every decoded inbound frame. Panics are recovered.
	OnMessage func(c *Client, msg Message)
	// OnStatus is called after every status change.
	OnStatus func(ConnStatus)

	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	Logger         *slog.Logger
}

// stopper is the part of *time.Timer the client uses.
type stopper interface{ Stop() bool }

// Client keeps one connection from a plugin to the daemon. After a close it
// schedules exactly one reconnect attempt after ReconnectDelay and keeps
// doing so forever; [Client.Close] cancels any pending attempt.
type Client struct {
	opts ClientOptions
	log  *slog.Logger

	afterFunc func(time.Duration, func()) stopper

	writeMu sync.Mutex

	mu     sync.Mutex
	conn   *websocket.Conn
	status ConnStatus
	timer  stopper
	closed bool
}

// NewClient creates a client. Call [Client.Start] to connect.
func NewClient(opts ClientOptions) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	return &Client{
		opts: opts,
		log:  logger.Component(opts.Logger, "controlplane-client").With("source", opts.Source),
		afterFunc: func(d time.Duration, fn func()) stopper {
			return time.AfterFunc(d, fn)
		},
	}
}

// Start begins connecting in the background.
func (c *Client) Start() {
	go c.connect()
}

// Status returns the current connection state.
func (c *Client) Status() ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// setStatus updates the status and notifies OnStatus. Caller must not hold c.mu.
func (c *Client) setStatus(st ConnStatus) {
	c.mu.Lock()
	changed := c.status != st
	c.status = st
	c.mu.Unlock()
	if changed && c.opts.OnStatus != nil {
		c.opts.OnStatus(st)
	}
}

// connect dials once. Failure schedules the next attempt.
func (c *Client) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.setStatus(Connecting)

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
	defer cancel()
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		c.log.Debug("dial failed", "url", c.opts.URL, "error", err)
		c.closedConn(nil)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()
	c.log.Info("connected to daemon", "url", c.opts.URL)

	if err := c.Send(Handshake{Source: c.opts.Source}); err != nil {
		c.log.Warn("handshake failed", "error", err)
	}
	if err := c.SendConfig(); err != nil {
		c.log.Warn("sending config failed", "error", err)
	}
	// Connected is reported after the handshake so OnStatus may send.
	c.mu.Lock()
	live := !c.closed && c.conn == conn
	c.mu.Unlock()
	if live {
		c.setStatus(Connected)
	}

	go c.readLoop(conn)
}

// readLoop dispatches inbound frames until the connection ends.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.closedConn(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.log.Debug("read ended", "error", err)
			}
			return
		}
		msg, err := Decode(data)
		if err != nil {
			c.log.Warn("dropping bad frame", "error", err)
			continue
		}
		logger.Trace(c.log, "frame received", "type", msg.Type())
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	if c.opts.OnMessage == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("message handler panicked", "type", msg.Type(), "panic", r, "stack", string(debug.Stack()))
		}
	}()
	c.opts.OnMessage(c, msg)
}

// closedConn handles the end of conn (nil for a failed dial) and schedules
// one reconnect unless the client was closed.
func (c *Client) closedConn(conn *websocket.Conn) {
	c.mu.Lock()
	if conn != nil {
		if c.conn != conn {
			c.mu.Unlock()
			return
		}
		c.conn = nil
		conn.Close()
	}
	if c.closed {
		c.mu.Unlock()
		c.setStatus(Disconnected)
		return
	}
	scheduled := false
	if c.timer == nil {
		c.timer = c.afterFunc(c.opts.ReconnectDelay, c.fireReconnect)
		scheduled = true
	}
	c.mu.Unlock()

	c.setStatus(Reconnecting)
	if scheduled {
		c.log.Debug("reconnect scheduled", "delay", c.opts.ReconnectDelay)
	}
}

func (c *Client) fireReconnect() {
	c.mu.Lock()
	c.timer = nil
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		c.connect()
	}
}

// Send writes msg if the socket is open. Nothing is queued.
func (c *Client) Send(msg Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type(), err)
	}
	return nil
}

// SendConfig sends the current config as "<domain>_config".
func (c *Client) SendConfig() error {
	if c.opts.ConfigFunc == nil || c.opts.Domain == "" {
		return nil
	}
	cfg, err := c.opts.ConfigFunc()
	if err != nil {
		return fmt.Errorf("load %s config: %w", c.opts.Domain, err)
	}
	if cfg == nil {
		return nil
	}
	return c.Send(Config{Domain: c.opts.Domain, Config: cfg})
}

// Close stops reconnecting and closes the socket. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.setStatus(Disconnected)
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

// ///////////////////////////////////////////////
// One-shot Requests
// ///////////////////////////////////////////////

// Call connects, sends a handshake as source followed by msg, and returns
// the first reply tagged replyType. An empty replyType returns right after
// sending.
func Call(ctx context.Context, url, source string, msg Message, replyType string) (Message, error) {
	replies, err := Exchange(ctx, url, source, []Message{msg}, replyType)
	if err != nil || replyType == "" {
		return nil, err
	}
	return replies[len(replies)-1], nil
}

// Exchange connects, sends a handshake as source followed by msgs, and
// collects every decodable reply up to and including the first one tagged
// until. An empty until returns right after sending.
func Exchange(ctx context.Context, url, source string, msgs []Message, until string) ([]Message, error) {
	dialer := websocket.Dialer{HandshakeTimeout: DefaultDialTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	for _, m := range append([]Message{Handshake{Source: source}}, msgs...) {
		data, err := Encode(m)
		if err != nil {
			return nil, err
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return nil, fmt.Errorf("send %s: %w", m.Type(), err)
		}
	}

	defer conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if until == "" {
		return nil, nil
	}

	if dl, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var replies []Message
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return replies, ctx.Err()
			}
			return replies, fmt.Errorf("read reply: %w", err)
		}
		reply, err := Decode(data)
		if err != nil {
			continue
		}
		replies = append(replies, reply)
		if reply.Type() == until {
			return replies, nil
		}
	}
}
