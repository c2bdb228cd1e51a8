// Package discord is the Rich Presence transport: a client for Discord's
// local IPC socket that publishes activities with SET_ACTIVITY.
//
// Socket discovery is platform specific (conn_unix.go, conn_windows.go). A
// connected [Client] drains inbound frames in the background, answers pings
// and closes [Client.Done] when Discord goes away so the publisher can start
// its reconnect loop.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrNotConnected is returned when an operation requires an active connection.
var ErrNotConnected = errors.New("not connected")

// writeTimeout bounds every frame write so a wedged Discord cannot stall the
// publisher.
const writeTimeout = 5 * time.Second

// ///////////////////////////////////////////////
// Data Types
// ///////////////////////////////////////////////

// Button represents a clickable button in a Rich Presence activity.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Timestamps holds the start timestamp for an activity.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
}

// Assets holds image keys and tooltip text for an activity.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Activity represents a Rich Presence activity.
type Activity struct {
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
	Buttons    []Button    `json:"buttons,omitempty"`
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Option configures a [Client].
type Option func(*Client)

// WithDialer replaces platform socket discovery. Tests pass a net.Pipe end.
func WithDialer(dial func() (net.Conn, error)) Option {
	return func(c *Client) { c.dial = dial }
}

// WithLogger sets the logger used for background frame handling.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client manages a connection to Discord's IPC socket.
type Client struct {
	appID string
	dial  func() (net.Conn, error)
	log   *slog.Logger

	// mu protects conn, nonce, user and done.
	mu    sync.Mutex
	conn  net.Conn
	nonce uint64
	user  string
	// done is closed when the reader for the current conn exits.
	done chan struct{}
}

// NewClient creates a Discord IPC client for the given application ID.
func NewClient(appID string, opts ...Option) *Client {
	c := &Client{appID: appID, dial: connectToDiscord, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	closed := make(chan struct{})
	close(closed)
	c.done = closed
	return c
}

// Connect dials Discord, performs the handshake and starts the background
// reader. Any previous connection is closed first.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.conn = conn

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}
	user, err := c.handshake()
	conn.SetDeadline(time.Time{})
	if err != nil {
		c.conn.Close()
		c.conn = nil
		return err
	}
	c.user = user

	done := make(chan struct{})
	c.done = done
	go c.readLoop(conn, done)
	return nil
}

// Done returns a channel closed when the current connection is lost. Before
// the first Connect it is already closed.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// User returns the username from the READY event, if Discord sent one.
func (c *Client) User() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// SetActivity sends a SET_ACTIVITY command.
func (c *Client) SetActivity(activity *Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sendCommand("SET_ACTIVITY", map[string]any{
		"pid":      os.Getpid(),
		"activity": activity,
	})
}

// ClearActivity sends a SET_ACTIVITY command with a nil activity.
func (c *Client) ClearActivity() error {
	return c.SetActivity(nil)
}

// Close clears the activity and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	// Best-effort clear before closing.
	_ = c.sendCommand("SET_ACTIVITY", map[string]any{
		"pid":      os.Getpid(),
		"activity": nil,
	})

	err := c.conn.Close()
	c.conn = nil
	return err
}

// Connected reports whether the client has an active connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// handshake sends the handshake frame and waits for READY. It returns the
// username Discord reports. The caller must hold c.mu.
func (c *Client) handshake() (string, error) {
	payload, err := json.Marshal(map[string]any{
		"v":         1,
		"client_id": c.appID,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling handshake: %w", err)
	}
	if err := writeFrame(c.conn, OpHandshake, payload); err != nil {
		return "", fmt.Errorf("writing handshake: %w", err)
	}

	opcode, respData, err := DecodeFrame(c.conn)
	if err != nil {
		return "", fmt.Errorf("reading handshake response: %w", err)
	}
	if opcode == OpClose {
		return "", fmt.Errorf("handshake rejected: %s", closeReason(respData))
	}
	if opcode != OpFrame {
		return "", fmt.Errorf("unexpected handshake response opcode: %d", opcode)
	}

	var resp event
	if err := json.Unmarshal(respData, &resp); err != nil {
		return "", fmt.Errorf("parsing handshake response: %w", err)
	}
	if resp.Evt == "ERROR" {
		return "", fmt.Errorf("handshake rejected: %s", resp.Data.Message)
	}
	return resp.Data.User.Username, nil
}

// event is the subset of an inbound RPC frame the client inspects.
type event struct {
	Cmd   string `json:"cmd"`
	Evt   string `json:"evt"`
	Nonce string `json:"nonce"`
	Data  struct {
		Message string `json:"message"`
		User    struct {
			Username string `json:"username"`
		} `json:"user"`
	} `json:"data"`
}

// readLoop drains responses so Discord never blocks on a full socket, answers
// pings, and closes done when the connection ends.
func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	for {
		opcode, payload, err := DecodeFrame(conn)
		if err != nil {
			c.log.Debug("discord ipc read ended", "error", err)
			return
		}
		switch opcode {
		case OpPing:
			c.mu.Lock()
			if c.conn == conn {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				_ = writeFrame(conn, OpPong, payload)
			}
			c.mu.Unlock()
		case OpClose:
			c.log.Info("discord closed the ipc connection", "reason", closeReason(payload))
			return
		case OpFrame:
			var ev event
			if json.Unmarshal(payload, &ev) == nil && ev.Evt == "ERROR" {
				c.log.Warn("discord rejected command", "cmd", ev.Cmd, "nonce", ev.Nonce, "message", ev.Data.Message)
			}
		}
	}
}

// closeReason extracts the message of an OpClose payload.
func closeReason(payload []byte) string {
	var v struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &v) != nil || v.Message == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s (%d)", v.Message, v.Code)
}

// sendCommand writes a command frame to the IPC connection.
// The caller must hold c.mu.
func (c *Client) sendCommand(cmd string, args map[string]any) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	c.nonce++
	nonce := strconv.FormatUint(c.nonce, 10)

	payload, err := json.Marshal(map[string]any{
		"cmd":   cmd,
		"args":  args,
		"nonce": nonce,
	})
	if err != nil {
		return fmt.Errorf("marshaling command: %w", err)
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := writeFrame(c.conn, OpFrame, payload); err != nil {
		return fmt.Errorf("writing command: %w", err)
	}
	return nil
}
