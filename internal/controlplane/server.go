package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tools.zach/dev/statuscord/internal/logger"
)

// ErrSessionClosed is returned by [Session.Send] after the connection ended.
var ErrSessionClosed = errors.New("session closed")

// Server defaults.
const (
	DefaultAddr         = "127.0.0.1:6473"
	DefaultReadLimit    = 1 << 20
	DefaultWriteTimeout = 5 * time.Second
)

// DefaultAllowedOrigins are the browser origins plugins run under inside the
// Discord client. Requests without an Origin header and loopback origins are
// always accepted.
var DefaultAllowedOrigins = []string{
	"https://discord.com",
	"https://ptb.discord.com",
	"https://canary.discord.com",
}

// Handler receives session lifecycle events. Calls for one session are made
// from that session's read goroutine, in frame order. A panic in a handler is
// recovered and logged.
type Handler interface {
	OnConnect(s *Session)
	OnMessage(s *Session, msg Message)
	OnDisconnect(s *Session)
}

// ///////////////////////////////////////////////
// Session
// ///////////////////////////////////////////////

// Session is one plugin connection. Reconnecting creates a new Session.
type Session struct {
	ID          string
	ConnectedAt time.Time

	conn         *websocket.Conn
	writeTimeout time.Duration
	log          *slog.Logger

	writeMu sync.Mutex

	mu             sync.Mutex
	source         string
	lastSeenConfig json.RawMessage
	closed         bool
}

// Source returns the plugin name from the handshake, or "".
func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// SetSource records the plugin name announced in the handshake.
func (s *Session) SetSource(src string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
}

// LastSeenConfig returns the last config the plugin sent.
func (s *Session) LastSeenConfig() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeenConfig
}

// SetLastSeenConfig records the last config the plugin sent.
func (s *Session) SetLastSeenConfig(cfg json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeenConfig = append(json.RawMessage(nil), cfg...)
}

// Closed reports whether the connection has ended.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send writes msg to the plugin. Writes are serialized. Nothing is queued: a
// closed session returns [ErrSessionClosed].
func (s *Session) Send(msg Message) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type(), err)
	}
	logger.Trace(s.log, "frame sent", "type", msg.Type())
	return nil
}

// Close ends the connection with a normal closure frame.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *Session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// ///////////////////////////////////////////////
// Server
// ///////////////////////////////////////////////

// ServerOptions configures a [Server]. Zero values use the defaults.
type ServerOptions struct {
	Addr           string
	ReadLimit      int64
	WriteTimeout   time.Duration
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server accepts plugin connections on a loopback address.
type Server struct {
	opts     ServerOptions
	handler  Handler
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session
	ln       net.Listener
}

// NewServer creates a server dispatching to h.
func NewServer(h Handler, opts ServerOptions) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.AllowedOrigins == nil {
		opts.AllowedOrigins = DefaultAllowedOrigins
	}
	s := &Server{
		opts:     opts,
		handler:  h,
		log:      logger.Component(opts.Logger, "controlplane"),
		sessions: make(map[string]*Session),
	}
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkOrigin,
	}
	return s
}

// checkOrigin accepts requests without an Origin header, loopback origins and
// the configured allow list.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(s.opts.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Listen binds the configured address. Call before [Server.Serve].
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.opts.Addr
}

// URL returns the ws:// URL plugins dial.
func (s *Server) URL() string {
	return "ws://" + s.Addr()
}

// Serve accepts connections until ctx is cancelled, then closes every
// session. It calls Listen if needed.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.RLock()
	ln := s.ln
	s.mu.RUnlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.RLock()
		ln = s.ln
		s.mu.RUnlock()
	}

	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("control plane listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("serve control plane: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	// Hijacked websocket connections are not tracked by http.Server.
	for _, sess := range s.Sessions() {
		sess.Close()
	}
	return nil
}

// ServeHTTP upgrades the request and runs the session until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(s.opts.ReadLimit)

	sess := &Session{
		ID:           uuid.NewString(),
		ConnectedAt:  time.Now(),
		conn:         conn,
		writeTimeout: s.opts.WriteTimeout,
	}
	sess.log = s.log.With("session", sess.ID)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	sess.log.Info("plugin connected", "remote", r.RemoteAddr)
	s.safeCall(sess, "connect", func() { s.handler.OnConnect(sess) })

	s.readLoop(sess)

	sess.markClosed()
	conn.Close()
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	s.mu.Unlock()

	sess.log.Info("plugin disconnected")
	s.safeCall(sess, "disconnect", func() { s.handler.OnDisconnect(sess) })
}

// readLoop dispatches frames until the connection fails. Malformed frames
// are logged and dropped; the session stays open.
func (s *Server) readLoop(sess *Session) {
	for {
		mt, data, err := sess.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				sess.log.Debug("read ended", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			sess.log.Warn("dropping non-text frame", "message_type", mt)
			continue
		}

		msg, err := Decode(data)
		if err != nil {
			sess.log.Warn("dropping bad frame", "error", err)
			continue
		}
		logger.Trace(sess.log, "frame received", "type", msg.Type())
		s.safeCall(sess, msg.Type(), func() { s.handler.OnMessage(sess, msg) })
	}
}

// safeCall runs fn, recovering and logging a panic.
func (s *Server) safeCall(sess *Session, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			sess.log.Error("handler panicked", "event", what, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Sessions returns the open sessions ordered by connect time.
func (s *Server) Sessions() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Session) int { return a.ConnectedAt.Compare(b.ConnectedAt) })
	return out
}
