// Package transport provides a persistent websocket channel that reconnects
// on its own after every drop.
//
// A [Channel] cycles Connecting → Open → Closed → Connecting. Any error
// (dial failure, read error, write error, remote close) forces the socket
// closed and schedules the next attempt after a fixed delay. Only
// [Channel.Close] stops the cycle, and it also cancels a pending
// reconnect timer so an intentionally closed channel never comes back.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/d1nch8g/voiceorder/observe"
)

// ErrClosed is returned by Open on a channel that has been closed.
var ErrClosed = errors.New("transport: channel closed")

const (
	defaultReconnectDelay   = 2500 * time.Millisecond
	defaultHandshakeTimeout = 5 * time.Second
	defaultWriteTimeout     = 2 * time.Second
	defaultReadLimit        = 1 << 20

	// closeTimeout bounds the close handshake before the socket is dropped.
	closeTimeout = time.Second
)

// Status is the connection state of a [Channel].
type Status int

const (
	StatusClosed Status = iota
	StatusConnecting
	StatusOpen
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "closed"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Kind distinguishes binary from text messages.
type Kind int

const (
	Text Kind = iota
	Binary
)

// Message is one websocket message.
type Message struct {
	Kind Kind
	Data []byte
}

// Config configures a [Channel].
type Config struct {
	// Name identifies the channel in logs and metrics, e.g. "audio".
	Name string

	// URL is the ws:// or wss:// endpoint.
	URL string

	// ReconnectDelay is the fixed wait between a close and the next
	// connection attempt. Defaults to 2.5s.
	ReconnectDelay time.Duration

	// HandshakeTimeout bounds one dial including the HTTP upgrade. A
	// stalled handshake counts as a failed attempt. Defaults to 5s.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single Send. Defaults to 2s.
	WriteTimeout time.Duration

	// ReadLimit is the largest accepted inbound message. Defaults to 1 MiB.
	ReadLimit int64

	// Handler receives every inbound message on the read goroutine.
	Handler func(Message)

	// OnStatus is called after every status change. May be nil.
	OnStatus func(name string, status Status)

	// Metrics may be nil.
	Metrics *observe.Metrics
}

// Channel owns at most one live websocket connection at a time.
//
// All methods are safe for concurrent use.
type Channel struct {
	cfg     Config
	metrics *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	open   atomic.Bool

	mu      sync.Mutex
	status  Status
	conn    *websocket.Conn
	timer   *time.Timer
	started bool
	stopped bool
}

// New creates a channel. Call [Channel.Open] to start connecting.
func New(cfg Config) *Channel {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	if cfg.Handler == nil {
		cfg.Handler = func(Message) {}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.Discard()
	}
	return &Channel{cfg: cfg, metrics: metrics}
}

// Name returns the configured channel name.
func (c *Channel) Name() string { return c.cfg.Name }

// Status returns the current connection state.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsOpen reports whether the channel is open. It never blocks and is safe
// to call from the audio capture callback.
func (c *Channel) IsOpen() bool { return c.open.Load() }

// Open starts the first connection attempt. The channel keeps reconnecting
// until ctx is cancelled or Close is called. Calling Open twice is a no-op.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go func() {
		<-c.ctx.Done()
		_ = c.Close()
	}()

	c.connect()
	return nil
}

// Send writes msg if the channel is open and reports whether it was
// written. On a closed or connecting channel it is a silent no-op. A write
// failure forces the connection closed, which triggers the reconnect path.
func (c *Channel) Send(ctx context.Context, msg Message) bool {
	c.mu.Lock()
	conn := c.conn
	open := c.status == StatusOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return false
	}

	typ := websocket.MessageText
	if msg.Kind == Binary {
		typ = websocket.MessageBinary
	}

	wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(wctx, typ, msg.Data); err != nil {
		slog.Warn("websocket write failed", "channel", c.cfg.Name, "err", err)
		_ = conn.CloseNow()
		return false
	}
	return true
}

// Close tears the channel down: it cancels any pending reconnect, closes
// the live connection and waits for the read loop to exit. Safe to call
// multiple times.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	cancel := c.cancel
	c.mu.Unlock()

	if conn != nil {
		c.closeConn(conn)
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	return nil
}

// closeConn runs the close handshake and drops the socket if the peer has
// not answered within closeTimeout.
func (c *Channel) closeConn(conn *websocket.Conn) {
	done := make(chan error, 1)
	go func() {
		done <- conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}()

	timer := time.NewTimer(closeTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			slog.Debug("websocket close handshake", "channel", c.cfg.Name, "err", err)
		}
	case <-timer.C:
		slog.Debug("websocket close handshake timed out", "channel", c.cfg.Name)
		_ = conn.CloseNow()
	}
}

// connect begins a connection attempt unless the channel was stopped.
func (c *Channel) connect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.status = StatusConnecting
	c.wg.Add(1)
	c.mu.Unlock()

	c.notify(StatusConnecting)
	go c.run()
}

// run dials, serves the connection until it fails and then hands off to
// closed. The previous connection is fully closed before the next attempt
// can be scheduled.
func (c *Channel) run() {
	defer c.wg.Done()

	dctx, cancel := context.WithTimeout(c.ctx, c.cfg.HandshakeTimeout)
	conn, _, err := websocket.Dial(dctx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		slog.Warn("websocket dial failed", "channel", c.cfg.Name, "url", c.cfg.URL, "err", err)
		c.closed(false)
		return
	}
	conn.SetReadLimit(c.cfg.ReadLimit)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		_ = conn.CloseNow()
		c.closed(false)
		return
	}
	c.conn = conn
	c.status = StatusOpen
	c.open.Store(true)
	c.mu.Unlock()

	c.metrics.OpenChannels.Add(context.Background(), 1)
	slog.Info("websocket connected", "channel", c.cfg.Name, "url", c.cfg.URL)
	c.notify(StatusOpen)

	err = c.readLoop(conn)
	_ = conn.CloseNow()
	c.metrics.OpenChannels.Add(context.Background(), -1)

	if status := websocket.CloseStatus(err); status != -1 {
		slog.Info("websocket closed by peer", "channel", c.cfg.Name, "code", status)
	} else if c.ctx.Err() == nil {
		slog.Warn("websocket error", "channel", c.cfg.Name, "err", err)
	}
	c.closed(true)
}

func (c *Channel) readLoop(conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(c.ctx)
		if err != nil {
			return err
		}
		kind := Text
		if typ == websocket.MessageBinary {
			kind = Binary
		}
		c.cfg.Handler(Message{Kind: kind, Data: data})
	}
}

// closed records the Closed state and, unless the channel was stopped,
// schedules the next attempt after the fixed delay.
func (c *Channel) closed(wasOpen bool) {
	c.mu.Lock()
	c.conn = nil
	c.status = StatusClosed
	c.open.Store(false)
	stopped := c.stopped
	if !stopped {
		c.timer = time.AfterFunc(c.cfg.ReconnectDelay, c.connect)
	}
	c.mu.Unlock()

	c.notify(StatusClosed)
	if stopped {
		return
	}
	c.metrics.Reconnects.Add(context.Background(), 1, observe.Channel(c.cfg.Name))
	slog.Debug("reconnect scheduled", "channel", c.cfg.Name, "delay", c.cfg.ReconnectDelay, "was_open", wasOpen)
}

func (c *Channel) notify(s Status) {
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(c.cfg.Name, s)
	}
}

// String implements fmt.Stringer for log output.
func (c *Channel) String() string {
	return fmt.Sprintf("%s(%s)", c.cfg.Name, c.Status())
}
