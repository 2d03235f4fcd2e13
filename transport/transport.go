// Package transport owns the websocket connection to a build agent and
// keeps it alive: reconnecting with backoff when it drops, queueing sends
// while disconnected, and normalizing every inbound frame into a typed
// message before publishing it on the session bus.
//
// A Conn owns exactly one live socket and at most one pending reconnect
// timer at a time. Callers never touch the socket; they observe the
// connection purely through bus events and drive it through Send and
// Close.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vibewire/vibewire/eventbus"
	"github.com/vibewire/vibewire/retry"
	"github.com/vibewire/vibewire/wire"
)

// Bus events published by the transport. EventMessage carries a
// *wire.Message; a sugar event named after the message's category follows
// it for the same payload. EventRaw carries the json.RawMessage of frames
// that parsed but did not classify. EventError carries an error.
const (
	EventOpen    = "open"
	EventClose   = "close"
	EventError   = "error"
	EventMessage = "message"
	EventRaw     = "raw"
)

// Status is the externally visible connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

var (
	// ErrClosed is returned by Send after a user-initiated Close.
	ErrClosed = errors.New("transport: connection closed")

	// ErrQueueOverflow is emitted on the error event when an enqueue
	// drops the oldest pending message. Non-fatal.
	ErrQueueOverflow = errors.New("transport: send queue full, oldest message dropped")

	// ErrRetriesExhausted is emitted on the error event when the
	// reconnect budget runs out. The connection stays down.
	ErrRetriesExhausted = errors.New("transport: reconnect retries exhausted")
)

// DefaultQueueLimit bounds the pending-send queue.
const DefaultQueueLimit = 1000

const defaultDialTimeout = 30 * time.Second

// Config configures a Conn. URL and Bus are required.
type Config struct {
	URL string
	Bus *eventbus.Bus

	// Dialer constructs the underlying socket. Defaults to the gorilla
	// websocket dialer.
	Dialer Dialer

	// Header, when set, is called before every dial attempt so headers
	// that expire (bearer tokens) are fresh on reconnect.
	Header func() http.Header

	// Backoff schedules reconnect attempts. Defaults to retry.Default.
	Backoff retry.Policy

	// QueueLimit bounds the pending-send queue (default 1000).
	QueueLimit int

	// DialTimeout bounds a single dial attempt (default 30s).
	DialTimeout time.Duration
}

// Conn is a resilient connection to one agent. Construct with Dial, which
// starts connecting immediately.
type Conn struct {
	url         string
	bus         *eventbus.Bus
	dialer      Dialer
	header      func() http.Header
	policy      retry.Policy
	queueLimit  int
	dialTimeout time.Duration

	mu           sync.Mutex
	sock         Socket
	gen          int // bumped whenever the current socket is invalidated
	open         bool
	dialing      bool
	closedByUser bool
	attempts     int
	pending      [][]byte
	timer        *time.Timer
}

// Dial creates a Conn and starts the first connection attempt in the
// background. Connection progress is observable on the bus (open, close,
// error events).
func Dial(cfg Config) (*Conn, error) {
	if cfg.URL == "" {
		return nil, errors.New("transport: url is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("transport: bus is required")
	}
	if cfg.Dialer == nil {
		cfg.Dialer = DefaultDialer()
	}
	if cfg.Backoff.IsZero() {
		cfg.Backoff = retry.Default
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = DefaultQueueLimit
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	c := &Conn{
		url:         cfg.URL,
		bus:         cfg.Bus,
		dialer:      cfg.Dialer,
		header:      cfg.Header,
		policy:      cfg.Backoff,
		queueLimit:  cfg.QueueLimit,
		dialTimeout: cfg.DialTimeout,
		dialing:     true,
	}
	go c.dial()
	return c, nil
}

// Status reports the current connection state.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.open:
		return StatusConnected
	case c.closedByUser:
		return StatusDisconnected
	case c.dialing || c.timer != nil:
		return StatusConnecting
	default:
		return StatusDisconnected
	}
}

// Pending reports the number of queued sends.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Send writes data to the socket if connected, otherwise queues it for the
// next open. The queue is bounded: overflow drops the oldest entry and
// emits ErrQueueOverflow on the error event. Returns ErrClosed only after
// a user-initiated Close.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	if c.closedByUser {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.open && c.sock != nil {
		sock := c.sock
		c.mu.Unlock()
		if err := sock.WriteMessage(data); err != nil {
			c.requeueFront(data)
			c.bus.Emit(EventError, fmt.Errorf("writing message: %w", err))
			c.dropSocket(sock)
		}
		return nil
	}
	overflow := c.enqueueLocked(data)
	c.mu.Unlock()
	if overflow {
		c.bus.Emit(EventError, ErrQueueOverflow)
	}
	return nil
}

// Close permanently tears the connection down: no further reconnects, the
// pending queue is dropped, the timer cancelled, the socket closed. Safe
// to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closedByUser {
		c.mu.Unlock()
		return nil
	}
	c.closedByUser = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
	sock := c.sock
	c.sock = nil
	c.open = false
	c.gen++
	c.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
	c.bus.Emit(EventClose, nil)
	return nil
}

// --- connection lifecycle ---

func (c *Conn) dial() {
	c.mu.Lock()
	if c.closedByUser {
		c.dialing = false
		c.mu.Unlock()
		return
	}
	c.dialing = true
	c.mu.Unlock()

	var header http.Header
	if c.header != nil {
		header = c.header()
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	sock, err := c.dialer(ctx, c.url, header)
	cancel()

	if err != nil {
		c.mu.Lock()
		c.dialing = false
		c.mu.Unlock()
		c.bus.Emit(EventError, fmt.Errorf("dialing %s: %w", c.url, err))
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closedByUser {
		c.dialing = false
		c.mu.Unlock()
		sock.Close()
		return
	}
	c.gen++
	gen := c.gen
	c.sock = sock
	c.open = true
	c.dialing = false
	c.attempts = 0
	c.mu.Unlock()

	// The open event runs before the queue flush on purpose: handshake
	// sends issued synchronously by an open handler go out ahead of
	// anything queued while disconnected.
	c.bus.Emit(EventOpen, nil)
	c.flushPending(sock)

	go c.readLoop(sock, gen)
}

func (c *Conn) readLoop(sock Socket, gen int) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			c.socketGone(gen, err)
			return
		}
		c.handleFrame(sock, data)
	}
}

// socketGone handles a read failure: close or error, whichever the runtime
// reported first. Stale sockets (already replaced or user-closed) are
// ignored so a late error cannot double-schedule a reconnect.
func (c *Conn) socketGone(gen int, err error) {
	c.mu.Lock()
	if c.closedByUser || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.open = false
	c.sock = nil
	c.gen++
	c.mu.Unlock()

	c.bus.Emit(EventClose, err)
	c.scheduleReconnect()
}

// dropSocket invalidates the current socket after a fatal frame or write
// error and enters the reconnect path.
func (c *Conn) dropSocket(sock Socket) {
	c.mu.Lock()
	if c.closedByUser || c.sock != sock {
		c.mu.Unlock()
		return
	}
	c.open = false
	c.sock = nil
	c.gen++
	c.mu.Unlock()

	sock.Close()
	c.scheduleReconnect()
}

// scheduleReconnect arms the backoff timer. Idempotent: a timer already
// pending, a dial in flight, a live socket, or a user close all make it a
// no-op, so close and error firing for the same drop schedule one attempt.
func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	if c.closedByUser || c.timer != nil || c.dialing || c.open {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.policy.MaxRetries {
		c.mu.Unlock()
		c.bus.Emit(EventError, ErrRetriesExhausted)
		return
	}
	delay := c.policy.Delay(c.attempts)
	c.attempts++
	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.timer = nil
		if c.closedByUser {
			c.mu.Unlock()
			return
		}
		c.dialing = true
		c.mu.Unlock()
		c.dial()
	})
	c.mu.Unlock()
}

// --- sending ---

func (c *Conn) enqueueLocked(data []byte) (overflow bool) {
	if len(c.pending) >= c.queueLimit {
		c.pending = c.pending[1:]
		overflow = true
	}
	c.pending = append(c.pending, data)
	return overflow
}

func (c *Conn) requeueFront(data []byte) {
	c.mu.Lock()
	c.pending = append([][]byte{data}, c.pending...)
	c.mu.Unlock()
}

// flushPending drains the queue in FIFO order onto the freshly opened
// socket. A write failure re-queues the unsent remainder and re-enters the
// error path.
func (c *Conn) flushPending(sock Socket) {
	c.mu.Lock()
	queued := c.pending
	c.pending = nil
	c.mu.Unlock()

	for i, data := range queued {
		if err := c.sockWrite(sock, data); err != nil {
			c.mu.Lock()
			c.pending = append(queued[i:len(queued):len(queued)], c.pending...)
			c.mu.Unlock()
			c.bus.Emit(EventError, fmt.Errorf("flushing queued message: %w", err))
			c.dropSocket(sock)
			return
		}
	}
}

func (c *Conn) sockWrite(sock Socket, data []byte) error {
	c.mu.Lock()
	stale := c.sock != sock
	c.mu.Unlock()
	if stale {
		return errors.New("socket replaced")
	}
	return sock.WriteMessage(data)
}

// --- inbound frames ---

func (c *Conn) handleFrame(sock Socket, data []byte) {
	msg, err := wire.Normalize(data)
	if err != nil {
		if errors.Is(err, wire.ErrUnclassified) {
			raw := make(json.RawMessage, len(data))
			copy(raw, data)
			c.bus.Emit(EventRaw, raw)
			return
		}
		// Not JSON at all: the standard reconnect-eligible error path.
		c.bus.Emit(EventError, err)
		c.dropSocket(sock)
		return
	}

	c.bus.Emit(EventMessage, msg)
	if cat, ok := wire.CategoryOf(msg.Type); ok {
		c.bus.Emit(string(cat), msg)
	}
}
