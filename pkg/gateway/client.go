// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/xpbus/conbus/pkg/conbus"
)

// ErrNotConnected is returned by Send when Connect has not succeeded yet.
var ErrNotConnected = errors.New("gateway: not connected")

// EventKind identifies a connection manager event.
type EventKind int

// Connection manager events. These are the only signals other components
// may depend on.
const (
	EventConnected EventKind = iota
	EventSent
	EventReceived
	EventTimeout
	EventFailed
)

// Event is delivered to every subscribed listener. Telegram is set for
// Sent and Received; Valid mirrors the telegram's checksum flag; Err is
// set for Failed.
type Event struct {
	Kind     EventKind
	Telegram *conbus.Telegram
	Valid    bool
	Err      error
}

// Listener receives events. Received/Timeout/Failed are dispatched
// synchronously on the client's receive goroutine; Sent on the sender's.
type Listener func(Event)

// Options configures a Client.
type Options struct {
	// ConnectTimeout bounds Connect. Zero means 5 seconds.
	ConnectTimeout time.Duration
	// ReadTimeout is the quiet window after which a Timeout event is
	// emitted. Zero means 2 seconds.
	ReadTimeout time.Duration
	// PollInterval is the per-read deadline inside the receive loop.
	// Zero means 100 milliseconds.
	PollInterval time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = 5 * time.Second
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.PollInterval == 0 {
		out.PollInterval = 100 * time.Millisecond
	}
	return out
}

// Client owns one connection to a Conbus gateway. It serializes the inbound
// byte stream into telegrams on a single receive goroutine and fans each
// one out to subscribed listeners in arrival order.
type Client struct {
	host string
	port int
	opts Options

	mu        sync.Mutex
	conn      Conn
	listeners map[int]Listener
	nextID    int
	stop      chan struct{}
	loopDone  chan struct{}
}

// NewClient creates a client for the gateway at host:port. No connection
// is made until Connect.
func NewClient(host string, port int, opts Options) *Client {
	return &Client{
		host:      host,
		port:      port,
		opts:      opts.withDefaults(),
		listeners: make(map[int]Listener),
	}
}

// NewClientConn creates a client driving an already-open transport (serial,
// WebSocket, test pipe). The receive loop starts immediately.
func NewClientConn(conn Conn, opts Options) *Client {
	c := &Client{
		opts:      opts.withDefaults(),
		listeners: make(map[int]Listener),
	}
	c.attach(conn)
	return c
}

// Connect dials the gateway. Calling Connect on an already-connected client
// is a no-op success.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := DialTCP(c.host, c.port, c.opts.ConnectTimeout)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		// Lost the race against a concurrent Connect.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.mu.Unlock()

	c.attach(conn)
	return nil
}

func (c *Client) attach(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.stop = make(chan struct{})
	c.loopDone = make(chan struct{})
	stop, done := c.stop, c.loopDone
	c.mu.Unlock()

	c.emit(Event{Kind: EventConnected})
	go c.receiveLoop(conn, stop, done)
}

// Connected reports whether the client currently holds a connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one telegram to the gateway. The Sent event is emitted right
// after the write returns successfully. Send requires a prior successful
// Connect; it never dials on its own.
func (c *Client) Send(t *conbus.Telegram) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if _, err := conn.Write([]byte(t.Raw)); err != nil {
		return fmt.Errorf("gateway: send failed: %w", err)
	}
	c.emit(Event{Kind: EventSent, Telegram: t, Valid: t.ChecksumValid})
	return nil
}

// Close tears the connection down and stops the receive loop. Listeners
// stay subscribed; a later Connect reuses them.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	stop, done := c.stop, c.loopDone
	c.conn = nil
	c.stop = nil
	c.loopDone = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	close(stop)
	err := conn.Close()
	<-done
	return err
}

// Subscribe registers a listener and returns its id for Unsubscribe.
// Subscribe and Unsubscribe must be paired over a consumer's lifetime; a
// leaked subscription causes duplicate deliveries on a shared connection.
func (c *Client) Subscribe(l Listener) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	return id
}

// Unsubscribe removes a listener.
func (c *Client) Unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
}

func (c *Client) emit(ev Event) {
	c.mu.Lock()
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

// receiveLoop reads with a short per-poll deadline, feeds bytes into the
// frame extractor, and emits one Received event per frame in arrival
// order. A quiet window longer than ReadTimeout emits a Timeout event;
// that ends the burst, it is not an error.
func (c *Client) receiveLoop(conn Conn, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	extractor := conbus.NewExtractor()
	buf := make([]byte, 512)
	lastData := time.Now()

	for {
		select {
		case <-stop:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(c.opts.PollInterval))
		n, err := conn.Read(buf)
		if n > 0 {
			lastData = time.Now()
			for _, raw := range extractor.Push(buf[:n]) {
				t, perr := conbus.ParseTelegram(raw)
				if perr != nil {
					// One bad frame must not block the stream.
					log.Printf("gateway: dropping unparseable frame %q: %v", raw, perr)
					continue
				}
				c.emit(Event{Kind: EventReceived, Telegram: t, Valid: t.ChecksumValid})
			}
		}
		if err != nil {
			if isTimeout(err) {
				if time.Since(lastData) >= c.opts.ReadTimeout {
					c.emit(Event{Kind: EventTimeout})
					lastData = time.Now()
				}
				continue
			}
			select {
			case <-stop:
				// Close() raced the read error; stay quiet.
				return
			default:
			}
			c.emit(Event{Kind: EventFailed, Err: err})
			return
		}
		if n == 0 {
			// Serial ports report timeouts as a zero-byte read.
			if time.Since(lastData) >= c.opts.ReadTimeout {
				c.emit(Event{Kind: EventTimeout})
				lastData = time.Now()
			}
		}
	}
}
