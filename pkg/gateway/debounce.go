// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"log"
	"sync"
	"time"

	"github.com/xpbus/conbus/pkg/conbus"
)

// Handle is the completion callback for one logical read request. Every
// handle queued under a key is satisfied by the single reply the coalesced
// wire request produces.
type Handle func(reply *conbus.Telegram)

// Debouncer coalesces duplicate datapoint read requests issued inside a
// short window into a single wire transmission per (serial, datapoint) key.
//
// There is one shared timer per Debouncer, not per key: every new request,
// duplicate or not, restarts the window, so a burst keeps deferring until
// it goes quiet and then flushes as a whole.
type Debouncer struct {
	client *Client
	window time.Duration

	mu       sync.Mutex
	pending  map[string][]Handle
	inFlight map[string][]Handle
	timer    *time.Timer
	subID    int
	closed   bool
}

// NewDebouncer creates a debouncer in front of client. window zero means
// 50 milliseconds.
func NewDebouncer(client *Client, window time.Duration) *Debouncer {
	if window == 0 {
		window = 50 * time.Millisecond
	}
	d := &Debouncer{
		client:   client,
		window:   window,
		pending:  make(map[string][]Handle),
		inFlight: make(map[string][]Handle),
	}
	d.subID = client.Subscribe(d.onEvent)
	return d
}

// Close unsubscribes from the client and drops all queued requests.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string][]Handle)
	d.inFlight = make(map[string][]Handle)
	d.client.Unsubscribe(d.subID)
}

// RequestRead queues a read of one datapoint. Requests for the same
// (serial, datapoint) key inside the window share one wire frame. The call
// never blocks; completion arrives through h.
func (d *Debouncer) RequestRead(serial, datapoint string, h Handle) {
	key := serial + ":" + datapoint

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pending[key] = append(d.pending[key], h)

	// Cancel-and-restart: the whole burst window defers on any activity.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush sends exactly one read frame per distinct queued key and clears
// the queue. Handles move to the in-flight set awaiting their reply.
func (d *Debouncer) flush() {
	d.mu.Lock()
	queued := d.pending
	d.pending = make(map[string][]Handle)
	d.timer = nil
	for key, handles := range queued {
		d.inFlight[key] = append(d.inFlight[key], handles...)
	}
	d.mu.Unlock()

	for key := range queued {
		serial, datapoint := splitKey(key)
		t, err := conbus.NewReadDatapointRequest(serial, datapoint)
		if err != nil {
			log.Printf("debounce: bad key %q: %v", key, err)
			continue
		}
		if err := d.client.Send(t); err != nil {
			log.Printf("debounce: send for %q failed: %v", key, err)
		}
	}
}

// onEvent fans one reply out to every handle queued under its key.
func (d *Debouncer) onEvent(ev Event) {
	if ev.Kind != EventReceived || ev.Telegram.Kind != conbus.KindReply {
		return
	}
	r := ev.Telegram.Reply
	if r.Function != conbus.FuncReadDatapoint {
		return
	}
	key := r.SerialNumber + ":" + r.Datapoint

	d.mu.Lock()
	handles := d.inFlight[key]
	delete(d.inFlight, key)
	d.mu.Unlock()

	for _, h := range handles {
		if h != nil {
			h(ev.Telegram)
		}
	}
}

func splitKey(key string) (serial, datapoint string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
