// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"log"
	"sync"
	"time"

	"github.com/xpbus/conbus/pkg/conbus"
	"github.com/xpbus/conbus/pkg/gateway"
)

// TableKind selects which table a transfer session moves. On the wire it
// is the datapoint code of the table-transfer frames.
type TableKind string

// Table kinds
const (
	TableAction TableKind = "00"
)

// DownloadState is the download machine's explicit state.
type DownloadState int

// Download states. The handshake has no sequence numbers: liveness is
// inferred entirely from ack/nak/end function codes and the timeout.
const (
	DownloadIdle DownloadState = iota
	DownloadReceiving
	DownloadWaitingOK
	DownloadWaitingData
	DownloadCompleted
	DownloadFailed
)

// String returns the state name.
func (s DownloadState) String() string {
	switch s {
	case DownloadIdle:
		return "idle"
	case DownloadReceiving:
		return "receiving"
	case DownloadWaitingOK:
		return "waiting_ok"
	case DownloadWaitingData:
		return "waiting_data"
	case DownloadCompleted:
		return "completed"
	case DownloadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Download pulls a module's action table off the bus chunk by chunk.
//
// The handshake: wait for the line to go quiet, send a reset/status
// request, and on ack ask the module to start sending. Every chunk is
// positively acknowledged before the module sends the next one. After
// end-of-table the machine runs one more reset round; only an ack received
// with the table already complete makes the download durable. A timeout in
// any waiting state retries the minimal necessary step until the retry
// budget runs out.
//
// Sessions are pooled: Start resets all session fields, so one Download
// value can run transfer after transfer. Transitions happen on the
// session's own goroutine only; the machine is not safe for concurrent
// transition calls.
type Download struct {
	bus     Bus
	timeout time.Duration
	budget  int

	// Session fields, reset by Start.
	serial      string
	kind        TableKind
	state       DownloadState
	payload     []byte
	chunks      int
	complete    bool
	retriesLeft int
	phase       Phase
	err         error

	// OnProgress is called after each appended chunk with the byte count
	// so far. OnError and OnFinish are mutually exclusive and fire exactly
	// once per session, from the session goroutine.
	OnProgress func(received int)
	OnError    func(err error)
	OnFinish   func(payload []byte)

	mu      sync.Mutex
	running bool
	events  chan gateway.Event
	stopCh  chan struct{}
	done    chan struct{}
	subID   int
}

// NewDownload creates a download session bound to bus. timeout is the
// per-state reply timeout (zero means 1 second); retryBudget is how many
// timeouts a session survives before giving up.
func NewDownload(bus Bus, timeout time.Duration, retryBudget int) *Download {
	if timeout == 0 {
		timeout = time.Second
	}
	return &Download{
		bus:     bus,
		timeout: timeout,
		budget:  retryBudget,
		state:   DownloadIdle,
	}
}

// State returns the current machine state.
func (d *Download) State() DownloadState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Done is closed when the session reaches a terminal state.
func (d *Download) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Err returns the terminal error, nil after a successful download.
func (d *Download) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Payload returns the assembled table blob, complete only after OnFinish.
func (d *Download) Payload() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.payload
}

// Start begins a download of the module's table. Starting resets every
// session field; starting while a session is running is an error. Callers
// must not run two transfer sessions on one connection at a time.
func (d *Download) Start(serial string, kind TableKind) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return &Error{Phase: PhaseReset, Reason: "session already running"}
	}
	d.running = true
	d.serial = serial
	d.kind = kind
	d.state = DownloadReceiving
	d.payload = nil
	d.chunks = 0
	d.complete = false
	d.retriesLeft = d.budget
	d.phase = PhaseReset
	d.err = nil
	d.events = make(chan gateway.Event, 64)
	d.stopCh = make(chan struct{})
	d.done = make(chan struct{})
	events := d.events
	d.mu.Unlock()

	d.subID = d.bus.Subscribe(func(ev gateway.Event) {
		if ev.Kind != gateway.EventReceived {
			return
		}
		select {
		case events <- ev:
		default:
			log.Printf("download: event queue full, dropping %s", ev.Telegram.Raw)
		}
	})

	go d.run()
	return nil
}

// Abort tears the session down; the error hook reports the abort.
func (d *Download) Abort() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	stop := d.stopCh
	done := d.done
	d.mu.Unlock()
	close(stop)
	<-done
}

// run is the session's single goroutine; every transition happens here.
func (d *Download) run() {
	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	for {
		if s := d.State(); s == DownloadCompleted || s == DownloadFailed {
			d.teardown()
			return
		}

		select {
		case ev := <-d.events:
			if r := matchesSession(ev, d.serial); r != nil {
				if d.handleReply(r) {
					resetTimer(timer, d.timeout)
				}
			}
		case <-timer.C:
			d.handleTimeout()
			resetTimer(timer, d.timeout)
		case <-d.stopCh:
			d.mu.Lock()
			d.state = DownloadFailed
			d.err = &Error{Phase: d.phase, Reason: "aborted"}
			d.mu.Unlock()
			d.teardown()
			return
		}
	}
}

// handleReply applies one matching Reply telegram to the machine. It
// returns true when the machine changed state (the reply timeout is reset
// on every state entry that expects an answer).
func (d *Download) handleReply(r *conbus.ReplyTelegram) bool {
	d.mu.Lock()
	changed := false
	progress := -1

	switch d.state {
	case DownloadWaitingOK:
		switch r.Function {
		case conbus.FuncAck:
			if d.complete {
				d.state = DownloadCompleted
			} else {
				d.phase = PhaseChunk
				d.state = DownloadWaitingData
				d.send(d.tableRequest(conbus.FuncTableDownload))
			}
			changed = true
		case conbus.FuncNak:
			// Module is mid-stream; retry the whole transfer from scratch.
			d.payload = nil
			d.chunks = 0
			d.complete = false
			d.phase = PhaseReset
			d.state = DownloadReceiving
			changed = true
		}

	case DownloadWaitingData:
		switch r.Function {
		case conbus.FuncTableData:
			chunk, err := conbus.Denibble(r.Value)
			if err != nil {
				d.fail(PhaseChunk, "undecodable chunk payload")
			} else {
				d.payload = append(d.payload, chunk...)
				d.chunks++
				progress = len(d.payload)
				// The ack solicits the next chunk; the module never
				// sends one unsolicited.
				d.send(d.tableRequest(conbus.FuncAck))
			}
			changed = true
		case conbus.FuncTableEnd:
			if d.chunks == 0 {
				d.fail(PhaseChunk, "end-of-table before any chunk")
			} else {
				d.send(d.tableRequest(conbus.FuncAck))
				d.complete = true
				d.phase = PhaseConfirm
				// Re-confirm through one more reset round before the
				// download counts as durable.
				d.state = DownloadReceiving
			}
			changed = true
		case conbus.FuncNak:
			d.fail(PhaseChunk, "module rejected chunk transfer")
			changed = true
		}

	default:
		// receiving is a self-loop on telegrams; progress out of it
		// happens on timeout only.
	}

	onProgress := d.OnProgress
	d.mu.Unlock()

	if progress >= 0 && onProgress != nil {
		onProgress(progress)
	}
	return changed
}

// handleTimeout routes the timeout signal through the per-state timeout
// transition. Leaving receiving is the normal path and costs nothing;
// everywhere else a timeout spends one retry.
func (d *Download) handleTimeout() {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case DownloadReceiving:
		d.state = DownloadWaitingOK
		d.send(d.tableRequest(conbus.FuncTableStatus))

	case DownloadWaitingOK:
		if !d.spendRetry() {
			return
		}
		d.send(d.tableRequest(conbus.FuncTableStatus))

	case DownloadWaitingData:
		if !d.spendRetry() {
			return
		}
		// Assume the chunk (or our ack) was lost; rerun the minimal
		// necessary step, which is the reset round.
		d.state = DownloadWaitingOK
		d.send(d.tableRequest(conbus.FuncTableStatus))
	}
}

func (d *Download) tableRequest(fn conbus.Function) (*conbus.Telegram, error) {
	return conbus.BuildSystem(d.serial, fn, string(d.kind), "")
}

// spendRetry consumes one retry, failing the session when the budget is
// exhausted. Callers hold d.mu.
func (d *Download) spendRetry() bool {
	if d.retriesLeft <= 0 {
		d.fail(d.phase, "retry budget exhausted")
		return false
	}
	d.retriesLeft--
	return true
}

// fail moves the machine to its terminal failure state. Callers hold d.mu.
func (d *Download) fail(phase Phase, reason string) {
	d.state = DownloadFailed
	d.err = &Error{Phase: phase, Reason: reason}
}

// send builds fail-safe: the builder only errors on a malformed serial,
// which the caller of Start controls. Callers hold d.mu.
func (d *Download) send(t *conbus.Telegram, err error) {
	if err != nil {
		d.fail(d.phase, "internal: "+err.Error())
		return
	}
	if serr := d.bus.Send(t); serr != nil {
		d.fail(d.phase, "send failed: "+serr.Error())
	}
}

// teardown unsubscribes, fires the terminal hook exactly once, and closes
// the done channel.
func (d *Download) teardown() {
	d.bus.Unsubscribe(d.subID)

	d.mu.Lock()
	err := d.err
	payload := d.payload
	done := d.done
	d.running = false
	d.mu.Unlock()

	if err != nil {
		if d.OnError != nil {
			d.OnError(err)
		}
	} else if d.OnFinish != nil {
		d.OnFinish(payload)
	}
	close(done)
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
