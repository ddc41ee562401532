// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"log"
	"sync"
	"time"

	"github.com/xpbus/conbus/pkg/conbus"
	"github.com/xpbus/conbus/pkg/gateway"
)

// UploadState is the upload machine's explicit state.
type UploadState int

// Upload states. The push direction is stricter than the pull direction:
// the module has no way to re-request a chunk, so a nak or a timeout fails
// the session immediately instead of retrying.
const (
	UploadIdle UploadState = iota
	UploadAnnouncing
	UploadSending
	UploadCompleted
	UploadFailed
)

// String returns the state name.
func (s UploadState) String() string {
	switch s {
	case UploadIdle:
		return "idle"
	case UploadAnnouncing:
		return "announcing"
	case UploadSending:
		return "sending"
	case UploadCompleted:
		return "completed"
	case UploadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Upload pushes an action table onto a module chunk by chunk.
//
// The handshake: announce the upload and wait for the module's ack, then
// send the payload in chunks, waiting for an ack after every chunk. Once
// the last chunk is acked the machine sends end-of-table and the session
// is done. Completion is tracked per session; a module can be downloaded
// from and uploaded to over the same connection without the two transfers
// sharing any state.
type Upload struct {
	bus     Bus
	timeout time.Duration

	// Session fields, reset by Start.
	serial   string
	kind     TableKind
	state    UploadState
	payload  []byte
	offset   int
	complete bool
	phase    Phase
	err      error

	// OnProgress is called after each acked chunk with the byte count sent
	// so far. OnError and OnFinish are mutually exclusive and fire exactly
	// once per session, from the session goroutine.
	OnProgress func(sent int)
	OnError    func(err error)
	OnFinish   func()

	mu      sync.Mutex
	running bool
	events  chan gateway.Event
	stopCh  chan struct{}
	done    chan struct{}
	subID   int
}

// NewUpload creates an upload session bound to bus. timeout is the
// per-chunk ack timeout (zero means 1 second).
func NewUpload(bus Bus, timeout time.Duration) *Upload {
	if timeout == 0 {
		timeout = time.Second
	}
	return &Upload{
		bus:     bus,
		timeout: timeout,
		state:   UploadIdle,
	}
}

// State returns the current machine state.
func (u *Upload) State() UploadState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Done is closed when the session reaches a terminal state.
func (u *Upload) Done() <-chan struct{} {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.done
}

// Err returns the terminal error, nil after a successful upload.
func (u *Upload) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Start begins pushing payload to the module's table. Starting resets
// every session field; starting while a session is running is an error.
func (u *Upload) Start(serial string, kind TableKind, payload []byte) error {
	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return &Error{Phase: PhaseReset, Reason: "session already running"}
	}
	if len(payload) == 0 {
		u.mu.Unlock()
		return &Error{Phase: PhaseReset, Reason: "empty payload"}
	}
	u.running = true
	u.serial = serial
	u.kind = kind
	u.state = UploadAnnouncing
	u.payload = payload
	u.offset = 0
	u.complete = false
	u.phase = PhaseReset
	u.err = nil
	u.events = make(chan gateway.Event, 64)
	u.stopCh = make(chan struct{})
	u.done = make(chan struct{})
	events := u.events
	u.mu.Unlock()

	u.subID = u.bus.Subscribe(func(ev gateway.Event) {
		if ev.Kind != gateway.EventReceived {
			return
		}
		select {
		case events <- ev:
		default:
			log.Printf("upload: event queue full, dropping %s", ev.Telegram.Raw)
		}
	})

	u.mu.Lock()
	u.send(conbus.BuildSystem(serial, conbus.FuncTableUpload, string(kind), ""))
	u.mu.Unlock()

	go u.run()
	return nil
}

// Abort tears the session down; the error hook reports the abort.
func (u *Upload) Abort() {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return
	}
	stop := u.stopCh
	done := u.done
	u.mu.Unlock()
	close(stop)
	<-done
}

// run is the session's single goroutine; every transition happens here.
func (u *Upload) run() {
	timer := time.NewTimer(u.timeout)
	defer timer.Stop()

	for {
		if s := u.State(); s == UploadCompleted || s == UploadFailed {
			u.teardown()
			return
		}

		select {
		case ev := <-u.events:
			if r := matchesSession(ev, u.serial); r != nil {
				if u.handleReply(r) {
					resetTimer(timer, u.timeout)
				}
			}
		case <-timer.C:
			u.handleTimeout()
		case <-u.stopCh:
			u.mu.Lock()
			u.state = UploadFailed
			u.err = &Error{Phase: u.phase, Reason: "aborted"}
			u.mu.Unlock()
			u.teardown()
			return
		}
	}
}

// handleReply applies one matching Reply telegram to the machine. It
// returns true when the machine changed state.
func (u *Upload) handleReply(r *conbus.ReplyTelegram) bool {
	u.mu.Lock()
	changed := false
	progress := -1

	switch u.state {
	case UploadAnnouncing:
		switch r.Function {
		case conbus.FuncAck:
			u.phase = PhaseChunk
			u.state = UploadSending
			u.sendNextChunk()
			changed = true
		case conbus.FuncNak:
			u.fail(PhaseReset, "module rejected upload")
			changed = true
		}

	case UploadSending:
		switch r.Function {
		case conbus.FuncAck:
			progress = u.offset
			if u.offset < len(u.payload) {
				u.sendNextChunk()
			} else if !u.complete {
				// Last chunk acked; close the transfer.
				u.complete = true
				u.phase = PhaseConfirm
				u.send(conbus.BuildSystem(u.serial, conbus.FuncTableEnd, string(u.kind), ""))
			} else {
				u.state = UploadCompleted
			}
			changed = true
		case conbus.FuncNak:
			u.fail(u.phase, "module rejected chunk")
			changed = true
		}
	}

	onProgress := u.OnProgress
	u.mu.Unlock()

	if progress >= 0 && onProgress != nil {
		onProgress(progress)
	}
	return changed
}

// handleTimeout fails the session; an uploading module that stops acking
// cannot be resynchronized mid-stream.
func (u *Upload) handleTimeout() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.fail(u.phase, "timed out waiting for acknowledgement")
}

// sendNextChunk sends the next payload slice as a table-data telegram and
// advances the offset. Callers hold u.mu.
func (u *Upload) sendNextChunk() {
	end := u.offset + conbus.MaxChunkSize
	if end > len(u.payload) {
		end = len(u.payload)
	}
	chunk := u.payload[u.offset:end]
	u.offset = end
	u.send(conbus.BuildSystem(u.serial, conbus.FuncTableData, string(u.kind), conbus.NibbleEncode(chunk)))
}

// fail moves the machine to its terminal failure state. Callers hold u.mu.
func (u *Upload) fail(phase Phase, reason string) {
	u.state = UploadFailed
	u.err = &Error{Phase: phase, Reason: reason}
}

// send builds fail-safe, mirroring Download.send. Callers hold u.mu.
func (u *Upload) send(t *conbus.Telegram, err error) {
	if err != nil {
		u.fail(u.phase, "internal: "+err.Error())
		return
	}
	if serr := u.bus.Send(t); serr != nil {
		u.fail(u.phase, "send failed: "+serr.Error())
	}
}

// teardown unsubscribes, fires the terminal hook exactly once, and closes
// the done channel.
func (u *Upload) teardown() {
	u.bus.Unsubscribe(u.subID)

	u.mu.Lock()
	err := u.err
	done := u.done
	u.running = false
	u.mu.Unlock()

	if err != nil {
		if u.OnError != nil {
			u.OnError(err)
		}
	} else if u.OnFinish != nil {
		u.OnFinish()
	}
	close(done)
}
