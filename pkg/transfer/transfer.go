// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"fmt"

	"github.com/xpbus/conbus/pkg/conbus"
	"github.com/xpbus/conbus/pkg/gateway"
)

// Bus is the slice of the connection manager the state machines drive.
// *gateway.Client satisfies it.
type Bus interface {
	Send(t *conbus.Telegram) error
	Subscribe(l gateway.Listener) int
	Unsubscribe(id int)
}

// Phase names the handshake stage a transfer failed in, so operators can
// tell "module unreachable" from "module rejected the data".
type Phase int

// Transfer phases
const (
	PhaseReset Phase = iota
	PhaseChunk
	PhaseConfirm
)

// String returns the phase's handshake stage name.
func (p Phase) String() string {
	switch p {
	case PhaseReset:
		return "reset handshake"
	case PhaseChunk:
		return "chunk transfer"
	case PhaseConfirm:
		return "final confirmation"
	default:
		return "unknown phase"
	}
}

// Error terminates a session. It is delivered exactly once through the
// session's OnError hook; no further transitions are accepted afterwards.
type Error struct {
	Phase  Phase
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("transfer failed during %s: %s", e.Phase, e.Reason)
}

// matchesSession reports whether ev carries a Reply telegram from serial.
// Everything else on a shared bus is unrelated traffic a session ignores.
func matchesSession(ev gateway.Event, serial string) *conbus.ReplyTelegram {
	if ev.Kind != gateway.EventReceived {
		return nil
	}
	t := ev.Telegram
	if t.Kind != conbus.KindReply || t.Reply.SerialNumber != serial {
		return nil
	}
	if !t.ChecksumValid {
		return nil
	}
	return t.Reply
}
