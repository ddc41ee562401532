// SPDX-License-Identifier: Apache-2.0

package conbus

// TelegramKind discriminates the telegram variants. It is set once at parse
// or build time; callers must never infer the kind from field presence.
type TelegramKind int

// Telegram kinds
const (
	KindSystem TelegramKind = iota
	KindReply
	KindEvent
)

// String returns the kind's wire prefix character.
func (k TelegramKind) String() string {
	switch k {
	case KindSystem:
		return "S"
	case KindReply:
		return "R"
	case KindEvent:
		return "E"
	default:
		return "?"
	}
}

// Telegram is the typed representation of one frame. Exactly one of System,
// Reply and Event is non-nil, matching Kind.
//
// Raw always holds the exact wire string the telegram round-trips to.
// ChecksumValid is computed once at parse time; telegrams built for sending
// always have a freshly computed checksum and ChecksumValid set.
type Telegram struct {
	Kind          TelegramKind
	Raw           string
	Checksum      string
	ChecksumValid bool

	System *SystemTelegram
	Reply  *ReplyTelegram
	Event  *EventTelegram
}

// SystemTelegram is a request frame addressed to a module.
type SystemTelegram struct {
	SerialNumber string
	Function     Function
	Datapoint    string
	Payload      string
}

// ReplyTelegram is a module's answer to a System telegram.
type ReplyTelegram struct {
	SerialNumber string
	Function     Function
	Datapoint    string
	Value        string
}

// EventTelegram is an asynchronous input notification.
type EventTelegram struct {
	ModuleType int
	Link       int
	Input      int
	Type       EventType
}

// InputKind classifies the event's input number: 0-9 push button, 10-89 IR
// remote, 90 proximity sensor.
func (e *EventTelegram) InputKind() InputKind {
	switch {
	case e.Input <= MaxPushButtonInput:
		return InputPushButton
	case e.Input <= MaxIRRemoteInput:
		return InputIRRemote
	default:
		return InputProximity
	}
}

// IsBroadcast reports whether a System telegram addresses every module.
func (t *Telegram) IsBroadcast() bool {
	return t.Kind == KindSystem && t.System.SerialNumber == SerialBroadcast
}

// IsDiscoveryRequest reports whether t is a discovery System telegram.
func (t *Telegram) IsDiscoveryRequest() bool {
	return t.Kind == KindSystem && t.System.Function == FuncDiscovery
}

// IsDiscoveryResponse reports whether t is a discovery Reply telegram.
func (t *Telegram) IsDiscoveryResponse() bool {
	return t.Kind == KindReply && t.Reply.Function == FuncDiscovery
}

// SerialNumber returns the addressed module's serial, or "" for events.
func (t *Telegram) SerialNumber() string {
	switch t.Kind {
	case KindSystem:
		return t.System.SerialNumber
	case KindReply:
		return t.Reply.SerialNumber
	default:
		return ""
	}
}

// Function returns the telegram's function code, or "" for events.
func (t *Telegram) Function() Function {
	switch t.Kind {
	case KindSystem:
		return t.System.Function
	case KindReply:
		return t.Reply.Function
	default:
		return ""
	}
}
