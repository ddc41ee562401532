// SPDX-License-Identifier: Apache-2.0

package conbus

import "strconv"

// Fixed field offsets inside a System/Reply body (after the '<').
const (
	serialOffset    = 1
	funcMarker      = serialOffset + SerialNumberLength // 'F'
	funcOffset      = funcMarker + 1
	datapointMarker = funcOffset + 2 // 'D'
	datapointOffset = datapointMarker + 1
	payloadOffset   = datapointOffset + 2
)

// Event body layout: "E" type(2) "L" link(2) "I" input(2) eventChar
const eventBodyLength = 10

// ParseTelegram parses one bracket-delimited frame into a typed Telegram.
//
// A checksum mismatch is not an error: it is surfaced via the telegram's
// ChecksumValid flag so callers inspecting a corrupted stream still get the
// decoded fields. Structural problems (missing delimiters, bad serial,
// unknown function code, out-of-range event input) are returned as typed
// errors.
func ParseTelegram(raw string) (*Telegram, error) {
	if len(raw) < 2 || raw[0] != FrameStart || raw[len(raw)-1] != FrameEnd {
		return nil, &FrameFormatError{Raw: raw, Reason: "missing frame delimiters"}
	}
	body := raw[1 : len(raw)-1]
	if len(body) == 0 {
		return nil, &FrameFormatError{Raw: raw, Reason: "empty frame"}
	}

	switch body[0] {
	case 'S', 'R':
		return parseAddressed(raw, body)
	case 'E':
		return parseEvent(raw, body)
	default:
		return nil, &FrameFormatError{Raw: raw, Reason: "unknown telegram type " + string(body[0])}
	}
}

// parseAddressed handles System and Reply telegrams, which share a header.
func parseAddressed(raw, body string) (*Telegram, error) {
	if len(body) < payloadOffset {
		return nil, &FrameFormatError{Raw: raw, Reason: "truncated header"}
	}

	serial := body[serialOffset:funcMarker]
	if !allDigits(serial) {
		return nil, &FrameFormatError{Raw: raw, Reason: "serial number is not 10 digits"}
	}
	if body[funcMarker] != 'F' {
		return nil, &FrameFormatError{Raw: raw, Reason: "missing function marker"}
	}
	fn := Function(body[funcOffset : funcOffset+2])
	if !KnownFunction(fn) {
		return nil, &UnknownFunctionError{Code: string(fn)}
	}
	if body[datapointMarker] != 'D' {
		return nil, &FrameFormatError{Raw: raw, Reason: "missing datapoint marker"}
	}
	datapoint := body[datapointOffset : datapointOffset+2]

	kind := FunctionChecksum(fn)
	width := kind.Width()
	if len(body) < payloadOffset+width {
		return nil, &FrameFormatError{Raw: raw, Reason: "truncated checksum"}
	}
	payload := body[payloadOffset : len(body)-width]
	checksum := body[len(body)-width:]
	valid := checksumFor(kind, body[:len(body)-width]) == checksum

	t := &Telegram{
		Raw:           raw,
		Checksum:      checksum,
		ChecksumValid: valid,
	}
	if body[0] == 'S' {
		t.Kind = KindSystem
		t.System = &SystemTelegram{
			SerialNumber: serial,
			Function:     fn,
			Datapoint:    datapoint,
			Payload:      payload,
		}
	} else {
		t.Kind = KindReply
		t.Reply = &ReplyTelegram{
			SerialNumber: serial,
			Function:     fn,
			Datapoint:    datapoint,
			Value:        payload,
		}
	}
	return t, nil
}

func parseEvent(raw, body string) (*Telegram, error) {
	if len(body) != eventBodyLength+2 {
		return nil, &FrameFormatError{Raw: raw, Reason: "bad event frame length"}
	}
	if body[3] != 'L' || body[6] != 'I' {
		return nil, &FrameFormatError{Raw: raw, Reason: "missing event field markers"}
	}

	moduleType, err := strconv.Atoi(body[1:3])
	if err != nil {
		return nil, &FrameFormatError{Raw: raw, Reason: "module type is not numeric"}
	}
	link, err := strconv.Atoi(body[4:6])
	if err != nil {
		return nil, &FrameFormatError{Raw: raw, Reason: "link number is not numeric"}
	}
	input, err := strconv.Atoi(body[7:9])
	if err != nil {
		return nil, &FrameFormatError{Raw: raw, Reason: "input number is not numeric"}
	}
	if input > MaxEventInput {
		return nil, &DomainError{Field: "event input", Value: input, Max: MaxEventInput}
	}

	var eventType EventType
	switch body[9] {
	case eventCharPress:
		eventType = EventButtonPress
	case eventCharRelease:
		eventType = EventButtonRelease
	default:
		return nil, &FrameFormatError{Raw: raw, Reason: "unknown event type " + string(body[9])}
	}

	checksum := body[len(body)-2:]
	valid := checksumFor(ChecksumXOR, body[:len(body)-2]) == checksum

	return &Telegram{
		Kind:          KindEvent,
		Raw:           raw,
		Checksum:      checksum,
		ChecksumValid: valid,
		Event: &EventTelegram{
			ModuleType: moduleType,
			Link:       link,
			Input:      input,
			Type:       eventType,
		},
	}, nil
}

func allDigits(s string) bool {
	if len(s) != SerialNumberLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
