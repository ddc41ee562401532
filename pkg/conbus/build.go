// SPDX-License-Identifier: Apache-2.0

package conbus

import "fmt"

// BuildSystem constructs a System telegram ready for transmission. The
// checksum is computed from the rendered body; ChecksumValid is always true
// on built telegrams.
func BuildSystem(serial string, fn Function, datapoint, payload string) (*Telegram, error) {
	if err := validateHeader(serial, fn, datapoint); err != nil {
		return nil, err
	}
	body := "S" + serial + "F" + string(fn) + "D" + datapoint + payload
	return sealed(KindSystem, body, &Telegram{
		System: &SystemTelegram{
			SerialNumber: serial,
			Function:     fn,
			Datapoint:    datapoint,
			Payload:      payload,
		},
	}, FunctionChecksum(fn)), nil
}

// BuildReply constructs a Reply telegram, as produced by modules and the
// bus emulator.
func BuildReply(serial string, fn Function, datapoint, value string) (*Telegram, error) {
	if err := validateHeader(serial, fn, datapoint); err != nil {
		return nil, err
	}
	body := "R" + serial + "F" + string(fn) + "D" + datapoint + value
	return sealed(KindReply, body, &Telegram{
		Reply: &ReplyTelegram{
			SerialNumber: serial,
			Function:     fn,
			Datapoint:    datapoint,
			Value:        value,
		},
	}, FunctionChecksum(fn)), nil
}

// BuildEvent constructs an Event telegram, as produced by input modules and
// the bus emulator.
func BuildEvent(moduleType, link, input int, eventType EventType) (*Telegram, error) {
	if moduleType < 0 || moduleType > 99 {
		return nil, &DomainError{Field: "module type", Value: moduleType, Max: 99}
	}
	if link < 0 || link > 99 {
		return nil, &DomainError{Field: "link number", Value: link, Max: 99}
	}
	if input < 0 || input > MaxEventInput {
		return nil, &DomainError{Field: "event input", Value: input, Max: MaxEventInput}
	}
	ch := byte(eventCharPress)
	if eventType == EventButtonRelease {
		ch = eventCharRelease
	}
	body := fmt.Sprintf("E%02dL%02dI%02d%c", moduleType, link, input, ch)
	return sealed(KindEvent, body, &Telegram{
		Event: &EventTelegram{
			ModuleType: moduleType,
			Link:       link,
			Input:      input,
			Type:       eventType,
		},
	}, ChecksumXOR), nil
}

// sealed finishes a telegram under construction: computes the checksum over
// body and wraps it in frame delimiters.
func sealed(kind TelegramKind, body string, t *Telegram, ck ChecksumKind) *Telegram {
	checksum := checksumFor(ck, body)
	t.Kind = kind
	t.Checksum = checksum
	t.ChecksumValid = true
	t.Raw = string(FrameStart) + body + checksum + string(FrameEnd)
	return t
}

func validateHeader(serial string, fn Function, datapoint string) error {
	if !allDigits(serial) {
		return &FrameFormatError{Raw: serial, Reason: "serial number is not 10 digits"}
	}
	if !KnownFunction(fn) {
		return &UnknownFunctionError{Code: string(fn)}
	}
	if len(datapoint) != 2 {
		return &FrameFormatError{Raw: datapoint, Reason: "datapoint code must be 2 characters"}
	}
	return nil
}
