// SPDX-License-Identifier: Apache-2.0

package conbus

import (
	"errors"
	"testing"
)

// ============================================================
// Parse Tests
// ============================================================

func TestParseTelegram_System(t *testing.T) {
	tg, err := ParseTelegram("<S0012345678F02D12FI>")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if tg.Kind != KindSystem {
		t.Fatalf("expected KindSystem, got %v", tg.Kind)
	}
	s := tg.System
	if s.SerialNumber != "0012345678" {
		t.Errorf("serial = %q", s.SerialNumber)
	}
	if s.Function != FuncReadDatapoint {
		t.Errorf("function = %q", s.Function)
	}
	if s.Datapoint != "12" {
		t.Errorf("datapoint = %q", s.Datapoint)
	}
	if s.Payload != "" {
		t.Errorf("payload = %q", s.Payload)
	}
	if !tg.ChecksumValid {
		t.Error("checksum should validate")
	}
}

func TestParseTelegram_Reply(t *testing.T) {
	tg, err := ParseTelegram("<R0012345678F02D1225FO>")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if tg.Kind != KindReply {
		t.Fatalf("expected KindReply, got %v", tg.Kind)
	}
	if tg.Reply.Value != "25" {
		t.Errorf("value = %q", tg.Reply.Value)
	}
	if !tg.ChecksumValid {
		t.Error("checksum should validate")
	}
}

func TestParseTelegram_Event(t *testing.T) {
	tg, err := ParseTelegram("<E14L00I02MAK>")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if tg.Kind != KindEvent {
		t.Fatalf("expected KindEvent, got %v", tg.Kind)
	}
	e := tg.Event
	if e.ModuleType != 14 || e.Link != 0 || e.Input != 2 {
		t.Errorf("fields = %d/%d/%d", e.ModuleType, e.Link, e.Input)
	}
	if e.Type != EventButtonPress {
		t.Errorf("type = %v", e.Type)
	}
	if !tg.ChecksumValid {
		t.Error("checksum should validate")
	}
}

func TestParseTelegram_Discovery(t *testing.T) {
	tg, err := ParseTelegram("<S0000000000F01D00FA>")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if !tg.IsDiscoveryRequest() {
		t.Error("should be a discovery request")
	}
	if !tg.IsBroadcast() {
		t.Error("all-zero serial should be a broadcast")
	}
}

func TestParseTelegram_CRC32Frame(t *testing.T) {
	tg, err := ParseTelegram("<S0012345678F16D00ABACMDIADCHF>")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if tg.System.Function != FuncTableData {
		t.Errorf("function = %q", tg.System.Function)
	}
	if tg.System.Payload != "ABAC" {
		t.Errorf("payload = %q", tg.System.Payload)
	}
	if tg.Checksum != "MDIADCHF" {
		t.Errorf("checksum = %q", tg.Checksum)
	}
	if !tg.ChecksumValid {
		t.Error("CRC-32 checksum should validate")
	}
}

func TestParseTelegram_ChecksumMismatchIsNotAnError(t *testing.T) {
	tg, err := ParseTelegram("<S0012345678F02D12AA>")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if tg.ChecksumValid {
		t.Error("corrupted checksum should not validate")
	}
	// Fields still decode so upstream tooling can inspect bad frames.
	if tg.System.Datapoint != "12" {
		t.Errorf("datapoint = %q", tg.System.Datapoint)
	}
}

func TestParseTelegram_FormatErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "no delimiters", raw: "S0012345678F02D12FI"},
		{name: "missing start", raw: "S0012345678F02D12FI>"},
		{name: "missing end", raw: "<S0012345678F02D12FI"},
		{name: "empty frame", raw: "<>"},
		{name: "unknown type", raw: "<X0012345678F02D12FI>"},
		{name: "truncated header", raw: "<S001234FI>"},
		{name: "non-digit serial", raw: "<S00123A5678F02D12FI>"},
		{name: "missing function marker", raw: "<S0012345678X02D12FI>"},
		{name: "missing datapoint marker", raw: "<S0012345678F02X12FI>"},
		{name: "bad event length", raw: "<E14L00I02MA>"},
		{name: "bad event type char", raw: "<E14L00I02XAK>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTelegram(tt.raw); err == nil {
				t.Errorf("ParseTelegram(%q) should fail", tt.raw)
			}
		})
	}
}

func TestParseTelegram_UnknownFunction(t *testing.T) {
	_, err := ParseTelegram("<S0012345678F99D12FI>")
	var ufe *UnknownFunctionError
	if !errors.As(err, &ufe) {
		t.Fatalf("expected UnknownFunctionError, got %v", err)
	}
	if ufe.Code != "99" {
		t.Errorf("code = %q", ufe.Code)
	}
}

// Unknown datapoint codes are an open string and must pass through.
func TestParseTelegram_UndocumentedDatapoint(t *testing.T) {
	raw := "<S0012345678F02D" + "77" + XORChecksum([]byte("S0012345678F02D77")) + ">"
	tg, err := ParseTelegram(raw)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if tg.System.Datapoint != "77" {
		t.Errorf("datapoint = %q", tg.System.Datapoint)
	}
}

// ============================================================
// Event Classification Tests
// ============================================================

func TestEventInputClassification(t *testing.T) {
	tests := []struct {
		input    int
		expected InputKind
	}{
		{input: 0, expected: InputPushButton},
		{input: 9, expected: InputPushButton},
		{input: 10, expected: InputIRRemote},
		{input: 89, expected: InputIRRemote},
		{input: 90, expected: InputProximity},
	}

	for _, tt := range tests {
		tg, err := BuildEvent(24, 1, tt.input, EventButtonPress)
		if err != nil {
			t.Fatalf("BuildEvent(%d) error: %v", tt.input, err)
		}
		if got := tg.Event.InputKind(); got != tt.expected {
			t.Errorf("input %d classified as %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestParseTelegram_EventInputOutOfRange(t *testing.T) {
	body := "E14L00I91M"
	raw := "<" + body + XORChecksum([]byte(body)) + ">"
	_, err := ParseTelegram(raw)
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected DomainError for input 91, got %v", err)
	}
}

// ============================================================
// Round-Trip Tests
// ============================================================

func TestRoundTrip_BuildThenParse(t *testing.T) {
	builders := []struct {
		name string
		tg   func() (*Telegram, error)
	}{
		{name: "discovery request", tg: func() (*Telegram, error) { return NewDiscoveryRequest(), nil }},
		{name: "discovery response", tg: func() (*Telegram, error) { return NewDiscoveryResponse("0012345678") }},
		{name: "read datapoint", tg: func() (*Telegram, error) { return NewReadDatapointRequest("0012345678", DatapointTemperature) }},
		{name: "blink", tg: func() (*Telegram, error) { return NewBlinkCommand("0012345678", true) }},
		{name: "unblink", tg: func() (*Telegram, error) { return NewBlinkCommand("0012345678", false) }},
		{name: "ack", tg: func() (*Telegram, error) { return NewAck("0012345678") }},
		{name: "table status", tg: func() (*Telegram, error) { return NewTableStatusRequest("0012345678") }},
		{name: "table data", tg: func() (*Telegram, error) { return NewTableData("0012345678", []byte{0x01, 0x02, 0xFF}) }},
		{name: "table end reply", tg: func() (*Telegram, error) { return NewTableEndReply("0012345678") }},
		{name: "event", tg: func() (*Telegram, error) { return BuildEvent(33, 5, 90, EventButtonRelease) }},
		{name: "reply with value", tg: func() (*Telegram, error) { return BuildReply("0012345678", FuncReadDatapoint, "18", "215") }},
	}

	for _, tt := range builders {
		t.Run(tt.name, func(t *testing.T) {
			built, err := tt.tg()
			if err != nil {
				t.Fatalf("build error: %v", err)
			}
			if !built.ChecksumValid {
				t.Error("built telegram should have a valid checksum")
			}

			parsed, err := ParseTelegram(built.Raw)
			if err != nil {
				t.Fatalf("parse of built frame %q failed: %v", built.Raw, err)
			}
			if parsed.Raw != built.Raw {
				t.Errorf("raw mismatch: %q != %q", parsed.Raw, built.Raw)
			}
			if parsed.Kind != built.Kind {
				t.Errorf("kind mismatch: %v != %v", parsed.Kind, built.Kind)
			}
			if !parsed.ChecksumValid {
				t.Errorf("parsed checksum invalid for %q", built.Raw)
			}

			switch built.Kind {
			case KindSystem:
				if *parsed.System != *built.System {
					t.Errorf("system mismatch: %+v != %+v", parsed.System, built.System)
				}
			case KindReply:
				if *parsed.Reply != *built.Reply {
					t.Errorf("reply mismatch: %+v != %+v", parsed.Reply, built.Reply)
				}
			case KindEvent:
				if *parsed.Event != *built.Event {
					t.Errorf("event mismatch: %+v != %+v", parsed.Event, built.Event)
				}
			}
		})
	}
}

func TestRoundTrip_ParseThenRebuild(t *testing.T) {
	raws := []string{
		"<S0000000000F01D00FA>",
		"<S0012345678F02D12FI>",
		"<R0012345678F02D1225FO>",
		"<E14L00I02MAK>",
		"<S0012345678F16D00ABACMDIADCHF>",
	}

	for _, raw := range raws {
		tg, err := ParseTelegram(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}

		var rebuilt *Telegram
		switch tg.Kind {
		case KindSystem:
			rebuilt, err = BuildSystem(tg.System.SerialNumber, tg.System.Function, tg.System.Datapoint, tg.System.Payload)
		case KindReply:
			rebuilt, err = BuildReply(tg.Reply.SerialNumber, tg.Reply.Function, tg.Reply.Datapoint, tg.Reply.Value)
		case KindEvent:
			rebuilt, err = BuildEvent(tg.Event.ModuleType, tg.Event.Link, tg.Event.Input, tg.Event.Type)
		}
		if err != nil {
			t.Fatalf("rebuild %q: %v", raw, err)
		}
		if rebuilt.Raw != raw {
			t.Errorf("rebuild mismatch: %q != %q", rebuilt.Raw, raw)
		}
	}
}

// ============================================================
// Build Validation Tests
// ============================================================

func TestBuildSystem_Validation(t *testing.T) {
	if _, err := BuildSystem("12345", FuncDiscovery, "00", ""); err == nil {
		t.Error("short serial should fail")
	}
	if _, err := BuildSystem("0012345678", Function("99"), "00", ""); err == nil {
		t.Error("unknown function should fail")
	}
	if _, err := BuildSystem("0012345678", FuncDiscovery, "0", ""); err == nil {
		t.Error("short datapoint should fail")
	}
}

func TestBuildEvent_Validation(t *testing.T) {
	if _, err := BuildEvent(100, 0, 0, EventButtonPress); err == nil {
		t.Error("3-digit module type should fail")
	}
	if _, err := BuildEvent(24, 0, 91, EventButtonPress); err == nil {
		t.Error("input 91 should fail")
	}
}
