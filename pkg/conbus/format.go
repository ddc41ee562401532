// SPDX-License-Identifier: Apache-2.0

package conbus

import "fmt"

// FormatTelegram formats a telegram into a human-readable one-line summary.
func FormatTelegram(t *Telegram) string {
	check := ""
	if !t.ChecksumValid {
		check = " [BAD CHECKSUM]"
	}

	switch t.Kind {
	case KindSystem:
		s := t.System
		return fmt.Sprintf("SYS  %s %s (F%s) D%s%s%s",
			s.SerialNumber, FormatFunction(s.Function), s.Function,
			s.Datapoint, formatPayload(s.Payload), check)
	case KindReply:
		r := t.Reply
		return fmt.Sprintf("RPLY %s %s (F%s) D%s%s%s",
			r.SerialNumber, FormatFunction(r.Function), r.Function,
			r.Datapoint, formatPayload(r.Value), check)
	case KindEvent:
		e := t.Event
		return fmt.Sprintf("EVNT %s (%02d) link=%02d %s %02d %s%s",
			ModuleName(e.ModuleType), e.ModuleType, e.Link,
			FormatInputKind(e.InputKind()), e.Input,
			FormatEventType(e.Type), check)
	default:
		return fmt.Sprintf("UNKNOWN %s%s", t.Raw, check)
	}
}

// FormatFunction returns the human-readable name for a function code.
func FormatFunction(fn Function) string {
	switch fn {
	case FuncDiscovery:
		return "DISCOVERY"
	case FuncReadDatapoint:
		return "READ_DATAPOINT"
	case FuncWriteConfig:
		return "WRITE_CONFIG"
	case FuncAction:
		return "ACTION"
	case FuncBlink:
		return "BLINK"
	case FuncUnblink:
		return "UNBLINK"
	case FuncTableStatus:
		return "TABLE_STATUS"
	case FuncTableDownload:
		return "TABLE_DOWNLOAD"
	case FuncTableUpload:
		return "TABLE_UPLOAD"
	case FuncTableData:
		return "TABLE_DATA"
	case FuncTableEnd:
		return "TABLE_END"
	case FuncAck:
		return "ACK"
	case FuncNak:
		return "NAK"
	default:
		return "UNKNOWN"
	}
}

// FormatDatapoint returns the human-readable name for a documented
// datapoint code, or the raw code for undocumented ones.
func FormatDatapoint(code string) string {
	switch code {
	case DatapointModuleType:
		return "MODULE_TYPE"
	case DatapointHWVersion:
		return "HW_VERSION"
	case DatapointSWVersion:
		return "SW_VERSION"
	case DatapointSerial:
		return "SERIAL_NUMBER"
	case DatapointModuleState:
		return "MODULE_STATE"
	case DatapointTemperature:
		return "TEMPERATURE"
	case DatapointVoltage:
		return "VOLTAGE"
	case DatapointOutputState:
		return "OUTPUT_STATE"
	case DatapointInputState:
		return "INPUT_STATE"
	default:
		return "D" + code
	}
}

// FormatEventType returns the human-readable name for an event type.
func FormatEventType(t EventType) string {
	if t == EventButtonRelease {
		return "RELEASE"
	}
	return "PRESS"
}

// FormatInputKind returns the human-readable name for an input class.
func FormatInputKind(k InputKind) string {
	switch k {
	case InputPushButton:
		return "button"
	case InputIRRemote:
		return "ir"
	case InputProximity:
		return "proximity"
	default:
		return "unknown"
	}
}

func formatPayload(p string) string {
	if p == "" {
		return ""
	}
	return " " + p
}
