// SPDX-License-Identifier: Apache-2.0

// Package conbus provides a reference Go implementation of the Conbus
// field-device protocol.
//
// Conbus is an ASCII-framed protocol for communication between controllers
// and building-automation modules on a shared bus, normally reached through
// a TCP gateway. This package provides telegram encoding/decoding, checksum
// validation, the frame stream extractor, and payload formatting.
package conbus

// Frame delimiters
const (
	FrameStart = '<'
	FrameEnd   = '>'
)

// Frame size limits. A table-data reply carries up to 64 payload bytes,
// nibble-encoded to 128 characters, plus header and CRC-32 trailer.
const (
	MaxFrameSize = 160
	MaxChunkSize = 64
)

// SerialNumberLength is the fixed width of a module serial number.
const SerialNumberLength = 10

// SerialBroadcast addresses every module on the bus. Any module may answer
// a request sent to it.
const SerialBroadcast = "0000000000"

// Function identifies the operation a System telegram requests, or the
// operation a Reply telegram answers. The set is closed: parsing a telegram
// with a code outside this set is an error.
type Function string

// Function codes
const (
	FuncDiscovery     Function = "01"
	FuncReadDatapoint Function = "02"
	FuncWriteConfig   Function = "03"
	FuncAction        Function = "04"
	FuncBlink         Function = "05"
	FuncUnblink       Function = "06"
	FuncTableStatus   Function = "10"
	FuncTableDownload Function = "11"
	FuncTableUpload   Function = "12"
	FuncTableData     Function = "16"
	FuncTableEnd      Function = "17"
	FuncAck           Function = "18"
	FuncNak           Function = "19"
)

var knownFunctions = map[Function]bool{
	FuncDiscovery:     true,
	FuncReadDatapoint: true,
	FuncWriteConfig:   true,
	FuncAction:        true,
	FuncBlink:         true,
	FuncUnblink:       true,
	FuncTableStatus:   true,
	FuncTableDownload: true,
	FuncTableUpload:   true,
	FuncTableData:     true,
	FuncTableEnd:      true,
	FuncAck:           true,
	FuncNak:           true,
}

// KnownFunction reports whether code is part of the closed function set.
func KnownFunction(code Function) bool {
	return knownFunctions[code]
}

// Documented datapoint codes. The datapoint field is an open string: codes
// outside this list pass through parsing unchanged.
const (
	DatapointModuleType  = "00"
	DatapointHWVersion   = "01"
	DatapointSWVersion   = "02"
	DatapointSerial      = "04"
	DatapointModuleState = "12"
	DatapointTemperature = "18"
	DatapointVoltage     = "19"
	DatapointOutputState = "20"
	DatapointInputState  = "21"
)

// DefaultDatapoint is used for function codes that carry no datapoint of
// their own (discovery, acks, table transfer).
const DefaultDatapoint = "00"

// EventType distinguishes the two asynchronous input notifications.
type EventType int

// Event types
const (
	EventButtonPress   EventType = iota // wire char 'M' ("make")
	EventButtonRelease                  // wire char 'B' ("break")
)

// Event wire characters
const (
	eventCharPress   = 'M'
	eventCharRelease = 'B'
)

// Event input number ranges. Input numbers above MaxEventInput are a
// protocol violation.
const (
	MaxPushButtonInput = 9
	MaxIRRemoteInput   = 89
	ProximityInput     = 90
	MaxEventInput      = 90
)

// InputKind classifies an event's input number.
type InputKind int

// Input kinds
const (
	InputPushButton InputKind = iota
	InputIRRemote
	InputProximity
)

// ChecksumKind selects the trailing checksum algorithm of a frame.
type ChecksumKind int

// Checksum kinds. XOR is the default; CRC-32 is used by the table-transfer
// data and end frames, which carry large binary payloads.
const (
	ChecksumXOR ChecksumKind = iota
	ChecksumCRC32
)

// Width returns the checksum's width in wire characters.
func (k ChecksumKind) Width() int {
	if k == ChecksumCRC32 {
		return 8
	}
	return 2
}

// FunctionChecksum returns the checksum kind frames with the given function
// code carry.
func FunctionChecksum(code Function) ChecksumKind {
	if code == FuncTableData || code == FuncTableEnd {
		return ChecksumCRC32
	}
	return ChecksumXOR
}
