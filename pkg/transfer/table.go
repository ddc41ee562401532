// SPDX-License-Identifier: Apache-2.0

// Package transfer moves action tables between a controller and a module
// over a gateway connection, using the Conbus chunked-transfer handshake.
package transfer

import "fmt"

// Entry is one action-table rule: wire an input of one module to an output
// of another.
type Entry struct {
	ModuleType int
	Link       int
	Input      int
	Output     int
	Inverted   bool
	Command    int
	Parameter  int
}

// entrySize is the wire size of one encoded entry:
//
//	byte 0  module type
//	byte 1  link number
//	byte 2  input number
//	byte 3  output number
//	byte 4  command, bit 7 carries the inverted flag
//	byte 5  parameter
const entrySize = 6

const invertedBit = 0x80

// EncodeTable serializes entries into the opaque blob the bus transports.
func EncodeTable(entries []Entry) ([]byte, error) {
	blob := make([]byte, 0, len(entries)*entrySize)
	for i, e := range entries {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		cmd := byte(e.Command)
		if e.Inverted {
			cmd |= invertedBit
		}
		blob = append(blob,
			byte(e.ModuleType), byte(e.Link), byte(e.Input),
			byte(e.Output), cmd, byte(e.Parameter))
	}
	return blob, nil
}

// DecodeTable deserializes a blob back into entries.
func DecodeTable(blob []byte) ([]Entry, error) {
	if len(blob)%entrySize != 0 {
		return nil, fmt.Errorf("table blob length %d is not a multiple of %d", len(blob), entrySize)
	}
	entries := make([]Entry, 0, len(blob)/entrySize)
	for i := 0; i < len(blob); i += entrySize {
		entries = append(entries, Entry{
			ModuleType: int(blob[i]),
			Link:       int(blob[i+1]),
			Input:      int(blob[i+2]),
			Output:     int(blob[i+3]),
			Inverted:   blob[i+4]&invertedBit != 0,
			Command:    int(blob[i+4] &^ invertedBit),
			Parameter:  int(blob[i+5]),
		})
	}
	return entries, nil
}

func (e Entry) validate() error {
	if e.ModuleType < 0 || e.ModuleType > 255 {
		return fmt.Errorf("module type %d out of range", e.ModuleType)
	}
	if e.Link < 0 || e.Link > 255 {
		return fmt.Errorf("link %d out of range", e.Link)
	}
	if e.Input < 0 || e.Input > 255 {
		return fmt.Errorf("input %d out of range", e.Input)
	}
	if e.Output < 0 || e.Output > 255 {
		return fmt.Errorf("output %d out of range", e.Output)
	}
	if e.Command < 0 || e.Command > 127 {
		return fmt.Errorf("command %d out of range", e.Command)
	}
	if e.Parameter < 0 || e.Parameter > 255 {
		return fmt.Errorf("parameter %d out of range", e.Parameter)
	}
	return nil
}
