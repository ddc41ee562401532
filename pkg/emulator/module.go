// SPDX-License-Identifier: Apache-2.0

// Package emulator implements a bus-side Conbus endpoint: a TCP server
// that behaves like a set of installed modules. It exists so the CLI and
// the gateway can be exercised without hardware on the bench.
package emulator

import (
	"sync"

	"github.com/xpbus/conbus/pkg/conbus"
)

// Module is one emulated bus participant. Datapoint values are stored as
// the wire payload text a real module would send, so reads reply verbatim.
type Module struct {
	Serial string
	Type   int

	mu         sync.Mutex
	datapoints map[string]string
	table      []byte
	blinking   bool
}

// NewModule creates a module of the given type with the identification
// datapoints a real unit reports.
func NewModule(serial string, moduleType int) *Module {
	m := &Module{
		Serial: serial,
		Type:   moduleType,
		datapoints: map[string]string{
			conbus.DatapointModuleType:  conbus.NibbleEncode([]byte{byte(moduleType)}),
			conbus.DatapointHWVersion:   conbus.NibbleEncode([]byte{1, 0}),
			conbus.DatapointSWVersion:   conbus.NibbleEncode([]byte{1, 4}),
			conbus.DatapointSerial:      conbus.NibbleEncode([]byte(serial)),
			conbus.DatapointModuleState: conbus.NibbleEncode([]byte{0}),
		},
	}
	switch moduleType {
	case conbus.ModuleTypeXP24:
		m.datapoints[conbus.DatapointOutputState] = conbus.NibbleEncode([]byte{0})
		m.datapoints[conbus.DatapointInputState] = conbus.NibbleEncode([]byte{0})
	case conbus.ModuleTypeXP33:
		m.datapoints[conbus.DatapointOutputState] = conbus.NibbleEncode([]byte{0, 0, 0})
	case conbus.ModuleTypeXP20, conbus.ModuleTypeCP20:
		m.datapoints[conbus.DatapointInputState] = conbus.NibbleEncode([]byte{0})
	case conbus.ModuleTypeXP130, conbus.ModuleTypeXP230:
		m.datapoints[conbus.DatapointTemperature] = conbus.NibbleEncode([]byte{35})
		m.datapoints[conbus.DatapointVoltage] = conbus.NibbleEncode([]byte{120})
	}
	return m
}

// Datapoint returns the stored payload for a datapoint code.
func (m *Module) Datapoint(code string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.datapoints[code]
	return v, ok
}

// SetDatapoint stores a payload under a datapoint code.
func (m *Module) SetDatapoint(code, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datapoints[code] = value
}

// Table returns a copy of the module's action table blob.
func (m *Module) Table() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.table))
	copy(out, m.table)
	return out
}

// SetTable replaces the module's action table blob.
func (m *Module) SetTable(blob []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table = make([]byte, len(blob))
	copy(m.table, blob)
}

// Blinking reports whether the identification LED is blinking.
func (m *Module) Blinking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blinking
}

func (m *Module) setBlinking(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blinking = on
}
