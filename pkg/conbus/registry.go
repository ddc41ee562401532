// SPDX-License-Identifier: Apache-2.0

package conbus

import "fmt"

// Module type registry codes. Events carry the 2-digit registry code, not
// the marketing model number.
const (
	ModuleTypeCP20  = 2
	ModuleTypeXP130 = 13
	ModuleTypeXP20  = 20
	ModuleTypeXP230 = 23
	ModuleTypeXP24  = 24
	ModuleTypeXP33  = 33
)

// moduleNames maps registry codes to model names. This is a display
// concern only; the protocol works with raw codes throughout.
var moduleNames = map[int]string{
	ModuleTypeCP20:  "CP20",
	ModuleTypeXP130: "XP130",
	ModuleTypeXP20:  "XP20",
	ModuleTypeXP230: "XP230",
	ModuleTypeXP24:  "XP24",
	ModuleTypeXP33:  "XP33",
}

// moduleDescriptions gives a short human-readable purpose per model.
var moduleDescriptions = map[int]string{
	ModuleTypeCP20:  "push button panel",
	ModuleTypeXP130: "ethernet gateway",
	ModuleTypeXP20:  "switch link module",
	ModuleTypeXP230: "gateway module",
	ModuleTypeXP24:  "4-channel relay module",
	ModuleTypeXP33:  "3-channel dimmer module",
}

// ModuleName returns the model name for a registry code.
func ModuleName(code int) string {
	if name, ok := moduleNames[code]; ok {
		return name
	}
	return fmt.Sprintf("type %02d", code)
}

// ModuleDescription returns a short description for a registry code.
func ModuleDescription(code int) string {
	if desc, ok := moduleDescriptions[code]; ok {
		return desc
	}
	return "unknown module"
}
