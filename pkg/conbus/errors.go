// SPDX-License-Identifier: Apache-2.0

package conbus

import "fmt"

// FrameFormatError reports a structurally malformed frame: missing
// delimiters, a non-digit serial number, truncated fields.
type FrameFormatError struct {
	Raw    string
	Reason string
}

func (e *FrameFormatError) Error() string {
	return fmt.Sprintf("malformed frame %q: %s", e.Raw, e.Reason)
}

// UnknownFunctionError reports a function code outside the closed set.
type UnknownFunctionError struct {
	Code string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function code %q", e.Code)
}

// DomainError reports a field value outside its protocol-legal range. It is
// raised at parse time; values are never silently clamped.
type DomainError struct {
	Field string
	Value int
	Max   int
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s %d out of range (max %d)", e.Field, e.Value, e.Max)
}
