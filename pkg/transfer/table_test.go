// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"reflect"
	"testing"
)

func TestTable_RoundTrip(t *testing.T) {
	entries := []Entry{
		{ModuleType: 24, Link: 0, Input: 0, Output: 0, Command: 1, Parameter: 0},
		{ModuleType: 33, Link: 2, Input: 7, Output: 3, Inverted: true, Command: 2, Parameter: 100},
		{ModuleType: 20, Link: 255, Input: 255, Output: 255, Command: 127, Parameter: 255},
	}

	blob, err := EncodeTable(entries)
	if err != nil {
		t.Fatalf("EncodeTable: %v", err)
	}
	if len(blob) != len(entries)*entrySize {
		t.Fatalf("blob length = %d, want %d", len(blob), len(entries)*entrySize)
	}

	decoded, err := DecodeTable(blob)
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}
	if !reflect.DeepEqual(decoded, entries) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, entries)
	}
}

func TestTable_InvertedFlagSharesCommandByte(t *testing.T) {
	blob, err := EncodeTable([]Entry{{Inverted: true, Command: 0x05}})
	if err != nil {
		t.Fatalf("EncodeTable: %v", err)
	}
	if blob[4] != 0x85 {
		t.Fatalf("command byte = %#x, want 0x85", blob[4])
	}
}

func TestTable_DecodeRejectsRaggedBlob(t *testing.T) {
	if _, err := DecodeTable(make([]byte, entrySize+1)); err == nil {
		t.Fatal("ragged blob must be rejected")
	}
}

func TestTable_EncodeValidatesRanges(t *testing.T) {
	bad := []Entry{
		{ModuleType: 256},
		{Link: -1},
		{Command: 128},
		{Parameter: 300},
	}
	for _, e := range bad {
		if _, err := EncodeTable([]Entry{e}); err == nil {
			t.Errorf("entry %+v must be rejected", e)
		}
	}
}

func TestTable_EmptyTable(t *testing.T) {
	blob, err := EncodeTable(nil)
	if err != nil {
		t.Fatalf("EncodeTable(nil): %v", err)
	}
	if len(blob) != 0 {
		t.Fatalf("blob = %v", blob)
	}
	entries, err := DecodeTable(nil)
	if err != nil {
		t.Fatalf("DecodeTable(nil): %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %v", entries)
	}
}
