// SPDX-License-Identifier: Apache-2.0

package conbus

import (
	"strings"
	"testing"
)

func TestExtractor_TwoFramesOneChunk(t *testing.T) {
	e := NewExtractor()
	frames := e.Push([]byte("<S0012345678F02D12FI><R0012345678F02D1225FO>"))
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0] != "<S0012345678F02D12FI>" {
		t.Errorf("frame 0 = %q", frames[0])
	}
	if frames[1] != "<R0012345678F02D1225FO>" {
		t.Errorf("frame 1 = %q", frames[1])
	}
}

func TestExtractor_ByteByByteFragmentation(t *testing.T) {
	stream := "<S0012345678F02D12FI><R0012345678F02D1225FO>"
	e := NewExtractor()

	var frames []string
	for i := 0; i < len(stream); i++ {
		frames = append(frames, e.Push([]byte{stream[i]})...)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0] != "<S0012345678F02D12FI>" || frames[1] != "<R0012345678F02D1225FO>" {
		t.Errorf("frames = %q", frames)
	}
}

func TestExtractor_NoiseBetweenFrames(t *testing.T) {
	e := NewExtractor()
	frames := e.Push([]byte("junk<E14L00I02MAK>\r\nmore junk<S0000000000F01D00FA>trailer"))
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0] != "<E14L00I02MAK>" || frames[1] != "<S0000000000F01D00FA>" {
		t.Errorf("frames = %q", frames)
	}
}

func TestExtractor_PartialFrameAcrossPushes(t *testing.T) {
	e := NewExtractor()
	if frames := e.Push([]byte("<S00123456")); len(frames) != 0 {
		t.Fatalf("incomplete frame should yield nothing, got %q", frames)
	}
	frames := e.Push([]byte("78F02D12FI>"))
	if len(frames) != 1 || frames[0] != "<S0012345678F02D12FI>" {
		t.Fatalf("frames = %q", frames)
	}
}

// A bad frame between good ones must not block extraction; validation is
// the parser's job, not the extractor's.
func TestExtractor_BadFramePassesThrough(t *testing.T) {
	e := NewExtractor()
	frames := e.Push([]byte("<garbage><E14L00I02MAK>"))
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if _, err := ParseTelegram(frames[0]); err == nil {
		t.Error("garbage frame should fail to parse")
	}
	if _, err := ParseTelegram(frames[1]); err != nil {
		t.Errorf("good frame should parse: %v", err)
	}
}

func TestExtractor_OversizedPartialDropped(t *testing.T) {
	e := NewExtractor()
	// A '<' never followed by '>' must not grow the buffer without bound.
	e.Push([]byte("<" + strings.Repeat("A", MaxFrameSize*2)))
	frames := e.Push([]byte("<E14L00I02MAK>"))
	if len(frames) != 1 || frames[0] != "<E14L00I02MAK>" {
		t.Fatalf("extractor failed to resynchronize: %q", frames)
	}
}

func TestExtractor_Reset(t *testing.T) {
	e := NewExtractor()
	e.Push([]byte("<S001234"))
	e.Reset()
	frames := e.Push([]byte("5678F02D12FI><E14L00I02MAK>"))
	if len(frames) != 1 || frames[0] != "<E14L00I02MAK>" {
		t.Fatalf("frames after reset = %q", frames)
	}
}
