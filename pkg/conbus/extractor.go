// SPDX-License-Identifier: Apache-2.0

package conbus

import "bytes"

// Extractor turns an arbitrary byte stream into discrete frames. It buffers
// partial data across Push calls and yields complete frames in arrival
// order. Extraction is format-agnostic: anything between a '<' and the next
// '>' is a frame; bytes outside a frame are noise and are dropped.
type Extractor struct {
	buf []byte
}

// NewExtractor creates an extractor with an empty buffer.
func NewExtractor() *Extractor {
	return &Extractor{buf: make([]byte, 0, MaxFrameSize)}
}

// Reset discards any buffered partial frame.
func (e *Extractor) Reset() {
	e.buf = e.buf[:0]
}

// Push consumes one chunk of bytes and returns zero or more complete raw
// frames, including their delimiters. A frame split across any number of
// chunks is reassembled; order is preserved.
func (e *Extractor) Push(data []byte) []string {
	e.buf = append(e.buf, data...)

	var frames []string
	for {
		start := bytes.IndexByte(e.buf, FrameStart)
		if start < 0 {
			// No frame in sight, everything buffered is noise.
			e.buf = e.buf[:0]
			return frames
		}
		if start > 0 {
			e.buf = append(e.buf[:0], e.buf[start:]...)
		}
		end := bytes.IndexByte(e.buf, FrameEnd)
		if end < 0 {
			// Partial frame: keep waiting unless it can no longer become
			// a legal frame.
			if len(e.buf) > MaxFrameSize {
				e.dropOversized()
			}
			return frames
		}
		frames = append(frames, string(e.buf[:end+1]))
		e.buf = append(e.buf[:0], e.buf[end+1:]...)
	}
}

// dropOversized discards an overlong partial frame, resynchronizing on the
// next '<' if one is already buffered.
func (e *Extractor) dropOversized() {
	next := bytes.IndexByte(e.buf[1:], FrameStart)
	if next < 0 {
		e.buf = e.buf[:0]
		return
	}
	e.buf = append(e.buf[:0], e.buf[next+1:]...)
}
