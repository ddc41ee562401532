// SPDX-License-Identifier: Apache-2.0

// Package capture records bus traffic to CBOR log files and plays it
// back. A capture file is a plain concatenation of CBOR-encoded records,
// one per telegram, so files can be appended to and truncated files stay
// readable up to the cut.
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/xpbus/conbus/pkg/conbus"
)

// Direction tells which side of the connection produced a frame.
type Direction string

// Frame directions
const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Record is one captured frame. Raw keeps the exact wire text, so replay
// reproduces the traffic byte for byte, bad checksums included.
type Record struct {
	Time      time.Time `cbor:"1,keyasint"`
	Direction Direction `cbor:"2,keyasint"`
	Raw       string    `cbor:"3,keyasint"`
	Valid     bool      `cbor:"4,keyasint"`
}

// encMode keeps sub-second precision; the default time mode truncates
// timestamps to whole seconds, which ruins replay timing.
var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeUnixMicro}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Writer appends records to a capture stream.
type Writer struct {
	enc *cbor.Encoder
}

// NewWriter creates a Writer appending to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: encMode.NewEncoder(w)}
}

// Write appends one record.
func (w *Writer) Write(r Record) error {
	if err := w.enc.Encode(r); err != nil {
		return fmt.Errorf("capture: encode record: %w", err)
	}
	return nil
}

// WriteTelegram appends a parsed telegram stamped with the current time.
func (w *Writer) WriteTelegram(dir Direction, t *conbus.Telegram) error {
	return w.Write(Record{
		Time:      time.Now(),
		Direction: dir,
		Raw:       t.Raw,
		Valid:     t.ChecksumValid,
	})
}

// Reader decodes records from a capture stream.
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Read returns the next record, io.EOF at end of stream.
func (r *Reader) Read() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture: decode record: %w", err)
	}
	return rec, nil
}

// ReadAll drains the stream.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Replay feeds every recorded frame to emit, sleeping the recorded
// inter-frame gaps scaled by speed (2.0 is twice as fast, 0 skips the
// sleeps entirely).
func Replay(r *Reader, speed float64, emit func(Record) error) error {
	var last time.Time
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if speed > 0 && !last.IsZero() {
			if gap := rec.Time.Sub(last); gap > 0 {
				time.Sleep(time.Duration(float64(gap) / speed))
			}
		}
		last = rec.Time
		if err := emit(rec); err != nil {
			return err
		}
	}
}
