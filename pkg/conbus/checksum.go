// SPDX-License-Identifier: Apache-2.0

package conbus

import "fmt"

// Nibble encoding maps each 4-bit value n to the letter 'A'+n, so one byte
// becomes two letters, high nibble first. It is used for both checksums and
// binary payload transport.

// NibbleEncode encodes data as nibble letters, two per byte.
func NibbleEncode(data []byte) string {
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		out = append(out, 'A'+(b>>4), 'A'+(b&0x0F))
	}
	return string(out)
}

// Denibble decodes a nibble-letter string back to bytes. The input length
// must be even.
func Denibble(text string) ([]byte, error) {
	if len(text)%2 != 0 {
		return nil, fmt.Errorf("odd-length nibble string (%d chars)", len(text))
	}
	out := make([]byte, 0, len(text)/2)
	for i := 0; i < len(text); i += 2 {
		hi := text[i] - 'A'
		lo := text[i+1] - 'A'
		out = append(out, hi<<4|lo)
	}
	return out, nil
}

// XORChecksum computes the running XOR of data and returns it as two nibble
// letters. This is the default frame checksum.
func XORChecksum(data []byte) string {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return NibbleEncode([]byte{sum})
}

// CRC-32 configuration (reflected polynomial, bit-at-a-time)
const (
	crc32Polynomial = 0xEDB88320
	crc32Initial    = 0xFFFFFFFF
	crc32FinalXOR   = 0xFFFFFFFF
)

// CRC32Checksum computes a standard CRC-32 over data and returns it as
// eight nibble letters: the four register bytes in little-endian order,
// each nibble-encoded, so the most significant byte's encoding comes last.
func CRC32Checksum(data []byte) string {
	crc := uint32(crc32Initial)
	for _, b := range data {
		crc ^= uint32(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crc32Polynomial
			} else {
				crc >>= 1
			}
		}
	}
	crc ^= crc32FinalXOR

	out := make([]byte, 0, 8)
	for i := 0; i < 4; i++ {
		b := byte(crc)
		out = append(out, 'A'+(b>>4), 'A'+(b&0x0F))
		crc >>= 8
	}
	return string(out)
}

// checksumFor runs the selected algorithm over body.
func checksumFor(kind ChecksumKind, body string) string {
	if kind == ChecksumCRC32 {
		return CRC32Checksum([]byte(body))
	}
	return XORChecksum([]byte(body))
}
