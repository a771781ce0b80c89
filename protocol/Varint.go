/*
File Name:  Varint.go

Variable-length integer encoding used throughout the wire protocol for
length prefixes (address counts, the user-agent string, etc).
*/

package protocol

import (
	"encoding/binary"
	"fmt"
)

// Var-int first-byte markers selecting the encoding width.
const (
	varint16Marker = 0xFD
	varint32Marker = 0xFE
	varint64Marker = 0xFF
)

// EncodeVarint encodes n using the shortest of the four wire forms.
func EncodeVarint(n uint64) []byte {
	switch {
	case n < varint16Marker:
		return []byte{byte(n)}
	case n <= 0xFFFF:
		buf := make([]byte, 3)
		buf[0] = varint16Marker
		binary.LittleEndian.PutUint16(buf[1:], uint16(n))
		return buf
	case n <= 0xFFFFFFFF:
		buf := make([]byte, 5)
		buf[0] = varint32Marker
		binary.LittleEndian.PutUint32(buf[1:], uint32(n))
		return buf
	default:
		buf := make([]byte, 9)
		buf[0] = varint64Marker
		binary.LittleEndian.PutUint64(buf[1:], n)
		return buf
	}
}

// DecodeVarint decodes a var-int starting at offset in buffer, returning
// the value and the offset immediately following it.
func DecodeVarint(buffer []byte, offset int) (value uint64, nextOffset int, err error) {
	if offset < 0 || offset >= len(buffer) {
		return 0, offset, fmt.Errorf("protocol: insufficient data for varint")
	}

	first := buffer[offset]

	switch {
	case first < varint16Marker:
		return uint64(first), offset + 1, nil
	case first == varint16Marker:
		if offset+3 > len(buffer) {
			return 0, offset, fmt.Errorf("protocol: insufficient data for varint")
		}
		return uint64(binary.LittleEndian.Uint16(buffer[offset+1 : offset+3])), offset + 3, nil
	case first == varint32Marker:
		if offset+5 > len(buffer) {
			return 0, offset, fmt.Errorf("protocol: insufficient data for varint")
		}
		return uint64(binary.LittleEndian.Uint32(buffer[offset+1 : offset+5])), offset + 5, nil
	default:
		if offset+9 > len(buffer) {
			return 0, offset, fmt.Errorf("protocol: insufficient data for varint")
		}
		return binary.LittleEndian.Uint64(buffer[offset+1 : offset+9]), offset + 9, nil
	}
}
