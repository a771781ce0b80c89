/*
File Name:  Messages.go

Thin constructors and parsers for the four messages the handshake
uses: version, verack, getaddr, addr. Field layouts follow the
Bitcoin wire protocol's version announcement and network address
record formats.
*/

package protocol

import (
	"encoding/binary"
	"math/rand"
	"time"
)

// DefaultUserAgent is used by BuildVersion when the caller does not
// override it.
const DefaultUserAgent = "/bitcrawl:0.1/"

// DefaultProtocolVersion is announced by BuildVersion when the caller
// does not set a version.
const DefaultProtocolVersion int32 = 70015

// netAddrSize is the size of one network address record (receiver or
// sender) embedded in a version payload: 8-byte services + 16-byte IP
// + 2-byte port. Timestamp-prefixed records (as used in addr payloads)
// add 4 bytes in front of this.
const netAddrSize = 26

// addrRecordSize is the size of one record in an addr payload:
// 4-byte timestamp + the 26-byte address record.
const addrRecordSize = 4 + netAddrSize

// maxAddrRecords bounds how many records ParseAddr will read from a
// single payload, regardless of what the var-int count claims.
const maxAddrRecords = 1000

// VersionOptions configures BuildVersion. A zero Version, Timestamp,
// Nonce or UserAgent takes the default noted on the field; Services,
// StartHeight and Relay are encoded exactly as given (Relay false
// when unset).
type VersionOptions struct {
	Version      int32     // zero means DefaultProtocolVersion
	Services     uint64
	Timestamp    time.Time // zero means time.Now()
	Nonce        uint64    // zero means a random 64-bit nonce
	UserAgent    string    // empty means DefaultUserAgent
	StartHeight  int32
	Relay        bool
}

// BuildVersion encodes a version announcement frame.
func BuildVersion(magic Magic, opts VersionOptions) []byte {
	if opts.Version == 0 {
		opts.Version = DefaultProtocolVersion
	}
	if opts.Timestamp.IsZero() {
		opts.Timestamp = time.Now()
	}
	if opts.Nonce == 0 {
		opts.Nonce = rand.Uint64()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	userAgent := []byte(opts.UserAgent)

	payload := make([]byte, 0, 4+8+8+netAddrSize+netAddrSize+8+9+len(userAgent)+4+1)
	payload = appendUint32(payload, uint32(opts.Version))
	payload = appendUint64(payload, opts.Services)
	payload = appendUint64(payload, uint64(opts.Timestamp.Unix()))
	payload = append(payload, encodeNetAddr(opts.Services, "0.0.0.0", 0)...) // receiver
	payload = append(payload, encodeNetAddr(opts.Services, "0.0.0.0", 0)...) // sender
	payload = appendUint64(payload, opts.Nonce)
	payload = append(payload, EncodeVarint(uint64(len(userAgent)))...)
	payload = append(payload, userAgent...)
	payload = appendUint32(payload, uint32(opts.StartHeight))
	if opts.Relay {
		payload = append(payload, 1)
	} else {
		payload = append(payload, 0)
	}

	return EncodeFrame(magic, CmdVersion, payload)
}

// BuildVerack encodes an empty-payload verack frame.
func BuildVerack(magic Magic) []byte {
	return EncodeFrame(magic, CmdVerack, nil)
}

// BuildGetAddr encodes an empty-payload getaddr frame.
func BuildGetAddr(magic Magic) []byte {
	return EncodeFrame(magic, CmdGetAddr, nil)
}

// VersionInfo is what the crawl extracts from a peer's version payload.
type VersionInfo struct {
	Version   int32
	Services  uint64
	Timestamp time.Time
	UserAgent string
}

// ParseVersion extracts the fields the crawl cares about from a
// version payload. Address fields and the nonce are skipped at fixed
// offsets. The user-agent is read defensively: any error in reading
// it yields an empty string rather than a parse failure, since it is
// the least structurally load-bearing field.
func ParseVersion(payload []byte) (info VersionInfo) {
	if len(payload) < 4 {
		return info
	}
	offset := 0
	info.Version = int32(binary.LittleEndian.Uint32(payload[offset : offset+4]))
	offset += 4

	if len(payload) < offset+8 {
		return info
	}
	info.Services = binary.LittleEndian.Uint64(payload[offset : offset+8])
	offset += 8

	if len(payload) < offset+8 {
		return info
	}
	info.Timestamp = time.Unix(int64(binary.LittleEndian.Uint64(payload[offset:offset+8])), 0)
	offset += 8

	// Skip receiver address (26), sender address (26), nonce (8).
	offset += netAddrSize + netAddrSize + 8
	if offset > len(payload) {
		return info
	}

	func() {
		defer func() { recover() }() // defensive: malformed length prefix must not panic
		length, next, err := DecodeVarint(payload, offset)
		if err != nil {
			return
		}
		if next+int(length) > len(payload) {
			return
		}
		info.UserAgent = string(payload[next : next+int(length)])
	}()

	return info
}

// AddrEntry is one peer advertised in an addr payload.
type AddrEntry struct {
	IP        string
	Port      uint16
	Timestamp time.Time
}

// ParseAddr reads the leading var-int count and up to
// min(count, 1000) 30-byte records. IPv6-only records are skipped by
// advancing past the full record (see DESIGN.md / SPEC_FULL.md Open
// Questions: the original source only skips the port on the IPv6
// branch, which is a bug this implementation does not reproduce). Any
// structural error stops parsing and returns whatever was read so far.
func ParseAddr(payload []byte) (entries []AddrEntry) {
	if len(payload) < 1 {
		return nil
	}

	count, offset, err := DecodeVarint(payload, 0)
	if err != nil {
		return nil
	}

	limit := count
	if limit > maxAddrRecords {
		limit = maxAddrRecords
	}

	for i := uint64(0); i < limit; i++ {
		if offset+addrRecordSize > len(payload) {
			break
		}

		record := payload[offset : offset+addrRecordSize]
		timestamp := binary.LittleEndian.Uint32(record[0:4])
		ip := record[4+8 : 4+8+16]
		port := binary.BigEndian.Uint16(record[4+8+16 : 4+8+16+2])

		offset += addrRecordSize

		if hasIPv4MappedPrefix(ip) {
			entries = append(entries, AddrEntry{
				IP:        formatIPv4(ip[12:16]),
				Port:      port,
				Timestamp: time.Unix(int64(timestamp), 0),
			})
		}
		// else: IPv6-only record, already skipped by the full 30-byte advance above.
	}

	return entries
}

// BuildAddr encodes an addr payload (var-int count + 30-byte records)
// for the given entries. Entries must carry dotted-quad IPv4
// addresses; it is the counterpart to ParseAddr used by round-trip
// tests and by any component that needs to emit its own addr replies.
func BuildAddr(entries []AddrEntry) []byte {
	payload := make([]byte, 0, len(EncodeVarint(uint64(len(entries))))+len(entries)*addrRecordSize)
	payload = append(payload, EncodeVarint(uint64(len(entries)))...)

	for _, e := range entries {
		var record [addrRecordSize]byte
		binary.LittleEndian.PutUint32(record[0:4], uint32(e.Timestamp.Unix()))
		record[4+8+10] = 0xFF
		record[4+8+11] = 0xFF
		copy(record[4+8+12:4+8+16], parseIPv4(e.IP))
		binary.BigEndian.PutUint16(record[4+8+16:4+8+18], e.Port)
		payload = append(payload, record[:]...)
	}

	return payload
}

func hasIPv4MappedPrefix(ip []byte) bool {
	for i := 0; i < 10; i++ {
		if ip[i] != 0 {
			return false
		}
	}
	return ip[10] == 0xFF && ip[11] == 0xFF
}

func formatIPv4(b []byte) string {
	return itoa(b[0]) + "." + itoa(b[1]) + "." + itoa(b[2]) + "." + itoa(b[3])
}

func itoa(b byte) string {
	if b < 10 {
		return string([]byte{'0' + b})
	}
	// small, allocation-light decimal formatting for a single byte
	digits := [3]byte{}
	n := int(b)
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

// encodeNetAddr encodes the fixed 26-byte address record embedded in a
// version payload (no leading timestamp, unlike addr-payload records).
func encodeNetAddr(services uint64, ip string, port uint16) []byte {
	buf := make([]byte, netAddrSize)
	binary.LittleEndian.PutUint64(buf[0:8], services)
	buf[8+10] = 0xFF
	buf[8+11] = 0xFF
	copy(buf[8+12:8+16], parseIPv4(ip))
	binary.BigEndian.PutUint16(buf[24:26], port)
	return buf
}

func parseIPv4(ip string) []byte {
	out := make([]byte, 4)
	part, idx := 0, 0
	value := 0
	for i := 0; i <= len(ip); i++ {
		if i == len(ip) || ip[i] == '.' {
			if idx < 4 {
				out[idx] = byte(value)
				idx++
			}
			value = 0
			part++
			continue
		}
		value = value*10 + int(ip[i]-'0')
	}
	return out
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
