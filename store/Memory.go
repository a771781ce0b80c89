/*
File Name:  Memory.go

An in-memory Sink, adapted from the teacher's store/Memory.go. Useful
for tests; cmd/crawld always uses PogrebSink and has no option to
select this sink.
*/

package store

import (
	"sync"

	core "github.com/bitcrawl/core"
)

// MemorySink is a core.Sink that keeps every record in a map, keyed
// on "ip:port" with replace-on-conflict semantics.
type MemorySink struct {
	mutex   sync.RWMutex
	records map[string]core.PeerRecord
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string]core.PeerRecord)}
}

// InsertBatch stores each record, replacing any prior value for the
// same (ip, port).
func (s *MemorySink) InsertBatch(records []core.PeerRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, record := range records {
		s.records[key(record.IP, record.Port)] = record
	}
	return nil
}

// All returns a snapshot of every stored record.
func (s *MemorySink) All() []core.PeerRecord {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]core.PeerRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	return out
}

func key(ip string, port uint16) string {
	return ip + ":" + itoa(port)
}

func itoa(port uint16) string {
	if port == 0 {
		return "0"
	}
	var digits [5]byte
	i := len(digits)
	for port > 0 {
		i--
		digits[i] = byte('0' + port%10)
		port /= 10
	}
	return string(digits[i:])
}
