/*
File Name:  Pogreb.go

A Sink backed by Pogreb, a pure-Go embedded key/value store. Adapted
from the teacher's store/Pogreb.go wrapper: same Open/Put/Get shape,
now keying on "ip:port" and storing JSON-encoded PeerRecords instead
of opaque blobs.
*/

package store

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/akrylysov/pogreb"

	core "github.com/bitcrawl/core"
)

// PogrebSink is a core.Sink backed by an on-disk Pogreb database.
type PogrebSink struct {
	mutex *sync.Mutex
	db    *pogreb.DB
}

// NewPogrebSink opens (creating if necessary) a Pogreb database at filename.
func NewPogrebSink(filename string) (*PogrebSink, error) {
	pogreb.SetLogger(log.New(io.Discard, "", 0))

	db, err := pogreb.Open(filename, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open pogreb db %s: %w", filename, err)
	}

	return &PogrebSink{mutex: &sync.Mutex{}, db: db}, nil
}

// InsertBatch stores each record keyed on "ip:port", replacing any
// prior value for the same key (spec.md §6: replace-on-conflict).
func (s *PogrebSink) InsertBatch(records []core.PeerRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("store: marshal record %s:%d: %w", record.IP, record.Port, err)
		}
		key := fmt.Sprintf("%s:%d", record.IP, record.Port)
		if err := s.db.Put([]byte(key), data); err != nil {
			return fmt.Errorf("store: put %s: %w", key, err)
		}
	}

	return nil
}

// Get returns the stored record for (ip, port), if present.
func (s *PogrebSink) Get(ip string, port uint16) (record core.PeerRecord, found bool, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := fmt.Sprintf("%s:%d", ip, port)
	data, err := s.db.Get([]byte(key))
	if err != nil {
		return core.PeerRecord{}, false, fmt.Errorf("store: get %s: %w", key, err)
	}
	if data == nil {
		return core.PeerRecord{}, false, nil
	}

	if err := json.Unmarshal(data, &record); err != nil {
		return core.PeerRecord{}, false, fmt.Errorf("store: unmarshal %s: %w", key, err)
	}
	return record, true, nil
}

// Close closes the underlying database.
func (s *PogrebSink) Close() error {
	return s.db.Close()
}
