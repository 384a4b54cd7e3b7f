package dht

import (
	"sort"

	"github.com/das67333/ipfs-simulator/pkg/key"
)

// RecordStore is a peer's local key→record map. Each peer owns exactly
// one store; there is no cross-peer aliasing.
type RecordStore struct {
	records    map[key.Key]Record
	expiration bool
}

// NewRecordStore creates an empty store. When expiration is enabled,
// expired records are invisible to Get even before a sweep removes them.
func NewRecordStore(expiration bool) *RecordStore {
	return &RecordStore{
		records:    make(map[key.Key]Record),
		expiration: expiration,
	}
}

// Put inserts the record, or overwrites an existing one for the same key
// unless the existing one was published later. It reports whether the
// store now holds rec.
func (s *RecordStore) Put(rec Record) bool {
	old, ok := s.records[rec.Key]
	if ok && old.PublishedAt > rec.PublishedAt {
		return false
	}
	s.records[rec.Key] = rec
	return true
}

// Get returns the current record for k, if any.
func (s *RecordStore) Get(k key.Key, now float64) (Record, bool) {
	rec, ok := s.records[k]
	if !ok {
		return Record{}, false
	}
	if s.expiration && rec.Expired(now) {
		return Record{}, false
	}
	return rec, true
}

// Sweep removes every record whose lifetime has passed and returns the
// removed records in key order.
func (s *RecordStore) Sweep(now float64) []Record {
	if !s.expiration {
		return nil
	}
	var expired []Record
	for _, k := range s.Keys() {
		rec := s.records[k]
		if rec.Expired(now) {
			expired = append(expired, rec)
			delete(s.records, k)
		}
	}
	return expired
}

// Keys returns the stored keys in sorted order, so iteration over the
// store is deterministic.
func (s *RecordStore) Keys() []key.Key {
	keys := make([]key.Key, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Len returns the number of stored records.
func (s *RecordStore) Len() int {
	return len(s.records)
}
